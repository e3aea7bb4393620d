package imageprobe

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func write1x1PNG(t *testing.T, path string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.RGBA{255, 0, 0, 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestProbe_PNG(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "icon.png")
	write1x1PNG(t, path)

	d, err := (FileProber{}).Probe(path)
	if err != nil {
		t.Fatal(err)
	}
	if d.Width != 1 || d.Height != 1 {
		t.Fatalf("got %+v, want 1x1", d)
	}
}

func TestProbe_UnknownFormatReturnsZero(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "not-an-image.bin")
	if err := os.WriteFile(path, []byte("not an image"), 0o644); err != nil {
		t.Fatal(err)
	}

	d, err := (FileProber{}).Probe(path)
	if err != nil {
		t.Fatal(err)
	}
	if d.Width != 0 || d.Height != 0 {
		t.Fatalf("got %+v, want zero", d)
	}
}
