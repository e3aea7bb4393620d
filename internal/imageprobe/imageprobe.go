// Package imageprobe implements the ImageProber capability (spec.md §6):
// given a file path, return its pixel dimensions, or zeros for an unknown
// format. No repository in the retrieval pack ships a reusable image
// dimension library, so this is one of the few places bungae reaches for
// the standard library's image package instead of a third-party
// dependency (see DESIGN.md's standard-library-only justifications).
package imageprobe

import (
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
)

// Dimensions is the {width, height} pair spec.md §6 specifies as the
// ImageProber's output.
type Dimensions struct {
	Width  int
	Height int
}

// Prober is the ImageProber capability.
type Prober interface {
	Probe(filePath string) (Dimensions, error)
}

// FileProber decodes image headers off disk via the standard library's
// format-sniffing image.DecodeConfig, recognizing PNG/JPEG/GIF at
// minimum per spec.md §6.
type FileProber struct{}

// Probe returns the pixel dimensions of filePath, or a zero Dimensions
// for an unrecognized format — it never returns an error for that case,
// matching spec.md §6's "{0,0} on unknown format" contract.
func (FileProber) Probe(filePath string) (Dimensions, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return Dimensions{}, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return Dimensions{}, nil
	}
	return Dimensions{Width: cfg.Width, Height: cfg.Height}, nil
}

// ProbeFunc adapts a Prober to the bare func(path string) (int, int) shape
// graph.Builder and delta.Engine accept, collapsing any error into {0, 0}.
func ProbeFunc(p Prober) func(string) (int, int) {
	return func(filePath string) (int, int) {
		d, err := p.Probe(filePath)
		if err != nil {
			return 0, 0
		}
		return d.Width, d.Height
	}
}
