package resolver

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ohah/bungae/internal/config"
)

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newCfg(root string, platform config.Platform) config.Config {
	return config.Config{
		Root:     root,
		Platform: platform,
		Resolver: config.ResolverConfig{
			SourceExts: config.DefaultSourceExts(),
			AssetExts:  config.DefaultAssetExts(),
		},
	}
}

func TestResolve_RelativePlain(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "util.js"), "module.exports = {};")
	entry := filepath.Join(dir, "index.js")
	writeFile(t, entry, "require('./util');")

	r := New(newCfg(dir, config.PlatformWeb))
	got, err := r.Resolve("./util", entry)
	if err != nil {
		t.Fatal(err)
	}
	want := canonicalize(filepath.Join(dir, "util.js"))
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestResolve_PlatformVariantPreferred(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "platform.js"), "// generic")
	writeFile(t, filepath.Join(dir, "platform.ios.js"), "// ios")
	entry := filepath.Join(dir, "index.js")
	writeFile(t, entry, "")

	r := New(newCfg(dir, config.PlatformIOS))
	got, err := r.Resolve("./platform", entry)
	if err != nil {
		t.Fatal(err)
	}
	want := canonicalize(filepath.Join(dir, "platform.ios.js"))
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestResolve_PlatformVariantFallsBackToGeneric(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "platform.js"), "// generic")
	entry := filepath.Join(dir, "index.js")
	writeFile(t, entry, "")

	r := New(newCfg(dir, config.PlatformAndroid))
	got, err := r.Resolve("./platform", entry)
	if err != nil {
		t.Fatal(err)
	}
	want := canonicalize(filepath.Join(dir, "platform.js"))
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestResolve_DirectoryIndex(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "widgets", "index.js"), "")
	entry := filepath.Join(dir, "index.js")
	writeFile(t, entry, "")

	r := New(newCfg(dir, config.PlatformWeb))
	got, err := r.Resolve("./widgets", entry)
	if err != nil {
		t.Fatal(err)
	}
	want := canonicalize(filepath.Join(dir, "widgets", "index.js"))
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestResolve_AssetExtension(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "icon.png"), "fakepng")
	entry := filepath.Join(dir, "index.js")
	writeFile(t, entry, "")

	r := New(newCfg(dir, config.PlatformWeb))
	got, err := r.Resolve("./icon.png", entry)
	if err != nil {
		t.Fatal(err)
	}
	want := canonicalize(filepath.Join(dir, "icon.png"))
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestResolve_FlowOnlyFileSkipped(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "typed.js.flow"), "// types only")
	writeFile(t, filepath.Join(dir, "typed.js"), "module.exports = {};")
	entry := filepath.Join(dir, "index.js")
	writeFile(t, entry, "")

	r := New(newCfg(dir, config.PlatformWeb))
	got, err := r.Resolve("./typed", entry)
	if err != nil {
		t.Fatal(err)
	}
	want := canonicalize(filepath.Join(dir, "typed.js"))
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestResolve_NotResolved(t *testing.T) {
	dir := t.TempDir()
	entry := filepath.Join(dir, "index.js")
	writeFile(t, entry, "")

	r := New(newCfg(dir, config.PlatformWeb))
	_, err := r.Resolve("./missing", entry)
	if !errors.Is(err, ErrNotResolved) {
		t.Fatalf("expected ErrNotResolved, got %v", err)
	}
}

func TestResolve_BareSpecifierNodeModules(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "node_modules", "leftpad", "index.js"), "module.exports = {};")
	entry := filepath.Join(dir, "index.js")
	writeFile(t, entry, "")

	r := New(newCfg(dir, config.PlatformWeb))
	got, err := r.Resolve("leftpad", entry)
	if err != nil {
		t.Fatal(err)
	}
	want := canonicalize(filepath.Join(dir, "node_modules", "leftpad", "index.js"))
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestResolve_BareSpecifierPackageJSONMain(t *testing.T) {
	dir := t.TempDir()
	pkgDir := filepath.Join(dir, "node_modules", "widget")
	writeFile(t, filepath.Join(pkgDir, "package.json"), `{"main": "lib/widget.js"}`)
	writeFile(t, filepath.Join(pkgDir, "lib", "widget.js"), "module.exports = {};")
	entry := filepath.Join(dir, "index.js")
	writeFile(t, entry, "")

	r := New(newCfg(dir, config.PlatformWeb))
	got, err := r.Resolve("widget", entry)
	if err != nil {
		t.Fatal(err)
	}
	want := canonicalize(filepath.Join(pkgDir, "lib", "widget.js"))
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}
