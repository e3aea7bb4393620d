package graph

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ohah/bungae/internal/config"
	"github.com/ohah/bungae/internal/resolver"
	"github.com/ohah/bungae/internal/transform"
)

// identityTransformer returns the source unchanged, avoiding a dependency
// on esbuild in unit tests that only exercise graph-building logic.
type identityTransformer struct{}

func (identityTransformer) Transform(in transform.Input) (*transform.AST, error) {
	return &transform.AST{Code: in.SourceBytes}, nil
}

func newBuilder(t *testing.T, root string, cfg config.Config) *Builder {
	t.Helper()
	cfg.Root = root
	return &Builder{
		Config:      cfg,
		Resolver:    resolver.New(cfg),
		Transformer: identityTransformer{},
		ImageProbe:  func(string) (int, int) { return 0, 0 },
	}
}

func write(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestBuild_LinearChain(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "c.js"), `module.exports = 'c';`)
	write(t, filepath.Join(dir, "b.js"), `require('./c');`)
	write(t, filepath.Join(dir, "a.js"), `require('./b');`)
	entry := filepath.Join(dir, "a.js")

	b := newBuilder(t, dir, config.Config{Platform: config.PlatformWeb})
	g, err := b.Build(entry)
	if err != nil {
		t.Fatal(err)
	}
	if g.Len() != 3 {
		t.Fatalf("expected 3 modules, got %d", g.Len())
	}
	if violation, ok := g.Closed(); !ok {
		t.Fatalf("graph not closed: %s", violation)
	}
}

func TestBuild_CyclesAreTolerated(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "a.js"), `require('./b');`)
	write(t, filepath.Join(dir, "b.js"), `require('./a');`)
	entry := filepath.Join(dir, "a.js")

	b := newBuilder(t, dir, config.Config{Platform: config.PlatformWeb})
	g, err := b.Build(entry)
	if err != nil {
		t.Fatal(err)
	}
	if g.Len() != 2 {
		t.Fatalf("expected 2 modules in cyclic graph, got %d", g.Len())
	}
}

func TestBuild_EntryNotFound(t *testing.T) {
	dir := t.TempDir()
	b := newBuilder(t, dir, config.Config{Platform: config.PlatformWeb})
	_, err := b.Build(filepath.Join(dir, "missing.js"))
	if _, ok := err.(*EntryNotFoundError); !ok {
		t.Fatalf("expected EntryNotFoundError, got %v", err)
	}
}

func TestBuild_JSONModule(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "data.json"), `{"a":1}`)
	write(t, filepath.Join(dir, "index.js"), `require('./data.json');`)
	entry := filepath.Join(dir, "index.js")

	b := newBuilder(t, dir, config.Config{Platform: config.PlatformWeb})
	g, err := b.Build(entry)
	if err != nil {
		t.Fatal(err)
	}
	jsonPath := filepath.Join(dir, "data.json")
	m, ok := g.Get(jsonPath)
	if !ok {
		t.Fatalf("expected json module in graph")
	}
	if string(m.Code) != `module.exports = {"a":1};
` {
		t.Fatalf("unexpected json module code: %q", m.Code)
	}
}

func TestBuild_AssetModule(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "icon.png"), "fake-png-bytes")
	write(t, filepath.Join(dir, "index.js"), `require('./icon.png');`)
	entry := filepath.Join(dir, "index.js")

	b := newBuilder(t, dir, config.Config{Platform: config.PlatformWeb})
	g, err := b.Build(entry)
	if err != nil {
		t.Fatal(err)
	}
	assetPath := filepath.Join(dir, "icon.png")
	m, ok := g.Get(assetPath)
	if !ok || !m.IsAsset {
		t.Fatalf("expected asset module in graph")
	}
	if _, ok := g.Get(assetRegistrarPath); !ok {
		t.Fatalf("expected synthetic asset registrar module in graph")
	}
}

func TestBuild_DevTolerateMissingResolve(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "index.js"), `require('./missing');`)
	entry := filepath.Join(dir, "index.js")

	b := newBuilder(t, dir, config.Config{Platform: config.PlatformWeb, Dev: true})
	g, err := b.Build(entry)
	if err != nil {
		t.Fatal(err)
	}
	m, _ := g.Get(entry)
	if !m.Tolerated["./missing"] {
		t.Fatalf("expected ./missing to be tolerated")
	}
}

func TestBuild_ProductionResolveFailureIsFatal(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "index.js"), `require('./missing');`)
	entry := filepath.Join(dir, "index.js")

	b := newBuilder(t, dir, config.Config{Platform: config.PlatformWeb, Dev: false})
	_, err := b.Build(entry)
	if _, ok := err.(*ResolveFailedError); !ok {
		t.Fatalf("expected ResolveFailedError, got %v", err)
	}
}
