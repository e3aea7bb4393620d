package graph

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ohah/bungae/internal/config"
	"github.com/ohah/bungae/internal/resolver"
	"github.com/ohah/bungae/internal/transform"
)

// EntryNotFoundError matches spec.md §7's EntryNotFound error kind.
type EntryNotFoundError struct{ Path string }

func (e *EntryNotFoundError) Error() string { return "entry not found: " + e.Path }

// ResolveFailedError matches spec.md §7's ResolveFailed error kind,
// raised only in production — in dev the edge is dropped and tolerated.
type ResolveFailedError struct {
	Specifier string
	From      string
}

func (e *ResolveFailedError) Error() string {
	return fmt.Sprintf("cannot resolve %q from %q", e.Specifier, e.From)
}

// Builder implements the GraphBuilder (spec.md §4.2, component C2).
// Concurrency: transformation of distinct modules fans out across a
// bounded worker pool (errgroup.Group), but every insertion into the
// ModuleGraph happens under a single mutex, so the graph itself is
// mutated from one serialization point as spec.md §5 requires.
type Builder struct {
	Config      config.Config
	Resolver    *resolver.Resolver
	Transformer transform.Transformer
	ImageProbe  func(path string) (int, int)
	OnProgress  func(processed, total int)

	mu        sync.Mutex
	graph     *ModuleGraph
	visited   map[string]bool
	inflight  map[string]bool
	processed int
	total     int
}

// Build runs the full resolve/transform/collect traversal from entry and
// returns the populated graph (spec.md §4.2).
func (b *Builder) Build(entry string) (*ModuleGraph, error) {
	absEntry, err := filepath.Abs(entry)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(absEntry); err != nil {
		return nil, &EntryNotFoundError{Path: entry}
	}

	b.graph = New(absEntry)
	b.visited = make(map[string]bool)
	b.inflight = make(map[string]bool)
	b.total = 0

	g := new(errgroup.Group)
	g.SetLimit(workerLimit())

	var walk func(path string) error
	walk = func(path string) error {
		deps, err := b.processOne(path)
		if err != nil {
			return err
		}
		for _, dep := range deps {
			dep := dep
			if !b.claim(dep) {
				continue
			}
			g.Go(func() error { return walk(dep) })
		}
		return nil
	}

	if !b.claim(absEntry) {
		return nil, fmt.Errorf("entry already claimed unexpectedly")
	}
	g.Go(func() error { return walk(absEntry) })

	if err := g.Wait(); err != nil {
		return nil, err
	}

	b.graph.RebuildInverseDeps()
	return b.graph, nil
}

// claim marks path as in-flight exactly once, returning false if it was
// already visited or claimed by another goroutine — the cycle guard
// spec.md §4.2 step 1 requires.
func (b *Builder) claim(path string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.visited[path] || b.inflight[path] {
		return false
	}
	b.inflight[path] = true
	b.total++
	return true
}

func (b *Builder) finish(path string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.inflight, path)
	b.visited[path] = true
	b.processed++
	if b.OnProgress != nil {
		b.OnProgress(b.processed, b.total)
	}
}

func (b *Builder) insert(m *Module) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.graph.Put(m)
}

// processOne builds the Module for path and returns the dependency paths
// the caller should recurse into next.
func (b *Builder) processOne(path string) ([]string, error) {
	defer b.finish(path)

	if path == assetRegistrarPath {
		m := &Module{Path: path, Code: []byte(assetRegistrarSource)}
		b.insert(m)
		return nil, nil
	}

	ext := strings.ToLower(filepath.Ext(path))

	if isAssetExt(ext, b.Config) {
		return b.processAsset(path)
	}
	if ext == ".json" {
		return b.processJSON(path)
	}
	return b.processSource(path)
}

func isAssetExt(ext string, cfg config.Config) bool {
	if ext == "" {
		return false
	}
	exts := cfg.Resolver.AssetExts
	if len(exts) == 0 {
		exts = config.DefaultAssetExts()
	}
	ext = strings.TrimPrefix(ext, ".")
	for _, e := range exts {
		if e == ext {
			return true
		}
	}
	return false
}

func (b *Builder) processAsset(path string) ([]string, error) {
	root := b.Config.Root
	if root == "" {
		root = filepath.Dir(b.graph.Entry)
	}
	src, info, err := buildAssetSource(root, path, b.ImageProbe)
	if err != nil {
		return nil, &IOError{Path: path, Detail: err.Error()}
	}
	m := &Module{Path: path, IsAsset: true, Asset: info, Code: src}
	m.AddDependency(assetRegistrarPath, assetRegistrarPath)
	b.insert(m)
	return []string{assetRegistrarPath}, nil
}

func (b *Builder) processJSON(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &IOError{Path: path, Detail: err.Error()}
	}
	m := &Module{
		Path:   path,
		Source: data,
		Code:   []byte("module.exports = " + string(data) + ";\n"),
	}
	b.insert(m)
	return nil, nil
}

// IOError matches spec.md §7's IoError error kind.
type IOError struct {
	Path   string
	Detail string
}

func (e *IOError) Error() string { return fmt.Sprintf("io error on %s: %s", e.Path, e.Detail) }

func (b *Builder) processSource(path string) ([]string, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, &IOError{Path: path, Detail: err.Error()}
	}

	ast, err := b.Transformer.Transform(transform.Input{
		SourceBytes: src,
		FilePath:    path,
		Platform:    string(b.Config.Platform),
		Dev:         b.Config.Dev,
		EntryPath:   b.graph.Entry,
	})
	if err != nil {
		return nil, err
	}

	edges := transform.ExtractDependencies(ast.Code)

	root := b.Config.Root
	if root == "" {
		root = filepath.Dir(b.graph.Entry)
	}
	m := &Module{
		Path:                path,
		Source:              src,
		Code:                ast.Code,
		SourceMap:           ast.Map,
		HasSideEffects:      transform.HasTopLevelSideEffects(ast.Code),
		SideEffectsDeclared: sideEffectsDeclared(root, path),
		OwnExports:          transform.ExtractOwnExports(ast.Code),
	}

	var next []string
	for _, e := range edges {
		if e.Specifier == "" {
			if e.Dynamic {
				m.HasDynamicEscapeHatch = true
			}
			continue // dynamic escape-hatch marker with no resolvable target
		}
		resolved, rerr := b.Resolver.Resolve(e.Specifier, path)
		if rerr != nil {
			if b.Config.Dev {
				m.MarkTolerated(e.Specifier)
				fmt.Fprintf(os.Stderr, "warning: cannot resolve %q from %s\n", e.Specifier, path)
				continue
			}
			return nil, &ResolveFailedError{Specifier: e.Specifier, From: path}
		}
		m.AddDependencyEdge(e.Specifier, resolved, e.Kind, e.Named, e.Namespace)
		next = append(next, resolved)
	}

	b.insert(m)
	sort.Strings(next) // deterministic recursion order for reproducible progress counts
	return next, nil
}

func workerLimit() int {
	n := 8
	return n
}
