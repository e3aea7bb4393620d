// Package graph implements the module graph builder (spec.md §4.2,
// component C2) and the Module/ModuleGraph data model (spec.md §3).
package graph

import (
	"sort"

	"github.com/ohah/bungae/internal/transform"
)

// AssetInfo describes a synthetic asset module (spec.md §3).
type AssetInfo struct {
	FilePath           string
	HTTPServerLocation string
	Name               string
	Type               string
	Width              int
	Height             int
	Scales             []int
	Hash               string
}

// Module is a single node in the graph. Identity is Path. Invariant:
// len(ResolvedDeps) == len(Specifiers) — the i-th Specifier is what the
// source wrote, the i-th ResolvedDeps entry is what the Resolver returned
// for it (spec.md §3).
type Module struct {
	Path         string
	Source       []byte
	Code         []byte
	SourceMap    string
	ResolvedDeps []string
	Specifiers   []string
	InverseDeps  map[string]struct{}

	IsAsset   bool
	Asset     *AssetInfo
	Tolerated map[string]bool // specifiers whose resolution failed but were tolerated (dev mode)

	// DepKind, DepNamed and DepNamespace are parallel to ResolvedDeps and
	// Specifiers, recording how each edge consumed its target — the
	// TreeShaker's import model (spec.md §4.5). AddDependency appends a
	// conservative "opaque require" default so the four slices never drift
	// out of alignment; AddDependencyEdge is used where the consumption
	// shape is actually known.
	DepKind      []transform.EdgeKind
	DepNamed     [][]string
	DepNamespace []bool

	// HasSideEffects is a regex-derived heuristic over the module's own
	// transformed source (spec.md §4.5); HasDynamicEscapeHatch records a
	// non-literal require()/import() call found anywhere in the module.
	HasSideEffects        bool
	HasDynamicEscapeHatch bool
	// SideEffectsDeclared reflects the nearest enclosing package.json's
	// "sideEffects" field: nil when no package.json was found or the nearest
	// one has no such field; the boolean value for `true`/`false`; for a
	// list, true when this file matches an entry and false otherwise.
	SideEffectsDeclared *bool

	// OwnExports is the set of names this module declares itself (spec.md
	// §4.5's export model); nil when extraction found nothing, in which
	// case the TreeShaker falls back to a conservative forward-all policy
	// for `export * from` targeting this module.
	OwnExports map[string]bool
}

// AddDependency records that the module depends on resolvedPath via the
// source-level specifier s, preserving the invariant that the two slices
// stay parallel. Equivalent to AddDependencyEdge with KindRequire/no named
// bindings/namespace use — the safe default for callers indifferent to the
// TreeShaker's import model (the asset registrar edge).
func (m *Module) AddDependency(specifier, resolvedPath string) {
	m.AddDependencyEdge(specifier, resolvedPath, transform.KindRequire, nil, true)
}

// AddDependencyEdge is AddDependency plus the consumption shape the
// TreeShaker needs: which names were destructured (named), and whether the
// target was consumed wholesale (namespace import, bare require(), or
// export * from).
func (m *Module) AddDependencyEdge(specifier, resolvedPath string, kind transform.EdgeKind, named []string, namespace bool) {
	m.Specifiers = append(m.Specifiers, specifier)
	m.ResolvedDeps = append(m.ResolvedDeps, resolvedPath)
	m.DepKind = append(m.DepKind, kind)
	m.DepNamed = append(m.DepNamed, named)
	m.DepNamespace = append(m.DepNamespace, namespace)
}

// MarkTolerated records a dependency specifier that failed resolution but
// was tolerated (dev mode only, spec.md §4.2 step 5).
func (m *Module) MarkTolerated(specifier string) {
	if m.Tolerated == nil {
		m.Tolerated = make(map[string]bool)
	}
	m.Tolerated[specifier] = true
}

// ModuleGraph is the path→Module mapping built by GraphBuilder, keyed by
// canonical path (spec.md §3).
type ModuleGraph struct {
	Modules map[string]*Module
	Entry   string
}

// New returns an empty graph rooted at entry.
func New(entry string) *ModuleGraph {
	return &ModuleGraph{Modules: make(map[string]*Module), Entry: entry}
}

// Get returns the module at path, if present.
func (g *ModuleGraph) Get(path string) (*Module, bool) {
	m, ok := g.Modules[path]
	return m, ok
}

// Put inserts or replaces a module.
func (g *ModuleGraph) Put(m *Module) {
	g.Modules[m.Path] = m
}

// Delete removes path from the graph.
func (g *ModuleGraph) Delete(path string) {
	delete(g.Modules, path)
}

// Len returns the number of modules in the graph.
func (g *ModuleGraph) Len() int {
	return len(g.Modules)
}

// RebuildInverseDeps recomputes every module's InverseDeps set from
// ResolvedDeps in one pass, maintaining the symmetry invariant
// B ∈ A.ResolvedDeps ⇔ A ∈ B.InverseDeps (spec.md §3, §8 invariant 3).
func (g *ModuleGraph) RebuildInverseDeps() {
	for _, m := range g.Modules {
		m.InverseDeps = make(map[string]struct{})
	}
	for path, m := range g.Modules {
		for _, dep := range m.ResolvedDeps {
			if target, ok := g.Modules[dep]; ok {
				target.InverseDeps[path] = struct{}{}
			}
		}
	}
}

// InverseDepPaths returns path's direct inverse dependencies, sorted for
// deterministic output.
func (g *ModuleGraph) InverseDepPaths(path string) []string {
	m, ok := g.Modules[path]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(m.InverseDeps))
	for p := range m.InverseDeps {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Closed reports whether every resolved dependency of every module is
// itself a key in the graph, except those explicitly marked tolerated
// (spec.md §8 invariant 2). Returns the first violating path found.
func (g *ModuleGraph) Closed() (violation string, ok bool) {
	for path, m := range g.Modules {
		for i, dep := range m.ResolvedDeps {
			if _, exists := g.Modules[dep]; !exists {
				if m.Tolerated[m.Specifiers[i]] {
					continue
				}
				return path + " -> " + dep, false
			}
		}
	}
	return "", true
}
