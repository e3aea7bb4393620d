package treeshake

import (
	"testing"

	"github.com/ohah/bungae/internal/graph"
	"github.com/ohah/bungae/internal/transform"
)

func namedImport(m *graph.Module, specifier, resolved string, names ...string) {
	m.AddDependencyEdge(specifier, resolved, transform.KindImport, names, false)
}

func namespaceImport(m *graph.Module, specifier, resolved string) {
	m.AddDependencyEdge(specifier, resolved, transform.KindImport, nil, true)
}

func reExportNamed(m *graph.Module, specifier, resolved string, names ...string) {
	m.AddDependencyEdge(specifier, resolved, transform.KindExportFrom, names, false)
}

func reExportAll(m *graph.Module, specifier, resolved string) {
	m.AddDependencyEdge(specifier, resolved, transform.KindExportFrom, nil, true)
}

// TestPrune_Disabled covers the no-op path used in dev mode.
func TestPrune_Disabled(t *testing.T) {
	g := graph.New("entry")
	g.Put(&graph.Module{Path: "entry"})
	result := Prune(g, false)
	if result.Graph != g {
		t.Fatalf("expected disabled Prune to return the same graph unchanged")
	}
	if len(result.Removed) != 0 {
		t.Fatalf("expected nothing removed when disabled")
	}
}

// TestPrune_DropsUnusedReExport covers spec.md §4.5/§8 S4-style behavior
// via a re-export chain: barrel.js re-exports from both used.js and
// unused.js; entry only ever consumes a name from used.js, so unused.js
// (no side effects) should be pruned even though it was structurally
// present in the graph GraphBuilder produced.
func TestPrune_DropsUnusedReExport(t *testing.T) {
	g := graph.New("entry")

	entry := &graph.Module{Path: "entry"}
	namedImport(entry, "./barrel", "barrel", "foo")
	g.Put(entry)

	barrel := &graph.Module{Path: "barrel"}
	reExportAll(barrel, "./used", "used")
	reExportAll(barrel, "./unused", "unused")
	g.Put(barrel)

	used := &graph.Module{Path: "used", OwnExports: map[string]bool{"foo": true}}
	g.Put(used)

	unused := &graph.Module{Path: "unused", OwnExports: map[string]bool{"bar": true}}
	g.Put(unused)

	result := Prune(g, true)

	if _, ok := result.Graph.Get("unused"); ok {
		t.Fatalf("expected unused.js to be pruned")
	}
	if _, ok := result.Graph.Get("used"); !ok {
		t.Fatalf("expected used.js to survive")
	}
	if _, ok := result.Graph.Get("barrel"); !ok {
		t.Fatalf("expected barrel.js to survive")
	}
	found := false
	for _, r := range result.Removed {
		if r == "unused" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected Removed to list unused, got %v", result.Removed)
	}
}

// TestPrune_NamespaceImportPreservesWholeModule covers the S4 clause:
// `import * as X from './used'` preserves the module even if only one
// name is ever consumed downstream of it.
func TestPrune_NamespaceImportPreservesWholeModule(t *testing.T) {
	g := graph.New("entry")

	entry := &graph.Module{Path: "entry"}
	namespaceImport(entry, "./used", "used")
	g.Put(entry)

	used := &graph.Module{Path: "used"}
	g.Put(used)

	result := Prune(g, true)
	m, ok := result.Graph.Get("used")
	if !ok {
		t.Fatalf("expected used.js to survive a namespace import")
	}
	_ = m
}

// TestPrune_SideEffectModulePreservedEvenIfUnreachableByName covers the
// side-effect preservation rule (spec.md §4.5): a re-exported module whose
// names are never consumed is still kept if it has an observable top-level
// effect.
func TestPrune_SideEffectModulePreservedEvenIfUnreachableByName(t *testing.T) {
	g := graph.New("entry")

	entry := &graph.Module{Path: "entry"}
	namedImport(entry, "./barrel", "barrel", "foo")
	g.Put(entry)

	barrel := &graph.Module{Path: "barrel"}
	reExportNamed(barrel, "./used", "used", "foo")
	reExportAll(barrel, "./polyfill", "polyfill")
	g.Put(barrel)

	used := &graph.Module{Path: "used"}
	g.Put(used)

	// OwnExports deliberately excludes "foo" so the re-export forwarding
	// contributes nothing — polyfill.js only survives via the side-effect
	// preservation rule, not through name-demand forwarding.
	polyfill := &graph.Module{Path: "polyfill", HasSideEffects: true, OwnExports: map[string]bool{"other": true}}
	g.Put(polyfill)

	result := Prune(g, true)
	if _, ok := result.Graph.Get("polyfill"); !ok {
		t.Fatalf("expected polyfill.js to survive due to side effects")
	}
}

func TestPrune_ClosureHoldsAfterPruning(t *testing.T) {
	g := graph.New("entry")

	entry := &graph.Module{Path: "entry"}
	namedImport(entry, "./barrel", "barrel", "foo")
	g.Put(entry)

	barrel := &graph.Module{Path: "barrel"}
	reExportAll(barrel, "./used", "used")
	reExportAll(barrel, "./unused", "unused")
	g.Put(barrel)

	g.Put(&graph.Module{Path: "used"})
	g.Put(&graph.Module{Path: "unused"})

	result := Prune(g, true)
	if violation, ok := result.Graph.Closed(); !ok {
		t.Fatalf("pruned graph not closed: %s", violation)
	}
}
