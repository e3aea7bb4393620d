package reorder

import (
	"testing"

	"github.com/ohah/bungae/internal/graph"
)

func put(g *graph.ModuleGraph, path string, deps ...string) {
	m := &graph.Module{Path: path}
	for _, d := range deps {
		m.AddDependency(d, d)
	}
	g.Put(m)
}

// TestOrder_ChainIsPostOrder covers spec.md §8's S3 scenario: entry
// requires a, a requires b, b requires c. Expect post-order c, b, a, entry.
func TestOrder_ChainIsPostOrder(t *testing.T) {
	g := graph.New("entry")
	put(g, "entry", "a")
	put(g, "a", "b")
	put(g, "b", "c")
	put(g, "c")

	got := Order(g)
	want := []string{"c", "b", "a", "entry"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestOrder_DiamondVisitsEachModuleOnce(t *testing.T) {
	g := graph.New("entry")
	put(g, "entry", "a", "b")
	put(g, "a", "shared")
	put(g, "b", "shared")
	put(g, "shared")

	got := Order(g)
	if len(got) != 4 {
		t.Fatalf("expected 4 modules, got %v", got)
	}
	sharedIdx, aIdx, bIdx, entryIdx := -1, -1, -1, -1
	for i, p := range got {
		switch p {
		case "shared":
			sharedIdx = i
		case "a":
			aIdx = i
		case "b":
			bIdx = i
		case "entry":
			entryIdx = i
		}
	}
	if !(sharedIdx < aIdx && aIdx < entryIdx) {
		t.Fatalf("shared must precede a, a must precede entry: %v", got)
	}
	if !(sharedIdx < bIdx && bIdx < entryIdx) {
		t.Fatalf("shared must precede b, b must precede entry: %v", got)
	}
}

func TestOrder_UnreachableModulesAppendedSorted(t *testing.T) {
	g := graph.New("entry")
	put(g, "entry")
	put(g, "z-unreachable")
	put(g, "a-unreachable")

	got := Order(g)
	want := []string{"entry", "a-unreachable", "z-unreachable"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestOrder_CycleDoesNotInfiniteLoop(t *testing.T) {
	g := graph.New("entry")
	put(g, "entry", "a")
	put(g, "a", "entry")

	got := Order(g)
	if len(got) != 2 {
		t.Fatalf("expected 2 modules, got %v", got)
	}
}
