// Package reorder implements the Reorderer (spec.md §4.4, component C4):
// it turns the unordered ModuleGraph into the post-order DFS sequence the
// Serializer later writes __d() calls in.
package reorder

import (
	"sort"

	"github.com/ohah/bungae/internal/graph"
)

// Order returns every module reachable from g.Entry in post-order DFS,
// visiting each module's ResolvedDeps in insertion order, followed by any
// remaining (unreachable) modules in path-sorted order (spec.md §4.4).
func Order(g *graph.ModuleGraph) []string {
	visited := make(map[string]bool, g.Len())
	out := make([]string, 0, g.Len())

	var visit func(path string)
	visit = func(path string) {
		if visited[path] {
			return
		}
		visited[path] = true
		m, ok := g.Get(path)
		if !ok {
			return
		}
		for _, dep := range m.ResolvedDeps {
			visit(dep)
		}
		out = append(out, path)
	}

	if _, ok := g.Get(g.Entry); ok {
		visit(g.Entry)
	}

	var rest []string
	for path := range g.Modules {
		if !visited[path] {
			rest = append(rest, path)
		}
	}
	sort.Strings(rest)
	out = append(out, rest...)

	return out
}
