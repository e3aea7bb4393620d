// Package treeshake implements the TreeShaker (spec.md §4.5, component
// C5): production-only reachability analysis over a built ModuleGraph that
// decides which modules survive into the bundle.
package treeshake

import (
	"sort"

	"github.com/ohah/bungae/internal/graph"
	"github.com/ohah/bungae/internal/transform"
)

// liveInfo tracks, per module, the used-names/allUsed state the BFS in
// §4.5 step 2 builds up as it discovers new consumers.
type liveInfo struct {
	allUsed bool
	used    map[string]bool
}

func (l *liveInfo) wants(name string) bool { return l.allUsed || l.used[name] }

// union adds names to l.used and/or sets allUsed, reporting whether
// anything actually changed (so the caller knows whether to revisit).
func (l *liveInfo) union(names []string, allUsed bool) bool {
	changed := false
	if allUsed && !l.allUsed {
		l.allUsed = true
		changed = true
	}
	if l.used == nil {
		l.used = make(map[string]bool)
	}
	for _, n := range names {
		if !l.used[n] {
			l.used[n] = true
			changed = true
		}
	}
	return changed
}

// Result is the outcome of Prune: the pruned graph plus the paths that
// were dropped, for callers that want to log what tree-shaking removed.
type Result struct {
	Graph   *graph.ModuleGraph
	Removed []string
}

// Prune applies the TreeShaker to g, rooted at g.Entry. It is a no-op
// (everything preserved) unless enabled is true — callers gate this on
// Config.Experimental.TreeShaking and production mode (spec.md §4.5).
func Prune(g *graph.ModuleGraph, enabled bool) Result {
	if !enabled {
		return Result{Graph: g}
	}

	live := make(map[string]*liveInfo)
	queue := []string{g.Entry}
	live[g.Entry] = &liveInfo{allUsed: true}
	inQueue := map[string]bool{g.Entry: true}

	enqueue := func(path string) {
		if !inQueue[path] {
			inQueue[path] = true
			queue = append(queue, path)
		}
	}

	for len(queue) > 0 {
		path := queue[0]
		queue = queue[1:]
		inQueue[path] = false

		m, ok := g.Get(path)
		if !ok {
			continue
		}
		info := live[path]

		for i, dep := range m.ResolvedDeps {
			if _, ok := g.Get(dep); !ok {
				continue
			}
			kind := transform.KindRequire
			if i < len(m.DepKind) {
				kind = m.DepKind[i]
			}
			var named []string
			if i < len(m.DepNamed) {
				named = m.DepNamed[i]
			}
			namespace := true
			if i < len(m.DepNamespace) {
				namespace = m.DepNamespace[i]
			}

			var (
				changed        bool
				isNew          bool
				contributeNone bool
			)

			if kind == transform.KindExportFrom {
				// re-export: forwards only the subset of dep's names this
				// module's own consumers already asked for (spec.md §4.5
				// step 3), not the raw Named on the edge itself. Until
				// something actually demands a forwarded name, the target
				// isn't live through this edge.
				if namespace {
					depExports, _ := g.Get(dep) // existence already checked above
					if info.allUsed {
						target, isNew := ensureLive(live, dep)
						changed = target.union(nil, true)
						if changed || isNew {
							enqueue(dep)
						}
						continue
					}
					forwarded := intersectOrAll(keys(info.used), depExports.OwnExports)
					if len(forwarded) == 0 {
						contributeNone = true
					} else {
						target, n := ensureLive(live, dep)
						changed = target.union(forwarded, false)
						isNew = n
					}
				} else {
					var forwarded []string
					for _, n := range named {
						if info.wants(n) {
							forwarded = append(forwarded, n)
						}
					}
					if len(forwarded) == 0 {
						contributeNone = true
					} else {
						target, n := ensureLive(live, dep)
						changed = target.union(forwarded, false)
						isNew = n
					}
				}
			} else {
				target, n := ensureLive(live, dep)
				changed = target.union(named, namespace)
				isNew = n
			}

			if contributeNone {
				continue
			}

			if changed || isNew {
				enqueue(dep)
			}
		}
	}

	// Side effects force preservation regardless of name usage (spec.md
	// §4.5): any graph module not already live but carrying an effect
	// becomes live with allUsed, dragging its own forward dependencies
	// along with it (plain reachability, not name-filtered).
	for path, m := range g.Modules {
		if _, ok := live[path]; ok {
			continue
		}
		if m.HasSideEffects || (m.SideEffectsDeclared != nil && *m.SideEffectsDeclared) {
			live[path] = &liveInfo{allUsed: true}
			enqueue(path)
		}
	}
	for len(queue) > 0 {
		path := queue[0]
		queue = queue[1:]
		inQueue[path] = false
		m, ok := g.Get(path)
		if !ok {
			continue
		}
		for _, dep := range m.ResolvedDeps {
			if _, ok := g.Get(dep); !ok {
				continue
			}
			if _, seen := live[dep]; !seen {
				live[dep] = &liveInfo{allUsed: true}
				enqueue(dep)
			}
		}
	}

	pruned := graph.New(g.Entry)
	var removed []string
	for path, m := range g.Modules {
		if _, ok := live[path]; ok {
			pruned.Put(dropEdgesToRemoved(m, live))
		} else {
			removed = append(removed, path)
		}
	}
	sort.Strings(removed)
	pruned.RebuildInverseDeps()
	return Result{Graph: pruned, Removed: removed}
}

// dropEdgesToRemoved strips any dependency edge whose target didn't survive
// pruning, keeping ResolvedDeps/Specifiers/DepKind/DepNamed/DepNamespace
// parallel so the graph's closure invariant still holds afterward.
func dropEdgesToRemoved(m *graph.Module, live map[string]*liveInfo) *graph.Module {
	keepAll := true
	for _, dep := range m.ResolvedDeps {
		if _, ok := live[dep]; !ok {
			keepAll = false
			break
		}
	}
	if keepAll {
		return m
	}

	out := &graph.Module{
		Path:                  m.Path,
		Source:                m.Source,
		Code:                  m.Code,
		SourceMap:             m.SourceMap,
		IsAsset:               m.IsAsset,
		Asset:                 m.Asset,
		Tolerated:             m.Tolerated,
		HasSideEffects:        m.HasSideEffects,
		HasDynamicEscapeHatch: m.HasDynamicEscapeHatch,
		SideEffectsDeclared:   m.SideEffectsDeclared,
	}
	for i, dep := range m.ResolvedDeps {
		if _, ok := live[dep]; !ok {
			continue
		}
		var kind transform.EdgeKind
		if i < len(m.DepKind) {
			kind = m.DepKind[i]
		}
		var named []string
		if i < len(m.DepNamed) {
			named = m.DepNamed[i]
		}
		var namespace bool
		if i < len(m.DepNamespace) {
			namespace = m.DepNamespace[i]
		}
		out.AddDependencyEdge(m.Specifiers[i], dep, kind, named, namespace)
	}
	return out
}

func ensureLive(live map[string]*liveInfo, path string) (*liveInfo, bool) {
	info, ok := live[path]
	if ok {
		return info, false
	}
	info = &liveInfo{used: make(map[string]bool)}
	live[path] = info
	return info, true
}

func keys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// intersectOrAll restricts names to what ownExports actually declares; when
// ownExports is nil (extraction found nothing, e.g. a single `module.exports
// = {...}` object literal), it falls back to trusting the caller's demand
// as-is rather than assuming the target exports nothing.
func intersectOrAll(names []string, ownExports map[string]bool) []string {
	if ownExports == nil {
		return names
	}
	var out []string
	for _, n := range names {
		if ownExports[n] {
			out = append(out, n)
		}
	}
	return out
}
