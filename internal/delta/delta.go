// Package delta implements the DeltaEngine (spec.md §4.7, component C7):
// it owns the current BuildState for one platform, rebuilds it whenever
// the watcher reports changed paths, and reports what changed as an
// added/modified/deleted Delta so the dev server can push an `update`
// message without re-sending the whole bundle.
package delta

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/ohah/bungae/internal/config"
	"github.com/ohah/bungae/internal/graph"
	"github.com/ohah/bungae/internal/moduleid"
	"github.com/ohah/bungae/internal/reorder"
	"github.com/ohah/bungae/internal/resolver"
	"github.com/ohah/bungae/internal/transform"
	"github.com/ohah/bungae/internal/treeshake"
)

// BuildState is the DeltaEngine's notion of "what the client has" for one
// platform: a graph, the ModuleIdFactory that assigned it ids, the
// revision that produced it, and the order the Serializer last used
// (needed to re-wrap individual modules for an HMR payload).
type BuildState struct {
	Graph      *graph.ModuleGraph
	Ids        *moduleid.Factory
	Order      []string
	RevisionID string

	hashes map[string]string
}

// Delta is the set of modules that changed between two BuildStates,
// keyed by canonical path (spec.md §4.7).
type Delta struct {
	Added    map[string]*graph.Module
	Modified map[string]*graph.Module
	Deleted  map[string]bool
}

func (d *Delta) IsEmpty() bool {
	return len(d.Added) == 0 && len(d.Modified) == 0 && len(d.Deleted) == 0
}

// Engine owns the collaborators needed to re-run the graph/treeshake
// stages for one platform's entry point. It holds no mutable state of its
// own beyond a mutex serializing rebuilds — the single-writer-per-platform
// rule spec.md §4.7 calls for lives in the caller (one Engine instance per
// platform, never shared).
type Engine struct {
	Config      config.Config
	Resolver    *resolver.Resolver
	Transformer transform.Transformer
	ImageProbe  func(path string) (int, int)

	mu sync.Mutex
}

// InitialBuild produces the first BuildState for entry, the one a
// freshly-registered client receives as its `isInitialUpdate: true`
// payload.
func (e *Engine) InitialBuild(entry string) (*BuildState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	g, err := e.build(entry)
	if err != nil {
		return nil, err
	}
	ids := moduleid.New()
	order := reorder.Order(g)
	assignIds(order, ids)

	return &BuildState{
		Graph:      g,
		Ids:        ids,
		Order:      order,
		RevisionID: newRevisionID(),
		hashes:     hashAll(g),
	}, nil
}

// Rebuild re-runs the graph/treeshake pipeline from prev's entry point and
// diffs the result against prev, content-hash by content-hash, to produce
// the next BuildState plus the Delta that got it there. The
// ModuleIdFactory is carried over unchanged, so ids a connected client has
// already observed remain valid across the rebuild (spec.md §4.3, §4.7).
//
// changedPaths is advisory (used only for the caller's own logging); the
// diff itself is always computed by comparing the freshly built graph
// against prev's hashes, which is the full-rebuild mode spec.md's data
// model calls out as a legitimate fallback — it only promises the
// ModuleIdFactory is swapped on that path, not that incremental builds
// never re-walk the whole graph.
func (e *Engine) Rebuild(prev *BuildState, changedPaths []string) (*BuildState, *Delta, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	newGraph, err := e.build(prev.Graph.Entry)
	if err != nil {
		return nil, nil, err
	}
	order := reorder.Order(newGraph)
	assignIds(order, prev.Ids)

	newHashes := hashAll(newGraph)
	d := &Delta{
		Added:    make(map[string]*graph.Module),
		Modified: make(map[string]*graph.Module),
		Deleted:  make(map[string]bool),
	}

	for path, m := range newGraph.Modules {
		oldHash, existed := prev.hashes[path]
		if !existed {
			d.Added[path] = m
			continue
		}
		if oldHash != newHashes[path] {
			d.Modified[path] = m
		}
	}
	for path := range prev.hashes {
		if _, ok := newGraph.Modules[path]; !ok {
			d.Deleted[path] = true
		}
	}

	next := &BuildState{
		Graph:      newGraph,
		Ids:        prev.Ids,
		Order:      order,
		RevisionID: newRevisionID(),
		hashes:     newHashes,
	}
	return next, d, nil
}

func (e *Engine) build(entry string) (*graph.ModuleGraph, error) {
	b := &graph.Builder{
		Config:      e.Config,
		Resolver:    e.Resolver,
		Transformer: e.Transformer,
		ImageProbe:  e.ImageProbe,
	}
	g, err := b.Build(entry)
	if err != nil {
		return nil, err
	}
	result := treeshake.Prune(g, e.Config.Experimental.TreeShaking)
	return result.Graph, nil
}

// assignIds walks order (already a valid post-order traversal) and assigns
// every module an id, so dependencies of a changed module that didn't
// exist in the prior build get one before any Serializer call tries to
// read it back with Peek.
func assignIds(order []string, ids *moduleid.Factory) {
	for _, path := range order {
		ids.IDFor(path)
	}
}

// InverseDepClosure returns, for every path reachable from start by
// following the inverse-dependency relation (including start itself), that
// path's own direct inverse-dependency list. This is what the DeltaEngine
// walks to decide how far an edit must propagate before it can stop at a
// module boundary that doesn't itself need re-evaluating (spec.md §4.7).
func InverseDepClosure(g *graph.ModuleGraph, start string) map[string][]string {
	out := make(map[string][]string)
	visited := map[string]bool{}
	queue := []string{start}
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		if visited[p] {
			continue
		}
		visited[p] = true
		invs := g.InverseDepPaths(p)
		out[p] = invs
		for _, inv := range invs {
			if !visited[inv] {
				queue = append(queue, inv)
			}
		}
	}
	return out
}

// hashModule computes the content hash spec.md §4.7 uses to decide whether
// a module actually changed: sha256(transformed code || sorted resolved
// deps), truncated to 16 hex characters — the same truncation
// graph.hashFileContents uses for asset hashes.
func hashModule(m *graph.Module) string {
	h := sha256.New()
	h.Write(m.Code)
	deps := append([]string(nil), m.ResolvedDeps...)
	sort.Strings(deps)
	for _, d := range deps {
		h.Write([]byte(d))
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

func hashAll(g *graph.ModuleGraph) map[string]string {
	out := make(map[string]string, g.Len())
	for path, m := range g.Modules {
		out[path] = hashModule(m)
	}
	return out
}

func newRevisionID() string {
	return uuid.NewString()
}
