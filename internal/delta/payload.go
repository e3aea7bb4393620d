package delta

import (
	"encoding/json"
	"sort"

	"github.com/ohah/bungae/internal/config"
	"github.com/ohah/bungae/internal/graph"
	"github.com/ohah/bungae/internal/serializer"
)

// UpdateMessage is the `{"type":"update", ...}` frame sent down the hot
// socket after a rebuild (spec.md §4.7/§4.8).
type UpdateMessage struct {
	Type string     `json:"type"`
	Body UpdateBody `json:"body"`
}

type UpdateBody struct {
	RevisionID      string   `json:"revisionId"`
	IsInitialUpdate bool     `json:"isInitialUpdate"`
	Added           []string `json:"added"`
	Modified        []string `json:"modified"`
	Deleted         []int    `json:"deleted"`
}

// inverseDepsByID builds the id->[inverse dep ids] map a wrapped module in
// an update carries: one entry for every path in start's inverse-dependency
// closure (InverseDepClosure), so the runtime can walk upward from start to
// an accepting boundary.
func inverseDepsByID(g *graph.ModuleGraph, ids idPeeker, start string) map[int][]int {
	closure := InverseDepClosure(g, start)
	out := make(map[int][]int, len(closure))
	for path, invs := range closure {
		id, ok := ids.Peek(path)
		if !ok {
			continue
		}
		depIDs := make([]int, 0, len(invs))
		for _, dep := range invs {
			if depID, ok := ids.Peek(dep); ok {
				depIDs = append(depIDs, depID)
			}
		}
		out[id] = depIDs
	}
	return out
}

type idPeeker interface {
	Peek(path string) (int, bool)
}

// BuildUpdateMessage assembles the `update` frame for state/delta the way
// spec.md §4.7 describes: every added/modified module re-wrapped with
// SerializeForHMR (carrying the fresh inverse-dependency map), every
// deleted module reported by id only.
func BuildUpdateMessage(state *BuildState, d *Delta, cfg config.Config) ([]byte, error) {
	return buildUpdateMessage(state, d, cfg, false)
}

// BuildInitialUpdateMessage wraps every module in state's graph as an
// `added` entry with isInitialUpdate:true — the payload a freshly
// registered /hot client receives in place of a full bundle fetch
// (spec.md §4.7's "isInitialUpdate: true" case).
func BuildInitialUpdateMessage(state *BuildState, cfg config.Config) ([]byte, error) {
	d := &Delta{Added: state.Graph.Modules, Modified: map[string]*graph.Module{}, Deleted: map[string]bool{}}
	return buildUpdateMessage(state, d, cfg, true)
}

func buildUpdateMessage(state *BuildState, d *Delta, cfg config.Config, isInitial bool) ([]byte, error) {
	added := make([]string, 0, len(d.Added))
	for _, path := range sortedKeys(d.Added) {
		invDeps := inverseDepsByID(state.Graph, state.Ids, path)
		added = append(added, serializer.SerializeForHMR(d.Added[path], state.Graph, state.Ids, cfg, invDeps))
	}
	modified := make([]string, 0, len(d.Modified))
	for _, path := range sortedKeys(d.Modified) {
		invDeps := inverseDepsByID(state.Graph, state.Ids, path)
		modified = append(modified, serializer.SerializeForHMR(d.Modified[path], state.Graph, state.Ids, cfg, invDeps))
	}
	deleted := make([]int, 0, len(d.Deleted))
	for path := range d.Deleted {
		if id, ok := state.Ids.Peek(path); ok {
			deleted = append(deleted, id)
		}
	}
	sort.Ints(deleted)

	msg := UpdateMessage{
		Type: "update",
		Body: UpdateBody{
			RevisionID:      state.RevisionID,
			IsInitialUpdate: isInitial,
			Added:           added,
			Modified:        modified,
			Deleted:         deleted,
		},
	}
	return json.Marshal(msg)
}

func sortedKeys(m map[string]*graph.Module) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
