package serializer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/ohah/bungae/internal/config"
	"github.com/ohah/bungae/internal/graph"
	"github.com/ohah/bungae/internal/moduleid"
	"github.com/ohah/bungae/internal/transform"
)

// SerializeForHMR wraps a single module the way an `update`/`update-start`
// cycle requires (spec.md §4.7): the usual __d(...) call, with the fifth
// inverseDepsById parameter populated, followed by sourceMappingURL and
// sourceURL comments.
func SerializeForHMR(m *graph.Module, g *graph.ModuleGraph, ids *moduleid.Factory, cfg config.Config, inverseDepsById map[int][]int) string {
	wrapped := wrapModule(m, g, ids, cfg, inverseDepsById)
	name := m.Path
	if cfg.Root != "" {
		if rel, err := relPath(cfg.Root, m.Path); err == nil {
			name = rel
		}
	}
	return fmt.Sprintf("%s\n//# sourceMappingURL=%s.map\n//# sourceURL=%s", wrapped, name, name)
}

// wrapModule produces the __d(...) call for m, rewriting its body so
// import/export/require references point at dependencyMap slots instead
// of raw specifiers (spec.md §4.6's wire format).
func wrapModule(m *graph.Module, g *graph.ModuleGraph, ids *moduleid.Factory, cfg config.Config, inverseDepsById map[int][]int) []byte {
	id := ids.IDFor(m.Path)

	depIds := make([]int, len(m.ResolvedDeps))
	for i, dep := range m.ResolvedDeps {
		depIds[i] = ids.IDFor(dep)
	}

	body := m.Code
	if !m.IsAsset {
		body = rewriteBody(m)
	}

	verboseName := m.Path
	if cfg.Root != "" {
		if rel, err := relPath(cfg.Root, m.Path); err == nil {
			verboseName = rel
		}
	}

	return wrapFactory(id, body, depIds, verboseName, inverseDepsById)
}

func wrapFactory(id int, body []byte, depIds []int, verboseName string, inverseDepsById map[int][]int) []byte {
	var buf bytes.Buffer
	buf.WriteString("__d(function(global, _$$_REQUIRE, _$$_IMPORT_DEFAULT, _$$_IMPORT_ALL, module, exports, dependencyMap){\n")
	buf.Write(body)
	buf.WriteString("\n}, ")
	fmt.Fprintf(&buf, "%d, [", id)
	for i, d := range depIds {
		if i > 0 {
			buf.WriteString(", ")
		}
		fmt.Fprintf(&buf, "%d", d)
	}
	buf.WriteString("], ")
	nameJSON, _ := json.Marshal(verboseName)
	buf.Write(nameJSON)
	if inverseDepsById != nil {
		buf.WriteString(", ")
		buf.Write(inverseDepsJSON(inverseDepsById))
	}
	buf.WriteString(");")
	return buf.Bytes()
}

func inverseDepsJSON(m map[int][]int) []byte {
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, id := range ids {
		if i > 0 {
			buf.WriteByte(',')
		}
		fmt.Fprintf(&buf, "%q:", fmt.Sprint(id))
		deps := append([]int(nil), m[id]...)
		sort.Ints(deps)
		depsJSON, _ := json.Marshal(deps)
		buf.Write(depsJSON)
	}
	buf.WriteByte('}')
	return buf.Bytes()
}

var (
	reWrapImportNamed   = regexp.MustCompile(`import\s*\{([^}]*)\}\s*from\s*(['"])([^'"]+)['"]\s*;?`)
	reWrapImportNS      = regexp.MustCompile(`import\s*\*\s*as\s+([A-Za-z_$][\w$]*)\s+from\s*(['"])([^'"]+)['"]\s*;?`)
	reWrapImportDefault = regexp.MustCompile(`import\s+([A-Za-z_$][\w$]*)\s+from\s*(['"])([^'"]+)['"]\s*;?`)
	reWrapImportBare    = regexp.MustCompile(`(?m)^\s*import\s*(['"])([^'"]+)['"]\s*;?`)
	reWrapExportFromNmd = regexp.MustCompile(`export\s*\{([^}]*)\}\s*from\s*(['"])([^'"]+)['"]\s*;?`)
	reWrapExportFromAll = regexp.MustCompile(`export\s*\*\s*from\s*(['"])([^'"]+)['"]\s*;?`)
	reWrapRequireLit    = regexp.MustCompile(`require\s*\(\s*(['"])([^'"]+)['"]\s*\)`)
)

// rewriteBody replaces the recognizable import/export/require forms in
// m.Code with calls against dependencyMap, keyed by each specifier's index
// in m.Specifiers/m.ResolvedDeps (spec.md §4.6). Forms it doesn't
// recognize (template-literal or computed specifiers) are left untouched —
// those never produced a graph edge in the first place (they're the
// dynamic escape hatches handled entirely at the TreeShaker level).
func rewriteBody(m *graph.Module) []byte {
	src := string(m.Code)

	find := func(specifier string, kind transform.EdgeKind) (int, bool) {
		for i, s := range m.Specifiers {
			if s != specifier {
				continue
			}
			if i < len(m.DepKind) && m.DepKind[i] == kind {
				return i, true
			}
		}
		return 0, false
	}

	src = reWrapImportNamed.ReplaceAllStringFunc(src, func(match string) string {
		sub := reWrapImportNamed.FindStringSubmatch(match)
		names, spec := sub[1], sub[3]
		i, ok := find(spec, transform.KindImport)
		if !ok {
			return match
		}
		return fmt.Sprintf("var {%s} = _$$_REQUIRE(dependencyMap[%d]);", names, i)
	})
	src = reWrapImportNS.ReplaceAllStringFunc(src, func(match string) string {
		sub := reWrapImportNS.FindStringSubmatch(match)
		local, spec := sub[1], sub[3]
		i, ok := find(spec, transform.KindImport)
		if !ok {
			return match
		}
		return fmt.Sprintf("var %s = _$$_IMPORT_ALL(dependencyMap[%d]);", local, i)
	})
	src = reWrapImportDefault.ReplaceAllStringFunc(src, func(match string) string {
		sub := reWrapImportDefault.FindStringSubmatch(match)
		local, spec := sub[1], sub[3]
		i, ok := find(spec, transform.KindImport)
		if !ok {
			return match
		}
		return fmt.Sprintf("var %s = _$$_IMPORT_DEFAULT(dependencyMap[%d]);", local, i)
	})
	src = reWrapImportBare.ReplaceAllStringFunc(src, func(match string) string {
		sub := reWrapImportBare.FindStringSubmatch(match)
		spec := sub[2]
		i, ok := find(spec, transform.KindImport)
		if !ok {
			return match
		}
		return fmt.Sprintf("_$$_REQUIRE(dependencyMap[%d]);", i)
	})
	src = reWrapExportFromNmd.ReplaceAllStringFunc(src, func(match string) string {
		sub := reWrapExportFromNmd.FindStringSubmatch(match)
		names, spec := sub[1], sub[3]
		i, ok := find(spec, transform.KindExportFrom)
		if !ok {
			return match
		}
		return fmt.Sprintf("(function(_m){ %s })(_$$_REQUIRE(dependencyMap[%d]));", forwardAssignments(names), i)
	})
	src = reWrapExportFromAll.ReplaceAllStringFunc(src, func(match string) string {
		sub := reWrapExportFromAll.FindStringSubmatch(match)
		spec := sub[2]
		i, ok := find(spec, transform.KindExportFrom)
		if !ok {
			return match
		}
		return fmt.Sprintf("(function(_m){ Object.keys(_m).forEach(function(k){ if (k !== 'default') exports[k] = _m[k]; }); })(_$$_REQUIRE(dependencyMap[%d]));", i)
	})
	src = reWrapRequireLit.ReplaceAllStringFunc(src, func(match string) string {
		sub := reWrapRequireLit.FindStringSubmatch(match)
		spec := sub[2]
		if i, ok := find(spec, transform.KindRequire); ok {
			return fmt.Sprintf("_$$_REQUIRE(dependencyMap[%d])", i)
		}
		if i, ok := find(spec, transform.KindDynamicImport); ok {
			return fmt.Sprintf("_$$_REQUIRE(dependencyMap[%d])", i)
		}
		return match
	})

	return []byte(src)
}

// forwardAssignments turns "a, b as c" into "exports.a = _m.a; exports.c = _m.b;"
func forwardAssignments(list string) string {
	var out bytes.Buffer
	for _, pair := range strings.Split(list, ",") {
		local, source := pair, pair
		if idx := strings.Index(pair, " as "); idx >= 0 {
			source = strings.TrimSpace(pair[:idx])
			local = strings.TrimSpace(pair[idx+4:])
		} else {
			local = strings.TrimSpace(pair)
			source = local
		}
		if local == "" {
			continue
		}
		fmt.Fprintf(&out, "exports.%s = _m.%s; ", local, source)
	}
	return out.String()
}

func relPath(root, path string) (string, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}
