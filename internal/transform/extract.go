package transform

import (
	"regexp"
	"strings"
)

// EdgeKind classifies how a module referred to a dependency, which the
// TreeShaker (C5) needs to distinguish static uses from dynamic escape
// hatches (spec.md §4.5).
type EdgeKind int

const (
	KindRequire EdgeKind = iota
	KindImport
	KindExportFrom
	KindDynamicImport
)

// Edge is one outgoing dependency reference extracted from transformed
// code, grounded on the teacher's esmdev/imports.go specifier scanning,
// generalized to classify static vs. dynamic and namespace vs. named use.
type Edge struct {
	Specifier string
	Kind      EdgeKind
	// Named holds the imported binding names for `import {a, b} from '...'`,
	// `export {a, b} from '...'` and `const {a, b} = require('...')`, and
	// ["default"] for a default import; empty for namespace imports and
	// bare require().
	Named []string
	// Namespace is true for `import * as ns from '...'`, bare `require()`
	// without destructuring, and `export * from '...'`.
	Namespace bool
	// Dynamic is true for non-literal require()/import() call arguments.
	// Such an edge has an empty Specifier and no target; the GraphBuilder
	// records it as Module.HasDynamicEscapeHatch, and the TreeShaker does
	// not read that flag, so no module is marked allUsed because of it.
	Dynamic bool
}

var (
	reRequireLit     = regexp.MustCompile(`require\s*\(\s*['"]([^'"]+)['"]\s*\)`)
	reRequireDyn     = regexp.MustCompile(`require\s*\(\s*(` + "`" + `[^` + "`" + `]*\$\{[^)]*\)`)
	reImportDyn      = regexp.MustCompile(`import\s*\(\s*['"]([^'"]+)['"]\s*\)`)
	reImportDynLit   = regexp.MustCompile(`import\s*\(\s*(` + "`" + `[^` + "`" + `]*\$\{|[A-Za-z_$][\w$.]*\s*\))`)
	reImportNS       = regexp.MustCompile(`import\s*\*\s*as\s+[A-Za-z_$][\w$]*\s+from\s+['"]([^'"]+)['"]`)
	reImportNamed    = regexp.MustCompile(`import\s*\{([^}]*)\}\s*from\s+['"]([^'"]+)['"]`)
	reImportDefault  = regexp.MustCompile(`import\s+[A-Za-z_$][\w$]*\s*(?:,\s*\{[^}]*\})?\s+from\s+['"]([^'"]+)['"]`)
	reImportBare     = regexp.MustCompile(`(?m)^\s*import\s+['"]([^'"]+)['"]`)
	reExportFromNS   = regexp.MustCompile(`export\s*\*\s*from\s+['"]([^'"]+)['"]`)
	reExportFromNmAs = regexp.MustCompile(`export\s*\*\s+as\s+[A-Za-z_$][\w$]*\s+from\s+['"]([^'"]+)['"]`)
	reExportFromNmd  = regexp.MustCompile(`export\s*\{([^}]*)\}\s*from\s+['"]([^'"]+)['"]`)
	reBareRequire    = regexp.MustCompile(`(?:const|let|var)\s+([A-Za-z_$][\w$]*)\s*=\s*require\s*\(\s*['"]([^'"]+)['"]\s*\)`)
	reDestructureReq = regexp.MustCompile(`(?:const|let|var)\s*\{([^}]*)\}\s*=\s*require\s*\(\s*['"]([^'"]+)['"]\s*\)`)
)

// ExtractDependencies scans transformed JS source for static require(...),
// import/export-from, and dynamic import(...) references, classifying
// each into an Edge (spec.md §4.2 step 4, §9's dependency-extraction
// capability). Extraction is regex-based rather than a full parse: the
// core only needs specifiers and the shape of how they were consumed, not
// a complete AST (which stays inside the opaque Transformer boundary).
func ExtractDependencies(code []byte) []Edge {
	src := string(code)
	var edges []Edge
	seen := make(map[string]bool)

	add := func(e Edge) {
		key := e.Specifier + "|" + specKind(e)
		if seen[key] {
			return
		}
		seen[key] = true
		edges = append(edges, e)
	}

	for _, m := range reImportNamed.FindAllStringSubmatch(src, -1) {
		add(Edge{Specifier: m[2], Kind: KindImport, Named: splitNames(m[1])})
	}
	for _, m := range reImportNS.FindAllStringSubmatch(src, -1) {
		add(Edge{Specifier: m[1], Kind: KindImport, Namespace: true})
	}
	for _, m := range reImportDefault.FindAllStringSubmatch(src, -1) {
		add(Edge{Specifier: m[1], Kind: KindImport, Named: []string{"default"}})
	}
	for _, m := range reImportBare.FindAllStringSubmatch(src, -1) {
		add(Edge{Specifier: m[1], Kind: KindImport})
	}

	for _, m := range reExportFromNmd.FindAllStringSubmatch(src, -1) {
		add(Edge{Specifier: m[2], Kind: KindExportFrom, Named: splitNames(m[1])})
	}
	for _, m := range reExportFromNS.FindAllStringSubmatch(src, -1) {
		add(Edge{Specifier: m[1], Kind: KindExportFrom, Namespace: true})
	}
	for _, m := range reExportFromNmAs.FindAllStringSubmatch(src, -1) {
		add(Edge{Specifier: m[1], Kind: KindExportFrom, Namespace: true})
	}

	for _, m := range reDestructureReq.FindAllStringSubmatch(src, -1) {
		add(Edge{Specifier: m[2], Kind: KindRequire, Named: splitNames(m[1])})
	}
	for _, m := range reBareRequire.FindAllStringSubmatch(src, -1) {
		add(Edge{Specifier: m[2], Kind: KindRequire, Namespace: true})
	}
	for _, m := range reRequireLit.FindAllStringSubmatch(src, -1) {
		add(Edge{Specifier: m[1], Kind: KindRequire, Namespace: true})
	}

	for _, m := range reImportDyn.FindAllStringSubmatch(src, -1) {
		add(Edge{Specifier: m[1], Kind: KindDynamicImport, Namespace: true})
	}

	if reRequireDyn.MatchString(src) || reImportDynLit.MatchString(src) {
		// A non-literal require()/import() call exists somewhere in this
		// module; its target can't be identified from text alone, so the
		// caller (GraphBuilder) can't add a graph edge for it, but the
		// TreeShaker still needs to know this module contains a dynamic
		// escape hatch (spec.md §4.5) — surfaced via the Dynamic marker on
		// a specifier-less edge.
		add(Edge{Specifier: "", Kind: KindDynamicImport, Dynamic: true})
	}

	return edges
}

func specKind(e Edge) string {
	switch e.Kind {
	case KindRequire:
		return "require"
	case KindImport:
		return "import"
	case KindExportFrom:
		return "export"
	default:
		return "dynamic"
	}
}

func splitNames(list string) []string {
	var out []string
	cur := ""
	depth := 0
	flush := func() {
		name := strings.TrimSpace(cur)
		if name == "" {
			cur = ""
			return
		}
		// "foo as bar" -> local binding is bar, but the *used* name on the
		// source module is foo.
		if idx := strings.Index(name, " as "); idx >= 0 {
			name = strings.TrimSpace(name[:idx])
		}
		if name != "" {
			out = append(out, name)
		}
		cur = ""
	}
	for _, r := range list {
		switch r {
		case '{':
			depth++
			cur += string(r)
		case '}':
			depth--
			cur += string(r)
		case ',':
			if depth == 0 {
				flush()
				continue
			}
			cur += string(r)
		default:
			cur += string(r)
		}
	}
	flush()
	return out
}
