package transform

import "regexp"

var (
	reExportDecl = regexp.MustCompile(`export\s+(?:const|let|var|function\*?|class)\s+([A-Za-z_$][\w$]*)`)
	// The immediate ';' after the closing brace rules out the "export { a }
	// from 'x'" re-export form, which has a "from ..." clause in between.
	reExportList    = regexp.MustCompile(`export\s*\{([^}]*)\}\s*;`)
	reCJSExportProp = regexp.MustCompile(`(?:module\.exports|exports)\s*\.\s*([A-Za-z_$][\w$]*)\s*=`)
)

// ExtractOwnExports returns the set of names a module declares as its own
// named exports — local `export const/function/class`, a bare `export {
// ... }` list (not the "from" form, which is a re-export), and CJS
// `exports.x = ...` / `module.exports.x = ...` assignments. Used by the
// TreeShaker (spec.md §4.5) to tell which of a consumer's demanded names an
// `export * from` target can actually satisfy. A nil/empty result means
// the extractor found nothing — callers should fall back to a conservative
// "forward everything" policy rather than assume the module is empty.
func ExtractOwnExports(code []byte) map[string]bool {
	src := string(code)
	out := make(map[string]bool)

	for _, m := range reExportDecl.FindAllStringSubmatch(src, -1) {
		out[m[1]] = true
	}
	for _, loc := range reExportList.FindAllStringSubmatchIndex(src, -1) {
		for _, n := range splitNames(src[loc[2]:loc[3]]) {
			out[n] = true
		}
	}
	for _, m := range reCJSExportProp.FindAllStringSubmatch(src, -1) {
		out[m[1]] = true
	}

	if len(out) == 0 {
		return nil
	}
	return out
}
