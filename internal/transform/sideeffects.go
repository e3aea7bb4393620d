package transform

import "regexp"

var (
	reGlobalWrite  = regexp.MustCompile(`(?m)^\s*(?:global|window|globalThis)\s*\.\s*[A-Za-z_$]`)
	reConsoleCall  = regexp.MustCompile(`console\s*\.\s*[a-zA-Z]+\s*\(`)
	reTopLevelCall = regexp.MustCompile(`(?m)^\s*[A-Za-z_$][\w$.]*\s*\(`)
)

// HasTopLevelSideEffects heuristically flags module-level statements the
// TreeShaker must treat as observable (spec.md §4.5): assignments to
// global/window/globalThis, console.* calls, and other bare top-level
// calls (including a side-effect-only require()). The regex can't tell a
// genuinely impure call from something like a top-level `if`, so it leans
// toward over-reporting — consistent with "if in doubt, preserve".
func HasTopLevelSideEffects(code []byte) bool {
	src := string(code)
	return reGlobalWrite.MatchString(src) || reConsoleCall.MatchString(src) || reTopLevelCall.MatchString(src)
}
