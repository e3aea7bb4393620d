// Package transform defines the Transformer capability (spec.md §6): an
// external collaborator that parses and lowers a single source file. The
// core treats its output as an opaque handle; bungae's default
// implementation is backed by esbuild, mirroring how the teacher repo
// uses esbuild for exactly this job (parse, strip JSX/TS, inline
// platform/dev constants).
package transform

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

// Input is what the core hands the Transformer for a single module.
type Input struct {
	SourceBytes []byte
	FilePath    string
	Platform    string
	Dev         bool
	EntryPath   string
}

// AST is the opaque handle the Transformer returns. The core never
// inspects its internals beyond passing Code through dependency
// extraction (transform.ExtractDependencies) and the Serializer.
type AST struct {
	Code []byte
	// Map is the per-module source map JSON emitted by the Transformer, or
	// empty if none was produced (spec.md §9, Open Question (b)).
	Map string
}

// FailedError wraps a Transformer failure for a specific file, matching
// spec.md §7's TransformFailed error kind.
type FailedError struct {
	FilePath string
	Detail   string
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("transform failed for %s: %s", e.FilePath, e.Detail)
}

// Transformer is the external capability boundary. Implementers must
// honor the declared platform/dev flags and resolve their own
// configuration relative to project root; they may add dependency edges
// of their own (e.g. automatic JSX runtime imports) as long as those
// edges show up in the returned Code, since extraction only looks there.
type Transformer interface {
	Transform(Input) (*AST, error)
}

// ESBuildTransformer is the default Transformer, backed by
// github.com/evanw/esbuild/pkg/api.Transform. It performs syntax
// lowering (JSX/TS stripping) and inlines the dev flag and platform
// identifier as global constant replacements, exactly the job spec.md §6
// assigns the external parser/transformer pipeline.
type ESBuildTransformer struct {
	// ExtraDefines are additional `key=value` JS-source substitutions
	// merged under process.env.NODE_ENV/__DEV__/platform (config's
	// serializer.extraVars, spec.md §9).
	ExtraDefines map[string]string
}

// loaderFor chooses an esbuild loader from a file's extension, grounded on
// the teacher's Loaders table (common/common.go).
func loaderFor(filePath string) api.Loader {
	switch strings.TrimPrefix(filepath.Ext(filePath), ".") {
	case "ts":
		return api.LoaderTS
	case "tsx":
		return api.LoaderTSX
	case "jsx":
		return api.LoaderJSX
	case "json":
		return api.LoaderJSON
	default:
		return api.LoaderJS
	}
}

// Transform parses+lowers a single file via esbuild, inlining __DEV__,
// process.env.NODE_ENV, and a platform-identifier constant the way
// Metro-class runtimes expect (spec.md §6).
func (t *ESBuildTransformer) Transform(in Input) (*AST, error) {
	nodeEnv := "production"
	if in.Dev {
		nodeEnv = "development"
	}
	define := map[string]string{
		"__DEV__":               fmt.Sprintf("%t", in.Dev),
		"process.env.NODE_ENV":  fmt.Sprintf("%q", nodeEnv),
		"global.__PLATFORM__":   fmt.Sprintf("%q", in.Platform),
	}
	for k, v := range t.ExtraDefines {
		if _, ok := define[k]; !ok {
			define[k] = v
		}
	}

	// Format is deliberately left unset: esbuild then only lowers syntax
	// (JSX/TS, target downleveling) without rewriting import/export into
	// CJS interop helpers, which would hide the specifiers the core's
	// regex-based dependency extraction looks for.
	result := api.Transform(string(in.SourceBytes), api.TransformOptions{
		Loader:         loaderFor(in.FilePath),
		Sourcefile:     in.FilePath,
		Define:         define,
		Sourcemap:      api.SourceMapExternal,
		SourcesContent: api.SourcesContentInclude,
		LogLevel:       api.LogLevelSilent,
		Target:         api.ESNext,
	})
	if len(result.Errors) > 0 {
		return nil, &FailedError{FilePath: in.FilePath, Detail: result.Errors[0].Text}
	}

	return &AST{Code: result.Code, Map: string(result.Map)}, nil
}
