// Package resolver maps a specifier + referrer pair to an absolute,
// canonical source file path (spec.md §4.1, component C1).
package resolver

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/ohah/bungae/internal/config"
)

// ErrNotResolved is returned when no candidate path exists on disk.
var ErrNotResolved = errors.New("resolver: not resolved")

// Resolver resolves specifiers against a frozen Config.
type Resolver struct {
	cfg          config.Config
	nodeModRoots []string // extra node_modules search roots, in priority order
}

// New builds a Resolver bound to cfg. NodeModulesPaths from the config are
// tried after the referrer's own ancestry and before the project root.
func New(cfg config.Config) *Resolver {
	return &Resolver{cfg: cfg, nodeModRoots: cfg.Resolver.NodeModulesPaths}
}

func (r *Resolver) sourceExts() []string {
	if len(r.cfg.Resolver.SourceExts) > 0 {
		return r.cfg.Resolver.SourceExts
	}
	return config.DefaultSourceExts()
}

func (r *Resolver) assetExts() []string {
	if len(r.cfg.Resolver.AssetExts) > 0 {
		return r.cfg.Resolver.AssetExts
	}
	return config.DefaultAssetExts()
}

// Resolve maps specifier s, written in referrer, to an absolute canonical
// path. Returns ErrNotResolved (wrapped with the specifier/referrer) when
// nothing on disk matches.
func (r *Resolver) Resolve(s, referrer string) (string, error) {
	var resolved string
	if strings.HasPrefix(s, "./") || strings.HasPrefix(s, "../") || s == "." || s == ".." {
		resolved = r.resolveRelative(s, referrer)
	} else if filepath.IsAbs(s) {
		resolved = r.resolveAbsoluteBase(s)
	} else {
		resolved = r.resolveBare(s, referrer)
	}

	if resolved == "" {
		return "", &NotResolvedError{Specifier: s, Referrer: referrer}
	}
	return canonicalize(resolved), nil
}

// NotResolvedError carries the specifier/referrer pair that failed to
// resolve; errors.Is(err, ErrNotResolved) holds for it.
type NotResolvedError struct {
	Specifier string
	Referrer  string
}

func (e *NotResolvedError) Error() string {
	return "resolver: cannot resolve " + e.Specifier + " from " + e.Referrer
}

func (e *NotResolvedError) Is(target error) bool { return target == ErrNotResolved }

func canonicalize(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return filepath.Clean(p)
	}
	return abs
}

// resolveRelative implements spec.md §4.1 steps 1-4 for a relative specifier.
func (r *Resolver) resolveRelative(s, referrer string) string {
	base := filepath.Join(filepath.Dir(referrer), s)
	return r.resolveAbsoluteBase(base)
}

// resolveAbsoluteBase runs steps 1-4 against an already-joined base path
// (used for both relative specifiers and specifiers that were already
// absolute).
func (r *Resolver) resolveAbsoluteBase(base string) string {
	if p := r.resolveFileVariants(base); p != "" {
		return p
	}
	return r.resolveIndexVariants(base)
}

// resolveFileVariants runs spec.md §4.1 steps 1-3 only (file-as-itself,
// then as an asset) against base, stopping short of the directory/index
// fallback in step 4 — split out so resolveBare can interleave the
// package.json main/module check between steps 3 and 4, per spec.md's
// bare-specifier order.
func (r *Resolver) resolveFileVariants(base string) string {
	platform := string(r.cfg.Platform)
	preferNative := r.cfg.Resolver.PreferNativePlatform

	if ext := knownSourceExt(base, r.sourceExts()); ext != "" {
		stem := strings.TrimSuffix(base, "."+ext)
		if p := tryVariants(stem, ext, platform, preferNative); p != "" {
			return p
		}
	} else {
		for _, ext := range r.sourceExts() {
			if p := tryVariants(base, ext, platform, preferNative); p != "" {
				return p
			}
		}
	}

	for _, ext := range r.assetExts() {
		candidate := base + "." + ext
		if strings.HasSuffix(base, "."+ext) {
			candidate = base
		}
		if p := existsFlowAware(candidate); p != "" {
			return p
		}
	}

	return ""
}

// resolveIndexVariants runs spec.md §4.1 step 4: treat base as a directory
// and try index.<ext> with the same extension priority.
func (r *Resolver) resolveIndexVariants(base string) string {
	platform := string(r.cfg.Platform)
	preferNative := r.cfg.Resolver.PreferNativePlatform
	indexBase := filepath.Join(base, "index")
	for _, ext := range r.sourceExts() {
		if p := tryVariants(indexBase, ext, platform, preferNative); p != "" {
			return p
		}
	}
	return ""
}

// tryVariants tries <stem>.<platform>.<ext>, then <stem>.native.<ext> (if
// preferNative), then <stem>.<ext>, each stripped of a trailing .flow.
func tryVariants(stem, ext, platform string, preferNative bool) string {
	if platform != "" {
		if p := existsFlowAware(stem + "." + platform + "." + ext); p != "" {
			return p
		}
	}
	if preferNative {
		if p := existsFlowAware(stem + ".native." + ext); p != "" {
			return p
		}
	}
	return existsFlowAware(stem + "." + ext)
}

// existsFlowAware returns path if it exists and isn't a Flow-only file;
// Flow-only files (.flow.js / .flow) are never returned — if p itself ends
// in one of those, strip it and retry once (spec.md §4.1).
func existsFlowAware(p string) string {
	if isFlowOnly(p) {
		stripped := stripFlowSuffix(p)
		if fileExists(stripped) {
			return stripped
		}
		return ""
	}
	if fileExists(p) {
		return p
	}
	return ""
}

func isFlowOnly(p string) bool {
	return strings.HasSuffix(p, ".flow.js") || strings.HasSuffix(p, ".flow")
}

func stripFlowSuffix(p string) string {
	if strings.HasSuffix(p, ".flow.js") {
		return strings.TrimSuffix(p, ".flow.js") + ".js"
	}
	return strings.TrimSuffix(p, ".flow")
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}

// knownSourceExt returns the extension (without dot) if base already ends
// in one the config recognizes as a source extension.
func knownSourceExt(base string, exts []string) string {
	for _, ext := range exts {
		if strings.HasSuffix(base, "."+ext) {
			return ext
		}
	}
	return ""
}

// resolveBare implements spec.md §4.1's bare-specifier search: walk
// candidate node_modules roots (dirname(referrer), then config-listed
// paths, then project root), trying extension variants, package.json
// main/module, then index files, at each root.
func (r *Resolver) resolveBare(s, referrer string) string {
	pkgName, subpath := splitBareSpecifier(s)
	for _, root := range r.bareSearchRoots(referrer) {
		pkgDir := filepath.Join(root, "node_modules", pkgName)

		if subpath != "." {
			// A deep import ("pkg/sub/path"): the exports map, if present,
			// owns this shape entirely (including wildcard patterns like
			// "./feature/*"), but package.json main/module never applies
			// past the package root, so fall straight to plain file lookup
			// against the joined path.
			if p := resolvePackageEntry(pkgDir, subpath, string(r.cfg.Platform)); p != "" {
				return p
			}
			deepBase := filepath.Join(pkgDir, strings.TrimPrefix(subpath, "./"))
			if p := r.resolveFileVariants(deepBase); p != "" {
				return p
			}
			if p := r.resolveIndexVariants(deepBase); p != "" {
				return p
			}
			continue
		}

		if p := r.resolveFileVariants(pkgDir); p != "" {
			return p
		}
		if p := resolvePackageEntry(pkgDir, ".", string(r.cfg.Platform)); p != "" {
			return p
		}
		if p := r.resolveIndexVariants(pkgDir); p != "" {
			return p
		}
	}
	return ""
}

// splitBareSpecifier splits a bare import like "pkg/sub/path" into the
// node_modules package directory name and the exports subpath ("." for a
// plain "pkg" import, "./sub/path" for a deep one), honoring scoped
// packages ("@scope/name/sub" -> "@scope/name", "./sub").
func splitBareSpecifier(s string) (pkgName, subpath string) {
	if strings.HasPrefix(s, "@") {
		parts := strings.SplitN(s, "/", 3)
		if len(parts) < 2 {
			return s, "."
		}
		if len(parts) == 2 {
			return parts[0] + "/" + parts[1], "."
		}
		return parts[0] + "/" + parts[1], "./" + parts[2]
	}
	parts := strings.SplitN(s, "/", 2)
	if len(parts) == 1 {
		return s, "."
	}
	return parts[0], "./" + parts[1]
}

// bareSearchRoots walks referrer's directory upward collecting candidate
// "node_modules parent" roots, then appends the configured extra search
// paths, then the project root.
func (r *Resolver) bareSearchRoots(referrer string) []string {
	var roots []string
	dir := filepath.Dir(referrer)
	for {
		if dir == r.cfg.Root && len(roots) > 0 {
			break // the project root goes last, after the configured paths
		}
		roots = append(roots, dir)
		if dir == r.cfg.Root || dir == filepath.Dir(dir) {
			break
		}
		dir = filepath.Dir(dir)
	}
	roots = append(roots, r.nodeModRoots...)
	if r.cfg.Root != "" {
		roots = append(roots, r.cfg.Root)
	}
	return dedupe(roots)
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
