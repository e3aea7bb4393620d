package resolver

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

// exportValue mirrors a node in a package.json "exports" tree: either a
// leaf string path or a branch mapping condition/subpath keys to children.
type exportValue struct {
	Path string
	Map  map[string]*exportValue
}

func (v *exportValue) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		v.Path = s
		return nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	v.Map = make(map[string]*exportValue, len(m))
	for k, raw := range m {
		child := &exportValue{}
		if err := json.Unmarshal(raw, child); err != nil {
			return err
		}
		v.Map[k] = child
	}
	return nil
}

type packageJSON struct {
	Exports *exportValue `json:"exports"`
	Module  string       `json:"module"`
	Main    string       `json:"main"`
}

// conditionOrder returns the exports-condition priority list for platform,
// extending the teacher's node/browser split with a react-native condition
// for the ios/android platforms (spec.md §6.1 supplement).
func conditionOrder(platform string) []string {
	switch platform {
	case "node":
		return []string{"node", "module", "import", "require", "default"}
	case "ios", "android":
		return []string{"react-native", "browser", "module", "import", "default"}
	default:
		return []string{"browser", "module", "import", "default"}
	}
}

// resolvePackageEntry reads pkgDir/package.json and resolves subpath
// ("." for the root import, "./foo" for a deep import) to an absolute
// file path, or "" if it can't be resolved from the manifest. The caller
// falls back to extension-trial resolution against pkgDir/subpath.
func resolvePackageEntry(pkgDir, subpath, platform string) string {
	data, err := os.ReadFile(filepath.Join(pkgDir, "package.json"))
	if err != nil {
		return ""
	}
	var pkg packageJSON
	if err := json.Unmarshal(data, &pkg); err != nil {
		return ""
	}

	if pkg.Exports != nil {
		if result := matchExports(pkg.Exports, subpath, platform); result != "" {
			resolved := filepath.Join(pkgDir, result)
			if _, err := os.Stat(resolved); err == nil {
				return resolved
			}
		}
	}

	if subpath == "." {
		for _, val := range []string{pkg.Module, pkg.Main} {
			if val != "" {
				resolved := filepath.Join(pkgDir, val)
				if _, err := os.Stat(resolved); err == nil {
					return resolved
				}
			}
		}
	}

	return ""
}

func matchExports(exports *exportValue, subpath, platform string) string {
	if exports.Path != "" {
		if subpath == "." {
			return exports.Path
		}
		return ""
	}
	if exports.Map == nil {
		return ""
	}

	isSubpathMap := false
	for key := range exports.Map {
		if strings.HasPrefix(key, ".") {
			isSubpathMap = true
			break
		}
	}

	if isSubpathMap {
		if entry, ok := exports.Map[subpath]; ok {
			return resolveCondition(entry, platform)
		}
		return matchWildcardSubpath(exports.Map, subpath, platform)
	}

	if subpath == "." {
		return resolveCondition(exports, platform)
	}
	return ""
}

// matchWildcardSubpath resolves a deep import against a pattern key like
// "./feature/*" mapping to "./dist/feature/*.js" — the directory-wildcard
// form real package.json exports use (e.g. lodash-es's "./*": "./*.js").
// The longest matching prefix wins, mirroring Node's exports resolution.
func matchWildcardSubpath(m map[string]*exportValue, subpath, platform string) string {
	var bestKey, bestMatch string
	for key := range m {
		idx := strings.Index(key, "*")
		if idx < 0 {
			continue
		}
		prefix, suffix := key[:idx], key[idx+1:]
		if !strings.HasPrefix(subpath, prefix) || !strings.HasSuffix(subpath, suffix) {
			continue
		}
		if len(subpath)-len(suffix) < len(prefix) {
			continue
		}
		matched := subpath[len(prefix) : len(subpath)-len(suffix)]
		if len(prefix) >= len(bestKey) {
			bestKey, bestMatch = key, matched
		}
	}
	if bestKey == "" {
		return ""
	}
	target := resolveCondition(m[bestKey], platform)
	if target == "" {
		return ""
	}
	return strings.Replace(target, "*", bestMatch, 1)
}

func resolveCondition(value *exportValue, platform string) string {
	if value.Path != "" {
		return value.Path
	}
	if value.Map == nil {
		return ""
	}
	for _, key := range conditionOrder(platform) {
		if entry, ok := value.Map[key]; ok {
			if result := resolveCondition(entry, platform); result != "" {
				return result
			}
		}
	}
	return ""
}
