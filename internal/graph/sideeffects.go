package graph

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

// sideEffectsDeclared walks up from filePath's directory to root looking
// for the nearest package.json and reads its "sideEffects" field (spec.md
// §4.5). Returns nil when no package.json was found, or it carries no
// opinion about filePath.
func sideEffectsDeclared(root, filePath string) *bool {
	dir := filepath.Dir(filePath)
	for {
		data, err := os.ReadFile(filepath.Join(dir, "package.json"))
		if err == nil {
			var pkg struct {
				SideEffects json.RawMessage `json:"sideEffects"`
			}
			if json.Unmarshal(data, &pkg) == nil && len(pkg.SideEffects) > 0 {
				return parseSideEffectsField(pkg.SideEffects, dir, filePath)
			}
			return nil // nearest package.json found; it just doesn't declare sideEffects
		}
		if dir == root {
			return nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil
		}
		dir = parent
	}
}

func parseSideEffectsField(raw json.RawMessage, pkgDir, filePath string) *bool {
	var b bool
	if json.Unmarshal(raw, &b) == nil {
		return &b
	}
	var list []string
	if json.Unmarshal(raw, &list) == nil {
		rel, err := filepath.Rel(pkgDir, filePath)
		if err != nil {
			rel = filePath
		}
		rel = filepath.ToSlash(rel)
		for _, pattern := range list {
			pattern = filepath.ToSlash(pattern)
			pattern = strings.TrimPrefix(pattern, "./")
			if pattern == rel || strings.HasSuffix(rel, pattern) {
				t := true
				return &t
			}
		}
		f := false
		return &f
	}
	return nil
}
