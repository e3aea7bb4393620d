package graph

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// assetRegistrarPath is the virtual path of the synthetic module every
// asset module depends on (spec.md §4.2 step 2). It never exists on
// disk; GraphBuilder synthesizes its source directly, the same way it
// synthesizes the asset and JSON modules themselves.
const assetRegistrarPath = "\x00asset-registry.js"

const assetRegistrarSource = `module.exports = {
  registerAsset: function(asset) { return asset; },
};
`

func assetTypeFromExt(ext string) string {
	if len(ext) > 0 && ext[0] == '.' {
		ext = ext[1:]
	}
	return ext
}

// assetHTTPServerLocation computes the /assets-relative directory for an
// asset file, normalized to forward slashes (spec.md §4.2 step 2).
func assetHTTPServerLocation(root, filePath string) string {
	rel, err := filepath.Rel(root, filepath.Dir(filePath))
	if err != nil || rel == "." {
		return "/assets"
	}
	return "/assets/" + filepath.ToSlash(rel)
}

func hashFileContents(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:16]
}

// buildAssetSource synthesizes module.exports = ASSET_REGISTRAR(<metadata>)
// for an asset file, computing width/height via prober (spec.md §4.2
// step 2). Returns the source text and the AssetInfo for later endpoints.
func buildAssetSource(root, filePath string, probe func(string) (int, int)) ([]byte, *AssetInfo, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, nil, err
	}
	w, h := probe(filePath)
	name := filepath.Base(filePath)
	ext := filepath.Ext(name)
	name = name[:len(name)-len(ext)]

	info := &AssetInfo{
		FilePath:           filePath,
		HTTPServerLocation: assetHTTPServerLocation(root, filePath),
		Name:               name,
		Type:               assetTypeFromExt(ext),
		Width:              w,
		Height:             h,
		Scales:             []int{1},
		Hash:               hashFileContents(data),
	}

	metadata, err := json.Marshal(info)
	if err != nil {
		return nil, nil, err
	}
	src := []byte(fmt.Sprintf("module.exports = require(%q).registerAsset(%s);\n", assetRegistrarPath, metadata))
	return src, info, nil
}
