// Package serializer implements the Serializer (spec.md §4.6, component
// C6): it turns an ordered module list into the bundle wire format
// (prelude, __d()-wrapped modules, __r() entry calls) plus the
// accompanying index-map source map.
package serializer

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ohah/bungae/internal/config"
	"github.com/ohah/bungae/internal/graph"
	"github.com/ohah/bungae/internal/moduleid"
)

// Bundle is the (pre, modules, post) triple of spec.md §3, already
// concatenated into the final textual form plus its source map.
type Bundle struct {
	Code []byte
	Map  string
}

// Serialize assembles the full bundle for order (the Reorderer's output)
// against graph g, assigning ids via ids (spec.md §4.6).
func Serialize(order []string, g *graph.ModuleGraph, ids *moduleid.Factory, cfg config.Config) (*Bundle, error) {
	var buf bytes.Buffer

	pre := Prelude(cfg)
	buf.Write(pre)
	buf.WriteByte('\n')

	var mapBuilder sourceMapBuilder
	mapBuilder.addPrelude(pre)

	for _, path := range cfg.Serializer.Polyfills {
		m, ok := g.Get(path)
		if !ok {
			continue
		}
		wrapped := wrapModule(m, g, ids, cfg, nil)
		buf.Write(wrapped)
		buf.WriteByte('\n')
		mapBuilder.addModule(path, wrapped, m.SourceMap, string(m.Source))
	}

	for _, path := range order {
		m, ok := g.Get(path)
		if !ok {
			continue
		}
		wrapped := wrapModule(m, g, ids, cfg, nil)
		buf.Write(wrapped)
		buf.WriteByte('\n')
		mapBuilder.addModule(path, wrapped, m.SourceMap, string(m.Source))
	}

	buf.Write(Post(order, g, ids, cfg))

	mapJSON, err := mapBuilder.build(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.Serializer.InlineSourceMap {
		buf.WriteString("\n//# sourceMappingURL=data:application/json;charset=utf-8;base64,")
		buf.WriteString(base64.StdEncoding.EncodeToString([]byte(mapJSON)))
	} else {
		buf.WriteString("\n//# sourceMappingURL=" + bundleName(cfg) + ".map")
	}

	return &Bundle{Code: buf.Bytes(), Map: mapJSON}, nil
}

func bundleName(cfg config.Config) string {
	name := cfg.Entry
	if name == "" {
		name = "index"
	}
	return strings.TrimSuffix(name, ".js")
}

// Prelude emits the define-time constants and global-prefix setup that
// precede every module definition (spec.md §4.6).
func Prelude(cfg config.Config) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "var __BUNDLE_START_TIME__=%d; var __DEV__=%t; var process=this.process||{}; process.env=process.env||{}; process.env.NODE_ENV=%q;",
		time.Now().UnixMilli(), cfg.Dev, cfg.NodeEnv())
	for k, v := range cfg.Serializer.ExtraVars {
		fmt.Fprintf(&buf, " var %s=%s;", k, v)
	}
	prefix := cfg.Serializer.GlobalPrefix
	fmt.Fprintf(&buf, "\nvar __METRO_GLOBAL_PREFIX__=%q;", prefix)
	return buf.Bytes()
}

// Post emits the runBeforeMainModule calls, the entry require, and is
// followed by the caller's source-map comment (spec.md §4.6).
func Post(order []string, g *graph.ModuleGraph, ids *moduleid.Factory, cfg config.Config) []byte {
	var buf bytes.Buffer
	if cfg.Serializer.GetModulesRunBeforeMainModule != nil {
		for _, path := range cfg.Serializer.GetModulesRunBeforeMainModule() {
			if _, ok := g.Get(path); !ok {
				continue
			}
			id, _ := ids.Peek(path)
			fmt.Fprintf(&buf, "__r(%d);\n", id)
		}
	}
	if entryID, ok := ids.Peek(g.Entry); ok {
		fmt.Fprintf(&buf, "__r(%d);", entryID)
	}
	return buf.Bytes()
}

// sourceMapBuilder accumulates each segment's line count so the final
// index map can offset every module's own mappings by the cumulative line
// count of what precedes it in the bundle, plus the one line the __d(...)
// wrapper opens with before the module body (spec.md §4.6).
type sourceMapBuilder struct {
	sources        []string
	sourcesContent []string
	sections       []indexMapSection
	lineOffset     int
}

type indexMapSection struct {
	Line int
	Map  json.RawMessage
}

func (b *sourceMapBuilder) addPrelude(pre []byte) {
	b.sources = append(b.sources, "__prelude__")
	b.sourcesContent = append(b.sourcesContent, "")
	b.lineOffset += countLines(pre)
}

func (b *sourceMapBuilder) addModule(path string, wrapped []byte, rawMap string, source string) {
	b.sources = append(b.sources, path)
	b.sourcesContent = append(b.sourcesContent, source)
	if rawMap != "" {
		b.sections = append(b.sections, indexMapSection{Line: b.lineOffset + 1, Map: json.RawMessage(rawMap)})
	}
	b.lineOffset += countLines(wrapped)
}

func countLines(b []byte) int {
	n := 1
	for _, c := range b {
		if c == '\n' {
			n++
		}
	}
	return n
}

// indexMap is a version-3 indexed source map (spec.md §3).
type indexMap struct {
	Version        int                `json:"version"`
	File           string             `json:"file,omitempty"`
	Sources        []string           `json:"sources"`
	SourcesContent []string           `json:"sourcesContent"`
	Sections       []indexMapSectionJ `json:"sections"`
	IgnoreList     []int              `json:"x_google_ignoreList,omitempty"`
}

type indexMapSectionJ struct {
	Offset struct {
		Line   int `json:"line"`
		Column int `json:"column"`
	} `json:"offset"`
	Map json.RawMessage `json:"map"`
}

func (b *sourceMapBuilder) build(cfg config.Config) (string, error) {
	out := indexMap{
		Version:        3,
		Sources:        b.sources,
		SourcesContent: b.sourcesContent,
	}
	for _, s := range b.sections {
		sec := indexMapSectionJ{Map: s.Map}
		sec.Offset.Line = s.Line
		out.Sections = append(out.Sections, sec)
	}
	if cfg.Serializer.ShouldAddToIgnoreList != nil {
		for i, src := range b.sources {
			if src == "__prelude__" || cfg.Serializer.ShouldAddToIgnoreList(src) {
				out.IgnoreList = append(out.IgnoreList, i)
			}
		}
		sort.Ints(out.IgnoreList)
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
