package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ohah/bungae/internal/config"
	"github.com/ohah/bungae/internal/graph"
	"github.com/ohah/bungae/internal/imageprobe"
	"github.com/ohah/bungae/internal/moduleid"
	"github.com/ohah/bungae/internal/reorder"
	"github.com/ohah/bungae/internal/resolver"
	"github.com/ohah/bungae/internal/serializer"
	"github.com/ohah/bungae/internal/transform"
	"github.com/ohah/bungae/internal/treeshake"
)

// BuildArgs holds the arguments for the build subcommand, generalized
// from the teacher's bundle.Args (tools/please_js/bundle/bundle.go).
type BuildArgs struct {
	Entry        string
	Out          string
	SourcemapOut string
	Root         string
	Platform     string
	Dev          bool
	TreeShaking  bool
}

// RunBuild performs a single full build: resolve, transform, order,
// (optionally) tree-shake, and serialize, writing the bundle and its
// source map to disk (spec.md §4.2-§4.6, no dev server involved).
func RunBuild(args BuildArgs) error {
	root := args.Root
	if root == "" {
		root = filepath.Dir(args.Entry)
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolving root: %w", err)
	}

	cfg := config.Config{
		Platform: config.Platform(args.Platform),
		Dev:      args.Dev,
		Root:     absRoot,
		Entry:    args.Entry,
		Experimental: config.ExperimentalConfig{
			TreeShaking: args.TreeShaking && !args.Dev,
		},
	}

	res := resolver.New(cfg)
	builder := &graph.Builder{
		Config:      cfg,
		Resolver:    res,
		Transformer: &transform.ESBuildTransformer{},
		ImageProbe:  imageprobe.ProbeFunc(imageprobe.FileProber{}),
		OnProgress: func(processed, total int) {
			fmt.Fprintf(os.Stderr, "\r[bungae] building... %d/%d", processed, total)
		},
	}

	g, err := builder.Build(args.Entry)
	if err != nil {
		fmt.Fprintln(os.Stderr)
		return fmt.Errorf("graph build failed: %w", err)
	}
	fmt.Fprintln(os.Stderr)

	result := treeshake.Prune(g, cfg.Experimental.TreeShaking)
	if len(result.Removed) > 0 {
		fmt.Fprintf(os.Stderr, "[bungae] tree-shaking removed %d module(s)\n", len(result.Removed))
	}

	ids := moduleid.New()
	order := reorder.Order(result.Graph)
	for _, p := range order {
		ids.IDFor(p)
	}

	bundle, err := serializer.Serialize(order, result.Graph, ids, cfg)
	if err != nil {
		return fmt.Errorf("serialize failed: %w", err)
	}

	out := args.Out
	if out == "" {
		out = strings.TrimSuffix(filepath.Base(args.Entry), filepath.Ext(args.Entry)) + ".bundle.js"
	}
	if err := os.WriteFile(out, bundle.Code, 0o644); err != nil {
		return fmt.Errorf("writing bundle: %w", err)
	}

	mapOut := args.SourcemapOut
	if mapOut == "" {
		mapOut = out + ".map"
	}
	if err := os.WriteFile(mapOut, []byte(bundle.Map), 0o644); err != nil {
		return fmt.Errorf("writing source map: %w", err)
	}

	fmt.Fprintf(os.Stderr, "[bungae] wrote %s (%d modules)\n", out, len(order))
	return nil
}
