// Command bungae is the CLI entrypoint: a Metro-compatible JavaScript
// bundler and dev server. It generalizes the teacher's tools/please_js
// main.go — eight moduleconfig/esbuild-centric subcommands collapsed down
// to the two this bundler's own graph/serializer/devserver pipeline needs.
package main

import (
	"log"
	"os"

	"github.com/thought-machine/go-flags"
)

var opts = struct {
	Usage string

	Build struct {
		Entry        string `short:"e" long:"entry" required:"true" description:"Entry point file"`
		Out          string `short:"o" long:"out" description:"Output bundle path"`
		SourcemapOut string `long:"sourcemap-out" description:"Output source map path"`
		Root         string `long:"root" description:"Project root for module resolution"`
		Platform     string `short:"p" long:"platform" default:"web" description:"Target platform: ios, android, web"`
		Dev          bool   `long:"dev" description:"Build in development mode (skips tree-shaking)"`
		TreeShaking  bool   `long:"tree-shaking" description:"Enable tree-shaking of unreachable modules"`
	} `command:"build" alias:"b" description:"Produce a single bundle and source map"`

	Serve struct {
		Root     string `long:"root" description:"Project root to serve and watch"`
		Port     int    `short:"p" long:"port" default:"8081" description:"HTTP port"`
		Platform string `long:"platform" default:"web" description:"Default target platform: ios, android, web"`
		Dev      bool   `long:"dev" default:"true" description:"Serve dev-flavored bundles by default"`
	} `command:"serve" alias:"s" description:"Start the dev server with HMR over /hot"`
}{
	Usage: `
bungae is a Metro-compatible JavaScript bundler and dev server.

It provides these operations:
  - build: produce a single bundle and source map for an entry point
  - serve: start a dev server with incremental rebuilds and HMR over /hot
`,
}

var subCommands = map[string]func() int{
	"build": func() int {
		if err := RunBuild(BuildArgs{
			Entry:        opts.Build.Entry,
			Out:          opts.Build.Out,
			SourcemapOut: opts.Build.SourcemapOut,
			Root:         opts.Build.Root,
			Platform:     opts.Build.Platform,
			Dev:          opts.Build.Dev,
			TreeShaking:  opts.Build.TreeShaking,
		}); err != nil {
			log.Fatal(err)
		}
		return 0
	},
	"serve": func() int {
		if err := RunServe(ServeArgs{
			Root:     opts.Serve.Root,
			Port:     opts.Serve.Port,
			Platform: opts.Serve.Platform,
			Dev:      opts.Serve.Dev,
		}); err != nil {
			log.Fatal(err)
		}
		return 0
	},
}

func main() {
	p := flags.NewParser(&opts, flags.Default)
	cmd, err := p.Parse()
	if err != nil {
		os.Exit(1)
	}
	_ = cmd
	if p.Active == nil {
		p.WriteHelp(os.Stderr)
		os.Exit(1)
	}
	os.Exit(subCommands[p.Active.Name]())
}
