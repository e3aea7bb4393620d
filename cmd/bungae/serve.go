package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ohah/bungae/internal/config"
	"github.com/ohah/bungae/internal/devserver"
	"github.com/ohah/bungae/internal/imageprobe"
	"github.com/ohah/bungae/internal/transform"
)

// ServeArgs holds the arguments for the serve subcommand, generalized
// from the teacher's dev.Args (tools/please_js/dev/dev.go).
type ServeArgs struct {
	Root     string
	Port     int
	Platform string
	Dev      bool
}

// RunServe starts the DevServer and blocks until SIGINT/SIGTERM, draining
// in-flight connections and the watcher before returning (spec.md §5).
func RunServe(args ServeArgs) error {
	root := args.Root
	if root == "" {
		root = "."
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolving root: %w", err)
	}

	platform := config.Platform(args.Platform)
	if platform == "" {
		platform = config.PlatformWeb
	}

	cfg := config.Config{
		Platform: platform,
		Dev:      args.Dev,
		Root:     absRoot,
		Server:   config.ServerConfig{Port: args.Port},
	}

	srv := devserver.New(cfg, &transform.ESBuildTransformer{}, imageprobe.ProbeFunc(imageprobe.FileProber{}))
	if err := srv.StartWatching(); err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}

	addr := fmt.Sprintf(":%d", args.Port)
	httpServer := &http.Server{
		Addr:        addr,
		Handler:     srv.Handler(),
		IdleTimeout: 120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "[bungae] dev server listening on http://localhost:%d\n", args.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		fmt.Fprintln(os.Stderr, "\n[bungae] shutting down...")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "[bungae] shutdown: %v\n", err)
	}
	return httpServer.Shutdown(ctx)
}
