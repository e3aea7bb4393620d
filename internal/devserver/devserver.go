// Package devserver implements the DevServer (spec.md §4.8, component C8):
// HTTP endpoints for bundles/maps/assets, plus the /hot WebSocket that
// bridges connected clients to the DeltaEngine. Request routing and ANSI
// request-timing log lines are grounded on the teacher's dev/dev.go
// ServeHTTP and esmdev/handlers.go; the /hot lifecycle replaces the
// teacher's SSE (esmdev/hmr.go) with github.com/gorilla/websocket, the
// choice bennypowers-cem makes for the same job.
package devserver

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/klauspost/compress/gzhttp"

	"github.com/ohah/bungae/internal/config"
	"github.com/ohah/bungae/internal/delta"
	"github.com/ohah/bungae/internal/resolver"
	"github.com/ohah/bungae/internal/transform"
	"github.com/ohah/bungae/internal/watcher"
)

// Server is the dev server's process-wide state: per-platform BuildState
// owners (spec.md §5) plus the set of connected WebSocket clients.
type Server struct {
	BaseConfig  config.Config
	Transformer transform.Transformer
	ImageProbe  func(path string) (int, int)

	mu        sync.Mutex
	platforms map[config.Platform]*platformState

	hotMu   sync.Mutex
	clients map[*hotClient]bool

	watcher   *watcher.Watcher
	startedAt time.Time
}

// platformState is the single-writer owner for one platform's BuildState,
// cached bundle, and in-flight-build serialization (spec.md §5): the
// mutex IS the owner — a request that arrives mid-build blocks on it
// rather than kicking off a second, redundant build.
type platformState struct {
	mu        sync.Mutex
	cfg       config.Config
	resolver  *resolver.Resolver
	engine    *delta.Engine
	state     *delta.BuildState
	bundle    []byte
	bundleMap string
	dirty     bool // set by a watcher flush; cleared by the next successful build
}

// New builds a Server around a base Config (platform is overridden
// per-request/per-registration) and the Transformer/ImageProber
// capabilities (spec.md §6).
func New(cfg config.Config, t transform.Transformer, probe func(string) (int, int)) *Server {
	return &Server{
		BaseConfig:  cfg,
		Transformer: t,
		ImageProbe:  probe,
		platforms:   make(map[config.Platform]*platformState),
		clients:     make(map[*hotClient]bool),
		startedAt:   time.Now(),
	}
}

// Handler returns the http.Handler serving every endpoint spec.md §4.8
// names, with every response gzip-wrapped the way any HTTP-serving
// component in the retrieval pack reaches for a real compression library
// (see DESIGN.md).
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/status.txt", s.handleStatus)
	mux.HandleFunc("/open-url", s.handleOpenURL)
	mux.HandleFunc("/hot", s.handleHot)
	mux.HandleFunc("/assets/", s.handleAsset)
	mux.HandleFunc("/node_modules/", s.handleAsset)
	mux.HandleFunc("/", s.handleBundleOrMap)
	return gzhttp.GzipHandler(mux)
}

// StartWatching begins watching cfg.Root and feeds every changed batch
// into every registered platform's DeltaEngine, invalidating that
// platform's cached bundle and pushing an HMR update to its clients
// (spec.md §4.9, §5).
func (s *Server) StartWatching() error {
	w, err := watcher.New(s.BaseConfig.Root, s.BaseConfig.DebounceDuration())
	if err != nil {
		return err
	}
	s.watcher = w
	go func() {
		for batch := range w.Events() {
			s.onFileChanges(batch.Paths)
		}
	}()
	return nil
}

func (s *Server) onFileChanges(paths []string) {
	s.mu.Lock()
	states := make([]*platformState, 0, len(s.platforms))
	for _, ps := range s.platforms {
		states = append(states, ps)
	}
	s.mu.Unlock()

	for _, ps := range states {
		ps.mu.Lock()
		if ps.state == nil {
			ps.mu.Unlock()
			continue
		}
		prev := ps.state
		next, d, err := ps.engine.Rebuild(prev, paths)
		if err != nil {
			ps.dirty = true
			ps.mu.Unlock()
			s.broadcastError(ps.cfg.Platform, err)
			continue
		}
		ps.state = next
		ps.dirty = false
		ps.bundle = nil // bundleMap keeps the last successful bundle's map until the next serialize
		ps.mu.Unlock()

		if !d.IsEmpty() {
			s.broadcastUpdate(ps.cfg.Platform, next, d)
		}
	}
}

// platformFor returns (creating if needed) the owner for platform p,
// cloning BaseConfig with Platform overridden so Resolver/Transformer see
// the right target (spec.md §4.1's platform-variant resolution).
func (s *Server) platformFor(p config.Platform, dev bool) *platformState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ps, ok := s.platforms[p]; ok {
		return ps
	}
	cfg := s.BaseConfig
	cfg.Platform = p
	cfg.Dev = dev
	ps := &platformState{
		cfg:      cfg,
		resolver: resolver.New(cfg),
	}
	ps.engine = &delta.Engine{
		Config:      cfg,
		Resolver:    ps.resolver,
		Transformer: s.Transformer,
		ImageProbe:  s.ImageProbe,
	}
	s.platforms[p] = ps
	return ps
}

// ensureBundle returns the cached bundle for ps if clean, otherwise awaits
// a fresh InitialBuild/Rebuild — the "in-flight build awaited rather than
// restarted" rule (spec.md §5) falls out of ps.mu being held for the
// duration of the build.
func (ps *platformState) ensureBundle(entry string, serializeFn func(*delta.BuildState) ([]byte, string, error)) ([]byte, string, error) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.state == nil {
		st, err := ps.engine.InitialBuild(entry)
		if err != nil {
			return nil, "", err
		}
		ps.state = st
		ps.dirty = false
	} else if ps.dirty {
		st, _, err := ps.engine.Rebuild(ps.state, nil)
		if err != nil {
			return nil, "", err
		}
		ps.state = st
		ps.dirty = false
		ps.bundle = nil
	}

	if ps.bundle == nil {
		code, mapJSON, err := serializeFn(ps.state)
		if err != nil {
			return nil, "", err
		}
		ps.bundle = code
		ps.bundleMap = mapJSON
	}
	return ps.bundle, ps.bundleMap, nil
}

// Shutdown closes the Watcher, closes every connected WebSocket, and
// stops accepting new connections — the drain sequence spec.md §5
// requires on SIGINT/SIGTERM.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.watcher != nil {
		s.watcher.Close()
	}
	s.hotMu.Lock()
	for c := range s.clients {
		c.close()
	}
	s.clients = make(map[*hotClient]bool)
	s.hotMu.Unlock()
	return nil
}

func logRequest(r *http.Request, status int, start time.Time) {
	fmt.Fprintf(os.Stderr, "  \033[2m[req] %s %s → %d (%dms)\033[0m\n",
		r.Method, r.URL.Path, status, time.Since(start).Milliseconds())
}
