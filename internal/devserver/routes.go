package devserver

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/ohah/bungae/internal/config"
	"github.com/ohah/bungae/internal/delta"
	"github.com/ohah/bungae/internal/reorder"
	"github.com/ohah/bungae/internal/serializer"
)

// handleBundleOrMap serves `/<path>.bundle[.js]?platform=<p>&dev=<bool>`
// and `/<same>.map?platform=<p>` (spec.md §4.8). Responses are never
// coalesced across platforms: each platform gets its own cache and its
// own in-flight build, via platformFor/ensureBundle.
func (s *Server) handleBundleOrMap(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	urlPath := r.URL.Path

	switch {
	case strings.HasSuffix(urlPath, ".map"):
		s.serveMap(w, r, strings.TrimSuffix(urlPath, ".map"), start)
	case strings.HasSuffix(urlPath, ".bundle.js"):
		s.serveBundle(w, r, strings.TrimSuffix(urlPath, ".bundle.js"), start)
	case strings.HasSuffix(urlPath, ".bundle"):
		s.serveBundle(w, r, strings.TrimSuffix(urlPath, ".bundle"), start)
	default:
		http.NotFound(w, r)
		logRequest(r, http.StatusNotFound, start)
	}
}

func platformFromQuery(r *http.Request, fallback config.Platform) config.Platform {
	if p := r.URL.Query().Get("platform"); p != "" {
		return config.Platform(p)
	}
	return fallback
}

func devFromQuery(r *http.Request, fallback bool) bool {
	v := r.URL.Query().Get("dev")
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func (s *Server) serializeBundle(cfg config.Config) func(*delta.BuildState) ([]byte, string, error) {
	return func(state *delta.BuildState) ([]byte, string, error) {
		order := reorder.Order(state.Graph)
		bundle, err := serializer.Serialize(order, state.Graph, state.Ids, cfg)
		if err != nil {
			return nil, "", err
		}
		return bundle.Code, bundle.Map, nil
	}
}

func (s *Server) serveBundle(w http.ResponseWriter, r *http.Request, entryPath string, start time.Time) {
	platform := platformFromQuery(r, s.BaseConfig.Platform)
	dev := devFromQuery(r, s.BaseConfig.Dev)
	ps := s.platformFor(platform, dev)

	entry := path.Join(s.BaseConfig.Root, strings.TrimPrefix(entryPath, "/"))
	if _, err := os.Stat(entry); err != nil {
		for _, ext := range config.DefaultSourceExts() {
			if _, err := os.Stat(entry + "." + ext); err == nil {
				entry += "." + ext
				break
			}
		}
	}
	code, _, err := ps.ensureBundle(entry, s.serializeBundle(ps.cfg))
	if err != nil {
		writeBuildError(w, err)
		logRequest(r, http.StatusInternalServerError, start)
		return
	}

	etag := contentETag(code)
	if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
		w.WriteHeader(http.StatusNotModified)
		logRequest(r, http.StatusNotModified, start)
		return
	}

	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Header().Set("ETag", etag)
	w.Write(code)
	logRequest(r, http.StatusOK, start)
}

// serveMap returns the source map for the last successful bundle of that
// platform, or `{}` if none (spec.md §4.8).
func (s *Server) serveMap(w http.ResponseWriter, r *http.Request, entryPath string, start time.Time) {
	platform := platformFromQuery(r, s.BaseConfig.Platform)

	s.mu.Lock()
	ps, ok := s.platforms[platform]
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if !ok {
		w.Write([]byte("{}"))
		logRequest(r, http.StatusOK, start)
		return
	}

	ps.mu.Lock()
	mapJSON := ps.bundleMap
	ps.mu.Unlock()

	if mapJSON == "" {
		w.Write([]byte("{}"))
	} else {
		w.Write([]byte(mapJSON))
	}
	logRequest(r, http.StatusOK, start)
}

func contentETag(data []byte) string {
	sum := sha256.Sum256(data)
	return `"` + hex.EncodeToString(sum[:])[:16] + `"`
}

func writeBuildError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.WriteHeader(http.StatusInternalServerError)
	fmt.Fprintf(w, "// build error: %s\n", err.Error())
}

// handleStatus answers `/status[.txt]` with the fixed liveness string
// Metro-class dev tooling polls for (spec.md §4.8).
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, "packager-status:running")
	logRequest(r, http.StatusOK, start)
}

type openURLRequest struct {
	URL string `json:"url"`
}

type openURLResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// handleOpenURL launches the host's default browser at the requested URL
// (spec.md §4.8), grounded on bennypowers-cem's cmd/serve.go openBrowser
// (darwin "open", linux "xdg-open", windows "cmd /c start").
func (s *Server) handleOpenURL(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		logRequest(r, http.StatusMethodNotAllowed, start)
		return
	}

	var req openURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(openURLResponse{Success: false, Error: "missing url"})
		logRequest(r, http.StatusBadRequest, start)
		return
	}

	if err := openBrowser(req.URL); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(openURLResponse{Success: false, Error: err.Error()})
		logRequest(r, http.StatusInternalServerError, start)
		return
	}

	json.NewEncoder(w).Encode(openURLResponse{Success: true})
	logRequest(r, http.StatusOK, start)
}
