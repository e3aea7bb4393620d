package devserver

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ohah/bungae/internal/config"
	"github.com/ohah/bungae/internal/transform"
)

// identityTransformer returns the source unchanged, mirroring the graph
// package's test helper so these tests don't depend on esbuild.
type identityTransformer struct{}

func (identityTransformer) Transform(in transform.Input) (*transform.AST, error) {
	return &transform.AST{Code: in.SourceBytes}, nil
}

func write(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newTestServer(t *testing.T, root string) *Server {
	t.Helper()
	cfg := config.Config{
		Platform: config.PlatformWeb,
		Dev:      true,
		Root:     root,
	}
	return New(cfg, identityTransformer{}, func(string) (int, int) { return 0, 0 })
}

func TestHandleStatus(t *testing.T) {
	dir := t.TempDir()
	s := newTestServer(t, dir)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d, want 200", rec.Code)
	}
	if body := rec.Body.String(); body != "packager-status:running" {
		t.Fatalf("body = %q, want packager-status:running", body)
	}
}

func TestServeBundle(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "b.js"), `module.exports = 'b';`)
	write(t, filepath.Join(dir, "a.js"), `require('./b');`)

	s := newTestServer(t, dir)

	req := httptest.NewRequest(http.MethodGet, "/a.bundle?platform=web&dev=true", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "__d(") {
		t.Fatalf("bundle body missing __d() wrapper: %s", rec.Body.String())
	}
	if etag := rec.Header().Get("ETag"); etag == "" {
		t.Fatal("expected an ETag header on the bundle response")
	}
}

func TestServeBundle_NotModified(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "a.js"), `module.exports = 'a';`)

	s := newTestServer(t, dir)
	handler := s.Handler()

	req := httptest.NewRequest(http.MethodGet, "/a.bundle?platform=web", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	etag := rec.Header().Get("ETag")

	req2 := httptest.NewRequest(http.MethodGet, "/a.bundle?platform=web", nil)
	req2.Header.Set("If-None-Match", etag)
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req2)

	if rec2.Code != http.StatusNotModified {
		t.Fatalf("status code = %d, want 304", rec2.Code)
	}
}

func TestResolveWithinRoots_RejectsEscape(t *testing.T) {
	root := t.TempDir()
	_, within := resolveWithinRoots("/assets/../../etc/passwd", []string{root})
	if within {
		t.Fatal("expected a path escaping root to be rejected")
	}
}

func TestResolveWithinRoots_AllowsContainedMissingFile(t *testing.T) {
	root := t.TempDir()
	resolved, within := resolveWithinRoots("/assets/does-not-exist.png", []string{root})
	if !within {
		t.Fatal("expected a contained-but-missing path to be accepted (caller 404s it)")
	}
	if filepath.Dir(resolved) != root {
		t.Fatalf("resolved = %q, want a child of %q", resolved, root)
	}
}

func TestHandleAsset_MissingWithinRootIs404(t *testing.T) {
	dir := t.TempDir()
	s := newTestServer(t, dir)

	req := httptest.NewRequest(http.MethodGet, "/assets/does-not-exist.png", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status code = %d, want 404", rec.Code)
	}
}

func TestHandleAsset_Serves(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "logo.png"), "fake-png-bytes")
	s := newTestServer(t, dir)

	req := httptest.NewRequest(http.MethodGet, "/assets/logo.png", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d, want 200", rec.Code)
	}
}

func TestHandleOpenURL_RequiresPost(t *testing.T) {
	dir := t.TempDir()
	s := newTestServer(t, dir)

	req := httptest.NewRequest(http.MethodGet, "/open-url", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status code = %d, want 405", rec.Code)
	}
}
