package assets

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
)

func testLogger() *log.Logger {
	return log.New(os.Stderr, "[test] ", 0)
}

func newUpstream(t *testing.T, hits *int64) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(hits, 1)
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, "<html>converter</html>")
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHandlerCacheFirst(t *testing.T) {
	var hits int64
	upstream := newUpstream(t, &hits)

	cache, err := New(t.TempDir(), "v1", testLogger())
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}

	handler := cache.Handler(upstream.URL)

	// First request misses the cache and hits upstream.
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/index.html", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if got := atomic.LoadInt64(&hits); got != 1 {
		t.Fatalf("expected 1 upstream hit, got %d", got)
	}

	// Second request is served from cache.
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/index.html", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 from cache, got %d", rr.Code)
	}
	if rr.Body.String() != "<html>converter</html>" {
		t.Errorf("cache returned wrong body: %s", rr.Body.String())
	}
	if got := atomic.LoadInt64(&hits); got != 1 {
		t.Errorf("expected cache hit, upstream hit %d times", got)
	}
}

func TestHandlerOfflineFallback(t *testing.T) {
	var hits int64
	upstream := newUpstream(t, &hits)
	url := upstream.URL
	upstream.Close() // simulate being offline

	cache, err := New(t.TempDir(), "v1", testLogger())
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}

	rr := httptest.NewRecorder()
	cache.Handler(url).ServeHTTP(rr, httptest.NewRequest("GET", "/index.html", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 offline fallback, got %d", rr.Code)
	}
	if body := rr.Body.String(); !strings.Contains(body, "offline") {
		t.Errorf("expected offline page, got %q", body)
	}
}

func TestInstallPrecaches(t *testing.T) {
	var hits int64
	upstream := newUpstream(t, &hits)

	cache, err := New(t.TempDir(), "v1", testLogger())
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}

	if err := cache.Install(context.Background(), upstream.URL, []string{"/", "/app.js"}); err != nil {
		t.Fatalf("Install failed: %v", err)
	}

	// Precached entries are served without touching upstream again.
	before := atomic.LoadInt64(&hits)
	rr := httptest.NewRecorder()
	cache.Handler(upstream.URL).ServeHTTP(rr, httptest.NewRequest("GET", "/app.js", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if after := atomic.LoadInt64(&hits); after != before {
		t.Errorf("expected precached entry to be served from disk")
	}
}

func TestActivatePrunesOldVersions(t *testing.T) {
	dir := t.TempDir()

	old, err := New(dir, "v1", testLogger())
	if err != nil {
		t.Fatalf("failed to create v1 cache: %v", err)
	}
	if err := old.Put("/index.html", "text/html", []byte("old")); err != nil {
		t.Fatalf("failed to put entry: %v", err)
	}

	next, err := New(dir, "v2", testLogger())
	if err != nil {
		t.Fatalf("failed to create v2 cache: %v", err)
	}
	if err := next.Activate(); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}

	if _, _, ok := old.Get("/index.html"); ok {
		t.Error("expected v1 entries pruned after v2 activation")
	}
}

func TestEvict(t *testing.T) {
	cache, err := New(t.TempDir(), "v1", testLogger())
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}

	if err := cache.Put("/style.css", "text/css", []byte("body{}")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, _, ok := cache.Get("/style.css"); !ok {
		t.Fatal("expected cached entry")
	}

	cache.Evict("/style.css")
	if _, _, ok := cache.Get("/style.css"); ok {
		t.Error("expected entry evicted")
	}
}
