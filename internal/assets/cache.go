// Package assets provides the cache-first asset cache used to keep the
// converter page working offline. It is deliberately minimal context
// around the persistence core: a versioned disk cache with a precache
// (install) step, an old-version prune (activate) step, and an HTTP
// handler that serves cached responses first and falls back to the
// network, or to an offline page when both miss.
package assets

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

const offlinePage = `<!DOCTYPE html>
<html>
<head>
    <title>Offline</title>
</head>
<body>
    <h1>You are offline</h1>
    <p>The unit converter is unavailable right now. Your conversions and
    preferences are saved locally and will sync when you reconnect.</p>
</body>
</html>`

// Cache is a versioned disk cache of upstream responses.
// Entries for version v live under dir/v/; Activate prunes other versions.
type Cache struct {
	dir     string
	version string
	client  *http.Client
	logger  *log.Logger
}

// New creates a Cache rooted at dir for the given cache version.
func New(dir, version string, logger *log.Logger) (*Cache, error) {
	if version == "" {
		return nil, fmt.Errorf("cache version cannot be empty")
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[assets] ", log.LstdFlags)
	}

	if err := os.MkdirAll(filepath.Join(dir, version), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	return &Cache{
		dir:     dir,
		version: version,
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}, nil
}

// entryPath maps a request path to its cache file.
func (c *Cache) entryPath(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(c.dir, c.version, hex.EncodeToString(sum[:16]))
}

// Put stores a response body for the given request path.
func (c *Cache) Put(key, contentType string, body []byte) error {
	path := c.entryPath(key)
	if err := os.WriteFile(path+".type", []byte(contentType), 0644); err != nil {
		return fmt.Errorf("failed to store cache metadata for %s: %w", key, err)
	}
	if err := os.WriteFile(path, body, 0644); err != nil {
		return fmt.Errorf("failed to store cache entry for %s: %w", key, err)
	}
	return nil
}

// Get returns the cached body and content type for the request path.
func (c *Cache) Get(key string) ([]byte, string, bool) {
	path := c.entryPath(key)
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, "", false
	}
	contentType, err := os.ReadFile(path + ".type")
	if err != nil {
		contentType = []byte("application/octet-stream")
	}
	return body, string(contentType), true
}

// Evict removes the cache entry for the request path, if present.
func (c *Cache) Evict(key string) {
	path := c.entryPath(key)
	_ = os.Remove(path)
	_ = os.Remove(path + ".type")
}

// Install precaches the given request paths from the upstream base URL.
// Per-path failures are logged and skipped; install succeeds as long as
// the cache directory itself is usable.
func (c *Cache) Install(ctx context.Context, upstreamBase string, paths []string) error {
	for _, p := range paths {
		body, contentType, err := c.fetch(ctx, upstreamBase, p)
		if err != nil {
			c.logger.Printf("WARNING: failed to precache %s: %v", p, err)
			continue
		}
		if err := c.Put(p, contentType, body); err != nil {
			c.logger.Printf("WARNING: failed to store %s: %v", p, err)
		}
	}
	return nil
}

// Activate prunes cache directories belonging to other versions.
func (c *Cache) Activate() error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return fmt.Errorf("failed to read cache directory: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == c.version {
			continue
		}
		old := filepath.Join(c.dir, entry.Name())
		c.logger.Printf("Pruning old cache version: %s", entry.Name())
		if err := os.RemoveAll(old); err != nil {
			c.logger.Printf("WARNING: failed to prune %s: %v", old, err)
		}
	}
	return nil
}

// Handler returns an HTTP handler implementing the cache-first policy:
// serve from cache, on miss fetch from upstream and cache the result, and
// when upstream is unreachable serve the offline fallback page.
func (c *Cache) Handler(upstreamBase string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path

		if body, contentType, ok := c.Get(key); ok {
			w.Header().Set("Content-Type", contentType)
			_, _ = w.Write(body)
			return
		}

		body, contentType, err := c.fetch(r.Context(), upstreamBase, key)
		if err != nil {
			c.logger.Printf("Upstream unavailable for %s: %v", key, err)
			w.Header().Set("Content-Type", "text/html")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = io.WriteString(w, offlinePage)
			return
		}

		if err := c.Put(key, contentType, body); err != nil {
			c.logger.Printf("WARNING: failed to cache %s: %v", key, err)
		}

		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write(body)
	})
}

// fetch retrieves a path from the upstream.
func (c *Cache) fetch(ctx context.Context, upstreamBase, path string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, upstreamBase+path, nil)
	if err != nil {
		return nil, "", err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("upstream returned %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}

	return body, resp.Header.Get("Content-Type"), nil
}
