package assets

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Watcher invalidates cache entries when the source files they were built
// from change on disk. It is used in deployments where the upstream serves
// a local static directory: editing a file evicts the stale entry so the
// next request re-fetches it.
type Watcher struct {
	cache   *Cache
	srcDir  string
	watcher *fsnotify.Watcher
}

// NewWatcher creates a watcher over srcDir that evicts entries from cache.
func NewWatcher(cache *Cache, srcDir string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	if err := fsw.Add(srcDir); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", srcDir, err)
	}

	return &Watcher{
		cache:   cache,
		srcDir:  srcDir,
		watcher: fsw,
	}, nil
}

// Run processes filesystem events until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	defer w.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}

			key := w.keyFor(event.Name)
			if key == "" {
				continue
			}

			w.cache.logger.Printf("Source changed, evicting %s", key)
			w.cache.Evict(key)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.cache.logger.Printf("Watcher error: %v", err)
		}
	}
}

// keyFor maps a changed source file to its cache key (the request path).
func (w *Watcher) keyFor(path string) string {
	rel, err := filepath.Rel(w.srcDir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return ""
	}
	return "/" + filepath.ToSlash(rel)
}
