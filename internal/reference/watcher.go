package reference

import (
	"context"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const watchDebounce = 50 * time.Millisecond

// Watcher drops a resolver's cache when files appear in, or vanish from,
// one of its search paths.
type Watcher struct {
	resolver *CachedResolver
	fsw      *fsnotify.Watcher
	logger   *slog.Logger

	mu      sync.Mutex
	watched []string
}

// NewWatcher creates a watcher that follows the resolver's search paths.
func NewWatcher(r *CachedResolver, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	w := &Watcher{resolver: r, fsw: fsw, logger: logger}
	w.Sync(r.SearchPaths())
	r.OnSearchPathsChanged(w.Sync)
	return w, nil
}

// Sync updates the watched directories to match paths.
func (w *Watcher) Sync(paths []string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, p := range w.watched {
		if !slices.Contains(paths, p) {
			_ = w.fsw.Remove(p)
		}
	}
	var watched []string
	for _, p := range paths {
		if slices.Contains(w.watched, p) {
			watched = append(watched, p)
			continue
		}
		if err := w.fsw.Add(p); err != nil {
			// Missing search paths are legal; they are searched but not watched
			w.logger.Debug("search path not watched", "path", p, "error", err)
			continue
		}
		watched = append(watched, p)
	}
	w.watched = watched
}

// Watched returns the directories currently watched.
func (w *Watcher) Watched() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Clone(w.watched)
}

// Run processes file events until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if !isReferenceFile(event.Name) {
				continue
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			name := event.Name
			debounceTimer = time.AfterFunc(watchDebounce, func() {
				w.logger.Debug("reference file changed, dropping cache", "file", name)
				w.resolver.Invalidate()
			})

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

func isReferenceFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == SourceExt || ext == ImageExt
}
