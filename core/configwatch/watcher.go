package configwatch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces the burst of events an editor or an atomic
// rename produces into one callback.
const DefaultDebounce = 100 * time.Millisecond

// Watcher invokes callbacks when watched files are written or created.
// It watches the parent directory so files replaced by rename, or created
// after Watch, are still seen.
type Watcher struct {
	debounce time.Duration
	logger   *slog.Logger
	fs       *fsnotify.Watcher

	mu      sync.Mutex
	entries map[string][]func(path string)
	dirs    map[string]struct{}
}

// New creates a Watcher. A non-positive debounce uses DefaultDebounce.
func New(debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	return &Watcher{
		debounce: debounce,
		logger:   logger,
		fs:       fw,
		entries:  make(map[string][]func(string)),
		dirs:     make(map[string]struct{}),
	}, nil
}

// Watch registers cb for path. The file does not need to exist yet, but its
// directory does.
func (w *Watcher) Watch(path string, cb func(path string)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	dir := filepath.Dir(abs)
	if _, ok := w.dirs[dir]; !ok {
		if err := w.fs.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
		w.dirs[dir] = struct{}{}
	}
	w.entries[abs] = append(w.entries[abs], cb)
	return nil
}

// Run dispatches change events until the context is cancelled. It blocks, so
// call it in a goroutine. The underlying watcher is closed on return.
func (w *Watcher) Run(ctx context.Context) {
	defer w.fs.Close()

	pending := make(map[string]struct{})
	timer := time.NewTimer(w.debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return

		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			path := filepath.Clean(ev.Name)
			if !w.watched(path) {
				continue
			}
			pending[path] = struct{}{}
			timer.Reset(w.debounce)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", "error", err)

		case <-timer.C:
			for path := range pending {
				w.fire(path)
			}
			clear(pending)
		}
	}
}

// Close releases the watcher without running it.
func (w *Watcher) Close() error {
	return w.fs.Close()
}

func (w *Watcher) watched(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.entries[path]
	return ok
}

func (w *Watcher) fire(path string) {
	w.mu.Lock()
	cbs := append([]func(string){}, w.entries[path]...)
	w.mu.Unlock()

	w.logger.Info("config file changed", "path", path)
	for _, cb := range cbs {
		cb(path)
	}
}
