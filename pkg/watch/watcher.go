// Package watch re-runs a conversion whenever a watched trace changes.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	cerrors "github.com/logflow/uppaal2octopus/pkg/errors"
)

// DefaultDebounce is how long a file must stay quiet before it is handled.
const DefaultDebounce = 500 * time.Millisecond

// HandlerFunc is called with the absolute path of a changed file. Calls
// are serialized.
type HandlerFunc func(ctx context.Context, path string) error

// Watcher monitors files for changes.
type Watcher struct {
	watcher  *fsnotify.Watcher
	debounce time.Duration
	logger   *slog.Logger

	mu    sync.Mutex
	files map[string]fileState
}

type fileState struct {
	modTime time.Time
	size    int64
}

// NewWatcher creates a new file watcher. A zero debounce selects
// DefaultDebounce; a nil logger selects slog.Default().
func NewWatcher(debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		watcher:  fsw,
		debounce: debounce,
		logger:   logger,
		files:    make(map[string]fileState),
	}, nil
}

// Add starts watching path. The containing directory is watched so that
// editors replacing the file are noticed.
func (w *Watcher) Add(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}

	w.mu.Lock()
	w.files[abs] = fileState{modTime: fi.ModTime(), size: fi.Size()}
	w.mu.Unlock()

	if err := w.watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch directory: %w", err)
	}
	return nil
}

// Run dispatches debounced changes to fn until ctx is canceled. Handler
// errors are logged and do not stop the watcher.
func (w *Watcher) Run(ctx context.Context, fn HandlerFunc) error {
	defer w.watcher.Close()

	changed := make(chan string, 16)
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			case path := <-changed:
				if !w.modified(path) {
					continue
				}
				w.handle(ctx, fn, path)
			}
		}
	}()

	timers := make(map[string]*time.Timer)
	defer func() {
		for _, t := range timers {
			t.Stop()
		}
		close(stop)
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			abs, err := filepath.Abs(ev.Name)
			if err != nil || !w.watched(abs) {
				continue
			}

			if t, ok := timers[abs]; ok {
				t.Stop()
			}
			timers[abs] = time.AfterFunc(w.debounce, func() {
				select {
				case changed <- abs:
				case <-stop:
				}
			})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", slog.Any("error", err))
		}
	}
}

// handle runs fn for path. A run interrupted by cancellation is only
// logged at debug level.
func (w *Watcher) handle(ctx context.Context, fn HandlerFunc, path string) {
	err := fn(ctx, path)
	switch {
	case err == nil:
	case cerrors.IsFatal(err):
		w.logger.Error("conversion failed", slog.String("path", path), slog.Any("error", err))
	default:
		w.logger.Debug("conversion interrupted", slog.String("path", path), slog.Any("error", err))
	}
}

func (w *Watcher) watched(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.files[path]
	return ok
}

// modified records the current stat of path and reports whether it
// differs from the last one seen.
func (w *Watcher) modified(path string) bool {
	fi, err := os.Stat(path)
	if err != nil {
		w.logger.Warn("stat failed", slog.String("path", path), slog.Any("error", err))
		return false
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	prev := w.files[path]
	if fi.ModTime().Equal(prev.modTime) && fi.Size() == prev.size {
		return false
	}
	w.files[path] = fileState{modTime: fi.ModTime(), size: fi.Size()}
	return true
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
