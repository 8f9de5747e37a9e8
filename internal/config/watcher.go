package config

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FilterWatcher hot-reloads the request filter denylist from a YAML file
// without restarting the process. It exposes the current list via an
// atomic pointer swap: writers never block readers, and a bad reload
// leaves the prior list in place.
type FilterWatcher struct {
	path     string
	current  atomic.Pointer[[]string]
	watcher  *fsnotify.Watcher
	logger   *slog.Logger
	onChange []func([]string)
}

// NewFilterWatcher starts from the initial denylist the caller already
// loaded and prepares to watch path. path must already exist when Watch
// is called; callers that have no file to watch
// should skip hot reload entirely and use the filters loaded at Config.Load.
func NewFilterWatcher(path string, initial []string, logger *slog.Logger) *FilterWatcher {
	if logger == nil {
		logger = slog.Default()
	}
	w := &FilterWatcher{path: path, logger: logger}
	w.current.Store(&initial)
	return w
}

// Current returns the denylist in effect right now.
func (w *FilterWatcher) Current() []string {
	if p := w.current.Load(); p != nil {
		return *p
	}
	return nil
}

// OnChange registers a callback invoked with the new denylist after a
// successful reload.
func (w *FilterWatcher) OnChange(fn func([]string)) {
	w.onChange = append(w.onChange, fn)
}

// Watch starts watching path for writes, debouncing rapid changes, and
// reloading the denylist on ctx until ctx is canceled.
func (w *FilterWatcher) Watch(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fw.Add(w.path); err != nil {
		_ = fw.Close()
		return err
	}
	w.watcher = fw

	go w.loop(ctx)
	return nil
}

func (w *FilterWatcher) loop(ctx context.Context) {
	const debounceDelay = 500 * time.Millisecond
	var timer *time.Timer

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			_ = w.watcher.Close()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounceDelay, w.reload)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("request filter watcher error", "error", err)
		}
	}
}

func (w *FilterWatcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Error("failed to reload request filters, keeping current list", "error", err)
		return
	}
	filters := cfg.RequestFilters
	w.current.Store(&filters)
	w.logger.Info("request filters reloaded", "count", len(filters))
	for _, fn := range w.onChange {
		fn(filters)
	}
}

// Close stops the watcher.
func (w *FilterWatcher) Close() error {
	if w.watcher != nil {
		return w.watcher.Close()
	}
	return nil
}
