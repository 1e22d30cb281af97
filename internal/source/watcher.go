package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// ErrWatcherClosed is returned by Run after Close.
var ErrWatcherClosed = errors.New("watcher closed")

// Watcher reloads a template file when it changes and registers the
// templates the sink does not know yet.
//
// Additions are monotonic: lines removed from the file stay registered,
// and a changed line is registered as a new template. A line that fails
// to compile is logged and skipped; the other new lines still register.
type Watcher struct {
	src    Source
	file   string
	sink   Sink
	logger *slog.Logger

	fsw *fsnotify.Watcher

	mu      sync.Mutex
	closed  bool
	closeCh chan struct{}
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithLogger sets the watcher's logger.
func WithLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = l
	}
}

// NewWatcher watches path (already resolved) and reloads it through src.
//
// The parent directory is watched rather than the file, so editors that
// save by rename are handled.
func NewWatcher(path string, src Source, sink Sink, opts ...WatcherOption) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	w := &Watcher{
		src:     src,
		file:    abs,
		sink:    sink,
		logger:  slog.Default(),
		fsw:     fsw,
		closeCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Run processes file events until ctx is cancelled or Close is called.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info("watching templates", "path", w.file)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-w.closeCh:
			return ErrWatcherClosed

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return ErrWatcherClosed
			}
			if !w.relevant(ev) {
				continue
			}
			if _, err := w.Reload(); err != nil {
				w.logger.Error("template reload failed", "path", w.file, "error", err)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return ErrWatcherClosed
			}
			w.logger.Error("watcher error", "path", w.file, "error", err)
		}
	}
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	name, err := filepath.Abs(ev.Name)
	if err != nil || name != w.file {
		return false
	}
	return ev.Op.Has(fsnotify.Write) || ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Rename)
}

// Reload reads the source and registers unseen templates in file order.
// It returns the number of templates added.
func (w *Watcher) Reload() (int, error) {
	templates, err := w.src.Load()
	if err != nil {
		return 0, err
	}

	known := make(map[string]bool)
	for _, t := range w.sink.Templates() {
		known[t] = true
	}

	added := 0
	for _, t := range templates {
		if known[t] {
			continue
		}
		known[t] = true
		if err := w.sink.AddTemplate(t); err != nil {
			w.logger.Error("skipping template", "template", t, "error", err)
			continue
		}
		added++
	}
	if added > 0 {
		w.logger.Info("templates added", "path", w.file, "count", added)
	}
	return added, nil
}

// Close stops Run and releases the OS watch.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.closeCh)
	w.mu.Unlock()

	return w.fsw.Close()
}
