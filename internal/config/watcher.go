package config

import (
	"errors"
	"log/slog"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long a file must stay quiet before it is reloaded.
const DefaultDebounce = 1500 * time.Millisecond

// Watcher reloads a file through a loader after it changes and hands the
// result to every subscriber. Nothing is cached: each change runs the
// loader again. The parent directory is watched so a file replaced by
// rename keeps being tracked.
type Watcher[T any] struct {
	path     string
	debounce time.Duration
	load     func(path string) (T, error)
	onError  func(error)
	logger   *slog.Logger

	mu     sync.Mutex
	nextID int
	subs   []subscriber[T]

	fsw      *fsnotify.Watcher
	quit     chan struct{}
	loopDone chan struct{}
	stopOnce sync.Once
}

type subscriber[T any] struct {
	id int
	fn func(T)
}

// WatcherOption configures a Watcher.
type WatcherOption[T any] func(*Watcher[T])

// WithDebounce overrides DefaultDebounce.
func WithDebounce[T any](d time.Duration) WatcherOption[T] {
	return func(w *Watcher[T]) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithErrorHandler is called with every loader error. Without it errors
// are only logged and the previous value stays in effect.
func WithErrorHandler[T any](handler func(error)) WatcherOption[T] {
	return func(w *Watcher[T]) {
		w.onError = handler
	}
}

// NewConfigWatcher creates a watcher for path. It does nothing until Start.
func NewConfigWatcher[T any](path string, load func(path string) (T, error), logger *slog.Logger, opts ...WatcherOption[T]) *Watcher[T] {
	w := &Watcher[T]{
		path:     path,
		debounce: DefaultDebounce,
		load:     load,
		logger:   logger,
		quit:     make(chan struct{}),
		loopDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// OnReload subscribes fn to successful reloads, in subscription order.
// The returned function unsubscribes it.
func (w *Watcher[T]) OnReload(fn func(T)) func() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.nextID++
	id := w.nextID
	w.subs = append(w.subs, subscriber[T]{id: id, fn: fn})

	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		w.subs = slices.DeleteFunc(w.subs, func(s subscriber[T]) bool { return s.id == id })
	}
}

// Path returns the watched file. It is absolute once Start succeeded.
func (w *Watcher[T]) Path() string {
	return w.path
}

// Start begins watching. It fails when the parent directory cannot be watched.
func (w *Watcher[T]) Start() error {
	abs, err := filepath.Abs(w.path)
	if err != nil {
		return err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		return errors.Join(err, fsw.Close())
	}

	w.path = abs
	w.fsw = fsw
	w.logger.Info("Config watcher started", "path", abs, "debounce", w.debounce)
	go w.loop()
	return nil
}

// Stop ends watching and waits for the watch loop to return. It may be
// called more than once, and before Start.
func (w *Watcher[T]) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.quit)
		if w.fsw == nil {
			return
		}
		err = w.fsw.Close()
		<-w.loopDone
	})
	return err
}

func (w *Watcher[T]) loop() {
	defer close(w.loopDone)

	quiet := time.NewTimer(w.debounce)
	quiet.Stop()
	defer quiet.Stop()

	for {
		select {
		case <-w.quit:
			w.logger.Debug("Config watcher stopped")
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !w.relevant(ev) {
				continue
			}
			w.logger.Debug("Config file change detected", "op", ev.Op.String())
			quiet.Reset(w.debounce)

		case <-quiet.C:
			w.reload()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Config watcher error", "error", err)
		}
	}
}

// relevant reports whether ev may have changed the watched file's contents.
// Write covers in-place edits; Create covers a file renamed over it.
func (w *Watcher[T]) relevant(ev fsnotify.Event) bool {
	if filepath.Clean(ev.Name) != w.path {
		return false
	}
	return ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)
}

func (w *Watcher[T]) reload() {
	value, err := w.load(w.path)
	if err != nil {
		w.logger.Warn("Failed to load config", "path", w.path, "error", err)
		if w.onError != nil {
			w.onError(err)
		}
		return
	}

	w.mu.Lock()
	subs := slices.Clone(w.subs)
	w.mu.Unlock()

	w.logger.Info("Config reloaded", "path", w.path, "subscribers", len(subs))
	for _, s := range subs {
		s.fn(value)
	}
}
