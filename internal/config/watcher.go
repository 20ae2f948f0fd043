package config

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/vyrodovalexey/avasdk/internal/observability"
)

// DefaultDebounceDelay is how long a burst of file events must be quiet
// before the file is reloaded.
const DefaultDebounceDelay = 100 * time.Millisecond

// ApplyFunc receives every configuration resolved from the watched file.
// Returning an error rejects it and keeps the previous one in effect.
type ApplyFunc func(resolved *Client) error

// Watcher keeps a client configuration in sync with a YAML file. The
// file is a Layer resolved on top of a base configuration. Files that
// fail to parse or validate are reported and otherwise ignored.
type Watcher struct {
	path     string
	base     Client
	apply    ApplyFunc
	onError  func(error)
	debounce time.Duration
	logger   observability.Logger

	current atomic.Pointer[Client]
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounceDelay sets how long events must settle before a reload.
func WithDebounceDelay(delay time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounce = delay
	}
}

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// WithBase sets the configuration the file is resolved on top of. It
// defaults to Defaults().
func WithBase(base Client) WatcherOption {
	return func(w *Watcher) {
		w.base = base
	}
}

// WithErrorCallback receives reload and watch errors after the initial
// load.
func WithErrorCallback(callback func(error)) WatcherOption {
	return func(w *Watcher) {
		w.onError = callback
	}
}

// NewWatcher creates a watcher for path. Nothing is read until Reload or
// Run is called.
func NewWatcher(path string, apply ApplyFunc, opts ...WatcherOption) (*Watcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		path:     absPath,
		base:     Defaults(),
		apply:    apply,
		debounce: DefaultDebounceDelay,
		logger:   observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Current returns the configuration last applied, or nil before the
// first successful load.
func (w *Watcher) Current() *Client {
	return w.current.Load()
}

// Reload reads, resolves and applies the file once.
func (w *Watcher) Reload() error {
	layer, err := LoadFile(w.path)
	if err != nil {
		return err
	}
	resolved, err := Resolve(w.base, layer)
	if err != nil {
		return err
	}
	if w.apply != nil {
		if err := w.apply(resolved); err != nil {
			return err
		}
	}
	w.current.Store(resolved)

	w.logger.Info("client configuration applied",
		observability.String("path", w.path),
		observability.String("region", resolved.Region),
		observability.String("retry_mode", string(resolved.Retry.Mode)),
		observability.Int("max_attempts", resolved.Retry.MaxAttempts),
	)
	return nil
}

// Run loads the file, then reloads it after every change until ctx is
// done. The initial load must succeed. Later failures go to the error
// callback and leave the previous configuration in effect.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.Reload(); err != nil {
		return err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = fsw.Close() }()

	// Editors replace the file rather than write it, so watch the directory.
	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		return err
	}
	w.logger.Debug("watching client configuration", observability.String("path", w.path))

	debounce := time.NewTimer(w.debounce)
	debounce.Stop()
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) == w.path && (event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
				debounce.Reset(w.debounce)
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.report("watch failed", err)

		case <-debounce.C:
			if err := w.Reload(); err != nil {
				w.report("reload failed, keeping previous configuration", err)
			}
		}
	}
}

func (w *Watcher) report(msg string, err error) {
	w.logger.Warn(msg,
		observability.String("path", w.path),
		observability.Error(err),
	)
	if w.onError != nil {
		w.onError(err)
	}
}
