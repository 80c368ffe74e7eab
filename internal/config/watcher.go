// internal/config/watcher.go
package config

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ErrWatcherFailed indicates the filesystem watcher failed to initialize.
var ErrWatcherFailed = errors.New("failed to initialize filesystem watcher")

// Reload carries a successfully reloaded configuration.
type Reload struct {
	Config    *Config
	Timestamp time.Time
}

// Watcher observes the config file and emits reloaded configurations when it
// changes. Only tunable thresholds are expected to be consumed from reloads;
// structural settings (ports, store provider) require a restart.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	reloads chan Reload
	stop    chan struct{}
}

// NewWatcher creates a watcher for the given config file path.
func NewWatcher(path string) (*Watcher, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}

	return &Watcher{
		path:    path,
		watcher: watcher,
		reloads: make(chan Reload, 4),
		stop:    make(chan struct{}),
	}, nil
}

// Start begins watching for config changes. Events are delivered on the
// Reloads() channel. Call Stop() to clean up resources.
//
// The parent directory is watched rather than the file itself so that
// editors which replace the file (rename + create) keep triggering reloads.
func (w *Watcher) Start(ctx context.Context) error {
	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("watching config directory: %w", err)
	}

	go w.processEvents(ctx)

	return nil
}

// Stop stops the watcher and cleans up resources.
func (w *Watcher) Stop() {
	select {
	case <-w.stop:
		// Already stopped
		return
	default:
		close(w.stop)
		_ = w.watcher.Close()
	}
}

// Reloads returns the channel for receiving reloaded configurations.
func (w *Watcher) Reloads() <-chan Reload {
	return w.reloads
}

// processEvents filters filesystem events down to the config file and
// re-runs the loader on each change.
func (w *Watcher) processEvents(ctx context.Context) {
	target := filepath.Base(w.path)

	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.reload()
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			// Watch errors are transient; keep watching.
		}
	}
}

// reload re-parses the config file; invalid intermediate states (partial
// writes, bad values) are dropped so the last good config stays in effect.
func (w *Watcher) reload() {
	cfg, err := LoadWithFile(w.path)
	if err != nil {
		return
	}

	// Send non-blocking; a slow consumer coalesces to the latest reload.
	select {
	case w.reloads <- Reload{Config: cfg, Timestamp: time.Now()}:
	default:
	}
}
