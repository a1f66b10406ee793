package config

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher re-reads the YAML config file when it changes and exposes the
// reloadable subset: the webhook shared secret and the log level. Everything
// else requires a restart.
type Watcher struct {
	path     string
	mu       sync.RWMutex
	current  *Config
	onReload []func(*Config)
	watcher  *fsnotify.Watcher
}

// NewWatcher wraps an already loaded config for the given YAML path.
func NewWatcher(path string, cfg *Config) *Watcher {
	return &Watcher{path: path, current: cfg}
}

// Current returns the latest configuration.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// WebhookSecret returns the latest webhook shared secret.
func (w *Watcher) WebhookSecret() string {
	return w.Current().Webhook.SharedSecret
}

// OnReload registers a callback invoked after every successful reload.
func (w *Watcher) OnReload(fn func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onReload = append(w.onReload, fn)
}

// Start begins watching the config file. The returned stop function closes
// the underlying watcher.
func (w *Watcher) Start() (func(), error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config watcher: %w", err)
	}
	if err := fw.Add(w.path); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("config watcher add %s: %w", w.path, err)
	}
	w.watcher = fw

	go func() {
		for {
			select {
			case ev, ok := <-fw.Events:
				if !ok {
					return
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
					w.reload()
				}
			case err, ok := <-fw.Errors:
				if !ok {
					return
				}
				slog.Warn("config watch error", "error", err)
			}
		}
	}()

	return func() { _ = fw.Close() }, nil
}

// reload re-reads the file and swaps in the new config. A file that fails to
// load leaves the previous config in place.
func (w *Watcher) reload() {
	cfg, err := LoadFrom(w.path)
	if err != nil {
		slog.Warn("config reload failed, keeping previous", "path", w.path, "error", err)
		return
	}

	w.mu.Lock()
	w.current = cfg
	callbacks := append([]func(*Config){}, w.onReload...)
	w.mu.Unlock()

	slog.Info("config reloaded", "path", w.path)
	for _, fn := range callbacks {
		fn(cfg)
	}
}
