// Package config provides configuration watching and hot-reload functionality
package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ChangeCallback is called when the watched configuration changes.
type ChangeCallback func(oldConfig, newConfig *Config)

// Watcher watches a configuration file for changes and provides hot-reload
// functionality.
type Watcher struct {
	// Configuration file path
	configFile string

	// Configuration loader
	loader *Loader

	// Current configuration
	config   *Config
	configMu sync.RWMutex

	// File system watcher
	fsWatcher *fsnotify.Watcher

	// Event callbacks
	callbacks   []ChangeCallback
	callbacksMu sync.RWMutex

	// Context for cancellation
	ctx    context.Context
	cancel context.CancelFunc

	// Wait group for goroutines
	wg sync.WaitGroup
}

// NewWatcher creates a watcher over configFile, loading the initial
// configuration immediately.
func NewWatcher(configFile string, loader *Loader) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigWatchError, err)
	}

	config, err := loader.Load(configFile)
	if err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("load initial config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Watcher{
		configFile: configFile,
		loader:     loader,
		config:     config,
		fsWatcher:  fsWatcher,
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// Config returns the current configuration.
func (w *Watcher) Config() *Config {
	w.configMu.RLock()
	defer w.configMu.RUnlock()
	return w.config
}

// OnChange registers a callback invoked after each successful reload.
func (w *Watcher) OnChange(cb ChangeCallback) {
	w.callbacksMu.Lock()
	defer w.callbacksMu.Unlock()
	w.callbacks = append(w.callbacks, cb)
}

// Start begins watching the configuration file's directory. Watching the
// directory rather than the file survives editors that replace the file.
func (w *Watcher) Start() error {
	dir := filepath.Dir(w.configFile)
	if err := w.fsWatcher.Add(dir); err != nil {
		return fmt.Errorf("%w: %v", ErrConfigWatchError, err)
	}

	w.wg.Add(1)
	go w.watch()

	return nil
}

// Stop stops watching and releases resources.
func (w *Watcher) Stop() {
	w.cancel()
	w.fsWatcher.Close()
	w.wg.Wait()
}

func (w *Watcher) watch() {
	defer w.wg.Done()

	// Debounce rapid write sequences from editors.
	var pending <-chan time.Time

	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.configFile) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			pending = time.After(100 * time.Millisecond)

		case <-pending:
			pending = nil
			w.reload()

		case _, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}

		case <-w.ctx.Done():
			return
		}
	}
}

func (w *Watcher) reload() {
	newConfig, err := w.loader.Load(w.configFile)
	if err != nil {
		// Keep the last good configuration on a bad reload.
		return
	}

	w.configMu.Lock()
	oldConfig := w.config
	w.config = newConfig
	w.configMu.Unlock()

	w.callbacksMu.RLock()
	callbacks := make([]ChangeCallback, len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.callbacksMu.RUnlock()

	for _, cb := range callbacks {
		cb(oldConfig, newConfig)
	}
}
