package config

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Verify at compile time that ConfigWatcher implements Watcher.
var _ Watcher = (*ConfigWatcher)(nil)

// ConfigWatcher watches a single config file on disk and drives
// spec.md §4.5's in-place reload: every validated change is pushed to each
// subscriber, which is expected to rebuild its component tree from the new
// Config and call lifecycle.ComponentTree.Reload with it (see
// cmd/coregate/main.go's reload loop).
type ConfigWatcher struct {
	currentConfig atomic.Value
	configPath    string
	watcher       *fsnotify.Watcher
	logger        *zap.Logger

	mu          sync.Mutex
	subscribers []chan<- *Config
}

// NewConfigWatcher loads configPath once, then watches it for writes.
func NewConfigWatcher(configPath string, logger *zap.Logger) (*ConfigWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	cw := &ConfigWatcher{
		configPath: configPath,
		watcher:    watcher,
		logger:     logger,
	}

	initialConfig, err := LoadFile(configPath)
	if err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to load initial config: %w", err)
	}
	cw.currentConfig.Store(initialConfig)

	if err := watcher.Add(configPath); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch config file: %w", err)
	}

	go cw.watchConfig()
	return cw, nil
}

// Subscribe registers a channel that receives every subsequent validated
// config change. The channel is buffered by one; while a change is still
// buffered, later changes are not sent to that subscriber (GetCurrentConfig
// returns the latest one).
func (cw *ConfigWatcher) Subscribe() <-chan *Config {
	ch := make(chan *Config, 1)
	cw.mu.Lock()
	cw.subscribers = append(cw.subscribers, ch)
	cw.mu.Unlock()
	return ch
}

// GetCurrentConfig returns the most recently loaded configuration.
func (cw *ConfigWatcher) GetCurrentConfig() *Config {
	return cw.currentConfig.Load().(*Config)
}

func (cw *ConfigWatcher) watchConfig() {
	for {
		select {
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Write == fsnotify.Write {
				cw.handleConfigChange()
			}
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			cw.logger.Error("Config watcher error", zap.Error(err))
		}
	}
}

func (cw *ConfigWatcher) handleConfigChange() {
	cw.logger.Info("Detected config file change, reloading...")

	newConfig, err := LoadFile(cw.configPath)
	if err != nil {
		cw.logger.Error("Failed to load new config", zap.Error(err))
		return
	}

	// Validate the new configuration
	if err := newConfig.Validate(); err != nil {
		cw.logger.Error("Invalid new configuration", zap.Error(err))
		return
	}

	cw.currentConfig.Store(newConfig)

	cw.mu.Lock()
	subscribers := make([]chan<- *Config, len(cw.subscribers))
	copy(subscribers, cw.subscribers)
	cw.mu.Unlock()

	for _, sub := range subscribers {
		select {
		case sub <- newConfig:
		default:
			// subscriber hasn't drained the last one yet; it will catch up
			// on GetCurrentConfig, not this particular change.
		}
	}

	cw.logger.Info("Configuration reloaded successfully")
}

func (cw *ConfigWatcher) Close() error {
	return cw.watcher.Close()
}
