package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/harun/quiver/internal/observability"
)

// ReloadCallback receives the freshly loaded config after a file change.
type ReloadCallback func(cfg *Config)

// Watcher reloads the configuration when the config file changes on disk.
// Reloads that fail to parse or validate are dropped with a warning; the
// previously published config stays in effect.
type Watcher struct {
	loader   *Loader
	watcher  *fsnotify.Watcher
	logger   zerolog.Logger
	onReload ReloadCallback
	debounce time.Duration

	mu       sync.Mutex
	timer    *time.Timer
	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewWatcher starts watching the loader's config file. Editors replace
// files instead of writing in place, so the watch covers the parent
// directory and filters by name.
func NewWatcher(loader *Loader, logger zerolog.Logger, onReload ReloadCallback) (*Watcher, error) {
	configPath := loader.GetConfigPath()
	if configPath == "" {
		return nil, fmt.Errorf("cannot resolve config path to watch")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create config watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(configPath)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch config directory: %w", err)
	}

	w := &Watcher{
		loader:   loader,
		watcher:  fsw,
		logger:   logger.With().Str("component", "config").Logger(),
		onReload: onReload,
		debounce: 500 * time.Millisecond,
		stopCh:   make(chan struct{}),
	}

	go w.run(filepath.Base(configPath))

	w.logger.Info().Str("path", configPath).Msg("Watching config file for changes")
	return w, nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.stopCh)
		err = w.watcher.Close()
	})
	return err
}

func (w *Watcher) run(configName string) {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != configName {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.logger.Debug().Str("op", event.Op.String()).Msg("Config file change detected")
				w.scheduleReload()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("Config watcher error")

		case <-w.stopCh:
			return
		}
	}
}

// scheduleReload debounces bursts of write events into one reload.
func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	cfg, err := w.loader.Load()
	if err != nil {
		w.logger.Warn().Err(err).Msg("Config reload failed; keeping previous config")
		return
	}
	if err := cfg.Validate(); err != nil {
		w.logger.Warn().Err(err).Msg("Reloaded config invalid; keeping previous config")
		return
	}

	w.logger.Info().Msg("Config reloaded")
	observability.RecordConfigAudit(context.Background(), "config_reloaded", "watcher", map[string]interface{}{
		"path": w.loader.GetConfigPath(),
	})
	if w.onReload != nil {
		w.onReload(cfg)
	}
}
