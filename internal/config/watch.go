package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/bryanchriswhite/navbar-watcher/internal/logger"
	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 250 * time.Millisecond

// Watch reloads the manager whenever its file changes and calls onChange with
// the new config. The parent directory is watched so editors that replace the
// file on save are still seen. Blocks until ctx is cancelled.
func (m *Manager) Watch(ctx context.Context, onChange func(*Config)) error {
	log := logger.WithComponent("config")

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(m.configPath)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	target := filepath.Clean(m.configPath)
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
			} else {
				timer.Reset(reloadDebounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			if err := m.Reload(); err != nil {
				log.Warn().Err(err).Msg("Config reload failed, keeping previous config")
				continue
			}
			log.Info().Str("path", m.configPath).Msg("Config reloaded")
			if onChange != nil {
				onChange(m.Get())
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("Config watcher error")
		}
	}
}
