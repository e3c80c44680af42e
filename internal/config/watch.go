package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watch reloads the configuration file whenever it changes and passes every
// valid result to onChange. Invalid files are logged and ignored. Watch
// blocks until ctx is cancelled.
//
// The parent directory is watched rather than the file so that editors which
// replace the file by rename are still picked up.
func Watch(ctx context.Context, path string, debounce time.Duration, log zerolog.Logger, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	target := filepath.Clean(path)
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(debounce)
			fire = timer.C

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			log.Warn().Err(err).Msg("config watcher error")

		case <-fire:
			fire = nil
			cfg, err := Load(path)
			if err != nil {
				log.Error().Err(err).Str("path", path).Msg("ignoring invalid configuration")
				continue
			}
			log.Info().Str("path", path).Msg("configuration reloaded")
			onChange(cfg)
		}
	}
}
