package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchSettleDelay is how long Watch waits after a filesystem event before
// reloading, so editors that write-then-rename produce one reload.
const watchSettleDelay = 500 * time.Millisecond

// Watch monitors the config file and invokes onChange with the freshly
// loaded Settings whenever it changes and still validates. A config edit
// that fails to load is logged and ignored; the previous settings stay in
// effect. Blocks until the context is canceled.
//
// The parent directory is watched rather than the file itself: most editors
// replace the file by rename, which drops a file-level watch.
func Watch(ctx context.Context, path string, env EnvOverrides, cli CLIOverrides, logger *slog.Logger, onChange func(*Settings)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}

	settle := time.NewTimer(time.Hour)
	if !settle.Stop() {
		<-settle.C
	}
	defer settle.Stop()

	logger.Debug("watching config file", slog.String("path", path))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}

			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			settle.Reset(watchSettleDelay)

		case <-settle.C:
			settings, loadErr := Resolve(env, cli)
			if loadErr != nil {
				logger.Warn("config reload failed, keeping previous settings",
					slog.String("path", path),
					slog.String("error", loadErr.Error()),
				)

				continue
			}

			logger.Info("config reloaded", slog.String("path", path))
			onChange(settings)

		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			logger.Warn("config watcher error", slog.String("error", watchErr.Error()))
		}
	}
}
