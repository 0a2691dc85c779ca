package config

import (
	"context"
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// Watch monitors path and calls onChange with the effective Config after
// each write. Only log.level applies to a running server; every other
// change is reported as needing a restart and onChange keeps seeing the
// values the server started with. It runs until ctx is cancelled.
//
// A reload that fails (e.g. invalid YAML) is logged and the previous config
// stays active; onChange is not called.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	current, err := Load(path)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}

	slog.Info("config: watching for changes", "path", path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Editors often save via rename, so Create counts too.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			next, err := Load(path)
			if err != nil {
				slog.Error("config: reload failed, keeping previous config",
					"path", path, "err", err)
				continue
			}
			if pending := RestartRequired(current, next); len(pending) > 0 {
				slog.Warn("config: changes need a restart, keeping running values",
					"path", path, "fields", pending)
			}
			current = withLive(current, next)

			slog.Info("config: reloaded", "path", path, "log_level", current.Server.Log.Level)
			onChange(current)

			// Re-add the file in case an atomic save replaced the inode.
			_ = watcher.Add(path)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "err", err)
		}
	}
}

// RestartRequired lists the settings that differ between running and next
// but are only read at startup: listeners, credentials, transport limits,
// the queue and the log file.
func RestartRequired(running, next *Config) []string {
	a, b := running.Server, next.Server
	var fields []string
	check := func(name string, changed bool) {
		if changed {
			fields = append(fields, name)
		}
	}
	check("server.grpc_port", a.GRPCPort != b.GRPCPort)
	check("server.http_port", a.HTTPPort != b.HTTPPort)
	check("server.auth", a.Auth != b.Auth)
	check("server.token", a.Token != b.Token)
	check("server.ws", a.WS != b.WS)
	check("server.queue", a.Queue != b.Queue)
	check("server.log.file", a.Log.File != b.Log.File)
	return fields
}

// withLive returns running with next's hot-reloadable settings applied.
func withLive(running, next *Config) *Config {
	out := *running
	out.Server.Log.Level = next.Server.Log.Level
	return &out
}
