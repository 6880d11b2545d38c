// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	xglog "github.com/ManuGH/embedbridge/internal/log"
)

const defaultDebounce = 500 * time.Millisecond

// ConfigHolder serves the current AppConfig and swaps it on reload.
// New sessions read Get; running sessions keep the EmbedConfig they were
// initialized with.
type ConfigHolder struct {
	mu      sync.RWMutex
	current AppConfig

	loader   *Loader
	logger   zerolog.Logger
	debounce time.Duration
	wg       sync.WaitGroup

	subMu sync.Mutex
	subs  []chan<- AppConfig
}

func NewConfigHolder(initial AppConfig, loader *Loader) *ConfigHolder {
	return &ConfigHolder{
		current:  initial,
		loader:   loader,
		logger:   xglog.WithComponent("config"),
		debounce: defaultDebounce,
	}
}

// Get returns the configuration new sessions should use.
func (h *ConfigHolder) Get() AppConfig {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Reload reads the file and environment again. A config that fails to load
// or validate leaves the current one in place.
func (h *ConfigHolder) Reload(_ context.Context) error {
	next, err := h.loader.Load()
	if err != nil {
		h.logger.Error().Err(err).Str("event", "config.reload_failed").Msg("config reload rejected, keeping current config")
		return fmt.Errorf("load config: %w", err)
	}

	h.mu.Lock()
	prev := h.current
	h.current = next
	h.mu.Unlock()

	changes := diff(prev, next)
	for _, c := range changes {
		ev := h.logger.Info()
		if c.restart {
			ev = h.logger.Warn().Bool("restart_required", true)
		}
		if !c.secret {
			ev = ev.Str("old", c.old).Str("new", c.new)
		}
		ev.Str("event", "config.changed").Str("key", c.key).Msg("config value changed")
	}
	h.publish(next)
	h.logger.Info().Str("event", "config.reloaded").Int("changes", len(changes)).Msg("config reloaded")
	return nil
}

// Subscribe registers ch for every successfully reloaded config. Delivery
// never blocks: a full channel misses that update.
func (h *ConfigHolder) Subscribe(ch chan<- AppConfig) {
	h.subMu.Lock()
	h.subs = append(h.subs, ch)
	h.subMu.Unlock()
}

func (h *ConfigHolder) publish(cfg AppConfig) {
	h.subMu.Lock()
	defer h.subMu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- cfg:
		default:
			h.logger.Warn().Str("event", "config.subscriber_full").Msg("config subscriber not keeping up, update skipped")
		}
	}
}

// StartWatcher reloads the config whenever its file changes, until ctx is
// done. Without a config file it does nothing.
func (h *ConfigHolder) StartWatcher(ctx context.Context) error {
	path := h.loader.Path()
	if path == "" {
		h.logger.Info().Str("event", "config.watch_disabled").Msg("no config file, hot reload disabled")
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	// Atomic writers replace the file, so the directory is watched.
	if err := w.Add(filepath.Dir(path)); err != nil {
		_ = w.Close()
		return fmt.Errorf("watch config dir: %w", err)
	}

	h.logger.Info().Str("event", "config.watch_started").Str(xglog.FieldPath, path).Msg("watching config file")
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer func() { _ = w.Close() }()
		h.watch(ctx, w, filepath.Clean(path))
	}()
	return nil
}

// Wait blocks until the watcher goroutine has exited.
func (h *ConfigHolder) Wait() { h.wg.Wait() }

func (h *ConfigHolder) watch(ctx context.Context, w *fsnotify.Watcher, path string) {
	settle := time.NewTimer(h.debounce)
	settle.Stop()
	defer settle.Stop()

	const relevant = fsnotify.Write | fsnotify.Create | fsnotify.Rename
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != path || ev.Op&relevant == 0 {
				continue
			}
			h.logger.Debug().Str("event", "config.file_changed").Str("op", ev.Op.String()).Msg("config file changed")
			settle.Reset(h.debounce)
		case <-settle.C:
			// The error is already logged by Reload.
			_ = h.Reload(ctx)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			h.logger.Error().Err(err).Str("event", "config.watch_error").Msg("config watcher error")
		}
	}
}

type change struct {
	key      string
	old, new string
	restart  bool
	secret   bool
}

type watchedField struct {
	key     string
	value   func(AppConfig) string
	restart bool
	secret  bool
}

// watchedFields are the keys whose changes get logged on reload. Keys
// marked restart only take effect when the daemon starts.
var watchedFields = []watchedField{
	{key: "logLevel", value: func(c AppConfig) string { return c.LogLevel }},
	{key: "listenAddr", value: func(c AppConfig) string { return c.ListenAddr }, restart: true},
	{key: "embed.host", value: func(c AppConfig) string { return c.Embed.Host }},
	{key: "embed.authMode", value: func(c AppConfig) string { return c.Embed.AuthMode }},
	{key: "embed.commandTimeout", value: func(c AppConfig) string { return c.Embed.CommandTimeout.String() }},
	{key: "embed.stylesheetURL", value: func(c AppConfig) string { return c.Embed.StylesheetURL }},
	{key: "auth.staticToken", value: func(c AppConfig) string { return c.Auth.StaticToken }, secret: true},
	{key: "auth.tokenURL", value: func(c AppConfig) string { return c.Auth.TokenURL }, secret: true},
	{key: "channel.codec", value: func(c AppConfig) string { return c.Channel.Codec }},
	{key: "journal.backend", value: func(c AppConfig) string { return c.Journal.Backend }, restart: true},
	{key: "journal.path", value: func(c AppConfig) string { return c.Journal.Path }, restart: true},
	{key: "directory.redisAddr", value: func(c AppConfig) string { return c.Directory.RedisAddr }, restart: true},
	{key: "directory.password", value: func(c AppConfig) string { return c.Directory.Password }, restart: true, secret: true},
}

func diff(prev, next AppConfig) []change {
	var out []change
	for _, f := range watchedFields {
		o, n := f.value(prev), f.value(next)
		if o == n {
			continue
		}
		out = append(out, change{key: f.key, old: o, new: n, restart: f.restart, secret: f.secret})
	}
	return out
}
