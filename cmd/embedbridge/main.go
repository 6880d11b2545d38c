// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/embedbridge/internal/bridge"
	"github.com/ManuGH/embedbridge/internal/config"
	"github.com/ManuGH/embedbridge/internal/directory"
	"github.com/ManuGH/embedbridge/internal/health"
	"github.com/ManuGH/embedbridge/internal/journal"
	xglog "github.com/ManuGH/embedbridge/internal/log"
	"github.com/ManuGH/embedbridge/internal/telemetry"
	"github.com/ManuGH/embedbridge/internal/version"
)

const (
	shutdownTimeout   = 15 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// maskURL removes user info from a URL string for safe logging.
func maskURL(rawURL string) string {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return "invalid-url-redacted"
	}
	parsedURL.User = nil
	return parsedURL.String()
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) > 0 {
		switch args[0] {
		case "config":
			return runConfigCLI(args[1:])
		case "healthcheck":
			return runHealthcheckCLI(args[1:])
		}
	}
	return runDaemon(args)
}

func runDaemon(args []string) int {
	fs := flag.NewFlagSet("embedbridge", flag.ContinueOnError)
	showVersion := fs.Bool("version", false, "print version and exit")
	configPath := fs.String("config", "", "path to config file (YAML)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	info := version.Get()
	if *showVersion {
		fmt.Println(info.String())
		return 0
	}

	// Safe defaults until config is loaded.
	xglog.Configure(xglog.Config{
		Level:   "info",
		Service: "embedbridge",
		Version: info.Version,
	})
	logger := xglog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	path := strings.TrimSpace(*configPath)
	if path == "" {
		path = strings.TrimSpace(config.ParseString(config.EnvPrefix+"CONFIG", ""))
	}
	loader := config.NewLoader(path, info.Version)
	cfg, err := loader.Load()
	if err != nil {
		logger.Error().
			Err(err).
			Str("event", "config.load_failed").
			Str(xglog.FieldPath, path).
			Msg("failed to load configuration")
		return 1
	}

	xglog.Reconfigure(xglog.Config{
		Level:   cfg.LogLevel,
		Service: "embedbridge",
		Version: info.Version,
	})
	logger = xglog.WithComponent("daemon")
	logConfigSource(logger, path)

	if err := health.PerformStartupChecks(ctx, cfg); err != nil {
		logger.Error().
			Err(err).
			Str("event", "startup.check_failed").
			Msg("startup checks failed, verify configuration")
		return 1
	}

	if err := serve(ctx, logger, cfg, loader); err != nil {
		logger.Error().Err(err).Str("event", "daemon.failed").Msg("daemon failed")
		return 1
	}
	logger.Info().Msg("server exiting")
	return 0
}

func logConfigSource(logger zerolog.Logger, path string) {
	if path != "" {
		logger.Info().
			Str("event", "config.loaded").
			Str("source", "file").
			Str(xglog.FieldPath, path).
			Msg("loaded configuration from file")
		return
	}
	logger.Info().
		Str("event", "config.loaded").
		Str("source", "env+defaults").
		Msg("loaded configuration from environment and defaults")
}

// serve runs the daemon until ctx is cancelled or the listener fails.
func serve(ctx context.Context, logger zerolog.Logger, cfg config.AppConfig, loader *config.Loader) error {
	tp, err := telemetry.NewProvider(ctx, cfg.TelemetryConfig())
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(sctx); err != nil {
			logger.Warn().Err(err).Msg("telemetry shutdown failed")
		}
	}()

	holder := config.NewConfigHolder(cfg, loader)
	watchCtx, stopWatch := context.WithCancel(ctx)
	defer func() {
		stopWatch()
		holder.Wait()
	}()
	if err := holder.StartWatcher(watchCtx); err != nil {
		logger.Warn().Err(err).Msg("config watcher unavailable, hot reload disabled")
	}
	reloads := make(chan config.AppConfig, 1)
	holder.Subscribe(reloads)
	go applyReloads(watchCtx, reloads)

	storeOpts, closeStores, err := openStores(ctx, logger, cfg)
	if err != nil {
		return err
	}
	defer closeStores()

	hm := health.NewManager(cfg.Version)
	srv := bridge.NewServer(holder, hm, storeOpts...)

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.ListenAddr, err)
	}
	httpSrv := &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	logger.Info().
		Str("event", "startup").
		Str("addr", ln.Addr().String()).
		Str("host", maskURL(cfg.Embed.Host)).
		Str(xglog.FieldAuthMode, cfg.Embed.AuthMode).
		Str("token_source", tokenSource(cfg)).
		Str(xglog.FieldCodec, cfg.Channel.Codec).
		Bool("telemetry", cfg.Telemetry.Enabled).
		Str("journal", cfg.Journal.Backend).
		Bool("directory", cfg.Directory.Enabled()).
		Msg("starting embedbridge")

	serveErr := make(chan error, 1)
	go func() {
		if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info().Str("event", "shutdown.signal").Msg("shutdown requested")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// Sessions ride hijacked connections that http.Server.Shutdown does not track.
	if err := srv.Shutdown(sctx); err != nil {
		logger.Warn().Err(err).Msg("sessions did not drain before timeout")
	}
	if err := httpSrv.Shutdown(sctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// applyReloads keeps the log level in step with the config file.
func applyReloads(ctx context.Context, reloads <-chan config.AppConfig) {
	for {
		select {
		case <-ctx.Done():
			return
		case cfg := <-reloads:
			xglog.Reconfigure(xglog.Config{
				Level:   cfg.LogLevel,
				Service: "embedbridge",
				Version: cfg.Version,
			})
		}
	}
}

func tokenSource(cfg config.AppConfig) string {
	switch {
	case cfg.Auth.StaticToken != "":
		return "static"
	case cfg.Auth.TokenURL != "":
		return maskURL(cfg.Auth.TokenURL)
	default:
		return "none"
	}
}

// openStores opens the session journal and, when configured, the session
// directory. The returned func closes whatever was opened.
func openStores(ctx context.Context, logger zerolog.Logger, cfg config.AppConfig) ([]bridge.Option, func(), error) {
	store, err := journal.Open(cfg.Journal.Backend, cfg.Journal.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("open journal: %w", err)
	}
	closers := []func() error{store.Close}
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				logger.Warn().Err(err).Msg("store close failed")
			}
		}
	}
	opts := []bridge.Option{bridge.WithJournal(store, cfg.Journal.Retention)}

	if cfg.Directory.Enabled() {
		dir, err := directory.New(ctx, directory.Config{
			Addr:     cfg.Directory.RedisAddr,
			Password: cfg.Directory.Password,
			DB:       cfg.Directory.DB,
			TTL:      cfg.Directory.TTL,
			Instance: instanceName(cfg.Directory.Instance),
		}, xglog.WithComponent("directory"))
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("open session directory: %w", err)
		}
		closers = append(closers, dir.Close)
		opts = append(opts, bridge.WithDirectory(dir))
	}
	return opts, closeAll, nil
}

// instanceName falls back to the host name, then to the process id.
func instanceName(configured string) string {
	if configured != "" {
		return configured
	}
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return fmt.Sprintf("embedbridge-%d", os.Getpid())
}
