// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"
	"time"

	"github.com/ManuGH/embedbridge/internal/domain/embed/model"
	"github.com/ManuGH/embedbridge/internal/telemetry"
	"github.com/ManuGH/embedbridge/internal/validate"
)

var httpSchemes = []string{"http", "https"}

// Validate checks an AppConfig and reports every problem at once.
func Validate(cfg AppConfig) error {
	v := validate.New()

	v.ListenAddr("listenAddr", cfg.ListenAddr)
	if _, err := validate.ParseLogLevel(cfg.LogLevel); err != nil {
		v.AddError("logLevel", err.Error(), cfg.LogLevel)
	}

	v.URL("embed.host", cfg.Embed.Host, httpSchemes)
	mode := model.AuthMode(cfg.Embed.AuthMode)
	if !mode.IsValid() {
		v.AddError("embed.authMode", fmt.Sprintf("unknown auth mode %q", cfg.Embed.AuthMode), cfg.Embed.AuthMode)
	}
	v.Duration("embed.commandTimeout", cfg.Embed.CommandTimeout, 100*time.Millisecond, 5*time.Minute)
	if cfg.Embed.StylesheetURL != "" {
		v.URL("embed.customization.stylesheetURL", cfg.Embed.StylesheetURL, httpSchemes)
	}

	switch {
	case cfg.Auth.StaticToken != "" && cfg.Auth.TokenURL != "":
		v.AddError("auth", "staticToken and tokenURL are mutually exclusive", nil)
	case mode.IsValid() && mode.RequiresToken() && !cfg.HasTokenSource():
		v.AddError("auth", fmt.Sprintf("auth mode %q requires staticToken or tokenURL", mode), nil)
	}
	if cfg.Auth.TokenURL != "" {
		v.URL("auth.tokenURL", cfg.Auth.TokenURL, httpSchemes)
	}
	v.Duration("auth.fetchTimeout", cfg.Auth.FetchTimeout, 100*time.Millisecond, time.Minute)
	v.Range("auth.breaker.threshold", cfg.Auth.BreakerThreshold, 1, 100)
	v.Duration("auth.breaker.resetTimeout", cfg.Auth.BreakerResetTimeout, time.Second, time.Hour)

	v.OneOf("channel.codec", cfg.Channel.Codec, []string{"json", "cbor"})
	v.Range("channel.inboundBuffer", cfg.Channel.InboundBuffer, 1, 65536)

	v.NonNegative("rateLimit.requestsPerMinute", cfg.RateLimit.RequestsPerMinute)
	v.FloatRange("rateLimit.commandsPerSecond", cfg.RateLimit.CommandsPerSecond, 0, 1000)
	v.Range("rateLimit.commandBurst", cfg.RateLimit.CommandBurst, 1, 10000)

	if cfg.Telemetry.Enabled {
		v.OneOf("telemetry.exporter", cfg.Telemetry.Exporter, telemetry.ExporterNames())
		v.NotEmpty("telemetry.endpoint", cfg.Telemetry.Endpoint)
		v.FloatRange("telemetry.samplingRate", cfg.Telemetry.SamplingRate, 0, 1)
	}

	v.OneOf("journal.backend", cfg.Journal.Backend, []string{"memory", "sqlite", "badger"})
	if cfg.Journal.Backend == "sqlite" || cfg.Journal.Backend == "badger" {
		v.NotEmpty("journal.path", cfg.Journal.Path)
	}
	if cfg.Journal.Retention != 0 {
		v.Duration("journal.retention", cfg.Journal.Retention, time.Minute, 365*24*time.Hour)
	}

	if cfg.Directory.Enabled() {
		v.HostPort("directory.redisAddr", cfg.Directory.RedisAddr)
		v.Range("directory.db", cfg.Directory.DB, 0, 15)
		v.Duration("directory.ttl", cfg.Directory.TTL, 10*time.Second, time.Hour)
	}

	return v.Err()
}
