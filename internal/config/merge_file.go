// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"
	"maps"
	"strings"
	"time"
)

// mergeFileConfig overlays every field the file sets onto cfg.
func mergeFileConfig(cfg *AppConfig, f *FileConfig) error {
	setString(&cfg.ListenAddr, f.ListenAddr)
	setString(&cfg.LogLevel, f.LogLevel)

	setString(&cfg.Embed.Host, f.Embed.Host)
	setString(&cfg.Embed.AuthMode, f.Embed.AuthMode)
	if err := setDuration(&cfg.Embed.CommandTimeout, "embed.commandTimeout", f.Embed.CommandTimeout); err != nil {
		return err
	}
	setString(&cfg.Embed.StylesheetURL, f.Embed.Customization.StylesheetURL)
	if len(f.Embed.Customization.Variables) > 0 {
		cfg.Embed.Variables = maps.Clone(f.Embed.Customization.Variables)
	}

	setString(&cfg.Auth.StaticToken, f.Auth.StaticToken)
	setString(&cfg.Auth.TokenURL, f.Auth.TokenURL)
	if err := setDuration(&cfg.Auth.FetchTimeout, "auth.fetchTimeout", f.Auth.FetchTimeout); err != nil {
		return err
	}
	setPtr(&cfg.Auth.BreakerThreshold, f.Auth.Breaker.Threshold)
	if err := setDuration(&cfg.Auth.BreakerResetTimeout, "auth.breaker.resetTimeout", f.Auth.Breaker.ResetTimeout); err != nil {
		return err
	}

	setString(&cfg.Channel.Codec, strings.ToLower(f.Channel.Codec))
	setPtr(&cfg.Channel.InboundBuffer, f.Channel.InboundBuffer)

	setPtr(&cfg.RateLimit.RequestsPerMinute, f.RateLimit.RequestsPerMinute)
	setPtr(&cfg.RateLimit.CommandsPerSecond, f.RateLimit.CommandsPerSecond)
	setPtr(&cfg.RateLimit.CommandBurst, f.RateLimit.CommandBurst)

	setPtr(&cfg.Telemetry.Enabled, f.Telemetry.Enabled)
	setString(&cfg.Telemetry.Exporter, f.Telemetry.Exporter)
	setString(&cfg.Telemetry.Endpoint, f.Telemetry.Endpoint)
	setPtr(&cfg.Telemetry.SamplingRate, f.Telemetry.SamplingRate)

	setString(&cfg.Journal.Backend, strings.ToLower(f.Journal.Backend))
	setString(&cfg.Journal.Path, f.Journal.Path)
	if err := setDuration(&cfg.Journal.Retention, "journal.retention", f.Journal.Retention); err != nil {
		return err
	}

	setString(&cfg.Directory.RedisAddr, f.Directory.RedisAddr)
	setString(&cfg.Directory.Password, f.Directory.Password)
	setPtr(&cfg.Directory.DB, f.Directory.DB)
	if err := setDuration(&cfg.Directory.TTL, "directory.ttl", f.Directory.TTL); err != nil {
		return err
	}
	setString(&cfg.Directory.Instance, f.Directory.Instance)
	return nil
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func setPtr[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, field, raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	*dst = d
	return nil
}
