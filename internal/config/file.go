// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
	"gopkg.in/yaml.v3"
)

// ErrConfigExists is returned by WriteDefault when the target already exists
// and overwrite was not requested.
var ErrConfigExists = errors.New("config file already exists")

// DefaultFileConfig returns the starter file written by WriteDefault.
func DefaultFileConfig() FileConfig {
	d := Defaults()
	threshold := d.Auth.BreakerThreshold
	buffer := d.Channel.InboundBuffer
	rpm := d.RateLimit.RequestsPerMinute
	cps := d.RateLimit.CommandsPerSecond
	burst := d.RateLimit.CommandBurst
	enabled := false
	rate := d.Telemetry.SamplingRate
	return FileConfig{
		ListenAddr: d.ListenAddr,
		LogLevel:   d.LogLevel,
		Embed: EmbedFileConfig{
			Host:           "https://analytics.example.com",
			AuthMode:       d.Embed.AuthMode,
			CommandTimeout: d.Embed.CommandTimeout.String(),
		},
		Auth: AuthFileConfig{
			TokenURL:     "https://auth.example.com/token",
			FetchTimeout: d.Auth.FetchTimeout.String(),
			Breaker: BreakerFileConfig{
				Threshold:    &threshold,
				ResetTimeout: d.Auth.BreakerResetTimeout.String(),
			},
		},
		Channel: ChannelFileConfig{Codec: d.Channel.Codec, InboundBuffer: &buffer},
		RateLimit: RateLimitFileConfig{
			RequestsPerMinute: &rpm,
			CommandsPerSecond: &cps,
			CommandBurst:      &burst,
		},
		Telemetry: TelemetryFileConfig{
			Enabled:      &enabled,
			Exporter:     d.Telemetry.Exporter,
			Endpoint:     d.Telemetry.Endpoint,
			SamplingRate: &rate,
		},
		Journal: JournalFileConfig{
			Backend:   d.Journal.Backend,
			Retention: d.Journal.Retention.String(),
		},
	}
}

// WriteDefault writes a starter config to path atomically.
func WriteDefault(path string, overwrite bool) error {
	path = filepath.Clean(path)
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%w: %s", ErrConfigExists, path)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("stat config: %w", err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(DefaultFileConfig()); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close encoder: %w", err)
	}

	if err := renameio.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}
