// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"
	"time"

	"github.com/ManuGH/embedbridge/internal/domain/embed/model"
	"github.com/ManuGH/embedbridge/internal/telemetry"
)

// AppConfig is the effective daemon configuration after defaults, file and
// environment have been merged.
type AppConfig struct {
	Version    string
	ListenAddr string
	LogLevel   string

	Embed     EmbedSettings
	Auth      AuthSettings
	Channel   ChannelSettings
	RateLimit RateLimitSettings
	Telemetry TelemetrySettings
	Journal   JournalSettings
	Directory DirectorySettings
}

type EmbedSettings struct {
	Host           string
	AuthMode       string
	CommandTimeout time.Duration
	StylesheetURL  string
	Variables      map[string]string
}

type AuthSettings struct {
	StaticToken         string
	TokenURL            string
	FetchTimeout        time.Duration
	BreakerThreshold    int
	BreakerResetTimeout time.Duration
}

type ChannelSettings struct {
	Codec         string
	InboundBuffer int
}

type RateLimitSettings struct {
	RequestsPerMinute int
	CommandsPerSecond float64
	CommandBurst      int
}

type TelemetrySettings struct {
	Enabled      bool
	Exporter     string
	Endpoint     string
	SamplingRate float64
}

// JournalSettings select where session history is kept. Retention zero
// keeps entries forever.
type JournalSettings struct {
	Backend   string
	Path      string
	Retention time.Duration
}

// DirectorySettings enable the shared Redis session directory when
// RedisAddr is set.
type DirectorySettings struct {
	RedisAddr string
	Password  string
	DB        int
	TTL       time.Duration
	Instance  string
}

// Enabled reports whether a directory backend is configured.
func (d DirectorySettings) Enabled() bool { return d.RedisAddr != "" }

const (
	DefaultListenAddr          = ":8089"
	DefaultLogLevel            = "info"
	DefaultAuthMode            = string(model.AuthTrustedTokenCookieless)
	DefaultCommandTimeout      = 10 * time.Second
	DefaultFetchTimeout        = 5 * time.Second
	DefaultBreakerThreshold    = 5
	DefaultBreakerResetTimeout = 30 * time.Second
	DefaultCodec               = "json"
	DefaultInboundBuffer       = 256
	DefaultRequestsPerMinute   = 120
	DefaultCommandsPerSecond   = 10
	DefaultCommandBurst        = 20
	DefaultTelemetryExporter   = "grpc"
	DefaultTelemetryEndpoint   = "localhost:4317"
	DefaultSamplingRate        = 1.0
	DefaultJournalBackend      = "memory"
	DefaultJournalRetention    = 24 * time.Hour
	DefaultDirectoryTTL        = 2 * time.Minute
)

// Defaults returns the built-in configuration.
func Defaults() AppConfig {
	return AppConfig{
		ListenAddr: DefaultListenAddr,
		LogLevel:   DefaultLogLevel,
		Embed: EmbedSettings{
			AuthMode:       DefaultAuthMode,
			CommandTimeout: DefaultCommandTimeout,
		},
		Auth: AuthSettings{
			FetchTimeout:        DefaultFetchTimeout,
			BreakerThreshold:    DefaultBreakerThreshold,
			BreakerResetTimeout: DefaultBreakerResetTimeout,
		},
		Channel: ChannelSettings{
			Codec:         DefaultCodec,
			InboundBuffer: DefaultInboundBuffer,
		},
		RateLimit: RateLimitSettings{
			RequestsPerMinute: DefaultRequestsPerMinute,
			CommandsPerSecond: DefaultCommandsPerSecond,
			CommandBurst:      DefaultCommandBurst,
		},
		Telemetry: TelemetrySettings{
			Exporter:     DefaultTelemetryExporter,
			Endpoint:     DefaultTelemetryEndpoint,
			SamplingRate: DefaultSamplingRate,
		},
		Journal: JournalSettings{
			Backend:   DefaultJournalBackend,
			Retention: DefaultJournalRetention,
		},
		Directory: DirectorySettings{
			TTL: DefaultDirectoryTTL,
		},
	}
}

// EmbedConfig builds the immutable per-session config from the embed
// settings.
func (c AppConfig) EmbedConfig() (model.EmbedConfig, error) {
	return model.NewEmbedConfig(c.Embed.Host, model.AuthMode(c.Embed.AuthMode), model.Customization{
		StylesheetURL: c.Embed.StylesheetURL,
		Variables:     c.Embed.Variables,
	})
}

// TelemetryConfig maps the telemetry settings onto the tracer provider config.
func (c AppConfig) TelemetryConfig() telemetry.Config {
	return telemetry.Config{
		Enabled:        c.Telemetry.Enabled,
		ServiceName:    "embedbridge",
		ServiceVersion: c.Version,
		Instance:       c.Directory.Instance,
		Exporter:       c.Telemetry.Exporter,
		Endpoint:       c.Telemetry.Endpoint,
		SamplingRate:   c.Telemetry.SamplingRate,
	}
}

// HasTokenSource reports whether any token source is configured.
func (c AppConfig) HasTokenSource() bool {
	return c.Auth.StaticToken != "" || c.Auth.TokenURL != ""
}

// String renders a redacted one-line summary for startup logs.
func (c AppConfig) String() string {
	token := ""
	if c.Auth.StaticToken != "" {
		token = "****"
	}
	return fmt.Sprintf("listen=%s host=%s authMode=%s codec=%s staticToken=%q tokenURL=%s journal=%s directory=%s",
		c.ListenAddr, c.Embed.Host, c.Embed.AuthMode, c.Channel.Codec, token, c.Auth.TokenURL,
		c.Journal.Backend, c.Directory.RedisAddr)
}
