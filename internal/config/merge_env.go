// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import "strings"

// Environment keys. Every key is consumed through the Loader so tests can
// assert the full set.
const (
	EnvListenAddr          = EnvPrefix + "LISTEN_ADDR"
	EnvLogLevel            = EnvPrefix + "LOG_LEVEL"
	EnvEmbedHost           = EnvPrefix + "EMBED_HOST"
	EnvEmbedAuthMode       = EnvPrefix + "EMBED_AUTH_MODE"
	EnvCommandTimeout      = EnvPrefix + "EMBED_COMMAND_TIMEOUT"
	EnvStylesheetURL       = EnvPrefix + "EMBED_STYLESHEET_URL"
	EnvStaticToken         = EnvPrefix + "AUTH_STATIC_TOKEN"
	EnvTokenURL            = EnvPrefix + "AUTH_TOKEN_URL"
	EnvFetchTimeout        = EnvPrefix + "AUTH_FETCH_TIMEOUT"
	EnvBreakerThreshold    = EnvPrefix + "AUTH_BREAKER_THRESHOLD"
	EnvBreakerResetTimeout = EnvPrefix + "AUTH_BREAKER_RESET_TIMEOUT"
	EnvChannelCodec        = EnvPrefix + "CHANNEL_CODEC"
	EnvInboundBuffer       = EnvPrefix + "CHANNEL_INBOUND_BUFFER"
	EnvRequestsPerMinute   = EnvPrefix + "RATELIMIT_REQUESTS_PER_MINUTE"
	EnvCommandsPerSecond   = EnvPrefix + "RATELIMIT_COMMANDS_PER_SECOND"
	EnvCommandBurst        = EnvPrefix + "RATELIMIT_COMMAND_BURST"
	EnvTelemetryEnabled    = EnvPrefix + "TELEMETRY_ENABLED"
	EnvTelemetryExporter   = EnvPrefix + "TELEMETRY_EXPORTER"
	EnvTelemetryEndpoint   = EnvPrefix + "TELEMETRY_ENDPOINT"
	EnvSamplingRate        = EnvPrefix + "TELEMETRY_SAMPLING_RATE"
	EnvJournalBackend      = EnvPrefix + "JOURNAL_BACKEND"
	EnvJournalPath         = EnvPrefix + "JOURNAL_PATH"
	EnvJournalRetention    = EnvPrefix + "JOURNAL_RETENTION"
	EnvDirectoryRedisAddr  = EnvPrefix + "DIRECTORY_REDIS_ADDR"
	EnvDirectoryPassword   = EnvPrefix + "DIRECTORY_PASSWORD"
	EnvDirectoryDB         = EnvPrefix + "DIRECTORY_DB"
	EnvDirectoryTTL        = EnvPrefix + "DIRECTORY_TTL"
	EnvDirectoryInstance   = EnvPrefix + "DIRECTORY_INSTANCE"
)

// mergeEnvConfig applies environment overrides on top of cfg.
func (l *Loader) mergeEnvConfig(cfg *AppConfig) {
	cfg.ListenAddr = env(l, EnvListenAddr, cfg.ListenAddr, ParseString)
	cfg.LogLevel = env(l, EnvLogLevel, cfg.LogLevel, ParseString)

	cfg.Embed.Host = env(l, EnvEmbedHost, cfg.Embed.Host, ParseString)
	cfg.Embed.AuthMode = env(l, EnvEmbedAuthMode, cfg.Embed.AuthMode, ParseString)
	cfg.Embed.CommandTimeout = env(l, EnvCommandTimeout, cfg.Embed.CommandTimeout, ParseDuration)
	cfg.Embed.StylesheetURL = env(l, EnvStylesheetURL, cfg.Embed.StylesheetURL, ParseString)

	cfg.Auth.StaticToken = env(l, EnvStaticToken, cfg.Auth.StaticToken, ParseString)
	cfg.Auth.TokenURL = env(l, EnvTokenURL, cfg.Auth.TokenURL, ParseString)
	cfg.Auth.FetchTimeout = env(l, EnvFetchTimeout, cfg.Auth.FetchTimeout, ParseDuration)
	cfg.Auth.BreakerThreshold = env(l, EnvBreakerThreshold, cfg.Auth.BreakerThreshold, ParseInt)
	cfg.Auth.BreakerResetTimeout = env(l, EnvBreakerResetTimeout, cfg.Auth.BreakerResetTimeout, ParseDuration)

	cfg.Channel.Codec = strings.ToLower(env(l, EnvChannelCodec, cfg.Channel.Codec, ParseString))
	cfg.Channel.InboundBuffer = env(l, EnvInboundBuffer, cfg.Channel.InboundBuffer, ParseInt)

	cfg.RateLimit.RequestsPerMinute = env(l, EnvRequestsPerMinute, cfg.RateLimit.RequestsPerMinute, ParseInt)
	cfg.RateLimit.CommandsPerSecond = env(l, EnvCommandsPerSecond, cfg.RateLimit.CommandsPerSecond, ParseFloat)
	cfg.RateLimit.CommandBurst = env(l, EnvCommandBurst, cfg.RateLimit.CommandBurst, ParseInt)

	cfg.Telemetry.Enabled = env(l, EnvTelemetryEnabled, cfg.Telemetry.Enabled, ParseBool)
	cfg.Telemetry.Exporter = env(l, EnvTelemetryExporter, cfg.Telemetry.Exporter, ParseString)
	cfg.Telemetry.Endpoint = env(l, EnvTelemetryEndpoint, cfg.Telemetry.Endpoint, ParseString)
	cfg.Telemetry.SamplingRate = env(l, EnvSamplingRate, cfg.Telemetry.SamplingRate, ParseFloat)

	cfg.Journal.Backend = strings.ToLower(env(l, EnvJournalBackend, cfg.Journal.Backend, ParseString))
	cfg.Journal.Path = env(l, EnvJournalPath, cfg.Journal.Path, ParseString)
	cfg.Journal.Retention = env(l, EnvJournalRetention, cfg.Journal.Retention, ParseDuration)

	cfg.Directory.RedisAddr = env(l, EnvDirectoryRedisAddr, cfg.Directory.RedisAddr, ParseString)
	cfg.Directory.Password = env(l, EnvDirectoryPassword, cfg.Directory.Password, ParseString)
	cfg.Directory.DB = env(l, EnvDirectoryDB, cfg.Directory.DB, ParseInt)
	cfg.Directory.TTL = env(l, EnvDirectoryTTL, cfg.Directory.TTL, ParseDuration)
	cfg.Directory.Instance = env(l, EnvDirectoryInstance, cfg.Directory.Instance, ParseString)
}
