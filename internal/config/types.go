// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

// FileConfig is the on-disk YAML shape. Durations are Go duration strings;
// pointer fields distinguish "unset" from the zero value.
type FileConfig struct {
	ListenAddr string              `yaml:"listenAddr,omitempty"`
	LogLevel   string              `yaml:"logLevel,omitempty"`
	Embed      EmbedFileConfig     `yaml:"embed,omitempty"`
	Auth       AuthFileConfig      `yaml:"auth,omitempty"`
	Channel    ChannelFileConfig   `yaml:"channel,omitempty"`
	RateLimit  RateLimitFileConfig `yaml:"rateLimit,omitempty"`
	Telemetry  TelemetryFileConfig `yaml:"telemetry,omitempty"`
	Journal    JournalFileConfig   `yaml:"journal,omitempty"`
	Directory  DirectoryFileConfig `yaml:"directory,omitempty"`
}

type EmbedFileConfig struct {
	Host           string                  `yaml:"host,omitempty"`
	AuthMode       string                  `yaml:"authMode,omitempty"`
	CommandTimeout string                  `yaml:"commandTimeout,omitempty"`
	Customization  CustomizationFileConfig `yaml:"customization,omitempty"`
}

type CustomizationFileConfig struct {
	StylesheetURL string            `yaml:"stylesheetURL,omitempty"`
	Variables     map[string]string `yaml:"variables,omitempty"`
}

type AuthFileConfig struct {
	StaticToken  string            `yaml:"staticToken,omitempty"`
	TokenURL     string            `yaml:"tokenURL,omitempty"`
	FetchTimeout string            `yaml:"fetchTimeout,omitempty"`
	Breaker      BreakerFileConfig `yaml:"breaker,omitempty"`
}

type BreakerFileConfig struct {
	Threshold    *int   `yaml:"threshold,omitempty"`
	ResetTimeout string `yaml:"resetTimeout,omitempty"`
}

type ChannelFileConfig struct {
	Codec         string `yaml:"codec,omitempty"`
	InboundBuffer *int   `yaml:"inboundBuffer,omitempty"`
}

type RateLimitFileConfig struct {
	RequestsPerMinute *int     `yaml:"requestsPerMinute,omitempty"`
	CommandsPerSecond *float64 `yaml:"commandsPerSecond,omitempty"`
	CommandBurst      *int     `yaml:"commandBurst,omitempty"`
}

type TelemetryFileConfig struct {
	Enabled      *bool    `yaml:"enabled,omitempty"`
	Exporter     string   `yaml:"exporter,omitempty"`
	Endpoint     string   `yaml:"endpoint,omitempty"`
	SamplingRate *float64 `yaml:"samplingRate,omitempty"`
}

type JournalFileConfig struct {
	Backend   string `yaml:"backend,omitempty"`
	Path      string `yaml:"path,omitempty"`
	Retention string `yaml:"retention,omitempty"`
}

type DirectoryFileConfig struct {
	RedisAddr string `yaml:"redisAddr,omitempty"`
	Password  string `yaml:"password,omitempty"`
	DB        *int   `yaml:"db,omitempty"`
	TTL       string `yaml:"ttl,omitempty"`
	Instance  string `yaml:"instance,omitempty"`
}
