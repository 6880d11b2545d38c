// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import (
	"fmt"
	"maps"
	"net/url"
	"strings"

	"github.com/ManuGH/embedbridge/internal/validate"
)

// Customization is the appearance descriptor handed unexamined to the
// styling collaborator.
type Customization struct {
	StylesheetURL string            `yaml:"stylesheetURL,omitempty" json:"stylesheetURL,omitempty"`
	Variables     map[string]string `yaml:"variables,omitempty" json:"variables,omitempty"`
}

// IsZero reports whether the descriptor carries nothing to apply.
func (c Customization) IsZero() bool {
	return c.StylesheetURL == "" && len(c.Variables) == 0
}

func (c Customization) clone() Customization {
	return Customization{StylesheetURL: c.StylesheetURL, Variables: maps.Clone(c.Variables)}
}

// EmbedConfig is the immutable configuration of one embed session. Build it
// with NewEmbedConfig; the zero value is rejected by the controller.
type EmbedConfig struct {
	host          *url.URL
	authMode      AuthMode
	customization Customization
	valid         bool
}

// NewEmbedConfig validates its inputs once and returns an immutable config.
func NewEmbedConfig(host string, mode AuthMode, customization Customization) (EmbedConfig, error) {
	host = strings.TrimSpace(host)

	v := validate.New()
	v.URL("host", host, []string{"http", "https"})
	if !mode.IsValid() {
		v.AddError("authMode", fmt.Sprintf("unknown auth mode %q", mode), string(mode))
	}
	if customization.StylesheetURL != "" {
		v.URL("customization.stylesheetURL", customization.StylesheetURL, []string{"http", "https"})
	}
	if err := v.Err(); err != nil {
		return EmbedConfig{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	u, err := url.Parse(host)
	if err != nil {
		return EmbedConfig{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return EmbedConfig{
		host:          u,
		authMode:      mode,
		customization: customization.clone(),
		valid:         true,
	}, nil
}

// Valid reports whether the config was produced by NewEmbedConfig.
func (c EmbedConfig) Valid() bool { return c.valid }

// Host returns the host endpoint URL as a string.
func (c EmbedConfig) Host() string {
	if c.host == nil {
		return ""
	}
	return c.host.String()
}

// HostURL returns a copy of the parsed host URL.
func (c EmbedConfig) HostURL() *url.URL {
	if c.host == nil {
		return nil
	}
	u := *c.host
	return &u
}

// AuthMode returns the configured auth mode.
func (c EmbedConfig) AuthMode() AuthMode { return c.authMode }

// Customization returns a copy of the appearance descriptor.
func (c EmbedConfig) Customization() Customization { return c.customization.clone() }
