// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/ManuGH/embedbridge/internal/config"
	"github.com/ManuGH/embedbridge/internal/domain/embed/model"
	"github.com/ManuGH/embedbridge/internal/embed/channel"
	"github.com/ManuGH/embedbridge/internal/log"
	"github.com/rs/zerolog"
)

// PerformStartupChecks validates the runtime-critical parts of cfg before
// the server starts.
func PerformStartupChecks(ctx context.Context, cfg config.AppConfig) error {
	logger := log.WithComponent("startup-check")
	logger.Info().Msg("running pre-flight startup checks")

	if err := checkListenAddr(logger, cfg.ListenAddr); err != nil {
		return fmt.Errorf("listen address check failed: %w", err)
	}
	if err := checkEmbed(logger, cfg); err != nil {
		return fmt.Errorf("embed configuration check failed: %w", err)
	}
	if _, err := channel.CodecByName(cfg.Channel.Codec); err != nil {
		return fmt.Errorf("channel codec check failed: %w", err)
	}

	logger.Info().Msg("all startup checks passed")
	return nil
}

func checkListenAddr(logger zerolog.Logger, addr string) error {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid listen address %q: %w", addr, err)
	}
	portNum, err := strconv.Atoi(port)
	if err != nil || portNum < 0 || portNum > 65535 {
		return fmt.Errorf("invalid listen port %q in %q", port, addr)
	}
	logger.Info().Str("addr", addr).Msg("listen address is valid")
	return nil
}

func checkEmbed(logger zerolog.Logger, cfg config.AppConfig) error {
	ec, err := cfg.EmbedConfig()
	if err != nil {
		return err
	}
	mode := ec.AuthMode()
	switch {
	case !mode.RequiresToken() && cfg.HasTokenSource():
		logger.Warn().
			Str(log.FieldAuthMode, string(mode)).
			Msg("token source configured but auth mode does not use tokens")
	case mode == model.AuthTrustedTokenCookieless && cfg.Auth.StaticToken != "":
		logger.Warn().
			Str(log.FieldAuthMode, string(mode)).
			Msg("static token in use; every session shares one credential")
	}
	logger.Info().
		Str(log.FieldHostURL, ec.Host()).
		Str(log.FieldAuthMode, string(mode)).
		Msg("embed configuration is valid")
	return nil
}
