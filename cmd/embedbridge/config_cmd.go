// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ManuGH/embedbridge/internal/config"
	"github.com/ManuGH/embedbridge/internal/version"
)

const defaultConfigFile = "embedbridge.yaml"

var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

func runConfigCLI(args []string) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printConfigUsage()
		return 0
	}

	switch args[0] {
	case "init":
		return runConfigInit(args[1:])
	case "validate":
		return runConfigValidate(args[1:])
	case "dump":
		return runConfigDump(args[1:])
	default:
		fmt.Fprintf(stderr, "Unknown subcommand: %s\n\n", args[0])
		printConfigUsage()
		return 2
	}
}

func printConfigUsage() {
	fmt.Fprintln(stderr, "Usage:")
	fmt.Fprintln(stderr, "  embedbridge config init [--file|-f embedbridge.yaml] [--force]")
	fmt.Fprintln(stderr, "  embedbridge config validate [--file|-f embedbridge.yaml]")
	fmt.Fprintln(stderr, "  embedbridge config dump [--file|-f embedbridge.yaml] [--format=yaml|json]")
}

func fileFlag(fs *flag.FlagSet, def string) *string {
	var file string
	fs.StringVar(&file, "file", def, "path to YAML configuration file")
	fs.StringVar(&file, "f", def, "path to YAML configuration file (shorthand)")
	return &file
}

func runConfigInit(args []string) int {
	fs := flag.NewFlagSet("embedbridge config init", flag.ContinueOnError)
	fs.SetOutput(stderr)
	file := fileFlag(fs, defaultConfigFile)
	force := fs.Bool("force", false, "overwrite an existing file")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	path := strings.TrimSpace(*file)
	if err := config.WriteDefault(path, *force); err != nil {
		if errors.Is(err, config.ErrConfigExists) {
			fmt.Fprintf(stderr, "Error: %v (use --force to overwrite)\n", err)
			return 1
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "wrote %s\n", path)
	return 0
}

func runConfigValidate(args []string) int {
	fs := flag.NewFlagSet("embedbridge config validate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	file := fileFlag(fs, "")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	path := strings.TrimSpace(*file)
	if path == "" {
		fmt.Fprintln(stderr, "Error: --file is required")
		return 2
	}
	if _, err := config.NewLoader(path, version.Version).Load(); err != nil {
		fmt.Fprintf(stderr, "Configuration error in %s:\n  %v\n", path, err)
		return 1
	}
	fmt.Fprintf(stdout, "%s is valid\n", path)
	return 0
}

// runConfigDump prints the effective configuration (defaults + file + env)
// with secrets redacted.
func runConfigDump(args []string) int {
	fs := flag.NewFlagSet("embedbridge config dump", flag.ContinueOnError)
	fs.SetOutput(stderr)
	file := fileFlag(fs, "")
	format := fs.String("format", "yaml", "output format: yaml or json")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.NewLoader(strings.TrimSpace(*file), version.Version).Load()
	if err != nil {
		fmt.Fprintf(stderr, "Configuration error: %v\n", err)
		return 1
	}
	if cfg.Auth.StaticToken != "" {
		cfg.Auth.StaticToken = "***"
	}
	if cfg.Directory.Password != "" {
		cfg.Directory.Password = "***"
	}

	switch *format {
	case "json":
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(cfg); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	case "yaml":
		enc := yaml.NewEncoder(stdout)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		_ = enc.Close()
	default:
		fmt.Fprintf(stderr, "Error: unknown format %q\n", *format)
		return 2
	}
	return 0
}
