// Package cmd provides CLI commands for the specbridge binary.
package cmd

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/urfave/cli/v2"
)

// Shared flags.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}

	// TUIFlag opens the read-only interactive view (inspect only).
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Page the result in an interactive view (inspect only)",
	}

	// ConfigFlag points at a specbridge.yaml file.
	ConfigFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to the YAML config file (default specbridge.yaml, optional)",
		EnvVars: []string{"SPECBRIDGE_CONFIG"},
	}

	// LogLevelFlag sets the minimum log level.
	LogLevelFlag = &cli.StringFlag{
		Name:    "log-level",
		Usage:   "Log level: debug, info, warn, error",
		EnvVars: []string{"SPECBRIDGE_LOG_LEVEL"},
	}
)

// OutputFlags returns the flags shared by commands that render output.
func OutputFlags() []cli.Flag {
	return []cli.Flag{FormatFlag, NoColorFlag}
}

// parseHeaders parses repeated "Key: value" or "Key=value" flags.
func parseHeaders(raw []string) (http.Header, error) {
	h := make(http.Header, len(raw))
	for _, kv := range raw {
		k, v, ok := strings.Cut(kv, ":")
		if !ok {
			k, v, ok = strings.Cut(kv, "=")
		}
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid header %q (want Key: value)", kv)
		}
		h.Add(k, strings.TrimSpace(v))
	}
	return h, nil
}
