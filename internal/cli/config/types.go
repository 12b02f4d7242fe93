// Package config provides configuration management for the leapcode CLI.
//
// The workspace manifest types live in internal/config and are embedded
// here together with the CLI-only settings (verbosity, output format and
// compile history retention).
package config

import (
	"fmt"
	"strings"

	sharedcfg "github.com/leapstack-labs/leapcode/internal/config"
)

// Default values for CLI-only settings.
const (
	DefaultOutput       = "text"
	DefaultHistoryLimit = 100
)

// Output formats accepted by --output.
var outputFormats = []string{"text", "json"}

// Config holds the merged CLI configuration.
type Config struct {
	sharedcfg.WorkspaceConfig `koanf:",squash"`

	Verbose      bool   `koanf:"verbose"`
	OutputFormat string `koanf:"output"`
	// HistoryLimit keeps the newest compile records per project (0 keeps all).
	HistoryLimit int `koanf:"history_limit"`

	// WorkspaceRoot is the directory documents and references are resolved against.
	WorkspaceRoot string `koanf:"-"`
	// ConfigFile is the manifest that was loaded, if any.
	ConfigFile string `koanf:"-"`
}

// JSON reports whether machine-readable output was requested.
func (c *Config) JSON() bool {
	return strings.EqualFold(c.OutputFormat, "json")
}

// Validate checks the CLI settings and the embedded manifest.
func (c *Config) Validate() error {
	if err := validateOutput(c.OutputFormat); err != nil {
		return err
	}
	if c.HistoryLimit < 0 {
		return fmt.Errorf("history_limit must not be negative, got %d", c.HistoryLimit)
	}
	return c.WorkspaceConfig.Validate()
}

func validateOutput(format string) error {
	for _, f := range outputFormats {
		if strings.EqualFold(format, f) {
			return nil
		}
	}
	return fmt.Errorf("unknown output format %q (want one of %s)", format, strings.Join(outputFormats, ", "))
}
