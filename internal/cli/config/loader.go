package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	sharedcfg "github.com/leapstack-labs/leapcode/internal/config"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes every environment variable the CLI reads.
const EnvPrefix = "LEAPCODE_"

// Global koanf instance
var k = koanf.New(".")

// configFileUsed tracks which config file was loaded
var configFileUsed string

// currentConfig holds the most recently loaded configuration
var currentConfig *Config

// loggerKey is used to store logger in context.
type loggerKey struct{}

// configKey is used to store config in context.
type configKey struct{}

// flagKeys maps flag names whose config key differs from the snake_case name.
var flagKeys = map[string]string{
	"state":       "state_path",
	"watch":       "watch_search_paths",
	"search_path": "search_paths",
}

// inferWorkspaceRoot determines the workspace root.
// Priority:
//  1. Explicit --workspace flag
//  2. Directory of an explicit --config file
//  3. Search upward from CWD for leapcode.yaml
//  4. Current working directory
func inferWorkspaceRoot(cfgFile string, flags *pflag.FlagSet) string {
	if flags != nil && flags.Changed("workspace") {
		if dir, _ := flags.GetString("workspace"); dir != "" {
			return absPath(dir)
		}
	}

	if cfgFile != "" {
		return filepath.Dir(absPath(cfgFile))
	}

	cwd, _ := os.Getwd()
	if cwd == "" {
		return "."
	}
	if root := sharedcfg.FindWorkspaceRoot(cwd); root != "" {
		return root
	}
	return cwd
}

func absPath(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return filepath.Clean(p)
	}
	return abs
}

// resolvePathRelativeTo resolves a path relative to baseDir if it's not absolute.
// Returns the path unchanged if it's empty, absolute or in-memory.
func resolvePathRelativeTo(path, baseDir string) string {
	if path == "" || path == ":memory:" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

// ResetConfig resets the koanf instance. Used for testing.
func ResetConfig() {
	k = koanf.New(".")
	configFileUsed = ""
	currentConfig = nil
}

// LoadConfig loads configuration from file, environment variables, and flags.
// Precedence (highest to lowest): flags > env vars > config file > defaults
func LoadConfig(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k = koanf.New(".")

	root := inferWorkspaceRoot(cfgFile, flags)

	// Paths given as flags are relative to CWD, not to the workspace root.
	var flagStatePath, flagOutputDir string
	if flags != nil {
		if flags.Changed("state") {
			if v, _ := flags.GetString("state"); v != "" && v != ":memory:" {
				flagStatePath = absPath(v)
			}
		}
		if flags.Changed("output-dir") {
			if v, _ := flags.GetString("output-dir"); v != "" {
				flagOutputDir = absPath(v)
			}
		}
	}

	// 1. Defaults
	if err := k.Load(confmap.Provider(map[string]interface{}{
		"output_dir":    sharedcfg.DefaultOutputDir,
		"state_path":    sharedcfg.DefaultStatePath,
		"verbose":       false,
		"output":        DefaultOutput,
		"history_limit": DefaultHistoryLimit,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Manifest
	if cfgFile == "" {
		cfgFile = sharedcfg.FindConfigFile(root)
	}
	configFileUsed = ""
	if cfgFile != "" {
		if _, err := os.Stat(cfgFile); err != nil {
			return nil, fmt.Errorf("config file %s: %w", cfgFile, err)
		}
		configFileUsed = cfgFile
		if err := k.Load(file.Provider(cfgFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", cfgFile, err)
		}
	}

	// 3. Environment variables: LEAPCODE_OUTPUT_DIR -> output_dir
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			key := strings.ReplaceAll(f.Name, "-", "_")
			if mapped, ok := flagKeys[key]; ok {
				key = mapped
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	// 5. Decode
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	sharedcfg.ApplyDefaults(&cfg.WorkspaceConfig)

	cfg.WorkspaceRoot = root
	cfg.ConfigFile = configFileUsed
	if flagStatePath != "" {
		cfg.StatePath = flagStatePath
	} else {
		cfg.StatePath = resolvePathRelativeTo(cfg.StatePath, root)
	}
	if flagOutputDir != "" {
		cfg.OutputDir = flagOutputDir
	} else {
		cfg.OutputDir = resolvePathRelativeTo(cfg.OutputDir, root)
	}

	if err := cfg.Validate(); err != nil {
		if configFileUsed != "" {
			return nil, fmt.Errorf("invalid configuration (%s): %w", configFileUsed, err)
		}
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	currentConfig = &cfg
	return &cfg, nil
}

// GetConfigFileUsed returns the path to the config file being used, if any.
func GetConfigFileUsed() string {
	return configFileUsed
}

// GetCurrentConfig returns the most recently loaded configuration.
func GetCurrentConfig() *Config {
	return currentConfig
}

// WithConfig stores the configuration in ctx.
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

// GetConfig retrieves the configuration from ctx, falling back to the
// last loaded configuration.
func GetConfig(ctx context.Context) *Config {
	if c, ok := ctx.Value(configKey{}).(*Config); ok {
		return c
	}
	return currentConfig
}

// LoggerKey returns the context key used for storing the logger.
// This allows the commands package to retrieve the logger from context
// without creating an import cycle with the cli package.
func LoggerKey() interface{} {
	return loggerKey{}
}

// GetLogger retrieves the logger from the command context.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.New(slog.DiscardHandler)
}
