package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// ConfigFileName is the name of the manifest file.
const ConfigFileName = "leapcode.yaml"

// ConfigFileNameAlt is the alternate name of the manifest file.
const ConfigFileNameAlt = "leapcode.yml"

// LoadFromDir loads a WorkspaceConfig from the given directory.
// It looks for leapcode.yaml or leapcode.yml in the directory.
// Returns nil, nil if no manifest is found (not an error condition).
func LoadFromDir(dir string) (*WorkspaceConfig, error) {
	configPath := FindConfigFile(dir)
	if configPath == "" {
		return nil, nil
	}
	return LoadFile(configPath)
}

// LoadFile loads, defaults and validates a manifest file.
func LoadFile(path string) (*WorkspaceConfig, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	var cfg WorkspaceConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	ApplyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest %s: %w", path, err)
	}
	return &cfg, nil
}

// FindConfigFile finds the manifest in the given directory.
// Returns empty string if not found.
func FindConfigFile(dir string) string {
	yamlPath := filepath.Join(dir, ConfigFileName)
	if _, err := os.Stat(yamlPath); err == nil {
		return yamlPath
	}

	ymlPath := filepath.Join(dir, ConfigFileNameAlt)
	if _, err := os.Stat(ymlPath); err == nil {
		return ymlPath
	}

	return ""
}

// FindWorkspaceRoot walks up from the given directory to find a directory
// containing leapcode.yaml or leapcode.yml.
// Returns empty string if not found.
func FindWorkspaceRoot(startDir string) string {
	dir := startDir
	for {
		if FindConfigFile(dir) != "" {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root
			return ""
		}
		dir = parent
	}
}
