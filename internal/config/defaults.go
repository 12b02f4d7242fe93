package config

import "sort"

// Default configuration values.
const (
	DefaultOutputDir = "out"
	DefaultStatePath = ".leapcode/state.db"
)

// ApplyDefaults applies default values to a WorkspaceConfig.
func ApplyDefaults(c *WorkspaceConfig) {
	if c == nil {
		return
	}
	if c.OutputDir == "" {
		c.OutputDir = DefaultOutputDir
	}
	if c.StatePath == "" {
		c.StatePath = DefaultStatePath
	}
	for i := range c.Projects {
		p := &c.Projects[i]
		if p.Kind == "" {
			p.Kind = "code"
		}
		if p.Namespace == "" {
			p.Namespace = p.Name
		}
	}
}

func sortStrings(s []string) []string {
	sort.Strings(s)
	return s
}
