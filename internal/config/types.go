// Package config provides the workspace manifest types for leapcode.
// This package is decoupled from CLI concerns and can be used by the LSP
// and other tools that need to load a workspace.
package config

import (
	"fmt"
	"strings"

	starctx "github.com/leapstack-labs/leapcode/internal/starlark"
)

// ReferenceConfig declares a dynamic reference by path.
type ReferenceConfig struct {
	// Name is the binding name; derived from the file name when empty.
	Name string `koanf:"name"`
	// Path is a .star source or .lcm module image, relative to the workspace root.
	Path string `koanf:"path"`
}

// HostConfig declares the host object of a script project.
type HostConfig struct {
	Type string `koanf:"type"`
	// Members maps member names to the values the runner binds.
	Members map[string]any `koanf:"members"`
	// Docs documents members for hover.
	Docs map[string]string `koanf:"docs"`
}

// HostType returns the host type with members in sorted order.
func (h *HostConfig) HostType() *starctx.HostType {
	if h == nil {
		return nil
	}
	names := make([]string, 0, len(h.Members)+len(h.Docs))
	seen := make(map[string]bool)
	for name := range h.Members {
		names = append(names, name)
		seen[name] = true
	}
	for name := range h.Docs {
		if !seen[name] {
			names = append(names, name)
		}
	}
	host := starctx.NewHostType(h.Type, sortStrings(names)...)
	for i := range host.Members {
		host.Members[i].Doc = h.Docs[host.Members[i].Name]
	}
	return host
}

// HostObject returns the host type together with its member values.
func (h *HostConfig) HostObject() *starctx.HostObject {
	if h == nil {
		return nil
	}
	return &starctx.HostObject{Type: h.HostType(), Values: h.Members}
}

// ProjectConfig declares a project of the workspace.
type ProjectConfig struct {
	Name      string `koanf:"name"`
	Namespace string `koanf:"namespace"`
	// Kind is "code" (default) or "script".
	Kind string `koanf:"kind"`
	// References names projects declared earlier in the manifest.
	References []string `koanf:"references"`
	// Documents are source files relative to the workspace root.
	Documents []string    `koanf:"documents"`
	Host      *HostConfig `koanf:"host"`
}

// IsScript reports whether the project is a script project.
func (p *ProjectConfig) IsScript() bool {
	return strings.EqualFold(p.Kind, "script")
}

// Validate checks the project declaration.
func (p *ProjectConfig) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("project name is required")
	}
	switch strings.ToLower(p.Kind) {
	case "", "code":
		if p.Host != nil {
			return fmt.Errorf("project %s: only script projects have a host", p.Name)
		}
	case "script":
		if len(p.Documents) > 1 {
			return fmt.Errorf("project %s: a script project holds at most one document", p.Name)
		}
	default:
		return fmt.Errorf("project %s: unknown kind %q", p.Name, p.Kind)
	}
	return nil
}

// WorkspaceConfig is the workspace manifest (leapcode.yaml).
type WorkspaceConfig struct {
	OutputDir        string            `koanf:"output_dir"`
	StatePath        string            `koanf:"state_path"`
	WatchSearchPaths bool              `koanf:"watch_search_paths"`
	SearchPaths      []string          `koanf:"search_paths"`
	References       []ReferenceConfig `koanf:"references"`
	Projects         []ProjectConfig   `koanf:"projects"`
}

// Validate checks every project declaration and that references point
// at projects declared earlier.
func (c *WorkspaceConfig) Validate() error {
	seen := make(map[string]bool, len(c.Projects))
	for i := range c.Projects {
		p := &c.Projects[i]
		if err := p.Validate(); err != nil {
			return err
		}
		if seen[p.Name] {
			return fmt.Errorf("project %s is declared twice", p.Name)
		}
		for _, ref := range p.References {
			if !seen[ref] {
				return fmt.Errorf("project %s references %s, which is not declared before it", p.Name, ref)
			}
		}
		seen[p.Name] = true
	}
	for _, r := range c.References {
		if r.Path == "" {
			return fmt.Errorf("reference %q has no path", r.Name)
		}
	}
	return nil
}

// Project returns the declaration of a project by name.
func (c *WorkspaceConfig) Project(name string) (*ProjectConfig, bool) {
	for i := range c.Projects {
		if c.Projects[i].Name == name {
			return &c.Projects[i], true
		}
	}
	return nil, false
}
