package engine

import (
	"fmt"

	"github.com/leapstack-labs/leapcode/internal/config"
	"github.com/leapstack-labs/leapcode/internal/reference"
)

// LoadManifest registers the search paths, references and projects of a
// workspace manifest. Projects are added in declaration order, so a
// project may only reference projects declared before it.
func (e *Engine) LoadManifest(cfg *config.WorkspaceConfig) error {
	if cfg == nil {
		return nil
	}

	if len(cfg.SearchPaths) > 0 {
		if err := e.AddSearchPaths(cfg.SearchPaths...); err != nil {
			return err
		}
	}

	refs := make([]reference.Descriptor, 0, len(cfg.References))
	for _, r := range cfg.References {
		d, err := reference.FromPath(r.Path, r.Name, e.ws.WorkingDirectory())
		if err != nil {
			return fmt.Errorf("reference %s: %w", r.Path, err)
		}
		refs = append(refs, d)
	}
	if len(refs) > 0 {
		if err := e.AddReferences(refs...); err != nil {
			return err
		}
	}

	for i := range cfg.Projects {
		p := &cfg.Projects[i]
		var err error
		if p.IsScript() {
			_, err = e.AddScriptProject(p.Name, p.References, p.Host.HostType())
		} else {
			_, err = e.AddProject(p.Name, p.Namespace, p.References)
		}
		if err != nil {
			return fmt.Errorf("project %s: %w", p.Name, err)
		}
		for _, doc := range p.Documents {
			if _, err := e.AddDocumentFromFile(p.Name, doc); err != nil {
				return fmt.Errorf("project %s: document %s: %w", p.Name, doc, err)
			}
		}
	}

	e.logger.Debug("manifest loaded",
		"projects", len(cfg.Projects),
		"references", len(refs),
		"search_paths", len(cfg.SearchPaths))
	return nil
}
