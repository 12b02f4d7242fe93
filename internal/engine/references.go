package engine

import (
	"errors"
	"fmt"
	"slices"

	"github.com/leapstack-labs/leapcode/internal/reference"
	"github.com/leapstack-labs/leapcode/internal/workspace"
)

// AddSearchPaths appends directories to the script search paths. Relative
// paths are resolved against the working directory; duplicates are
// ignored. Compiles already running keep the paths they started with.
func (e *Engine) AddSearchPaths(paths ...string) error {
	for _, p := range paths {
		if p == "" {
			return fmt.Errorf("search path cannot be empty")
		}
	}
	e.resolver.AddSearchPaths(e.ws.WorkingDirectory(), paths...)
	return nil
}

// RemoveSearchPaths removes directories from the script search paths.
func (e *Engine) RemoveSearchPaths(paths ...string) {
	e.resolver.RemoveSearchPaths(e.ws.WorkingDirectory(), paths...)
}

// SearchPaths returns the script search paths in order.
func (e *Engine) SearchPaths() []string {
	return e.resolver.SearchPaths()
}

// AddReferences adds dynamic references. They are visible to projects
// added afterwards and are appended to every existing project.
func (e *Engine) AddReferences(refs ...reference.Descriptor) error {
	refs = slices.Clone(refs)
	for i := range refs {
		if refs[i].Docs == nil && e.docProviders != nil {
			refs[i].Docs = e.docProviders(refs[i])
		}
	}
	// The resolver and every existing project change under one writer
	// lock, so a concurrent AddProject sees either both or neither.
	_, err := e.ws.Update(func(s *workspace.Solution) (*workspace.Solution, error) {
		if err := e.resolver.AddReferences(refs...); err != nil {
			return nil, err
		}
		projects := s.Projects()
		if len(projects) == 0 {
			return nil, errUnchanged
		}
		next := s
		for _, p := range projects {
			next = next.WithProject(p.WithReferences(append(p.References(), refs...)))
		}
		return next, nil
	})
	if err != nil && !errors.Is(err, errUnchanged) {
		return err
	}

	names := make([]string, len(refs))
	for i, r := range refs {
		names[i] = r.Name
	}
	e.logger.Debug("references added", "references", names)
	return nil
}

// AddReferencePaths adds .star or .lcm files as dynamic references bound
// under their file names. Relative paths are resolved against the working
// directory.
func (e *Engine) AddReferencePaths(paths ...string) ([]reference.Descriptor, error) {
	refs := make([]reference.Descriptor, 0, len(paths))
	for _, p := range paths {
		d, err := reference.FromPath(p, "", e.ws.WorkingDirectory())
		if err != nil {
			return nil, err
		}
		refs = append(refs, d)
	}
	if err := e.AddReferences(refs...); err != nil {
		return nil, err
	}
	return refs, nil
}

// ResolveReference resolves a reference name through the default set,
// the dynamic references and the search paths.
func (e *Engine) ResolveReference(name string) (reference.Descriptor, error) {
	return e.resolver.Resolve(name)
}

// Describe returns documentation for a symbol as seen from a project.
// An empty namespace looks the symbol up among the host members and the
// project's own documents; otherwise namespace names a reference or a
// referenced project.
func (e *Engine) Describe(projectName, namespace, symbol string) (string, bool) {
	snap := e.ws.CurrentSolution()
	p, ok := snap.ProjectByName(projectName)
	if !ok {
		return "", false
	}

	if namespace == "" {
		if p.Host().Has(symbol) {
			doc, ok := p.Host().Doc(symbol)
			if !ok {
				return fmt.Sprintf("%s.%s", p.Host().Name, symbol), true
			}
			return doc, true
		}
		return describeDocuments(p.Documents(), symbol)
	}

	for _, ref := range p.References() {
		if ref.Name == namespace && ref.Docs != nil {
			return ref.Docs.Describe(symbol)
		}
	}
	for _, id := range p.ProjectReferences() {
		dep, ok := snap.Project(id)
		if ok && dep.Namespace() == namespace {
			return describeDocuments(dep.Documents(), symbol)
		}
	}
	return "", false
}

func describeDocuments(docs []*workspace.Document, symbol string) (string, bool) {
	for _, doc := range docs {
		parsed, err := reference.ParseSource(doc.Name(), []byte(doc.Text()))
		if err != nil {
			continue
		}
		if desc, ok := parsed.Describe(symbol); ok {
			return desc, true
		}
	}
	return "", false
}
