package workspace

import (
	"errors"
	"fmt"
	"slices"

	"github.com/leapstack-labs/leapcode/internal/dag"
)

// Solution is an immutable snapshot of every project in a workspace.
//
// Committed solutions carry a version. Solutions derived from a committed
// one carry version 0 and remember the version they were derived from;
// Apply only accepts a solution derived from the current snapshot.
type Solution struct {
	version  uint64
	base     uint64
	projects []*Project
}

func emptySolution() *Solution {
	return &Solution{version: 1}
}

// Version returns the commit version, or 0 for an uncommitted solution.
func (s *Solution) Version() uint64 { return s.version }

// Base returns the version of the committed solution this one derives from.
func (s *Solution) Base() uint64 { return s.base }

// Projects returns the projects in insertion order.
func (s *Solution) Projects() []*Project { return slices.Clone(s.projects) }

// Project looks up a project by ID.
func (s *Solution) Project(id ProjectID) (*Project, bool) {
	for _, p := range s.projects {
		if p.id == id {
			return p, true
		}
	}
	return nil, false
}

// ProjectByName looks up a project by name.
func (s *Solution) ProjectByName(name string) (*Project, bool) {
	for _, p := range s.projects {
		if p.name == name {
			return p, true
		}
	}
	return nil, false
}

// Document looks up a document by ID across all projects.
func (s *Solution) Document(id DocumentID) (*Document, *Project, bool) {
	for _, p := range s.projects {
		if d, ok := p.Document(id); ok {
			return d, p, true
		}
	}
	return nil, nil, false
}

// derive returns an uncommitted copy based on s.
func (s *Solution) derive() *Solution {
	base := s.version
	if base == 0 {
		base = s.base
	}
	return &Solution{base: base, projects: slices.Clone(s.projects)}
}

// AddProject returns a solution with p appended.
func (s *Solution) AddProject(p *Project) *Solution {
	next := s.derive()
	next.projects = append(next.projects, p)
	return next
}

// WithProject returns a solution with the project of the same ID replaced by p.
func (s *Solution) WithProject(p *Project) *Solution {
	next := s.derive()
	for i, existing := range next.projects {
		if existing.id == p.id {
			next.projects[i] = p
			return next
		}
	}
	next.projects = append(next.projects, p)
	return next
}

// RemoveProject returns a solution without the project with the given ID.
func (s *Solution) RemoveProject(id ProjectID) *Solution {
	next := s.derive()
	next.projects = slices.DeleteFunc(next.projects, func(p *Project) bool {
		return p.id == id
	})
	return next
}

// WithDocument returns a solution where doc replaces the document with the
// same ID in its project.
func (s *Solution) WithDocument(doc *Document) (*Solution, error) {
	p, ok := s.Project(doc.project)
	if !ok {
		return nil, fmt.Errorf("%w: project of document %s", ErrUnknownProject, doc.name)
	}
	if _, ok := p.Document(doc.id); !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, doc.name)
	}
	return s.WithProject(p.WithDocument(doc)), nil
}

// Graph returns the project reference graph. Nodes are project IDs and
// edges point from a referenced project to the project referencing it.
func (s *Solution) Graph() (*dag.Graph, error) {
	g := dag.NewGraph()
	for _, p := range s.projects {
		g.AddNode(string(p.id), p)
	}
	for _, p := range s.projects {
		for _, ref := range p.projectRefs {
			if err := g.AddEdge(string(ref), string(p.id)); err != nil {
				return nil, fmt.Errorf("project %s: %w", p.name, err)
			}
		}
	}
	return g, nil
}

// Validate checks the structural invariants of the solution.
func (s *Solution) Validate() error {
	var errs []error

	names := make(map[string]bool, len(s.projects))
	ids := make(map[ProjectID]bool, len(s.projects))
	docIDs := make(map[DocumentID]bool)
	for _, p := range s.projects {
		if names[p.name] {
			errs = append(errs, fmt.Errorf("%w: %s", ErrDuplicateProject, p.name))
		}
		names[p.name] = true
		if ids[p.id] {
			errs = append(errs, fmt.Errorf("duplicate project id %s", p.id))
		}
		ids[p.id] = true

		if err := p.validate(); err != nil {
			errs = append(errs, err)
		}
		for _, d := range p.documents {
			if docIDs[d.id] {
				errs = append(errs, fmt.Errorf("duplicate document id %s", d.id))
			}
			docIDs[d.id] = true
		}
	}

	for _, p := range s.projects {
		for _, ref := range p.projectRefs {
			if !ids[ref] {
				errs = append(errs, fmt.Errorf("project %s: %w: %s", p.name, ErrUnknownReference, ref))
			}
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	g, err := s.Graph()
	if err != nil {
		return err
	}
	if hasCycle, path := g.HasCycle(); hasCycle {
		return fmt.Errorf("project references form a cycle: %v", s.projectNames(path))
	}
	return nil
}

func (s *Solution) projectNames(ids []string) []string {
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = id
		if p, ok := s.Project(ProjectID(id)); ok {
			names[i] = p.name
		}
	}
	return names
}
