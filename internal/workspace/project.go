package workspace

import (
	"fmt"
	"slices"
	"strings"

	"github.com/leapstack-labs/leapcode/internal/reference"
	starctx "github.com/leapstack-labs/leapcode/internal/starlark"
)

// Kind distinguishes multi-document code projects from single-document
// script projects.
type Kind int

const (
	// KindCode is a multi-document project compiled once and emitted.
	KindCode Kind = iota
	// KindScript is a single-document project bound to a host object.
	KindScript
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindCode:
		return "code"
	case KindScript:
		return "script"
	default:
		return "unknown"
	}
}

// ParseKind parses a kind name. The empty string means KindCode.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "", "code":
		return KindCode, nil
	case "script":
		return KindScript, nil
	default:
		return KindCode, fmt.Errorf("unknown project kind %q", s)
	}
}

// ProjectInfo holds the attributes of a new project.
type ProjectInfo struct {
	Name      string
	Namespace string // defaults to Name
	Kind      Kind
	// References are the default and dynamic references visible at compile time.
	References []reference.Descriptor
	// ProjectReferences are the projects this one depends on.
	ProjectReferences []ProjectID
	// Host describes the host object of a script project.
	Host *starctx.HostType
}

// Project is an immutable set of documents plus compilation settings.
type Project struct {
	id          ProjectID
	name        string
	namespace   string
	kind        Kind
	documents   []*Document
	refs        []reference.Descriptor
	projectRefs []ProjectID
	host        *starctx.HostType
}

// NewProject creates an empty project with a fresh ID.
func NewProject(info ProjectInfo) *Project {
	ns := info.Namespace
	if ns == "" {
		ns = info.Name
	}
	var host *starctx.HostType
	if info.Host != nil {
		host = info.Host.Clone()
	}
	return &Project{
		id:          NewProjectID(),
		name:        info.Name,
		namespace:   ns,
		kind:        info.Kind,
		refs:        slices.Clone(info.References),
		projectRefs: slices.Clone(info.ProjectReferences),
		host:        host,
	}
}

// ID returns the project ID.
func (p *Project) ID() ProjectID { return p.id }

// Name returns the project name, unique within a solution.
func (p *Project) Name() string { return p.name }

// Namespace returns the default namespace used to qualify the compiled module.
func (p *Project) Namespace() string { return p.namespace }

// Kind returns the project kind.
func (p *Project) Kind() Kind { return p.kind }

// Host returns the host type of a script project, or nil.
func (p *Project) Host() *starctx.HostType { return p.host }

// Documents returns the documents in insertion order.
func (p *Project) Documents() []*Document { return slices.Clone(p.documents) }

// DocumentCount returns the number of documents.
func (p *Project) DocumentCount() int { return len(p.documents) }

// References returns the reference descriptors.
func (p *Project) References() []reference.Descriptor { return slices.Clone(p.refs) }

// ProjectReferences returns the IDs of referenced projects.
func (p *Project) ProjectReferences() []ProjectID { return slices.Clone(p.projectRefs) }

// Document looks up a document by ID.
func (p *Project) Document(id DocumentID) (*Document, bool) {
	for _, d := range p.documents {
		if d.id == id {
			return d, true
		}
	}
	return nil, false
}

// DocumentByName looks up a document by name.
func (p *Project) DocumentByName(name string) (*Document, bool) {
	for _, d := range p.documents {
		if d.name == name {
			return d, true
		}
	}
	return nil, false
}

// WithDocument returns a copy with doc added, or replacing the document
// with the same ID.
func (p *Project) WithDocument(doc *Document) *Project {
	c := *p
	c.documents = slices.Clone(p.documents)
	for i, d := range c.documents {
		if d.id == doc.id {
			c.documents[i] = doc
			return &c
		}
	}
	c.documents = append(c.documents, doc)
	return &c
}

// WithoutDocument returns a copy without the document with the given ID.
func (p *Project) WithoutDocument(id DocumentID) *Project {
	c := *p
	c.documents = slices.DeleteFunc(slices.Clone(p.documents), func(d *Document) bool {
		return d.id == id
	})
	return &c
}

// WithReferences returns a copy with the reference descriptors replaced.
func (p *Project) WithReferences(refs []reference.Descriptor) *Project {
	c := *p
	c.refs = slices.Clone(refs)
	return &c
}

// validate checks the project's own invariants.
func (p *Project) validate() error {
	if p.name == "" {
		return fmt.Errorf("project name cannot be empty")
	}
	if p.kind == KindScript && len(p.documents) > 1 {
		return fmt.Errorf("script project %s holds %d documents", p.name, len(p.documents))
	}
	if p.kind != KindScript && p.host != nil {
		return fmt.Errorf("code project %s cannot have a host object", p.name)
	}
	if p.host != nil {
		if err := p.host.Validate(); err != nil {
			return fmt.Errorf("project %s: %w", p.name, err)
		}
	}

	names := make(map[string]bool, len(p.documents))
	for _, d := range p.documents {
		if names[d.name] {
			return fmt.Errorf("project %s: duplicate document name %q", p.name, d.name)
		}
		names[d.name] = true
		if d.project != p.id {
			return fmt.Errorf("project %s: document %s belongs to another project", p.name, d.name)
		}
	}
	return nil
}
