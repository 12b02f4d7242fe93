package engine

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	starctx "github.com/leapstack-labs/leapcode/internal/starlark"
	"github.com/leapstack-labs/leapcode/internal/workspace"
)

// AddProject registers a code project. Referenced projects must already
// exist; the project sees the default references plus every dynamic
// reference added so far. An empty namespace defaults to the name.
func (e *Engine) AddProject(name, namespace string, refs []string) (workspace.ProjectID, error) {
	return e.addProject(workspace.ProjectInfo{
		Name:      name,
		Namespace: namespace,
		Kind:      workspace.KindCode,
	}, refs)
}

// AddScriptProject registers a script project bound to a host object type.
// The host members become implicit top-level bindings of its document.
func (e *Engine) AddScriptProject(name string, refs []string, host *starctx.HostType) (workspace.ProjectID, error) {
	return e.addProject(workspace.ProjectInfo{
		Name: name,
		Kind: workspace.KindScript,
		Host: host,
	}, refs)
}

// errUnchanged aborts an update that has nothing to commit.
var errUnchanged = errors.New("unchanged")

func (e *Engine) addProject(info workspace.ProjectInfo, refs []string) (workspace.ProjectID, error) {
	var id workspace.ProjectID
	_, err := e.ws.Update(func(s *workspace.Solution) (*workspace.Solution, error) {
		// Read under the writer lock, which AddReferences also holds.
		info.References = e.resolver.References()
		if _, ok := s.ProjectByName(info.Name); ok {
			return nil, fmt.Errorf("%w: %s", workspace.ErrDuplicateProject, info.Name)
		}
		info.ProjectReferences = nil
		for _, ref := range refs {
			p, ok := s.ProjectByName(ref)
			if !ok {
				return nil, fmt.Errorf("%w: project %s references %s", workspace.ErrUnknownReference, info.Name, ref)
			}
			info.ProjectReferences = append(info.ProjectReferences, p.ID())
		}
		p := workspace.NewProject(info)
		id = p.ID()
		return s.AddProject(p), nil
	})
	if err != nil {
		return "", err
	}
	e.logger.Debug("project added", "project", info.Name, "kind", info.Kind.String(), "references", refs)
	return id, nil
}

// RemoveProject removes a project and closes its open documents. It
// returns false if the project does not exist, and fails with
// workspace.ErrApplyFailed while another project references it.
func (e *Engine) RemoveProject(name string) (bool, error) {
	_, err := e.ws.Update(func(s *workspace.Solution) (*workspace.Solution, error) {
		p, ok := s.ProjectByName(name)
		if !ok {
			return nil, errUnchanged
		}
		return s.RemoveProject(p.ID()), nil
	})
	if errors.Is(err, errUnchanged) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	e.logger.Debug("project removed", "project", name)
	return true, nil
}

// ProjectNames returns the project names in registration order.
func (e *Engine) ProjectNames() []string {
	projects := e.ws.CurrentSolution().Projects()
	names := make([]string, len(projects))
	for i, p := range projects {
		names[i] = p.Name()
	}
	return names
}

// DefaultNamespace returns the namespace of a project.
func (e *Engine) DefaultNamespace(projectName string) (string, error) {
	p, err := e.project(projectName)
	if err != nil {
		return "", err
	}
	return p.Namespace(), nil
}

// Project returns a project of the current solution.
func (e *Engine) Project(name string) (*workspace.Project, error) {
	return e.project(name)
}

func (e *Engine) project(name string) (*workspace.Project, error) {
	p, ok := e.ws.FindProjectByName(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", workspace.ErrUnknownProject, name)
	}
	return p, nil
}

// AddDocument adds a document to a project under the default logical
// path <project>/<name>.
func (e *Engine) AddDocument(docName, projectName, text string) (workspace.DocumentID, error) {
	return e.addDocument(docName, projectName, path.Join(projectName, docName), text)
}

// AddDocumentFromFile adds a document whose initial text is read from
// file. The document is named after the file and keeps the file's path,
// relative to the working directory when possible.
func (e *Engine) AddDocumentFromFile(projectName, file string) (workspace.DocumentID, error) {
	abs := e.ws.Resolve(file)
	content, err := e.fs.ReadFile(abs)
	if err != nil {
		return "", fmt.Errorf("failed to read document: %w", err)
	}

	logical := abs
	if rel, err := filepath.Rel(e.ws.WorkingDirectory(), abs); err == nil && !strings.HasPrefix(rel, "..") {
		logical = filepath.ToSlash(rel)
	}
	return e.addDocument(filepath.Base(abs), projectName, logical, string(content))
}

func (e *Engine) addDocument(docName, projectName, logicalPath, text string) (workspace.DocumentID, error) {
	var id workspace.DocumentID
	_, err := e.ws.Update(func(s *workspace.Solution) (*workspace.Solution, error) {
		p, ok := s.ProjectByName(projectName)
		if !ok {
			return nil, fmt.Errorf("%w: %s", workspace.ErrUnknownProject, projectName)
		}
		if p.Kind() == workspace.KindScript && p.DocumentCount() > 0 {
			return nil, fmt.Errorf("%w: %s", workspace.ErrProjectAlreadyHasDocument, projectName)
		}
		doc := workspace.NewDocument(p.ID(), docName, logicalPath, text)
		id = doc.ID()
		return s.WithProject(p.WithDocument(doc)), nil
	})
	if err != nil {
		return "", err
	}
	e.logger.Debug("document added", "project", projectName, "document", docName)
	return id, nil
}

// RemoveDocument removes a document and closes it if it was open. It
// returns false if the project holds no such document.
func (e *Engine) RemoveDocument(docName, projectName string) (bool, error) {
	_, err := e.ws.Update(func(s *workspace.Solution) (*workspace.Solution, error) {
		p, ok := s.ProjectByName(projectName)
		if !ok {
			return nil, fmt.Errorf("%w: %s", workspace.ErrUnknownProject, projectName)
		}
		doc, ok := p.DocumentByName(docName)
		if !ok {
			return nil, errUnchanged
		}
		return s.WithProject(p.WithoutDocument(doc.ID())), nil
	})
	if errors.Is(err, errUnchanged) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	e.logger.Debug("document removed", "project", projectName, "document", docName)
	return true, nil
}

// HasDocument reports whether a project holds a document.
func (e *Engine) HasDocument(docName, projectName string) bool {
	_, ok := e.ws.FindDocument(docName, projectName)
	return ok
}

// Documents returns the document names of a project in order.
func (e *Engine) Documents(projectName string) ([]string, error) {
	p, err := e.project(projectName)
	if err != nil {
		return nil, err
	}
	docs := p.Documents()
	names := make([]string, len(docs))
	for i, d := range docs {
		names[i] = d.Name()
	}
	return names, nil
}

// Document returns a document of the current solution.
func (e *Engine) Document(docName, projectName string) (*workspace.Document, error) {
	p, err := e.project(projectName)
	if err != nil {
		return nil, err
	}
	doc, ok := p.DocumentByName(docName)
	if !ok {
		return nil, fmt.Errorf("%w: document %s in project %s", workspace.ErrNotFound, docName, projectName)
	}
	return doc, nil
}

// SaveDocument writes the current text of a document to its logical path
// under the working directory.
func (e *Engine) SaveDocument(docName, projectName string) error {
	doc, err := e.Document(docName, projectName)
	if err != nil {
		return err
	}
	target := e.ws.Resolve(doc.Path())
	if err := e.fs.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create document directory: %w", err)
	}
	if err := e.fs.WriteFile(target, []byte(doc.Text()), 0o644); err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}
	e.logger.Debug("document saved", "project", projectName, "document", docName, "path", target, "version", doc.Version())
	return nil
}
