package engine

import (
	"fmt"

	"github.com/leapstack-labs/leapcode/internal/workspace"
)

// DocumentID returns the ID of a document.
func (e *Engine) DocumentID(docName, projectName string) (workspace.DocumentID, bool) {
	doc, ok := e.ws.FindDocument(docName, projectName)
	if !ok {
		return "", false
	}
	return doc.ID(), true
}

// IsDocumentOpen reports whether a document is open as a live buffer.
func (e *Engine) IsDocumentOpen(docName, projectName string) bool {
	id, ok := e.DocumentID(docName, projectName)
	return ok && e.ws.IsOpen(id)
}

// OpenDocument opens a document as a live buffer. It returns false if the
// document does not exist; opening an open document is a no-op.
func (e *Engine) OpenDocument(docName, projectName string) bool {
	id, ok := e.DocumentID(docName, projectName)
	if !ok {
		return false
	}
	return e.ws.Open(id)
}

// CloseDocument closes a buffer and reports whether it was open.
func (e *Engine) CloseDocument(docName, projectName string) bool {
	id, ok := e.DocumentID(docName, projectName)
	if !ok {
		return false
	}
	return e.ws.Close(id)
}

// GetBuffer returns the text of an open document.
func (e *Engine) GetBuffer(docName, projectName string) (string, error) {
	doc, err := e.Document(docName, projectName)
	if err != nil {
		return "", err
	}
	if !e.ws.IsOpen(doc.ID()) {
		return "", fmt.Errorf("%w: %s", workspace.ErrNotOpen, docName)
	}
	return doc.Text(), nil
}

// ReplaceBuffer replaces the whole text of an open document.
func (e *Engine) ReplaceBuffer(id workspace.DocumentID, text string) error {
	return e.updateBuffer(id, func(*workspace.Document) (string, error) {
		return text, nil
	})
}

// ChangeBuffer replaces a range of an open document. Lines are 0-based
// and columns are byte offsets within the line.
func (e *Engine) ChangeBuffer(id workspace.DocumentID, r workspace.Range, text string) error {
	return e.updateBuffer(id, func(doc *workspace.Document) (string, error) {
		return workspace.ApplyChange(doc, r, text)
	})
}

// updateBuffer resolves the edit against the current text under the
// writer lock, so concurrent edits apply in order.
func (e *Engine) updateBuffer(id workspace.DocumentID, edit func(*workspace.Document) (string, error)) error {
	committed, err := e.ws.Update(func(s *workspace.Solution) (*workspace.Solution, error) {
		doc, _, ok := s.Document(id)
		if !ok {
			return nil, fmt.Errorf("%w: %s", workspace.ErrNotFound, id)
		}
		if !e.ws.IsOpen(id) {
			return nil, fmt.Errorf("%w: %s", workspace.ErrNotOpen, doc.Name())
		}
		text, err := edit(doc)
		if err != nil {
			return nil, err
		}
		return s.WithDocument(doc.WithText(text))
	})
	if err != nil {
		return err
	}
	if doc, _, ok := committed.Document(id); ok {
		e.logger.Debug("buffer updated", "document", doc.Name(), "version", doc.Version())
	}
	return nil
}
