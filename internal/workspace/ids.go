package workspace

import "github.com/google/uuid"

// ProjectID identifies a project for the lifetime of a workspace.
type ProjectID string

// DocumentID identifies a document for the lifetime of a workspace.
type DocumentID string

// NewProjectID returns a fresh project ID.
func NewProjectID() ProjectID {
	return ProjectID(uuid.NewString())
}

// NewDocumentID returns a fresh document ID.
func NewDocumentID() DocumentID {
	return DocumentID(uuid.NewString())
}

// String returns the ID as a string.
func (id ProjectID) String() string { return string(id) }

// String returns the ID as a string.
func (id DocumentID) String() string { return string(id) }
