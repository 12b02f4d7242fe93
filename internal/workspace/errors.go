package workspace

import "errors"

// Sentinel errors returned by workspace and engine operations.
var (
	// ErrInvalidWorkingDirectory is returned when a working directory does not exist.
	ErrInvalidWorkingDirectory = errors.New("invalid working directory")

	// ErrDuplicateProject is returned when a project name is already taken.
	ErrDuplicateProject = errors.New("duplicate project")

	// ErrUnknownProject is returned when a project name is not registered.
	ErrUnknownProject = errors.New("unknown project")

	// ErrUnknownReference is returned when a project reference names a
	// project that is not registered.
	ErrUnknownReference = errors.New("unknown project reference")

	// ErrProjectAlreadyHasDocument is returned when a second document is
	// added to a script project.
	ErrProjectAlreadyHasDocument = errors.New("script project already has a document")

	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrNotOpen is returned for buffer operations on a document that is not open.
	ErrNotOpen = errors.New("document not open")

	// ErrApplyFailed is returned when a solution could not be committed.
	ErrApplyFailed = errors.New("apply failed")

	// ErrInvalidRange is returned when an edit range is out of bounds or inverted.
	ErrInvalidRange = errors.New("invalid range")
)
