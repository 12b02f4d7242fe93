// Package workspace holds the versioned graph of projects and documents.
//
// The current Solution is an immutable snapshot read without locking.
// Every change derives a new Solution and commits it through Apply, which
// serializes writers and rejects solutions derived from a stale snapshot.
package workspace

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
)

// Workspace owns the current solution, the working directory and the set
// of open documents.
type Workspace struct {
	mu      sync.Mutex // serializes commits
	current atomic.Pointer[Solution]

	dirMu      sync.RWMutex
	workingDir string

	open   *OpenSet
	logger *slog.Logger
}

// Option configures a Workspace.
type Option func(*Workspace)

// WithLogger sets the workspace logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Workspace) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// New creates a workspace with an empty solution.
func New(workingDir string, opts ...Option) (*Workspace, error) {
	dir, err := checkDir(workingDir)
	if err != nil {
		return nil, err
	}
	w := &Workspace{
		workingDir: dir,
		open:       NewOpenSet(),
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.current.Store(emptySolution())
	return w, nil
}

func checkDir(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidWorkingDirectory)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidWorkingDirectory, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidWorkingDirectory, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s is not a directory", ErrInvalidWorkingDirectory, abs)
	}
	return abs, nil
}

// CurrentSolution returns the current snapshot.
func (w *Workspace) CurrentSolution() *Solution {
	return w.current.Load()
}

// Apply commits next if it was derived from the current solution and
// satisfies every structural invariant. On failure the current solution
// is left intact and the error wraps ErrApplyFailed.
func (w *Workspace) Apply(next *Solution) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := w.applyLocked(next)
	return err
}

// Update derives a solution from the current one with fn and commits it,
// holding the writer lock throughout. It returns the committed solution.
func (w *Workspace) Update(fn func(*Solution) (*Solution, error)) (*Solution, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	next, err := fn(w.current.Load())
	if err != nil {
		return nil, err
	}
	return w.applyLocked(next)
}

func (w *Workspace) applyLocked(next *Solution) (*Solution, error) {
	if next == nil {
		return nil, fmt.Errorf("%w: nil solution", ErrApplyFailed)
	}
	cur := w.current.Load()
	if next.version != 0 {
		return nil, fmt.Errorf("%w: solution %d is already committed", ErrApplyFailed, next.version)
	}
	if next.base != cur.version {
		return nil, fmt.Errorf("%w: derived from version %d, current is %d", ErrApplyFailed, next.base, cur.version)
	}
	if err := next.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrApplyFailed, err)
	}

	committed := &Solution{
		version:  cur.version + 1,
		projects: next.projects,
	}
	w.current.Store(committed)

	closed := w.open.Retain(func(id DocumentID) bool {
		_, _, ok := committed.Document(id)
		return ok
	})
	w.logger.Debug("solution committed",
		"version", committed.version,
		"projects", len(committed.projects),
		"closed", len(closed))
	return committed, nil
}

// FindProjectByName looks up a project in the current solution.
func (w *Workspace) FindProjectByName(name string) (*Project, bool) {
	return w.CurrentSolution().ProjectByName(name)
}

// FindDocument looks up a document by name within a project.
func (w *Workspace) FindDocument(name, projectName string) (*Document, bool) {
	p, ok := w.FindProjectByName(projectName)
	if !ok {
		return nil, false
	}
	return p.DocumentByName(name)
}

// FindDocumentByID looks up a document by ID across all projects.
func (w *Workspace) FindDocumentByID(id DocumentID) (*Document, error) {
	d, _, ok := w.CurrentSolution().Document(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return d, nil
}

// WorkingDirectory returns the absolute working directory.
func (w *Workspace) WorkingDirectory() string {
	w.dirMu.RLock()
	defer w.dirMu.RUnlock()
	return w.workingDir
}

// SwitchWorkingDirectory changes the working directory. The solution is
// not touched.
func (w *Workspace) SwitchWorkingDirectory(path string) error {
	if !filepath.IsAbs(path) {
		path = filepath.Join(w.WorkingDirectory(), path)
	}
	dir, err := checkDir(path)
	if err != nil {
		return err
	}
	w.dirMu.Lock()
	w.workingDir = dir
	w.dirMu.Unlock()
	w.logger.Debug("working directory switched", "path", dir)
	return nil
}

// Resolve joins a relative path onto the working directory.
func (w *Workspace) Resolve(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(w.WorkingDirectory(), path)
}

// Open marks a document open. It returns false if the document does not exist.
func (w *Workspace) Open(id DocumentID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, _, ok := w.current.Load().Document(id); !ok {
		return false
	}
	w.open.Add(id)
	return true
}

// Close marks a document closed and reports whether it was open.
func (w *Workspace) Close(id DocumentID) bool {
	return w.open.Remove(id)
}

// IsOpen reports whether a document is open.
func (w *Workspace) IsOpen(id DocumentID) bool {
	return w.open.Contains(id)
}

// OpenDocuments returns the IDs of open documents.
func (w *Workspace) OpenDocuments() []DocumentID {
	return w.open.IDs()
}
