// Package state records compile history in a SQLite database.
// The schema is managed with goose migrations embedded in the binary.
package state

import (
	"context"
	"time"
)

// CompileStatus is the outcome of a recorded compilation.
type CompileStatus string

// Compile statuses.
const (
	CompileStatusSucceeded CompileStatus = "succeeded"
	CompileStatusFailed    CompileStatus = "failed"
)

// CompileRecord is one recorded compilation.
type CompileRecord struct {
	ID          string
	Project     string
	Module      string
	Kind        string
	Status      CompileStatus
	Documents   int
	Errors      int
	Warnings    int
	ImageSize   int
	ImageHash   string
	Duration    time.Duration
	Message     string
	CompiledAt  time.Time
	Diagnostics []DiagnosticRecord
}

// DiagnosticRecord is one diagnostic of a recorded compilation.
type DiagnosticRecord struct {
	Severity string
	Document string
	Line     int
	Column   int
	Message  string
}

// Store persists compile history.
type Store interface {
	// RecordCompile stores rec, assigning an ID and timestamp when unset.
	RecordCompile(ctx context.Context, rec *CompileRecord) error
	// GetCompile returns a record with its diagnostics.
	GetCompile(ctx context.Context, id string) (*CompileRecord, error)
	// ListCompiles returns the most recent records first. An empty project
	// lists every project. Diagnostics are not loaded.
	ListCompiles(ctx context.Context, project string, limit int) ([]*CompileRecord, error)
	// LatestCompile returns the most recent record of a project.
	LatestCompile(ctx context.Context, project string) (*CompileRecord, error)
	// PruneCompiles deletes all but the newest keep records of each project.
	PruneCompiles(ctx context.Context, keep int) (int64, error)
	Close() error
}
