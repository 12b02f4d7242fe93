package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // register the sqlite driver
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store instance.
// If logger is nil, a discard logger is used.
func NewSQLiteStore(logger *slog.Logger) *SQLiteStore {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SQLiteStore{logger: logger}
}

// Open opens a connection to the SQLite database and runs migrations.
// Use ":memory:" for an in-memory database.
func (s *SQLiteStore) Open(path string) error {
	dsn := path + "?_pragma=foreign_keys(1)"
	if path != ":memory:" {
		dsn += "&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if path == ":memory:" {
		// every connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	s.db = db
	s.path = path

	if err := s.Migrate(); err != nil {
		_ = db.Close()
		s.db = nil
		return err
	}
	s.logger.Debug("state store opened", slog.String("path", path))
	return nil
}

// Path returns the database path given to Open.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// generateID creates a new UUID.
func generateID() string {
	return uuid.New().String()
}

// RecordCompile stores a compile record and its diagnostics.
func (s *SQLiteStore) RecordCompile(ctx context.Context, rec *CompileRecord) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	if rec.ID == "" {
		rec.ID = generateID()
	}
	if rec.CompiledAt.IsZero() {
		rec.CompiledAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO compiles (id, project, module, kind, status, documents, errors, warnings,
			image_size, image_hash, duration_ms, message, compiled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Project, rec.Module, rec.Kind, string(rec.Status), rec.Documents,
		rec.Errors, rec.Warnings, rec.ImageSize, rec.ImageHash,
		rec.Duration.Milliseconds(), rec.Message, rec.CompiledAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert compile: %w", err)
	}

	for i, d := range rec.Diagnostics {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO compile_diagnostics (compile_id, seq, severity, document, line, col, message)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, i, d.Severity, d.Document, d.Line, d.Column, d.Message,
		)
		if err != nil {
			return fmt.Errorf("failed to insert diagnostic: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit compile: %w", err)
	}
	return nil
}

const compileColumns = `id, project, module, kind, status, documents, errors, warnings,
	image_size, image_hash, duration_ms, message, compiled_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCompile(row rowScanner) (*CompileRecord, error) {
	var (
		rec        CompileRecord
		status     string
		durationMs int64
	)
	err := row.Scan(
		&rec.ID, &rec.Project, &rec.Module, &rec.Kind, &status, &rec.Documents,
		&rec.Errors, &rec.Warnings, &rec.ImageSize, &rec.ImageHash,
		&durationMs, &rec.Message, &rec.CompiledAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Status = CompileStatus(status)
	rec.Duration = time.Duration(durationMs) * time.Millisecond
	return &rec, nil
}

// GetCompile retrieves a compile record by ID, including its diagnostics.
func (s *SQLiteStore) GetCompile(ctx context.Context, id string) (*CompileRecord, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+compileColumns+` FROM compiles WHERE id = ?`, id)
	rec, err := scanCompile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("compile %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get compile: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT severity, document, line, col, message
		FROM compile_diagnostics WHERE compile_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get diagnostics: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var d DiagnosticRecord
		if err := rows.Scan(&d.Severity, &d.Document, &d.Line, &d.Column, &d.Message); err != nil {
			return nil, fmt.Errorf("failed to scan diagnostic: %w", err)
		}
		rec.Diagnostics = append(rec.Diagnostics, d)
	}
	return rec, rows.Err()
}

// ListCompiles returns compile records, newest first.
func (s *SQLiteStore) ListCompiles(ctx context.Context, project string, limit int) ([]*CompileRecord, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	if limit <= 0 {
		limit = -1
	}

	query := `SELECT ` + compileColumns + ` FROM compiles`
	args := []any{}
	if project != "" {
		query += ` WHERE project = ?`
		args = append(args, project)
	}
	query += ` ORDER BY compiled_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list compiles: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var recs []*CompileRecord
	for rows.Next() {
		rec, err := scanCompile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan compile: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// LatestCompile returns the most recent compile record of a project.
func (s *SQLiteStore) LatestCompile(ctx context.Context, project string) (*CompileRecord, error) {
	recs, err := s.ListCompiles(ctx, project, 1)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("no compiles for %s: %w", project, ErrNotFound)
	}
	return recs[0], nil
}

// PruneCompiles keeps the newest keep records of each project.
func (s *SQLiteStore) PruneCompiles(ctx context.Context, keep int) (int64, error) {
	if s.db == nil {
		return 0, fmt.Errorf("database not opened")
	}
	if keep < 0 {
		keep = 0
	}

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM compiles WHERE id IN (
			SELECT id FROM (
				SELECT id, ROW_NUMBER() OVER (
					PARTITION BY project ORDER BY compiled_at DESC, rowid DESC
				) AS n
				FROM compiles
			) WHERE n > ?
		)`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune compiles: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Debug("pruned compile history", slog.Int64("deleted", n))
	}
	return n, nil
}

var _ Store = (*SQLiteStore)(nil)
