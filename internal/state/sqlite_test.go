package state

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store := NewSQLiteStore(nil)
	require.NoError(t, store.Open(":memory:"))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func record(project string, status CompileStatus, at time.Time) *CompileRecord {
	return &CompileRecord{
		Project:    project,
		Module:     project,
		Kind:       "code",
		Status:     status,
		Documents:  2,
		Duration:   1500 * time.Millisecond,
		CompiledAt: at,
	}
}

func TestSQLiteStore_OpenClose(t *testing.T) {
	store := NewSQLiteStore(nil)
	require.NoError(t, store.Open(":memory:"))

	version, err := store.MigrationVersion()
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)

	require.NoError(t, store.Close())
}

func TestSQLiteStore_FileDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()

	store := NewSQLiteStore(nil)
	require.NoError(t, store.Open(path))
	require.NoError(t, store.RecordCompile(ctx, record("app", CompileStatusSucceeded, time.Time{})))
	require.NoError(t, store.Close())

	reopened := NewSQLiteStore(nil)
	require.NoError(t, reopened.Open(path))
	defer func() { _ = reopened.Close() }()

	recs, err := reopened.ListCompiles(ctx, "app", 0)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestSQLiteStore_NotOpened(t *testing.T) {
	store := NewSQLiteStore(nil)
	ctx := context.Background()

	assert.Error(t, store.RecordCompile(ctx, &CompileRecord{}))
	_, err := store.GetCompile(ctx, "x")
	assert.Error(t, err)
	_, err = store.ListCompiles(ctx, "", 0)
	assert.Error(t, err)
	assert.Error(t, store.Migrate())
	assert.NoError(t, store.Close())
}

func TestSQLiteStore_RecordAndGet(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	rec := record("app", CompileStatusFailed, time.Time{})
	rec.Errors = 1
	rec.Warnings = 1
	rec.Message = "compile app: 1 error(s)"
	rec.Diagnostics = []DiagnosticRecord{
		{Severity: "error", Document: "a.star", Line: 3, Column: 5, Message: "undefined: x"},
		{Severity: "warning", Document: "b.star", Line: 1, Column: 1, Message: "shadows print"},
	}
	require.NoError(t, store.RecordCompile(ctx, rec))
	require.NotEmpty(t, rec.ID)
	assert.False(t, rec.CompiledAt.IsZero())

	got, err := store.GetCompile(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "app", got.Project)
	assert.Equal(t, CompileStatusFailed, got.Status)
	assert.Equal(t, 1500*time.Millisecond, got.Duration)
	assert.Equal(t, rec.Message, got.Message)
	require.Len(t, got.Diagnostics, 2)
	assert.Equal(t, rec.Diagnostics[0], got.Diagnostics[0])
	assert.Equal(t, "warning", got.Diagnostics[1].Severity)

	_, err = store.GetCompile(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_ListAndLatest(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	for i := range 3 {
		require.NoError(t, store.RecordCompile(ctx, record("app", CompileStatusSucceeded, base.Add(time.Duration(i)*time.Minute))))
	}
	require.NoError(t, store.RecordCompile(ctx, record("lib", CompileStatusFailed, base.Add(time.Hour))))

	all, err := store.ListCompiles(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "lib", all[0].Project)

	apps, err := store.ListCompiles(ctx, "app", 2)
	require.NoError(t, err)
	require.Len(t, apps, 2)
	assert.True(t, apps[0].CompiledAt.After(apps[1].CompiledAt))
	assert.Empty(t, apps[0].Diagnostics)

	latest, err := store.LatestCompile(ctx, "app")
	require.NoError(t, err)
	assert.True(t, latest.CompiledAt.Equal(base.Add(2*time.Minute)))

	_, err = store.LatestCompile(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_Prune(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	var first *CompileRecord
	for i := range 4 {
		rec := record("app", CompileStatusFailed, base.Add(time.Duration(i)*time.Minute))
		rec.Diagnostics = []DiagnosticRecord{{Severity: "error", Message: "boom"}}
		require.NoError(t, store.RecordCompile(ctx, rec))
		if i == 0 {
			first = rec
		}
	}
	require.NoError(t, store.RecordCompile(ctx, record("lib", CompileStatusSucceeded, base)))

	n, err := store.PruneCompiles(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	apps, err := store.ListCompiles(ctx, "app", 0)
	require.NoError(t, err)
	assert.Len(t, apps, 2)

	libs, err := store.ListCompiles(ctx, "lib", 0)
	require.NoError(t, err)
	assert.Len(t, libs, 1)

	_, err = store.GetCompile(ctx, first.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	var orphans int
	require.NoError(t, store.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM compile_diagnostics`).Scan(&orphans))
	assert.Equal(t, 2, orphans)
}
