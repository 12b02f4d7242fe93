// Package engine is the facade over the workspace, the reference resolver
// and the compiler backend.
//
// It implements code projects (many documents, compiled and emitted),
// script projects (one document bound to a host object, compiled as a
// submission) and the buffer protocol editors use to mutate open documents.
// Every mutation goes through the workspace and commits a new solution.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/leapstack-labs/leapcode/internal/compiler"
	"github.com/leapstack-labs/leapcode/internal/reference"
	"github.com/leapstack-labs/leapcode/internal/state"
	"github.com/leapstack-labs/leapcode/internal/workspace"
)

// Engine manages projects, documents and compilation for one workspace.
type Engine struct {
	ws       *workspace.Workspace
	resolver *reference.CachedResolver
	backend  compiler.Backend
	fs       FileSystem
	logger   *slog.Logger

	docProviders func(reference.Descriptor) reference.DocProvider

	// Compile history (nil when no state path is configured)
	store        state.Store
	historyLimit int

	watcher   *reference.Watcher
	stopWatch context.CancelFunc
	watchDone chan struct{}
	closeOnce sync.Once
}

// Config holds engine configuration.
type Config struct {
	// WorkingDir is the workspace root. Document paths are relative to it.
	WorkingDir string
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
	// Backend compiles projects (optional, defaults to the Starlark backend)
	Backend compiler.Backend
	// FS is the filesystem capability (optional, defaults to OSFileSystem)
	FS FileSystem
	// StatePath is the path to the SQLite compile history. Empty disables
	// history; relative paths are resolved against WorkingDir.
	StatePath string
	// HistoryLimit keeps only the newest records per project (0 keeps all).
	HistoryLimit int
	// WatchSearchPaths drops the reference cache when reference files
	// appear in or vanish from a search path.
	WatchSearchPaths bool
	// DocProviders supplies documentation for references that have none.
	DocProviders func(reference.Descriptor) reference.DocProvider
}

// New creates an engine with an empty solution.
func New(cfg Config) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	logger.Debug("initializing engine", "working_dir", cfg.WorkingDir, "state_path", cfg.StatePath)

	ws, err := workspace.New(cfg.WorkingDir, workspace.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	backend := cfg.Backend
	if backend == nil {
		backend = compiler.NewStarlarkBackend(compiler.WithLogger(logger))
	}
	fs := cfg.FS
	if fs == nil {
		fs = OSFileSystem{}
	}

	e := &Engine{
		ws:           ws,
		resolver:     reference.NewCachedResolver(reference.WithLogger(logger)),
		backend:      backend,
		fs:           fs,
		logger:       logger,
		docProviders: cfg.DocProviders,
		historyLimit: cfg.HistoryLimit,
	}

	if cfg.StatePath != "" {
		store, err := openStore(ws.Resolve(cfg.StatePath), cfg.StatePath, logger)
		if err != nil {
			return nil, err
		}
		e.store = store
	}

	if cfg.WatchSearchPaths {
		if err := e.startWatcher(); err != nil {
			_ = e.Close()
			return nil, fmt.Errorf("failed to start search path watcher: %w", err)
		}
	}
	return e, nil
}

func openStore(path, configured string, logger *slog.Logger) (*state.SQLiteStore, error) {
	if configured == ":memory:" {
		path = configured
	} else if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	store := state.NewSQLiteStore(logger)
	if err := store.Open(path); err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}
	return store, nil
}

func (e *Engine) startWatcher() error {
	w, err := reference.NewWatcher(e.resolver, e.logger)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.watcher = w
	e.stopWatch = cancel
	e.watchDone = make(chan struct{})
	go func() {
		defer close(e.watchDone)
		_ = w.Run(ctx)
	}()
	return nil
}

// Close stops the search path watcher and closes the compile history.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		if e.watcher != nil {
			e.stopWatch()
			<-e.watchDone
			err = e.watcher.Close()
		}
		if e.store != nil {
			if cerr := e.store.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}
	})
	return err
}

// Workspace returns the underlying workspace.
func (e *Engine) Workspace() *workspace.Workspace {
	return e.ws
}

// Resolver returns the reference resolver.
func (e *Engine) Resolver() *reference.CachedResolver {
	return e.resolver
}

// Store returns the compile history, or nil when disabled.
func (e *Engine) Store() state.Store {
	return e.store
}

// WorkingDirectory returns the workspace root.
func (e *Engine) WorkingDirectory() string {
	return e.ws.WorkingDirectory()
}

// SwitchWorkingDirectory changes the workspace root used to resolve
// document paths. Existing documents keep their logical paths.
func (e *Engine) SwitchWorkingDirectory(path string) error {
	return e.ws.SwitchWorkingDirectory(path)
}
