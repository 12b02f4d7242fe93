package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/leapstack-labs/leapcode/internal/cli/config"
	"github.com/leapstack-labs/leapcode/internal/compiler"
	"github.com/leapstack-labs/leapcode/internal/engine"
	"github.com/spf13/cobra"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg    *config.Config
	Logger *slog.Logger
	Engine *engine.Engine
	Out    io.Writer
	ErrOut io.Writer
}

// NewCommandContext creates a CommandContext with an engine loaded from
// the workspace manifest. Returns the context and a cleanup function that
// must be called (typically via defer).
func NewCommandContext(cmd *cobra.Command) (*CommandContext, func(), error) {
	cmdCtx, err := NewCommandContextWithoutEngine(cmd)
	if err != nil {
		return nil, nil, err
	}

	eng, err := createEngine(cmdCtx.Cfg, cmdCtx.Logger)
	if err != nil {
		return nil, nil, err
	}
	cmdCtx.Engine = eng

	cleanup := func() {
		if err := eng.Close(); err != nil {
			cmdCtx.Logger.Warn("failed to close engine", "error", err)
		}
	}
	return cmdCtx, cleanup, nil
}

// NewCommandContextWithoutEngine creates a CommandContext without an engine.
func NewCommandContextWithoutEngine(cmd *cobra.Command) (*CommandContext, error) {
	cfg := config.GetConfig(cmd.Context())
	if cfg == nil {
		var err error
		if cfg, err = config.LoadConfig("", nil); err != nil {
			return nil, err
		}
	}
	return &CommandContext{
		Cfg:    cfg,
		Logger: config.GetLogger(cmd.Context()),
		Out:    cmd.OutOrStdout(),
		ErrOut: cmd.ErrOrStderr(),
	}, nil
}

func createEngine(cfg *config.Config, logger *slog.Logger) (*engine.Engine, error) {
	eng, err := engine.New(engine.Config{
		WorkingDir:       cfg.WorkspaceRoot,
		Logger:           logger,
		StatePath:        cfg.StatePath,
		HistoryLimit:     cfg.HistoryLimit,
		WatchSearchPaths: cfg.WatchSearchPaths,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	if err := eng.LoadManifest(&cfg.WorkspaceConfig); err != nil {
		_ = eng.Close()
		return nil, fmt.Errorf("failed to load workspace: %w", err)
	}
	return eng, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	return t
}

// diagnosticsOf returns the diagnostics of a compile outcome: the
// warnings of a result or the messages of a failed compilation.
func diagnosticsOf(res *compiler.Result, err error) []compiler.Diagnostic {
	var compErr *compiler.CompilationError
	if errors.As(err, &compErr) {
		return compErr.Diagnostics
	}
	if res != nil {
		return res.Diagnostics
	}
	return nil
}

func renderDiagnostics(w io.Writer, diags []compiler.Diagnostic) {
	if len(diags) == 0 {
		return
	}
	t := newTable(w)
	t.AppendHeader(table.Row{"Severity", "Location", "Message"})
	for _, d := range diags {
		t.AppendRow(table.Row{getSeverityStyle(d.Severity).Render(d.Severity.String()), location(d), d.Message})
	}
	t.Render()
}

func location(d compiler.Diagnostic) string {
	loc := d.Path
	if loc == "" {
		loc = d.Document
	}
	if d.Line > 0 {
		loc = fmt.Sprintf("%s:%d:%d", loc, d.Line, d.Column)
	}
	return loc
}
