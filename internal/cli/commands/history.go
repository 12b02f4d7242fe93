package commands

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/leapstack-labs/leapcode/internal/state"
	"github.com/spf13/cobra"
)

// HistoryOptions holds options for the history command.
type HistoryOptions struct {
	Limit int
	ID    string
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand() *cobra.Command {
	opts := &HistoryOptions{}

	cmd := &cobra.Command{
		Use:   "history [project]",
		Short: "Show the compile history",
		Long: `Show recorded compilations, newest first, from the state database.
Pass --id to show one compilation with its diagnostics.`,
		Example: `  # The last 20 compilations
  leapcode history

  # Compilations of one project
  leapcode history core --limit 5

  # One compilation in detail
  leapcode history --id 5f0c...`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			project := ""
			if len(args) == 1 {
				project = args[0]
			}
			return runHistory(cmd, project, opts)
		},
		ValidArgsFunction: completeProjects,
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "Maximum number of records (0 for all)")
	cmd.Flags().StringVar(&opts.ID, "id", "", "Show a single compilation")

	return cmd
}

func runHistory(cmd *cobra.Command, project string, opts *HistoryOptions) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	store := cmdCtx.Engine.Store()
	if store == nil {
		return fmt.Errorf("compile history is disabled (no state path)")
	}
	ctx := cmd.Context()

	if opts.ID != "" {
		rec, err := store.GetCompile(ctx, opts.ID)
		if err != nil {
			return err
		}
		if cmdCtx.Cfg.JSON() {
			return writeJSON(cmdCtx.Out, rec)
		}
		renderCompileRecord(cmdCtx, rec)
		return nil
	}

	recs, err := store.ListCompiles(ctx, project, opts.Limit)
	if err != nil {
		return err
	}
	if cmdCtx.Cfg.JSON() {
		return writeJSON(cmdCtx.Out, recs)
	}
	if len(recs) == 0 {
		_, _ = fmt.Fprintln(cmdCtx.Out, "No compilations recorded.")
		return nil
	}

	t := newTable(cmdCtx.Out)
	t.AppendHeader(table.Row{"ID", "Project", "Module", "Status", "Errors", "Warnings", "Duration", "Compiled"})
	for _, rec := range recs {
		t.AppendRow(table.Row{
			shortID(rec.ID), rec.Project, rec.Module, getStatusStyle(string(rec.Status)).Render(string(rec.Status)),
			rec.Errors, rec.Warnings, rec.Duration.Round(time.Millisecond), rec.CompiledAt.Local().Format(time.DateTime),
		})
	}
	t.Render()
	return nil
}

func renderCompileRecord(cmdCtx *CommandContext, rec *state.CompileRecord) {
	t := newTable(cmdCtx.Out)
	t.AppendRows([]table.Row{
		{"ID", rec.ID},
		{"Project", rec.Project},
		{"Module", rec.Module},
		{"Kind", title(rec.Kind)},
		{"Status", getStatusStyle(string(rec.Status)).Render(string(rec.Status))},
		{"Documents", rec.Documents},
		{"Image", fmt.Sprintf("%d bytes %s", rec.ImageSize, shortID(rec.ImageHash))},
		{"Duration", rec.Duration.Round(time.Millisecond)},
		{"Compiled", rec.CompiledAt.Local().Format(time.DateTime)},
	})
	if rec.Message != "" {
		t.AppendRow(table.Row{"Message", rec.Message})
	}
	t.Render()

	if len(rec.Diagnostics) == 0 {
		return
	}
	d := newTable(cmdCtx.Out)
	d.AppendHeader(table.Row{"Severity", "Location", "Message"})
	for _, diag := range rec.Diagnostics {
		loc := diag.Document
		if diag.Line > 0 {
			loc = fmt.Sprintf("%s:%d:%d", loc, diag.Line, diag.Column)
		}
		d.AppendRow(table.Row{diag.Severity, loc, diag.Message})
	}
	d.Render()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
