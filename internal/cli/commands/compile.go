package commands

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/leapstack-labs/leapcode/internal/compiler"
	"github.com/leapstack-labs/leapcode/internal/workspace"
	"github.com/spf13/cobra"
)

// CompileOptions holds options for the compile command.
type CompileOptions struct {
	Module string
	Check  bool
}

// compileOutcome is the JSON shape of one compiled project.
type compileOutcome struct {
	Project     string                `json:"project"`
	Module      string                `json:"module,omitempty"`
	Status      string                `json:"status"`
	Image       string                `json:"image,omitempty"`
	Symbols     string                `json:"symbols,omitempty"`
	Exports     []string              `json:"exports,omitempty"`
	Error       string                `json:"error,omitempty"`
	Diagnostics []compiler.Diagnostic `json:"diagnostics,omitempty"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand() *cobra.Command {
	opts := &CompileOptions{}

	cmd := &cobra.Command{
		Use:     "compile [project...]",
		Aliases: []string{"build"},
		Short:   "Compile projects and emit their modules",
		Long: `Compile code projects and write <module>.lcm and <module>.lcs into the
output directory. Referenced projects are compiled first.

Without arguments every code project of the workspace is compiled.
Script projects can be checked with --check but are never emitted.`,
		Example: `  # Compile every code project
  leapcode compile

  # Compile one project under a different module name
  leapcode compile core --module core_v2

  # Report diagnostics without writing anything
  leapcode compile --check`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(cmd, args, opts)
		},
		ValidArgsFunction: completeProjects,
	}

	cmd.Flags().StringVarP(&opts.Module, "module", "m", "", "Module name (single project only; default: namespace)")
	cmd.Flags().BoolVar(&opts.Check, "check", false, "Compile without emitting")

	return cmd
}

func runCompile(cmd *cobra.Command, args []string, opts *CompileOptions) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	if opts.Module != "" && len(args) != 1 {
		return fmt.Errorf("--module requires exactly one project")
	}

	eng := cmdCtx.Engine
	projects := args
	if len(projects) == 0 {
		for _, name := range eng.ProjectNames() {
			p, err := eng.Project(name)
			if err != nil {
				return err
			}
			if p.Kind() == workspace.KindCode || opts.Check {
				projects = append(projects, name)
			}
		}
	}
	if len(projects) == 0 {
		_, _ = fmt.Fprintln(cmdCtx.Out, "Nothing to compile.")
		return nil
	}

	ctx := cmd.Context()
	outcomes := make([]compileOutcome, 0, len(projects))
	failed := 0
	for _, name := range projects {
		p, err := eng.Project(name)
		if err != nil {
			return err
		}

		out := compileOutcome{Project: name}
		var res *compiler.Result
		switch {
		case opts.Check:
			res, err = eng.Compile(ctx, name, opts.Module)
		case p.Kind() == workspace.KindScript:
			err = fmt.Errorf("script projects cannot be emitted; use --check or run")
		default:
			var emitted compiler.Emitted
			res, emitted, err = eng.Emit(ctx, name, opts.Module, cmdCtx.Cfg.OutputDir)
			out.Image, out.Symbols = emitted.Image, emitted.Symbols
		}

		out.Diagnostics = diagnosticsOf(res, err)
		if err != nil {
			failed++
			out.Status = "failed"
			if !errors.Is(err, compiler.ErrCompilationFailed) {
				out.Error = err.Error()
			}
		} else {
			out.Status = "ok"
			out.Module = res.Module
			out.Exports = res.Exports
		}
		outcomes = append(outcomes, out)

		cmdCtx.Logger.Debug("project compiled", "project", name, "status", out.Status)
	}

	if cmdCtx.Cfg.JSON() {
		if err := writeJSON(cmdCtx.Out, outcomes); err != nil {
			return err
		}
	} else {
		renderCompileOutcomes(cmdCtx, outcomes)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d project(s) failed to compile", failed, len(outcomes))
	}
	return nil
}

func renderCompileOutcomes(cmdCtx *CommandContext, outcomes []compileOutcome) {
	t := newTable(cmdCtx.Out)
	t.AppendHeader(table.Row{"Project", "Module", "Status", "Output"})
	for _, o := range outcomes {
		output := o.Image
		if output != "" {
			if rel, err := filepath.Rel(cmdCtx.Cfg.WorkspaceRoot, output); err == nil {
				output = rel
			}
		}
		if o.Error != "" {
			output = o.Error
		}
		t.AppendRow(table.Row{o.Project, o.Module, getStatusStyle(o.Status).Render(o.Status), output})
	}
	t.Render()

	for _, o := range outcomes {
		if len(o.Diagnostics) == 0 {
			continue
		}
		_, _ = fmt.Fprintf(cmdCtx.Out, "\n%s:\n", styles.Bold.Render(o.Project))
		renderDiagnostics(cmdCtx.Out, o.Diagnostics)
	}
}

// completeProjects completes project names from the workspace manifest.
func completeProjects(cmd *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
	cmdCtx, err := NewCommandContextWithoutEngine(cmd)
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	names := make([]string, 0, len(cmdCtx.Cfg.Projects))
	for _, p := range cmdCtx.Cfg.Projects {
		names = append(names, p.Name)
	}
	return names, cobra.ShellCompDirectiveNoFileComp
}
