package commands

import (
	"fmt"
	"io"
	"sort"

	"github.com/leapstack-labs/leapcode/internal/runner"
	starctx "github.com/leapstack-labs/leapcode/internal/starlark"
	"github.com/spf13/cobra"
	"go.starlark.net/starlark"
)

// RunOptions holds options for the run command.
type RunOptions struct {
	Exports bool
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run <project>",
		Short: "Compile a project and execute its module",
		Long: `Compile a project and execute the resulting module image.

Script projects are evaluated against the host object declared in
leapcode.yaml. Output of print() goes to stdout.`,
		Example: `  # Run a script project
  leapcode run deploy

  # Run a code project and show its exported values
  leapcode run core --exports`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, args[0], opts)
		},
		ValidArgsFunction: completeProjects,
	}

	cmd.Flags().BoolVar(&opts.Exports, "exports", false, "Print the exported values after running")

	return cmd
}

func runRun(cmd *cobra.Command, project string, opts *RunOptions) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	res, err := cmdCtx.Engine.Compile(ctx, project, "")
	if err != nil {
		renderDiagnostics(cmdCtx.ErrOut, diagnosticsOf(res, err))
		return err
	}

	r := runner.New(runner.WithLogger(cmdCtx.Logger), runner.WithOutput(cmdCtx.Out))
	exports, err := r.Run(ctx, res.Image, hostObject(cmdCtx, project))
	if err != nil {
		return err
	}

	switch {
	case cmdCtx.Cfg.JSON():
		return writeJSON(cmdCtx.Out, exportStrings(exports))
	case opts.Exports:
		printGlobals(cmdCtx.Out, exports)
	}
	return nil
}

func hostObject(cmdCtx *CommandContext, project string) *starctx.HostObject {
	p, ok := cmdCtx.Cfg.Project(project)
	if !ok {
		return nil
	}
	return p.Host.HostObject()
}

func exportStrings(globals starlark.StringDict) map[string]string {
	out := make(map[string]string, len(globals))
	for name, v := range globals {
		out[name] = v.String()
	}
	return out
}

func printGlobals(w io.Writer, globals starlark.StringDict) {
	names := make([]string, 0, len(globals))
	for name := range globals {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		_, _ = fmt.Fprintf(w, "%s = %s\n", name, globals[name].String())
	}
}
