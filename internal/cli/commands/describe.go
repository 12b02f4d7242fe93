package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// NewDescribeCommand creates the describe command.
func NewDescribeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "describe <project> <symbol>",
		Short: "Show the documentation of a symbol",
		Long: `Show the signature and documentation of a symbol as seen from a project.

A qualified symbol (namespace.name) is looked up in a reference or a
referenced project. An unqualified symbol is looked up in the project's
host object and its own documents.`,
		Example: `  # A function of a referenced project
  leapcode describe app core.greet

  # A host member of a script project
  leapcode describe deploy version`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			namespace, symbol := splitSymbol(args[1])
			doc, ok := cmdCtx.Engine.Describe(args[0], namespace, symbol)
			if !ok {
				return fmt.Errorf("no documentation for %s in project %s", args[1], args[0])
			}
			if cmdCtx.Cfg.JSON() {
				return writeJSON(cmdCtx.Out, map[string]string{"symbol": args[1], "doc": doc})
			}
			_, _ = fmt.Fprintln(cmdCtx.Out, doc)
			return nil
		},
	}
}

func splitSymbol(s string) (namespace, symbol string) {
	if i := strings.LastIndex(s, "."); i > 0 {
		return s[:i], s[i+1:]
	}
	return "", s
}
