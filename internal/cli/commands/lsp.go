package commands

import (
	"os"

	"github.com/leapstack-labs/leapcode/internal/cli/config"
	"github.com/leapstack-labs/leapcode/internal/lsp"
	"github.com/spf13/cobra"
)

// NewLSPCommand creates the lsp command.
func NewLSPCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lsp",
		Short: "Start the Language Server Protocol server",
		Long: `Start the LSP server for IDE integration.

The server communicates over stdin/stdout using JSON-RPC.
The workspace root is determined by the client's initialization
request (rootUri parameter).`,
		Example: `  # Start LSP server (usually called by an IDE)
  leapcode lsp`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := config.GetLogger(cmd.Context())
			server := lsp.NewServer(os.Stdin, os.Stdout, lsp.WithLogger(logger))
			return server.Run()
		},
	}

	return cmd
}
