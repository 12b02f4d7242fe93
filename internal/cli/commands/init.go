package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

// NewInitCommand creates the init command.
func NewInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new leapcode workspace",
		Long: `Initialize a new workspace with a leapcode.yaml manifest and example projects:

  - core: a code project of two documents
  - app: a code project referencing core
  - hello: a script project bound to a console host object
  - lib/: a search path holding a loadable source file`,
		Example: `  # Initialize in current directory
  leapcode init

  # Initialize in a new directory
  leapcode init my-workspace

  # Force overwrite existing files
  leapcode init --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			return runInit(cmd, dir, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing files")

	return cmd
}

func runInit(cmd *cobra.Command, dir string, force bool) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	configPath := filepath.Join(dir, "leapcode.yaml")
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("leapcode.yaml already exists. Use --force to overwrite")
	}

	if err := copyTemplate("minimal", dir, force); err != nil {
		return fmt.Errorf("failed to initialize workspace: %w", err)
	}

	out := cmd.OutOrStdout()
	files, _ := listTemplateFiles("minimal")
	for _, f := range files {
		_, _ = fmt.Fprintf(out, "  created %s\n", f)
	}

	_, _ = fmt.Fprintln(out)
	_, _ = fmt.Fprintln(out, styles.Success.Render("leapcode workspace initialized!"))
	_, _ = fmt.Fprintln(out)
	_, _ = fmt.Fprintln(out, "Next steps:")
	_, _ = fmt.Fprintln(out, "  leapcode projects     List the projects")
	_, _ = fmt.Fprintln(out, "  leapcode compile      Emit core and app into out/")
	_, _ = fmt.Fprintln(out, "  leapcode run hello    Run the script project")
	return nil
}
