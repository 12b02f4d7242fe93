package commands

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/leapstack-labs/leapcode/internal/engine"
	"github.com/leapstack-labs/leapcode/internal/reference"
	"github.com/spf13/cobra"
)

// projectSummary is the JSON shape of one listed project.
type projectSummary struct {
	Name       string   `json:"name"`
	Namespace  string   `json:"namespace"`
	Kind       string   `json:"kind"`
	References []string `json:"references"`
	Documents  []string `json:"documents"`
}

// NewProjectsCommand creates the projects command.
func NewProjectsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "projects",
		Short: "List the projects of the workspace",
		Long: `List every project declared in leapcode.yaml with its kind, namespace,
references and documents. Default references are not listed.`,
		Example: `  # List projects
  leapcode projects

  # List projects as JSON
  leapcode projects -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			summaries, err := summarizeProjects(cmdCtx.Engine)
			if err != nil {
				return err
			}
			if cmdCtx.Cfg.JSON() {
				return writeJSON(cmdCtx.Out, summaries)
			}
			renderProjects(cmdCtx, summaries)
			return nil
		},
	}
}

func summarizeProjects(eng *engine.Engine) ([]projectSummary, error) {
	snap := eng.Workspace().CurrentSolution()
	names := eng.ProjectNames()
	out := make([]projectSummary, 0, len(names))
	defaults := make(map[string]bool)
	for _, d := range reference.Defaults() {
		defaults[d.Name] = true
	}
	for _, name := range names {
		p, ok := snap.ProjectByName(name)
		if !ok {
			continue
		}
		docs, err := eng.Documents(name)
		if err != nil {
			return nil, err
		}
		refs := make([]string, 0)
		for _, id := range p.ProjectReferences() {
			if ref, ok := snap.Project(id); ok {
				refs = append(refs, ref.Name())
			}
		}
		for _, d := range p.References() {
			if !defaults[d.Name] {
				refs = append(refs, d.Name)
			}
		}
		out = append(out, projectSummary{
			Name:       p.Name(),
			Namespace:  p.Namespace(),
			Kind:       p.Kind().String(),
			References: refs,
			Documents:  docs,
		})
	}
	return out, nil
}

func renderProjects(cmdCtx *CommandContext, summaries []projectSummary) {
	if len(summaries) == 0 {
		_, _ = fmt.Fprintln(cmdCtx.Out, "No projects declared.")
		return
	}
	t := newTable(cmdCtx.Out)
	t.AppendHeader(table.Row{"Project", "Kind", "Namespace", "Documents", "References"})
	for _, s := range summaries {
		t.AppendRow(table.Row{s.Name, title(s.Kind), s.Namespace, len(s.Documents), strings.Join(s.References, ", ")})
	}
	t.Render()
}
