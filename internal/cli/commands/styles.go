package commands

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/leapstack-labs/leapcode/internal/compiler"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Styles are the terminal styles of command output. Colors are dropped
// automatically when stdout is not a terminal.
type Styles struct {
	Bold    lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Info    lipgloss.Style
}

// DefaultStyles returns the styles used by every command.
func DefaultStyles() *Styles {
	return &Styles{
		Bold:    lipgloss.NewStyle().Bold(true),
		Muted:   lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		Success: lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		Info:    lipgloss.NewStyle().Foreground(lipgloss.Color("4")),
	}
}

var styles = DefaultStyles()

func getSeverityStyle(sev compiler.Severity) lipgloss.Style {
	switch sev {
	case compiler.SeverityError:
		return styles.Error
	case compiler.SeverityWarning:
		return styles.Warning
	case compiler.SeverityInfo:
		return styles.Info
	default:
		return styles.Muted
	}
}

func getStatusStyle(status string) lipgloss.Style {
	switch status {
	case "ok", "succeeded":
		return styles.Success
	case "failed":
		return styles.Error
	default:
		return styles.Muted
	}
}

// title renders a lower-case identifier such as a project kind for a table.
func title(s string) string {
	return cases.Title(language.English).String(s)
}
