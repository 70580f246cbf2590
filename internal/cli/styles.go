package cli

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/rmed/simpleice/internal/domain"
)

var (
	mutedColor   = lipgloss.Color("#6B7280")
	accentColor  = lipgloss.Color("#F59E0B")
	errorColor   = lipgloss.Color("#EF4444")
	successColor = lipgloss.Color("#10B981")
	primaryColor = lipgloss.Color("#7C3AED")

	titleStyle = lipgloss.NewStyle().
			Foreground(primaryColor).
			Bold(true)

	activeStyle = lipgloss.NewStyle().
			Foreground(successColor).
			Bold(true)

	draftStyle = lipgloss.NewStyle().
			Foreground(errorColor)

	sentStyle = lipgloss.NewStyle().
			Foreground(accentColor)

	mutedTextStyle = lipgloss.NewStyle().
			Foreground(mutedColor)
)

func statusStyle(s domain.Status) lipgloss.Style {
	switch s {
	case domain.StatusActive:
		return activeStyle
	case domain.StatusSent:
		return sentStyle
	}
	return draftStyle
}

// renderStatus colours a status for terminal output. Styles collapse to plain
// text when the output is not a terminal.
func renderStatus(s domain.Status) string {
	return statusStyle(s).Render(string(s))
}
