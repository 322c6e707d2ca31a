// Package tui provides the read-only Bubble Tea views behind --tui.
//
// Views render the same records as the json, yaml and table output; no
// data is exclusive to the TUI.
package tui

import "github.com/charmbracelet/lipgloss"

var (
	primaryColor = lipgloss.Color("#7C3AED")
	successColor = lipgloss.Color("#10B981")
	warningColor = lipgloss.Color("#F59E0B")
	errorColor   = lipgloss.Color("#EF4444")
	mutedColor   = lipgloss.Color("#6B7280")
)

var (
	// TitleStyle for view titles and section headers.
	TitleStyle = lipgloss.NewStyle().Bold(true).Foreground(primaryColor)

	// LabelStyle for field labels.
	LabelStyle = lipgloss.NewStyle().Foreground(mutedColor).Width(16)

	// ValueStyle for field values.
	ValueStyle = lipgloss.NewStyle()

	// SuccessStyle for finished flights.
	SuccessStyle = lipgloss.NewStyle().Foreground(successColor)

	// WarningStyle for contract violations and late failures.
	WarningStyle = lipgloss.NewStyle().Foreground(warningColor)

	// ErrorStyle for failed flights.
	ErrorStyle = lipgloss.NewStyle().Foreground(errorColor)

	// MutedStyle for everything else.
	MutedStyle = lipgloss.NewStyle().Foreground(mutedColor)

	// BoxStyle for the record summary.
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor).
			Padding(0, 1)

	// HelpStyle for the key help line.
	HelpStyle = lipgloss.NewStyle().Foreground(mutedColor)
)

// StatusStyle returns a style for an outcome status, flight phase or error kind.
func StatusStyle(status string) lipgloss.Style {
	switch status {
	case "success", "sync_done", "queue_done":
		return SuccessStyle
	case "contract_violation", "late_failure":
		return WarningStyle
	case "callback_error", "command_failure", "transport_error", "errored":
		return ErrorStyle
	default:
		return MutedStyle
	}
}
