package tui

import (
	"fmt"
	"slices"

	tea "github.com/charmbracelet/bubbletea"
)

// View types with a TUI.
const (
	ViewInspectFlight  = "inspect_flight"
	ViewInspectMetrics = "inspect_metrics"
)

// SupportedViews lists the view types that have a TUI.
func SupportedViews() []string {
	return []string{ViewInspectFlight, ViewInspectMetrics}
}

// IsSupported reports whether viewType has a TUI.
func IsSupported(viewType string) bool {
	return slices.Contains(SupportedViews(), viewType)
}

// Run shows data in a full-screen pager until the user quits.
func Run(viewType string, data any) error {
	m, err := NewInspectModel(viewType, data)
	if err != nil {
		return err
	}
	_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}

// RenderStatic renders the view body without starting a program, for
// output that is not a terminal.
func RenderStatic(viewType string, data any) (string, error) {
	if !IsSupported(viewType) {
		return "", fmt.Errorf("TUI mode is not supported for %s", viewType)
	}
	return renderBody(viewType, data)
}
