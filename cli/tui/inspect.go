package tui

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

// Rows taken by the title and help lines around the viewport.
const chromeHeight = 3

type keyMap struct {
	Quit   key.Binding
	Top    key.Binding
	Bottom key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "esc", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
	Top: key.NewBinding(
		key.WithKeys("g", "home"),
		key.WithHelp("g", "top"),
	),
	Bottom: key.NewBinding(
		key.WithKeys("G", "end"),
		key.WithHelp("G", "bottom"),
	),
}

// InspectModel pages through one inspect result.
type InspectModel struct {
	viewType string
	title    string
	body     string
	viewport viewport.Model
	ready    bool
	quitting bool
}

// NewInspectModel renders data for viewType. Flight views take the records
// returned by journal.ReadFlight, metrics views a single record.
func NewInspectModel(viewType string, data any) (InspectModel, error) {
	if !IsSupported(viewType) {
		return InspectModel{}, fmt.Errorf("TUI mode is not supported for %s", viewType)
	}
	body, err := renderBody(viewType, data)
	if err != nil {
		return InspectModel{}, err
	}
	title := "Flight"
	if viewType == ViewInspectMetrics {
		title = "Metrics"
	}
	return InspectModel{viewType: viewType, title: title, body: body}, nil
}

// Init implements tea.Model.
func (m InspectModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m InspectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		height := max(msg.Height-chromeHeight, 1)
		if !m.ready {
			m.viewport = viewport.New(msg.Width, height)
			m.viewport.SetContent(m.body)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = height
		}
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, keys.Top):
			m.viewport.GotoTop()
			return m, nil
		case key.Matches(msg, keys.Bottom):
			m.viewport.GotoBottom()
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m InspectModel) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "loading..."
	}
	header := TitleStyle.Render(m.title)
	help := HelpStyle.Render(fmt.Sprintf("%3.0f%%  ↑/↓ scroll  g/G top/bottom  q quit", m.viewport.ScrollPercent()*100))
	return header + "\n" + m.viewport.View() + "\n" + help
}

func renderBody(viewType string, data any) (string, error) {
	switch viewType {
	case ViewInspectFlight:
		records, ok := data.([]map[string]any)
		if !ok {
			return "", fmt.Errorf("%s: want []map[string]any, got %T", viewType, data)
		}
		return renderFlight(records), nil
	case ViewInspectMetrics:
		rec, ok := data.(map[string]any)
		if !ok {
			return "", fmt.Errorf("%s: want map[string]any, got %T", viewType, data)
		}
		return renderMetrics(rec), nil
	}
	return "", fmt.Errorf("unknown view type: %s", viewType)
}

// renderFlight shows the flight summary followed by every envelope in
// journal order.
func renderFlight(records []map[string]any) string {
	var b strings.Builder

	var envelopes []map[string]any
	var summary map[string]any
	for _, rec := range records {
		switch text(rec["record_kind"]) {
		case "flight":
			summary = rec
		case "envelope":
			envelopes = append(envelopes, rec)
		}
	}

	if summary != nil {
		b.WriteString(BoxStyle.Render(flightSummary(summary)))
		b.WriteString("\n\n")
	} else {
		b.WriteString(WarningStyle.Render("flight has not completed; no flight record"))
		b.WriteString("\n\n")
	}

	b.WriteString(TitleStyle.Render(fmt.Sprintf("Envelopes (%d)", len(envelopes))))
	b.WriteString("\n")
	for _, env := range envelopes {
		b.WriteString(envelopeLine(env))
		b.WriteString("\n")
	}
	return b.String()
}

func flightSummary(rec map[string]any) string {
	phase := text(rec["phase"])
	rows := [][2]string{
		{"Flight ID", text(rec["flight_id"])},
		{"Runnable", text(rec["runnable_id"])},
		{"Title", titlePath(rec["title_path"])},
		{"Phase", StatusStyle(phase).Render(phase)},
		{"Commands", text(rec["commands"])},
		{"Duration", text(rec["duration_ms"]) + "ms"},
		{"Started", text(rec["started_at"])},
	}
	if kind := text(rec["error_kind"]); kind != "" {
		rows = append(rows,
			[2]string{"Error", StatusStyle(kind).Render(kind)},
			[2]string{"Error Name", text(rec["error_name"])},
			[2]string{"Message", text(rec["error_message"])},
		)
	}

	lines := make([]string, len(rows))
	for i, row := range rows {
		lines[i] = LabelStyle.Render(row[0]+":") + " " + ValueStyle.Render(row[1])
	}
	return strings.Join(lines, "\n")
}

func envelopeLine(rec map[string]any) string {
	arrow := "->"
	if text(rec["direction"]) == "received" {
		arrow = "<-"
	}
	line := fmt.Sprintf("%4s %s %-16s", text(rec["seq"]), arrow, text(rec["event"]))
	if rec["sync_config"] == true {
		line += " " + MutedStyle.Render("[sync config]")
	}
	if e := text(rec["payload_error"]); e != "" {
		return line + " " + ErrorStyle.Render(e)
	}

	payload, _ := rec["payload"].(map[string]any)
	if errBody, ok := payload["err"].(map[string]any); ok {
		kind := text(errBody["kind"])
		return line + " " + StatusStyle(kind).Render(kind) + " " + text(errBody["message"])
	}
	if finished, ok := payload["finished"].(bool); ok {
		line += fmt.Sprintf(" finished=%t", finished)
	}
	if subject, ok := payload["subject"]; ok && subject != nil {
		line += " subject=" + text(subject)
	}
	return line
}

var failureCounters = map[string]bool{
	"flights_errored":         true,
	"contract_violations":     true,
	"late_failures":           true,
	"commands_failed":         true,
	"decode_errors":           true,
	"journal_write_failure":   true,
	"adapter_publish_failure": true,
}

// renderMetrics lists labels first, then counters, each sorted by name.
func renderMetrics(rec map[string]any) string {
	var labels, counters []string
	for _, k := range slices.Sorted(maps.Keys(rec)) {
		if isNumber(rec[k]) {
			counters = append(counters, k)
		} else {
			labels = append(labels, k)
		}
	}

	var b strings.Builder
	for _, k := range labels {
		b.WriteString(LabelStyle.Render(k+":") + " " + ValueStyle.Render(text(rec[k])) + "\n")
	}
	b.WriteString("\n")
	for _, k := range counters {
		value := text(rec[k])
		style := ValueStyle
		if failureCounters[k] && value != "0" {
			style = ErrorStyle
		}
		b.WriteString(fmt.Sprintf("%-26s %s\n", k, style.Render(value)))
	}
	return b.String()
}

func isNumber(v any) bool {
	switch v.(type) {
	case int, int32, int64, uint, uint32, uint64, float64:
		return true
	}
	return false
}

func titlePath(v any) string {
	switch p := v.(type) {
	case []string:
		return strings.Join(p, " > ")
	case []any:
		parts := make([]string, len(p))
		for i, e := range p {
			parts[i] = text(e)
		}
		return strings.Join(parts, " > ")
	}
	return text(v)
}

// text formats a decoded record value. JSON numbers arrive as float64;
// integral ones print without a fraction.
func text(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1<<53 {
			return fmt.Sprintf("%d", int64(x))
		}
		return fmt.Sprintf("%g", x)
	}
	return fmt.Sprint(v)
}
