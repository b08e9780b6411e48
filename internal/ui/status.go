package ui

import (
	"fmt"
	"strings"
	"time"

	pb "github.com/bnema/segbridge/internal/proto"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// LED bits as reported in StatusResponse.LedState
const (
	ledScroll = 1 << iota
	ledNum
	ledCaps
)

// DefaultStatusRefresh is how often StatusModel polls its provider
const DefaultStatusRefresh = time.Second

const maxDisplayRows = 4

// StatusProvider returns the current bridge status
type StatusProvider func() (*pb.StatusResponse, error)

var displayColumns = []table.Column{
	{Title: "#", Width: 3},
	{Title: "Size", Width: 11},
	{Title: "Mode", Width: 8},
	{Title: "Visible", Width: 8},
	{Title: "Refresh", Width: 8},
	{Title: "Frames", Width: 10},
	{Title: "Keys", Width: 5},
}

// FormatLED renders an LED mask as a list of lock names
func FormatLED(mask int32) string {
	var parts []string
	if mask&ledCaps != 0 {
		parts = append(parts, "caps")
	}
	if mask&ledNum != 0 {
		parts = append(parts, "num")
	}
	if mask&ledScroll != 0 {
		parts = append(parts, "scroll")
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, " ")
}

// DisplayRows converts the displays of status into table rows
func DisplayRows(status *pb.StatusResponse) []table.Row {
	if status == nil {
		return nil
	}
	rows := make([]table.Row, 0, len(status.Displays))
	for _, d := range status.Displays {
		visible := "yes"
		if d.Hidden {
			visible = "no"
		}
		rows = append(rows, table.Row{
			fmt.Sprint(d.Index),
			fmt.Sprintf("%dx%d", d.Width, d.Height),
			d.Mode,
			visible,
			fmt.Sprintf("%dms", d.RefreshIntervalMs),
			fmt.Sprint(d.Frames),
			fmt.Sprint(d.PressedKeys),
		})
	}
	return rows
}

// RenderStatus renders a one-shot status report
func RenderStatus(status *pb.StatusResponse) string {
	var b strings.Builder

	b.WriteString(FormatHeader("Segbridge status"))
	b.WriteString("\n")
	b.WriteString(renderSummary(status))
	b.WriteString("\n")

	if len(status.Displays) == 0 {
		b.WriteString(WarningStyle.Render("No displays bound"))
		b.WriteString("\n")
		return b.String()
	}

	b.WriteString("\n")
	b.WriteString(renderDisplays(status))
	b.WriteString("\n")
	return b.String()
}

func renderSummary(status *pb.StatusResponse) string {
	state := status.State
	if state == "" {
		state = "unknown"
	}
	gl := "off"
	if status.Gl {
		gl = "on"
	}
	compositor := status.Compositor
	if compositor == "" {
		compositor = "-"
	}

	lines := []string{
		FormatStatus(status.Running, BoldStyle.Render(state)),
		FormatKeyValue("Name", status.Name),
		FormatKeyValue("Compositor", compositor),
		FormatKeyValue("LEDs", FormatLED(status.LedState)),
		FormatKeyValue("GL", gl),
	}
	return strings.Join(lines, "\n")
}

func renderDisplays(status *pb.StatusResponse) string {
	header := make([]string, len(displayColumns))
	for i, c := range displayColumns {
		header[i] = fmt.Sprintf("%-*s", c.Width, c.Title)
	}

	lines := []string{BoldStyle.Foreground(ColorPrimary).Render(strings.Join(header, " "))}
	for _, row := range DisplayRows(status) {
		cells := make([]string, len(row))
		for i, cell := range row {
			cells[i] = fmt.Sprintf("%-*s", displayColumns[i].Width, cell)
		}
		line := strings.Join(cells, " ")
		if row[3] == "no" {
			line = SubtleStyle.Render(line)
		}
		lines = append(lines, line)
	}
	return BoxStyle.Render(strings.Join(lines, "\n"))
}

type statusMsg struct {
	status *pb.StatusResponse
	err    error
}

type refreshMsg time.Time

// StatusModel is a live status view that polls a StatusProvider
type StatusModel struct {
	provider StatusProvider
	interval time.Duration

	table   table.Model
	spinner spinner.Model

	status  *pb.StatusResponse
	err     error
	updated time.Time

	windowWidth  int
	windowHeight int
}

// NewStatusModel creates a status view refreshed every interval
func NewStatusModel(provider StatusProvider, interval time.Duration) *StatusModel {
	if interval <= 0 {
		interval = DefaultStatusRefresh
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	t := table.New(
		table.WithColumns(displayColumns),
		table.WithHeight(maxDisplayRows),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(ColorSubtle).
		BorderBottom(true).
		Bold(true)
	styles.Selected = styles.Selected.
		Foreground(ColorText).
		Bold(false)
	t.SetStyles(styles)

	return &StatusModel{
		provider: provider,
		interval: interval,
		table:    t,
		spinner:  s,
	}
}

// Status returns the last status received, or nil
func (m *StatusModel) Status() *pb.StatusResponse { return m.status }

// Err returns the last provider error
func (m *StatusModel) Err() error { return m.err }

// Init starts polling
func (m *StatusModel) Init() tea.Cmd {
	return tea.Batch(m.fetch, m.spinner.Tick)
}

func (m *StatusModel) fetch() tea.Msg {
	status, err := m.provider()
	return statusMsg{status: status, err: err}
}

func (m *StatusModel) schedule() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return refreshMsg(t)
	})
}

// Update handles messages
func (m *StatusModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.windowWidth = msg.Width
		m.windowHeight = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}

	case statusMsg:
		m.err = msg.err
		if msg.err == nil {
			m.status = msg.status
			m.updated = time.Now()
			m.table.SetRows(DisplayRows(msg.status))
		}
		return m, m.schedule()

	case refreshMsg:
		return m, m.fetch

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// View renders the UI
func (m *StatusModel) View() string {
	var b strings.Builder

	title := TitleStyle.Render("SEGBRIDGE")
	if m.status != nil && m.status.Name != "" {
		title = TitleStyle.Render("SEGBRIDGE - " + m.status.Name)
	}
	b.WriteString(title)
	b.WriteString("\n\n")

	switch {
	case m.status == nil && m.err == nil:
		b.WriteString(m.spinner.View() + " Waiting for status...")
	case m.status == nil:
		b.WriteString(ErrorStyle.Render(IconError + " " + m.err.Error()))
	default:
		b.WriteString(renderSummary(m.status))
		b.WriteString("\n\n")
		b.WriteString(BoxStyle.Render(m.table.View()))
		if m.err != nil {
			b.WriteString("\n")
			b.WriteString(WarningStyle.Render(IconWarning + " " + m.err.Error()))
		}
	}

	b.WriteString("\n\n")
	footer := FormatControl("q", "Quit")
	if !m.updated.IsZero() {
		footer += SubtleStyle.Render(" │ updated " + m.updated.Format("15:04:05"))
	}
	b.WriteString(footer)
	b.WriteString("\n")
	return b.String()
}
