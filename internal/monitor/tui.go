package monitor

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ppiankov/vulnwatch/internal/decision"
	"github.com/ppiankov/vulnwatch/internal/findings"
	"github.com/ppiankov/vulnwatch/internal/scan"
)

var (
	critStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))  // red
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")) // yellow
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))  // dim gray

	headerStyle    = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	separatorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// OutcomeMsg carries one completed tool outcome into the TUI.
type OutcomeMsg scan.ToolOutcome

// DoneMsg signals scan completion with the final report.
type DoneMsg struct{ Report *scan.Report }

// Model is the BubbleTea model for live scan progress.
type Model struct {
	target    string
	startedAt time.Time
	outcomes  []scan.ToolOutcome
	report    *scan.Report
	table     table.Model
	width     int
	height    int
	quitting  bool
	done      bool
}

// NewModel creates a live-progress model for a scan against target.
func NewModel(target string) *Model {
	cols := []table.Column{
		{Title: "TOOL", Width: 14},
		{Title: "STAGE", Width: 6},
		{Title: "VERDICT", Width: 8},
		{Title: "OUTCOME", Width: 22},
		{Title: "TIME", Width: 8},
		{Title: "FINDINGS", Width: 9},
	}

	s := table.DefaultStyles()
	s.Header = s.Header.Bold(true).BorderBottom(true).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240"))
	s.Selected = s.Selected.Bold(true).
		Foreground(lipgloss.Color("15")).
		Background(lipgloss.Color("57"))

	t := table.New(
		table.WithColumns(cols),
		table.WithFocused(true),
		table.WithHeight(12),
		table.WithStyles(s),
	)

	return &Model{
		target:    target,
		startedAt: time.Now(),
		table:     t,
		width:     80,
		height:    24,
	}
}

// Init satisfies tea.Model.
func (m *Model) Init() tea.Cmd {
	return tickCmd()
}

type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Update handles key events and scan progress messages.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "g":
			m.table.GotoTop()
			return m, nil
		case "G":
			m.table.GotoBottom()
			return m, nil
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetHeight(m.tableHeight())
		m.table.SetWidth(m.width)
	case tickMsg:
		if m.done {
			return m, nil
		}
		return m, tickCmd()
	case OutcomeMsg:
		m.outcomes = append(m.outcomes, scan.ToolOutcome(msg))
		m.rebuildRows()
		return m, nil
	case DoneMsg:
		m.done = true
		m.report = msg.Report
		return m, nil
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// View renders the full TUI.
func (m *Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.headerView())
	b.WriteByte('\n')
	b.WriteString(m.table.View())
	b.WriteByte('\n')
	b.WriteString(separatorStyle.Render(strings.Repeat("─", m.width)))
	b.WriteByte('\n')
	b.WriteString(m.footerView())
	return b.String()
}

func (m *Model) headerView() string {
	elapsed := time.Since(m.startedAt).Round(time.Second)
	state := "scanning"
	if m.done {
		state = "done"
	}
	title := headerStyle.Render(fmt.Sprintf("vulnwatch · %s · %s · %s", m.target, state, elapsed))

	var crit, high, total int
	if m.report != nil {
		for i := range m.report.Findings.Items {
			total++
			switch m.report.Findings.Items[i].Severity {
			case findings.SeverityCritical:
				crit++
			case findings.SeverityHigh:
				high++
			}
		}
	} else {
		for i := range m.outcomes {
			total += m.outcomes[i].FindingsCount
		}
	}

	counts := headerStyle.Render(fmt.Sprintf(
		"%s  %s  Findings: %d  Tools: %d",
		critStyle.Render(fmt.Sprintf("Critical: %d", crit)),
		warnStyle.Render(fmt.Sprintf("High: %d", high)),
		total,
		len(m.outcomes),
	))
	return title + "\n" + counts
}

func (m *Model) footerView() string {
	if m.done {
		return dimStyle.Render(" scan complete · q quit · ↑↓/jk navigate")
	}
	return dimStyle.Render(" q quit · ↑↓/jk navigate · g/G top/bottom")
}

func (m *Model) tableHeight() int {
	// Reserve space for header, table chrome, separator, and footer.
	reserved := 8
	h := m.height - reserved
	if h < 3 {
		h = 3
	}
	return h
}

func (m *Model) rebuildRows() {
	sorted := make([]scan.ToolOutcome, len(m.outcomes))
	copy(sorted, m.outcomes)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Stage != sorted[j].Stage {
			return sorted[i].Stage < sorted[j].Stage
		}
		return sorted[i].Tool < sorted[j].Tool
	})

	rows := make([]table.Row, len(sorted))
	for i := range sorted {
		rows[i] = outcomeToRow(&sorted[i])
		// Only the live table is width-constrained; PlainText prints
		// reasons in full.
		rows[i][3] = truncate(rows[i][3], 22)
	}
	m.table.SetRows(rows)
}

// outcomeToRow converts an outcome to a table row with plain text (no
// ANSI). Embedding ANSI in cells makes the table miscalculate column
// widths and bleed color into adjacent cells.
func outcomeToRow(o *scan.ToolOutcome) table.Row {
	status := string(o.Class)
	switch o.Verdict {
	case decision.Block:
		status = "blocked: " + o.Reason
	case decision.Skip:
		status = "skipped: " + o.Reason
	}

	dur := ""
	if o.Verdict == decision.Allow {
		dur = (time.Duration(o.DurationMS) * time.Millisecond).Round(100 * time.Millisecond).String()
	}

	count := ""
	if o.Verdict == decision.Allow {
		count = fmt.Sprintf("%d", o.FindingsCount)
	}

	return table.Row{
		o.Tool,
		fmt.Sprintf("%d", o.Stage),
		string(o.Verdict),
		status,
		dur,
		count,
	}
}

// PlainText returns a non-interactive text summary for piped output.
func PlainText(rep *scan.Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%-14s %-6s %-8s %-26s %-8s %s\n", "TOOL", "STAGE", "VERDICT", "OUTCOME", "TIME", "FINDINGS")
	fmt.Fprintf(&b, "%-14s %-6s %-8s %-26s %-8s %s\n", "----", "-----", "-------", "-------", "----", "--------")
	for i := range rep.Execution {
		row := outcomeToRow(&rep.Execution[i])
		fmt.Fprintf(&b, "%-14s %-6s %-8s %-26s %-8s %s\n", row[0], row[1], row[2], row[3], row[4], row[5])
	}

	if len(rep.Findings.Items) == 0 {
		b.WriteString("\nNo findings.\n")
		return b.String()
	}

	fmt.Fprintf(&b, "\n%d finding(s):\n", len(rep.Findings.Items))
	for i := range rep.Findings.Items {
		f := &rep.Findings.Items[i]
		fmt.Fprintf(&b, "  [%s] %-8s %-20s %s (confidence %d/%s, %s)\n",
			f.ID, f.Severity, f.Type, f.Endpoint,
			f.Confidence, findings.ConfidenceLabel(f.Confidence),
			strings.Join(f.CorroboratingTools, "+"))
	}
	return b.String()
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
