package monitor

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ppiankov/vulnwatch/internal/decision"
	"github.com/ppiankov/vulnwatch/internal/findings"
	"github.com/ppiankov/vulnwatch/internal/runner"
	"github.com/ppiankov/vulnwatch/internal/scan"
)

func reportWith(sevs ...findings.Severity) *scan.Report {
	rep := &scan.Report{}
	for i, s := range sevs {
		rep.Findings.Items = append(rep.Findings.Items, findings.Finding{
			ID: "VW-000" + string(rune('1'+i)), Severity: s, Type: findings.VulnXSS,
			Endpoint: "https://example.com/a", Confidence: 70,
			CorroboratingTools: []string{"dalfox"},
		})
	}
	rep.Findings.Count = len(rep.Findings.Items)
	return rep
}

func TestExitCode_Grading(t *testing.T) {
	cases := []struct {
		name string
		sevs []findings.Severity
		want int
	}{
		{"no findings", nil, ExitClean},
		{"info and low only", []findings.Severity{findings.SeverityInfo, findings.SeverityLow}, ExitClean},
		{"medium", []findings.Severity{findings.SeverityMedium}, ExitMedium},
		{"high beats medium", []findings.Severity{findings.SeverityMedium, findings.SeverityHigh}, ExitHigh},
		{"critical wins", []findings.Severity{findings.SeverityHigh, findings.SeverityCritical}, ExitCritical},
	}
	for _, tc := range cases {
		if got := ExitCode(reportWith(tc.sevs...), ""); got != tc.want {
			t.Errorf("%s: exit = %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestExitCode_ThresholdRaisesBar(t *testing.T) {
	rep := reportWith(findings.SeverityMedium, findings.SeverityHigh)
	if got := ExitCode(rep, findings.SeverityCritical); got != ExitClean {
		t.Errorf("exit = %d, want 0 when threshold is CRITICAL", got)
	}
	if got := ExitCode(rep, findings.SeverityHigh); got != ExitHigh {
		t.Errorf("exit = %d, want 2 when threshold is HIGH", got)
	}
}

func TestWriteJSON_Envelope(t *testing.T) {
	rep := reportWith(findings.SeverityHigh)
	var buf bytes.Buffer
	if err := WriteJSON(&buf, rep, ExitHigh); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	var out ScanOutput
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.ExitCode != ExitHigh {
		t.Errorf("exitCode = %d, want %d", out.ExitCode, ExitHigh)
	}
	if len(out.Report.Findings.Items) != 1 {
		t.Errorf("findings = %d, want 1", len(out.Report.Findings.Items))
	}
}

func TestPlainText_Summary(t *testing.T) {
	rep := reportWith(findings.SeverityCritical)
	rep.Execution = []scan.ToolOutcome{
		{Tool: "nmap-syn", Stage: 1, Verdict: decision.Allow, Class: runner.SuccessNoFindings, DurationMS: 4200},
		{Tool: "sqlmap", Stage: 5, Verdict: decision.Block, Reason: "no_crawler_evidence"},
	}

	text := PlainText(rep)
	if !strings.Contains(text, "nmap-syn") {
		t.Error("plain text must list executed tools")
	}
	if !strings.Contains(text, "blocked: no_crawler_evidence") {
		t.Errorf("plain text must show block reasons:\n%s", text)
	}
	if !strings.Contains(text, "CRITICAL") {
		t.Error("plain text must show finding severity")
	}
}

func TestPlainText_NoFindings(t *testing.T) {
	if !strings.Contains(PlainText(&scan.Report{}), "No findings.") {
		t.Error("empty report must say so")
	}
}

func TestModel_OutcomeMessagesAccumulate(t *testing.T) {
	m := NewModel("example.com")

	next, _ := m.Update(OutcomeMsg{Tool: "dig-records", Stage: 0, Verdict: decision.Allow, Class: runner.SuccessNoFindings})
	next, _ = next.Update(OutcomeMsg{Tool: "katana", Stage: 3, Verdict: decision.Allow, Class: runner.SuccessWithFindings, FindingsCount: 2})

	model := next.(*Model)
	if len(model.outcomes) != 2 {
		t.Fatalf("outcomes = %d, want 2", len(model.outcomes))
	}
	view := model.View()
	if !strings.Contains(view, "katana") {
		t.Error("view must render received outcomes")
	}
	if !strings.Contains(view, "Findings: 2") {
		t.Errorf("view must count findings:\n%s", view)
	}
}

func TestModel_TableTruncatesLongReasons(t *testing.T) {
	// The live table is width-constrained; the plain-text report is not
	// (TestPlainText_Summary pins the untruncated side).
	m := NewModel("example.com")
	next, _ := m.Update(OutcomeMsg{Tool: "sqlmap", Stage: 5, Verdict: decision.Block, Reason: "no_crawler_evidence"})
	model := next.(*Model)

	rows := model.table.Rows()
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	status := rows[0][3]
	if len(status) > 22 {
		t.Errorf("status cell = %q, must fit the 22-char column", status)
	}
	if !strings.HasSuffix(status, "...") {
		t.Errorf("status cell = %q, long reasons must be elided", status)
	}
}

func TestModel_DoneAndQuit(t *testing.T) {
	m := NewModel("example.com")
	next, _ := m.Update(DoneMsg{Report: reportWith(findings.SeverityHigh)})
	model := next.(*Model)
	if !model.done {
		t.Fatal("done flag not set")
	}
	if !strings.Contains(model.View(), "scan complete") {
		t.Error("done view must say scan complete")
	}

	next, cmd := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("q must produce a quit command")
	}
	if next.(*Model).View() != "" {
		t.Error("quitting view must be empty")
	}
}
