package history

import (
	"testing"
	"time"

	"github.com/ppiankov/vulnwatch/internal/decision"
	"github.com/ppiankov/vulnwatch/internal/findings"
	"github.com/ppiankov/vulnwatch/internal/plan"
	"github.com/ppiankov/vulnwatch/internal/runner"
	"github.com/ppiankov/vulnwatch/internal/scan"
	"github.com/ppiankov/vulnwatch/internal/target"
)

func openMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("opening in-memory db: %v", err)
	}
	t.Cleanup(func() { s.Close() }) //nolint:errcheck // test cleanup
	return s
}

func sampleReport(t *testing.T, startedAt time.Time) *scan.Report {
	t.Helper()
	p, err := target.FromInput("https://example.com", "")
	if err != nil {
		t.Fatal(err)
	}
	return &scan.Report{
		ScanID:     "example.com-1700000000",
		StartedAt:  startedAt,
		FinishedAt: startedAt.Add(12 * time.Minute),
		Profile:    p,
		Execution: []scan.ToolOutcome{
			{Tool: "whatweb", Category: plan.CategoryFingerprint, Stage: 2, Verdict: decision.Allow, Reason: "ready", Class: runner.SuccessNoFindings, DurationMS: 900},
			{Tool: "sqlmap", Category: plan.CategoryPayload, Stage: 5, Verdict: decision.Allow, Reason: "ready", Class: runner.SuccessWithFindings, FindingsCount: 1, DurationMS: 64000},
			{Tool: "wpscan", Category: plan.CategoryWordPress, Stage: 4, Verdict: decision.Block, Reason: "missing capability: wordpress_detected"},
		},
		Findings: scan.FindingsSection{
			Count: 2,
			Items: []findings.Finding{
				{ID: "VW-0001", Type: findings.VulnSQLInjection, Endpoint: "https://example.com/item", Severity: findings.SeverityCritical, Confidence: 88, Tool: "sqlmap"},
				{ID: "VW-0002", Type: findings.VulnWeakTLS, Endpoint: "https://example.com", Severity: findings.SeverityMedium, Confidence: 70, Tool: "testssl"},
			},
		},
		Coverage: scan.Coverage{
			Planned:  3,
			Executed: 2,
			Blocked:  []scan.ToolReason{{Tool: "wpscan", Reason: "missing capability: wordpress_detected"}},
		},
	}
}

func TestOpen_InMemory(t *testing.T) {
	s := openMemory(t)
	if s.db == nil {
		t.Fatal("expected non-nil db")
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	s := openMemory(t)
	if err := migrate(s.db); err != nil {
		t.Fatalf("second migrate failed: %v", err)
	}
}

func TestSaveAndList(t *testing.T) {
	s := openMemory(t)
	now := time.Now().UTC().Truncate(time.Second)

	if err := s.Save(sampleReport(t, now)); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	summaries, err := s.List(10)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("expected 1 scan, got %d", len(summaries))
	}

	sm := summaries[0]
	if sm.Target != "example.com" {
		t.Errorf("target = %q", sm.Target)
	}
	if sm.FindingsCount != 2 {
		t.Errorf("findingsCount = %d, want 2", sm.FindingsCount)
	}
	if sm.CritCount != 1 {
		t.Errorf("critCount = %d, want 1", sm.CritCount)
	}
	if sm.ToolsExecuted != 2 || sm.ToolsBlocked != 1 {
		t.Errorf("tools = %d executed / %d blocked", sm.ToolsExecuted, sm.ToolsBlocked)
	}
}

func TestList_OrderingAndLimit(t *testing.T) {
	s := openMemory(t)
	now := time.Now().UTC().Truncate(time.Second)

	for i := range 5 {
		if err := s.Save(sampleReport(t, now.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("save %d failed: %v", i, err)
		}
	}

	summaries, err := s.List(2)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("expected 2 scans (limited), got %d", len(summaries))
	}
	if !summaries[0].StartedAt.After(summaries[1].StartedAt) {
		t.Error("expected newest first ordering")
	}
}

func TestToolHistory(t *testing.T) {
	s := openMemory(t)
	now := time.Now().UTC().Truncate(time.Second)

	for i := range 3 {
		if err := s.Save(sampleReport(t, now.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("save %d failed: %v", i, err)
		}
	}

	outcomes, err := s.ToolHistory("sqlmap", 10)
	if err != nil {
		t.Fatalf("tool history failed: %v", err)
	}
	if len(outcomes) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(outcomes))
	}
	o := outcomes[0]
	if o.Verdict != decision.Allow || o.Class != runner.SuccessWithFindings {
		t.Errorf("outcome = %+v", o)
	}
	if o.Category != plan.CategoryPayload {
		t.Errorf("category = %s", o.Category)
	}
}

func TestToolHistory_NoData(t *testing.T) {
	s := openMemory(t)
	outcomes, err := s.ToolHistory("nonexistent", 10)
	if err != nil {
		t.Fatalf("tool history failed: %v", err)
	}
	if len(outcomes) != 0 {
		t.Errorf("expected 0 outcomes, got %d", len(outcomes))
	}
}

func TestList_EmptyDB(t *testing.T) {
	s := openMemory(t)
	summaries, err := s.List(10)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(summaries) != 0 {
		t.Errorf("expected 0 scans, got %d", len(summaries))
	}
}
