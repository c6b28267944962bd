package scan

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ppiankov/vulnwatch/internal/config"
	"github.com/ppiankov/vulnwatch/internal/decision"
	"github.com/ppiankov/vulnwatch/internal/findings"
	"github.com/ppiankov/vulnwatch/internal/runner"
	"github.com/ppiankov/vulnwatch/internal/target"
)

// stubExec fakes tool execution: canned stdout per tool, everything
// else exits 0 with empty output.
type stubExec struct {
	mu      sync.Mutex
	stdout  map[string]string
	exit    map[string]int
	timeout map[string]bool
	ran     []string
}

func (s *stubExec) Run(_ context.Context, tool, command string, _ time.Duration) runner.Result {
	s.mu.Lock()
	s.ran = append(s.ran, tool)
	s.mu.Unlock()

	now := time.Now().UTC()
	res := runner.Result{Tool: tool, StartedAt: now, FinishedAt: now.Add(time.Millisecond)}
	if s.timeout[tool] {
		res.TimedOut = true
		res.ExitCode = -1
		return res
	}
	res.Stdout = []byte(s.stdout[tool])
	res.ExitCode = s.exit[tool]
	return res
}

func (s *stubExec) ranTool(tool string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.ran {
		if t == tool {
			return true
		}
	}
	return false
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	c := config.Defaults()
	c.OutputDir = t.TempDir()
	c.Concurrency = 2
	return c
}

func mustProfile(t *testing.T, raw string) *target.Profile {
	t.Helper()
	p, err := target.FromInput(raw, "")
	if err != nil {
		t.Fatalf("FromInput(%q): %v", raw, err)
	}
	return p
}

func outcomeFor(t *testing.T, rep *Report, tool string) ToolOutcome {
	t.Helper()
	for _, o := range rep.Execution {
		if o.Tool == tool {
			return o
		}
	}
	t.Fatalf("no outcome recorded for %s", tool)
	return ToolOutcome{}
}

func TestRun_PayloadBlockedWithoutCrawlerEvidence(t *testing.T) {
	// The crawler yields nothing: the gate must keep every payload tool
	// out, and the block must carry the gate reason, not a missing
	// capability.
	exec := &stubExec{stdout: map[string]string{}, exit: map[string]int{}, timeout: map[string]bool{"katana": true}}
	eng := New(mustProfile(t, "https://example.com"), testConfig(t), exec, nil, nil)

	rep, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	for _, tool := range []string{"dalfox", "xsstrike", "sqlmap", "commix"} {
		o := outcomeFor(t, rep, tool)
		if o.Verdict != decision.Block {
			t.Errorf("%s verdict = %s, want BLOCK", tool, o.Verdict)
		}
		if o.Reason != decision.ReasonNoCrawlerEvidence {
			t.Errorf("%s reason = %q, want %q", tool, o.Reason, decision.ReasonNoCrawlerEvidence)
		}
		if exec.ranTool(tool) {
			t.Errorf("%s must not execute when the gate is closed", tool)
		}
	}
}

func TestRun_PayloadRunsAfterCrawl(t *testing.T) {
	exec := &stubExec{
		stdout: map[string]string{
			"katana": `{"request":{"method":"GET","endpoint":"https://example.com/search?q=x"},"response":{"status_code":200}}`,
			"dalfox": `{"type":"V","severity":"High","method":"GET","param":"q","payload":"<svg onload=alert(1)>","evidence":"reflected","data":"https://example.com/search?q=x"}`,
		},
		exit: map[string]int{},
	}
	eng := New(mustProfile(t, "https://example.com"), testConfig(t), exec, nil, nil)

	rep, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	o := outcomeFor(t, rep, "dalfox")
	if o.Verdict != decision.Allow {
		t.Fatalf("dalfox verdict = %s (%s), want ALLOW", o.Verdict, o.Reason)
	}
	if o.Class != runner.SuccessWithFindings {
		t.Errorf("dalfox outcome = %s, want SUCCESS_WITH_FINDINGS", o.Class)
	}
	if rep.WorstSeverity() != findings.SeverityHigh {
		t.Errorf("worst severity = %s, want HIGH", rep.WorstSeverity())
	}
	if !rep.Intel.CrawlerGate {
		t.Error("report must record the gate as opened")
	}
}

func TestRun_WpscanGatedByCacheNotLedger(t *testing.T) {
	// Without WordPress evidence wpscan is blocked on the capability,
	// not denied by policy.
	exec := &stubExec{stdout: map[string]string{}, exit: map[string]int{}}
	eng := New(mustProfile(t, "https://example.com"), testConfig(t), exec, nil, nil)

	rep, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	o := outcomeFor(t, rep, "wpscan")
	if o.Verdict != decision.Block || !strings.Contains(o.Reason, "wordpress_detected") {
		t.Errorf("wpscan = %s (%s), want capability block", o.Verdict, o.Reason)
	}
}

func TestRun_WpscanRunsOnWordPressDetection(t *testing.T) {
	exec := &stubExec{
		stdout: map[string]string{
			"whatweb": "http://example.com [200 OK] Apache[2.4.41], WordPress[6.4.2]",
		},
		exit: map[string]int{},
	}
	eng := New(mustProfile(t, "https://example.com"), testConfig(t), exec, nil, nil)

	rep, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	o := outcomeFor(t, rep, "wpscan")
	if o.Verdict != decision.Allow {
		t.Errorf("wpscan verdict = %s (%s), want ALLOW after fingerprint", o.Verdict, o.Reason)
	}
}

func TestRun_IPTargetHasNoDNSOrEnum(t *testing.T) {
	exec := &stubExec{stdout: map[string]string{}, exit: map[string]int{}}
	eng := New(mustProfile(t, "203.0.113.7"), testConfig(t), exec, nil, nil)

	rep, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, o := range rep.Execution {
		if o.Tool == "dig-records" || o.Tool == "dig-verify" || o.Tool == "subfinder" {
			t.Errorf("%s must not appear in the IP path", o.Tool)
		}
	}
	if exec.ranTool("subfinder") {
		t.Error("subfinder executed against an IP target")
	}
}

func TestRun_BudgetExhaustionSkips(t *testing.T) {
	cfg := testConfig(t)
	cfg.RuntimeBudget = time.Minute // every tool's worst case exceeds this
	exec := &stubExec{stdout: map[string]string{}, exit: map[string]int{}}
	eng := New(mustProfile(t, "https://example.com"), cfg, exec, nil, nil)

	rep, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// dig fits in a minute; the long scanners must be skipped.
	o := outcomeFor(t, rep, "sqlmap")
	if o.Verdict != decision.Skip && o.Verdict != decision.Block {
		t.Errorf("sqlmap verdict = %s, want SKIP or BLOCK under a 1m budget", o.Verdict)
	}
	if len(rep.Coverage.Skipped) == 0 {
		t.Error("coverage must count budget skips")
	}
}

func TestRun_RawOutputWritten(t *testing.T) {
	cfg := testConfig(t)
	exec := &stubExec{
		stdout: map[string]string{"whatweb": "http://example.com [200 OK] nginx[1.24]"},
		exit:   map[string]int{},
	}
	eng := New(mustProfile(t, "https://example.com"), cfg, exec, nil, nil)
	if _, err := eng.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(cfg.OutputDir, "whatweb.txt"))
	if err != nil {
		t.Fatalf("raw output missing: %v", err)
	}
	if !strings.Contains(string(data), "nginx") {
		t.Errorf("raw output = %q", data)
	}
}

func TestRun_ReportWritesAndRoundTrips(t *testing.T) {
	cfg := testConfig(t)
	exec := &stubExec{stdout: map[string]string{}, exit: map[string]int{}}
	eng := New(mustProfile(t, "https://example.com"), cfg, exec, nil, nil)

	rep, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	path, err := rep.WriteJSON(cfg.OutputDir)
	if err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"scan_id", "\"profile\"", "decision_ledger", "command_template", "execution", "discovery", "\"findings\"", "tools_blocked", "execution_rate", "coverage", "intelligence"} {
		if !strings.Contains(string(data), key) {
			t.Errorf("report missing %q section", key)
		}
	}
}

func TestRun_CoverageAccounting(t *testing.T) {
	exec := &stubExec{stdout: map[string]string{}, exit: map[string]int{}, timeout: map[string]bool{"nmap-syn": true}}
	eng := New(mustProfile(t, "https://example.com"), testConfig(t), exec, nil, nil)

	rep, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	cov := rep.Coverage
	if cov.Planned != len(rep.Plan) {
		t.Errorf("planned = %d, path = %d", cov.Planned, len(rep.Plan))
	}
	if cov.Executed+len(cov.Blocked)+len(cov.Skipped) != cov.Planned {
		t.Errorf("coverage does not partition the plan: %+v", cov)
	}
	if cov.TimedOut != 1 {
		t.Errorf("timedOut = %d, want 1 (nmap-syn)", cov.TimedOut)
	}
	o := outcomeFor(t, rep, "nmap-syn")
	if o.Class != runner.Timeout {
		t.Errorf("nmap-syn class = %s, want TIMEOUT", o.Class)
	}
}

func TestRun_LedgerFrozenBeforeExecution(t *testing.T) {
	exec := &stubExec{stdout: map[string]string{}, exit: map[string]int{}}
	eng := New(mustProfile(t, "https://example.com"), testConfig(t), exec, nil, nil)
	if !eng.Ledger().Finalized() {
		t.Fatal("ledger must be frozen at construction")
	}
	if err := eng.Ledger().Set("nmap-syn", eng.Ledger().Lookup("nmap-syn")); err == nil {
		t.Error("mutating a frozen ledger must fail")
	}
}

func TestRun_OnOutcomeObservesEveryTool(t *testing.T) {
	exec := &stubExec{stdout: map[string]string{}, exit: map[string]int{}}
	eng := New(mustProfile(t, "https://example.com"), testConfig(t), exec, nil, nil)

	var mu sync.Mutex
	seen := 0
	eng.OnOutcome = func(ToolOutcome) {
		mu.Lock()
		seen++
		mu.Unlock()
	}
	rep, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if seen != len(rep.Execution) {
		t.Errorf("observer saw %d outcomes, log has %d", seen, len(rep.Execution))
	}
}

func TestExpand_Placeholders(t *testing.T) {
	cfg := testConfig(t)
	cfg.Wordlist = "/tmp/words.txt"
	exec := &stubExec{stdout: map[string]string{}, exit: map[string]int{}}
	eng := New(mustProfile(t, "https://sub.example.com:8443"), cfg, exec, nil, nil)

	rep, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	o := outcomeFor(t, rep, "gobuster")
	if o.Verdict == decision.Allow {
		if !strings.Contains(o.Command, "https://sub.example.com:8443") {
			t.Errorf("command = %q, want expanded url", o.Command)
		}
		if !strings.Contains(o.Command, "/tmp/words.txt") {
			t.Errorf("command = %q, want expanded wordlist", o.Command)
		}
	}
}

func TestExpand_ToolPathOverride(t *testing.T) {
	cfg := testConfig(t)
	cfg.ToolPaths = map[string]string{"whatweb": "/opt/whatweb/bin/whatweb"}
	exec := &stubExec{stdout: map[string]string{}, exit: map[string]int{}}
	eng := New(mustProfile(t, "https://example.com"), cfg, exec, nil, nil)

	rep, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	o := outcomeFor(t, rep, "whatweb")
	if !strings.HasPrefix(o.Command, "/opt/whatweb/bin/whatweb ") {
		t.Errorf("command = %q, want overridden binary", o.Command)
	}
}
