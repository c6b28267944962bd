package scan

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/ppiankov/vulnwatch/internal/cache"
	"github.com/ppiankov/vulnwatch/internal/decision"
	"github.com/ppiankov/vulnwatch/internal/findings"
	"github.com/ppiankov/vulnwatch/internal/ledger"
	"github.com/ppiankov/vulnwatch/internal/runner"
	"github.com/ppiankov/vulnwatch/internal/target"
)

// PathStep is one planned tool with its stage and static metadata.
type PathStep struct {
	Tool            string   `json:"tool"`
	Category        string   `json:"category"`
	Stage           int      `json:"stage"`
	CommandTemplate string   `json:"command_template"`
	Meta            StepMeta `json:"meta"`
}

// StepMeta carries the ledger metadata a reader needs to audit the
// plan without cross-referencing the catalog.
type StepMeta struct {
	TimeoutS uint32             `json:"timeout_s"`
	Priority uint8              `json:"priority"`
	Requires []cache.Capability `json:"requires,omitempty"`
	Optional []cache.Capability `json:"optional,omitempty"`
	Produces []cache.Capability `json:"produces,omitempty"`
}

// ToolReason pairs a tool with the reason it did not execute.
type ToolReason struct {
	Tool   string `json:"tool"`
	Reason string `json:"reason"`
}

// Gap names a capability the scan never reached and the planned tool
// that would have produced it.
type Gap struct {
	Capability      cache.Capability `json:"capability"`
	RecommendedTool string           `json:"recommended_tool"`
}

// Coverage summarizes how the plan fared.
type Coverage struct {
	Planned       int          `json:"tools_total"`
	Executed      int          `json:"tools_executed"`
	Succeeded     int          `json:"tools_succeeded"`
	Failed        int          `json:"tools_failed"`
	TimedOut      int          `json:"tools_timed_out"`
	ParseFailures int          `json:"parse_failures"`
	Blocked       []ToolReason `json:"tools_blocked"`
	Skipped       []ToolReason `json:"tools_skipped"`
	ExecutionRate float64      `json:"execution_rate"`
	Gaps          []Gap        `json:"gaps"`
}

// FindingsSection is the findings block of the report: the item list
// plus severity and OWASP tallies.
type FindingsSection struct {
	Count      int                       `json:"count"`
	BySeverity map[findings.Severity]int `json:"by_severity"`
	ByOWASP    map[findings.Category]int `json:"by_owasp"`
	Items      []findings.Finding        `json:"items"`
}

// Intelligence summarizes signal quality across the finding set.
type Intelligence struct {
	Corroborated   int                `json:"corroborated_findings"`
	HighConfidence int                `json:"high_confidence"`
	CrawlerGate    bool               `json:"crawler_gate_opened"`
	Capabilities   []cache.Capability `json:"capabilities_reached"`
}

// Report is the machine-readable result of one scan.
type Report struct {
	ScanID     string                     `json:"scan_id"`
	StartedAt  time.Time                  `json:"started_at"`
	FinishedAt time.Time                  `json:"finished_at"`
	DurationMS int64                      `json:"duration_ms"`
	Profile    *target.Profile            `json:"profile"`
	Ledger     map[string]ledger.Decision `json:"decision_ledger"`
	Plan       []PathStep                 `json:"plan"`
	Execution  []ToolOutcome              `json:"execution"`
	Discovery  cache.Snapshot             `json:"discovery"`
	Findings   FindingsSection            `json:"findings"`
	Coverage   Coverage                   `json:"coverage"`
	Intel      Intelligence               `json:"intelligence"`
}

// WorstSeverity returns the highest severity across findings, or empty
// when there are none.
func (r *Report) WorstSeverity() findings.Severity {
	worst := findings.Severity("")
	for _, f := range r.Findings.Items {
		if worst == "" || f.Severity.Rank() > worst.Rank() {
			worst = f.Severity
		}
	}
	return worst
}

func (e *Engine) buildReport() *Report {
	finished := time.Now().UTC()
	snap := e.cache.Snapshot()
	items := e.Plan()
	outcomes := e.Outcomes()
	found := e.reg.List()

	path := make([]PathStep, 0, len(items))
	for _, it := range items {
		path = append(path, PathStep{
			Tool:            it.Name,
			Category:        string(it.Category),
			Stage:           it.Stage,
			CommandTemplate: it.Command,
			Meta: StepMeta{
				TimeoutS: uint32(it.Timeout / time.Second),
				Priority: it.Priority,
				Requires: it.Requires,
				Optional: it.Optional,
				Produces: it.Produces,
			},
		})
	}

	cov := Coverage{
		Planned: len(items),
		Blocked: []ToolReason{},
		Skipped: []ToolReason{},
		Gaps:    []Gap{},
	}
	for _, o := range outcomes {
		switch o.Verdict {
		case decision.Block:
			cov.Blocked = append(cov.Blocked, ToolReason{Tool: o.Tool, Reason: o.Reason})
			continue
		case decision.Skip:
			cov.Skipped = append(cov.Skipped, ToolReason{Tool: o.Tool, Reason: o.Reason})
			continue
		}
		cov.Executed++
		switch o.Class {
		case runner.SuccessWithFindings, runner.SuccessNoFindings, runner.PartialSuccess:
			cov.Succeeded++
		case runner.Timeout:
			cov.TimedOut++
		case runner.ExecutionError:
			cov.Failed++
		}
		if o.ParseFailed {
			cov.ParseFailures++
		}
	}
	if cov.Planned > 0 {
		cov.ExecutionRate = float64(cov.Executed) / float64(cov.Planned)
	}

	// Capabilities the plan promised but the scan never produced.
	gapSeen := make(map[cache.Capability]bool)
	for _, it := range items {
		for _, c := range it.Produces {
			if snap.Capabilities[c] || gapSeen[c] {
				continue
			}
			gapSeen[c] = true
			cov.Gaps = append(cov.Gaps, Gap{Capability: c, RecommendedTool: it.Name})
		}
	}

	fs := FindingsSection{
		Count:      len(found),
		BySeverity: make(map[findings.Severity]int),
		ByOWASP:    make(map[findings.Category]int),
		Items:      found,
	}
	for _, f := range found {
		fs.BySeverity[f.Severity]++
		fs.ByOWASP[f.OWASP]++
	}

	intel := Intelligence{
		Corroborated:   e.reg.Corroborated(),
		HighConfidence: e.reg.HighConfidence(),
		CrawlerGate:    decision.GateOpen(snap),
	}
	for c := range snap.Capabilities {
		intel.Capabilities = append(intel.Capabilities, c)
	}
	sort.Slice(intel.Capabilities, func(i, j int) bool {
		return intel.Capabilities[i] < intel.Capabilities[j]
	})

	return &Report{
		ScanID:     fmt.Sprintf("%s-%d", e.profile.Host, e.startedAt.Unix()),
		StartedAt:  e.startedAt,
		FinishedAt: finished,
		DurationMS: finished.Sub(e.startedAt).Milliseconds(),
		Profile:    e.profile,
		Ledger:     e.led.Entries(),
		Plan:       path,
		Execution:  outcomes,
		Discovery:  snap,
		Findings:   fs,
		Coverage:   cov,
		Intel:      intel,
	}
}

// WriteJSON writes the report as execution_report.json in dir.
func (r *Report) WriteJSON(dir string) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling report: %w", err)
	}
	path := filepath.Join(dir, "execution_report.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing report: %w", err)
	}
	return path, nil
}
