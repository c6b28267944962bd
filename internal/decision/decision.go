// Package decision computes the per-run ALLOW/BLOCK/SKIP verdict for a
// tool from the frozen ledger, a cache snapshot, and the remaining
// budget. ShouldRun is a pure function of its inputs.
package decision

import (
	"fmt"
	"time"

	"github.com/ppiankov/vulnwatch/internal/cache"
	"github.com/ppiankov/vulnwatch/internal/ledger"
	"github.com/ppiankov/vulnwatch/internal/plan"
)

// Verdict is the run-time decision for one tool.
type Verdict string

const (
	Allow Verdict = "ALLOW"
	Block Verdict = "BLOCK" // prerequisite missing
	Skip  Verdict = "SKIP"  // running would add no value
)

// Reasons that tests and the coverage report match on.
const (
	ReasonReady             = "ready"
	ReasonBudgetExhausted   = "budget_exhausted"
	ReasonRedundant         = "redundant"
	ReasonNoCrawlerEvidence = "no_crawler_evidence"
)

// NoBudgetLimit disables the budget check (used by property tests).
const NoBudgetLimit = time.Duration(1<<63 - 1)

// ShouldRun decides whether a tool runs now. Checks, in order: ledger
// policy, required capabilities, remaining budget, redundancy, and the
// crawler gate for payload tools.
func ShouldRun(spec plan.Spec, led *ledger.Ledger, snap cache.Snapshot, remaining time.Duration) (Verdict, string) {
	d := led.Lookup(spec.Name)
	if d.Outcome == ledger.Deny {
		return Block, d.Reason
	}

	for _, c := range d.Requires {
		if !snap.Has(c) {
			return Block, fmt.Sprintf("missing capability: %s", c)
		}
	}

	if d.Timeout > remaining {
		return Skip, ReasonBudgetExhausted
	}

	if len(d.Produces) > 0 && allSatisfied(d.Produces, snap) {
		return Skip, ReasonRedundant
	}

	if spec.IsPayload() && !GateOpen(snap) {
		return Block, ReasonNoCrawlerEvidence
	}

	return Allow, ReasonReady
}

// GateOpen is the mandatory crawler gate: payload tools need crawler
// completion plus at least one discovered endpoint. Read-only view
// over the snapshot; never mutated directly.
func GateOpen(snap cache.Snapshot) bool {
	return snap.Has(cache.CapCrawlerCompleted) && snap.Has(cache.CapEndpointsKnown)
}

func allSatisfied(caps []cache.Capability, snap cache.Snapshot) bool {
	for _, c := range caps {
		if !snap.Has(c) {
			return false
		}
	}
	return true
}
