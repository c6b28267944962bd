// Package ledger pre-computes the allow/deny policy per tool from the
// target profile alone. The ledger is policy ("may this tool ever
// run?"); run-time readiness lives in the decision layer.
package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/ppiankov/vulnwatch/internal/cache"
	"github.com/ppiankov/vulnwatch/internal/plan"
	"github.com/ppiankov/vulnwatch/internal/target"
)

// ErrFinalized is an architecture violation: the ledger must never be
// mutated once planning has begun.
var ErrFinalized = errors.New("ledger mutated after finalize")

// Outcome is the policy verdict for a tool.
type Outcome string

const (
	Allow Outcome = "ALLOW"
	Deny  Outcome = "DENY"
)

// Decision is one finalized policy entry with its metadata.
type Decision struct {
	Outcome  Outcome            `json:"outcome"`
	Reason   string             `json:"reason"`
	Timeout  time.Duration      `json:"worst_case_timeout"`
	Priority uint8              `json:"priority"`
	Requires []cache.Capability `json:"requires,omitempty"`
	Optional []cache.Capability `json:"optional,omitempty"`
	Produces []cache.Capability `json:"produces,omitempty"`
}

// Ledger maps tool name to its decision. Absent tools are implicitly
// denied.
type Ledger struct {
	entries   map[string]Decision
	finalized bool
}

// Build derives the ledger for a profile from the tool catalog. The
// same profile always yields the same ledger.
func Build(p *target.Profile) *Ledger {
	l := &Ledger{entries: make(map[string]Decision)}

	for _, spec := range plan.Catalog() {
		d := Decision{
			Outcome:  Allow,
			Reason:   "profile permits",
			Timeout:  spec.Timeout,
			Priority: spec.Priority,
			Requires: append([]cache.Capability(nil), spec.Requires...),
			Optional: append([]cache.Capability(nil), spec.Optional...),
			Produces: append([]cache.Capability(nil), spec.Produces...),
		}

		switch {
		case spec.Category == plan.CategoryDNS && p.Type == target.TypeIPAddress:
			d.Outcome = Deny
			d.Reason = "IP already resolved"
		case spec.Category == plan.CategorySubdomainEnum && p.Type != target.TypeRootDomain:
			d.Outcome = Deny
			d.Reason = "enumeration applies to root domain only"
		case requiresWeb(spec.Category) && !p.IsWebTarget:
			d.Outcome = Deny
			d.Reason = "target is not a web target"
		}

		// A bare IP only warrants a TLS probe once the port scan shows
		// a web port actually open.
		if spec.Category == plan.CategoryTLS && p.Type == target.TypeIPAddress {
			d.Requires = appendMissing(d.Requires, cache.CapPortsKnown)
		}

		l.entries[spec.Name] = d
	}
	return l
}

func requiresWeb(c plan.Category) bool {
	switch c {
	case plan.CategoryTLS, plan.CategoryFingerprint, plan.CategoryCrawler,
		plan.CategoryDirEnum, plan.CategoryTemplate, plan.CategoryWebScan,
		plan.CategoryWordPress, plan.CategoryPayload:
		return true
	default:
		return false
	}
}

func appendMissing(caps []cache.Capability, c cache.Capability) []cache.Capability {
	for _, have := range caps {
		if have == c {
			return caps
		}
	}
	return append(caps, c)
}

// Finalize freezes the ledger. Mutation afterwards returns ErrFinalized.
func (l *Ledger) Finalize() { l.finalized = true }

// Finalized reports whether the ledger is frozen.
func (l *Ledger) Finalized() bool { return l.finalized }

// Set replaces an entry; only legal before Finalize.
func (l *Ledger) Set(tool string, d Decision) error {
	if l.finalized {
		return fmt.Errorf("%w: set(%s)", ErrFinalized, tool)
	}
	l.entries[tool] = d
	return nil
}

// Lookup returns the decision for a tool. A tool absent from the
// ledger is implicitly denied.
func (l *Ledger) Lookup(tool string) Decision {
	if d, ok := l.entries[tool]; ok {
		return d
	}
	return Decision{Outcome: Deny, Reason: "tool not registered in ledger"}
}

// Tools returns the number of registered tools.
func (l *Ledger) Tools() int { return len(l.entries) }

// Entries returns a copy of the full policy table for reporting.
func (l *Ledger) Entries() map[string]Decision {
	out := make(map[string]Decision, len(l.entries))
	for k, v := range l.entries {
		out[k] = v
	}
	return out
}
