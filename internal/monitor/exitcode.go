// Package monitor provides exit-code logic, JSON/plain output, and the
// live TUI for vulnwatch.
package monitor

import (
	"github.com/ppiankov/vulnwatch/internal/findings"
	"github.com/ppiankov/vulnwatch/internal/scan"
)

// Exit codes. 4 and 5 are produced by the CLI layer (engine failure
// and input rejection); this function only grades findings.
const (
	ExitClean       = 0
	ExitMedium      = 1
	ExitHigh        = 2
	ExitCritical    = 3
	ExitEngineError = 4
	ExitInputError  = 5
)

// ExitCode returns the process exit code for a completed scan based on
// the worst finding severity. threshold raises the bar: severities
// strictly below it never affect the exit code.
func ExitCode(rep *scan.Report, threshold findings.Severity) int {
	minRank := findings.SeverityMedium.Rank()
	if threshold != "" {
		minRank = threshold.Rank()
	}

	code := ExitClean
	for i := range rep.Findings.Items {
		r := rep.Findings.Items[i].Severity.Rank()
		if r < minRank {
			continue
		}
		switch rep.Findings.Items[i].Severity {
		case findings.SeverityCritical:
			return ExitCritical
		case findings.SeverityHigh:
			if code < ExitHigh {
				code = ExitHigh
			}
		case findings.SeverityMedium:
			if code < ExitMedium {
				code = ExitMedium
			}
		}
	}
	return code
}
