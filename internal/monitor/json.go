package monitor

import (
	"encoding/json"
	"io"

	"github.com/ppiankov/vulnwatch/internal/scan"
)

// ScanOutput is the JSON envelope for `vulnwatch scan --output json`.
// Wraps the report with exit-code metadata without polluting the
// Report type written to execution_report.json.
type ScanOutput struct {
	Report   *scan.Report `json:"report"`
	ExitCode int          `json:"exitCode"`
}

// WriteJSON serializes a ScanOutput envelope to w.
func WriteJSON(w io.Writer, rep *scan.Report, exitCode int) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(ScanOutput{
		Report:   rep,
		ExitCode: exitCode,
	})
}
