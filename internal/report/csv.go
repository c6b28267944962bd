package report

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/ppiankov/vulnwatch/internal/findings"
)

var csvHeader = []string{
	"id", "severity", "type", "owasp", "endpoint", "parameter",
	"confidence", "tool", "corroboratingTools", "crawlerVerified", "evidence",
}

// WriteCSV writes findings as CSV rows to w.
func WriteCSV(w io.Writer, items []findings.Finding) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(csvHeader); err != nil {
		return err
	}

	for i := range items {
		f := &items[i]
		row := []string{
			f.ID,
			string(f.Severity),
			string(f.Type),
			string(f.OWASP),
			f.Endpoint,
			f.Parameter,
			strconv.Itoa(f.Confidence),
			f.Tool,
			strings.Join(f.CorroboratingTools, "+"),
			strconv.FormatBool(f.CrawlerVerified),
			f.Evidence,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
