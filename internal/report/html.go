// Package report generates self-contained HTML and CSV renderings of a
// completed scan.
package report

import (
	"bytes"
	"embed"
	"html/template"
	"strings"
	"time"

	"github.com/ppiankov/vulnwatch/internal/findings"
	"github.com/ppiankov/vulnwatch/internal/scan"
)

//go:embed templates/report.html
var templateFS embed.FS

var reportTmpl = template.Must(template.ParseFS(templateFS, "templates/report.html"))

// Generate renders a scan report as a self-contained HTML page.
func Generate(rep *scan.Report) ([]byte, error) {
	var crit, high, med, low, info int
	rows := make([]findingRow, 0, len(rep.Findings.Items))
	for i := range rep.Findings.Items {
		f := &rep.Findings.Items[i]
		switch f.Severity {
		case findings.SeverityCritical:
			crit++
		case findings.SeverityHigh:
			high++
		case findings.SeverityMedium:
			med++
		case findings.SeverityLow:
			low++
		default:
			info++
		}
		rows = append(rows, buildFindingRow(f))
	}

	tools := make([]toolRow, 0, len(rep.Execution))
	for i := range rep.Execution {
		o := &rep.Execution[i]
		tr := toolRow{
			Tool:    o.Tool,
			Stage:   o.Stage,
			Verdict: string(o.Verdict),
			Outcome: string(o.Class),
			Reason:  o.Reason,
		}
		if o.DurationMS > 0 {
			tr.Duration = formatMillis(o.DurationMS)
		}
		tools = append(tools, tr)
	}

	data := reportData{
		ScanID:        rep.ScanID,
		Target:        rep.Profile.Host,
		TargetType:    string(rep.Profile.Type),
		ScanTime:      rep.StartedAt.UTC().Format("2006-01-02 15:04 UTC"),
		Duration:      formatMillis(rep.DurationMS),
		CriticalCount: crit,
		HighCount:     high,
		MediumCount:   med,
		LowCount:      low,
		InfoCount:     info,
		TotalCount:    len(rep.Findings.Items),
		Corroborated:  rep.Intel.Corroborated,
		Findings:      rows,
		Tools:         tools,
	}

	var buf bytes.Buffer
	if err := reportTmpl.Execute(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type reportData struct {
	ScanID        string
	Target        string
	TargetType    string
	ScanTime      string
	Duration      string
	Findings      []findingRow
	Tools         []toolRow
	CriticalCount int
	HighCount     int
	MediumCount   int
	LowCount      int
	InfoCount     int
	TotalCount    int
	Corroborated  int
}

type findingRow struct {
	ID         string
	Severity   string
	SevClass   string
	Type       string
	OWASP      string
	Endpoint   string
	Parameter  string
	Confidence int
	Band       string
	Tools      string
	Verified   bool
	Evidence   string
	Payload    string
}

type toolRow struct {
	Tool     string
	Stage    int
	Verdict  string
	Outcome  string
	Reason   string
	Duration string
}

func buildFindingRow(f *findings.Finding) findingRow {
	return findingRow{
		ID:         f.ID,
		Severity:   string(f.Severity),
		SevClass:   strings.ToLower(string(f.Severity)),
		Type:       string(f.Type),
		OWASP:      string(f.OWASP),
		Endpoint:   f.Endpoint,
		Parameter:  f.Parameter,
		Confidence: f.Confidence,
		Band:       findings.ConfidenceLabel(f.Confidence),
		Tools:      strings.Join(f.CorroboratingTools, ", "),
		Verified:   f.CrawlerVerified,
		Evidence:   f.Evidence,
		Payload:    f.Payload,
	}
}

func formatMillis(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	if d >= time.Second {
		d = d.Round(100 * time.Millisecond)
	}
	return d.String()
}
