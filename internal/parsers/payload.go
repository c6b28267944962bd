package parsers

import (
	"bufio"
	"bytes"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/ppiankov/vulnwatch/internal/findings"
)

// dalfoxParser reads confirmed XSS from dalfox. JSON mode when the line
// is an object; otherwise the classic [POC] / [VULN] grep lines.
type dalfoxParser struct{}

func (dalfoxParser) Tool() string        { return "dalfox" }
func (dalfoxParser) SignalClass() string { return "xss" }

type dalfoxResult struct {
	Type     string `json:"type"`
	Severity string `json:"severity"`
	Method   string `json:"method"`
	Param    string `json:"param"`
	Payload  string `json:"payload"`
	Evidence string `json:"evidence"`
	Data     string `json:"data"`
}

func (dalfoxParser) Parse(stdout []byte) (Delta, []findings.Finding, error) {
	var d Delta
	var out []findings.Finding

	sc := bufio.NewScanner(bytes.NewReader(stdout))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "{") {
			var r dalfoxResult
			if err := json.Unmarshal([]byte(line), &r); err != nil {
				continue
			}
			if r.Type != "V" && !strings.EqualFold(r.Type, "vuln") {
				continue
			}
			out = append(out, xssFinding(r.Data, r.Param, r.Payload, r.Evidence))
			continue
		}
		// Grep mode: [POC][V][GET] http://host/path?q=<payload>
		if strings.HasPrefix(line, "[POC]") || strings.HasPrefix(line, "[VULN]") || strings.HasPrefix(line, "[V]") {
			url := lastURLToken(line)
			if url == "" {
				continue
			}
			out = append(out, xssFinding(url, paramFromURL(url), payloadFromURL(url), line))
		}
	}
	for _, f := range out {
		if f.Parameter != "" {
			d.Reflections = append(d.Reflections, f.Parameter)
		}
	}
	return d, out, nil
}

func xssFinding(endpoint, param, payload, evidence string) findings.Finding {
	return findings.Finding{
		Type:      findings.VulnXSS,
		Endpoint:  endpoint,
		Parameter: param,
		Severity:  findings.SeverityHigh,
		Payload:   payload,
		Evidence:  evidence,
		Tool:      "dalfox",
	}
}

func lastURLToken(line string) string {
	for _, tok := range strings.Fields(line) {
		if strings.HasPrefix(tok, "http://") || strings.HasPrefix(tok, "https://") {
			return tok
		}
	}
	return ""
}

func payloadFromURL(u string) string {
	if i := strings.Index(u, "="); i >= 0 && i+1 < len(u) {
		return u[i+1:]
	}
	return ""
}

func paramFromURL(u string) string {
	q := strings.Index(u, "?")
	if q < 0 {
		return ""
	}
	rest := u[q+1:]
	if eq := strings.Index(rest, "="); eq > 0 {
		return rest[:eq]
	}
	return ""
}

// xsstrikeParser reads xsstrike's banner-style output.
type xsstrikeParser struct{}

func (xsstrikeParser) Tool() string        { return "xsstrike" }
func (xsstrikeParser) SignalClass() string { return "xss" }

var xsstrikeParam = regexp.MustCompile(`Testing parameter:\s*(\S+)`)

func (xsstrikeParser) Parse(stdout []byte) (Delta, []findings.Finding, error) {
	var d Delta
	var out []findings.Finding

	param := ""
	payload := ""
	sc := bufio.NewScanner(bytes.NewReader(stdout))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if m := xsstrikeParam.FindStringSubmatch(line); m != nil {
			param = m[1]
			continue
		}
		if strings.HasPrefix(line, "Payload:") {
			payload = strings.TrimSpace(strings.TrimPrefix(line, "Payload:"))
			continue
		}
		lower := strings.ToLower(line)
		if strings.Contains(lower, "vulnerable webpage") || strings.Contains(lower, "payload confirmed") {
			url := lastURLToken(line)
			out = append(out, findings.Finding{
				Type:      findings.VulnXSS,
				Endpoint:  url,
				Parameter: param,
				Severity:  findings.SeverityHigh,
				Payload:   payload,
				Evidence:  line,
				Tool:      "xsstrike",
			})
			if param != "" {
				d.Reflections = append(d.Reflections, param)
			}
		}
	}
	return d, out, nil
}

// sqlmapParser reads sqlmap's injection-point summary. The summary only
// appears when at least one parameter is injectable, so any "Parameter:"
// block is a confirmed finding.
type sqlmapParser struct{}

func (sqlmapParser) Tool() string        { return "sqlmap" }
func (sqlmapParser) SignalClass() string { return "sqli" }

var (
	sqlmapParam = regexp.MustCompile(`^Parameter:\s*(\S+)\s*\((GET|POST|Cookie|URI)\)`)
	sqlmapURL   = regexp.MustCompile(`(?i)(?:testing URL|target URL)[:\s]+'?(https?://\S+?)'?(?:\s|$)`)
	sqlmapDBMS  = regexp.MustCompile(`back-end DBMS:\s*(.+)`)
)

func (sqlmapParser) Parse(stdout []byte) (Delta, []findings.Finding, error) {
	var d Delta
	var out []findings.Finding

	url := ""
	dbms := ""
	var current *findings.Finding
	flush := func() {
		if current != nil {
			out = append(out, *current)
			current = nil
		}
	}

	sc := bufio.NewScanner(bytes.NewReader(stdout))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if m := sqlmapURL.FindStringSubmatch(line); m != nil {
			url = m[1]
			continue
		}
		if m := sqlmapDBMS.FindStringSubmatch(line); m != nil {
			dbms = strings.TrimSpace(m[1])
			d.Tech = append(d.Tech, dbms)
			continue
		}
		if m := sqlmapParam.FindStringSubmatch(line); m != nil {
			flush()
			current = &findings.Finding{
				Type:      findings.VulnSQLInjection,
				Endpoint:  url,
				Parameter: m[1],
				Severity:  findings.SeverityCritical,
				Evidence:  line,
				Tool:      "sqlmap",
			}
			continue
		}
		if current == nil {
			continue
		}
		switch {
		case strings.HasPrefix(line, "Type:"):
			current.Evidence += "; " + line
		case strings.HasPrefix(line, "Title:"):
			current.Evidence += "; " + line
		case strings.HasPrefix(line, "Payload:"):
			if current.Payload == "" {
				current.Payload = strings.TrimSpace(strings.TrimPrefix(line, "Payload:"))
			}
		}
	}
	flush()

	if dbms != "" {
		for i := range out {
			out[i].Evidence += "; back-end DBMS: " + dbms
		}
	}
	return d, out, nil
}

// commixParser reads commix's classic injection confirmations.
type commixParser struct{}

func (commixParser) Tool() string        { return "commix" }
func (commixParser) SignalClass() string { return "cmdi" }

var commixParam = regexp.MustCompile(`(?i)parameter\s+'?([A-Za-z0-9_\-]+)'?\s+(?:seems|appears to be|is)\s+injectable`)

func (commixParser) Parse(stdout []byte) (Delta, []findings.Finding, error) {
	var d Delta
	var out []findings.Finding

	url := ""
	payload := ""
	sc := bufio.NewScanner(bytes.NewReader(stdout))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if u := lastURLToken(line); u != "" && strings.Contains(strings.ToLower(line), "target") {
			url = u
			continue
		}
		if strings.HasPrefix(line, "[+] Payload:") || strings.HasPrefix(line, "Payload:") {
			payload = strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(line, "[+] "), "Payload:"))
			continue
		}
		if m := commixParam.FindStringSubmatch(line); m != nil {
			out = append(out, findings.Finding{
				Type:      findings.VulnCmdInjection,
				Endpoint:  url,
				Parameter: m[1],
				Severity:  findings.SeverityCritical,
				Payload:   payload,
				Evidence:  line,
				Tool:      "commix",
			})
		}
	}
	return d, out, nil
}
