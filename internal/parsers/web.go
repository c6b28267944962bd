package parsers

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/ppiankov/vulnwatch/internal/cache"
	"github.com/ppiankov/vulnwatch/internal/findings"
)

// Parameter names that look injectable get candidate hints up front;
// payload tools refine them later.
var (
	sqlParamNames = map[string]bool{"id": true, "uid": true, "pid": true, "cat": true, "item": true, "page_id": true, "product": true, "order": true, "sort": true, "user": true}
	cmdParamNames = map[string]bool{"cmd": true, "exec": true, "command": true, "ping": true, "query": true, "ip": true, "host": true, "file": true, "path": true, "dir": true}
	reflParamName = map[string]bool{"q": true, "s": true, "search": true, "query": true, "keyword": true, "name": true, "message": true, "comment": true, "term": true}
)

func hintsFor(name string) cache.ParamHints {
	lower := strings.ToLower(name)
	return cache.ParamHints{
		Reflectable:  reflParamName[lower],
		SQLCandidate: sqlParamNames[lower],
		CmdCandidate: cmdParamNames[lower],
	}
}

// katanaLine is the subset of katana's JSONL schema the engine reads.
type katanaLine struct {
	Request struct {
		Method   string `json:"method"`
		Endpoint string `json:"endpoint"`
		Source   string `json:"source"`
		Tag      string `json:"tag"`
	} `json:"request"`
	Response struct {
		StatusCode int `json:"status_code"`
	} `json:"response"`
}

// katanaParser consumes the crawler output: endpoints, parameters with
// provenance, and the crawler-completed flag. A run with zero lines is
// still a completed crawl.
type katanaParser struct{}

func (katanaParser) Tool() string        { return "katana" }
func (katanaParser) SignalClass() string { return "crawl" }

func (katanaParser) Parse(stdout []byte) (Delta, []findings.Finding, error) {
	d := Delta{CrawlerCompleted: true}

	sc := bufio.NewScanner(bytes.NewReader(stdout))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	malformed := 0
	total := 0
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		total++

		if strings.HasPrefix(line, "{") {
			var kl katanaLine
			if err := json.Unmarshal([]byte(line), &kl); err != nil {
				malformed++
				continue
			}
			if kl.Request.Endpoint == "" {
				continue
			}
			addCrawledURL(&d, kl.Request.Endpoint, kl.Request.Method, sourceForTag(kl.Request.Tag))
			if kl.Response.StatusCode >= 200 && kl.Response.StatusCode < 300 {
				d.LiveEndpoints = append(d.LiveEndpoints, kl.Request.Endpoint)
			}
			continue
		}
		// Plain-URL mode.
		if strings.HasPrefix(line, "http://") || strings.HasPrefix(line, "https://") {
			addCrawledURL(&d, line, "GET", cache.SourceCrawled)
		} else {
			malformed++
		}
	}

	if total > 0 && malformed == total {
		return Delta{}, nil, fmt.Errorf("katana: all %d lines malformed", total)
	}
	return d, nil, nil
}

func sourceForTag(tag string) cache.ParamSource {
	switch strings.ToLower(tag) {
	case "form":
		return cache.SourceFormInput
	case "script", "js":
		return cache.SourceJSDetected
	default:
		return cache.SourceCrawled
	}
}

func addCrawledURL(d *Delta, raw, method string, src cache.ParamSource) {
	d.Endpoints = append(d.Endpoints, raw)
	u, err := url.Parse(raw)
	if err != nil {
		return
	}
	for name := range u.Query() {
		pu := ParamUpdate{
			Name:     name,
			Source:   cache.SourceURL,
			Endpoint: raw,
			Method:   method,
		}
		if src == cache.SourceFormInput || src == cache.SourceJSDetected {
			pu.Source = src
		}
		h := hintsFor(name)
		pu.Reflectable, pu.SQLCandidate, pu.CmdCandidate = h.Reflectable, h.SQLCandidate, h.CmdCandidate
		d.Params = append(d.Params, pu)
	}
}

var gobusterLine = regexp.MustCompile(`^(\S+)\s+\(Status:\s*(\d{3})\)`)

// gobusterParser reads directory-enumeration hits; 2xx paths are live.
type gobusterParser struct{}

func (gobusterParser) Tool() string        { return "gobuster" }
func (gobusterParser) SignalClass() string { return "endpoints" }

func (gobusterParser) Parse(stdout []byte) (Delta, []findings.Finding, error) {
	var d Delta
	sc := bufio.NewScanner(bytes.NewReader(stdout))
	for sc.Scan() {
		m := gobusterLine.FindStringSubmatch(strings.TrimSpace(sc.Text()))
		if m == nil {
			continue
		}
		d.Reachable = true
		if strings.HasPrefix(m[2], "2") {
			d.LiveEndpoints = append(d.LiveEndpoints, m[1])
		} else {
			d.Endpoints = append(d.Endpoints, m[1])
		}
	}
	return d, nil, nil
}

// niktoParser lifts "+ " observations into info-disclosure findings.
type niktoParser struct{}

func (niktoParser) Tool() string        { return "nikto" }
func (niktoParser) SignalClass() string { return "webscan" }

var niktoNoise = []string{"Target IP", "Target Hostname", "Target Port", "Start Time", "End Time", "host(s) tested", "Nikto v"}

func (niktoParser) Parse(stdout []byte) (Delta, []findings.Finding, error) {
	var d Delta
	var out []findings.Finding

	sc := bufio.NewScanner(bytes.NewReader(stdout))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(line, "+ ") {
			continue
		}
		body := strings.TrimPrefix(line, "+ ")
		if isNiktoNoise(body) {
			d.Reachable = true
			continue
		}
		endpoint := "/"
		if i := strings.Index(body, ": "); i > 0 && strings.HasPrefix(body, "/") {
			endpoint = body[:i]
		}
		out = append(out, findings.Finding{
			Type:     findings.VulnInfoDisclosure,
			Endpoint: endpoint,
			Severity: findings.SeverityLow,
			Evidence: body,
			Tool:     "nikto",
		})
	}
	return d, out, nil
}

func isNiktoNoise(s string) bool {
	for _, n := range niktoNoise {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// nucleiParser reads JSONL results, mapping template severity and
// classification into the canonical vocabulary.
type nucleiParser struct{}

func (nucleiParser) Tool() string        { return "nuclei" }
func (nucleiParser) SignalClass() string { return "templates" }

type nucleiResult struct {
	TemplateID string `json:"template-id"`
	Info       struct {
		Name     string   `json:"name"`
		Severity string   `json:"severity"`
		Tags     []string `json:"tags"`
	} `json:"info"`
	Type         string   `json:"type"`
	MatchedAt    string   `json:"matched-at"`
	ExtractedRes []string `json:"extracted-results,omitempty"`
}

func (nucleiParser) Parse(stdout []byte) (Delta, []findings.Finding, error) {
	var d Delta
	var out []findings.Finding

	sc := bufio.NewScanner(bytes.NewReader(stdout))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	malformed, total := 0, 0
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		total++
		var r nucleiResult
		if err := json.Unmarshal([]byte(line), &r); err != nil {
			malformed++
			continue
		}
		if r.MatchedAt == "" {
			continue
		}
		d.Reachable = true
		out = append(out, findings.Finding{
			Type:     nucleiVulnType(r),
			Endpoint: r.MatchedAt,
			Severity: nucleiSeverity(r.Info.Severity),
			Evidence: fmt.Sprintf("%s (%s) matched at %s", r.Info.Name, r.TemplateID, r.MatchedAt),
			Tool:     "nuclei",
		})
	}
	if total > 0 && malformed == total {
		return Delta{}, nil, fmt.Errorf("nuclei: all %d lines malformed", total)
	}
	return d, out, nil
}

func nucleiVulnType(r nucleiResult) findings.VulnType {
	tagged := func(tag string) bool {
		for _, t := range r.Info.Tags {
			if t == tag {
				return true
			}
		}
		return strings.Contains(r.TemplateID, tag)
	}
	switch {
	case tagged("xss"):
		return findings.VulnXSS
	case tagged("sqli"):
		return findings.VulnSQLInjection
	case tagged("rce"), tagged("cmdi"):
		return findings.VulnCmdInjection
	case tagged("ssrf"):
		return findings.VulnSSRF
	case tagged("lfi"), tagged("traversal"):
		return findings.VulnPathTraversal
	case tagged("redirect"):
		return findings.VulnOpenRedirect
	case tagged("panel"), tagged("login"):
		return findings.VulnExposedPanel
	case tagged("default-login"):
		return findings.VulnDefaultCreds
	case tagged("cve"), tagged("outdated"):
		return findings.VulnOutdatedComponent
	case tagged("exposure"), tagged("disclosure"):
		return findings.VulnInfoDisclosure
	default:
		return findings.VulnMisconfiguration
	}
}

func nucleiSeverity(s string) findings.Severity {
	switch strings.ToLower(s) {
	case "critical":
		return findings.SeverityCritical
	case "high":
		return findings.SeverityHigh
	case "medium":
		return findings.SeverityMedium
	case "low":
		return findings.SeverityLow
	default:
		return findings.SeverityInfo
	}
}

// wpscanParser reads interesting findings from wpscan's plain output.
type wpscanParser struct{}

func (wpscanParser) Tool() string        { return "wpscan" }
func (wpscanParser) SignalClass() string { return "wordpress" }

func (wpscanParser) Parse(stdout []byte) (Delta, []findings.Finding, error) {
	var d Delta
	var out []findings.Finding

	sc := bufio.NewScanner(bytes.NewReader(stdout))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case strings.HasPrefix(line, "[+] WordPress version"):
			d.Tech = append(d.Tech, strings.TrimPrefix(line, "[+] "))
			if strings.Contains(strings.ToLower(line), "insecure") {
				out = append(out, findings.Finding{
					Type:     findings.VulnOutdatedComponent,
					Endpoint: "/",
					Severity: findings.SeverityHigh,
					Evidence: line,
					Tool:     "wpscan",
				})
			}
		case strings.Contains(line, "vulnerabilities identified"):
			out = append(out, findings.Finding{
				Type:     findings.VulnOutdatedComponent,
				Endpoint: "/",
				Severity: findings.SeverityHigh,
				Evidence: line,
				Tool:     "wpscan",
			})
		case strings.HasPrefix(line, "[+] Upload directory has listing enabled"):
			out = append(out, findings.Finding{
				Type:     findings.VulnInfoDisclosure,
				Endpoint: "/wp-content/uploads",
				Severity: findings.SeverityMedium,
				Evidence: line,
				Tool:     "wpscan",
			})
		}
	}
	return d, out, nil
}
