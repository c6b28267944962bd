package parsers

import (
	"bufio"
	"bytes"
	"net"
	"regexp"
	"strconv"
	"strings"

	"github.com/ppiankov/vulnwatch/internal/findings"
)

// digParser reads `dig +noall +answer` output. Serves both the
// consolidated record tool and the lightweight A/AAAA verify.
type digParser struct {
	tool string
}

func (p digParser) Tool() string        { return p.tool }
func (p digParser) SignalClass() string { return "dns" }

func (p digParser) Parse(stdout []byte) (Delta, []findings.Finding, error) {
	var d Delta
	sc := bufio.NewScanner(bytes.NewReader(stdout))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		// name ttl class type rdata
		if len(fields) < 5 || fields[2] != "IN" {
			continue
		}
		switch fields[3] {
		case "A", "AAAA":
			if net.ParseIP(fields[4]) != nil {
				d.ResolvedIPs = append(d.ResolvedIPs, fields[4])
				d.DNSResolved = true
			}
		case "NS", "MX", "TXT", "SOA", "CNAME":
			d.DNSResolved = true
		}
	}
	return d, nil, nil
}

// subfinderParser reads one subdomain per line.
type subfinderParser struct{}

func (subfinderParser) Tool() string        { return "subfinder" }
func (subfinderParser) SignalClass() string { return "subdomains" }

func (subfinderParser) Parse(stdout []byte) (Delta, []findings.Finding, error) {
	var d Delta
	sc := bufio.NewScanner(bytes.NewReader(stdout))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.ContainsAny(line, " \t") || !strings.Contains(line, ".") {
			continue
		}
		d.Subdomains = append(d.Subdomains, strings.ToLower(line))
	}
	return d, nil, nil
}

var nmapPortLine = regexp.MustCompile(`^(\d{1,5})/(?:tcp|udp)\s+open\s+(\S+)\s*(.*)$`)

// nmapParser covers all three nmap invocations; the flags decide which
// extra signals to lift out of the same line format.
type nmapParser struct {
	tool        string
	versionScan bool
	vulnScripts bool
}

func (p nmapParser) Tool() string        { return p.tool }
func (p nmapParser) SignalClass() string { return "ports" }

func (p nmapParser) Parse(stdout []byte) (Delta, []findings.Finding, error) {
	var d Delta
	var out []findings.Finding
	var lastPortLine string

	sc := bufio.NewScanner(bytes.NewReader(stdout))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if m := nmapPortLine.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			n, err := strconv.ParseUint(m[1], 10, 16)
			if err != nil {
				continue
			}
			d.Ports = append(d.Ports, uint16(n))
			d.Reachable = true
			lastPortLine = strings.TrimSpace(line)
			if p.versionScan && m[3] != "" {
				d.Tech = append(d.Tech, strings.TrimSpace(m[3]))
			}
			continue
		}
		if p.vulnScripts {
			trimmed := strings.TrimSpace(strings.TrimLeft(line, "| _"))
			if strings.Contains(trimmed, "VULNERABLE") {
				out = append(out, findings.Finding{
					Type:     findings.VulnOutdatedComponent,
					Endpoint: "/" + portFrom(lastPortLine),
					Severity: findings.SeverityHigh,
					Evidence: trimmed,
					Tool:     p.tool,
				})
			}
		}
	}
	return d, out, nil
}

func portFrom(portLine string) string {
	if i := strings.Index(portLine, "/"); i > 0 {
		return "port-" + portLine[:i]
	}
	return "port-unknown"
}

// testsslParser flags weak protocols and ciphers and marks the TLS
// surface evaluated.
type testsslParser struct{}

func (testsslParser) Tool() string        { return "testssl" }
func (testsslParser) SignalClass() string { return "tls" }

var weakProtocols = []string{"SSLv2", "SSLv3", "TLS 1 ", "TLS 1.0", "TLS 1.1"}

func (testsslParser) Parse(stdout []byte) (Delta, []findings.Finding, error) {
	d := Delta{TLSEvaluated: true}
	var out []findings.Finding

	sc := bufio.NewScanner(bytes.NewReader(stdout))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		lower := strings.ToLower(line)
		offered := strings.Contains(lower, "offered") && !strings.Contains(lower, "not offered")
		if !offered {
			continue
		}
		for _, proto := range weakProtocols {
			if strings.Contains(line, proto) {
				sev := findings.SeverityMedium
				if strings.HasPrefix(proto, "SSL") {
					sev = findings.SeverityHigh
				}
				out = append(out, findings.Finding{
					Type:     findings.VulnWeakTLS,
					Endpoint: "/",
					Severity: sev,
					Evidence: line,
					Tool:     "testssl",
				})
				break
			}
		}
	}
	return d, out, nil
}

// whatwebParser lifts technology names out of whatweb's bracketed
// plugin list.
type whatwebParser struct{}

func (whatwebParser) Tool() string        { return "whatweb" }
func (whatwebParser) SignalClass() string { return "tech" }

var whatwebPlugin = regexp.MustCompile(`\[([^\[\]]+)\]`)

func (whatwebParser) Parse(stdout []byte) (Delta, []findings.Finding, error) {
	var d Delta
	text := strings.TrimSpace(string(stdout))
	if text == "" {
		return d, nil, nil
	}
	d.Reachable = true

	// whatweb output: http://host [200 OK] Apache[2.4.41], WordPress[6.4] ...
	if strings.HasPrefix(text, "http") {
		if i := strings.Index(text, "] "); i >= 0 {
			text = text[i+2:]
		}
	}
	for _, token := range strings.Split(text, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		name := token
		version := ""
		if i := strings.Index(token, "["); i > 0 {
			name = strings.TrimSpace(token[:i])
			if m := whatwebPlugin.FindStringSubmatch(token[i:]); m != nil {
				version = m[1]
			}
		} else if strings.Contains(token, "[") {
			continue // status blob, e.g. leading "http://host [200 OK]"
		}
		if name == "" || strings.HasPrefix(name, "http") {
			continue
		}
		if version != "" && version != "200 OK" {
			d.Tech = append(d.Tech, name+" "+version)
		} else {
			d.Tech = append(d.Tech, name)
		}
	}
	return d, nil, nil
}
