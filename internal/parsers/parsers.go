// Package parsers converts tool stdout into cache updates and
// normalized findings. Every parser is idempotent and never panics on
// malformed input; a parse failure yields a marker for the coverage
// report and zero findings.
package parsers

import (
	"sort"

	"github.com/ppiankov/vulnwatch/internal/cache"
	"github.com/ppiankov/vulnwatch/internal/findings"
)

// ParamUpdate is one parameter observation inside a Delta.
type ParamUpdate struct {
	Name         string
	Source       cache.ParamSource
	Endpoint     string
	Method       string
	Reflectable  bool
	SQLCandidate bool
	CmdCandidate bool
}

// Delta is the set of cache updates a parser derived from stdout. It
// is applied under the cache lock in one pass.
type Delta struct {
	Endpoints        []string
	LiveEndpoints    []string
	Params           []ParamUpdate
	Ports            []uint16
	Subdomains       []string
	Reflections      []string
	Tech             []string
	ResolvedIPs      []string
	TLSEvaluated     bool
	CrawlerCompleted bool
	Reachable        bool
	DNSResolved      bool
}

// Apply writes the delta into the cache.
func (d Delta) Apply(c *cache.Cache) {
	for _, ep := range d.Endpoints {
		c.AddEndpoint(ep)
	}
	for _, ep := range d.LiveEndpoints {
		c.AddLiveEndpoint(ep)
	}
	for _, p := range d.Params {
		c.AddParam(p.Name, p.Source, p.Endpoint, p.Method, cache.ParamHints{
			Reflectable:  p.Reflectable,
			SQLCandidate: p.SQLCandidate,
			CmdCandidate: p.CmdCandidate,
		})
	}
	for _, port := range d.Ports {
		c.AddPort(port)
	}
	for _, s := range d.Subdomains {
		c.AddSubdomain(s)
	}
	for _, r := range d.Reflections {
		c.AddReflection(r)
	}
	for _, t := range d.Tech {
		c.AddTech(t)
	}
	for _, ip := range d.ResolvedIPs {
		c.AddResolvedIP(ip)
	}
	if d.TLSEvaluated {
		c.MarkTLSEvaluated()
	}
	if d.CrawlerCompleted {
		c.MarkCrawlerCompleted()
	}
	if d.Reachable {
		c.MarkReachable()
	}
	if d.DNSResolved {
		c.MarkDNSResolved()
	}
}

// Parser turns one tool's stdout into a delta and findings. A non-nil
// error marks the run BLOCKED_PARSE_FAILED; the delta and findings are
// then discarded.
type Parser interface {
	Tool() string
	SignalClass() string
	Parse(stdout []byte) (Delta, []findings.Finding, error)
}

var registry = map[string]Parser{}

func register(p Parser) { registry[p.Tool()] = p }

// Lookup returns the parser for a tool name.
func Lookup(tool string) (Parser, bool) {
	p, ok := registry[tool]
	return p, ok
}

// Tools returns the registered parser names, sorted.
func Tools() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func init() {
	register(digParser{tool: "dig-records"})
	register(digParser{tool: "dig-verify"})
	register(subfinderParser{})
	register(nmapParser{tool: "nmap-syn"})
	register(nmapParser{tool: "nmap-version", versionScan: true})
	register(nmapParser{tool: "nmap-vuln", vulnScripts: true})
	register(testsslParser{})
	register(whatwebParser{})
	register(katanaParser{})
	register(gobusterParser{})
	register(niktoParser{})
	register(nucleiParser{})
	register(wpscanParser{})
	register(dalfoxParser{})
	register(xsstrikeParser{})
	register(sqlmapParser{})
	register(commixParser{})
}
