// Package plan defines the tool catalog and selects the ordered
// execution path for a target profile.
package plan

import (
	"time"

	"github.com/ppiankov/vulnwatch/internal/cache"
)

// Category groups tools for serialization limits and gating.
type Category string

const (
	CategoryDNS           Category = "dns"
	CategorySubdomainEnum Category = "subdomain-enum"
	CategoryPortScan      Category = "portscan"
	CategoryTLS           Category = "tls"
	CategoryFingerprint   Category = "fingerprint"
	CategoryCrawler       Category = "crawler"
	CategoryDirEnum       Category = "direnum"
	CategoryTemplate      Category = "template"
	CategoryWebScan       Category = "webscan"
	CategoryWordPress     Category = "wordpress"
	CategoryPayload       Category = "payload"
)

// Spec is the static description of one tool: what it needs, what it
// yields, and how long it may ever run.
type Spec struct {
	Name     string             `json:"tool"`
	Category Category           `json:"category"`
	Command  string             `json:"command_template"`
	Timeout  time.Duration      `json:"timeout"`
	Priority uint8              `json:"priority"`
	Requires []cache.Capability `json:"requires,omitempty"`
	Optional []cache.Capability `json:"optional,omitempty"`
	Produces []cache.Capability `json:"produces,omitempty"`
	Streams  bool               `json:"-"` // known to die on SIGPIPE mid-stream
}

// IsPayload reports whether the tool sends attack payloads and is
// therefore subject to the crawler gate.
func (s Spec) IsPayload() bool { return s.Category == CategoryPayload }

// Command templates use {target}, {url}, {base_domain}, {wordlist},
// {endpoints_file} and {output_dir} placeholders, expanded at dispatch.
var catalog = []Spec{
	{
		Name:     "dig-records",
		Category: CategoryDNS,
		Command:  "dig +noall +answer {target} A {target} AAAA {target} NS {target} MX {target} TXT {target} SOA",
		Timeout:  30 * time.Second,
		Priority: 10,
		Produces: []cache.Capability{cache.CapDNSResolved},
	},
	{
		Name:     "dig-verify",
		Category: CategoryDNS,
		Command:  "dig +noall +answer {target} A {target} AAAA",
		Timeout:  30 * time.Second,
		Priority: 10,
		Produces: []cache.Capability{cache.CapDNSResolved},
	},
	{
		Name:     "subfinder",
		Category: CategorySubdomainEnum,
		Command:  "subfinder -silent -d {base_domain}",
		Timeout:  5 * time.Minute,
		Priority: 20,
		Produces: []cache.Capability{cache.CapSubdomainsKnown},
	},
	{
		Name:     "nmap-syn",
		Category: CategoryPortScan,
		Command:  "nmap -Pn -sS --top-ports 1000 -T4 {target}",
		Timeout:  5 * time.Minute,
		Priority: 30,
		Produces: []cache.Capability{cache.CapPortsKnown, cache.CapReachable},
	},
	{
		Name:     "nmap-version",
		Category: CategoryPortScan,
		Command:  "nmap -Pn -sV --top-ports 100 -T4 {target}",
		Timeout:  10 * time.Minute,
		Priority: 31,
		Optional: []cache.Capability{cache.CapPortsKnown},
		Produces: []cache.Capability{cache.CapTechStack},
	},
	{
		Name:     "nmap-vuln",
		Category: CategoryPortScan,
		Command:  "nmap -Pn --script vuln --top-ports 100 -T4 {target}",
		Timeout:  15 * time.Minute,
		Priority: 32,
		Optional: []cache.Capability{cache.CapPortsKnown},
	},
	{
		Name:     "testssl",
		Category: CategoryTLS,
		Command:  "testssl --quiet --color 0 {url}",
		Timeout:  5 * time.Minute,
		Priority: 40,
		Requires: []cache.Capability{cache.CapWebTarget},
		Optional: []cache.Capability{cache.CapPortsKnown},
		Produces: []cache.Capability{cache.CapTLSEvaluated},
	},
	{
		Name:     "whatweb",
		Category: CategoryFingerprint,
		Command:  "whatweb --color=never -a 1 {url}",
		Timeout:  2 * time.Minute,
		Priority: 41,
		Requires: []cache.Capability{cache.CapWebTarget},
		Produces: []cache.Capability{cache.CapTechStack},
	},
	{
		Name:     "katana",
		Category: CategoryCrawler,
		Command:  "katana -silent -jsonl -d 3 -u {url}",
		Timeout:  10 * time.Minute,
		Priority: 50,
		Requires: []cache.Capability{cache.CapWebTarget},
		Produces: []cache.Capability{cache.CapCrawlerCompleted, cache.CapEndpointsKnown, cache.CapParamsKnown},
	},
	{
		Name:     "gobuster",
		Category: CategoryDirEnum,
		Command:  "gobuster dir -q -u {url} -w {wordlist}",
		Timeout:  10 * time.Minute,
		Priority: 60,
		Requires: []cache.Capability{cache.CapWebTarget},
		Produces: []cache.Capability{cache.CapLiveEndpoints},
	},
	{
		Name:     "nuclei",
		Category: CategoryTemplate,
		Command:  "nuclei -silent -nc -u {url}",
		Timeout:  15 * time.Minute,
		Priority: 61,
		// whatweb output is strictly optional here: requiring
		// tech_stack_detected starves nuclei when fingerprinting
		// comes back empty.
		Requires: []cache.Capability{cache.CapWebTarget},
		Optional: []cache.Capability{cache.CapTechStack},
	},
	{
		Name:     "nikto",
		Category: CategoryWebScan,
		Command:  "nikto -ask no -nointeractive -h {url}",
		Timeout:  15 * time.Minute,
		Priority: 62,
		Requires: []cache.Capability{cache.CapWebTarget},
		Streams:  true,
	},
	{
		Name:     "wpscan",
		Category: CategoryWordPress,
		Command:  "wpscan --no-banner --no-update --url {url}",
		Timeout:  10 * time.Minute,
		Priority: 63,
		// Policy says wpscan may run for any web target; the cache
		// decides when, via the wordpress_detected requirement.
		Requires: []cache.Capability{cache.CapWebTarget, cache.CapWordPress},
	},
	{
		Name:     "dalfox",
		Category: CategoryPayload,
		Command:  "dalfox file {endpoints_file} --silence --no-color",
		Timeout:  10 * time.Minute,
		Priority: 70,
		Requires: []cache.Capability{cache.CapWebTarget},
		Optional: []cache.Capability{cache.CapReflectable},
	},
	{
		Name:     "xsstrike",
		Category: CategoryPayload,
		Command:  "xsstrike --seeds {endpoints_file} --skip",
		Timeout:  10 * time.Minute,
		Priority: 71,
		Requires: []cache.Capability{cache.CapWebTarget},
		Optional: []cache.Capability{cache.CapReflectable},
	},
	{
		Name:     "sqlmap",
		Category: CategoryPayload,
		Command:  "sqlmap -m {endpoints_file} --batch --random-agent --level 1 --risk 1",
		Timeout:  15 * time.Minute,
		Priority: 72,
		Requires: []cache.Capability{cache.CapWebTarget},
		Optional: []cache.Capability{cache.CapSQLInjectable},
	},
	{
		Name:     "commix",
		Category: CategoryPayload,
		Command:  "commix --batch --url {url}",
		Timeout:  10 * time.Minute,
		Priority: 73,
		Requires: []cache.Capability{cache.CapWebTarget},
		Optional: []cache.Capability{cache.CapCmdInjectable},
	},
}

// Catalog returns every registered tool spec, copied.
func Catalog() []Spec {
	return append([]Spec(nil), catalog...)
}

// Lookup returns the spec for a tool name.
func Lookup(name string) (Spec, bool) {
	for _, s := range catalog {
		if s.Name == name {
			return s, true
		}
	}
	return Spec{}, false
}
