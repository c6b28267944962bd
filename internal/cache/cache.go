// Package cache holds the monotonically-growing discovery state shared
// across tool runs. Fields only ever gain entries; the capability set
// is derived from the current contents under a read lock.
package cache

import (
	"sort"
	"strings"
	"sync"
)

// Capability is a named boolean signal derived from discovery state.
type Capability string

const (
	CapWebTarget        Capability = "web_target"
	CapHTTPS            Capability = "https"
	CapReachable        Capability = "reachable"
	CapPortsKnown       Capability = "ports_known"
	CapDNSResolved      Capability = "dns_resolved"
	CapEndpointsKnown   Capability = "endpoints_known"
	CapLiveEndpoints    Capability = "live_endpoints"
	CapParamsKnown      Capability = "params_known"
	CapReflectable      Capability = "reflectable_params"
	CapSQLInjectable    Capability = "sql_injectable_params"
	CapCmdInjectable    Capability = "cmd_injectable_params"
	CapTechStack        Capability = "tech_stack_detected"
	CapWordPress        Capability = "wordpress_detected"
	CapTLSEvaluated     Capability = "tls_evaluated"
	CapSubdomainsKnown  Capability = "subdomains_known"
	CapCrawlerCompleted Capability = "crawler_completed"
)

// ParamSource records how a parameter was discovered.
type ParamSource string

const (
	SourceCrawled    ParamSource = "CRAWLED"
	SourceFormInput  ParamSource = "FORM_INPUT"
	SourceJSDetected ParamSource = "JS_DETECTED"
	SourceURL        ParamSource = "URL"
)

// ParamHints carries injection-candidate classification for AddParam.
type ParamHints struct {
	Reflectable  bool
	SQLCandidate bool
	CmdCandidate bool
}

// ParamMeta is the accumulated view of a discovered parameter.
type ParamMeta struct {
	Sources      []string `json:"sources"`
	Endpoints    []string `json:"endpoints"`
	Reflectable  bool     `json:"is_reflectable"`
	SQLCandidate bool     `json:"is_sql_candidate"`
	CmdCandidate bool     `json:"is_cmd_candidate"`
}

type paramState struct {
	sources      map[ParamSource]struct{}
	endpoints    map[string]struct{}
	reflectable  bool
	sqlCandidate bool
	cmdCandidate bool
}

// Cache is the single shared mutable store of the scan. All mutation
// takes the write lock; snapshots copy out under the read lock.
type Cache struct {
	mu sync.RWMutex

	seeded map[Capability]bool // static caps from the profile

	endpoints     map[string]struct{}
	liveEndpoints map[string]struct{}
	params        map[string]*paramState
	ports         map[uint16]struct{}
	subdomains    map[string]struct{}
	reflections   map[string]struct{}
	techStack     map[string]struct{}
	resolvedIPs   map[string]struct{}

	graph *Graph

	tlsEvaluated     bool
	crawlerCompleted bool
	reachable        bool
	dnsResolved      bool
	wordpress        bool
}

// New returns an empty cache seeded with the profile-derived static
// capabilities (web_target, https).
func New(seed ...Capability) *Cache {
	c := &Cache{
		seeded:        make(map[Capability]bool, len(seed)),
		endpoints:     make(map[string]struct{}),
		liveEndpoints: make(map[string]struct{}),
		params:        make(map[string]*paramState),
		ports:         make(map[uint16]struct{}),
		subdomains:    make(map[string]struct{}),
		reflections:   make(map[string]struct{}),
		techStack:     make(map[string]struct{}),
		resolvedIPs:   make(map[string]struct{}),
		graph:         NewGraph(),
	}
	for _, cap := range seed {
		c.seeded[cap] = true
	}
	return c
}

// AddEndpoint records a discovered endpoint (normalized).
func (c *Cache) AddEndpoint(endpoint string) {
	ep := NormalizeEndpoint(endpoint)
	if ep == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endpoints[ep] = struct{}{}
}

// AddLiveEndpoint records an HTTP-200-confirmed endpoint. It also adds
// to the endpoint set.
func (c *Cache) AddLiveEndpoint(endpoint string) {
	ep := NormalizeEndpoint(endpoint)
	if ep == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endpoints[ep] = struct{}{}
	c.liveEndpoints[ep] = struct{}{}
}

// AddParam records a parameter with its provenance and hints, and adds
// the corresponding edge to the endpoint graph.
func (c *Cache) AddParam(name string, source ParamSource, endpoint, method string, hints ParamHints) {
	if name == "" {
		return
	}
	ep := NormalizeEndpoint(endpoint)
	c.mu.Lock()
	defer c.mu.Unlock()
	ps, ok := c.params[name]
	if !ok {
		ps = &paramState{
			sources:   make(map[ParamSource]struct{}),
			endpoints: make(map[string]struct{}),
		}
		c.params[name] = ps
	}
	ps.sources[source] = struct{}{}
	if ep != "" {
		ps.endpoints[ep] = struct{}{}
		c.endpoints[ep] = struct{}{}
		c.graph.add(ep, method, name, source)
	}
	ps.reflectable = ps.reflectable || hints.Reflectable
	ps.sqlCandidate = ps.sqlCandidate || hints.SQLCandidate
	ps.cmdCandidate = ps.cmdCandidate || hints.CmdCandidate
}

// AddPort records an open port.
func (c *Cache) AddPort(port uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ports[port] = struct{}{}
	c.reachable = true
}

// AddReflection marks a parameter as reflected in responses.
func (c *Cache) AddReflection(param string) {
	if param == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reflections[param] = struct{}{}
	if ps, ok := c.params[param]; ok {
		ps.reflectable = true
	}
}

// AddSubdomain records an enumerated subdomain.
func (c *Cache) AddSubdomain(name string) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subdomains[name] = struct{}{}
}

// AddTech records a detected technology. WordPress detection rides on
// the tech stack.
func (c *Cache) AddTech(name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.techStack[name] = struct{}{}
	if strings.Contains(strings.ToLower(name), "wordpress") {
		c.wordpress = true
	}
}

// MarkTLSEvaluated flags that a TLS probe completed.
func (c *Cache) MarkTLSEvaluated() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tlsEvaluated = true
}

// MarkCrawlerCompleted flags that the crawler finished.
func (c *Cache) MarkCrawlerCompleted() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.crawlerCompleted = true
}

// MarkReachable flags that the target answered something.
func (c *Cache) MarkReachable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reachable = true
}

// AddResolvedIP records an address DNS resolution produced. Implies
// dns_resolved.
func (c *Cache) AddResolvedIP(ip string) {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resolvedIPs[ip] = struct{}{}
	c.dnsResolved = true
}

// MarkDNSResolved flags that DNS resolution succeeded.
func (c *Cache) MarkDNSResolved() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dnsResolved = true
}

// Graph returns the endpoint graph view.
func (c *Cache) Graph() *Graph { return c.graph }

// Capabilities derives the current capability set.
func (c *Cache) Capabilities() map[Capability]bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.capabilitiesLocked()
}

func (c *Cache) capabilitiesLocked() map[Capability]bool {
	caps := make(map[Capability]bool, 16)
	for k, v := range c.seeded {
		if v {
			caps[k] = true
		}
	}
	set := func(cap Capability, ok bool) {
		if ok {
			caps[cap] = true
		}
	}
	set(CapEndpointsKnown, len(c.endpoints) > 0)
	set(CapLiveEndpoints, len(c.liveEndpoints) > 0)
	set(CapParamsKnown, len(c.params) > 0)
	set(CapPortsKnown, len(c.ports) > 0)
	set(CapSubdomainsKnown, len(c.subdomains) > 0)
	set(CapTechStack, len(c.techStack) > 0)
	set(CapWordPress, c.wordpress)
	set(CapTLSEvaluated, c.tlsEvaluated)
	set(CapCrawlerCompleted, c.crawlerCompleted)
	set(CapReachable, c.reachable)
	set(CapDNSResolved, c.dnsResolved)
	for _, ps := range c.params {
		set(CapReflectable, ps.reflectable)
		set(CapSQLInjectable, ps.sqlCandidate)
		set(CapCmdInjectable, ps.cmdCandidate)
	}
	return caps
}

// Snapshot is a copy-on-read view handed to the decision layer and the
// report writer. It is safe to hold across a tool run.
type Snapshot struct {
	Capabilities     map[Capability]bool  `json:"-"`
	Endpoints        []string             `json:"endpoints"`
	LiveEndpoints    []string             `json:"live_endpoints"`
	Parameters       map[string]ParamMeta `json:"parameters"`
	Ports            []uint16             `json:"ports"`
	Subdomains       []string             `json:"subdomains"`
	TechStack        []string             `json:"tech_stack"`
	ResolvedIPs      []string             `json:"resolved_ips"`
	TLSEvaluated     bool                 `json:"tls_evaluated"`
	CrawlerCompleted bool                 `json:"crawler_completed"`
}

// Has reports whether the snapshot carries the capability.
func (s Snapshot) Has(cap Capability) bool { return s.Capabilities[cap] }

// Snapshot copies the cache state out under the read lock.
func (c *Cache) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := Snapshot{
		Capabilities:     c.capabilitiesLocked(),
		Endpoints:        sortedKeys(c.endpoints),
		LiveEndpoints:    sortedKeys(c.liveEndpoints),
		Parameters:       make(map[string]ParamMeta, len(c.params)),
		Subdomains:       sortedKeys(c.subdomains),
		TechStack:        sortedKeys(c.techStack),
		ResolvedIPs:      sortedKeys(c.resolvedIPs),
		TLSEvaluated:     c.tlsEvaluated,
		CrawlerCompleted: c.crawlerCompleted,
	}
	for p := range c.ports {
		snap.Ports = append(snap.Ports, p)
	}
	sort.Slice(snap.Ports, func(i, j int) bool { return snap.Ports[i] < snap.Ports[j] })
	for name, ps := range c.params {
		meta := ParamMeta{
			Endpoints:    sortedKeys(ps.endpoints),
			Reflectable:  ps.reflectable,
			SQLCandidate: ps.sqlCandidate,
			CmdCandidate: ps.cmdCandidate,
		}
		for src := range ps.sources {
			meta.Sources = append(meta.Sources, string(src))
		}
		sort.Strings(meta.Sources)
		snap.Parameters[name] = meta
	}
	return snap
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
