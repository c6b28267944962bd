package cache

import (
	"sync"
	"testing"
)

func TestCapabilities_EmptyCache(t *testing.T) {
	c := New(CapWebTarget, CapHTTPS)
	caps := c.Capabilities()
	if !caps[CapWebTarget] || !caps[CapHTTPS] {
		t.Error("seeded capabilities missing")
	}
	for _, cap := range []Capability{CapEndpointsKnown, CapParamsKnown, CapPortsKnown, CapCrawlerCompleted} {
		if caps[cap] {
			t.Errorf("empty cache should not have %s", cap)
		}
	}
}

func TestAddLiveEndpoint_AlsoAddsEndpoint(t *testing.T) {
	c := New()
	c.AddLiveEndpoint("https://example.com/admin/")

	snap := c.Snapshot()
	if len(snap.Endpoints) != 1 || len(snap.LiveEndpoints) != 1 {
		t.Fatalf("endpoints = %v, live = %v", snap.Endpoints, snap.LiveEndpoints)
	}
	if snap.Endpoints[0] != "https://example.com/admin" {
		t.Errorf("endpoint = %q, want normalized form", snap.Endpoints[0])
	}
	if !snap.Has(CapEndpointsKnown) || !snap.Has(CapLiveEndpoints) {
		t.Error("endpoint capabilities not derived")
	}
}

func TestAddParam_DerivesInjectionCapabilities(t *testing.T) {
	c := New()
	c.AddParam("q", SourceURL, "https://example.com/search", "GET", ParamHints{Reflectable: true})
	c.AddParam("id", SourceCrawled, "https://example.com/item", "GET", ParamHints{SQLCandidate: true})
	c.AddParam("cmd", SourceFormInput, "https://example.com/run", "POST", ParamHints{CmdCandidate: true})

	caps := c.Capabilities()
	for _, cap := range []Capability{CapParamsKnown, CapReflectable, CapSQLInjectable, CapCmdInjectable, CapEndpointsKnown} {
		if !caps[cap] {
			t.Errorf("missing capability %s", cap)
		}
	}
}

func TestAddParam_MergesSources(t *testing.T) {
	c := New()
	c.AddParam("q", SourceURL, "https://example.com/search", "GET", ParamHints{})
	c.AddParam("q", SourceFormInput, "https://example.com/search", "POST", ParamHints{Reflectable: true})

	snap := c.Snapshot()
	meta := snap.Parameters["q"]
	if len(meta.Sources) != 2 {
		t.Errorf("sources = %v, want 2", meta.Sources)
	}
	if !meta.Reflectable {
		t.Error("reflectable hint should stick once set")
	}
}

func TestAddReflection_UpgradesParam(t *testing.T) {
	c := New()
	c.AddParam("q", SourceURL, "https://example.com/search", "GET", ParamHints{})
	c.AddReflection("q")

	if !c.Capabilities()[CapReflectable] {
		t.Error("reflection should mark the param reflectable")
	}
}

func TestAddTech_WordPressDetection(t *testing.T) {
	c := New()
	c.AddTech("nginx/1.24")
	if c.Capabilities()[CapWordPress] {
		t.Error("nginx is not wordpress")
	}
	c.AddTech("WordPress 6.4.2")
	caps := c.Capabilities()
	if !caps[CapWordPress] || !caps[CapTechStack] {
		t.Error("wordpress tech should set both capabilities")
	}
}

func TestMarks(t *testing.T) {
	c := New()
	c.MarkTLSEvaluated()
	c.MarkCrawlerCompleted()
	c.MarkDNSResolved()
	c.AddPort(443)

	caps := c.Capabilities()
	for _, cap := range []Capability{CapTLSEvaluated, CapCrawlerCompleted, CapDNSResolved, CapPortsKnown, CapReachable} {
		if !caps[cap] {
			t.Errorf("missing %s", cap)
		}
	}
}

func TestSnapshot_IsACopy(t *testing.T) {
	c := New()
	c.AddEndpoint("https://example.com/a")
	snap := c.Snapshot()
	c.AddEndpoint("https://example.com/b")

	if len(snap.Endpoints) != 1 {
		t.Errorf("snapshot mutated after the fact: %v", snap.Endpoints)
	}
}

func TestConcurrentMutation(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.AddPort(uint16(1000 + n*100 + j))
				c.AddEndpoint("https://example.com/p")
				_ = c.Capabilities()
			}
		}(i)
	}
	wg.Wait()

	snap := c.Snapshot()
	if len(snap.Ports) != 800 {
		t.Errorf("ports = %d, want 800", len(snap.Ports))
	}
}

func TestGraphQueries(t *testing.T) {
	c := New()
	c.AddParam("q", SourceURL, "https://example.com/search", "GET", ParamHints{Reflectable: true})
	c.AddParam("id", SourceCrawled, "https://example.com/item", "GET", ParamHints{SQLCandidate: true})
	c.AddParam("name", SourceFormInput, "https://example.com/contact", "POST", ParamHints{})

	refl := c.ReflectableEndpoints()
	if len(refl) != 1 || refl[0] != "https://example.com/search" {
		t.Errorf("reflectable = %v", refl)
	}
	sqli := c.SQLInjectableEndpoints()
	if len(sqli) != 1 || sqli[0] != "https://example.com/item" {
		t.Errorf("sql-injectable = %v", sqli)
	}
	forms := c.FormEndpoints()
	if len(forms) != 1 || forms[0] != "https://example.com/contact" {
		t.Errorf("forms = %v", forms)
	}
}

func TestGraph_DuplicateEdgesCollapse(t *testing.T) {
	c := New()
	for i := 0; i < 3; i++ {
		c.AddParam("q", SourceURL, "https://example.com/search", "GET", ParamHints{})
	}
	edges := c.Graph().Edges("https://example.com/search")
	if len(edges) != 1 {
		t.Errorf("edges = %d, want 1", len(edges))
	}
}

func TestNormalizeEndpoint(t *testing.T) {
	cases := []struct{ in, want string }{
		{"HTTPS://Example.COM/Path/?q=1", "https://example.com/Path"},
		{"https://example.com/", "https://example.com/"},
		{"https://example.com", "https://example.com/"},
		{"/admin/", "/admin"},
		{"/", "/"},
		{"https://example.com/a#frag", "https://example.com/a"},
	}
	for _, c := range cases {
		if got := NormalizeEndpoint(c.in); got != c.want {
			t.Errorf("NormalizeEndpoint(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
