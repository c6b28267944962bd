package plan

import (
	"testing"

	"github.com/ppiankov/vulnwatch/internal/cache"
	"github.com/ppiankov/vulnwatch/internal/target"
)

func profileFor(t *testing.T, raw string) *target.Profile {
	t.Helper()
	p, err := target.FromInput(raw, "")
	if err != nil {
		t.Fatalf("FromInput(%q) failed: %v", raw, err)
	}
	return p
}

func names(items []Item) []string {
	out := make([]string, len(items))
	for i := range items {
		out[i] = items[i].Name
	}
	return out
}

func contains(items []Item, name string) bool {
	for i := range items {
		if items[i].Name == name {
			return true
		}
	}
	return false
}

func TestRootDomainPath(t *testing.T) {
	items := ForProfile(profileFor(t, "example.com"))
	for _, want := range []string{"dig-records", "subfinder", "nmap-syn", "nmap-version", "nmap-vuln", "katana", "gobuster", "nuclei", "dalfox", "xsstrike", "sqlmap", "commix"} {
		if !contains(items, want) {
			t.Errorf("root path missing %s (have %v)", want, names(items))
		}
	}
	if contains(items, "dig-verify") {
		t.Error("root path should use the consolidated DNS tool, not dig-verify")
	}
}

func TestSubdomainPath(t *testing.T) {
	items := ForProfile(profileFor(t, "api.example.com"))
	if contains(items, "subfinder") {
		t.Error("subdomain path must not enumerate subdomains")
	}
	if contains(items, "dig-records") {
		t.Error("subdomain path uses the lightweight DNS verify")
	}
	if !contains(items, "dig-verify") {
		t.Error("subdomain path missing dig-verify")
	}
}

func TestIPAddressPath(t *testing.T) {
	items := ForProfile(profileFor(t, "8.8.8.8"))
	for i := range items {
		if items[i].Category == CategoryDNS || items[i].Category == CategorySubdomainEnum {
			t.Errorf("ip path must not contain %s (%s)", items[i].Name, items[i].Category)
		}
	}
	if !contains(items, "nmap-syn") || !contains(items, "testssl") {
		t.Errorf("ip path missing port scan or TLS probe: %v", names(items))
	}
}

func TestStagesAreOrdered(t *testing.T) {
	items := ForProfile(profileFor(t, "example.com"))
	crawlerStage, payloadStage := -1, -1
	for i := range items {
		if items[i].Name == "katana" {
			crawlerStage = items[i].Stage
		}
		if items[i].IsPayload() && payloadStage < 0 {
			payloadStage = items[i].Stage
		}
	}
	if crawlerStage < 0 || payloadStage < 0 {
		t.Fatal("plan missing crawler or payload tools")
	}
	if crawlerStage >= payloadStage {
		t.Errorf("crawler stage %d must precede payload stage %d", crawlerStage, payloadStage)
	}

	last := -1
	for i := range items {
		if items[i].Stage < last {
			t.Fatalf("stages out of order at %s", items[i].Name)
		}
		last = items[i].Stage
	}
}

func TestNucleiRequiresOnlyWebTarget(t *testing.T) {
	spec, ok := Lookup("nuclei")
	if !ok {
		t.Fatal("nuclei not in catalog")
	}
	if len(spec.Requires) != 1 || spec.Requires[0] != cache.CapWebTarget {
		t.Errorf("nuclei.requires = %v, want exactly {web_target}", spec.Requires)
	}
}

func TestCatalogMetadataComplete(t *testing.T) {
	for _, s := range Catalog() {
		if s.Timeout <= 0 {
			t.Errorf("%s has no worst-case timeout", s.Name)
		}
		if s.Command == "" {
			t.Errorf("%s has no command template", s.Name)
		}
		if s.Priority == 0 {
			t.Errorf("%s has no priority", s.Name)
		}
	}
}

func TestPayloadTools(t *testing.T) {
	payload := map[string]bool{"dalfox": true, "xsstrike": true, "sqlmap": true, "commix": true}
	for _, s := range Catalog() {
		if got := s.IsPayload(); got != payload[s.Name] {
			t.Errorf("%s IsPayload = %v, want %v", s.Name, got, payload[s.Name])
		}
	}
}
