package ledger

import (
	"errors"
	"reflect"
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

func TestBuild_IPDeniesDNS(t *testing.T) {
	l := Build(profileFor(t, "8.8.8.8"))
	for _, tool := range []string{"dig-records", "dig-verify"} {
		d := l.Lookup(tool)
		if d.Outcome != Deny {
			t.Errorf("%s outcome = %s, want DENY", tool, d.Outcome)
		}
		if d.Reason != "IP already resolved" {
			t.Errorf("%s reason = %q", tool, d.Reason)
		}
	}
	if l.Lookup("subfinder").Outcome != Deny {
		t.Error("subfinder must be denied for IP targets")
	}
	if l.Lookup("nmap-syn").Outcome != Allow {
		t.Error("nmap must be allowed for IP targets")
	}
}

func TestBuild_SubdomainDeniesEnumeration(t *testing.T) {
	l := Build(profileFor(t, "api.example.com"))
	d := l.Lookup("subfinder")
	if d.Outcome != Deny {
		t.Fatalf("subfinder outcome = %s, want DENY", d.Outcome)
	}
	if d.Reason != "enumeration applies to root domain only" {
		t.Errorf("reason = %q", d.Reason)
	}
	if l.Lookup("dig-verify").Outcome != Allow {
		t.Error("dig-verify must stay allowed for subdomains")
	}
}

func TestBuild_NonWebDeniesWebTools(t *testing.T) {
	l := Build(profileFor(t, "10.0.0.5:6379"))
	for _, tool := range []string{"gobuster", "dalfox", "sqlmap", "commix", "nuclei", "nikto", "whatweb", "katana", "wpscan"} {
		if d := l.Lookup(tool); d.Outcome != Deny {
			t.Errorf("%s outcome = %s, want DENY for non-web target", tool, d.Outcome)
		}
	}
	if l.Lookup("nmap-syn").Outcome != Allow {
		t.Error("port scan is not a web tool")
	}
}

func TestBuild_WordPressGatedByCache(t *testing.T) {
	l := Build(profileFor(t, "example.com"))
	d := l.Lookup("wpscan")
	if d.Outcome != Allow {
		t.Fatalf("wpscan must be ALLOWed in policy for web targets, got %s", d.Outcome)
	}
	found := false
	for _, c := range d.Requires {
		if c == cache.CapWordPress {
			found = true
		}
	}
	if !found {
		t.Error("wpscan.requires must carry wordpress_detected")
	}
}

func TestBuild_IPTLSRequiresPorts(t *testing.T) {
	l := Build(profileFor(t, "8.8.8.8"))
	d := l.Lookup("testssl")
	found := false
	for _, c := range d.Requires {
		if c == cache.CapPortsKnown {
			found = true
		}
	}
	if !found {
		t.Errorf("testssl.requires for IP targets = %v, want ports_known included", d.Requires)
	}

	domain := Build(profileFor(t, "example.com")).Lookup("testssl")
	for _, c := range domain.Requires {
		if c == cache.CapPortsKnown {
			t.Error("domain targets must not hard-require ports_known for TLS")
		}
	}
}

func TestBuild_Deterministic(t *testing.T) {
	p := profileFor(t, "example.com")
	a, b := Build(p), Build(p)
	if !reflect.DeepEqual(a.Entries(), b.Entries()) {
		t.Error("same profile must produce an identical ledger")
	}
}

func TestLookup_AbsentIsImplicitDeny(t *testing.T) {
	l := Build(profileFor(t, "example.com"))
	d := l.Lookup("metasploit")
	if d.Outcome != Deny {
		t.Errorf("absent tool outcome = %s, want DENY", d.Outcome)
	}
}

func TestSet_AfterFinalizeFails(t *testing.T) {
	l := Build(profileFor(t, "example.com"))
	l.Finalize()
	err := l.Set("nuclei", Decision{Outcome: Deny})
	if !errors.Is(err, ErrFinalized) {
		t.Errorf("err = %v, want ErrFinalized", err)
	}
	if l.Lookup("nuclei").Outcome != Allow {
		t.Error("failed Set must not change the entry")
	}
}

func TestBuild_MetadataPresentOnDenied(t *testing.T) {
	l := Build(profileFor(t, "8.8.8.8"))
	d := l.Lookup("dig-records")
	if d.Timeout <= 0 || d.Priority == 0 {
		t.Error("denied entries still carry timeout and priority metadata")
	}
}
