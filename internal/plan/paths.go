package plan

import "github.com/ppiankov/vulnwatch/internal/target"

// Item is one step of the ordered execution plan. Items sharing a
// stage have no ordering constraint between them and may run
// concurrently; stages run in order.
type Item struct {
	Spec
	Stage int `json:"stage"`
}

// ForProfile returns the ordered plan for the profile's target type.
// Three disjoint paths: root-domain, subdomain, ip-address.
func ForProfile(p *target.Profile) []Item {
	switch p.Type {
	case target.TypeRootDomain:
		return rootDomainPath()
	case target.TypeSubdomain:
		return subdomainPath()
	case target.TypeIPAddress:
		return ipAddressPath()
	default:
		return nil
	}
}

func rootDomainPath() []Item {
	return build([]stage{
		{"dig-records", "subfinder"},
		{"nmap-syn", "nmap-version", "nmap-vuln"},
		{"testssl", "whatweb"},
		{"katana"},
		{"gobuster", "nuclei", "nikto", "wpscan"},
		{"dalfox", "xsstrike", "sqlmap", "commix"},
	})
}

func subdomainPath() []Item {
	return build([]stage{
		{"dig-verify"},
		{"nmap-syn", "nmap-version", "nmap-vuln"},
		{"testssl", "whatweb"},
		{"katana"},
		{"gobuster", "nuclei", "nikto", "wpscan"},
		{"dalfox", "xsstrike", "sqlmap", "commix"},
	})
}

// ipAddressPath carries no DNS and no subdomain enumeration. Web tools
// stay in the plan; the ledger and decision layer sort out whether the
// IP is actually serving web.
func ipAddressPath() []Item {
	return build([]stage{
		{"nmap-syn", "nmap-version", "nmap-vuln"},
		{"testssl", "whatweb"},
		{"katana"},
		{"gobuster", "nuclei", "nikto", "wpscan"},
		{"dalfox", "xsstrike", "sqlmap", "commix"},
	})
}

type stage []string

func build(stages []stage) []Item {
	var items []Item
	for i, st := range stages {
		for _, name := range st {
			spec, ok := Lookup(name)
			if !ok {
				// Catalog and paths are compiled together; a miss is
				// a programming error worth failing loudly on.
				panic("plan: unknown tool " + name)
			}
			items = append(items, Item{Spec: spec, Stage: i})
		}
	}
	return items
}
