package cache

import (
	"net/url"
	"strings"
)

// NormalizeEndpoint canonicalizes an endpoint for dedup and graph keys:
// query string stripped, trailing slash removed (except root), scheme
// and host lowercased. The path stays case-sensitive.
func NormalizeEndpoint(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	u, err := url.Parse(raw)
	if err != nil {
		// Not parseable as a URL; treat as a bare path.
		return trimPath(raw)
	}

	u.RawQuery = ""
	u.Fragment = ""
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Path = trimPath(u.Path)
	if u.Host != "" && u.Path == "" {
		u.Path = "/"
	}
	return u.String()
}

func trimPath(p string) string {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
		if p == "" {
			p = "/"
		}
	}
	return p
}
