// Package target builds the immutable profile of what is being scanned.
package target

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// ErrInvalidInput is returned when the raw target cannot be classified.
var ErrInvalidInput = errors.New("invalid target input")

// Type classifies the target.
type Type string

const (
	TypeRootDomain Type = "ROOT_DOMAIN"
	TypeSubdomain  Type = "SUBDOMAIN"
	TypeIPAddress  Type = "IP_ADDRESS"
)

// Ports that mark a target as a web target even without an explicit scheme.
var webPorts = map[uint16]bool{
	80: true, 443: true, 3000: true, 8000: true,
	8080: true, 8443: true, 8888: true,
}

// Known ccTLD second-level suffixes for the fallback when the public
// suffix list cannot produce an eTLD+1.
var ccSecondLevel = map[string]bool{
	"co.uk": true, "org.uk": true, "ac.uk": true, "gov.uk": true,
	"com.au": true, "net.au": true, "org.au": true,
	"co.jp": true, "co.nz": true, "co.za": true, "com.br": true,
	"com.cn": true, "com.mx": true, "co.in": true, "co.kr": true,
}

// Profile is the authoritative target metadata. It is frozen after
// FromInput returns; nothing in the engine mutates it.
type Profile struct {
	OriginalInput string   `json:"original_input"`
	Host          string   `json:"host"`
	Scheme        string   `json:"scheme"`
	Port          uint16   `json:"port"`
	Type          Type     `json:"target_type"`
	BaseDomain    string   `json:"base_domain,omitempty"`
	IsWebTarget   bool     `json:"is_web_target"`
	IsHTTPS       bool     `json:"is_https"`
	ResolvedIPs   []string `json:"resolved_ips,omitempty"`
}

// Option customizes profile construction.
type Option func(*Profile)

// WithResolvedIPs records IPs obtained by an initial probe. The profile
// itself never performs DNS.
func WithResolvedIPs(ips []string) Option {
	return func(p *Profile) {
		p.ResolvedIPs = append([]string(nil), ips...)
	}
}

// FromInput classifies raw user input into a frozen profile.
// schemeHint applies when the input carries no scheme; empty defaults
// to https.
func FromInput(raw, schemeHint string, opts ...Option) (*Profile, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty target", ErrInvalidInput)
	}
	if strings.ContainsAny(trimmed, " \t\n") {
		return nil, fmt.Errorf("%w: target contains whitespace", ErrInvalidInput)
	}

	scheme := ""
	rest := trimmed
	if i := strings.Index(trimmed, "://"); i >= 0 {
		scheme = strings.ToLower(trimmed[:i])
		rest = trimmed[i+3:]
		if scheme != "http" && scheme != "https" {
			return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidInput, scheme)
		}
	}

	// Strip any path component; only host[:port] matters.
	if i := strings.IndexAny(rest, "/?#"); i >= 0 {
		rest = rest[:i]
	}
	if rest == "" {
		return nil, fmt.Errorf("%w: empty host", ErrInvalidInput)
	}

	host, explicitPort, err := splitHostPort(rest)
	if err != nil {
		return nil, err
	}

	schemeGiven := scheme != ""
	if scheme == "" {
		scheme = strings.ToLower(schemeHint)
	}
	if scheme == "" {
		scheme = "https"
	}
	if scheme != "http" && scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidInput, scheme)
	}

	port := explicitPort
	if port == 0 {
		if scheme == "https" {
			port = 443
		} else {
			port = 80
		}
	}

	p := &Profile{
		OriginalInput: raw,
		Host:          strings.ToLower(host),
		Scheme:        scheme,
		Port:          port,
		IsHTTPS:       scheme == "https",
	}

	if ip := net.ParseIP(host); ip != nil {
		p.Type = TypeIPAddress
	} else {
		if !validHostname(p.Host) {
			return nil, fmt.Errorf("%w: %q is not a valid hostname", ErrInvalidInput, host)
		}
		p.Type, p.BaseDomain = classifyDomain(p.Host)
	}

	// Everything is a web target by default; only an explicit non-web
	// port with no scheme opts out.
	p.IsWebTarget = schemeGiven || explicitPort == 0 || webPorts[explicitPort]

	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// BaseURL returns scheme://host[:port], omitting default ports.
func (p *Profile) BaseURL() string {
	u := url.URL{Scheme: p.Scheme, Host: p.Host}
	if (p.Scheme == "https" && p.Port != 443) || (p.Scheme == "http" && p.Port != 80) {
		u.Host = net.JoinHostPort(p.Host, strconv.Itoa(int(p.Port)))
	}
	return u.String()
}

func splitHostPort(s string) (string, uint16, error) {
	// Bracketed IPv6 with optional port.
	if strings.HasPrefix(s, "[") {
		host, portStr, err := net.SplitHostPort(s)
		if err != nil {
			host = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
			if net.ParseIP(host) == nil {
				return "", 0, fmt.Errorf("%w: malformed IPv6 literal %q", ErrInvalidInput, s)
			}
			return host, 0, nil
		}
		port, perr := parsePort(portStr)
		if perr != nil {
			return "", 0, perr
		}
		return host, port, nil
	}
	// Bare IPv6 literal (multiple colons, no port).
	if strings.Count(s, ":") > 1 {
		if net.ParseIP(s) == nil {
			return "", 0, fmt.Errorf("%w: malformed IPv6 literal %q", ErrInvalidInput, s)
		}
		return s, 0, nil
	}
	if host, portStr, ok := strings.Cut(s, ":"); ok {
		if host == "" {
			return "", 0, fmt.Errorf("%w: empty host", ErrInvalidInput)
		}
		p, err := parsePort(portStr)
		if err != nil {
			return "", 0, err
		}
		return host, p, nil
	}
	return s, 0, nil
}

func parsePort(s string) (uint16, error) {
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("%w: invalid port %q", ErrInvalidInput, s)
	}
	return uint16(n), nil
}

// classifyDomain decides ROOT_DOMAIN vs SUBDOMAIN and computes the base
// domain. The public suffix list is authoritative; the ccTLD table is
// the fallback for names the list cannot split.
func classifyDomain(host string) (Type, string) {
	if base, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		if base == host {
			return TypeRootDomain, host
		}
		return TypeSubdomain, base
	}

	labels := strings.Split(host, ".")
	if len(labels) == 2 {
		return TypeRootDomain, host
	}
	// Known ccTLD second level: base is the last three labels.
	if len(labels) >= 3 {
		tail2 := strings.Join(labels[len(labels)-2:], ".")
		if ccSecondLevel[tail2] {
			base := strings.Join(labels[len(labels)-3:], ".")
			if base == host {
				return TypeRootDomain, host
			}
			return TypeSubdomain, base
		}
	}
	return TypeSubdomain, strings.Join(labels[len(labels)-2:], ".")
}

func validHostname(host string) bool {
	if len(host) == 0 || len(host) > 253 || !strings.Contains(host, ".") {
		return false
	}
	for _, label := range strings.Split(host, ".") {
		if label == "" || len(label) > 63 {
			return false
		}
		for i, r := range label {
			ok := r == '-' || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
			if !ok || (r == '-' && (i == 0 || i == len(label)-1)) {
				return false
			}
		}
	}
	return true
}
