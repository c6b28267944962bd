package findings

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/ppiankov/vulnwatch/internal/cache"
)

// Tool reliability weights; each contributes weight×40 to confidence.
var toolWeight = map[string]float64{
	"sqlmap":       0.95,
	"nuclei":       0.90,
	"testssl":      0.90,
	"nmap-vuln":    0.85,
	"dalfox":       0.85,
	"commix":       0.80,
	"katana":       0.80,
	"xsstrike":     0.75,
	"wpscan":       0.75,
	"nikto":        0.70,
	"gobuster":     0.70,
	"whatweb":      0.65,
	"nmap-syn":     0.65,
	"nmap-version": 0.65,
}

const defaultWeight = 0.65

type dedupKey struct {
	endpoint string
	vulnType VulnType
}

// Registry is the authoritative finding set. Merge is associative and
// order-independent, so the final set is deterministic regardless of
// tool completion order.
type Registry struct {
	mu       sync.Mutex
	items    map[dedupKey]*Finding
	bases    map[dedupKey]int // bonus-free confidence, max across inputs
	verifier func(endpoint string) bool
	unmapped int
	seq      int
}

// Option configures a Registry.
type Option func(*Registry)

// WithCrawlerVerifier supplies the "did the crawler see this endpoint"
// check used by the context bonus.
func WithCrawlerVerifier(fn func(endpoint string) bool) Option {
	return func(r *Registry) { r.verifier = fn }
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		items: make(map[dedupKey]*Finding),
		bases: make(map[dedupKey]int),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Add normalizes, maps, scores, and merges one finding.
func (r *Registry) Add(f Finding) {
	f.Endpoint = cache.NormalizeEndpoint(f.Endpoint)
	f.OWASP = MapOWASP(f.Type)
	if f.OWASP == Unmapped {
		slog.Warn("finding type not in canonical vocabulary", "type", f.Type, "tool", f.Tool)
	}
	if len(f.Evidence) > MaxEvidence {
		f.Evidence = f.Evidence[:MaxEvidence]
	}
	if len(f.CorroboratingTools) == 0 && f.Tool != "" {
		f.CorroboratingTools = []string{f.Tool}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.verifier != nil {
		f.CrawlerVerified = r.verifier(f.Endpoint)
	}
	f.Confidence = r.baseConfidence(&f)
	if f.OWASP == Unmapped {
		r.unmapped++
	}

	key := dedupKey{endpoint: f.Endpoint, vulnType: f.Type}
	existing, ok := r.items[key]
	if !ok {
		r.seq++
		f.ID = fmt.Sprintf("VW-%04d", r.seq)
		r.items[key] = &f
		r.bases[key] = f.Confidence
		return
	}
	merge(existing, &f)

	// The bonus is recomputed from the bonus-free base on every merge
	// so it never compounds: n tools always score base + 10(n-1),
	// capped at +30.
	if f.Confidence > r.bases[key] {
		r.bases[key] = f.Confidence
	}
	bonus := 10 * (len(existing.CorroboratingTools) - 1)
	if bonus > 30 {
		bonus = 30
	}
	existing.Confidence = clamp(r.bases[key] + bonus)
}

// baseConfidence composes tool weight, evidence strength, and crawler
// context into a 0..100 score. Corroboration is added at merge time.
func (r *Registry) baseConfidence(f *Finding) int {
	w, ok := toolWeight[f.Tool]
	if !ok {
		w = defaultWeight
	}
	score := int(w * 40)

	// Evidence strength, up to 40.
	strength := 0
	if f.Payload != "" {
		strength += 20
	}
	if f.Evidence != "" {
		strength += 10
		if len(f.Evidence) >= 80 {
			strength += 10
		}
	}
	if strength > 40 {
		strength = 40
	}
	score += strength

	if f.CrawlerVerified {
		score += 10
	} else if f.Endpoint != "" {
		score -= 10
	}

	return clamp(score)
}

// merge folds an incoming finding into the stored one: highest
// severity, union of tools, longest evidence. Confidence is owned by
// Add, which recomputes it from the stored base.
func merge(dst, src *Finding) {
	if src.Severity.Rank() > dst.Severity.Rank() {
		dst.Severity = src.Severity
	}
	if len(src.Evidence) > len(dst.Evidence) {
		dst.Evidence = src.Evidence
	}
	if src.Payload != "" && dst.Payload == "" {
		dst.Payload = src.Payload
	}
	if src.Parameter != "" && dst.Parameter == "" {
		dst.Parameter = src.Parameter
	}
	dst.CrawlerVerified = dst.CrawlerVerified || src.CrawlerVerified

	tools := make(map[string]struct{}, len(dst.CorroboratingTools)+1)
	for _, t := range dst.CorroboratingTools {
		tools[t] = struct{}{}
	}
	for _, t := range src.CorroboratingTools {
		tools[t] = struct{}{}
	}
	dst.CorroboratingTools = dst.CorroboratingTools[:0]
	for t := range tools {
		dst.CorroboratingTools = append(dst.CorroboratingTools, t)
	}
	sort.Strings(dst.CorroboratingTools)
}

func clamp(n int) int {
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}

// List returns the merged findings sorted by severity then confidence,
// both descending.
func (r *Registry) List() []Finding {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Finding, 0, len(r.items))
	for _, f := range r.items {
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Severity.Rank() != out[j].Severity.Rank() {
			return out[i].Severity.Rank() > out[j].Severity.Rank()
		}
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// CountByTool returns how many merged findings name the tool either as
// the reporter or a corroborator.
func (r *Registry) CountByTool(tool string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, f := range r.items {
		for _, t := range f.CorroboratingTools {
			if t == tool {
				n++
				break
			}
		}
	}
	return n
}

// Corroborated returns how many findings more than one tool agrees on.
func (r *Registry) Corroborated() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, f := range r.items {
		if len(f.CorroboratingTools) > 1 {
			n++
		}
	}
	return n
}

// HighConfidence returns how many findings score in the High band.
func (r *Registry) HighConfidence() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, f := range r.items {
		if f.Confidence >= 80 {
			n++
		}
	}
	return n
}
