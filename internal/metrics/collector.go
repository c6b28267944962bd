// Package metrics provides Prometheus instrumentation for vulnwatch.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ppiankov/vulnwatch/internal/decision"
	"github.com/ppiankov/vulnwatch/internal/findings"
	"github.com/ppiankov/vulnwatch/internal/scan"
)

// Collector translates scan progress and the final report into
// Prometheus values.
type Collector struct {
	toolRuns       *prometheus.CounterVec
	toolDuration   *prometheus.GaugeVec
	findingsTotal  *prometheus.GaugeVec
	corroborated   prometheus.Gauge
	highConfidence prometheus.Gauge
	scanDuration   prometheus.Gauge
	mu             sync.Mutex
}

// NewCollector creates and registers metrics on the given registerer.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		toolRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vulnwatch",
			Name:      "tool_runs_total",
			Help:      "Tool dispatch outcomes by verdict and outcome class.",
		}, []string{"tool", "category", "verdict", "outcome"}),

		toolDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "vulnwatch",
			Name:      "tool_duration_seconds",
			Help:      "Wall-clock duration of the last run per tool.",
		}, []string{"tool"}),

		findingsTotal: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "vulnwatch",
			Name:      "findings_total",
			Help:      "Total number of merged findings by severity.",
		}, []string{"severity"}),

		corroborated: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vulnwatch",
			Name:      "findings_corroborated",
			Help:      "Findings confirmed by more than one tool.",
		}),

		highConfidence: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vulnwatch",
			Name:      "findings_high_confidence",
			Help:      "Findings scoring in the High confidence band.",
		}),

		scanDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vulnwatch",
			Name:      "scan_duration_seconds",
			Help:      "Duration of the scan in seconds.",
		}),
	}

	reg.MustRegister(c.toolRuns)
	reg.MustRegister(c.toolDuration)
	reg.MustRegister(c.findingsTotal)
	reg.MustRegister(c.corroborated)
	reg.MustRegister(c.highConfidence)
	reg.MustRegister(c.scanDuration)

	return c
}

// ObserveOutcome records one tool outcome as it happens; safe for
// concurrent use from the engine's workers.
func (c *Collector) ObserveOutcome(o scan.ToolOutcome) {
	labels := prometheus.Labels{
		"tool":     o.Tool,
		"category": string(o.Category),
		"verdict":  string(o.Verdict),
		"outcome":  string(o.Class),
	}
	c.toolRuns.With(labels).Inc()
	if o.Verdict == decision.Allow {
		c.toolDuration.With(prometheus.Labels{"tool": o.Tool}).Set(float64(o.DurationMS) / 1000)
	}
}

// Update replaces the aggregate metric values from the final report.
func (c *Collector) Update(rep *scan.Report, scanDuration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.findingsTotal.Reset()
	c.scanDuration.Set(scanDuration.Seconds())

	counts := map[findings.Severity]int{
		findings.SeverityCritical: 0,
		findings.SeverityHigh:     0,
		findings.SeverityMedium:   0,
		findings.SeverityLow:      0,
		findings.SeverityInfo:     0,
	}
	for i := range rep.Findings.Items {
		counts[rep.Findings.Items[i].Severity]++
	}
	for sev, count := range counts {
		c.findingsTotal.With(prometheus.Labels{"severity": string(sev)}).Set(float64(count))
	}

	c.corroborated.Set(float64(rep.Intel.Corroborated))
	c.highConfidence.Set(float64(rep.Intel.HighConfidence))
}
