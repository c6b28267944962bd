// Package findings normalizes, OWASP-maps, deduplicates, and scores
// every finding the parsers emit.
package findings

import "time"

// Severity classifies how urgent a finding is.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
	SeverityInfo     Severity = "INFO"
)

// Rank orders severities for merge and exit-code logic.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// VulnType is the canonical vulnerability vocabulary. Parsers must map
// into it; anything else lands in OWASP UNMAPPED.
type VulnType string

const (
	VulnXSS               VulnType = "xss"
	VulnSQLInjection      VulnType = "sql_injection"
	VulnCmdInjection      VulnType = "cmd_injection"
	VulnWeakTLS           VulnType = "weak_tls"
	VulnInfoDisclosure    VulnType = "info_disclosure"
	VulnOpenRedirect      VulnType = "open_redirect"
	VulnSSRF              VulnType = "ssrf"
	VulnPathTraversal     VulnType = "path_traversal"
	VulnOutdatedComponent VulnType = "outdated_component"
	VulnExposedPanel      VulnType = "exposed_panel"
	VulnMisconfiguration  VulnType = "misconfiguration"
	VulnDefaultCreds      VulnType = "default_credentials"
	VulnCSRF              VulnType = "csrf"
)

// MaxEvidence bounds the evidence blob carried per finding.
const MaxEvidence = 4096

// Finding is one normalized vulnerability observation.
type Finding struct {
	ID                 string    `json:"id"`
	Type               VulnType  `json:"vulnerability_type"`
	Endpoint           string    `json:"endpoint"`
	Parameter          string    `json:"parameter,omitempty"`
	Method             string    `json:"method,omitempty"`
	Payload            string    `json:"payload,omitempty"`
	Evidence           string    `json:"evidence"`
	Severity           Severity  `json:"severity"`
	OWASP              Category  `json:"owasp_category"`
	Confidence         int       `json:"confidence"`
	Tool               string    `json:"tool"`
	CorroboratingTools []string  `json:"corroborating_tools"`
	CrawlerVerified    bool      `json:"crawler_verified"`
	CreatedAt          time.Time `json:"created_at"`
}

// ConfidenceLabel is the human band for a confidence score.
func ConfidenceLabel(c int) string {
	switch {
	case c >= 80:
		return "High"
	case c >= 60:
		return "Medium"
	case c >= 40:
		return "Low"
	default:
		return "Very-Low"
	}
}
