package findings

// Category is an OWASP Top 10 (2021) bucket.
type Category string

const (
	A01      Category = "A01" // Broken Access Control
	A02      Category = "A02" // Cryptographic Failures
	A03      Category = "A03" // Injection
	A04      Category = "A04" // Insecure Design
	A05      Category = "A05" // Security Misconfiguration
	A06      Category = "A06" // Vulnerable and Outdated Components
	A07      Category = "A07" // Identification and Authentication Failures
	A08      Category = "A08" // Software and Data Integrity Failures
	A09      Category = "A09" // Security Logging and Monitoring Failures
	A10      Category = "A10" // Server-Side Request Forgery
	Unmapped Category = "UNMAPPED"
)

// owaspMap is the fixed, keyword-free type → category table. Every
// canonical VulnType must map to a non-UNMAPPED category.
var owaspMap = map[VulnType]Category{
	VulnXSS:               A03,
	VulnSQLInjection:      A03,
	VulnCmdInjection:      A03,
	VulnWeakTLS:           A02,
	VulnInfoDisclosure:    A05,
	VulnOpenRedirect:      A01,
	VulnSSRF:              A10,
	VulnPathTraversal:     A01,
	VulnOutdatedComponent: A06,
	VulnExposedPanel:      A05,
	VulnMisconfiguration:  A05,
	VulnDefaultCreds:      A07,
	VulnCSRF:              A01,
}

// MapOWASP returns the category for a vulnerability type; unknown
// types are UNMAPPED.
func MapOWASP(t VulnType) Category {
	if c, ok := owaspMap[t]; ok {
		return c
	}
	return Unmapped
}

// Canonical reports whether the type is in the canonical vocabulary.
func Canonical(t VulnType) bool {
	_, ok := owaspMap[t]
	return ok
}
