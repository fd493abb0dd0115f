package core

// Severity represents a threat or alert severity level
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// AllSeverities returns all valid severities for validation
var AllSeverities = []Severity{
	SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo,
}

// IsValid checks if the severity is valid
func (s Severity) IsValid() bool {
	for _, valid := range AllSeverities {
		if s == valid {
			return true
		}
	}
	return false
}

// IsHighSeverity returns true for critical or high severities
func (s Severity) IsHighSeverity() bool {
	return s == SeverityCritical || s == SeverityHigh
}

// SeverityWeight returns the numeric scoring weight for a severity level,
// from 1.0 (critical) down to 0.2 (info). Unknown severities weigh 0.
func SeverityWeight(s Severity) float64 {
	switch s {
	case SeverityCritical:
		return 1.0
	case SeverityHigh:
		return 0.8
	case SeverityMedium:
		return 0.6
	case SeverityLow:
		return 0.4
	case SeverityInfo:
		return 0.2
	default:
		return 0
	}
}

// EscalateSeverity returns the severity an indicator is raised to when
// blacklisted. Blacklisting escalates to high but never downgrades critical.
func EscalateSeverity(s Severity) Severity {
	if s == SeverityCritical {
		return SeverityCritical
	}
	return SeverityHigh
}

// ListStatus represents the whitelist/blacklist status of a threat indicator
type ListStatus string

const (
	ListStatusWhitelist ListStatus = "whitelist" // Explicitly trusted, suppresses blocking
	ListStatusBlacklist ListStatus = "blacklist" // Explicitly blocked
	ListStatusGreylist  ListStatus = "greylist"  // Requires additional scrutiny
	ListStatusNeutral   ListStatus = "neutral"   // No explicit status
)

// AllListStatuses returns all valid list statuses
var AllListStatuses = []ListStatus{
	ListStatusWhitelist, ListStatusBlacklist, ListStatusGreylist, ListStatusNeutral,
}

// IsValid checks if the list status is valid
func (s ListStatus) IsValid() bool {
	for _, valid := range AllListStatuses {
		if s == valid {
			return true
		}
	}
	return false
}
