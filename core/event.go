package core

import "time"

// SecurityEvent is the minimal read-only view of an incoming security
// event used for threat correlation.
type SecurityEvent struct {
	ID        string    `json:"id"`
	SourceIP  string    `json:"source_ip,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// CorrelationResult aggregates the threat indicators matched against a
// security event.
type CorrelationResult struct {
	EventID        string             `json:"event_id"`
	Threats        []*ThreatIndicator `json:"threats,omitempty"`
	MaxThreatLevel float64            `json:"max_threat_level"` // max confidence among matches, 0 if none
	HasThreats     bool               `json:"has_threats"`
	CorrelatedAt   time.Time          `json:"correlated_at"`
}
