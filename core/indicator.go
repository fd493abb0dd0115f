package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// IndicatorType represents the type of threat indicator
type IndicatorType string

const (
	IndicatorTypeIPAddress IndicatorType = "ip_address"
	IndicatorTypeDomain    IndicatorType = "domain"
	IndicatorTypeURL       IndicatorType = "url"
	IndicatorTypeFileHash  IndicatorType = "file_hash"
	IndicatorTypeEmail     IndicatorType = "email"
	IndicatorTypeUserAgent IndicatorType = "user_agent"
	IndicatorTypeSSLCert   IndicatorType = "ssl_cert"
)

// AllIndicatorTypes returns all valid indicator types for validation
var AllIndicatorTypes = []IndicatorType{
	IndicatorTypeIPAddress, IndicatorTypeDomain, IndicatorTypeURL,
	IndicatorTypeFileHash, IndicatorTypeEmail, IndicatorTypeUserAgent,
	IndicatorTypeSSLCert,
}

// IsValid checks if the indicator type is valid
func (t IndicatorType) IsValid() bool {
	for _, valid := range AllIndicatorTypes {
		if t == valid {
			return true
		}
	}
	return false
}

// CaseInsensitive reports whether values of this type compare
// case-insensitively. Domains and email addresses do; everything else
// matches exactly.
func (t IndicatorType) CaseInsensitive() bool {
	return t == IndicatorTypeDomain || t == IndicatorTypeEmail
}

// Maximum lengths for indicator fields
const (
	MaxIndicatorValueLength = 2048
	MaxIndicatorSourceLen   = 255
)

// Confidence adjustment constants for the false-positive decay mechanism.
// Confidence never drops below the floor through decay, preventing a
// "confidence zero" dead state.
const (
	FalsePositiveDecayThreshold = 3
	FalsePositiveDecayStep      = 10.0
	ConfidenceDecayFloor        = 20.0
)

// ThreatIndicator represents an external threat intelligence indicator
type ThreatIndicator struct {
	ID         string        `json:"id"`
	Type       IndicatorType `json:"type"`
	Value      string        `json:"value"`
	Severity   Severity      `json:"severity"`
	Confidence float64       `json:"confidence"` // 0-100, invariant enforced by SetConfidence
	Source     string        `json:"source"`
	Active     bool          `json:"active"`
	ThreatType string        `json:"threat_type,omitempty"`
	ListStatus ListStatus    `json:"list_status"`

	FirstSeen time.Time  `json:"first_seen"`
	LastSeen  time.Time  `json:"last_seen"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`

	DetectionCount     int64 `json:"detection_count"`
	FalsePositiveCount int64 `json:"false_positive_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewThreatIndicator creates a validated indicator with a generated ID.
// New indicators start active with neutral list status.
func NewThreatIndicator(indType IndicatorType, value string, severity Severity, confidence float64, source string) (*ThreatIndicator, error) {
	now := time.Now().UTC()
	ind := &ThreatIndicator{
		ID:         uuid.New().String(),
		Type:       indType,
		Value:      strings.TrimSpace(value),
		Severity:   severity,
		Confidence: confidence,
		Source:     source,
		Active:     true,
		ListStatus: ListStatusNeutral,
		FirstSeen:  now,
		LastSeen:   now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := ind.Validate(); err != nil {
		return nil, err
	}
	return ind, nil
}

// Validate checks all indicator invariants
func (i *ThreatIndicator) Validate() error {
	if !i.Type.IsValid() {
		return NewValidationError("type", fmt.Sprintf("invalid indicator type %q", i.Type))
	}
	if strings.TrimSpace(i.Value) == "" {
		return NewValidationError("value", "cannot be empty")
	}
	if len(i.Value) > MaxIndicatorValueLength {
		return NewValidationError("value", fmt.Sprintf("exceeds maximum length of %d characters", MaxIndicatorValueLength))
	}
	if !i.Severity.IsValid() {
		return NewValidationError("severity", fmt.Sprintf("invalid severity %q", i.Severity))
	}
	if i.Confidence < 0 || i.Confidence > 100 {
		return NewValidationError("confidence", "must be between 0 and 100")
	}
	if strings.TrimSpace(i.Source) == "" {
		return NewValidationError("source", "cannot be empty")
	}
	if len(i.Source) > MaxIndicatorSourceLen {
		return NewValidationError("source", fmt.Sprintf("exceeds maximum length of %d characters", MaxIndicatorSourceLen))
	}
	if !i.ListStatus.IsValid() {
		return NewValidationError("list_status", fmt.Sprintf("invalid list status %q", i.ListStatus))
	}
	if i.DetectionCount < 0 {
		return NewValidationError("detection_count", "cannot be negative")
	}
	if i.FalsePositiveCount < 0 {
		return NewValidationError("false_positive_count", "cannot be negative")
	}
	return nil
}

// Key returns the uniqueness key (type, value, source)
func (i *ThreatIndicator) Key() string {
	return string(i.Type) + "|" + i.Value + "|" + i.Source
}

// SetConfidence updates the confidence, enforcing the [0,100] bound
func (i *ThreatIndicator) SetConfidence(confidence float64) error {
	if confidence < 0 || confidence > 100 {
		return NewValidationError("confidence", "must be between 0 and 100")
	}
	i.Confidence = confidence
	return nil
}

// IsExpired checks whether the indicator has passed its expiration.
// Expiration is passive: checked at read time, never actively swept.
func (i *ThreatIndicator) IsExpired(now time.Time) bool {
	return i.ExpiresAt != nil && now.After(*i.ExpiresAt)
}

// RecordDetection bumps the detection count and refreshes last seen
func (i *ThreatIndicator) RecordDetection(now time.Time) {
	i.DetectionCount++
	i.LastSeen = now
	i.UpdatedAt = now
}

// RecordFalsePositive bumps the false-positive count and applies adaptive
// confidence decay: once the count reaches the threshold, confidence drops
// by one step per call, floored so the indicator can still recover.
func (i *ThreatIndicator) RecordFalsePositive(now time.Time) {
	i.FalsePositiveCount++
	if i.FalsePositiveCount >= FalsePositiveDecayThreshold && i.Confidence > ConfidenceDecayFloor {
		decayed := i.Confidence - FalsePositiveDecayStep
		if decayed < ConfidenceDecayFloor {
			decayed = ConfidenceDecayFloor
		}
		i.Confidence = decayed
	}
	i.UpdatedAt = now
}

// FalsePositiveRate returns the false-positive percentage over all
// recorded sightings, 0 when there are none.
func (i *ThreatIndicator) FalsePositiveRate() float64 {
	total := i.DetectionCount + i.FalsePositiveCount
	if total == 0 {
		return 0
	}
	return float64(i.FalsePositiveCount) / float64(total) * 100.0
}

// Whitelist marks the indicator as trusted and deactivates it. A
// whitelisted indicator never blocks, regardless of severity or prior
// blacklisting.
func (i *ThreatIndicator) Whitelist(now time.Time) {
	i.ListStatus = ListStatusWhitelist
	i.Active = false
	i.UpdatedAt = now
}

// Blacklist marks the indicator as malicious, forces it active, and
// escalates severity.
func (i *ThreatIndicator) Blacklist(now time.Time) {
	i.ListStatus = ListStatusBlacklist
	i.Active = true
	i.Severity = EscalateSeverity(i.Severity)
	i.UpdatedAt = now
}

// Deactivate disables the indicator without changing its list status
func (i *ThreatIndicator) Deactivate(now time.Time) {
	i.Active = false
	i.UpdatedAt = now
}

// Matches checks whether a value matches this indicator. Domains and
// email addresses compare case-insensitively; all other types exactly.
func (i *ThreatIndicator) Matches(value string) bool {
	if value == "" {
		return false
	}
	if i.Type.CaseInsensitive() {
		return strings.EqualFold(i.Value, value)
	}
	return i.Value == value
}
