package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Validation bounds for alert rules
const (
	MinTimeWindow      = 1 * time.Minute
	MinCooldownPeriod  = 30 * time.Second
	MaxRuleNameLength  = 255
	MaxConditionLength = 1024
	MaxNotifyChannels  = 20
)

// conditionOperators are the comparison operators a condition may use.
// Ordered longest-first so ">=" is found before ">".
var conditionOperators = []string{">=", "<=", "==", ">", "<"}

// AlertRule represents a metric-threshold alerting rule
type AlertRule struct {
	ID                   string        `json:"id"`
	Name                 string        `json:"name"`
	Description          string        `json:"description,omitempty"`
	Condition            string        `json:"condition"` // e.g. "cpu_usage > 80"
	Severity             Severity      `json:"severity"`
	Enabled              bool          `json:"enabled"`
	Threshold            float64       `json:"threshold"`
	TimeWindow           time.Duration `json:"time_window"`
	CooldownPeriod       time.Duration `json:"cooldown_period"`
	NotificationChannels []string      `json:"notification_channels,omitempty"`
	LastTriggered        *time.Time    `json:"last_triggered,omitempty"`
	TriggerCount         int64         `json:"trigger_count"`

	// Version guards optimistic concurrency on trigger-state updates.
	// Incremented on every successful CompareAndSave.
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewAlertRule creates a validated alert rule with a generated ID.
// Invalid thresholds, windows, and conditions are rejected here so the
// evaluation engine can assume these invariants hold.
func NewAlertRule(name, condition string, severity Severity, threshold float64, timeWindow, cooldown time.Duration) (*AlertRule, error) {
	now := time.Now().UTC()
	rule := &AlertRule{
		ID:             uuid.New().String(),
		Name:           name,
		Condition:      condition,
		Severity:       severity,
		Enabled:        true,
		Threshold:      threshold,
		TimeWindow:     timeWindow,
		CooldownPeriod: cooldown,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	return rule, nil
}

// Validate checks all rule invariants. Returns a *ValidationError on the
// first violation found.
func (r *AlertRule) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return NewValidationError("name", "cannot be empty")
	}
	if len(r.Name) > MaxRuleNameLength {
		return NewValidationError("name", fmt.Sprintf("exceeds maximum length of %d characters", MaxRuleNameLength))
	}
	if err := ValidateCondition(r.Condition); err != nil {
		return err
	}
	if !r.Severity.IsValid() || r.Severity == SeverityInfo {
		return NewValidationError("severity", fmt.Sprintf("must be one of critical, high, medium, low (got %q)", r.Severity))
	}
	if r.Threshold <= 0 {
		return NewValidationError("threshold", "must be positive")
	}
	if r.TimeWindow < MinTimeWindow {
		return NewValidationError("time_window", "must be at least 1 minute")
	}
	if r.CooldownPeriod < MinCooldownPeriod {
		return NewValidationError("cooldown_period", "must be at least 30 seconds")
	}
	if len(r.NotificationChannels) > MaxNotifyChannels {
		return NewValidationError("notification_channels", fmt.Sprintf("too many channels (max %d)", MaxNotifyChannels))
	}
	if r.TriggerCount < 0 {
		return NewValidationError("trigger_count", "cannot be negative")
	}
	return nil
}

// ValidateCondition checks the minimal condition grammar: a non-empty
// expression containing a comparison operator.
func ValidateCondition(condition string) error {
	if strings.TrimSpace(condition) == "" {
		return NewValidationError("condition", "cannot be empty")
	}
	if len(condition) > MaxConditionLength {
		return NewValidationError("condition", fmt.Sprintf("exceeds maximum length of %d characters", MaxConditionLength))
	}
	for _, op := range conditionOperators {
		if strings.Contains(condition, op) {
			return nil
		}
	}
	return NewValidationError("condition", "must contain a comparison operator (>, <, >=, <=, ==)")
}

// ConditionOperator extracts the comparison operator from a condition
// string. Returns the empty string when no operator is present; validated
// rules always contain one.
func ConditionOperator(condition string) string {
	for _, op := range conditionOperators {
		if strings.Contains(condition, op) {
			return op
		}
	}
	return ""
}

// AlertRuleUpdate carries a partial rule update; only non-nil fields
// overwrite the existing rule.
type AlertRuleUpdate struct {
	Name                 *string
	Description          *string
	Condition            *string
	Severity             *Severity
	Enabled              *bool
	Threshold            *float64
	TimeWindow           *time.Duration
	CooldownPeriod       *time.Duration
	NotificationChannels []string
}

// ApplyUpdate merges a partial update into the rule, re-validating the
// result. Trigger state (LastTriggered, TriggerCount, Version) is never
// touched by updates; only the evaluation engine mutates it.
func (r *AlertRule) ApplyUpdate(u *AlertRuleUpdate) error {
	updated := *r
	if u.Name != nil {
		updated.Name = *u.Name
	}
	if u.Description != nil {
		updated.Description = *u.Description
	}
	if u.Condition != nil {
		updated.Condition = *u.Condition
	}
	if u.Severity != nil {
		updated.Severity = *u.Severity
	}
	if u.Enabled != nil {
		updated.Enabled = *u.Enabled
	}
	if u.Threshold != nil {
		updated.Threshold = *u.Threshold
	}
	if u.TimeWindow != nil {
		updated.TimeWindow = *u.TimeWindow
	}
	if u.CooldownPeriod != nil {
		updated.CooldownPeriod = *u.CooldownPeriod
	}
	if u.NotificationChannels != nil {
		updated.NotificationChannels = u.NotificationChannels
	}
	if err := updated.Validate(); err != nil {
		return err
	}
	updated.UpdatedAt = time.Now().UTC()
	*r = updated
	return nil
}

// AlertTrigger is the immutable record of a rule firing. It is created
// exactly once per successful evaluation and never mutated by the engine;
// resolution is an external concern.
type AlertTrigger struct {
	ID            string    `json:"id"`
	RuleID        string    `json:"rule_id"`
	RuleName      string    `json:"rule_name"`
	Severity      Severity  `json:"severity"`
	TriggeredAt   time.Time `json:"triggered_at"`
	MetricName    string    `json:"metric_name"`
	ObservedValue float64   `json:"observed_value"`
	Threshold     float64   `json:"threshold"`
	Message       string    `json:"message"`
	Resolved      bool      `json:"resolved"`
}

// NewAlertTrigger builds a trigger record for a rule firing against the
// given observed metric sample.
func NewAlertTrigger(rule *AlertRule, metricName string, observed float64, triggeredAt time.Time) *AlertTrigger {
	return &AlertTrigger{
		ID:            uuid.New().String(),
		RuleID:        rule.ID,
		RuleName:      rule.Name,
		Severity:      rule.Severity,
		TriggeredAt:   triggeredAt,
		MetricName:    metricName,
		ObservedValue: observed,
		Threshold:     rule.Threshold,
		Message:       fmt.Sprintf("Metric %q exceeded threshold", metricName),
		Resolved:      false,
	}
}
