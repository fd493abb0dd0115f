package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRule(t *testing.T) *AlertRule {
	t.Helper()
	rule, err := NewAlertRule("High CPU", "cpu_usage > 80", SeverityHigh, 80, 5*time.Minute, time.Minute)
	require.NoError(t, err)
	return rule
}

func TestNewAlertRule(t *testing.T) {
	rule := validRule(t)

	assert.NotEmpty(t, rule.ID)
	assert.True(t, rule.Enabled)
	assert.Equal(t, int64(1), rule.Version)
	assert.Nil(t, rule.LastTriggered)
	assert.Zero(t, rule.TriggerCount)
	assert.False(t, rule.CreatedAt.IsZero())
}

func TestNewAlertRule_Rejections(t *testing.T) {
	tests := []struct {
		name      string
		ruleName  string
		condition string
		severity  Severity
		threshold float64
		window    time.Duration
		cooldown  time.Duration
	}{
		{"empty name", "", "cpu_usage > 80", SeverityHigh, 80, 5 * time.Minute, time.Minute},
		{"blank name", "   ", "cpu_usage > 80", SeverityHigh, 80, 5 * time.Minute, time.Minute},
		{"empty condition", "r", "", SeverityHigh, 80, 5 * time.Minute, time.Minute},
		{"condition without operator", "r", "cpu_usage is high", SeverityHigh, 80, 5 * time.Minute, time.Minute},
		{"info severity", "r", "cpu_usage > 80", SeverityInfo, 80, 5 * time.Minute, time.Minute},
		{"unknown severity", "r", "cpu_usage > 80", Severity("urgent"), 80, 5 * time.Minute, time.Minute},
		{"zero threshold", "r", "cpu_usage > 80", SeverityHigh, 0, 5 * time.Minute, time.Minute},
		{"negative threshold", "r", "cpu_usage > 80", SeverityHigh, -1, 5 * time.Minute, time.Minute},
		{"window below minimum", "r", "cpu_usage > 80", SeverityHigh, 80, 30 * time.Second, time.Minute},
		{"cooldown below minimum", "r", "cpu_usage > 80", SeverityHigh, 80, 5 * time.Minute, 10 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAlertRule(tt.ruleName, tt.condition, tt.severity, tt.threshold, tt.window, tt.cooldown)
			require.Error(t, err)
			assert.True(t, IsValidationError(err))
		})
	}
}

func TestValidateCondition(t *testing.T) {
	assert.NoError(t, ValidateCondition("failed_logins >= 10"))
	assert.NoError(t, ValidateCondition("error_rate < 0.5"))
	assert.NoError(t, ValidateCondition("requests == 0"))

	assert.Error(t, ValidateCondition(""))
	assert.Error(t, ValidateCondition("no operator here"))
}

func TestConditionOperator(t *testing.T) {
	// ">=" must win over ">"
	assert.Equal(t, ">=", ConditionOperator("cpu >= 80"))
	assert.Equal(t, "<=", ConditionOperator("mem <= 20"))
	assert.Equal(t, ">", ConditionOperator("cpu > 80"))
	assert.Equal(t, "<", ConditionOperator("mem < 20"))
	assert.Equal(t, "==", ConditionOperator("errs == 0"))
	assert.Equal(t, "", ConditionOperator("no operator"))
}

func TestApplyUpdate(t *testing.T) {
	rule := validRule(t)
	rule.TriggerCount = 7
	now := time.Now().UTC()
	rule.LastTriggered = &now

	newName := "Very High CPU"
	newThreshold := 95.0
	disabled := false
	err := rule.ApplyUpdate(&AlertRuleUpdate{
		Name:      &newName,
		Threshold: &newThreshold,
		Enabled:   &disabled,
	})
	require.NoError(t, err)

	assert.Equal(t, "Very High CPU", rule.Name)
	assert.Equal(t, 95.0, rule.Threshold)
	assert.False(t, rule.Enabled)
	// Trigger state is never touched by updates
	assert.Equal(t, int64(7), rule.TriggerCount)
	assert.Equal(t, now, *rule.LastTriggered)
	// Untouched fields survive
	assert.Equal(t, "cpu_usage > 80", rule.Condition)
}

func TestApplyUpdate_InvalidLeavesRuleUnchanged(t *testing.T) {
	rule := validRule(t)

	badThreshold := -5.0
	newName := "Renamed"
	err := rule.ApplyUpdate(&AlertRuleUpdate{Name: &newName, Threshold: &badThreshold})
	require.Error(t, err)

	assert.Equal(t, "High CPU", rule.Name)
	assert.Equal(t, 80.0, rule.Threshold)
}

func TestNewAlertTrigger(t *testing.T) {
	rule := validRule(t)
	at := time.Now().UTC()

	trigger := NewAlertTrigger(rule, "cpu_usage", 93.5, at)

	assert.NotEmpty(t, trigger.ID)
	assert.Equal(t, rule.ID, trigger.RuleID)
	assert.Equal(t, rule.Name, trigger.RuleName)
	assert.Equal(t, SeverityHigh, trigger.Severity)
	assert.Equal(t, "cpu_usage", trigger.MetricName)
	assert.Equal(t, 93.5, trigger.ObservedValue)
	assert.Equal(t, 80.0, trigger.Threshold)
	assert.Equal(t, `Metric "cpu_usage" exceeded threshold`, trigger.Message)
	assert.False(t, trigger.Resolved)
}
