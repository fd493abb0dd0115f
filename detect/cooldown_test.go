package detect

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sentinel/core"
)

func cooldownRule(t *testing.T, cooldown time.Duration) *core.AlertRule {
	t.Helper()
	rule, err := core.NewAlertRule("Cooldown Rule", "failed_logins > 10", core.SeverityHigh, 10, 5*time.Minute, cooldown)
	require.NoError(t, err)
	return rule
}

func TestCanTrigger_NeverTriggered(t *testing.T) {
	rule := cooldownRule(t, time.Minute)
	assert.True(t, CanTrigger(rule, time.Now().UTC()))
}

func TestCanTrigger_DisabledRuleIsNeverEligible(t *testing.T) {
	rule := cooldownRule(t, time.Minute)
	rule.Enabled = false
	assert.False(t, CanTrigger(rule, time.Now().UTC()))
}

func TestCanTrigger_InsideCooldown(t *testing.T) {
	rule := cooldownRule(t, time.Minute)
	now := time.Now().UTC()
	last := now.Add(-30 * time.Second)
	rule.LastTriggered = &last

	assert.False(t, CanTrigger(rule, now))
	assert.Equal(t, 30*time.Second, CooldownRemaining(rule, now))
}

func TestCanTrigger_ExactBoundaryIsEligible(t *testing.T) {
	rule := cooldownRule(t, time.Minute)
	last := time.Now().UTC().Add(-10 * time.Minute)
	rule.LastTriggered = &last

	boundary := last.Add(rule.CooldownPeriod)
	assert.True(t, CanTrigger(rule, boundary))
	assert.Equal(t, time.Duration(0), CooldownRemaining(rule, boundary))

	justBefore := boundary.Add(-time.Nanosecond)
	assert.False(t, CanTrigger(rule, justBefore))
}
