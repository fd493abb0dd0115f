package detect

import (
	"time"

	"sentinel/core"
)

// CanTrigger reports whether a rule is enabled and outside its cooldown
// window at the given instant. An enabled rule that has never triggered is
// always eligible. The boundary is inclusive: at exactly
// lastTriggered+cooldown the rule may fire again.
func CanTrigger(rule *core.AlertRule, now time.Time) bool {
	if !rule.Enabled {
		return false
	}
	if rule.LastTriggered == nil {
		return true
	}
	eligibleAt := rule.LastTriggered.Add(rule.CooldownPeriod)
	return !now.Before(eligibleAt)
}

// CooldownRemaining returns how long until the rule may fire again, zero
// when it is already eligible.
func CooldownRemaining(rule *core.AlertRule, now time.Time) time.Duration {
	if rule.LastTriggered == nil {
		return 0
	}
	remaining := rule.LastTriggered.Add(rule.CooldownPeriod).Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}
