package detect

import (
	"strings"

	"sentinel/core"
)

// ExtractMetricName returns the metric a condition refers to: the first
// whitespace-delimited token. "failed_logins > 10" -> "failed_logins".
func ExtractMetricName(condition string) string {
	fields := strings.Fields(condition)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// CompareValue applies the condition's comparison operator to an observed
// value and the rule threshold. Unknown operators never match; validated
// conditions always carry one of the known operators.
func CompareValue(operator string, value, threshold float64) bool {
	switch operator {
	case ">":
		return value > threshold
	case ">=":
		return value >= threshold
	case "<":
		return value < threshold
	case "<=":
		return value <= threshold
	case "==":
		return value == threshold
	default:
		return false
	}
}

// ruleOperator resolves the operator for a rule's condition.
func ruleOperator(rule *core.AlertRule) string {
	return core.ConditionOperator(rule.Condition)
}
