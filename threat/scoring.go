package threat

import (
	"time"

	"sentinel/core"
)

// Component weights for the composite threat score. Severity and confidence
// dominate; track record adjusts the remainder.
const (
	severityComponentWeight   = 0.4
	confidenceComponentWeight = 0.4
	historyComponentWeight    = 0.2
)

// Score computes a 0-100 threat score for an indicator.
//
// The history component rewards a clean detection record: an indicator with
// no detections yet scores a neutral 0.5, one with sightings scores by its
// false-positive rate. The weighted sum is scaled to 0-100 and capped.
func Score(ind *core.ThreatIndicator) float64 {
	severity := core.SeverityWeight(ind.Severity)
	confidence := ind.Confidence / 100.0

	history := 0.5
	if ind.DetectionCount > 0 {
		history = 1.0 - ind.FalsePositiveRate()/100.0
		if history < 0 {
			history = 0
		}
	}

	score := (severity*severityComponentWeight +
		confidence*confidenceComponentWeight +
		history*historyComponentWeight) * 100.0
	if score > 100 {
		score = 100
	}
	return score
}

// ShouldBlock decides whether traffic matching the indicator should be
// blocked at the given instant. Whitelisting always wins; blacklisting
// blocks regardless of severity; otherwise only active, unexpired
// high-or-critical indicators block.
func ShouldBlock(ind *core.ThreatIndicator, now time.Time) bool {
	if !ind.Active || ind.IsExpired(now) {
		return false
	}
	if ind.ListStatus == core.ListStatusWhitelist {
		return false
	}
	if ind.ListStatus == core.ListStatusBlacklist {
		return true
	}
	return ind.Severity.IsHighSeverity()
}
