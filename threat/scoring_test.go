package threat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sentinel/core"
)

func indicator(t *testing.T, severity core.Severity, confidence float64) *core.ThreatIndicator {
	t.Helper()
	ind, err := core.NewThreatIndicator(core.IndicatorTypeIPAddress, "203.0.113.7", severity, confidence, "unit")
	require.NoError(t, err)
	return ind
}

func TestScore_NeutralHistoryForUnseenIndicator(t *testing.T) {
	ind := indicator(t, core.SeverityHigh, 75)
	// 0.8*0.4 + 0.75*0.4 + 0.5*0.2 = 0.72
	assert.InDelta(t, 72.0, Score(ind), 0.001)
}

func TestScore_CleanRecordScoresFull(t *testing.T) {
	ind := indicator(t, core.SeverityCritical, 100)
	ind.DetectionCount = 10
	assert.InDelta(t, 100.0, Score(ind), 0.001)
}

func TestScore_FalsePositivesDragHistoryDown(t *testing.T) {
	ind := indicator(t, core.SeverityHigh, 75)
	ind.DetectionCount = 8
	ind.FalsePositiveCount = 2
	// fp rate 20% -> history 0.8: 0.32 + 0.30 + 0.16 = 0.78
	assert.InDelta(t, 78.0, Score(ind), 0.001)
}

func TestScore_AllFalsePositivesZeroHistory(t *testing.T) {
	ind := indicator(t, core.SeverityLow, 20)
	ind.DetectionCount = 1
	ind.FalsePositiveCount = 99
	score := Score(ind)
	// 0.4*0.4 + 0.2*0.4 + ~0*0.2
	assert.InDelta(t, 24.2, score, 0.5)
	assert.LessOrEqual(t, score, 100.0)
	assert.GreaterOrEqual(t, score, 0.0)
}

func TestShouldBlock_HighSeverityActive(t *testing.T) {
	now := time.Now().UTC()
	assert.True(t, ShouldBlock(indicator(t, core.SeverityHigh, 80), now))
	assert.True(t, ShouldBlock(indicator(t, core.SeverityCritical, 80), now))
	assert.False(t, ShouldBlock(indicator(t, core.SeverityMedium, 80), now))
	assert.False(t, ShouldBlock(indicator(t, core.SeverityLow, 80), now))
}

func TestShouldBlock_WhitelistAlwaysWins(t *testing.T) {
	now := time.Now().UTC()
	ind := indicator(t, core.SeverityCritical, 100)
	ind.Whitelist(now)
	assert.False(t, ShouldBlock(ind, now))
}

func TestShouldBlock_BlacklistBlocksRegardlessOfSeverity(t *testing.T) {
	now := time.Now().UTC()
	ind := indicator(t, core.SeverityLow, 30)
	ind.Blacklist(now)
	// Blacklisting escalates severity and forces active.
	assert.True(t, ind.Active)
	assert.Equal(t, core.SeverityHigh, ind.Severity)
	assert.True(t, ShouldBlock(ind, now))
}

func TestShouldBlock_ExpiredNeverBlocks(t *testing.T) {
	now := time.Now().UTC()
	ind := indicator(t, core.SeverityCritical, 100)
	past := now.Add(-time.Hour)
	ind.ExpiresAt = &past
	assert.False(t, ShouldBlock(ind, now))
}

func TestShouldBlock_InactiveNeverBlocks(t *testing.T) {
	now := time.Now().UTC()
	ind := indicator(t, core.SeverityCritical, 100)
	ind.Deactivate(now)
	assert.False(t, ShouldBlock(ind, now))
}
