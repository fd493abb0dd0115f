package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeverityIsValid(t *testing.T) {
	for _, s := range AllSeverities {
		assert.True(t, s.IsValid(), string(s))
	}
	assert.False(t, Severity("urgent").IsValid())
	assert.False(t, Severity("").IsValid())
}

func TestIsHighSeverity(t *testing.T) {
	assert.True(t, SeverityCritical.IsHighSeverity())
	assert.True(t, SeverityHigh.IsHighSeverity())
	assert.False(t, SeverityMedium.IsHighSeverity())
	assert.False(t, SeverityLow.IsHighSeverity())
	assert.False(t, SeverityInfo.IsHighSeverity())
}

func TestSeverityWeight(t *testing.T) {
	assert.Equal(t, 1.0, SeverityWeight(SeverityCritical))
	assert.Equal(t, 0.8, SeverityWeight(SeverityHigh))
	assert.Equal(t, 0.6, SeverityWeight(SeverityMedium))
	assert.Equal(t, 0.4, SeverityWeight(SeverityLow))
	assert.Equal(t, 0.2, SeverityWeight(SeverityInfo))
	assert.Equal(t, 0.0, SeverityWeight(Severity("unknown")))
}

func TestEscalateSeverity(t *testing.T) {
	assert.Equal(t, SeverityCritical, EscalateSeverity(SeverityCritical))
	assert.Equal(t, SeverityHigh, EscalateSeverity(SeverityHigh))
	assert.Equal(t, SeverityHigh, EscalateSeverity(SeverityMedium))
	assert.Equal(t, SeverityHigh, EscalateSeverity(SeverityLow))
	assert.Equal(t, SeverityHigh, EscalateSeverity(SeverityInfo))
}

func TestListStatusIsValid(t *testing.T) {
	for _, s := range AllListStatuses {
		assert.True(t, s.IsValid(), string(s))
	}
	assert.False(t, ListStatus("banned").IsValid())
}
