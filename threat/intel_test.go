package threat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sentinel/core"
	"sentinel/notify"
	"sentinel/storage"
)

type intelFixture struct {
	indicators *storage.MemoryIndicatorStore
	sink       *notify.MockSink
	service    *IntelService
}

func newIntelFixture(t *testing.T) *intelFixture {
	t.Helper()
	cache, err := NewLRUIndicatorCache(128, time.Minute)
	require.NoError(t, err)

	f := &intelFixture{
		indicators: storage.NewMemoryIndicatorStore(),
		sink:       notify.NewMockSink(),
	}
	f.service = NewIntelService(f.indicators, cache, f.sink, zap.NewNop().Sugar())
	return f
}

func TestCreateOrUpdateIndicator_CreatesNew(t *testing.T) {
	f := newIntelFixture(t)

	ind, err := f.service.CreateOrUpdateIndicator(context.Background(),
		core.IndicatorTypeIPAddress, "203.0.113.7", core.SeverityHigh, 80, "honeypot")
	require.NoError(t, err)

	assert.True(t, ind.Active)
	assert.Equal(t, core.ListStatusNeutral, ind.ListStatus)
	assert.Equal(t, 80.0, ind.Confidence)
}

func TestCreateOrUpdateIndicator_KeepsHigherConfidence(t *testing.T) {
	f := newIntelFixture(t)
	ctx := context.Background()

	first, err := f.service.CreateOrUpdateIndicator(ctx,
		core.IndicatorTypeIPAddress, "203.0.113.7", core.SeverityMedium, 80, "honeypot")
	require.NoError(t, err)

	// A weaker sighting refreshes last-seen but never lowers confidence.
	second, err := f.service.CreateOrUpdateIndicator(ctx,
		core.IndicatorTypeIPAddress, "203.0.113.7", core.SeverityMedium, 40, "honeypot")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 80.0, second.Confidence)

	// A stronger sighting raises confidence and severity.
	third, err := f.service.CreateOrUpdateIndicator(ctx,
		core.IndicatorTypeIPAddress, "203.0.113.7", core.SeverityHigh, 95, "honeypot")
	require.NoError(t, err)
	assert.Equal(t, 95.0, third.Confidence)
	assert.Equal(t, core.SeverityHigh, third.Severity)
}

func TestCreateOrUpdateIndicator_RepeatSightingRecordsDetection(t *testing.T) {
	f := newIntelFixture(t)
	ctx := context.Background()

	first, err := f.service.CreateOrUpdateIndicator(ctx,
		core.IndicatorTypeIPAddress, "203.0.113.7", core.SeverityMedium, 60, "honeypot")
	require.NoError(t, err)
	assert.Zero(t, first.DetectionCount)

	second, err := f.service.CreateOrUpdateIndicator(ctx,
		core.IndicatorTypeIPAddress, "203.0.113.7", core.SeverityMedium, 80, "honeypot")
	require.NoError(t, err)
	assert.Equal(t, int64(1), second.DetectionCount)

	events := f.sink.Events()
	require.Len(t, events, 2)
	assert.Equal(t, notify.EventIndicatorLifecycle, events[0].Kind)
	assert.Equal(t, "created", events[0].Action)
	assert.Equal(t, "updated", events[1].Action)
}

func TestImportFeed_PublishesLifecycleEvents(t *testing.T) {
	f := newIntelFixture(t)
	ctx := context.Background()

	entries := []FeedEntry{
		{Type: core.IndicatorTypeIPAddress, Value: "203.0.113.40", Severity: core.SeverityHigh, Confidence: 70},
	}
	_, err := f.service.ImportFeed(ctx, "osint", entries)
	require.NoError(t, err)

	entries[0].Confidence = 90
	_, err = f.service.ImportFeed(ctx, "osint", entries)
	require.NoError(t, err)

	events := f.sink.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "created", events[0].Action)
	assert.Equal(t, "updated", events[1].Action)
}

func TestRecordDetection_BumpsCounter(t *testing.T) {
	f := newIntelFixture(t)
	ctx := context.Background()

	ind, err := f.service.CreateOrUpdateIndicator(ctx,
		core.IndicatorTypeIPAddress, "203.0.113.7", core.SeverityHigh, 80, "honeypot")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := f.service.RecordDetection(ctx, ind.ID)
		require.NoError(t, err)
	}

	stored, err := f.indicators.FindByID(ctx, ind.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stored.DetectionCount)
	assert.False(t, stored.LastSeen.Before(ind.LastSeen))
}

func TestRecordDetection_UnknownIndicator(t *testing.T) {
	f := newIntelFixture(t)

	_, err := f.service.RecordDetection(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrIndicatorNotFound)
}

func TestMarkFalsePositive_Deactivates(t *testing.T) {
	f := newIntelFixture(t)
	ctx := context.Background()

	ind, err := f.service.CreateOrUpdateIndicator(ctx,
		core.IndicatorTypeDomain, "benign.example.com", core.SeverityHigh, 90, "feed")
	require.NoError(t, err)

	updated, err := f.service.MarkFalsePositive(ctx, ind.ID)
	require.NoError(t, err)

	assert.False(t, updated.Active)
	assert.Equal(t, int64(1), updated.FalsePositiveCount)

	events := f.sink.Events()
	require.Len(t, events, 2)
	assert.Equal(t, notify.EventIndicatorLifecycle, events[1].Kind)
	assert.Equal(t, "false_positive", events[1].Action)
}

func TestMarkFalsePositive_ConfidenceDecayAfterThreshold(t *testing.T) {
	f := newIntelFixture(t)
	ctx := context.Background()

	ind, err := f.service.CreateOrUpdateIndicator(ctx,
		core.IndicatorTypeDomain, "noisy.example.com", core.SeverityHigh, 45, "feed")
	require.NoError(t, err)

	// First two verdicts count without decaying confidence.
	for i := 0; i < 2; i++ {
		updated, err := f.service.MarkFalsePositive(ctx, ind.ID)
		require.NoError(t, err)
		assert.Equal(t, 45.0, updated.Confidence)
	}

	// Third verdict crosses the decay threshold.
	updated, err := f.service.MarkFalsePositive(ctx, ind.ID)
	require.NoError(t, err)
	assert.Equal(t, 35.0, updated.Confidence)

	// Decay floors at 20, never below.
	updated, err = f.service.MarkFalsePositive(ctx, ind.ID)
	require.NoError(t, err)
	assert.Equal(t, 25.0, updated.Confidence)
	updated, err = f.service.MarkFalsePositive(ctx, ind.ID)
	require.NoError(t, err)
	assert.Equal(t, 20.0, updated.Confidence)
	updated, err = f.service.MarkFalsePositive(ctx, ind.ID)
	require.NoError(t, err)
	assert.Equal(t, 20.0, updated.Confidence)
}

func TestWhitelistAndBlacklist(t *testing.T) {
	f := newIntelFixture(t)
	ctx := context.Background()

	ind, err := f.service.CreateOrUpdateIndicator(ctx,
		core.IndicatorTypeIPAddress, "203.0.113.9", core.SeverityLow, 50, "feed")
	require.NoError(t, err)

	listed, err := f.service.Whitelist(ctx, ind.ID)
	require.NoError(t, err)
	assert.Equal(t, core.ListStatusWhitelist, listed.ListStatus)
	assert.False(t, listed.Active)
	assert.False(t, ShouldBlock(listed, time.Now().UTC()))

	listed, err = f.service.Blacklist(ctx, ind.ID)
	require.NoError(t, err)
	assert.Equal(t, core.ListStatusBlacklist, listed.ListStatus)
	assert.True(t, listed.Active)
	assert.Equal(t, core.SeverityHigh, listed.Severity)
	assert.True(t, ShouldBlock(listed, time.Now().UTC()))
}

func TestImportFeed_CountsImportedUpdatedSkipped(t *testing.T) {
	f := newIntelFixture(t)
	ctx := context.Background()

	_, err := f.service.CreateOrUpdateIndicator(ctx,
		core.IndicatorTypeIPAddress, "203.0.113.7", core.SeverityMedium, 70, "osint")
	require.NoError(t, err)

	entries := []FeedEntry{
		{Type: core.IndicatorTypeIPAddress, Value: "203.0.113.7", Severity: core.SeverityHigh, Confidence: 90},  // updated
		{Type: core.IndicatorTypeIPAddress, Value: "203.0.113.7", Severity: core.SeverityLow, Confidence: 10},   // skipped, weaker
		{Type: core.IndicatorTypeDomain, Value: "new.example.com", Severity: core.SeverityHigh, Confidence: 85}, // imported
		{Type: core.IndicatorTypeDomain, Value: "", Severity: core.SeverityHigh, Confidence: 85},                // skipped, invalid
	}

	result, err := f.service.ImportFeed(ctx, "osint", entries)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Imported)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 2, result.Skipped)

	updated, err := f.indicators.FindByKey(ctx, core.IndicatorTypeIPAddress, "203.0.113.7", "osint")
	require.NoError(t, err)
	assert.Equal(t, 90.0, updated.Confidence)
	assert.Equal(t, core.SeverityHigh, updated.Severity)
}

func TestCleanupExpired(t *testing.T) {
	f := newIntelFixture(t)
	ctx := context.Background()

	expired, err := f.service.CreateOrUpdateIndicator(ctx,
		core.IndicatorTypeURL, "https://old.example.com", core.SeverityHigh, 80, "feed")
	require.NoError(t, err)
	past := time.Now().UTC().Add(-time.Hour)
	expired.ExpiresAt = &past
	require.NoError(t, f.indicators.Save(ctx, expired))

	fresh, err := f.service.CreateOrUpdateIndicator(ctx,
		core.IndicatorTypeURL, "https://new.example.com", core.SeverityHigh, 80, "feed")
	require.NoError(t, err)

	deactivated, err := f.service.CleanupExpired(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deactivated)

	got, err := f.indicators.FindByID(ctx, expired.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)

	got, err = f.indicators.FindByID(ctx, fresh.ID)
	require.NoError(t, err)
	assert.True(t, got.Active)
}

func TestGetStatistics(t *testing.T) {
	f := newIntelFixture(t)
	ctx := context.Background()

	_, err := f.service.CreateOrUpdateIndicator(ctx,
		core.IndicatorTypeIPAddress, "203.0.113.1", core.SeverityHigh, 80, "feed")
	require.NoError(t, err)
	_, err = f.service.CreateOrUpdateIndicator(ctx,
		core.IndicatorTypeIPAddress, "203.0.113.2", core.SeverityHigh, 80, "feed")
	require.NoError(t, err)
	_, err = f.service.CreateOrUpdateIndicator(ctx,
		core.IndicatorTypeDomain, "evil.example.com", core.SeverityMedium, 60, "feed")
	require.NoError(t, err)

	stats, err := f.service.GetStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, int64(2), stats.BySeverity[core.SeverityHigh])
	assert.Equal(t, int64(1), stats.BySeverity[core.SeverityMedium])
}
