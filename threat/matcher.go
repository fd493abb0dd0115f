package threat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"sentinel/core"
	"sentinel/metrics"
	"sentinel/notify"
	"sentinel/storage"
)

// CorrelationMatcher matches security events against active threat
// indicators. Source IPs and user agents are the correlated dimensions.
type CorrelationMatcher struct {
	indicators storage.IndicatorStore
	cache      IndicatorCache
	sink       notify.Sink
	logger     *zap.SugaredLogger
}

func NewCorrelationMatcher(indicators storage.IndicatorStore, cache IndicatorCache, sink notify.Sink, logger *zap.SugaredLogger) *CorrelationMatcher {
	return &CorrelationMatcher{
		indicators: indicators,
		cache:      cache,
		sink:       sink,
		logger:     logger,
	}
}

// Correlate checks one event against the indicator set. This is a pure
// read path: no indicator state is mutated, detection counting is an
// explicit separate call on IntelService. The result carries all matches
// and the highest confidence among them.
func (m *CorrelationMatcher) Correlate(ctx context.Context, event *core.SecurityEvent) (*core.CorrelationResult, error) {
	now := time.Now().UTC()
	result := &core.CorrelationResult{
		EventID:      event.ID,
		CorrelatedAt: now,
	}

	lookups := []struct {
		indType core.IndicatorType
		value   string
	}{
		{core.IndicatorTypeIPAddress, event.SourceIP},
		{core.IndicatorTypeUserAgent, event.UserAgent},
	}

	for _, l := range lookups {
		if l.value == "" {
			continue
		}
		ind, err := m.lookup(ctx, l.indType, l.value)
		if err != nil {
			return nil, err
		}
		if ind == nil || ind.IsExpired(now) {
			continue
		}

		result.Threats = append(result.Threats, ind)
		if ind.Confidence > result.MaxThreatLevel {
			result.MaxThreatLevel = ind.Confidence
		}
		metrics.CorrelationMatches.Inc()
	}

	result.HasThreats = len(result.Threats) > 0

	if result.HasThreats && m.sink != nil {
		severity := core.SeverityMedium
		for _, threat := range result.Threats {
			if core.SeverityWeight(threat.Severity) > core.SeverityWeight(severity) {
				severity = threat.Severity
			}
		}
		evt := notify.Event{
			Kind:        notify.EventThreatCorrelated,
			Severity:    severity,
			Timestamp:   now,
			Correlation: result,
		}
		if err := m.sink.Publish(ctx, evt); err != nil {
			m.logger.Errorw("Failed to publish correlation result",
				"event_id", event.ID, "error", err)
		}
	}

	return result, nil
}

// lookup consults the cache first, falling back to the store. Nil with no
// error means no active indicator matches.
func (m *CorrelationMatcher) lookup(ctx context.Context, indType core.IndicatorType, value string) (*core.ThreatIndicator, error) {
	metrics.CorrelationLookups.Inc()

	if m.cache != nil {
		if ind, ok := m.cache.Get(ctx, indType, value); ok {
			return ind, nil
		}
	}

	ind, err := m.indicators.FindActiveByTypeAndValue(ctx, indType, value)
	if errors.Is(err, storage.ErrIndicatorNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("indicator lookup failed for %s %q: %w", indType, value, err)
	}

	if m.cache != nil {
		m.cache.Set(ctx, ind)
	}
	return ind, nil
}
