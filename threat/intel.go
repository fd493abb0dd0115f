package threat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"sentinel/core"
	"sentinel/notify"
	"sentinel/storage"
)

// IntelService manages the threat indicator lifecycle: ingestion, feed
// import, analyst verdicts and expiry housekeeping.
type IntelService struct {
	indicators storage.IndicatorStore
	cache      IndicatorCache
	sink       notify.Sink
	logger     *zap.SugaredLogger
}

func NewIntelService(indicators storage.IndicatorStore, cache IndicatorCache, sink notify.Sink, logger *zap.SugaredLogger) *IntelService {
	return &IntelService{
		indicators: indicators,
		cache:      cache,
		sink:       sink,
		logger:     logger,
	}
}

// CreateOrUpdateIndicator ingests one sighting. An existing indicator with
// the same type, value and source keeps the higher of the two confidences
// and gets its last-seen refreshed; otherwise a new indicator is created.
func (s *IntelService) CreateOrUpdateIndicator(ctx context.Context, indType core.IndicatorType, value string, severity core.Severity, confidence float64, source string) (*core.ThreatIndicator, error) {
	now := time.Now().UTC()

	existing, err := s.indicators.FindByKey(ctx, indType, value, source)
	if err != nil && !errors.Is(err, storage.ErrIndicatorNotFound) {
		return nil, fmt.Errorf("indicator lookup failed: %w", err)
	}

	if existing != nil {
		if confidence > existing.Confidence {
			if err := existing.SetConfidence(confidence); err != nil {
				return nil, err
			}
		}
		if core.SeverityWeight(severity) > core.SeverityWeight(existing.Severity) {
			existing.Severity = severity
		}
		// A repeat sighting is itself a detection.
		existing.RecordDetection(now)
		if err := s.indicators.Save(ctx, existing); err != nil {
			return nil, fmt.Errorf("failed to update indicator: %w", err)
		}
		s.invalidate(ctx, existing)
		s.publishLifecycle(ctx, existing, "updated")
		return existing, nil
	}

	ind, err := core.NewThreatIndicator(indType, value, severity, confidence, source)
	if err != nil {
		return nil, err
	}
	if err := s.indicators.Save(ctx, ind); err != nil {
		return nil, fmt.Errorf("failed to save indicator: %w", err)
	}
	s.logger.Infow("Indicator created",
		"indicator_id", ind.ID, "type", ind.Type, "source", source)
	s.publishLifecycle(ctx, ind, "created")
	return ind, nil
}

// RecordDetection bumps the indicator's detection counter and refreshes
// its last-seen timestamp. Correlation queries never do this themselves,
// so callers confirm a sighting explicitly.
func (s *IntelService) RecordDetection(ctx context.Context, id string) (*core.ThreatIndicator, error) {
	ind, err := s.indicators.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	ind.RecordDetection(time.Now().UTC())
	if err := s.indicators.Save(ctx, ind); err != nil {
		return nil, fmt.Errorf("failed to record detection: %w", err)
	}
	s.invalidate(ctx, ind)
	return ind, nil
}

// MarkFalsePositive records an analyst false-positive verdict: the sighting
// counter and confidence decay apply, and the indicator is deactivated so
// it stops matching until re-imported or re-activated.
func (s *IntelService) MarkFalsePositive(ctx context.Context, id string) (*core.ThreatIndicator, error) {
	ind, err := s.indicators.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	ind.RecordFalsePositive(now)
	ind.Deactivate(now)

	if err := s.indicators.Save(ctx, ind); err != nil {
		return nil, fmt.Errorf("failed to save false-positive verdict: %w", err)
	}
	s.invalidate(ctx, ind)
	s.publishLifecycle(ctx, ind, "false_positive")

	s.logger.Infow("Indicator marked false positive",
		"indicator_id", ind.ID,
		"false_positive_count", ind.FalsePositiveCount,
		"confidence", ind.Confidence,
	)
	return ind, nil
}

// Whitelist marks the indicator as trusted. It is deactivated and will
// never block again until its status changes.
func (s *IntelService) Whitelist(ctx context.Context, id string) (*core.ThreatIndicator, error) {
	ind, err := s.indicators.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	ind.Whitelist(time.Now().UTC())
	if err := s.indicators.Save(ctx, ind); err != nil {
		return nil, fmt.Errorf("failed to whitelist indicator: %w", err)
	}
	s.invalidate(ctx, ind)
	s.publishLifecycle(ctx, ind, "whitelisted")
	return ind, nil
}

// Blacklist marks the indicator as confirmed malicious, forcing it active
// and escalating severity.
func (s *IntelService) Blacklist(ctx context.Context, id string) (*core.ThreatIndicator, error) {
	ind, err := s.indicators.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	ind.Blacklist(time.Now().UTC())
	if err := s.indicators.Save(ctx, ind); err != nil {
		return nil, fmt.Errorf("failed to blacklist indicator: %w", err)
	}
	s.invalidate(ctx, ind)
	s.publishLifecycle(ctx, ind, "blacklisted")
	return ind, nil
}

// FeedEntry is one record of an external threat feed
type FeedEntry struct {
	Type       core.IndicatorType `json:"type" yaml:"type"`
	Value      string             `json:"value" yaml:"value"`
	Severity   core.Severity      `json:"severity" yaml:"severity"`
	Confidence float64            `json:"confidence" yaml:"confidence"`
	ThreatType string             `json:"threat_type,omitempty" yaml:"threat_type,omitempty"`
	ExpiresAt  *time.Time         `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
}

// ImportResult summarizes a feed import
type ImportResult struct {
	Imported int `json:"imported"`
	Updated  int `json:"updated"`
	Skipped  int `json:"skipped"`
}

// ImportFeed ingests a batch of feed entries from one source. Invalid
// entries and duplicates with no improvement are skipped; a bad entry
// never aborts the batch.
func (s *IntelService) ImportFeed(ctx context.Context, source string, entries []FeedEntry) (*ImportResult, error) {
	result := &ImportResult{}
	now := time.Now().UTC()

	for _, entry := range entries {
		existing, err := s.indicators.FindByKey(ctx, entry.Type, entry.Value, source)
		if err != nil && !errors.Is(err, storage.ErrIndicatorNotFound) {
			return result, fmt.Errorf("feed import lookup failed: %w", err)
		}

		if existing != nil {
			if entry.Confidence <= existing.Confidence {
				result.Skipped++
				continue
			}
			if err := existing.SetConfidence(entry.Confidence); err != nil {
				result.Skipped++
				continue
			}
			if core.SeverityWeight(entry.Severity) > core.SeverityWeight(existing.Severity) {
				existing.Severity = entry.Severity
			}
			existing.LastSeen = now
			existing.UpdatedAt = now
			existing.ExpiresAt = entry.ExpiresAt
			if err := s.indicators.Save(ctx, existing); err != nil {
				s.logger.Warnw("Feed update failed",
					"type", entry.Type, "value", entry.Value, "error", err)
				result.Skipped++
				continue
			}
			s.invalidate(ctx, existing)
			s.publishLifecycle(ctx, existing, "updated")
			result.Updated++
			continue
		}

		ind, err := core.NewThreatIndicator(entry.Type, entry.Value, entry.Severity, entry.Confidence, source)
		if err != nil {
			s.logger.Debugw("Feed entry rejected",
				"type", entry.Type, "value", entry.Value, "error", err)
			result.Skipped++
			continue
		}
		ind.ThreatType = entry.ThreatType
		ind.ExpiresAt = entry.ExpiresAt
		if err := s.indicators.Save(ctx, ind); err != nil {
			s.logger.Warnw("Feed insert failed",
				"type", entry.Type, "value", entry.Value, "error", err)
			result.Skipped++
			continue
		}
		s.publishLifecycle(ctx, ind, "created")
		result.Imported++
	}

	s.logger.Infow("Threat feed imported",
		"source", source,
		"imported", result.Imported,
		"updated", result.Updated,
		"skipped", result.Skipped,
	)
	return result, nil
}

// CleanupExpired deactivates expired indicators and purges inactive ones
// not seen within the retention window. Returns how many were deactivated.
func (s *IntelService) CleanupExpired(ctx context.Context, retention time.Duration) (int64, error) {
	now := time.Now().UTC()

	active, err := s.indicators.FindActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list active indicators: %w", err)
	}

	var deactivated int64
	for _, ind := range active {
		if !ind.IsExpired(now) {
			continue
		}
		ind.Deactivate(now)
		if err := s.indicators.Save(ctx, ind); err != nil {
			s.logger.Warnw("Failed to deactivate expired indicator",
				"indicator_id", ind.ID, "error", err)
			continue
		}
		s.invalidate(ctx, ind)
		deactivated++
	}

	if retention > 0 {
		purged, err := s.indicators.DeleteInactiveBefore(ctx, now.Add(-retention))
		if err != nil {
			return deactivated, fmt.Errorf("failed to purge inactive indicators: %w", err)
		}
		if purged > 0 {
			s.logger.Infow("Inactive indicators purged", "count", purged)
		}
	}

	return deactivated, nil
}

// Statistics reports active indicator counts by severity
type Statistics struct {
	Total      int64                   `json:"total"`
	BySeverity map[core.Severity]int64 `json:"by_severity"`
}

// GetStatistics returns active indicator counts
func (s *IntelService) GetStatistics(ctx context.Context) (*Statistics, error) {
	counts, err := s.indicators.CountBySeverity(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count indicators: %w", err)
	}

	stats := &Statistics{BySeverity: counts}
	for _, n := range counts {
		stats.Total += n
	}
	return stats, nil
}

func (s *IntelService) invalidate(ctx context.Context, ind *core.ThreatIndicator) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, ind.Type, ind.Value)
	}
}

func (s *IntelService) publishLifecycle(ctx context.Context, ind *core.ThreatIndicator, action string) {
	if s.sink == nil {
		return
	}
	evt := notify.Event{
		Kind:      notify.EventIndicatorLifecycle,
		Severity:  ind.Severity,
		Timestamp: time.Now().UTC(),
		Action:    action,
		Indicator: ind,
	}
	if err := s.sink.Publish(ctx, evt); err != nil {
		s.logger.Errorw("Failed to publish indicator lifecycle event",
			"indicator_id", ind.ID, "error", err)
	}
}
