package storage

import (
	"context"
	"time"

	"sentinel/core"
)

// RuleStore defines the interface for alert rule persistence.
// Trigger-state updates go through CompareAndSave so two overlapping
// evaluation cycles can never both record a trigger for the same rule.
type RuleStore interface {
	FindEnabled(ctx context.Context) ([]*core.AlertRule, error)
	FindByID(ctx context.Context, id string) (*core.AlertRule, error)
	FindAll(ctx context.Context) ([]*core.AlertRule, error)
	Save(ctx context.Context, rule *core.AlertRule) error
	// CompareAndSave persists the rule only if the stored version still
	// equals expectedVersion, bumping the version on success. Returns
	// ErrVersionConflict when the version moved underneath the caller.
	CompareAndSave(ctx context.Context, rule *core.AlertRule, expectedVersion int64) error
	Delete(ctx context.Context, id string) error
}

// MetricStore defines the read interface the evaluation and anomaly
// engines use, plus recording for ingestion.
type MetricStore interface {
	// QueryAboveThreshold returns samples of the named metric with value
	// >= threshold and timestamp >= since, ordered newest-first.
	QueryAboveThreshold(ctx context.Context, name string, threshold float64, since time.Time) ([]*core.SecurityMetric, error)
	// QuerySince returns all samples of the named metric with timestamp
	// >= since, in chronological order.
	QuerySince(ctx context.Context, name string, since time.Time) ([]*core.SecurityMetric, error)
	Record(ctx context.Context, metric *core.SecurityMetric) error
}

// IndicatorStore defines the interface for threat indicator persistence
type IndicatorStore interface {
	// FindActiveByTypeAndValue returns the active indicator matching the
	// type and value, honoring per-type case sensitivity. Returns
	// ErrIndicatorNotFound when no active indicator matches.
	FindActiveByTypeAndValue(ctx context.Context, indType core.IndicatorType, value string) (*core.ThreatIndicator, error)
	FindByID(ctx context.Context, id string) (*core.ThreatIndicator, error)
	FindByKey(ctx context.Context, indType core.IndicatorType, value, source string) (*core.ThreatIndicator, error)
	FindActive(ctx context.Context) ([]*core.ThreatIndicator, error)
	Save(ctx context.Context, indicator *core.ThreatIndicator) error
	Delete(ctx context.Context, id string) error
	// DeleteInactiveBefore removes inactive indicators not seen since the
	// cutoff, returning how many were removed.
	DeleteInactiveBefore(ctx context.Context, cutoff time.Time) (int64, error)
	CountBySeverity(ctx context.Context) (map[core.Severity]int64, error)
}
