package core

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// SecurityMetric is a single time-series sample of a security metric.
// Metrics are immutable once recorded and are read-only inputs to the
// evaluation and anomaly engines.
type SecurityMetric struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Value        float64           `json:"value"`
	Timestamp    time.Time         `json:"timestamp"`
	SourceModule string            `json:"source_module"`
	Tags         map[string]string `json:"tags,omitempty"`
	Interval     time.Duration     `json:"interval,omitempty"` // aggregation interval
}

// NewSecurityMetric creates a validated metric sample
func NewSecurityMetric(name string, value float64, timestamp time.Time, sourceModule string) (*SecurityMetric, error) {
	if strings.TrimSpace(name) == "" {
		return nil, NewValidationError("name", "cannot be empty")
	}
	if value < 0 {
		return nil, NewValidationError("value", "cannot be negative")
	}
	return &SecurityMetric{
		ID:           uuid.New().String(),
		Name:         name,
		Value:        value,
		Timestamp:    timestamp,
		SourceModule: sourceModule,
	}, nil
}

// AnomalyReason is the fixed reason attached to threshold anomalies
const AnomalyReason = "value significantly above average"

// MetricAnomaly reports a metric sample exceeding a statistically derived
// threshold. Anomalies from a single detection run share the same
// threshold value.
type MetricAnomaly struct {
	MetricID   string    `json:"metric_id"`
	MetricName string    `json:"metric_name"`
	Value      float64   `json:"value"`
	Threshold  float64   `json:"threshold"`
	Timestamp  time.Time `json:"timestamp"`
	Reason     string    `json:"reason"`
}
