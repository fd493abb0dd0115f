package notify

import (
	"context"
	"time"

	"sentinel/core"
)

// EventKind classifies published events
type EventKind string

const (
	// EventAlertTriggered is published when a rule fires
	EventAlertTriggered EventKind = "alert_triggered"
	// EventThreatCorrelated is published when event correlation finds threats
	EventThreatCorrelated EventKind = "threat_correlated"
	// EventIndicatorLifecycle is published on indicator creation, update,
	// whitelist, blacklist and deactivation transitions
	EventIndicatorLifecycle EventKind = "indicator_lifecycle"
	// EventAnomalyDetected is published when a metric sample breaks its
	// statistical threshold
	EventAnomalyDetected EventKind = "anomaly_detected"
)

// Event is the envelope delivered to sinks. Exactly one of the payload
// fields is set, matching the kind.
type Event struct {
	Kind      EventKind     `json:"kind"`
	Severity  core.Severity `json:"severity"`
	Timestamp time.Time     `json:"timestamp"`

	// Action names the lifecycle transition for indicator events:
	// created, updated, whitelisted, blacklisted, false_positive.
	Action string `json:"action,omitempty"`

	Trigger     *core.AlertTrigger      `json:"trigger,omitempty"`
	Correlation *core.CorrelationResult `json:"correlation,omitempty"`
	Indicator   *core.ThreatIndicator   `json:"indicator,omitempty"`
	Anomaly     *core.MetricAnomaly     `json:"anomaly,omitempty"`
}

// Sink receives published events. Implementations must be safe for
// concurrent use; Publish is called from evaluation worker goroutines.
type Sink interface {
	Publish(ctx context.Context, event Event) error
	Name() string
}
