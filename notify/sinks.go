package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"sentinel/core"
	"sentinel/metrics"
)

// LogSink writes events to the structured log. Always available, never fails.
type LogSink struct {
	logger *zap.SugaredLogger
}

func NewLogSink(logger *zap.SugaredLogger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Publish(ctx context.Context, event Event) error {
	fields := []interface{}{
		"kind", event.Kind,
		"severity", event.Severity,
	}
	switch {
	case event.Trigger != nil:
		fields = append(fields,
			"rule_id", event.Trigger.RuleID,
			"metric", event.Trigger.MetricName,
			"value", event.Trigger.ObservedValue,
			"threshold", event.Trigger.Threshold,
		)
	case event.Correlation != nil:
		fields = append(fields,
			"event_id", event.Correlation.EventID,
			"threat_count", len(event.Correlation.Threats),
			"max_threat_level", event.Correlation.MaxThreatLevel,
		)
	case event.Indicator != nil:
		fields = append(fields,
			"action", event.Action,
			"indicator_id", event.Indicator.ID,
			"indicator_type", event.Indicator.Type,
			"list_status", event.Indicator.ListStatus,
			"active", event.Indicator.Active,
		)
	case event.Anomaly != nil:
		fields = append(fields,
			"metric", event.Anomaly.MetricName,
			"value", event.Anomaly.Value,
			"anomaly_threshold", event.Anomaly.Threshold,
		)
	}
	s.logger.Infow("Security event", fields...)
	return nil
}

// WebhookSink POSTs events as JSON to a configured endpoint. Delivery is
// protected by a circuit breaker so a dead endpoint cannot stall the
// evaluation loop.
type WebhookSink struct {
	url     string
	headers map[string]string
	client  *http.Client
	breaker *core.CircuitBreaker
	logger  *zap.SugaredLogger
}

func NewWebhookSink(url string, headers map[string]string, timeout time.Duration, logger *zap.SugaredLogger) *WebhookSink {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookSink{
		url:     url,
		headers: headers,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
			},
		},
		breaker: core.NewCircuitBreaker(core.CircuitBreakerConfig{
			MaxFailures:         3,
			Timeout:             time.Minute,
			MaxHalfOpenRequests: 1,
		}),
		logger: logger,
	}
}

func (s *WebhookSink) Name() string { return "webhook" }

func (s *WebhookSink) Publish(ctx context.Context, event Event) error {
	if err := s.breaker.Allow(); err != nil {
		s.logger.Warnw("Webhook circuit breaker open, dropping event",
			"url", s.url, "kind", event.Kind)
		return err
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Sentinel/1.0")
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		s.breaker.RecordFailure()
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			s.logger.Debugf("Failed to close response body: %v", err)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		s.breaker.RecordFailure()
		return fmt.Errorf("webhook returned non-2xx status: %d", resp.StatusCode)
	}

	s.breaker.RecordSuccess()
	return nil
}

// Notifier fans events out to all configured sinks, filtered by minimum
// severity. Sink failures are logged and counted, never propagated: a
// broken channel must not fail the detection path that produced the event.
type Notifier struct {
	sinks       []Sink
	minSeverity core.Severity
	logger      *zap.SugaredLogger
	mu          sync.RWMutex
}

func NewNotifier(minSeverity core.Severity, logger *zap.SugaredLogger, sinks ...Sink) *Notifier {
	return &Notifier{
		sinks:       sinks,
		minSeverity: minSeverity,
		logger:      logger,
	}
}

// AddSink registers an additional sink.
func (n *Notifier) AddSink(sink Sink) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sinks = append(n.sinks, sink)
}

// Publish delivers the event to every sink. Returns nil always; per-sink
// failures show up in logs and the error counter.
func (n *Notifier) Publish(ctx context.Context, event Event) error {
	if event.Severity != "" && n.minSeverity != "" &&
		core.SeverityWeight(event.Severity) < core.SeverityWeight(n.minSeverity) {
		return nil
	}

	n.mu.RLock()
	sinks := make([]Sink, len(n.sinks))
	copy(sinks, n.sinks)
	n.mu.RUnlock()

	for _, sink := range sinks {
		if err := sink.Publish(ctx, event); err != nil {
			metrics.EventPublishErrors.WithLabelValues(sink.Name()).Inc()
			n.logger.Errorw("Failed to publish event",
				"sink", sink.Name(), "kind", event.Kind, "error", err)
			continue
		}
		metrics.EventsPublished.WithLabelValues(string(event.Kind)).Inc()
	}
	return nil
}

func (n *Notifier) Name() string { return "notifier" }
