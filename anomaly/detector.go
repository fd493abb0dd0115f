package anomaly

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"sentinel/core"
	"sentinel/metrics"
	"sentinel/notify"
	"sentinel/storage"
)

// MinSamples is the smallest window that yields a meaningful baseline.
// Below it detection returns no anomalies rather than guessing.
const MinSamples = 10

// DeviationMultiplier sets the detection threshold at mean plus this many
// standard deviations.
const DeviationMultiplier = 2.0

// Detector flags metric samples far above their recent statistical baseline.
type Detector struct {
	samples storage.MetricStore
	sink    notify.Sink
	logger  *zap.SugaredLogger
}

func NewDetector(samples storage.MetricStore, sink notify.Sink, logger *zap.SugaredLogger) *Detector {
	return &Detector{samples: samples, sink: sink, logger: logger}
}

// Detect examines all samples of the named metric within the window ending
// now. The threshold is mean plus two population standard deviations over
// the whole window; every sample above it is reported. Fewer than
// MinSamples yields no anomalies.
func (d *Detector) Detect(ctx context.Context, metricName string, window time.Duration) ([]core.MetricAnomaly, error) {
	since := time.Now().UTC().Add(-window)
	samples, err := d.samples.QuerySince(ctx, metricName, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load samples for %q: %w", metricName, err)
	}

	if len(samples) < MinSamples {
		return nil, nil
	}

	mean, stddev := meanAndStdDev(samples)
	threshold := mean + DeviationMultiplier*stddev

	var anomalies []core.MetricAnomaly
	for _, s := range samples {
		if s.Value <= threshold {
			continue
		}
		anomalies = append(anomalies, core.MetricAnomaly{
			MetricID:   s.ID,
			MetricName: s.Name,
			Value:      s.Value,
			Threshold:  threshold,
			Timestamp:  s.Timestamp,
			Reason:     core.AnomalyReason,
		})
		metrics.AnomaliesDetected.WithLabelValues(metricName).Inc()
	}

	if len(anomalies) > 0 {
		d.logger.Infow("Anomalies detected",
			"metric", metricName,
			"count", len(anomalies),
			"mean", mean,
			"threshold", threshold,
		)
		d.publish(ctx, anomalies)
	}

	return anomalies, nil
}

func (d *Detector) publish(ctx context.Context, anomalies []core.MetricAnomaly) {
	if d.sink == nil {
		return
	}
	for i := range anomalies {
		evt := notify.Event{
			Kind:      notify.EventAnomalyDetected,
			Severity:  core.SeverityMedium,
			Timestamp: anomalies[i].Timestamp,
			Anomaly:   &anomalies[i],
		}
		if err := d.sink.Publish(ctx, evt); err != nil {
			d.logger.Errorw("Failed to publish anomaly",
				"metric", anomalies[i].MetricName, "error", err)
		}
	}
}

// meanAndStdDev computes the population mean and standard deviation. The
// flagged samples stay in the baseline; a single spike inflates the
// threshold it is judged against, which damps repeat reports.
func meanAndStdDev(samples []*core.SecurityMetric) (float64, float64) {
	var sum float64
	for _, s := range samples {
		sum += s.Value
	}
	mean := sum / float64(len(samples))

	var sqDiff float64
	for _, s := range samples {
		d := s.Value - mean
		sqDiff += d * d
	}
	return mean, math.Sqrt(sqDiff / float64(len(samples)))
}
