package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"sentinel/core"
	"sentinel/metrics"
)

// SQLiteMetricStore implements MetricStore using SQLite.
type SQLiteMetricStore struct {
	sqlite *SQLite
	logger *zap.SugaredLogger
}

// NewSQLiteMetricStore creates a metric store backed by the given connection.
func NewSQLiteMetricStore(sqlite *SQLite, logger *zap.SugaredLogger) *SQLiteMetricStore {
	return &SQLiteMetricStore{sqlite: sqlite, logger: logger}
}

const metricColumns = `id, name, value, timestamp, source_module, tags, interval_seconds`

// Record stores a single metric sample.
func (s *SQLiteMetricStore) Record(ctx context.Context, metric *core.SecurityMetric) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tagsJSON, _ := json.Marshal(metric.Tags)

	query := `INSERT INTO security_metrics (` + metricColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := s.sqlite.WriteDB.ExecContext(ctx, query,
		metric.ID, metric.Name, metric.Value, metric.Timestamp,
		metric.SourceModule, string(tagsJSON), int64(metric.Interval.Seconds()),
	)
	if err != nil {
		metrics.StoreErrors.WithLabelValues("metrics").Inc()
		return fmt.Errorf("failed to record metric %s: %w", metric.Name, err)
	}

	return nil
}

// QueryAboveThreshold returns samples of the named metric with value at or
// above the threshold and timestamp at or after since, newest first.
func (s *SQLiteMetricStore) QueryAboveThreshold(ctx context.Context, name string, threshold float64, since time.Time) ([]*core.SecurityMetric, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `
		SELECT ` + metricColumns + ` FROM security_metrics
		WHERE name = ? AND value >= ? AND timestamp >= ?
		ORDER BY timestamp DESC
	`

	rows, err := s.sqlite.ReadDB.QueryContext(ctx, query, name, threshold, since)
	if err != nil {
		metrics.StoreErrors.WithLabelValues("metrics").Inc()
		return nil, fmt.Errorf("%w: query above threshold: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	return s.scanMetrics(rows)
}

// QuerySince returns all samples of the named metric with timestamp at or
// after since, in chronological order.
func (s *SQLiteMetricStore) QuerySince(ctx context.Context, name string, since time.Time) ([]*core.SecurityMetric, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `
		SELECT ` + metricColumns + ` FROM security_metrics
		WHERE name = ? AND timestamp >= ?
		ORDER BY timestamp ASC
	`

	rows, err := s.sqlite.ReadDB.QueryContext(ctx, query, name, since)
	if err != nil {
		metrics.StoreErrors.WithLabelValues("metrics").Inc()
		return nil, fmt.Errorf("%w: query since %s: %v", ErrStoreUnavailable, since.Format(time.RFC3339), err)
	}
	defer rows.Close()

	return s.scanMetrics(rows)
}

// DeleteBefore removes samples older than the cutoff, returning the count.
// Used by retention cleanup.
func (s *SQLiteMetricStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	res, err := s.sqlite.WriteDB.ExecContext(ctx,
		`DELETE FROM security_metrics WHERE timestamp < ?`, cutoff)
	if err != nil {
		metrics.StoreErrors.WithLabelValues("metrics").Inc()
		return 0, fmt.Errorf("failed to delete old metrics: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected > 0 {
		s.logger.Infow("Old metrics removed", "count", affected, "cutoff", cutoff)
	}
	return affected, nil
}

func (s *SQLiteMetricStore) scanMetrics(rows *sql.Rows) ([]*core.SecurityMetric, error) {
	var samples []*core.SecurityMetric
	for rows.Next() {
		var m core.SecurityMetric
		var tagsJSON string
		var intervalSecs int64

		err := rows.Scan(&m.ID, &m.Name, &m.Value, &m.Timestamp,
			&m.SourceModule, &tagsJSON, &intervalSecs)
		if err != nil {
			return nil, fmt.Errorf("failed to scan metric: %w", err)
		}

		m.Interval = time.Duration(intervalSecs) * time.Second
		if tagsJSON != "" && tagsJSON != "{}" && tagsJSON != "null" {
			if err := json.Unmarshal([]byte(tagsJSON), &m.Tags); err != nil {
				s.logger.Warnw("Failed to parse metric tags", "metric_id", m.ID, "error", err)
			}
		}

		samples = append(samples, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate metrics: %w", err)
	}
	return samples, nil
}
