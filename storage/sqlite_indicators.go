package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"sentinel/core"
	"sentinel/metrics"
)

// SQLiteIndicatorStore implements IndicatorStore using SQLite.
type SQLiteIndicatorStore struct {
	sqlite *SQLite
	logger *zap.SugaredLogger
}

// NewSQLiteIndicatorStore creates an indicator store backed by the given connection.
func NewSQLiteIndicatorStore(sqlite *SQLite, logger *zap.SugaredLogger) *SQLiteIndicatorStore {
	return &SQLiteIndicatorStore{sqlite: sqlite, logger: logger}
}

const indicatorColumns = `id, type, value, source, severity, confidence, list_status,
	active, threat_type, detection_count, false_positive_count,
	first_seen, last_seen, expires_at, created_at, updated_at`

// Save inserts a new indicator or fully replaces an existing one.
func (s *SQLiteIndicatorStore) Save(ctx context.Context, ind *core.ThreatIndicator) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := ind.Validate(); err != nil {
		return fmt.Errorf("indicator validation failed: %w", err)
	}

	query := `
		INSERT INTO threat_indicators (` + indicatorColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type = excluded.type,
			value = excluded.value,
			source = excluded.source,
			severity = excluded.severity,
			confidence = excluded.confidence,
			list_status = excluded.list_status,
			active = excluded.active,
			threat_type = excluded.threat_type,
			detection_count = excluded.detection_count,
			false_positive_count = excluded.false_positive_count,
			first_seen = excluded.first_seen,
			last_seen = excluded.last_seen,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`

	_, err := s.sqlite.WriteDB.ExecContext(ctx, query,
		ind.ID, ind.Type, ind.Value, ind.Source, ind.Severity, ind.Confidence,
		ind.ListStatus, ind.Active, ind.ThreatType,
		ind.DetectionCount, ind.FalsePositiveCount,
		ind.FirstSeen, ind.LastSeen, ind.ExpiresAt, ind.CreatedAt, ind.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicateIndicator
		}
		metrics.StoreErrors.WithLabelValues("indicators").Inc()
		return fmt.Errorf("failed to save indicator: %w", err)
	}

	return nil
}

// FindByID retrieves an indicator by ID.
func (s *SQLiteIndicatorStore) FindByID(ctx context.Context, id string) (*core.ThreatIndicator, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `SELECT ` + indicatorColumns + ` FROM threat_indicators WHERE id = ?`

	ind, err := scanIndicator(s.sqlite.ReadDB.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrIndicatorNotFound
	}
	if err != nil {
		metrics.StoreErrors.WithLabelValues("indicators").Inc()
		return nil, fmt.Errorf("failed to get indicator %s: %w", id, err)
	}
	return ind, nil
}

// FindByKey retrieves an indicator by its uniqueness key (type, value, source).
func (s *SQLiteIndicatorStore) FindByKey(ctx context.Context, indType core.IndicatorType, value, source string) (*core.ThreatIndicator, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `SELECT ` + indicatorColumns + ` FROM threat_indicators WHERE type = ? AND value = ? AND source = ?`

	ind, err := scanIndicator(s.sqlite.ReadDB.QueryRowContext(ctx, query, indType, value, source))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrIndicatorNotFound
	}
	if err != nil {
		metrics.StoreErrors.WithLabelValues("indicators").Inc()
		return nil, fmt.Errorf("failed to get indicator by key: %w", err)
	}
	return ind, nil
}

// FindActiveByTypeAndValue returns the first active indicator matching the
// type and value. Domain and email values match case-insensitively, which is
// done with SQL lower() rather than LIKE to keep the comparison exact.
func (s *SQLiteIndicatorStore) FindActiveByTypeAndValue(ctx context.Context, indType core.IndicatorType, value string) (*core.ThreatIndicator, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	valueExpr := "value = ?"
	queryValue := value
	if indType.CaseInsensitive() {
		valueExpr = "lower(value) = ?"
		queryValue = strings.ToLower(value)
	}

	query := `SELECT ` + indicatorColumns + ` FROM threat_indicators
		WHERE type = ? AND ` + valueExpr + ` AND active = 1
		ORDER BY confidence DESC LIMIT 1`

	ind, err := scanIndicator(s.sqlite.ReadDB.QueryRowContext(ctx, query, indType, queryValue))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrIndicatorNotFound
	}
	if err != nil {
		metrics.StoreErrors.WithLabelValues("indicators").Inc()
		return nil, fmt.Errorf("failed to look up indicator: %w", err)
	}
	return ind, nil
}

// Delete removes an indicator by ID.
func (s *SQLiteIndicatorStore) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := s.sqlite.WriteDB.ExecContext(ctx, `DELETE FROM threat_indicators WHERE id = ?`, id)
	if err != nil {
		metrics.StoreErrors.WithLabelValues("indicators").Inc()
		return fmt.Errorf("failed to delete indicator %s: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return ErrIndicatorNotFound
	}

	s.logger.Infow("Indicator deleted", "indicator_id", id)
	return nil
}

// DeleteInactiveBefore removes inactive indicators not seen since the cutoff.
func (s *SQLiteIndicatorStore) DeleteInactiveBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	res, err := s.sqlite.WriteDB.ExecContext(ctx,
		`DELETE FROM threat_indicators WHERE active = 0 AND last_seen < ?`, cutoff)
	if err != nil {
		metrics.StoreErrors.WithLabelValues("indicators").Inc()
		return 0, fmt.Errorf("failed to delete inactive indicators: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected > 0 {
		s.logger.Infow("Inactive indicators removed", "count", affected, "cutoff", cutoff)
	}
	return affected, nil
}

// CountBySeverity returns active indicator counts keyed by severity.
func (s *SQLiteIndicatorStore) CountBySeverity(ctx context.Context) (map[core.Severity]int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := s.sqlite.ReadDB.QueryContext(ctx,
		`SELECT severity, COUNT(*) FROM threat_indicators WHERE active = 1 GROUP BY severity`)
	if err != nil {
		metrics.StoreErrors.WithLabelValues("indicators").Inc()
		return nil, fmt.Errorf("failed to count indicators: %w", err)
	}
	defer rows.Close()

	counts := make(map[core.Severity]int64)
	for rows.Next() {
		var sev core.Severity
		var n int64
		if err := rows.Scan(&sev, &n); err != nil {
			return nil, fmt.Errorf("failed to scan severity count: %w", err)
		}
		counts[sev] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate severity counts: %w", err)
	}
	return counts, nil
}

// FindActive returns all active indicators, most recently seen first.
func (s *SQLiteIndicatorStore) FindActive(ctx context.Context) ([]*core.ThreatIndicator, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `SELECT ` + indicatorColumns + ` FROM threat_indicators WHERE active = 1 ORDER BY last_seen DESC`

	rows, err := s.sqlite.ReadDB.QueryContext(ctx, query)
	if err != nil {
		metrics.StoreErrors.WithLabelValues("indicators").Inc()
		return nil, fmt.Errorf("failed to query active indicators: %w", err)
	}
	defer rows.Close()

	var indicators []*core.ThreatIndicator
	for rows.Next() {
		ind, err := scanIndicator(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan indicator: %w", err)
		}
		indicators = append(indicators, ind)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate indicators: %w", err)
	}
	return indicators, nil
}

func scanIndicator(row rowScanner) (*core.ThreatIndicator, error) {
	var ind core.ThreatIndicator
	var expiresAt sql.NullTime

	err := row.Scan(
		&ind.ID, &ind.Type, &ind.Value, &ind.Source, &ind.Severity, &ind.Confidence,
		&ind.ListStatus, &ind.Active, &ind.ThreatType,
		&ind.DetectionCount, &ind.FalsePositiveCount,
		&ind.FirstSeen, &ind.LastSeen, &expiresAt, &ind.CreatedAt, &ind.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if expiresAt.Valid {
		t := expiresAt.Time
		ind.ExpiresAt = &t
	}

	return &ind, nil
}
