package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"sentinel/core"
	"sentinel/metrics"
)

// SQLiteRuleStore implements RuleStore using SQLite.
type SQLiteRuleStore struct {
	sqlite *SQLite
	logger *zap.SugaredLogger
}

// NewSQLiteRuleStore creates a rule store backed by the given connection.
func NewSQLiteRuleStore(sqlite *SQLite, logger *zap.SugaredLogger) *SQLiteRuleStore {
	return &SQLiteRuleStore{sqlite: sqlite, logger: logger}
}

const ruleColumns = `id, name, description, condition, severity, enabled, threshold,
	time_window_seconds, cooldown_seconds, notification_channels,
	last_triggered, trigger_count, version, created_at, updated_at`

// FindEnabled returns all enabled rules.
func (s *SQLiteRuleStore) FindEnabled(ctx context.Context) ([]*core.AlertRule, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `SELECT ` + ruleColumns + ` FROM alert_rules WHERE enabled = 1 ORDER BY name`

	rows, err := s.sqlite.ReadDB.QueryContext(ctx, query)
	if err != nil {
		metrics.StoreErrors.WithLabelValues("rules").Inc()
		return nil, fmt.Errorf("failed to query enabled rules: %w", err)
	}
	defer rows.Close()

	return s.scanRules(rows)
}

// FindAll returns every rule regardless of enabled state.
func (s *SQLiteRuleStore) FindAll(ctx context.Context) ([]*core.AlertRule, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `SELECT ` + ruleColumns + ` FROM alert_rules ORDER BY name`

	rows, err := s.sqlite.ReadDB.QueryContext(ctx, query)
	if err != nil {
		metrics.StoreErrors.WithLabelValues("rules").Inc()
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	return s.scanRules(rows)
}

// FindByID retrieves a rule by ID.
func (s *SQLiteRuleStore) FindByID(ctx context.Context, id string) (*core.AlertRule, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `SELECT ` + ruleColumns + ` FROM alert_rules WHERE id = ?`

	rule, err := s.scanRule(s.sqlite.ReadDB.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRuleNotFound
	}
	if err != nil {
		metrics.StoreErrors.WithLabelValues("rules").Inc()
		return nil, fmt.Errorf("failed to get rule %s: %w", id, err)
	}
	return rule, nil
}

// Save inserts a new rule or fully replaces an existing one.
func (s *SQLiteRuleStore) Save(ctx context.Context, rule *core.AlertRule) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rule.Validate(); err != nil {
		return fmt.Errorf("rule validation failed: %w", err)
	}

	channelsJSON, _ := json.Marshal(rule.NotificationChannels)
	rule.UpdatedAt = time.Now().UTC()

	query := `
		INSERT INTO alert_rules (` + ruleColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			condition = excluded.condition,
			severity = excluded.severity,
			enabled = excluded.enabled,
			threshold = excluded.threshold,
			time_window_seconds = excluded.time_window_seconds,
			cooldown_seconds = excluded.cooldown_seconds,
			notification_channels = excluded.notification_channels,
			last_triggered = excluded.last_triggered,
			trigger_count = excluded.trigger_count,
			version = excluded.version,
			updated_at = excluded.updated_at
	`

	_, err := s.sqlite.WriteDB.ExecContext(ctx, query,
		rule.ID, rule.Name, rule.Description, rule.Condition, rule.Severity,
		rule.Enabled, rule.Threshold,
		int64(rule.TimeWindow.Seconds()), int64(rule.CooldownPeriod.Seconds()),
		string(channelsJSON), rule.LastTriggered, rule.TriggerCount, rule.Version,
		rule.CreatedAt, rule.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicateRule
		}
		metrics.StoreErrors.WithLabelValues("rules").Inc()
		return fmt.Errorf("failed to save rule: %w", err)
	}

	s.logger.Debugw("Rule saved", "rule_id", rule.ID, "name", rule.Name)
	return nil
}

// CompareAndSave persists the rule only when the stored version still equals
// expectedVersion, bumping the version on success. ErrVersionConflict means
// another writer got there first.
func (s *SQLiteRuleStore) CompareAndSave(ctx context.Context, rule *core.AlertRule, expectedVersion int64) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	channelsJSON, _ := json.Marshal(rule.NotificationChannels)
	rule.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE alert_rules SET
			name = ?, description = ?, condition = ?, severity = ?, enabled = ?,
			threshold = ?, time_window_seconds = ?, cooldown_seconds = ?,
			notification_channels = ?, last_triggered = ?, trigger_count = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`

	res, err := s.sqlite.WriteDB.ExecContext(ctx, query,
		rule.Name, rule.Description, rule.Condition, rule.Severity, rule.Enabled,
		rule.Threshold, int64(rule.TimeWindow.Seconds()), int64(rule.CooldownPeriod.Seconds()),
		string(channelsJSON), rule.LastTriggered, rule.TriggerCount,
		rule.UpdatedAt, rule.ID, expectedVersion,
	)
	if err != nil {
		metrics.StoreErrors.WithLabelValues("rules").Inc()
		return fmt.Errorf("failed to update rule %s: %w", rule.ID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return ErrVersionConflict
	}

	rule.Version = expectedVersion + 1
	return nil
}

// Delete removes a rule by ID.
func (s *SQLiteRuleStore) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := s.sqlite.WriteDB.ExecContext(ctx, `DELETE FROM alert_rules WHERE id = ?`, id)
	if err != nil {
		metrics.StoreErrors.WithLabelValues("rules").Inc()
		return fmt.Errorf("failed to delete rule %s: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return ErrRuleNotFound
	}

	s.logger.Infow("Rule deleted", "rule_id", id)
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SQLiteRuleStore) scanRule(row rowScanner) (*core.AlertRule, error) {
	var rule core.AlertRule
	var channelsJSON string
	var lastTriggered sql.NullTime
	var windowSecs, cooldownSecs int64

	err := row.Scan(
		&rule.ID, &rule.Name, &rule.Description, &rule.Condition, &rule.Severity,
		&rule.Enabled, &rule.Threshold, &windowSecs, &cooldownSecs,
		&channelsJSON, &lastTriggered, &rule.TriggerCount, &rule.Version,
		&rule.CreatedAt, &rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rule.TimeWindow = time.Duration(windowSecs) * time.Second
	rule.CooldownPeriod = time.Duration(cooldownSecs) * time.Second
	if lastTriggered.Valid {
		t := lastTriggered.Time
		rule.LastTriggered = &t
	}
	if channelsJSON != "" && channelsJSON != "null" {
		if err := json.Unmarshal([]byte(channelsJSON), &rule.NotificationChannels); err != nil {
			s.logger.Warnw("Failed to parse notification channels", "rule_id", rule.ID, "error", err)
		}
	}

	return &rule, nil
}

func (s *SQLiteRuleStore) scanRules(rows *sql.Rows) ([]*core.AlertRule, error) {
	var rules []*core.AlertRule
	for rows.Next() {
		rule, err := s.scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rules: %w", err)
	}
	return rules, nil
}
