package detect

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"sentinel/core"
	"sentinel/metrics"
	"sentinel/notify"
	"sentinel/storage"
)

// EvaluationResult summarizes one evaluation cycle
type EvaluationResult struct {
	RulesEvaluated int
	RulesSkipped   int
	RulesFailed    int
	Triggers       []*core.AlertTrigger
	Duration       time.Duration
}

// Engine evaluates alert rules against recorded metrics. Rules are
// evaluated concurrently on a shared worker pool; one rule failing never
// aborts the cycle.
type Engine struct {
	rules   storage.RuleStore
	samples storage.MetricStore
	sink    notify.Sink
	pool    *core.WorkerPool
	logger  *zap.SugaredLogger

	// ruleTimeout bounds a single rule evaluation inside a cycle.
	ruleTimeout time.Duration
}

// NewEngine creates an evaluation engine. The pool must be started by the
// caller; the engine only submits to it.
func NewEngine(rules storage.RuleStore, samples storage.MetricStore, sink notify.Sink, pool *core.WorkerPool, ruleTimeout time.Duration, logger *zap.SugaredLogger) *Engine {
	if ruleTimeout <= 0 {
		ruleTimeout = 10 * time.Second
	}
	return &Engine{
		rules:       rules,
		samples:     samples,
		sink:        sink,
		pool:        pool,
		logger:      logger,
		ruleTimeout: ruleTimeout,
	}
}

// EvaluateAll runs one evaluation cycle over every enabled rule. Rules are
// dispatched to the worker pool; rules whose evaluation cannot start
// before ctx's deadline are counted as skipped rather than blocking the
// cycle indefinitely.
func (e *Engine) EvaluateAll(ctx context.Context) (*EvaluationResult, error) {
	start := time.Now()
	timer := prometheus.NewTimer(metrics.EvaluationDuration)
	defer timer.ObserveDuration()

	rules, err := e.rules.FindEnabled(ctx)
	if err != nil {
		metrics.EvaluationErrors.WithLabelValues("load_rules").Inc()
		return nil, fmt.Errorf("failed to load enabled rules: %w", err)
	}

	result := &EvaluationResult{}
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, rule := range rules {
		if ctx.Err() != nil {
			mu.Lock()
			result.RulesSkipped++
			mu.Unlock()
			continue
		}

		rule := rule
		wg.Add(1)
		task := func() {
			defer wg.Done()

			trigger, err := e.EvaluateRule(ctx, rule)

			mu.Lock()
			defer mu.Unlock()
			result.RulesEvaluated++
			switch {
			case err != nil:
				result.RulesFailed++
				e.logger.Errorw("Rule evaluation failed",
					"rule_id", rule.ID, "rule_name", rule.Name, "error", err)
			case trigger != nil:
				result.Triggers = append(result.Triggers, trigger)
			}
		}

		if err := e.pool.Submit(task); err != nil {
			wg.Done()
			mu.Lock()
			result.RulesSkipped++
			mu.Unlock()
			metrics.EvaluationErrors.WithLabelValues("pool_saturated").Inc()
			e.logger.Warnw("Evaluation task dropped, worker pool saturated",
				"rule_id", rule.ID, "error", err)
		}
	}

	wg.Wait()
	result.Duration = time.Since(start)

	e.logger.Infow("Evaluation cycle complete",
		"evaluated", result.RulesEvaluated,
		"skipped", result.RulesSkipped,
		"failed", result.RulesFailed,
		"triggers", len(result.Triggers),
		"duration", result.Duration,
	)
	return result, nil
}

// EvaluateRule evaluates a single rule. Returns a trigger when the rule
// fired, nil when it did not, and an error only on infrastructure
// failures. Cooldown suppression and losing the trigger-state write race
// both return (nil, nil).
func (e *Engine) EvaluateRule(ctx context.Context, rule *core.AlertRule) (*core.AlertTrigger, error) {
	ctx, cancel := context.WithTimeout(ctx, e.ruleTimeout)
	defer cancel()

	metrics.RulesEvaluated.Inc()
	now := time.Now().UTC()

	if !rule.Enabled {
		return nil, nil
	}
	if !CanTrigger(rule, now) {
		e.logger.Debugw("Rule in cooldown",
			"rule_id", rule.ID, "remaining", CooldownRemaining(rule, now))
		return nil, nil
	}

	metricName := ExtractMetricName(rule.Condition)
	if metricName == "" {
		metrics.EvaluationErrors.WithLabelValues("bad_condition").Inc()
		return nil, core.NewValidationError("condition", "has no metric name")
	}

	matched, err := e.findMatch(ctx, rule, metricName, now)
	if err != nil {
		label := "query"
		if errors.Is(err, storage.ErrStoreUnavailable) {
			label = "store_unavailable"
		}
		metrics.EvaluationErrors.WithLabelValues(label).Inc()
		return nil, err
	}
	if matched == nil {
		return nil, nil
	}

	trigger := core.NewAlertTrigger(rule, metricName, matched.Value, now)

	// Record trigger state through compare-and-save so two overlapping
	// cycles cannot both fire this rule. Losing the race drops the
	// trigger: the winner already recorded one for this window.
	updated := *rule
	updated.LastTriggered = &now
	updated.TriggerCount++
	switch err := e.rules.CompareAndSave(ctx, &updated, rule.Version); {
	case errors.Is(err, storage.ErrVersionConflict):
		e.logger.Debugw("Trigger dropped, rule state changed concurrently",
			"rule_id", rule.ID, "version", rule.Version)
		return nil, nil
	case err != nil:
		metrics.EvaluationErrors.WithLabelValues("save_state").Inc()
		return nil, fmt.Errorf("failed to record trigger state for rule %s: %w", rule.ID, err)
	}
	*rule = updated

	metrics.TriggersGenerated.WithLabelValues(string(rule.Severity)).Inc()

	if e.sink != nil {
		event := notify.Event{
			Kind:      notify.EventAlertTriggered,
			Severity:  rule.Severity,
			Timestamp: now,
			Trigger:   trigger,
		}
		if err := e.sink.Publish(ctx, event); err != nil {
			// Publish failures never unwind a recorded trigger.
			e.logger.Errorw("Failed to publish trigger",
				"rule_id", rule.ID, "error", err)
		}
	}

	return trigger, nil
}

// findMatch returns the most recent sample in the rule's window satisfying
// the condition, or nil when none does. Upward comparisons use the
// threshold-filtered query; the rest scan the window.
func (e *Engine) findMatch(ctx context.Context, rule *core.AlertRule, metricName string, now time.Time) (*core.SecurityMetric, error) {
	since := now.Add(-rule.TimeWindow)
	operator := ruleOperator(rule)

	switch operator {
	case ">", ">=":
		samples, err := e.samples.QueryAboveThreshold(ctx, metricName, rule.Threshold, since)
		if err != nil {
			return nil, fmt.Errorf("failed to query metric %q: %w", metricName, err)
		}
		// Newest first; for strict > skip the boundary samples.
		for _, s := range samples {
			if CompareValue(operator, s.Value, rule.Threshold) {
				return s, nil
			}
		}
		return nil, nil
	default:
		samples, err := e.samples.QuerySince(ctx, metricName, since)
		if err != nil {
			return nil, fmt.Errorf("failed to query metric %q: %w", metricName, err)
		}
		// Chronological; walk backwards for the newest match.
		for i := len(samples) - 1; i >= 0; i-- {
			if CompareValue(operator, samples[i].Value, rule.Threshold) {
				return samples[i], nil
			}
		}
		return nil, nil
	}
}
