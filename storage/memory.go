package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"sentinel/core"
)

// MemoryRuleStore is a mutex-guarded in-memory RuleStore. Used in tests and
// for ephemeral deployments where persistence is not required.
type MemoryRuleStore struct {
	mu    sync.RWMutex
	rules map[string]*core.AlertRule
}

func NewMemoryRuleStore() *MemoryRuleStore {
	return &MemoryRuleStore{rules: make(map[string]*core.AlertRule)}
}

func (m *MemoryRuleStore) FindEnabled(ctx context.Context) ([]*core.AlertRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*core.AlertRule
	for _, r := range m.rules {
		if r.Enabled {
			out = append(out, cloneRule(r))
		}
	}
	sortRulesByName(out)
	return out, nil
}

func (m *MemoryRuleStore) FindAll(ctx context.Context) ([]*core.AlertRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*core.AlertRule, 0, len(m.rules))
	for _, r := range m.rules {
		out = append(out, cloneRule(r))
	}
	sortRulesByName(out)
	return out, nil
}

func (m *MemoryRuleStore) FindByID(ctx context.Context, id string) (*core.AlertRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.rules[id]
	if !ok {
		return nil, ErrRuleNotFound
	}
	return cloneRule(r), nil
}

func (m *MemoryRuleStore) Save(ctx context.Context, rule *core.AlertRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for id, existing := range m.rules {
		if id != rule.ID && existing.Name == rule.Name {
			return ErrDuplicateRule
		}
	}
	m.rules[rule.ID] = cloneRule(rule)
	return nil
}

func (m *MemoryRuleStore) CompareAndSave(ctx context.Context, rule *core.AlertRule, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.rules[rule.ID]
	if !ok {
		return ErrRuleNotFound
	}
	if existing.Version != expectedVersion {
		return ErrVersionConflict
	}

	updated := cloneRule(rule)
	updated.Version = expectedVersion + 1
	updated.UpdatedAt = time.Now().UTC()
	m.rules[rule.ID] = updated
	rule.Version = updated.Version
	return nil
}

func (m *MemoryRuleStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rules[id]; !ok {
		return ErrRuleNotFound
	}
	delete(m.rules, id)
	return nil
}

func cloneRule(r *core.AlertRule) *core.AlertRule {
	c := *r
	if r.LastTriggered != nil {
		t := *r.LastTriggered
		c.LastTriggered = &t
	}
	c.NotificationChannels = append([]string(nil), r.NotificationChannels...)
	return &c
}

func sortRulesByName(rules []*core.AlertRule) {
	sort.Slice(rules, func(i, j int) bool { return rules[i].Name < rules[j].Name })
}

// MemoryMetricStore is a mutex-guarded in-memory MetricStore.
type MemoryMetricStore struct {
	mu      sync.RWMutex
	samples []*core.SecurityMetric
}

func NewMemoryMetricStore() *MemoryMetricStore {
	return &MemoryMetricStore{}
}

func (m *MemoryMetricStore) Record(ctx context.Context, metric *core.SecurityMetric) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := *metric
	m.samples = append(m.samples, &c)
	return nil
}

func (m *MemoryMetricStore) QueryAboveThreshold(ctx context.Context, name string, threshold float64, since time.Time) ([]*core.SecurityMetric, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*core.SecurityMetric
	for _, s := range m.samples {
		if s.Name == name && s.Value >= threshold && !s.Timestamp.Before(since) {
			c := *s
			out = append(out, &c)
		}
	}
	// Newest first, matching the SQLite query ordering.
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

func (m *MemoryMetricStore) QuerySince(ctx context.Context, name string, since time.Time) ([]*core.SecurityMetric, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*core.SecurityMetric
	for _, s := range m.samples {
		if s.Name == name && !s.Timestamp.Before(since) {
			c := *s
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// MemoryIndicatorStore is a mutex-guarded in-memory IndicatorStore.
type MemoryIndicatorStore struct {
	mu         sync.RWMutex
	indicators map[string]*core.ThreatIndicator
}

func NewMemoryIndicatorStore() *MemoryIndicatorStore {
	return &MemoryIndicatorStore{indicators: make(map[string]*core.ThreatIndicator)}
}

func (m *MemoryIndicatorStore) Save(ctx context.Context, ind *core.ThreatIndicator) error {
	if err := ind.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for id, existing := range m.indicators {
		if id != ind.ID && existing.Key() == ind.Key() {
			return ErrDuplicateIndicator
		}
	}
	m.indicators[ind.ID] = cloneIndicator(ind)
	return nil
}

func (m *MemoryIndicatorStore) FindByID(ctx context.Context, id string) (*core.ThreatIndicator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ind, ok := m.indicators[id]
	if !ok {
		return nil, ErrIndicatorNotFound
	}
	return cloneIndicator(ind), nil
}

func (m *MemoryIndicatorStore) FindByKey(ctx context.Context, indType core.IndicatorType, value, source string) (*core.ThreatIndicator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, ind := range m.indicators {
		if ind.Type == indType && ind.Value == value && ind.Source == source {
			return cloneIndicator(ind), nil
		}
	}
	return nil, ErrIndicatorNotFound
}

func (m *MemoryIndicatorStore) FindActiveByTypeAndValue(ctx context.Context, indType core.IndicatorType, value string) (*core.ThreatIndicator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var best *core.ThreatIndicator
	for _, ind := range m.indicators {
		if !ind.Active || ind.Type != indType {
			continue
		}
		match := ind.Value == value
		if indType.CaseInsensitive() {
			match = strings.EqualFold(ind.Value, value)
		}
		if match && (best == nil || ind.Confidence > best.Confidence) {
			best = ind
		}
	}
	if best == nil {
		return nil, ErrIndicatorNotFound
	}
	return cloneIndicator(best), nil
}

func (m *MemoryIndicatorStore) FindActive(ctx context.Context) ([]*core.ThreatIndicator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*core.ThreatIndicator
	for _, ind := range m.indicators {
		if ind.Active {
			out = append(out, cloneIndicator(ind))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastSeen.After(out[j].LastSeen) })
	return out, nil
}

func (m *MemoryIndicatorStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.indicators[id]; !ok {
		return ErrIndicatorNotFound
	}
	delete(m.indicators, id)
	return nil
}

func (m *MemoryIndicatorStore) DeleteInactiveBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int64
	for id, ind := range m.indicators {
		if !ind.Active && ind.LastSeen.Before(cutoff) {
			delete(m.indicators, id)
			removed++
		}
	}
	return removed, nil
}

func (m *MemoryIndicatorStore) CountBySeverity(ctx context.Context) (map[core.Severity]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[core.Severity]int64)
	for _, ind := range m.indicators {
		if ind.Active {
			counts[ind.Severity]++
		}
	}
	return counts, nil
}

func cloneIndicator(i *core.ThreatIndicator) *core.ThreatIndicator {
	c := *i
	if i.ExpiresAt != nil {
		t := *i.ExpiresAt
		c.ExpiresAt = &t
	}
	return &c
}
