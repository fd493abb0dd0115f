package notify

import (
	"context"
	"sync"
)

// MockSink records published events for testing
type MockSink struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func NewMockSink() *MockSink {
	return &MockSink{}
}

// FailWith makes subsequent Publish calls return err
func (m *MockSink) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MockSink) Publish(ctx context.Context, event Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, event)
	return nil
}

func (m *MockSink) Name() string { return "mock" }

// Events returns a copy of everything published so far
func (m *MockSink) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}
