package nats

import (
	"context"
	"sync"
)

// MockPublisher is a mock implementation of Publisher for testing.
type MockPublisher struct {
	mu           sync.RWMutex
	alerts       []*AlertEvent
	reclaims     []*ReclaimEvent
	publishError error
	closed       bool
}

// NewMockPublisher creates a new mock publisher for testing.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

// PublishAlert records the event and returns any configured error.
func (m *MockPublisher) PublishAlert(ctx context.Context, event *AlertEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publishError != nil {
		return m.publishError
	}
	m.alerts = append(m.alerts, event)
	return nil
}

// PublishReclaim records the event and returns any configured error.
func (m *MockPublisher) PublishReclaim(ctx context.Context, event *ReclaimEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publishError != nil {
		return m.publishError
	}
	m.reclaims = append(m.reclaims, event)
	return nil
}

// Close marks the publisher as closed.
func (m *MockPublisher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Alerts returns a copy of every published alert.
func (m *MockPublisher) Alerts() []*AlertEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*AlertEvent, len(m.alerts))
	copy(out, m.alerts)
	return out
}

// Reclaims returns a copy of every published reclaim event.
func (m *MockPublisher) Reclaims() []*ReclaimEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*ReclaimEvent, len(m.reclaims))
	copy(out, m.reclaims)
	return out
}

// SetPublishError configures the mock to fail every publish.
func (m *MockPublisher) SetPublishError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishError = err
}

// Reset clears all published events and errors.
func (m *MockPublisher) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = nil
	m.reclaims = nil
	m.publishError = nil
	m.closed = false
}

// IsClosed returns whether the publisher has been closed.
func (m *MockPublisher) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

var _ Publisher = (*MockPublisher)(nil)
var _ Publisher = (*JetStreamPublisher)(nil)
