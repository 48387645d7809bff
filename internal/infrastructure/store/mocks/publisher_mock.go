package mocks

import (
	"context"
	"sync"
)

// MockPublisher records published events for assertions.
type MockPublisher struct {
	mu sync.Mutex

	// For tracking calls in tests
	PublishCalls    []PublishCall
	PublishErr      error
	PublishCallback func(ctx context.Context, key string, event any) error
}

// PublishCall records parameters passed to Publish
type PublishCall struct {
	Key   string
	Event any
}

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{PublishCalls: make([]PublishCall, 0)}
}

func (m *MockPublisher) Publish(ctx context.Context, key string, event any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.PublishCalls = append(m.PublishCalls, PublishCall{Key: key, Event: event})

	if m.PublishCallback != nil {
		return m.PublishCallback(ctx, key, event)
	}
	return m.PublishErr
}

// Calls returns a snapshot of the recorded calls.
func (m *MockPublisher) Calls() []PublishCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]PublishCall(nil), m.PublishCalls...)
}

// Reset clears recorded calls
func (m *MockPublisher) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PublishCalls = make([]PublishCall, 0)
	m.PublishErr = nil
	m.PublishCallback = nil
}
