package notify

import (
	"context"
	"sync"
)

// MemoryProvider records published report ids for tests and development.
type MemoryProvider struct {
	mu     sync.Mutex
	ids    []string
	closed bool
}

// NewMemoryProvider creates an empty MemoryProvider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{}
}

// Publish appends the report id to the in-memory record.
func (m *MemoryProvider) Publish(_ context.Context, reportID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids = append(m.ids, reportID)
	return nil
}

// Close marks the provider closed.
func (m *MemoryProvider) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Published returns a copy of all published ids.
func (m *MemoryProvider) Published() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.ids...)
}

// Closed reports whether Close has been called.
func (m *MemoryProvider) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
