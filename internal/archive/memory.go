package archive

import (
	"context"
	"sync"
)

// MemoryProvider stores snapshots in-memory for development and tests.
type MemoryProvider struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryProvider creates an empty MemoryProvider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{data: make(map[string][]byte)}
}

// Save keeps a copy of the data keyed by object name.
func (s *MemoryProvider) Save(_ context.Context, objectName string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[objectName] = append([]byte(nil), data...)
	return nil
}

// Object returns a stored snapshot, for tests.
func (s *MemoryProvider) Object(objectName string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[objectName]
	return data, ok
}

// Len reports how many snapshots are stored.
func (s *MemoryProvider) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
