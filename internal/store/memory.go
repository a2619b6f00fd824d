package store

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore keeps rows in maps for tests and local development. It enforces
// the same parent-first invariant the Postgres FK does.
type MemoryStore struct {
	mu        sync.RWMutex
	reports   map[string]Report
	addresses map[string]ReportAddress
	unified   map[string]UnifiedAddress
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		reports:   make(map[string]Report),
		addresses: make(map[string]ReportAddress),
		unified:   make(map[string]UnifiedAddress),
	}
}

// UpsertReport implements Store.
func (m *MemoryStore) UpsertReport(
	_ context.Context,
	rep Report,
	addrs []ReportAddress,
	unified []UnifiedAddress,
) (bool, error) {
	if rep.ID == "" {
		return false, fmt.Errorf("report id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	_, exists := m.reports[rep.ID]
	m.reports[rep.ID] = rep

	for _, addr := range addrs {
		if addr.ReportID != "" && addr.ReportID != rep.ID {
			return false, fmt.Errorf("address %s references report %s, not %s", addr.ID, addr.ReportID, rep.ID)
		}
		if _, dup := m.addresses[addr.ID]; dup {
			continue
		}
		addr.ReportID = rep.ID
		m.addresses[addr.ID] = addr
	}
	for _, ua := range unified {
		if _, dup := m.unified[ua.Address]; dup {
			continue
		}
		m.unified[ua.Address] = ua
	}
	return !exists, nil
}

// Counts implements Store.
func (m *MemoryStore) Counts(_ context.Context) (Counts, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Counts{
		Reports:   int64(len(m.reports)),
		Addresses: int64(len(m.addresses)),
	}, nil
}

// ClearReports implements Store.
func (m *MemoryStore) ClearReports(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addresses = make(map[string]ReportAddress)
	m.reports = make(map[string]Report)
	return nil
}

// Ping implements Store.
func (m *MemoryStore) Ping(_ context.Context) error { return nil }

// Close implements Store.
func (m *MemoryStore) Close() {}

// Report returns a stored report by id, for tests.
func (m *MemoryStore) Report(id string) (Report, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rep, ok := m.reports[id]
	return rep, ok
}

// UnifiedAddressByKey returns a stored unified address, for tests.
func (m *MemoryStore) UnifiedAddressByKey(address string) (UnifiedAddress, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ua, ok := m.unified[address]
	return ua, ok
}
