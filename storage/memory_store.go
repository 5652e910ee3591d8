package storage

import (
	"context"
	"sync"

	"leboncoin-scraper/models"
)

// MemoryStore is an in-process ListingStore, used with STORAGE_DRIVER=memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*models.ListingRecord
	order   []string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*models.ListingRecord)}
}

func (m *MemoryStore) Exists(_ context.Context, id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.records[id]
	return ok, nil
}

func (m *MemoryStore) Save(_ context.Context, r *models.ListingRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[r.ID]; ok {
		return false, nil
	}
	m.records[r.ID] = r
	m.order = append(m.order, r.ID)
	return true, nil
}

// All returns stored records in insertion order.
func (m *MemoryStore) All() []*models.ListingRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.ListingRecord, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.records[id])
	}
	return out
}

func (m *MemoryStore) Close() error { return nil }
