package settings

import (
	"context"
	"sync"

	"github.com/MrWong99/greffier/internal/credential"
)

// MemStore is an in-process settings store.
type MemStore struct {
	mu     sync.RWMutex
	values map[string]string
}

var _ credential.Store = (*MemStore)(nil)

// NewMemStore returns a store seeded with a copy of values.
func NewMemStore(values map[string]string) *MemStore {
	m := &MemStore{values: make(map[string]string, len(values))}
	for k, v := range values {
		m.values[k] = v
	}
	return m
}

// Get implements credential.Store.
func (m *MemStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

// Set stores value under key.
func (m *MemStore) Set(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
}

// Delete removes key.
func (m *MemStore) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
}

// Ping always succeeds.
func (m *MemStore) Ping(context.Context) error { return nil }
