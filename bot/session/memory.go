package session

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     []byte
	version   int64
	expiresAt time.Time
}

// MemoryStore is an in-process Store with the same TTL and versioning
// semantics as the Redis store. Used in tests and single-node setups.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (m *MemoryStore) live(key string) (memoryEntry, bool) {
	e, ok := m.entries[key]
	if !ok {
		return memoryEntry{}, false
	}
	if m.now().After(e.expiresAt) {
		delete(m.entries, key)
		return memoryEntry{}, false
	}
	return e, true
}

// Get returns the stored value and its version, or ErrNotFound.
func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.live(key)
	if !ok {
		return nil, 0, ErrNotFound
	}
	v := make([]byte, len(e.value))
	copy(v, e.value)
	return v, e.version, nil
}

// Put creates or replaces the value, resetting its version to 1.
func (m *MemoryStore) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := make([]byte, len(value))
	copy(v, value)
	m.entries[key] = memoryEntry{value: v, version: 1, expiresAt: m.now().Add(ttl)}
	return nil
}

// CompareAndPut writes only if the live version matches expectedVersion.
func (m *MemoryStore) CompareAndPut(_ context.Context, key string, value []byte, expectedVersion int64, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.live(key)
	if !ok {
		return ErrNotFound
	}
	if e.version != expectedVersion {
		return ErrVersionConflict
	}
	v := make([]byte, len(value))
	copy(v, value)
	m.entries[key] = memoryEntry{value: v, version: e.version + 1, expiresAt: m.now().Add(ttl)}
	return nil
}

// Delete removes the key; deleting a missing key is not an error.
func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}
