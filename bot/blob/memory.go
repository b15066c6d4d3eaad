package blob

import (
	"context"
	"sync"
)

// MemoryStore is an in-process blob Store for tests.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte

	// FailPuts makes every Put fail, for exercising degraded paths.
	FailPuts bool
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

// Put stores a copy of data under key.
func (m *MemoryStore) Put(_ context.Context, key string, data []byte, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailPuts {
		return errUnavailable
	}
	v := make([]byte, len(data))
	copy(v, data)
	m.objects[key] = v
	return nil
}

// Get returns the stored object or ErrNotFound.
func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// Delete removes the object; deleting a missing key is not an error.
func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

// Len reports how many objects are stored.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

var errUnavailable = &unavailableError{}

type unavailableError struct{}

func (*unavailableError) Error() string { return "blob: store unavailable" }
