package session

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound signals a store miss: the session expired or never existed.
	// Callers must treat both identically.
	ErrNotFound = errors.New("session: not found")
	// ErrVersionConflict signals a compare-and-put that lost a race with a
	// concurrent write to the same key.
	ErrVersionConflict = errors.New("session: version conflict")
)

// Store is a TTL-bounded key/value store with optimistic versioning. Put
// creates or replaces the value and resets its version to 1; CompareAndPut
// writes only when the stored version matches the expected one, bumping it.
// Expiry is enforced by the store; a lapsed key is simply ErrNotFound.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, version int64, err error)
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	CompareAndPut(ctx context.Context, key string, value []byte, expectedVersion int64, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
