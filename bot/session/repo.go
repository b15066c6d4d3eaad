package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/raswise/raswise/core/logger"
)

// updateRetries bounds the read-mutate-write retry loop in Update. Conflicts
// come from rapid-fire events on the same key, so a couple of retries settle
// almost every race.
const updateRetries = 3

// Repo binds one session type to its flow kind and TTL, serializing progress
// per key through compare-and-put writes. The session value is JSON in the
// store; decimals round-trip as quoted strings, losslessly.
type Repo[T any] struct {
	store Store
	kind  Kind
	ttl   time.Duration
}

// NewRepo creates a Repo for the given flow kind.
func NewRepo[T any](store Store, kind Kind, ttl time.Duration) *Repo[T] {
	return &Repo[T]{store: store, kind: kind, ttl: ttl}
}

// Start creates (or restarts) the session for userID, replacing any
// in-progress one.
func (r *Repo[T]) Start(ctx context.Context, userID int64, s T) error {
	key := Key{Kind: r.kind, UserID: userID}.String()
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", key, err)
	}
	if err := r.store.Put(ctx, key, data, r.ttl); err != nil {
		return err
	}
	logger.Debug(ctx, "session", "session.start", slog.String("key", key))
	return nil
}

// Get loads the session for userID. A store miss is ErrNotFound regardless of
// whether the session expired or never existed.
func (r *Repo[T]) Get(ctx context.Context, userID int64) (T, error) {
	var s T
	key := Key{Kind: r.kind, UserID: userID}.String()
	data, _, err := r.store.Get(ctx, key)
	if err != nil {
		return s, err
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("decode session %s: %w", key, err)
	}
	return s, nil
}

// Exists reports whether a live session is present for userID.
func (r *Repo[T]) Exists(ctx context.Context, userID int64) bool {
	key := Key{Kind: r.kind, UserID: userID}.String()
	_, _, err := r.store.Get(ctx, key)
	return err == nil
}

// Update runs a read-mutate-compare-and-put cycle, retrying on version
// conflict so concurrent events on the same key serialize instead of silently
// losing writes. fn errors abort without writing; the stored session is left
// as it was. Every successful write refreshes the TTL.
func (r *Repo[T]) Update(ctx context.Context, userID int64, fn func(*T) error) (T, error) {
	var s T
	key := Key{Kind: r.kind, UserID: userID}.String()

	for attempt := 1; ; attempt++ {
		data, version, err := r.store.Get(ctx, key)
		if err != nil {
			return s, err
		}
		s = *new(T)
		if err := json.Unmarshal(data, &s); err != nil {
			return s, fmt.Errorf("decode session %s: %w", key, err)
		}

		if err := fn(&s); err != nil {
			return s, err
		}

		out, err := json.Marshal(s)
		if err != nil {
			return s, fmt.Errorf("encode session %s: %w", key, err)
		}

		err = r.store.CompareAndPut(ctx, key, out, version, r.ttl)
		if err == nil {
			return s, nil
		}
		if !errors.Is(err, ErrVersionConflict) || attempt > updateRetries {
			return s, err
		}
		logger.Debug(ctx, "session", "session.conflict",
			slog.String("key", key),
			slog.Int("attempt", attempt),
		)
	}
}

// Delete removes the session for userID.
func (r *Repo[T]) Delete(ctx context.Context, userID int64) error {
	return r.store.Delete(ctx, Key{Kind: r.kind, UserID: userID}.String())
}
