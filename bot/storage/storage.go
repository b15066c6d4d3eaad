// Package storage implements the Postgres repositories behind the bot: users,
// group membership, expenses with their splits, payments, account details,
// and reminder settings.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/raswise/raswise/core/logger"
)

var (
	// ErrNotFound signals that the requested record does not exist.
	ErrNotFound = errors.New("storage: not found")
	// ErrSplitUnavailable signals that a split is missing or already paid.
	// Returned by settlement so concurrent confirmations cannot double-pay.
	ErrSplitUnavailable = errors.New("storage: split unavailable")
	// ErrUnpaidDebts blocks unregistering a user who still owes money.
	ErrUnpaidDebts = errors.New("storage: user has unpaid splits")
)

// Store wraps the database handle with the bot's repositories.
type Store struct {
	db *sqlx.DB
}

// New creates a Store over an established connection.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			logger.DB.LogAttrs(ctx, slog.LevelWarn, "rollback failed",
				slog.String("event", "db.tx"),
				slog.String("err", rbErr.Error()),
			)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func logQuery(ctx context.Context, op string, start time.Time, err error) {
	attrs := []slog.Attr{
		slog.String("op", op),
		slog.Duration("duration", logger.Took(start)),
	}
	if err != nil {
		logger.Error(ctx, "db", "db.query", append(attrs, slog.String("err", err.Error()))...)
		return
	}
	logger.Debug(ctx, "db", "db.query", attrs...)
}
