package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// SetAccountDetail replaces the user's active receiving account: previous
// entries are deactivated and the new one inserted, atomically.
func (s *Store) SetAccountDetail(ctx context.Context, userID int64, accountType, accountInfo string) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE account_details SET is_active = FALSE WHERE user_id = $1`,
			userID,
		); err != nil {
			return fmt.Errorf("deactivate accounts for %d: %w", userID, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO account_details (user_id, account_type, account_info, is_active)
			VALUES ($1, $2, $3, TRUE)`,
			userID, accountType, accountInfo,
		); err != nil {
			return fmt.Errorf("insert account for %d: %w", userID, err)
		}
		return nil
	})
}

// ActiveAccountDetail returns the user's active receiving account, or
// ErrNotFound when none is configured.
func (s *Store) ActiveAccountDetail(ctx context.Context, userID int64) (AccountDetail, error) {
	var a AccountDetail
	err := s.db.GetContext(ctx, &a, `
		SELECT * FROM account_details
		WHERE user_id = $1 AND is_active
		ORDER BY updated_at DESC
		LIMIT 1`,
		userID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return AccountDetail{}, ErrNotFound
	}
	if err != nil {
		return AccountDetail{}, fmt.Errorf("active account for %d: %w", userID, err)
	}
	return a, nil
}
