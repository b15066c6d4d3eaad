package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// SettleSplit marks a split paid and records the payment in one transaction.
// The paid flag is flipped with a guard on its current state, so a concurrent
// settlement of the same split fails with ErrSplitUnavailable instead of
// producing a duplicate payment record.
func (s *Store) SettleSplit(ctx context.Context, splitID, paidBy, paidTo int64, amount decimal.Decimal, proofKey string) (Payment, error) {
	var p Payment
	start := time.Now()
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE expense_splits
			SET paid = TRUE, paid_at = now()
			WHERE id = $1 AND NOT paid`,
			splitID,
		)
		if err != nil {
			return fmt.Errorf("mark split %d paid: %w", splitID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("mark split %d paid: %w", splitID, err)
		}
		if n == 0 {
			return ErrSplitUnavailable
		}

		if err := tx.GetContext(ctx, &p, `
			INSERT INTO payments (expense_split_id, paid_by, paid_to, amount, proof_key)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING *`,
			splitID, paidBy, paidTo, amount, nullIfEmpty(proofKey),
		); err != nil {
			return fmt.Errorf("record payment for split %d: %w", splitID, err)
		}
		return nil
	})
	logQuery(ctx, "payments.settle", start, err)
	if err != nil {
		return Payment{}, err
	}
	return p, nil
}

// PaymentForSplit returns the payment recorded for a split, if any.
func (s *Store) PaymentForSplit(ctx context.Context, splitID int64) (Payment, error) {
	var p Payment
	err := s.db.GetContext(ctx, &p,
		`SELECT * FROM payments WHERE expense_split_id = $1`, splitID)
	if errors.Is(err, sql.ErrNoRows) {
		return Payment{}, ErrNotFound
	}
	if err != nil {
		return Payment{}, fmt.Errorf("payment for split %d: %w", splitID, err)
	}
	return p, nil
}
