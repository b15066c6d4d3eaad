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

// ExpenseInput carries everything needed to commit one expense.
type ExpenseInput struct {
	GroupID       int64
	CreatedBy     int64
	PaidBy        int64
	Amount        decimal.Decimal
	Description   string
	Location      string
	PhotoKey      string
	VendorSlipKey string
	SplitType     string
}

// SplitInput is one participant's owed share at commit time.
type SplitInput struct {
	UserID int64
	Amount decimal.Decimal
}

// CreateExpenseWithSplits commits an expense and all of its splits in a
// single transaction, allocating the group's next expense number inside it.
// Either everything lands or nothing does; a partially committed expense with
// no splits can never be observed.
func (s *Store) CreateExpenseWithSplits(ctx context.Context, in ExpenseInput, splits []SplitInput) (Expense, error) {
	var exp Expense
	start := time.Now()
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		var number int64
		if err := tx.GetContext(ctx, &number, `
			INSERT INTO group_expense_counters (group_id, last_expense_number)
			VALUES ($1, 1)
			ON CONFLICT (group_id) DO UPDATE SET
				last_expense_number = group_expense_counters.last_expense_number + 1
			RETURNING last_expense_number`,
			in.GroupID,
		); err != nil {
			return fmt.Errorf("allocate expense number: %w", err)
		}

		if err := tx.GetContext(ctx, &exp, `
			INSERT INTO expenses (
				group_id, group_expense_number, created_by, paid_by, amount,
				description, location, photo_key, vendor_slip_key, split_type
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING *`,
			in.GroupID, number, in.CreatedBy, in.PaidBy, in.Amount,
			nullIfEmpty(in.Description), nullIfEmpty(in.Location),
			nullIfEmpty(in.PhotoKey), nullIfEmpty(in.VendorSlipKey),
			in.SplitType,
		); err != nil {
			return fmt.Errorf("insert expense: %w", err)
		}

		for _, sp := range splits {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO expense_splits (expense_id, user_id, amount_owed)
				VALUES ($1, $2, $3)`,
				exp.ID, sp.UserID, sp.Amount,
			); err != nil {
				return fmt.Errorf("insert split for user %d: %w", sp.UserID, err)
			}
		}
		return nil
	})
	logQuery(ctx, "expenses.create", start, err)
	if err != nil {
		return Expense{}, err
	}
	return exp, nil
}

// GetExpense fetches a single expense.
func (s *Store) GetExpense(ctx context.Context, id int64) (Expense, error) {
	var exp Expense
	err := s.db.GetContext(ctx, &exp, `SELECT * FROM expenses WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Expense{}, ErrNotFound
	}
	if err != nil {
		return Expense{}, fmt.Errorf("get expense %d: %w", id, err)
	}
	return exp, nil
}

// RecentGroupExpenses lists the group's newest expenses.
func (s *Store) RecentGroupExpenses(ctx context.Context, groupID int64, limit int) ([]Expense, error) {
	var out []Expense
	err := s.db.SelectContext(ctx, &out, `
		SELECT * FROM expenses
		WHERE group_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`,
		groupID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent expenses %d: %w", groupID, err)
	}
	return out, nil
}

// SplitsForExpense lists the splits of one expense.
func (s *Store) SplitsForExpense(ctx context.Context, expenseID int64) ([]Split, error) {
	var out []Split
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM expense_splits WHERE expense_id = $1 ORDER BY id`, expenseID)
	if err != nil {
		return nil, fmt.Errorf("splits for expense %d: %w", expenseID, err)
	}
	return out, nil
}

const splitDetailColumns = `
	es.id, es.expense_id, es.user_id, es.amount_owed, es.paid, es.paid_at,
	e.group_id AS group_id,
	e.group_expense_number AS group_expense_number,
	e.paid_by AS paid_by,
	e.amount AS total_amount,
	e.description AS description,
	e.created_at AS expense_created_at`

// GetSplitDetail fetches one split joined with its expense, paid or not.
func (s *Store) GetSplitDetail(ctx context.Context, splitID int64) (SplitDetail, error) {
	var d SplitDetail
	err := s.db.GetContext(ctx, &d, `
		SELECT `+splitDetailColumns+`
		FROM expense_splits es
		JOIN expenses e ON es.expense_id = e.id
		WHERE es.id = $1`,
		splitID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return SplitDetail{}, ErrNotFound
	}
	if err != nil {
		return SplitDetail{}, fmt.Errorf("split detail %d: %w", splitID, err)
	}
	return d, nil
}

// UnpaidSplitsForUser lists everything the user still owes, newest first.
// groupID zero means across all groups.
func (s *Store) UnpaidSplitsForUser(ctx context.Context, userID, groupID int64) ([]SplitDetail, error) {
	query := `
		SELECT ` + splitDetailColumns + `
		FROM expense_splits es
		JOIN expenses e ON es.expense_id = e.id
		WHERE es.user_id = $1 AND NOT es.paid`
	args := []any{userID}
	if groupID != 0 {
		query += ` AND e.group_id = $2`
		args = append(args, groupID)
	}
	query += ` ORDER BY e.created_at DESC, es.id DESC`

	var out []SplitDetail
	if err := s.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("unpaid splits for user %d: %w", userID, err)
	}
	return out, nil
}

// OwedToUser lists unpaid splits on expenses the user fronted.
func (s *Store) OwedToUser(ctx context.Context, userID, groupID int64) ([]SplitDetail, error) {
	query := `
		SELECT ` + splitDetailColumns + `
		FROM expense_splits es
		JOIN expenses e ON es.expense_id = e.id
		WHERE e.paid_by = $1 AND NOT es.paid`
	args := []any{userID}
	if groupID != 0 {
		query += ` AND e.group_id = $2`
		args = append(args, groupID)
	}
	query += ` ORDER BY e.created_at DESC, es.id DESC`

	var out []SplitDetail
	if err := s.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("owed to user %d: %w", userID, err)
	}
	return out, nil
}

// UnpaidSplitsForGroup lists all unpaid splits in a group, for reminders.
func (s *Store) UnpaidSplitsForGroup(ctx context.Context, groupID int64) ([]SplitDetail, error) {
	var out []SplitDetail
	err := s.db.SelectContext(ctx, &out, `
		SELECT `+splitDetailColumns+`
		FROM expense_splits es
		JOIN expenses e ON es.expense_id = e.id
		WHERE e.group_id = $1 AND NOT es.paid
		ORDER BY es.user_id, e.created_at`,
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("unpaid splits for group %d: %w", groupID, err)
	}
	return out, nil
}

// UserSummary aggregates what the user owes and is owed within a group.
type UserSummary struct {
	OwedByUser decimal.Decimal
	OwedToUser decimal.Decimal
	PaidByUser decimal.Decimal
}

// SummaryForUser computes the user's owed/owing/paid totals for a group.
func (s *Store) SummaryForUser(ctx context.Context, userID, groupID int64) (UserSummary, error) {
	var row struct {
		OwedByUser decimal.Decimal `db:"owed_by_user"`
		OwedToUser decimal.Decimal `db:"owed_to_user"`
		PaidByUser decimal.Decimal `db:"paid_by_user"`
	}
	err := s.db.GetContext(ctx, &row, `
		SELECT
			COALESCE(SUM(es.amount_owed) FILTER (WHERE es.user_id = $1 AND NOT es.paid), 0) AS owed_by_user,
			COALESCE(SUM(es.amount_owed) FILTER (WHERE e.paid_by = $1 AND NOT es.paid), 0) AS owed_to_user,
			COALESCE(SUM(es.amount_owed) FILTER (WHERE es.user_id = $1 AND es.paid), 0) AS paid_by_user
		FROM expense_splits es
		JOIN expenses e ON es.expense_id = e.id
		WHERE e.group_id = $2`,
		userID, groupID,
	)
	if err != nil {
		return UserSummary{}, fmt.Errorf("summary for user %d: %w", userID, err)
	}
	return UserSummary{
		OwedByUser: row.OwedByUser,
		OwedToUser: row.OwedToUser,
		PaidByUser: row.PaidByUser,
	}, nil
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
