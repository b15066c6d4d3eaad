package storage

import (
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// User is a registered Telegram user, keyed by their Telegram ID.
type User struct {
	TelegramID int64          `db:"telegram_id"`
	Username   sql.NullString `db:"username"`
	FirstName  sql.NullString `db:"first_name"`
	LastName   sql.NullString `db:"last_name"`
	CreatedAt  time.Time      `db:"created_at"`
}

// DisplayName renders the best available handle: first (+ last) name, else
// @username, else the numeric ID.
func (u User) DisplayName() string {
	name := strings.TrimSpace(u.FirstName.String + " " + u.LastName.String)
	if name != "" {
		return name
	}
	if u.Username.Valid && u.Username.String != "" {
		return "@" + u.Username.String
	}
	return "User " + strconv.FormatInt(u.TelegramID, 10)
}

// Membership mirrors a user's presence in a group chat, tracked for the
// mini-app group picker.
type Membership struct {
	UserID     int64          `db:"user_id"`
	GroupID    int64          `db:"group_id"`
	GroupTitle sql.NullString `db:"group_title"`
	IsMember   bool           `db:"is_member"`
	UpdatedAt  time.Time      `db:"updated_at"`
}

// Expense is a committed group expense.
type Expense struct {
	ID            int64           `db:"id"`
	GroupID       int64           `db:"group_id"`
	Number        int64           `db:"group_expense_number"`
	CreatedBy     int64           `db:"created_by"`
	PaidBy        int64           `db:"paid_by"`
	Amount        decimal.Decimal `db:"amount"`
	Description   sql.NullString  `db:"description"`
	Location      sql.NullString  `db:"location"`
	PhotoKey      sql.NullString  `db:"photo_key"`
	VendorSlipKey sql.NullString  `db:"vendor_slip_key"`
	SplitType     string          `db:"split_type"`
	CreatedAt     time.Time       `db:"created_at"`
}

// Split is one participant's owed portion of an expense.
type Split struct {
	ID        int64           `db:"id"`
	ExpenseID int64           `db:"expense_id"`
	UserID    int64           `db:"user_id"`
	Amount    decimal.Decimal `db:"amount_owed"`
	Paid      bool            `db:"paid"`
	PaidAt    sql.NullTime    `db:"paid_at"`
}

// SplitDetail joins a split with the expense it belongs to, carrying
// everything the payment flow and list renderers need in one row.
type SplitDetail struct {
	Split
	GroupID     int64           `db:"group_id"`
	Number      int64           `db:"group_expense_number"`
	PaidBy      int64           `db:"paid_by"`
	Total       decimal.Decimal `db:"total_amount"`
	Description sql.NullString  `db:"description"`
	ExpenseAt   time.Time       `db:"expense_created_at"`
}

// Payment records one settled split.
type Payment struct {
	ID       int64           `db:"id"`
	SplitID  int64           `db:"expense_split_id"`
	PaidBy   int64           `db:"paid_by"`
	PaidTo   int64           `db:"paid_to"`
	Amount   decimal.Decimal `db:"amount"`
	ProofKey sql.NullString  `db:"proof_key"`
	PaidAt   time.Time       `db:"paid_at"`
}

// AccountDetail is a payee's active receiving account.
type AccountDetail struct {
	ID          int64     `db:"id"`
	UserID      int64     `db:"user_id"`
	AccountType string    `db:"account_type"`
	AccountInfo string    `db:"account_info"`
	IsActive    bool      `db:"is_active"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// GroupSettings carries per-group knobs: currency symbol, reminder toggle and
// schedule, and the once-per-day reminder guard.
type GroupSettings struct {
	GroupID        int64        `db:"group_id"`
	Currency       string       `db:"currency"`
	Enabled        bool         `db:"enabled"`
	ReminderHour   int          `db:"reminder_hour"`
	TimezoneOffset int          `db:"timezone_offset"`
	LastReminderAt sql.NullTime `db:"last_reminder_at"`
}
