// Package history renders read-only views over recorded expenses: recent
// group activity, the caller's debts, what others owe them, and a net
// summary.
package history

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/raswise/raswise/bot/money"
	"github.com/raswise/raswise/bot/storage"
	"github.com/raswise/raswise/bot/ui"
)

// historyLimit caps how many expenses /history shows.
const historyLimit = 10

// Storage is the slice of the database layer this package needs.
type Storage interface {
	RecentGroupExpenses(ctx context.Context, groupID int64, limit int) ([]storage.Expense, error)
	UnpaidSplitsForUser(ctx context.Context, userID, groupID int64) ([]storage.SplitDetail, error)
	OwedToUser(ctx context.Context, userID, groupID int64) ([]storage.SplitDetail, error)
	SummaryForUser(ctx context.Context, userID, groupID int64) (storage.UserSummary, error)
	GetUsers(ctx context.Context, telegramIDs []int64) (map[int64]storage.User, error)
	GroupSettings(ctx context.Context, groupID int64) (storage.GroupSettings, error)
}

// Service renders the views.
type Service struct {
	store Storage
}

// NewService builds a Service.
func NewService(store Storage) *Service {
	return &Service{store: store}
}

// Recent renders the group's latest expenses, newest first.
func (s *Service) Recent(ctx context.Context, groupID int64) (*ui.Outcome, error) {
	expenses, err := s.store.RecentGroupExpenses(ctx, groupID, historyLimit)
	if err != nil {
		return nil, err
	}
	if len(expenses) == 0 {
		return ui.Text("No expenses recorded in this group yet. Start with /addexpense."), nil
	}
	currency := s.currency(ctx, groupID)

	payers := make([]int64, 0, len(expenses))
	for _, e := range expenses {
		payers = append(payers, e.PaidBy)
	}
	names := s.names(ctx, payers)

	var b strings.Builder
	b.WriteString("📜 Recent expenses:\n\n")
	for _, e := range expenses {
		fmt.Fprintf(&b, "#%d %s", e.Number, money.Format(currency, e.Amount))
		if e.Description.Valid && e.Description.String != "" {
			fmt.Fprintf(&b, " %s", e.Description.String)
		}
		fmt.Fprintf(&b, " — paid by %s (%s)\n", names(e.PaidBy), e.CreatedAt.Format("Jan 2"))
	}
	return ui.Text(strings.TrimRight(b.String(), "\n")), nil
}

// Debts renders what the caller still owes. groupID zero spans all groups.
func (s *Service) Debts(ctx context.Context, userID, groupID int64) (*ui.Outcome, error) {
	splits, err := s.store.UnpaidSplitsForUser(ctx, userID, groupID)
	if err != nil {
		return nil, err
	}
	if len(splits) == 0 {
		return ui.Text("🎉 You have no unpaid debts!"), nil
	}
	return ui.Text(s.renderDebts(ctx, splits)), nil
}

// Owed renders what others still owe the caller.
func (s *Service) Owed(ctx context.Context, userID, groupID int64) (*ui.Outcome, error) {
	splits, err := s.store.OwedToUser(ctx, userID, groupID)
	if err != nil {
		return nil, err
	}
	if len(splits) == 0 {
		return ui.Text("Nobody owes you anything right now."), nil
	}
	return ui.Text(s.renderOwed(ctx, splits)), nil
}

// Summary renders the caller's aggregate position in the group.
func (s *Service) Summary(ctx context.Context, userID, groupID int64) (*ui.Outcome, error) {
	sum, err := s.store.SummaryForUser(ctx, userID, groupID)
	if err != nil {
		return nil, err
	}
	currency := s.currency(ctx, groupID)
	net := sum.OwedToUser.Sub(sum.OwedByUser)

	var b strings.Builder
	b.WriteString("📊 Your summary:\n\n")
	fmt.Fprintf(&b, "You owe: %s\n", money.Format(currency, sum.OwedByUser))
	fmt.Fprintf(&b, "Owed to you: %s\n", money.Format(currency, sum.OwedToUser))
	fmt.Fprintf(&b, "Total you paid for: %s\n\n", money.Format(currency, sum.PaidByUser))
	switch {
	case net.IsPositive():
		fmt.Fprintf(&b, "Net: you are up %s", money.Format(currency, net))
	case net.IsNegative():
		fmt.Fprintf(&b, "Net: you are down %s", money.Format(currency, net.Neg()))
	default:
		b.WriteString("Net: all settled ⚖️")
	}
	return ui.Text(b.String()), nil
}

// renderDebts lists the caller's debts with a total. Each split row carries
// its group, so currency is resolved per row.
func (s *Service) renderDebts(ctx context.Context, splits []storage.SplitDetail) string {
	ids := make([]int64, 0, len(splits))
	for _, d := range splits {
		ids = append(ids, d.PaidBy)
	}
	names := s.names(ctx, ids)
	currencies := make(map[int64]string)

	total := decimal.Zero
	var b strings.Builder
	b.WriteString("💸 You owe:\n\n")
	for _, d := range splits {
		cur := s.groupCurrency(ctx, currencies, d.GroupID)
		fmt.Fprintf(&b, "#%d %s: %s", d.Number, names(d.PaidBy), money.Format(cur, d.Amount))
		if d.Description.Valid && d.Description.String != "" {
			fmt.Fprintf(&b, " (%s)", d.Description.String)
		}
		b.WriteString("\n")
		total = total.Add(d.Amount)
	}
	if len(currencies) == 1 {
		for _, cur := range currencies {
			fmt.Fprintf(&b, "\nTotal: %s", money.Format(cur, total))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func (s *Service) renderOwed(ctx context.Context, splits []storage.SplitDetail) string {
	ids := make([]int64, 0, len(splits))
	for _, d := range splits {
		ids = append(ids, d.UserID)
	}
	names := s.names(ctx, ids)
	currencies := make(map[int64]string)

	total := decimal.Zero
	var b strings.Builder
	b.WriteString("💰 Owed to you:\n\n")
	for _, d := range splits {
		cur := s.groupCurrency(ctx, currencies, d.GroupID)
		fmt.Fprintf(&b, "#%d %s owes you %s", d.Number, names(d.UserID), money.Format(cur, d.Amount))
		if d.Description.Valid && d.Description.String != "" {
			fmt.Fprintf(&b, " (%s)", d.Description.String)
		}
		b.WriteString("\n")
		total = total.Add(d.Amount)
	}
	if len(currencies) == 1 {
		for _, cur := range currencies {
			fmt.Fprintf(&b, "\nTotal: %s", money.Format(cur, total))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// names returns a lookup closure over a single batched user fetch.
func (s *Service) names(ctx context.Context, ids []int64) func(int64) string {
	users, err := s.store.GetUsers(ctx, ids)
	if err != nil {
		users = map[int64]storage.User{}
	}
	return func(id int64) string {
		if u, ok := users[id]; ok {
			return u.DisplayName()
		}
		return "User " + strconv.FormatInt(id, 10)
	}
}

func (s *Service) currency(ctx context.Context, groupID int64) string {
	if settings, err := s.store.GroupSettings(ctx, groupID); err == nil && settings.Currency != "" {
		return settings.Currency
	}
	return "$"
}

func (s *Service) groupCurrency(ctx context.Context, cache map[int64]string, groupID int64) string {
	if cur, ok := cache[groupID]; ok {
		return cur
	}
	cur := s.currency(ctx, groupID)
	cache[groupID] = cur
	return cur
}
