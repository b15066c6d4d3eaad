package history

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/raswise/raswise/bot/storage"
)

const (
	testGroup = int64(-100500)
	alice     = int64(1)
	bob       = int64(2)
)

type fakeStore struct {
	expenses []storage.Expense
	debts    []storage.SplitDetail
	owed     []storage.SplitDetail
	summary  storage.UserSummary
}

func (s *fakeStore) RecentGroupExpenses(context.Context, int64, int) ([]storage.Expense, error) {
	return s.expenses, nil
}

func (s *fakeStore) UnpaidSplitsForUser(context.Context, int64, int64) ([]storage.SplitDetail, error) {
	return s.debts, nil
}

func (s *fakeStore) OwedToUser(context.Context, int64, int64) ([]storage.SplitDetail, error) {
	return s.owed, nil
}

func (s *fakeStore) SummaryForUser(context.Context, int64, int64) (storage.UserSummary, error) {
	return s.summary, nil
}

func (s *fakeStore) GetUsers(_ context.Context, ids []int64) (map[int64]storage.User, error) {
	out := map[int64]storage.User{
		alice: {TelegramID: alice, FirstName: sql.NullString{String: "Alice", Valid: true}},
		bob:   {TelegramID: bob, FirstName: sql.NullString{String: "Bob", Valid: true}},
	}
	return out, nil
}

func (s *fakeStore) GroupSettings(context.Context, int64) (storage.GroupSettings, error) {
	return storage.GroupSettings{GroupID: testGroup, Currency: "$"}, nil
}

func detail(number int64, paidBy, userID int64, amount string) storage.SplitDetail {
	return storage.SplitDetail{
		Split: storage.Split{
			ID:     number,
			UserID: userID,
			Amount: decimal.RequireFromString(amount),
		},
		GroupID:     testGroup,
		Number:      number,
		PaidBy:      paidBy,
		Description: sql.NullString{String: "Dinner", Valid: true},
	}
}

func TestRecentRendersExpenses(t *testing.T) {
	store := &fakeStore{expenses: []storage.Expense{{
		ID:          1,
		GroupID:     testGroup,
		Number:      4,
		PaidBy:      alice,
		Amount:      decimal.RequireFromString("300"),
		Description: sql.NullString{String: "Dinner", Valid: true},
		CreatedAt:   time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC),
	}}}
	svc := NewService(store)

	out, err := svc.Recent(context.Background(), testGroup)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	text := out.Prompt.Text
	for _, want := range []string{"#4", "$300.00", "Dinner", "Alice", "Jan 2"} {
		if !strings.Contains(text, want) {
			t.Fatalf("missing %q in %q", want, text)
		}
	}
}

func TestDebtsWithTotal(t *testing.T) {
	store := &fakeStore{debts: []storage.SplitDetail{
		detail(4, bob, alice, "100"),
		detail(5, bob, alice, "50"),
	}}
	svc := NewService(store)

	out, err := svc.Debts(context.Background(), alice, testGroup)
	if err != nil {
		t.Fatalf("debts: %v", err)
	}
	text := out.Prompt.Text
	for _, want := range []string{"Bob", "$100.00", "$50.00", "Total: $150.00"} {
		if !strings.Contains(text, want) {
			t.Fatalf("missing %q in %q", want, text)
		}
	}
}

func TestDebtsEmpty(t *testing.T) {
	svc := NewService(&fakeStore{})
	out, err := svc.Debts(context.Background(), alice, testGroup)
	if err != nil {
		t.Fatalf("debts: %v", err)
	}
	if !strings.Contains(out.Prompt.Text, "no unpaid debts") {
		t.Fatalf("got %q", out.Prompt.Text)
	}
}

func TestOwedRendersDebtors(t *testing.T) {
	store := &fakeStore{owed: []storage.SplitDetail{detail(4, alice, bob, "100")}}
	svc := NewService(store)

	out, err := svc.Owed(context.Background(), alice, testGroup)
	if err != nil {
		t.Fatalf("owed: %v", err)
	}
	if !strings.Contains(out.Prompt.Text, "Bob owes you $100.00") {
		t.Fatalf("got %q", out.Prompt.Text)
	}
}

func TestSummaryNet(t *testing.T) {
	store := &fakeStore{summary: storage.UserSummary{
		OwedByUser: decimal.RequireFromString("50"),
		OwedToUser: decimal.RequireFromString("200"),
		PaidByUser: decimal.RequireFromString("300"),
	}}
	svc := NewService(store)

	out, err := svc.Summary(context.Background(), alice, testGroup)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	text := out.Prompt.Text
	for _, want := range []string{"You owe: $50.00", "Owed to you: $200.00", "you are up $150.00"} {
		if !strings.Contains(text, want) {
			t.Fatalf("missing %q in %q", want, text)
		}
	}
}
