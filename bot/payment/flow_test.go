package payment

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/raswise/raswise/bot/blob"
	"github.com/raswise/raswise/bot/session"
	"github.com/raswise/raswise/bot/storage"
	"github.com/raswise/raswise/bot/ui"
)

const (
	testGroup = int64(-100500)
	alice     = int64(1)
	bob       = int64(2)
)

type fakeStore struct {
	splits    map[int64]*storage.SplitDetail
	accounts  map[int64]storage.AccountDetail
	users     map[int64]storage.User
	settings  storage.GroupSettings
	settleErr error
	payments  []storage.Payment
}

func (s *fakeStore) UnpaidSplitsForUser(_ context.Context, userID, groupID int64) ([]storage.SplitDetail, error) {
	var out []storage.SplitDetail
	for _, d := range s.splits {
		if d.UserID != userID || d.Paid {
			continue
		}
		if groupID != 0 && d.GroupID != groupID {
			continue
		}
		out = append(out, *d)
	}
	return out, nil
}

func (s *fakeStore) GetSplitDetail(_ context.Context, splitID int64) (storage.SplitDetail, error) {
	d, ok := s.splits[splitID]
	if !ok {
		return storage.SplitDetail{}, storage.ErrNotFound
	}
	return *d, nil
}

func (s *fakeStore) ActiveAccountDetail(_ context.Context, userID int64) (storage.AccountDetail, error) {
	a, ok := s.accounts[userID]
	if !ok {
		return storage.AccountDetail{}, storage.ErrNotFound
	}
	return a, nil
}

func (s *fakeStore) GetUsers(_ context.Context, ids []int64) (map[int64]storage.User, error) {
	out := make(map[int64]storage.User, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

func (s *fakeStore) GroupSettings(context.Context, int64) (storage.GroupSettings, error) {
	return s.settings, nil
}

func (s *fakeStore) SettleSplit(_ context.Context, splitID, paidBy, paidTo int64, amount decimal.Decimal, proofKey string) (storage.Payment, error) {
	if s.settleErr != nil {
		return storage.Payment{}, s.settleErr
	}
	d, ok := s.splits[splitID]
	if !ok || d.Paid {
		return storage.Payment{}, storage.ErrSplitUnavailable
	}
	d.Paid = true
	p := storage.Payment{
		ID:       int64(len(s.payments) + 1),
		SplitID:  splitID,
		PaidBy:   paidBy,
		PaidTo:   paidTo,
		Amount:   amount,
		ProofKey: sql.NullString{String: proofKey, Valid: proofKey != ""},
	}
	s.payments = append(s.payments, p)
	return p, nil
}

func testUser(id int64, name string) storage.User {
	return storage.User{TelegramID: id, FirstName: sql.NullString{String: name, Valid: true}}
}

func unpaidSplit(id int64) *storage.SplitDetail {
	return &storage.SplitDetail{
		Split: storage.Split{
			ID:        id,
			ExpenseID: 7,
			UserID:    alice,
			Amount:    decimal.RequireFromString("100"),
		},
		GroupID: testGroup,
		Number:  4,
		PaidBy:  bob,
		Total:   decimal.RequireFromString("300"),
	}
}

func newTestFlow() (*Flow, *fakeStore, *blob.MemoryStore) {
	store := &fakeStore{
		splits: map[int64]*storage.SplitDetail{10: unpaidSplit(10)},
		accounts: map[int64]storage.AccountDetail{
			bob: {UserID: bob, AccountType: "GCash", AccountInfo: "0917 123 4567", IsActive: true},
		},
		users: map[int64]storage.User{
			alice: testUser(alice, "Alice"),
			bob:   testUser(bob, "Bob"),
		},
		settings: storage.GroupSettings{GroupID: testGroup, Currency: "$"},
	}
	blobs := blob.NewMemoryStore()
	return New(store, blobs, session.NewMemoryStore()), store, blobs
}

// must curries t so a two-value flow call can be checked inline:
// must(t)(f.Start(...)).
func must(t *testing.T) func(*ui.Outcome, error) *ui.Outcome {
	return func(out *ui.Outcome, err error) *ui.Outcome {
		t.Helper()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out == nil {
			t.Fatal("nil outcome")
		}
		return out
	}
}

func photoOK(context.Context) ([]byte, string, error) {
	return []byte("jpeg-bytes"), "image/jpeg", nil
}

func TestPayFlowWithoutProof(t *testing.T) {
	f, store, _ := newTestFlow()
	ctx := context.Background()

	out := must(t)(f.ListUnpaid(ctx, alice, testGroup))
	if out.Prompt == nil || len(out.Prompt.Buttons) != 1 {
		t.Fatalf("expected one pay button, got %+v", out.Prompt)
	}
	if !strings.Contains(out.Prompt.Buttons[0][0].Label, "Bob") {
		t.Fatalf("button label = %q, want payee name", out.Prompt.Buttons[0][0].Label)
	}

	out = must(t)(f.Begin(ctx, alice, 10))
	if out.Edit == nil || !strings.Contains(out.Edit.Text, "GCash") {
		t.Fatalf("expected account details, got %+v", out)
	}

	out = must(t)(f.Confirm(ctx, alice))
	if out.Edit == nil || !strings.Contains(out.Edit.Text, "payment proof") {
		t.Fatalf("expected proof prompt, got %+v", out)
	}

	out = must(t)(f.SkipPhoto(ctx, alice))
	if !out.Done {
		t.Fatal("expected terminal outcome")
	}
	if len(store.payments) != 1 {
		t.Fatalf("payments = %d, want 1", len(store.payments))
	}
	p := store.payments[0]
	if p.PaidBy != alice || p.PaidTo != bob || p.ProofKey.Valid {
		t.Fatalf("unexpected payment: %+v", p)
	}
	if !store.splits[10].Paid {
		t.Fatal("split not marked paid")
	}
	if len(out.Notices) != 1 || out.Notices[0].ChatID != bob {
		t.Fatalf("expected payee notice, got %+v", out.Notices)
	}
	if f.Active(ctx, alice) {
		t.Fatal("session should be gone after settle")
	}
}

func TestProofPhotoStored(t *testing.T) {
	f, store, blobs := newTestFlow()
	ctx := context.Background()

	must(t)(f.Begin(ctx, alice, 10))
	must(t)(f.Confirm(ctx, alice))
	out := must(t)(f.HandlePhoto(ctx, alice, photoOK))
	if !out.Done {
		t.Fatal("expected terminal outcome")
	}
	if len(store.payments) != 1 || !store.payments[0].ProofKey.Valid {
		t.Fatalf("expected proof key on payment, got %+v", store.payments)
	}
	if blobs.Len() != 1 {
		t.Fatalf("blob count = %d, want 1", blobs.Len())
	}
}

func TestProofUploadFailureStillSettles(t *testing.T) {
	f, store, blobs := newTestFlow()
	blobs.FailPuts = true
	ctx := context.Background()

	must(t)(f.Begin(ctx, alice, 10))
	must(t)(f.Confirm(ctx, alice))
	out := must(t)(f.HandlePhoto(ctx, alice, photoOK))
	if !out.Done || out.Prompt == nil || !strings.Contains(out.Prompt.Text, "Couldn't store") {
		t.Fatalf("expected warning and settlement, got %+v", out)
	}
	if len(store.payments) != 1 || store.payments[0].ProofKey.Valid {
		t.Fatalf("payment should carry no proof: %+v", store.payments)
	}
}

func TestBeginRejectsForeignSplit(t *testing.T) {
	f, store, _ := newTestFlow()
	store.splits[10].UserID = bob
	ctx := context.Background()

	out := must(t)(f.Begin(ctx, alice, 10))
	if out.Alert == "" || !out.ShowAlert {
		t.Fatalf("expected rejection alert, got %+v", out)
	}
	if f.Active(ctx, alice) {
		t.Fatal("no session should be opened")
	}
}

func TestBeginRequiresPayeeAccount(t *testing.T) {
	f, store, _ := newTestFlow()
	delete(store.accounts, bob)
	ctx := context.Background()

	out := must(t)(f.Begin(ctx, alice, 10))
	if !strings.Contains(out.Alert, "/setaccount") {
		t.Fatalf("expected setaccount hint, got %+v", out)
	}
}

func TestAlreadyPaidAbortsWithoutDuplicate(t *testing.T) {
	f, store, _ := newTestFlow()
	ctx := context.Background()

	must(t)(f.Begin(ctx, alice, 10))
	must(t)(f.Confirm(ctx, alice))

	// settled from another device between confirm and commit
	store.splits[10].Paid = true

	out := must(t)(f.SkipPhoto(ctx, alice))
	if out.Prompt == nil || !strings.Contains(out.Prompt.Text, "no longer available") {
		t.Fatalf("expected unavailable message, got %+v", out)
	}
	if len(store.payments) != 0 {
		t.Fatalf("payments = %d, want 0", len(store.payments))
	}
	if f.Active(ctx, alice) {
		t.Fatal("session should be torn down")
	}
}

func TestConfirmRevalidates(t *testing.T) {
	f, store, _ := newTestFlow()
	ctx := context.Background()

	must(t)(f.Begin(ctx, alice, 10))
	store.splits[10].Paid = true

	out := must(t)(f.Confirm(ctx, alice))
	if out.Prompt == nil || !strings.Contains(out.Prompt.Text, "no longer available") {
		t.Fatalf("expected unavailable message, got %+v", out)
	}
	if f.Active(ctx, alice) {
		t.Fatal("session should be torn down")
	}
}

func TestSettleFailureKeepsSession(t *testing.T) {
	f, store, _ := newTestFlow()
	ctx := context.Background()

	must(t)(f.Begin(ctx, alice, 10))
	must(t)(f.Confirm(ctx, alice))

	store.settleErr = errors.New("connection reset")
	out := must(t)(f.SkipPhoto(ctx, alice))
	if out.Prompt == nil || !strings.Contains(out.Prompt.Text, "Failed to record") {
		t.Fatalf("expected failure message, got %+v", out)
	}
	if !f.Active(ctx, alice) {
		t.Fatal("session must survive a failed settle")
	}

	store.settleErr = nil
	out = must(t)(f.SkipPhoto(ctx, alice))
	if !out.Done || len(store.payments) != 1 {
		t.Fatalf("retry did not settle: done=%v payments=%d", out.Done, len(store.payments))
	}
}

func TestListUnpaidEmpty(t *testing.T) {
	f, store, _ := newTestFlow()
	store.splits = map[int64]*storage.SplitDetail{}
	ctx := context.Background()

	out := must(t)(f.ListUnpaid(ctx, alice, testGroup))
	if out.Prompt == nil || !strings.Contains(out.Prompt.Text, "no unpaid debts") {
		t.Fatalf("expected empty message, got %+v", out)
	}
}

func TestSessionMissReportsExpired(t *testing.T) {
	f, _, _ := newTestFlow()
	ctx := context.Background()

	if _, err := f.Confirm(ctx, alice); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("err = %v, want ErrSessionExpired", err)
	}
	if _, err := f.SkipPhoto(ctx, alice); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("err = %v, want ErrSessionExpired", err)
	}
}
