package account

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/raswise/raswise/bot/session"
	"github.com/raswise/raswise/bot/storage"
	"github.com/raswise/raswise/bot/ui"
)

const alice = int64(1)

type fakeStore struct {
	accounts map[int64]storage.AccountDetail
	saveErr  error
}

func (s *fakeStore) SetAccountDetail(_ context.Context, userID int64, accountType, accountInfo string) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.accounts[userID] = storage.AccountDetail{
		UserID:      userID,
		AccountType: accountType,
		AccountInfo: accountInfo,
		IsActive:    true,
	}
	return nil
}

func (s *fakeStore) ActiveAccountDetail(_ context.Context, userID int64) (storage.AccountDetail, error) {
	a, ok := s.accounts[userID]
	if !ok {
		return storage.AccountDetail{}, storage.ErrNotFound
	}
	return a, nil
}

func newTestFlow() (*Flow, *fakeStore) {
	store := &fakeStore{accounts: map[int64]storage.AccountDetail{}}
	return New(store, session.NewMemoryStore()), store
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

func TestSetAccountFlow(t *testing.T) {
	f, store := newTestFlow()
	ctx := context.Background()

	out := must(t)(f.Start(ctx, alice))
	if out.Prompt == nil || len(out.Prompt.Buttons) == 0 {
		t.Fatalf("expected type keyboard, got %+v", out)
	}

	out = must(t)(f.SetType(ctx, alice, "GCash"))
	if out.Edit == nil || !strings.Contains(out.Edit.Text, "Step 2") {
		t.Fatalf("expected info prompt, got %+v", out)
	}

	out = must(t)(f.HandleText(ctx, alice, "0917 123 4567"))
	if !out.Done {
		t.Fatal("expected terminal outcome")
	}
	a := store.accounts[alice]
	if a.AccountType != "GCash" || a.AccountInfo != "0917 123 4567" {
		t.Fatalf("saved account = %+v", a)
	}
	if f.Active(ctx, alice) {
		t.Fatal("session should be gone after save")
	}
}

func TestSetTypeRejectsUnknown(t *testing.T) {
	f, _ := newTestFlow()
	ctx := context.Background()

	must(t)(f.Start(ctx, alice))
	out := must(t)(f.SetType(ctx, alice, "Barter"))
	if out.Edit != nil || out.Prompt != nil {
		t.Fatalf("unknown type must be a no-op, got %+v", out)
	}

	s, err := f.sessions.Get(ctx, alice)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if s.Step != session.StepAccountType {
		t.Fatalf("step = %s, want type", s.Step)
	}
}

func TestSaveFailureKeepsSession(t *testing.T) {
	f, store := newTestFlow()
	ctx := context.Background()

	must(t)(f.Start(ctx, alice))
	must(t)(f.SetType(ctx, alice, "Maya"))

	store.saveErr = errors.New("connection reset")
	out := must(t)(f.HandleText(ctx, alice, "details"))
	if out.Prompt == nil || !strings.Contains(out.Prompt.Text, "Failed to save") {
		t.Fatalf("expected failure message, got %+v", out)
	}
	if !f.Active(ctx, alice) {
		t.Fatal("session must survive a failed save")
	}

	store.saveErr = nil
	out = must(t)(f.HandleText(ctx, alice, "details"))
	if !out.Done {
		t.Fatal("retry did not save")
	}
}

func TestViewWithoutAccount(t *testing.T) {
	f, _ := newTestFlow()
	out := must(t)(f.View(context.Background(), alice))
	if out.Prompt == nil || !strings.Contains(out.Prompt.Text, "/setaccount") {
		t.Fatalf("expected setup hint, got %+v", out)
	}
}

func TestSessionMissReportsExpired(t *testing.T) {
	f, _ := newTestFlow()
	if _, err := f.SetType(context.Background(), alice, "GCash"); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("err = %v, want ErrSessionExpired", err)
	}
}
