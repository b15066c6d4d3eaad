package members

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/raswise/raswise/bot/storage"
)

const testGroup = int64(-100500)

type fakeStore struct {
	users       map[int64]storage.User
	roster      map[int64]bool
	memberships int
	unpaid      map[int64]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:  map[int64]storage.User{},
		roster: map[int64]bool{},
		unpaid: map[int64]bool{},
	}
}

func (s *fakeStore) UpsertUser(_ context.Context, u storage.User) error {
	s.users[u.TelegramID] = u
	return nil
}

func (s *fakeStore) RegisterGroupUser(_ context.Context, _, userID, _ int64) error {
	s.roster[userID] = true
	return nil
}

func (s *fakeStore) UnregisterGroupUser(_ context.Context, _, userID int64) error {
	if s.unpaid[userID] {
		return storage.ErrUnpaidDebts
	}
	delete(s.roster, userID)
	return nil
}

func (s *fakeStore) GroupMembers(context.Context, int64) ([]storage.User, error) {
	var out []storage.User
	for id := range s.roster {
		out = append(out, s.users[id])
	}
	return out, nil
}

func (s *fakeStore) UpsertMembership(context.Context, int64, int64, string, bool) error {
	s.memberships++
	return nil
}

func testUser(id int64, name string) storage.User {
	return storage.User{TelegramID: id, FirstName: sql.NullString{String: name, Valid: true}}
}

func TestRegisterAndList(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store)
	ctx := context.Background()

	out, err := svc.Register(ctx, testGroup, 1, testUser(1, "Alice"))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if !strings.Contains(out.Prompt.Text, "Alice") {
		t.Fatalf("confirmation = %q", out.Prompt.Text)
	}
	if !store.roster[1] {
		t.Fatal("alice not on roster")
	}

	out, err = svc.List(ctx, testGroup)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out.Prompt.Text, "Registered users (1)") {
		t.Fatalf("list = %q", out.Prompt.Text)
	}
}

func TestUnregisterBlockedByDebts(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store)
	ctx := context.Background()

	if _, err := svc.Register(ctx, testGroup, 1, testUser(1, "Alice")); err != nil {
		t.Fatalf("register: %v", err)
	}
	store.unpaid[1] = true

	out, err := svc.Unregister(ctx, testGroup, 1, "Alice")
	if err != nil {
		t.Fatalf("unregister: %v", err)
	}
	if !strings.Contains(out.Prompt.Text, "unpaid debts") {
		t.Fatalf("expected debt refusal, got %q", out.Prompt.Text)
	}
	if !store.roster[1] {
		t.Fatal("alice must stay on the roster while in debt")
	}

	store.unpaid[1] = false
	out, err = svc.Unregister(ctx, testGroup, 1, "Alice")
	if err != nil {
		t.Fatalf("unregister: %v", err)
	}
	if store.roster[1] {
		t.Fatal("alice should be off the roster")
	}
	if !strings.Contains(out.Prompt.Text, "no longer registered") {
		t.Fatalf("confirmation = %q", out.Prompt.Text)
	}
}

func TestTrackThrottles(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store)
	now := time.Unix(1700000000, 0)
	svc.now = func() time.Time { return now }
	ctx := context.Background()

	u := testUser(1, "Alice")
	svc.Track(ctx, u, testGroup, "Trip")
	svc.Track(ctx, u, testGroup, "Trip")
	if store.memberships != 1 {
		t.Fatalf("memberships = %d, want 1 (throttled)", store.memberships)
	}

	now = now.Add(trackInterval + time.Minute)
	svc.Track(ctx, u, testGroup, "Trip")
	if store.memberships != 2 {
		t.Fatalf("memberships = %d, want 2 after interval", store.memberships)
	}
}
