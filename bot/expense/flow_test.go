package expense

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
	carol     = int64(3)
)

type createdExpense struct {
	in     storage.ExpenseInput
	splits []storage.SplitInput
}

type fakeStore struct {
	members   []storage.User
	settings  storage.GroupSettings
	createErr error
	created   []createdExpense
}

func (s *fakeStore) GroupMembers(context.Context, int64) ([]storage.User, error) {
	return s.members, nil
}

func (s *fakeStore) GetUsers(_ context.Context, ids []int64) (map[int64]storage.User, error) {
	out := make(map[int64]storage.User, len(ids))
	for _, m := range s.members {
		out[m.TelegramID] = m
	}
	return out, nil
}

func (s *fakeStore) GroupSettings(context.Context, int64) (storage.GroupSettings, error) {
	return s.settings, nil
}

func (s *fakeStore) CreateExpenseWithSplits(_ context.Context, in storage.ExpenseInput, splits []storage.SplitInput) (storage.Expense, error) {
	if s.createErr != nil {
		return storage.Expense{}, s.createErr
	}
	s.created = append(s.created, createdExpense{in: in, splits: splits})
	return storage.Expense{
		ID:        int64(len(s.created)),
		GroupID:   in.GroupID,
		Number:    int64(len(s.created)),
		PaidBy:    in.PaidBy,
		Amount:    in.Amount,
		SplitType: in.SplitType,
	}, nil
}

func testUser(id int64, name string) storage.User {
	return storage.User{
		TelegramID: id,
		FirstName:  sql.NullString{String: name, Valid: true},
	}
}

func newTestFlow() (*Flow, *fakeStore, *blob.MemoryStore) {
	store := &fakeStore{
		members: []storage.User{
			testUser(alice, "Alice"),
			testUser(bob, "Bob"),
			testUser(carol, "Carol"),
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

func photoFail(context.Context) ([]byte, string, error) {
	return nil, "", errors.New("download failed")
}

// marches the flow from /addexpense through participant selection, leaving it
// on the split-type question with everyone selected and alice as payer.
func advanceToSplitType(t *testing.T, f *Flow, amount string) {
	t.Helper()
	ctx := context.Background()
	must(t)(f.Start(ctx, alice, testGroup))
	must(t)(f.HandleText(ctx, alice, amount))
	must(t)(f.HandleText(ctx, alice, "Dinner"))
	must(t)(f.Skip(ctx, alice, "location"))
	must(t)(f.Skip(ctx, alice, "photo"))
	must(t)(f.Skip(ctx, alice, "vendor_slip"))
	must(t)(f.HandleUserButton(ctx, alice, SelectAllPayload))
	must(t)(f.UsersDone(ctx, alice))
	must(t)(f.SetPaidBy(ctx, alice, alice))
}

func TestEqualSplitCommit(t *testing.T) {
	f, store, _ := newTestFlow()
	ctx := context.Background()

	advanceToSplitType(t, f, "300")
	out := must(t)(f.SetSplitType(ctx, alice, session.SplitEqual))

	if !out.Done {
		t.Fatal("expected terminal outcome")
	}
	if len(store.created) != 1 {
		t.Fatalf("created = %d, want 1", len(store.created))
	}
	got := store.created[0]
	if got.in.SplitType != session.SplitEqual || got.in.PaidBy != alice {
		t.Fatalf("unexpected input: %+v", got.in)
	}
	// three participants, two debtor records, payer never gets one
	if len(got.splits) != 2 {
		t.Fatalf("splits = %d, want 2", len(got.splits))
	}
	for _, sp := range got.splits {
		if sp.UserID == alice {
			t.Fatalf("payer got a split record: %+v", sp)
		}
		if sp.Amount.StringFixed(2) != "100.00" {
			t.Fatalf("share = %s, want 100.00", sp.Amount.StringFixed(2))
		}
	}
	if out.Prompt == nil || !strings.Contains(out.Prompt.Text, "Expense #1") {
		t.Fatalf("confirmation missing expense number: %+v", out.Prompt)
	}
	if len(out.Notices) != 1 || out.Notices[0].ChatID != testGroup {
		t.Fatalf("expected a group notice, got %+v", out.Notices)
	}
	if f.Active(ctx, alice) {
		t.Fatal("session should be gone after commit")
	}
}

func TestAmountValidation(t *testing.T) {
	f, _, _ := newTestFlow()
	ctx := context.Background()

	must(t)(f.Start(ctx, alice, testGroup))
	out := must(t)(f.HandleText(ctx, alice, "not a number"))
	if out.Prompt == nil || !strings.Contains(out.Prompt.Text, "valid positive number") {
		t.Fatalf("expected re-prompt, got %+v", out)
	}

	s, err := f.sessions.Get(ctx, alice)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if s.Step != session.StepAmount {
		t.Fatalf("step = %s, want amount", s.Step)
	}

	out = must(t)(f.HandleText(ctx, alice, "300"))
	if out.Prompt == nil || !strings.Contains(out.Prompt.Text, "Step 2") {
		t.Fatalf("expected description prompt, got %+v", out)
	}
}

func TestCustomSplitFlow(t *testing.T) {
	f, store, _ := newTestFlow()
	ctx := context.Background()

	advanceToSplitType(t, f, "300")
	must(t)(f.SetSplitType(ctx, alice, session.SplitCustom))

	out := must(t)(f.HandleText(ctx, alice, "2 180"))
	if out.Prompt == nil || !strings.Contains(out.Prompt.Text, "Still waiting for: 3") {
		t.Fatalf("expected progress prompt, got %+v", out)
	}

	// completes the set but misses the total: entries stay, flow re-asks
	out = must(t)(f.HandleText(ctx, alice, "3 100"))
	if out.Prompt == nil || !strings.Contains(out.Prompt.Text, "add up to 280.00") {
		t.Fatalf("expected mismatch prompt, got %+v", out)
	}
	if len(store.created) != 0 {
		t.Fatal("mismatch must not commit")
	}
	s, err := f.sessions.Get(ctx, alice)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if s.Step != session.StepCustomSplits {
		t.Fatalf("step = %s, want custom_splits", s.Step)
	}
	if got := s.CustomSplits[bob].StringFixed(2); got != "180.00" {
		t.Fatalf("bob's entry = %s, want kept at 180.00", got)
	}

	// re-entry replaces carol's share and the sum now matches
	out = must(t)(f.HandleText(ctx, alice, "3 120"))
	if !out.Done {
		t.Fatal("expected terminal outcome")
	}
	if len(store.created) != 1 {
		t.Fatalf("created = %d, want 1", len(store.created))
	}
	want := map[int64]string{bob: "180.00", carol: "120.00"}
	for _, sp := range store.created[0].splits {
		if want[sp.UserID] != sp.Amount.StringFixed(2) {
			t.Fatalf("split %d = %s, want %s", sp.UserID, sp.Amount.StringFixed(2), want[sp.UserID])
		}
	}
}

func TestCustomSplitRejectsNonParticipant(t *testing.T) {
	f, _, _ := newTestFlow()
	ctx := context.Background()

	advanceToSplitType(t, f, "100")
	must(t)(f.SetSplitType(ctx, alice, session.SplitCustom))

	out := must(t)(f.HandleText(ctx, alice, "99 50"))
	if out.Prompt == nil || !strings.Contains(out.Prompt.Text, "not among the selected participants") {
		t.Fatalf("expected rejection, got %+v", out)
	}

	out = must(t)(f.HandleText(ctx, alice, "nonsense"))
	if out.Prompt == nil || !strings.Contains(out.Prompt.Text, "Invalid format") {
		t.Fatalf("expected format error, got %+v", out)
	}
}

func TestCustomSplitLineErrorsByClass(t *testing.T) {
	f, store, _ := newTestFlow()
	ctx := context.Background()

	advanceToSplitType(t, f, "100")
	must(t)(f.SetSplitType(ctx, alice, session.SplitCustom))

	cases := []struct {
		line string
		want string
	}{
		{"2 50 extra", "Invalid format"},
		{"2", "Invalid format"},
		{"bob 50", "Invalid values"},
		{"2 fifty", "Invalid values"},
		{"2 -5", "Invalid values"},
		{"2 0", "Invalid values"},
	}
	for _, tc := range cases {
		out := must(t)(f.HandleText(ctx, alice, tc.line))
		if out.Prompt == nil || !strings.Contains(out.Prompt.Text, tc.want) {
			t.Fatalf("line %q: expected %q, got %+v", tc.line, tc.want, out)
		}
	}
	if len(store.created) != 0 {
		t.Fatalf("expense committed off rejected input: %+v", store.created)
	}
}

func TestUsersDoneRequiresSelection(t *testing.T) {
	f, _, _ := newTestFlow()
	ctx := context.Background()

	must(t)(f.Start(ctx, alice, testGroup))
	must(t)(f.HandleText(ctx, alice, "50"))
	must(t)(f.Skip(ctx, alice, "description"))
	must(t)(f.Skip(ctx, alice, "location"))
	must(t)(f.Skip(ctx, alice, "photo"))
	must(t)(f.Skip(ctx, alice, "vendor_slip"))

	out := must(t)(f.UsersDone(ctx, alice))
	if out.Alert != "Please select at least one user" || !out.ShowAlert {
		t.Fatalf("expected modal alert, got %+v", out)
	}
	s, err := f.sessions.Get(ctx, alice)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if s.Step != session.StepUsers {
		t.Fatalf("step = %s, want users", s.Step)
	}
}

func TestToggleIsItsOwnInverse(t *testing.T) {
	f, _, _ := newTestFlow()
	ctx := context.Background()

	must(t)(f.Start(ctx, alice, testGroup))
	must(t)(f.HandleText(ctx, alice, "50"))
	must(t)(f.Skip(ctx, alice, "description"))
	must(t)(f.Skip(ctx, alice, "location"))
	must(t)(f.Skip(ctx, alice, "photo"))
	must(t)(f.Skip(ctx, alice, "vendor_slip"))

	must(t)(f.HandleUserButton(ctx, alice, "2"))
	must(t)(f.HandleUserButton(ctx, alice, "2"))
	s, err := f.sessions.Get(ctx, alice)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if len(s.Participants) != 0 {
		t.Fatalf("participants = %v, want empty after double toggle", s.Participants)
	}

	// select all replaces, then a toggle removes just one
	must(t)(f.HandleUserButton(ctx, alice, SelectAllPayload))
	must(t)(f.HandleUserButton(ctx, alice, "2"))
	s, err = f.sessions.Get(ctx, alice)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if len(s.Participants) != 2 || s.HasParticipant(bob) {
		t.Fatalf("participants = %v, want alice and carol", s.Participants)
	}
}

func TestPhotoStored(t *testing.T) {
	f, _, blobs := newTestFlow()
	ctx := context.Background()

	must(t)(f.Start(ctx, alice, testGroup))
	must(t)(f.HandleText(ctx, alice, "50"))
	must(t)(f.Skip(ctx, alice, "description"))
	must(t)(f.Skip(ctx, alice, "location"))

	out := must(t)(f.HandlePhoto(ctx, alice, photoOK))
	if out.Prompt == nil || !strings.Contains(out.Prompt.Text, "vendor payment slip") {
		t.Fatalf("expected vendor slip prompt, got %+v", out)
	}
	s, err := f.sessions.Get(ctx, alice)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if s.PhotoKey == "" {
		t.Fatal("photo key not recorded")
	}
	if blobs.Len() != 1 {
		t.Fatalf("blob count = %d, want 1", blobs.Len())
	}
}

func TestPhotoFailureContinuesAsSkip(t *testing.T) {
	f, _, blobs := newTestFlow()
	blobs.FailPuts = true
	ctx := context.Background()

	must(t)(f.Start(ctx, alice, testGroup))
	must(t)(f.HandleText(ctx, alice, "50"))
	must(t)(f.Skip(ctx, alice, "description"))
	must(t)(f.Skip(ctx, alice, "location"))

	out := must(t)(f.HandlePhoto(ctx, alice, photoOK))
	if out.Prompt == nil || !strings.Contains(out.Prompt.Text, "Couldn't store") {
		t.Fatalf("expected warning, got %+v", out)
	}
	if !strings.Contains(out.Prompt.Text, "vendor payment slip") {
		t.Fatalf("flow did not advance: %+v", out)
	}
	s, err := f.sessions.Get(ctx, alice)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if s.PhotoKey != "" {
		t.Fatalf("photo key = %q, want empty on failed upload", s.PhotoKey)
	}
	if s.Step != session.StepVendorSlip {
		t.Fatalf("step = %s, want vendor_slip", s.Step)
	}

	// a failed download degrades the same way
	out = must(t)(f.HandlePhoto(ctx, alice, photoFail))
	if out.Prompt == nil || !strings.Contains(out.Prompt.Text, "Couldn't download") {
		t.Fatalf("expected warning, got %+v", out)
	}
}

func TestSessionMissReportsExpired(t *testing.T) {
	f, _, _ := newTestFlow()
	ctx := context.Background()

	if _, err := f.HandleText(ctx, alice, "300"); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("err = %v, want ErrSessionExpired", err)
	}
	if _, err := f.UsersDone(ctx, alice); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("err = %v, want ErrSessionExpired", err)
	}
}

func TestStaleCallbackIgnored(t *testing.T) {
	f, store, _ := newTestFlow()
	ctx := context.Background()

	must(t)(f.Start(ctx, alice, testGroup))

	out := must(t)(f.SetSplitType(ctx, alice, session.SplitEqual))
	if out.Prompt != nil || out.Edit != nil || out.Alert != "" || out.Done {
		t.Fatalf("stale callback produced output: %+v", out)
	}
	if len(store.created) != 0 {
		t.Fatal("stale callback committed an expense")
	}
	s, err := f.sessions.Get(ctx, alice)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if s.Step != session.StepAmount {
		t.Fatalf("step = %s, want amount", s.Step)
	}
}

func TestCommitFailureKeepsSession(t *testing.T) {
	f, store, _ := newTestFlow()
	ctx := context.Background()

	advanceToSplitType(t, f, "300")
	store.createErr = errors.New("connection reset")

	out := must(t)(f.SetSplitType(ctx, alice, session.SplitEqual))
	if out.Prompt == nil || !strings.Contains(out.Prompt.Text, "Failed to save") {
		t.Fatalf("expected failure message, got %+v", out)
	}
	if !f.Active(ctx, alice) {
		t.Fatal("session must survive a failed commit")
	}

	store.createErr = nil
	out = must(t)(f.SetSplitType(ctx, alice, session.SplitEqual))
	if !out.Done || len(store.created) != 1 {
		t.Fatalf("retry did not commit: done=%v created=%d", out.Done, len(store.created))
	}
}

func TestCancel(t *testing.T) {
	f, _, _ := newTestFlow()
	ctx := context.Background()

	must(t)(f.Start(ctx, alice, testGroup))
	out := must(t)(f.Cancel(ctx, alice))
	if !out.Done || out.Edit == nil || !strings.Contains(out.Edit.Text, "cancelled") {
		t.Fatalf("unexpected cancel outcome: %+v", out)
	}
	if f.Active(ctx, alice) {
		t.Fatal("session should be gone after cancel")
	}
}

func TestPerHeadRounding(t *testing.T) {
	s := session.ExpenseSession{
		GroupID:      testGroup,
		Amount:       decimal.RequireFromString("100"),
		Participants: []int64{alice, bob, carol},
		PaidBy:       alice,
		SplitType:    session.SplitEqual,
	}
	splits, perHead := buildSplits(s)
	if perHead.StringFixed(2) != "33.33" {
		t.Fatalf("per head = %s, want 33.33", perHead.StringFixed(2))
	}
	if len(splits) != 2 {
		t.Fatalf("splits = %d, want 2", len(splits))
	}
}
