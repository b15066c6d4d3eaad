package settings

import (
	"context"
	"strings"
	"testing"

	"github.com/raswise/raswise/bot/storage"
	"github.com/raswise/raswise/bot/ui"
)

const testGroup = int64(-100500)

type fakeStore struct {
	settings storage.GroupSettings
}

func (s *fakeStore) GroupSettings(context.Context, int64) (storage.GroupSettings, error) {
	return s.settings, nil
}

func (s *fakeStore) SetCurrency(_ context.Context, _ int64, currency string) error {
	s.settings.Currency = currency
	return nil
}

func (s *fakeStore) SetReminders(_ context.Context, _ int64, enabled bool, hour int) error {
	s.settings.Enabled = enabled
	s.settings.ReminderHour = hour
	return nil
}

func (s *fakeStore) SetTimezone(_ context.Context, _ int64, offset int) error {
	s.settings.TimezoneOffset = offset
	return nil
}

// promptText curries t so a two-value service call can be checked inline:
// promptText(t)(svc.SetCurrency(...)).
func promptText(t *testing.T) func(*ui.Outcome, error) string {
	return func(out *ui.Outcome, err error) string {
		t.Helper()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out == nil || out.Prompt == nil {
			t.Fatalf("expected a prompt, got %+v", out)
		}
		return out.Prompt.Text
	}
}

func TestSetCurrency(t *testing.T) {
	store := &fakeStore{settings: storage.GroupSettings{GroupID: testGroup, Currency: "$"}}
	svc := NewService(store)

	text := promptText(t)(svc.SetCurrency(context.Background(), testGroup, " € "))
	if !strings.Contains(text, "Currency set to €") {
		t.Fatalf("text = %q", text)
	}
	if store.settings.Currency != "€" {
		t.Fatalf("stored currency = %q", store.settings.Currency)
	}
}

func TestSetCurrencyRejectsEmpty(t *testing.T) {
	store := &fakeStore{settings: storage.GroupSettings{Currency: "$"}}
	svc := NewService(store)

	text := promptText(t)(svc.SetCurrency(context.Background(), testGroup, "  "))
	if !strings.Contains(text, "Usage:") {
		t.Fatalf("text = %q", text)
	}
	if store.settings.Currency != "$" {
		t.Fatalf("currency changed to %q", store.settings.Currency)
	}
}

func TestSetRemindersOnWithHour(t *testing.T) {
	store := &fakeStore{settings: storage.GroupSettings{ReminderHour: 10}}
	svc := NewService(store)

	text := promptText(t)(svc.SetReminders(context.Background(), testGroup, "on 9"))
	if !strings.Contains(text, "enabled at 09:00") {
		t.Fatalf("text = %q", text)
	}
	if !store.settings.Enabled || store.settings.ReminderHour != 9 {
		t.Fatalf("settings = %+v", store.settings)
	}
}

func TestSetRemindersOnKeepsHour(t *testing.T) {
	store := &fakeStore{settings: storage.GroupSettings{ReminderHour: 21}}
	svc := NewService(store)

	text := promptText(t)(svc.SetReminders(context.Background(), testGroup, "on"))
	if !strings.Contains(text, "enabled at 21:00") {
		t.Fatalf("text = %q", text)
	}
}

func TestSetRemindersRejectsBadHour(t *testing.T) {
	store := &fakeStore{}
	svc := NewService(store)

	text := promptText(t)(svc.SetReminders(context.Background(), testGroup, "on 24"))
	if !strings.Contains(text, "between 0 and 23") {
		t.Fatalf("text = %q", text)
	}
	if store.settings.Enabled {
		t.Fatal("reminders enabled despite invalid hour")
	}
}

func TestSetRemindersOff(t *testing.T) {
	store := &fakeStore{settings: storage.GroupSettings{Enabled: true, ReminderHour: 10}}
	svc := NewService(store)

	text := promptText(t)(svc.SetReminders(context.Background(), testGroup, "off"))
	if !strings.Contains(text, "disabled") {
		t.Fatalf("text = %q", text)
	}
	if store.settings.Enabled {
		t.Fatal("reminders still enabled")
	}
}

func TestSetTimezone(t *testing.T) {
	store := &fakeStore{}
	svc := NewService(store)

	text := promptText(t)(svc.SetTimezone(context.Background(), testGroup, "8"))
	if !strings.Contains(text, "UTC+8") {
		t.Fatalf("text = %q", text)
	}
	if store.settings.TimezoneOffset != 8 {
		t.Fatalf("offset = %d", store.settings.TimezoneOffset)
	}
}

func TestSetTimezoneRejectsOutOfRange(t *testing.T) {
	store := &fakeStore{}
	svc := NewService(store)

	for _, args := range []string{"15", "-13", "east"} {
		text := promptText(t)(svc.SetTimezone(context.Background(), testGroup, args))
		if !strings.Contains(text, "Usage:") {
			t.Fatalf("args %q: text = %q", args, text)
		}
	}
}

func TestStatus(t *testing.T) {
	store := &fakeStore{settings: storage.GroupSettings{
		Currency:       "₱",
		Enabled:        true,
		ReminderHour:   9,
		TimezoneOffset: 8,
	}}
	svc := NewService(store)

	text := promptText(t)(svc.Status(context.Background(), testGroup))
	for _, want := range []string{"Currency: ₱", "on at 09:00", "UTC+8"} {
		if !strings.Contains(text, want) {
			t.Fatalf("status %q missing %q", text, want)
		}
	}
}
