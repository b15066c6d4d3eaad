// Package settings exposes the per-group knobs: currency symbol and the
// daily reminder schedule.
package settings

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/raswise/raswise/bot/storage"
	"github.com/raswise/raswise/bot/ui"
	"github.com/raswise/raswise/core/logger"
)

const component = "settings"

// Storage is the slice of the database layer this package needs.
type Storage interface {
	GroupSettings(ctx context.Context, groupID int64) (storage.GroupSettings, error)
	SetCurrency(ctx context.Context, groupID int64, currency string) error
	SetReminders(ctx context.Context, groupID int64, enabled bool, hour int) error
	SetTimezone(ctx context.Context, groupID int64, offset int) error
}

// Service implements the settings operations.
type Service struct {
	store Storage
}

// NewService builds a Service.
func NewService(store Storage) *Service {
	return &Service{store: store}
}

// SetCurrency updates the group's currency symbol, shown in every amount the
// bot renders for that group.
func (s *Service) SetCurrency(ctx context.Context, groupID int64, symbol string) (*ui.Outcome, error) {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" || len(symbol) > 8 {
		return ui.Text("Usage: /setcurrency <symbol>  (e.g. /setcurrency €)"), nil
	}
	if err := s.store.SetCurrency(ctx, groupID, symbol); err != nil {
		return nil, err
	}
	logger.Info(ctx, component, "settings.currency",
		slog.Int64("group_id", groupID),
		slog.String("currency", symbol),
	)
	return ui.Text(fmt.Sprintf("✅ Currency set to %s", symbol)), nil
}

// SetReminders toggles the daily reminder and optionally moves its hour.
// args is everything after the command, e.g. "on 9" or "off".
func (s *Service) SetReminders(ctx context.Context, groupID int64, args string) (*ui.Outcome, error) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return s.show(ctx, groupID)
	}

	var enabled bool
	switch fields[0] {
	case "on":
		enabled = true
	case "off":
		enabled = false
	default:
		return ui.Text("Usage: /setreminder on [hour] | off"), nil
	}

	hour := 10
	if cur, err := s.store.GroupSettings(ctx, groupID); err == nil {
		hour = cur.ReminderHour
	}
	if len(fields) > 1 {
		h, err := strconv.Atoi(fields[1])
		if err != nil || h < 0 || h > 23 {
			return ui.Text("The hour must be a number between 0 and 23."), nil
		}
		hour = h
	}

	if err := s.store.SetReminders(ctx, groupID, enabled, hour); err != nil {
		return nil, err
	}
	logger.Info(ctx, component, "settings.reminders",
		slog.Int64("group_id", groupID),
		slog.Bool("enabled", enabled),
		slog.Int("hour", hour),
	)
	if !enabled {
		return ui.Text("🔕 Daily reminders disabled."), nil
	}
	return ui.Text(fmt.Sprintf("🔔 Daily reminders enabled at %02d:00 (group local time).", hour)), nil
}

// SetTimezone stores the group's UTC offset so reminders fire in local time.
func (s *Service) SetTimezone(ctx context.Context, groupID int64, args string) (*ui.Outcome, error) {
	offset, err := strconv.Atoi(strings.TrimSpace(args))
	if err != nil || offset < -12 || offset > 14 {
		return ui.Text("Usage: /settimezone <utc offset>  (e.g. /settimezone 8 for UTC+8)"), nil
	}
	if err := s.store.SetTimezone(ctx, groupID, offset); err != nil {
		return nil, err
	}
	logger.Info(ctx, component, "settings.timezone",
		slog.Int64("group_id", groupID),
		slog.Int("offset", offset),
	)
	return ui.Text(fmt.Sprintf("✅ Timezone set to UTC%s.", formatOffset(offset))), nil
}

// Status renders the current group settings.
func (s *Service) Status(ctx context.Context, groupID int64) (*ui.Outcome, error) {
	return s.show(ctx, groupID)
}

func (s *Service) show(ctx context.Context, groupID int64) (*ui.Outcome, error) {
	cur, err := s.store.GroupSettings(ctx, groupID)
	if err != nil {
		return nil, err
	}
	state := "off"
	if cur.Enabled {
		state = fmt.Sprintf("on at %02d:00", cur.ReminderHour)
	}
	return ui.Text(fmt.Sprintf(
		"⚙️ Group settings:\nCurrency: %s\nReminders: %s\nTimezone: UTC%s",
		cur.Currency, state, formatOffset(cur.TimezoneOffset),
	)), nil
}

func formatOffset(offset int) string {
	if offset >= 0 {
		return fmt.Sprintf("+%d", offset)
	}
	return strconv.Itoa(offset)
}
