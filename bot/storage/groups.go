package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// RegisterGroupUser adds a user to a group's roster. Registering an existing
// member is a no-op.
func (s *Store) RegisterGroupUser(ctx context.Context, groupID, userID, registeredBy int64) error {
	start := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO group_users (group_id, user_id, registered_by)
		VALUES ($1, $2, $3)
		ON CONFLICT (group_id, user_id) DO NOTHING`,
		groupID, userID, registeredBy,
	)
	logQuery(ctx, "groups.register_user", start, err)
	if err != nil {
		return fmt.Errorf("register user %d in group %d: %w", userID, groupID, err)
	}
	return nil
}

// UnregisterGroupUser removes a user from a group's roster. It refuses with
// ErrUnpaidDebts while the user still owes money in that group.
func (s *Store) UnregisterGroupUser(ctx context.Context, groupID, userID int64) error {
	var unpaid int
	err := s.db.GetContext(ctx, &unpaid, `
		SELECT COUNT(*)
		FROM expense_splits es
		JOIN expenses e ON es.expense_id = e.id
		WHERE e.group_id = $1 AND es.user_id = $2 AND NOT es.paid`,
		groupID, userID,
	)
	if err != nil {
		return fmt.Errorf("count unpaid for user %d in group %d: %w", userID, groupID, err)
	}
	if unpaid > 0 {
		return ErrUnpaidDebts
	}
	_, err = s.db.ExecContext(ctx,
		`DELETE FROM group_users WHERE group_id = $1 AND user_id = $2`,
		groupID, userID,
	)
	if err != nil {
		return fmt.Errorf("unregister user %d from group %d: %w", userID, groupID, err)
	}
	return nil
}

// GroupMembers lists the registered users of a group.
func (s *Store) GroupMembers(ctx context.Context, groupID int64) ([]User, error) {
	var users []User
	err := s.db.SelectContext(ctx, &users, `
		SELECT u.*
		FROM users u
		JOIN group_users gu ON u.telegram_id = gu.user_id
		WHERE gu.group_id = $1
		ORDER BY u.telegram_id`,
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("group members %d: %w", groupID, err)
	}
	return users, nil
}

// IsGroupMember reports whether a user is on the group's roster.
func (s *Store) IsGroupMember(ctx context.Context, groupID, userID int64) (bool, error) {
	var one int
	err := s.db.GetContext(ctx, &one,
		`SELECT 1 FROM group_users WHERE group_id = $1 AND user_id = $2`,
		groupID, userID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("membership check %d/%d: %w", groupID, userID, err)
	}
	return true, nil
}

// UpsertMembership tracks a user's presence in a group chat for the mini-app
// group picker.
func (s *Store) UpsertMembership(ctx context.Context, userID, groupID int64, groupTitle string, isMember bool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_group_memberships (user_id, group_id, group_title, is_member, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (user_id, group_id) DO UPDATE SET
			group_title = EXCLUDED.group_title,
			is_member = EXCLUDED.is_member,
			updated_at = now()`,
		userID, groupID, groupTitle, isMember,
	)
	if err != nil {
		return fmt.Errorf("upsert membership %d/%d: %w", userID, groupID, err)
	}
	return nil
}

// UserGroups lists the groups a user is currently a member of.
func (s *Store) UserGroups(ctx context.Context, userID int64) ([]Membership, error) {
	var out []Membership
	err := s.db.SelectContext(ctx, &out, `
		SELECT user_id, group_id, group_title, is_member, updated_at
		FROM user_group_memberships
		WHERE user_id = $1 AND is_member
		ORDER BY updated_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("user groups %d: %w", userID, err)
	}
	return out, nil
}

// GroupSettings returns the group's settings, with defaults when the group
// has never been configured.
func (s *Store) GroupSettings(ctx context.Context, groupID int64) (GroupSettings, error) {
	gs := GroupSettings{
		GroupID:      groupID,
		Currency:     "$",
		ReminderHour: 10,
	}
	err := s.db.GetContext(ctx, &gs,
		`SELECT * FROM group_settings WHERE group_id = $1`, groupID)
	if errors.Is(err, sql.ErrNoRows) {
		return gs, nil
	}
	if err != nil {
		return gs, fmt.Errorf("group settings %d: %w", groupID, err)
	}
	if gs.Currency == "" {
		gs.Currency = "$"
	}
	return gs, nil
}

// SetCurrency sets the group's currency symbol.
func (s *Store) SetCurrency(ctx context.Context, groupID int64, currency string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO group_settings (group_id, currency)
		VALUES ($1, $2)
		ON CONFLICT (group_id) DO UPDATE SET currency = EXCLUDED.currency`,
		groupID, currency,
	)
	if err != nil {
		return fmt.Errorf("set currency %d: %w", groupID, err)
	}
	return nil
}

// SetReminders toggles the daily unpaid-splits reminder for a group.
func (s *Store) SetReminders(ctx context.Context, groupID int64, enabled bool, hour int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO group_settings (group_id, enabled, reminder_hour)
		VALUES ($1, $2, $3)
		ON CONFLICT (group_id) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			reminder_hour = EXCLUDED.reminder_hour`,
		groupID, enabled, hour,
	)
	if err != nil {
		return fmt.Errorf("set reminders %d: %w", groupID, err)
	}
	return nil
}

// SetTimezone sets the group's UTC offset in whole hours, used to decide
// when the reminder hour arrives in group-local time.
func (s *Store) SetTimezone(ctx context.Context, groupID int64, offset int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO group_settings (group_id, timezone_offset)
		VALUES ($1, $2)
		ON CONFLICT (group_id) DO UPDATE SET timezone_offset = EXCLUDED.timezone_offset`,
		groupID, offset,
	)
	if err != nil {
		return fmt.Errorf("set timezone %d: %w", groupID, err)
	}
	return nil
}

// GroupsWithRemindersEnabled lists settings of all groups with the reminder
// toggle on.
func (s *Store) GroupsWithRemindersEnabled(ctx context.Context) ([]GroupSettings, error) {
	var out []GroupSettings
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM group_settings WHERE enabled`)
	if err != nil {
		return nil, fmt.Errorf("groups with reminders: %w", err)
	}
	return out, nil
}

// TouchReminderSent records that the group's reminder went out, arming the
// once-per-day guard.
func (s *Store) TouchReminderSent(ctx context.Context, groupID int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE group_settings SET last_reminder_at = $2 WHERE group_id = $1`,
		groupID, at,
	)
	if err != nil {
		return fmt.Errorf("touch reminder %d: %w", groupID, err)
	}
	return nil
}
