package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// UpsertUser creates or refreshes a user record from a Telegram profile.
func (s *Store) UpsertUser(ctx context.Context, u User) error {
	start := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (telegram_id, username, first_name, last_name)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (telegram_id) DO UPDATE SET
			username = EXCLUDED.username,
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name`,
		u.TelegramID, u.Username, u.FirstName, u.LastName,
	)
	logQuery(ctx, "users.upsert", start, err)
	if err != nil {
		return fmt.Errorf("upsert user %d: %w", u.TelegramID, err)
	}
	return nil
}

// GetUser fetches a user by Telegram ID.
func (s *Store) GetUser(ctx context.Context, telegramID int64) (User, error) {
	var u User
	err := s.db.GetContext(ctx, &u,
		`SELECT * FROM users WHERE telegram_id = $1`, telegramID)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("get user %d: %w", telegramID, err)
	}
	return u, nil
}

// GetUsers fetches multiple users, keyed by Telegram ID. Missing IDs are
// simply absent from the result.
func (s *Store) GetUsers(ctx context.Context, telegramIDs []int64) (map[int64]User, error) {
	out := make(map[int64]User, len(telegramIDs))
	if len(telegramIDs) == 0 {
		return out, nil
	}
	query, args, err := sqlx.In(
		`SELECT * FROM users WHERE telegram_id IN (?)`, telegramIDs)
	if err != nil {
		return nil, err
	}
	var users []User
	if err := s.db.SelectContext(ctx, &users, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("get users: %w", err)
	}
	for _, u := range users {
		out[u.TelegramID] = u
	}
	return out, nil
}
