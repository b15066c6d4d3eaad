// Package members manages the per-group roster: explicit registration and
// removal, listing, and passive membership tracking for the mini-app group
// picker.
package members

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/raswise/raswise/bot/storage"
	"github.com/raswise/raswise/bot/ui"
	"github.com/raswise/raswise/core/logger"
)

const component = "members"

// trackInterval bounds how often passive tracking writes the same
// (user, group) pair.
const trackInterval = 10 * time.Minute

// Storage is the slice of the database layer this package needs.
type Storage interface {
	UpsertUser(ctx context.Context, u storage.User) error
	RegisterGroupUser(ctx context.Context, groupID, userID, registeredBy int64) error
	UnregisterGroupUser(ctx context.Context, groupID, userID int64) error
	GroupMembers(ctx context.Context, groupID int64) ([]storage.User, error)
	UpsertMembership(ctx context.Context, userID, groupID int64, groupTitle string, isMember bool) error
}

// Service implements roster operations independently of the transport.
type Service struct {
	store Storage

	mu      sync.Mutex
	tracked map[trackKey]time.Time
	now     func() time.Time
}

type trackKey struct {
	userID  int64
	groupID int64
}

// NewService builds a Service.
func NewService(store Storage) *Service {
	return &Service{
		store:   store,
		tracked: make(map[trackKey]time.Time),
		now:     time.Now,
	}
}

// Register adds target to the group roster, creating the user row first so
// the foreign key always holds.
func (s *Service) Register(ctx context.Context, groupID, actorID int64, target storage.User) (*ui.Outcome, error) {
	if err := s.store.UpsertUser(ctx, target); err != nil {
		return nil, err
	}
	if err := s.store.RegisterGroupUser(ctx, groupID, target.TelegramID, actorID); err != nil {
		return nil, err
	}
	logger.Info(ctx, component, "members.register",
		slog.Int64("group_id", groupID),
		slog.Int64("target_id", target.TelegramID),
	)
	return ui.Text(fmt.Sprintf("✅ %s is registered for expense splitting!", target.DisplayName())), nil
}

// Unregister removes target from the roster. Users with unpaid debts in the
// group stay until they settle.
func (s *Service) Unregister(ctx context.Context, groupID, targetID int64, targetName string) (*ui.Outcome, error) {
	err := s.store.UnregisterGroupUser(ctx, groupID, targetID)
	if errors.Is(err, storage.ErrUnpaidDebts) {
		return ui.Text(fmt.Sprintf("❌ %s still has unpaid debts in this group. Settle them with /pay first.", targetName)), nil
	}
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, component, "members.unregister",
		slog.Int64("group_id", groupID),
		slog.Int64("target_id", targetID),
	)
	return ui.Text(fmt.Sprintf("👋 %s is no longer registered in this group.", targetName)), nil
}

// List renders the group roster.
func (s *Service) List(ctx context.Context, groupID int64) (*ui.Outcome, error) {
	users, err := s.store.GroupMembers(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return ui.Text("Nobody is registered in this group yet. Use /register to join."), nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "👥 Registered users (%d):\n", len(users))
	for _, u := range users {
		fmt.Fprintf(&b, "• %s\n", u.DisplayName())
	}
	return ui.Text(strings.TrimRight(b.String(), "\n")), nil
}

// Track records that user was seen in group. Writes are throttled per
// (user, group) pair; failures are logged and swallowed so tracking never
// breaks message handling.
func (s *Service) Track(ctx context.Context, u storage.User, groupID int64, groupTitle string) {
	key := trackKey{userID: u.TelegramID, groupID: groupID}
	now := s.now()

	s.mu.Lock()
	last, seen := s.tracked[key]
	if seen && now.Sub(last) < trackInterval {
		s.mu.Unlock()
		return
	}
	s.tracked[key] = now
	for k, at := range s.tracked {
		if now.Sub(at) > 2*trackInterval {
			delete(s.tracked, k)
		}
	}
	s.mu.Unlock()

	if err := s.store.UpsertUser(ctx, u); err != nil {
		logger.Warn(ctx, component, "members.track.user_failed", slog.String("err", err.Error()))
		return
	}
	if err := s.store.UpsertMembership(ctx, u.TelegramID, groupID, groupTitle, true); err != nil {
		logger.Warn(ctx, component, "members.track.membership_failed", slog.String("err", err.Error()))
	}
}
