// Package account implements the receiving-account flow: a two-step entry
// (pick a type, send the details) plus read-back commands. Payees need an
// active account on file before anyone can start paying them.
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/raswise/raswise/bot/session"
	"github.com/raswise/raswise/bot/storage"
	"github.com/raswise/raswise/bot/ui"
	"github.com/raswise/raswise/core/logger"
)

const component = "flow.account"

// Callback action keys.
const (
	ActionType   = "account_type"
	ActionCancel = "cancel_account"
)

// Offered account types. "Other" still goes through the same free-text info
// step, so nothing is lost by the fixed list.
var accountTypes = []string{"GCash", "Maya", "Bank Transfer", "Other"}

// ErrSessionExpired reports that no live session backs the event.
var ErrSessionExpired = errors.New("account: session expired")

var errStepMoved = errors.New("account: step moved")

// Storage is the slice of the database layer the flow needs.
type Storage interface {
	SetAccountDetail(ctx context.Context, userID int64, accountType, accountInfo string) error
	ActiveAccountDetail(ctx context.Context, userID int64) (storage.AccountDetail, error)
}

// Flow drives account-details entry.
type Flow struct {
	sessions *session.Repo[session.AccountSession]
	store    Storage
}

// New builds a Flow on the given storage and session store.
func New(store Storage, kv session.Store) *Flow {
	return &Flow{
		sessions: session.NewRepo[session.AccountSession](kv, session.KindAccount, session.AccountTTL),
		store:    store,
	}
}

// Active reports whether userID has a live account session.
func (f *Flow) Active(ctx context.Context, userID int64) bool {
	return f.sessions.Exists(ctx, userID)
}

// Start opens (or restarts) the flow with the type keyboard.
func (f *Flow) Start(ctx context.Context, userID int64) (*ui.Outcome, error) {
	s := session.AccountSession{Step: session.StepAccountType}
	if err := f.sessions.Start(ctx, userID, s); err != nil {
		return nil, err
	}
	logger.Info(ctx, component, "account.start")

	var rows [][]ui.Button
	for i := 0; i < len(accountTypes); i += 2 {
		row := []ui.Button{{Label: accountTypes[i], Action: ActionType, Data: accountTypes[i]}}
		if i+1 < len(accountTypes) {
			row = append(row, ui.Button{Label: accountTypes[i+1], Action: ActionType, Data: accountTypes[i+1]})
		}
		rows = append(rows, row)
	}
	rows = append(rows, ui.Row(ui.Button{Label: "❌ Cancel", Action: ActionCancel, Data: "cancel"}))
	return &ui.Outcome{Prompt: &ui.Prompt{
		Text:    "🏦 Let's set up your receiving account.\n\nStep 1: Pick the account type:",
		Buttons: rows,
	}}, nil
}

// SetType records the chosen type and asks for the details.
func (f *Flow) SetType(ctx context.Context, userID int64, kind string) (*ui.Outcome, error) {
	if !validType(kind) {
		return &ui.Outcome{}, nil
	}
	if _, err := f.sessions.Update(ctx, userID, func(s *session.AccountSession) error {
		if s.Step != session.StepAccountType {
			return errStepMoved
		}
		s.AccountType = kind
		s.Step = session.StepAccountInfo
		return nil
	}); err != nil {
		return guard(err)
	}
	return &ui.Outcome{Edit: &ui.Prompt{
		Text: fmt.Sprintf("Account type: %s\n\nStep 2: Send the account details (number, name, whatever the payer needs):", kind),
		Buttons: [][]ui.Button{
			ui.Row(ui.Button{Label: "❌ Cancel", Action: ActionCancel, Data: "cancel"}),
		},
	}}, nil
}

// HandleText stores the details when the flow is on the info step.
func (f *Flow) HandleText(ctx context.Context, userID int64, text string) (*ui.Outcome, error) {
	s, err := f.sessions.Get(ctx, userID)
	if err != nil {
		return guard(err)
	}
	if s.Step != session.StepAccountInfo {
		return &ui.Outcome{}, nil
	}
	info := strings.TrimSpace(text)
	if info == "" {
		return ui.Text("Please send the account details as text."), nil
	}
	if err := f.store.SetAccountDetail(ctx, userID, s.AccountType, info); err != nil {
		logger.Error(ctx, component, "account.save_failed", slog.String("err", err.Error()))
		return ui.Text("❌ Failed to save the account details. Please try again."), nil
	}
	if derr := f.sessions.Delete(ctx, userID); derr != nil {
		logger.Warn(ctx, component, "account.session.delete_failed", slog.String("err", derr.Error()))
	}
	logger.Info(ctx, component, "account.saved", slog.String("type", s.AccountType))
	return &ui.Outcome{
		Prompt: &ui.Prompt{Text: fmt.Sprintf("✅ Account details saved!\n\nType: %s\nInfo: %s", s.AccountType, info)},
		Done:   true,
	}, nil
}

// Cancel tears down the session.
func (f *Flow) Cancel(ctx context.Context, userID int64) (*ui.Outcome, error) {
	if err := f.sessions.Delete(ctx, userID); err != nil {
		return nil, err
	}
	return &ui.Outcome{
		Edit:  &ui.Prompt{Text: "❌ Account setup cancelled."},
		Alert: "Cancelled",
		Done:  true,
	}, nil
}

// Abort drops the session without touching the originating prompt.
func (f *Flow) Abort(ctx context.Context, userID int64) (bool, error) {
	if !f.sessions.Exists(ctx, userID) {
		return false, nil
	}
	if err := f.sessions.Delete(ctx, userID); err != nil {
		return false, err
	}
	return true, nil
}

// View renders the caller's own active account.
func (f *Flow) View(ctx context.Context, userID int64) (*ui.Outcome, error) {
	a, err := f.store.ActiveAccountDetail(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return ui.Text("You haven't set account details yet. Use /setaccount."), nil
	}
	if err != nil {
		return nil, err
	}
	return ui.Text(fmt.Sprintf("🏦 Your account details:\n\nType: %s\nInfo: %s", a.AccountType, a.AccountInfo)), nil
}

// InfoFor renders another user's active account, for /accountinfo replies.
func (f *Flow) InfoFor(ctx context.Context, targetID int64, targetName string) (*ui.Outcome, error) {
	a, err := f.store.ActiveAccountDetail(ctx, targetID)
	if errors.Is(err, storage.ErrNotFound) {
		return ui.Text(fmt.Sprintf("%s hasn't set account details yet.", targetName)), nil
	}
	if err != nil {
		return nil, err
	}
	return ui.Text(fmt.Sprintf("🏦 %s's account details:\n\nType: %s\nInfo: %s", targetName, a.AccountType, a.AccountInfo)), nil
}

func validType(kind string) bool {
	for _, t := range accountTypes {
		if t == kind {
			return true
		}
	}
	return false
}

func guard(err error) (*ui.Outcome, error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return nil, ErrSessionExpired
	case errors.Is(err, errStepMoved):
		return &ui.Outcome{}, nil
	default:
		return nil, err
	}
}
