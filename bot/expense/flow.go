// Package expense implements the multi-step expense creation flow: amount,
// optional description/location/photos, participant selection, payer, and
// split mode, committed atomically as one expense with its splits.
package expense

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/raswise/raswise/bot/blob"
	"github.com/raswise/raswise/bot/money"
	"github.com/raswise/raswise/bot/session"
	"github.com/raswise/raswise/bot/storage"
	"github.com/raswise/raswise/bot/ui"
	"github.com/raswise/raswise/core/logger"
)

const component = "flow.expense"

// Callback action keys for the flow's inline keyboards.
const (
	ActionSkip      = "expense_skip"
	ActionUser      = "expense_user"
	ActionUsersDone = "expense_users_done"
	ActionPaidBy    = "expense_paidby"
	ActionSplit     = "expense_split"
	ActionCancel    = "expense_cancel"
)

// SelectAllPayload marks the "select everyone" user button.
const SelectAllPayload = "all"

// ErrSessionExpired reports that no live session backs the event. Expired and
// never-started sessions are indistinguishable on purpose.
var ErrSessionExpired = errors.New("expense: session expired")

// Step-guard sentinels. A guarded update returning one of these means the
// event lost a race against a concurrent transition and is dropped.
var (
	errStepMoved      = errors.New("expense: step moved")
	errNoParticipants = errors.New("expense: no participants selected")
	errNotParticipant = errors.New("expense: user not selected")
)

// Custom-split line parse failures, each with its own reply: wrong token
// count vs. unparseable or non-positive values.
var (
	errSplitLineFormat = errors.New("expense: bad split line format")
	errSplitLineValues = errors.New("expense: bad split line values")
)

// Storage is the slice of the database layer the flow needs.
type Storage interface {
	GroupMembers(ctx context.Context, groupID int64) ([]storage.User, error)
	GetUsers(ctx context.Context, telegramIDs []int64) (map[int64]storage.User, error)
	GroupSettings(ctx context.Context, groupID int64) (storage.GroupSettings, error)
	CreateExpenseWithSplits(ctx context.Context, in storage.ExpenseInput, splits []storage.SplitInput) (storage.Expense, error)
}

// PhotoFetch downloads the photo bytes of the triggering message. Injected so
// the flow never touches the transport.
type PhotoFetch func(ctx context.Context) (data []byte, contentType string, err error)

// Flow drives expense creation. Progress lives in the session store; every
// handler re-reads it, so events surviving a bot restart keep working.
type Flow struct {
	sessions *session.Repo[session.ExpenseSession]
	store    Storage
	blobs    blob.Store
}

// New builds a Flow on the given storage, blob store, and session store.
func New(store Storage, blobs blob.Store, kv session.Store) *Flow {
	return &Flow{
		sessions: session.NewRepo[session.ExpenseSession](kv, session.KindExpense, session.ExpenseTTL),
		store:    store,
		blobs:    blobs,
	}
}

// Active reports whether userID has a live expense session.
func (f *Flow) Active(ctx context.Context, userID int64) bool {
	return f.sessions.Exists(ctx, userID)
}

// Start opens (or restarts) a session bound to groupID and asks for the
// amount. The group is captured here and never re-derived from later events.
func (f *Flow) Start(ctx context.Context, userID, groupID int64) (*ui.Outcome, error) {
	s := session.ExpenseSession{Step: session.StepAmount, GroupID: groupID}
	if err := f.sessions.Start(ctx, userID, s); err != nil {
		return nil, err
	}
	logger.Info(ctx, component, "expense.start", slog.Int64("group_id", groupID))
	return prompt(
		"💰 Let's add a new expense!\n\nStep 1: Please enter the total amount (just the number):",
		[][]ui.Button{cancelRow()},
	), nil
}

// Cancel tears down the session and confirms. Reached from the inline cancel
// button, so the confirmation replaces the prompt in place.
func (f *Flow) Cancel(ctx context.Context, userID int64) (*ui.Outcome, error) {
	if err := f.sessions.Delete(ctx, userID); err != nil {
		return nil, err
	}
	logger.Info(ctx, component, "expense.cancel")
	return &ui.Outcome{
		Edit:  &ui.Prompt{Text: "❌ Expense creation cancelled."},
		Alert: "Cancelled",
		Done:  true,
	}, nil
}

// Abort drops the session without touching the originating prompt. Used by
// the /cancel command, which arrives as a fresh message rather than a button.
func (f *Flow) Abort(ctx context.Context, userID int64) (bool, error) {
	if !f.sessions.Exists(ctx, userID) {
		return false, nil
	}
	if err := f.sessions.Delete(ctx, userID); err != nil {
		return false, err
	}
	logger.Info(ctx, component, "expense.abort")
	return true, nil
}

// HandleText routes a free-text message to the step that expects one. Steps
// driven by keyboards or photos ignore text entirely.
func (f *Flow) HandleText(ctx context.Context, userID int64, text string) (*ui.Outcome, error) {
	s, err := f.sessions.Get(ctx, userID)
	if err != nil {
		return guard(err)
	}
	switch s.Step {
	case session.StepAmount:
		return f.handleAmount(ctx, userID, text)
	case session.StepDescription:
		return f.handleDescription(ctx, userID, text)
	case session.StepLocation:
		return f.handleLocation(ctx, userID, text)
	case session.StepCustomSplits:
		return f.handleCustomSplit(ctx, userID, text)
	default:
		return &ui.Outcome{}, nil
	}
}

func (f *Flow) handleAmount(ctx context.Context, userID int64, text string) (*ui.Outcome, error) {
	amount, err := money.Parse(text)
	if err != nil {
		return ui.Text("Please enter a valid positive number."), nil
	}
	s, uerr := f.update(ctx, userID, session.StepAmount, func(s *session.ExpenseSession) {
		s.Amount = amount
		s.Step = session.StepDescription
	})
	if uerr != nil {
		return guard(uerr)
	}
	return prompt(
		fmt.Sprintf("Amount: %s\n\nStep 2: What was this expense for? (description)", s.Amount.StringFixed(2)),
		skipCancelRows("description"),
	), nil
}

func (f *Flow) handleDescription(ctx context.Context, userID int64, text string) (*ui.Outcome, error) {
	s, err := f.update(ctx, userID, session.StepDescription, func(s *session.ExpenseSession) {
		s.Description = strings.TrimSpace(text)
		s.Step = session.StepLocation
	})
	if err != nil {
		return guard(err)
	}
	return f.stepPrompt(ctx, userID, s, "")
}

func (f *Flow) handleLocation(ctx context.Context, userID int64, text string) (*ui.Outcome, error) {
	s, err := f.update(ctx, userID, session.StepLocation, func(s *session.ExpenseSession) {
		s.Location = strings.TrimSpace(text)
		s.Step = session.StepPhoto
	})
	if err != nil {
		return guard(err)
	}
	return f.stepPrompt(ctx, userID, s, "")
}

func (f *Flow) handleCustomSplit(ctx context.Context, userID int64, text string) (*ui.Outcome, error) {
	targetID, amount, perr := parseSplitLine(text)
	if errors.Is(perr, errSplitLineFormat) {
		return ui.Text("Invalid format. Use: user_id amount (e.g. 123456789 50)"), nil
	}
	if perr != nil {
		return ui.Text("Invalid values. Please enter a valid user ID and a positive amount."), nil
	}
	s, err := f.sessions.Update(ctx, userID, func(s *session.ExpenseSession) error {
		if s.Step != session.StepCustomSplits {
			return errStepMoved
		}
		if !s.HasParticipant(targetID) {
			return errNotParticipant
		}
		if s.CustomSplits == nil {
			s.CustomSplits = make(map[int64]decimal.Decimal)
		}
		// last write wins: re-entering a user replaces the earlier share
		s.CustomSplits[targetID] = amount
		return nil
	})
	if errors.Is(err, errNotParticipant) {
		return ui.Text(fmt.Sprintf("User %d is not among the selected participants.", targetID)), nil
	}
	if err != nil {
		return guard(err)
	}

	if missing := s.MissingCustomSplits(); len(missing) > 0 {
		ids := make([]string, len(missing))
		for i, id := range missing {
			ids[i] = strconv.FormatInt(id, 10)
		}
		return ui.Text(fmt.Sprintf(
			"Recorded. Still waiting for: %s\nTotal so far: %s of %s",
			strings.Join(ids, ", "), s.CustomSplitSum().StringFixed(2), s.Amount.StringFixed(2),
		)), nil
	}
	if sum := s.CustomSplitSum(); !money.SumMatches(sum, s.Amount) {
		return ui.Text(fmt.Sprintf(
			"⚠️ The shares add up to %s but the total is %s.\nPlease re-enter the shares; a new entry for a user replaces the old one.",
			sum.StringFixed(2), s.Amount.StringFixed(2),
		)), nil
	}
	return f.commit(ctx, userID, s)
}

// Skip advances past an optional field. The payload names the field so a
// stale button from an earlier step cannot skip the wrong one.
func (f *Flow) Skip(ctx context.Context, userID int64, field string) (*ui.Outcome, error) {
	want, ok := skipSteps[field]
	if !ok {
		return &ui.Outcome{}, nil
	}
	s, err := f.update(ctx, userID, want, func(s *session.ExpenseSession) {
		s.Step = nextStep[want]
	})
	if err != nil {
		return guard(err)
	}
	return f.stepPrompt(ctx, userID, s, "")
}

var skipSteps = map[string]session.ExpenseStep{
	"description": session.StepDescription,
	"location":    session.StepLocation,
	"photo":       session.StepPhoto,
	"vendor_slip": session.StepVendorSlip,
}

var nextStep = map[session.ExpenseStep]session.ExpenseStep{
	session.StepDescription: session.StepLocation,
	session.StepLocation:    session.StepPhoto,
	session.StepPhoto:       session.StepVendorSlip,
	session.StepVendorSlip:  session.StepUsers,
}

// HandlePhoto stores the receipt or vendor slip photo and advances. Fetch or
// upload failures degrade to a skip with a warning instead of stalling the
// flow.
func (f *Flow) HandlePhoto(ctx context.Context, userID int64, fetch PhotoFetch) (*ui.Outcome, error) {
	cur, err := f.sessions.Get(ctx, userID)
	if err != nil {
		return guard(err)
	}
	if cur.Step != session.StepPhoto && cur.Step != session.StepVendorSlip {
		return &ui.Outcome{}, nil
	}

	purpose := "receipts"
	if cur.Step == session.StepVendorSlip {
		purpose = "vendor-slips"
	}
	key, warn := f.storePhoto(ctx, userID, purpose, fetch)

	s, err := f.update(ctx, userID, cur.Step, func(s *session.ExpenseSession) {
		switch s.Step {
		case session.StepPhoto:
			s.PhotoKey = key
			s.Step = session.StepVendorSlip
		case session.StepVendorSlip:
			s.VendorSlipKey = key
			s.Step = session.StepUsers
		}
	})
	if err != nil {
		return guard(err)
	}
	return f.stepPrompt(ctx, userID, s, warn)
}

func (f *Flow) storePhoto(ctx context.Context, userID int64, purpose string, fetch PhotoFetch) (key, warn string) {
	data, contentType, err := fetch(ctx)
	if err != nil {
		logger.Warn(ctx, component, "expense.photo.fetch_failed",
			slog.String("purpose", purpose),
			slog.String("err", err.Error()),
		)
		return "", "⚠️ Couldn't download that photo, continuing without it.\n\n"
	}
	key = blob.PhotoKey(purpose, userID)
	if err := f.blobs.Put(ctx, key, data, contentType); err != nil {
		logger.Warn(ctx, component, "expense.photo.store_failed",
			slog.String("purpose", purpose),
			slog.String("err", err.Error()),
		)
		return "", "⚠️ Couldn't store that photo, continuing without it.\n\n"
	}
	return key, ""
}

// HandleUserButton toggles one participant or bulk-selects everyone, then
// re-renders the selection keyboard in place.
func (f *Flow) HandleUserButton(ctx context.Context, userID int64, payload string) (*ui.Outcome, error) {
	if payload == SelectAllPayload {
		return f.selectAll(ctx, userID)
	}
	id, perr := strconv.ParseInt(payload, 10, 64)
	if perr != nil {
		return &ui.Outcome{}, nil
	}
	s, err := f.update(ctx, userID, session.StepUsers, func(s *session.ExpenseSession) {
		s.ToggleParticipant(id)
	})
	if err != nil {
		return guard(err)
	}
	out, err := f.usersOutcome(ctx, userID, s, "", true)
	if err != nil {
		return nil, err
	}
	out.Alert = fmt.Sprintf("%d user(s) selected", len(s.Participants))
	return out, nil
}

func (f *Flow) selectAll(ctx context.Context, userID int64) (*ui.Outcome, error) {
	cur, err := f.sessions.Get(ctx, userID)
	if err != nil {
		return guard(err)
	}
	if cur.Step != session.StepUsers {
		return &ui.Outcome{}, nil
	}
	members, err := f.store.GroupMembers(ctx, cur.GroupID)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.TelegramID)
	}
	s, uerr := f.update(ctx, userID, session.StepUsers, func(s *session.ExpenseSession) {
		// bulk replace, not a toggle pass
		s.SetParticipants(ids)
	})
	if uerr != nil {
		return guard(uerr)
	}
	out, err := f.usersOutcome(ctx, userID, s, "", true)
	if err != nil {
		return nil, err
	}
	out.Alert = fmt.Sprintf("All %d user(s) selected", len(s.Participants))
	return out, nil
}

// UsersDone closes participant selection and moves on to the payer question.
// Continuing with nothing selected is rejected with a modal alert.
func (f *Flow) UsersDone(ctx context.Context, userID int64) (*ui.Outcome, error) {
	s, err := f.sessions.Update(ctx, userID, func(s *session.ExpenseSession) error {
		if s.Step != session.StepUsers {
			return errStepMoved
		}
		if len(s.Participants) == 0 {
			return errNoParticipants
		}
		s.Step = session.StepPaidBy
		return nil
	})
	if errors.Is(err, errNoParticipants) {
		return &ui.Outcome{Alert: "Please select at least one user", ShowAlert: true}, nil
	}
	if err != nil {
		return guard(err)
	}
	return f.paidByOutcome(ctx, userID, s)
}

// SetPaidBy records the payer and asks for the split mode. The payer must be
// a registered group member; any member qualifies, selected or not.
func (f *Flow) SetPaidBy(ctx context.Context, userID, payerID int64) (*ui.Outcome, error) {
	cur, err := f.sessions.Get(ctx, userID)
	if err != nil {
		return guard(err)
	}
	if cur.Step != session.StepPaidBy {
		return &ui.Outcome{}, nil
	}
	members, err := f.store.GroupMembers(ctx, cur.GroupID)
	if err != nil {
		return nil, err
	}
	var payer *storage.User
	for i := range members {
		if members[i].TelegramID == payerID {
			payer = &members[i]
			break
		}
	}
	if payer == nil {
		return &ui.Outcome{Alert: "That user is not registered in this group", ShowAlert: true}, nil
	}
	if _, err := f.update(ctx, userID, session.StepPaidBy, func(s *session.ExpenseSession) {
		s.PaidBy = payerID
		s.Step = session.StepSplitType
	}); err != nil {
		return guard(err)
	}
	return &ui.Outcome{Edit: &ui.Prompt{
		Text: fmt.Sprintf("Paid by: %s\n\nStep 8: How should the bill be split?", payer.DisplayName()),
		Buttons: [][]ui.Button{
			ui.Row(ui.Button{Label: "⚖️ Split Equally", Action: ActionSplit, Data: session.SplitEqual}),
			ui.Row(ui.Button{Label: "✏️ Custom Split", Action: ActionSplit, Data: session.SplitCustom}),
			cancelRow(),
		},
	}}, nil
}

// SetSplitType records the split mode. Equal commits immediately; custom
// opens share entry with a clean slate.
func (f *Flow) SetSplitType(ctx context.Context, userID int64, kind string) (*ui.Outcome, error) {
	if kind != session.SplitEqual && kind != session.SplitCustom {
		return &ui.Outcome{}, nil
	}
	s, err := f.update(ctx, userID, session.StepSplitType, func(s *session.ExpenseSession) {
		s.SplitType = kind
		if kind == session.SplitCustom {
			s.Step = session.StepCustomSplits
			s.CustomSplits = make(map[int64]decimal.Decimal)
		}
	})
	if err != nil {
		return guard(err)
	}
	if kind == session.SplitEqual {
		return f.commit(ctx, userID, s)
	}
	return f.customSplitsOutcome(ctx, s)
}

// commit persists the expense and its splits atomically, tears down the
// session, and reports the result. A persistence failure keeps the session so
// the user can retry the final step.
func (f *Flow) commit(ctx context.Context, userID int64, s session.ExpenseSession) (*ui.Outcome, error) {
	splits, perHead := buildSplits(s)

	exp, err := f.store.CreateExpenseWithSplits(ctx, storage.ExpenseInput{
		GroupID:       s.GroupID,
		CreatedBy:     userID,
		PaidBy:        s.PaidBy,
		Amount:        s.Amount,
		Description:   s.Description,
		Location:      s.Location,
		PhotoKey:      s.PhotoKey,
		VendorSlipKey: s.VendorSlipKey,
		SplitType:     s.SplitType,
	}, splits)
	if err != nil {
		logger.Error(ctx, component, "expense.commit_failed",
			slog.Int64("group_id", s.GroupID),
			slog.String("err", err.Error()),
		)
		return ui.Text("❌ Failed to save the expense. Please try again."), nil
	}
	if err := f.sessions.Delete(ctx, userID); err != nil {
		logger.Warn(ctx, component, "expense.session.delete_failed", slog.String("err", err.Error()))
	}
	logger.Info(ctx, component, "expense.created",
		slog.Int64("group_id", s.GroupID),
		slog.Int64("expense_id", exp.ID),
		slog.Int64("number", exp.Number),
		slog.String("split_type", s.SplitType),
		slog.Int("splits", len(splits)),
	)

	text := f.confirmation(ctx, s, exp, splits, perHead)
	return &ui.Outcome{
		Prompt:  &ui.Prompt{Text: text},
		Notices: []ui.Notice{{ChatID: s.GroupID, Text: text}},
		Done:    true,
	}, nil
}

// buildSplits materializes the owed shares. Equal mode divides the total by
// every selected participant, payer included; the payer's own share is never
// persisted.
func buildSplits(s session.ExpenseSession) ([]storage.SplitInput, decimal.Decimal) {
	var perHead decimal.Decimal
	debtors := s.NonPayerParticipants()
	splits := make([]storage.SplitInput, 0, len(debtors))
	if s.SplitType == session.SplitEqual {
		perHead = money.PerHead(s.Amount, len(s.Participants))
		for _, id := range debtors {
			splits = append(splits, storage.SplitInput{UserID: id, Amount: perHead})
		}
		return splits, perHead
	}
	for _, id := range debtors {
		splits = append(splits, storage.SplitInput{UserID: id, Amount: s.CustomSplits[id]})
	}
	return splits, perHead
}

func (f *Flow) confirmation(ctx context.Context, s session.ExpenseSession, exp storage.Expense, splits []storage.SplitInput, perHead decimal.Decimal) string {
	currency := "$"
	if settings, err := f.store.GroupSettings(ctx, s.GroupID); err == nil && settings.Currency != "" {
		currency = settings.Currency
	}
	ids := append(append([]int64{}, s.Participants...), s.PaidBy)
	users, err := f.store.GetUsers(ctx, ids)
	if err != nil {
		logger.Warn(ctx, component, "expense.names.load_failed", slog.String("err", err.Error()))
		users = map[int64]storage.User{}
	}
	nameOf := func(id int64) string {
		if u, ok := users[id]; ok {
			return u.DisplayName()
		}
		return "User " + strconv.FormatInt(id, 10)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "✅ Expense #%d added successfully!\n\n", exp.Number)
	fmt.Fprintf(&b, "Amount: %s\n", money.Format(currency, s.Amount))
	if s.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", s.Description)
	}
	if s.Location != "" {
		fmt.Fprintf(&b, "Location: %s\n", s.Location)
	}
	fmt.Fprintf(&b, "Paid by: %s\n", nameOf(s.PaidBy))
	if s.SplitType == session.SplitEqual {
		fmt.Fprintf(&b, "Split equally among %d user(s): %s each\n",
			len(s.Participants), money.Format(currency, perHead))
	} else {
		b.WriteString("Custom split:\n")
	}
	b.WriteString("\n")
	for _, sp := range splits {
		fmt.Fprintf(&b, "%s owes %s %s\n", nameOf(sp.UserID), nameOf(s.PaidBy), money.Format(currency, sp.Amount))
	}
	return strings.TrimRight(b.String(), "\n")
}

// stepPrompt renders the prompt for the step the session just advanced to.
func (f *Flow) stepPrompt(ctx context.Context, userID int64, s session.ExpenseSession, prefix string) (*ui.Outcome, error) {
	switch s.Step {
	case session.StepLocation:
		return prompt(prefix+"Step 3: Where was this expense made? (location)", skipCancelRows("location")), nil
	case session.StepPhoto:
		return prompt(prefix+"Step 4: Send a photo of the bill or receipt (optional).", skipCancelRows("photo")), nil
	case session.StepVendorSlip:
		return prompt(prefix+"Step 5: Send a photo of the vendor payment slip (optional).", skipCancelRows("vendor_slip")), nil
	case session.StepUsers:
		return f.usersOutcome(ctx, userID, s, prefix, false)
	default:
		return &ui.Outcome{}, nil
	}
}

// usersOutcome renders the participant selection keyboard. With no registered
// members there is nothing to split, so the flow ends.
func (f *Flow) usersOutcome(ctx context.Context, userID int64, s session.ExpenseSession, prefix string, edit bool) (*ui.Outcome, error) {
	members, err := f.store.GroupMembers(ctx, s.GroupID)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		if derr := f.sessions.Delete(ctx, userID); derr != nil {
			logger.Warn(ctx, component, "expense.session.delete_failed", slog.String("err", derr.Error()))
		}
		return &ui.Outcome{
			Prompt: &ui.Prompt{Text: prefix + "No registered users in this group yet. Ask everyone to /register first."},
			Done:   true,
		}, nil
	}

	var rows [][]ui.Button
	var row []ui.Button
	for _, m := range members {
		label := m.DisplayName()
		if s.HasParticipant(m.TelegramID) {
			label = "✅ " + label
		}
		row = append(row, ui.Button{Label: label, Action: ActionUser, Data: strconv.FormatInt(m.TelegramID, 10)})
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	rows = append(rows,
		ui.Row(
			ui.Button{Label: "👥 Select All", Action: ActionUser, Data: SelectAllPayload},
			ui.Button{Label: "Continue ➡️", Action: ActionUsersDone},
		),
		cancelRow(),
	)

	p := &ui.Prompt{
		Text: fmt.Sprintf("%sStep 6: Who is splitting this expense?\nSelected: %d user(s)",
			prefix, len(s.Participants)),
		Buttons: rows,
	}
	if edit {
		return &ui.Outcome{Edit: p}, nil
	}
	return &ui.Outcome{Prompt: p}, nil
}

func (f *Flow) paidByOutcome(ctx context.Context, userID int64, s session.ExpenseSession) (*ui.Outcome, error) {
	members, err := f.store.GroupMembers(ctx, s.GroupID)
	if err != nil {
		return nil, err
	}
	var rows [][]ui.Button
	var row []ui.Button
	for _, m := range members {
		label := m.DisplayName()
		if m.TelegramID == userID {
			label += " (You)"
		}
		row = append(row, ui.Button{Label: label, Action: ActionPaidBy, Data: strconv.FormatInt(m.TelegramID, 10)})
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	rows = append(rows, cancelRow())
	return &ui.Outcome{Edit: &ui.Prompt{
		Text: fmt.Sprintf("Selected %d user(s).\n\nStep 7: Who paid the full amount?",
			len(s.Participants)),
		Buttons: rows,
	}}, nil
}

func (f *Flow) customSplitsOutcome(ctx context.Context, s session.ExpenseSession) (*ui.Outcome, error) {
	debtors := s.NonPayerParticipants()
	users, err := f.store.GetUsers(ctx, debtors)
	if err != nil {
		logger.Warn(ctx, component, "expense.names.load_failed", slog.String("err", err.Error()))
		users = map[int64]storage.User{}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "✏️ Custom split.\nTotal: %s\n\nSend one line per person in the format: user_id amount\n\nParticipants:\n", s.Amount.StringFixed(2))
	for _, id := range debtors {
		name := "User " + strconv.FormatInt(id, 10)
		if u, ok := users[id]; ok {
			name = u.DisplayName()
		}
		fmt.Fprintf(&b, "• %s (%d)\n", name, id)
	}
	return &ui.Outcome{Edit: &ui.Prompt{
		Text:    strings.TrimRight(b.String(), "\n"),
		Buttons: [][]ui.Button{cancelRow()},
	}}, nil
}

// update runs a step-guarded session mutation: the event only applies if the
// session is still on the step it was aimed at.
func (f *Flow) update(ctx context.Context, userID int64, want session.ExpenseStep, mut func(*session.ExpenseSession)) (session.ExpenseSession, error) {
	return f.sessions.Update(ctx, userID, func(s *session.ExpenseSession) error {
		if s.Step != want {
			return errStepMoved
		}
		mut(s)
		return nil
	})
}

// guard maps the shared session error cases: a store miss is the expired
// signal, a lost step race is a silent drop, anything else propagates.
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

func parseSplitLine(text string) (int64, decimal.Decimal, error) {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) != 2 {
		return 0, decimal.Decimal{}, errSplitLineFormat
	}
	id, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return 0, decimal.Decimal{}, errSplitLineValues
	}
	amount, err := money.Parse(fields[1])
	if err != nil {
		return 0, decimal.Decimal{}, errSplitLineValues
	}
	return id, amount, nil
}

func prompt(text string, buttons [][]ui.Button) *ui.Outcome {
	return &ui.Outcome{Prompt: &ui.Prompt{Text: text, Buttons: buttons}}
}

func cancelRow() []ui.Button {
	return ui.Row(ui.Button{Label: "❌ Cancel", Action: ActionCancel, Data: "cancel"})
}

func skipCancelRows(field string) [][]ui.Button {
	return [][]ui.Button{
		ui.Row(ui.Button{Label: "⏭ Skip", Action: ActionSkip, Data: field}),
		cancelRow(),
	}
}
