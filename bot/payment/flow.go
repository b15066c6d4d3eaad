// Package payment implements the debt settlement flow: pick an unpaid split,
// review the payee's receiving account, confirm, attach an optional proof
// photo, and mark the split paid exactly once.
package payment

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

const component = "flow.payment"

// Callback action keys for the flow's inline keyboards.
const (
	ActionPay     = "pay"
	ActionConfirm = "confirm_pay"
	ActionSkip    = "pay_skip"
	ActionCancel  = "cancel_pay"
)

// listLimit caps how many unpaid splits /pay offers at once.
const listLimit = 10

// ErrSessionExpired reports that no live session backs the event.
var ErrSessionExpired = errors.New("payment: session expired")

var errStepMoved = errors.New("payment: step moved")

// Storage is the slice of the database layer the flow needs. The target split
// is re-validated against it at confirm and at commit; the session is only
// routing state.
type Storage interface {
	UnpaidSplitsForUser(ctx context.Context, userID, groupID int64) ([]storage.SplitDetail, error)
	GetSplitDetail(ctx context.Context, splitID int64) (storage.SplitDetail, error)
	ActiveAccountDetail(ctx context.Context, userID int64) (storage.AccountDetail, error)
	GetUsers(ctx context.Context, telegramIDs []int64) (map[int64]storage.User, error)
	GroupSettings(ctx context.Context, groupID int64) (storage.GroupSettings, error)
	SettleSplit(ctx context.Context, splitID, paidBy, paidTo int64, amount decimal.Decimal, proofKey string) (storage.Payment, error)
}

// PhotoFetch downloads the photo bytes of the triggering message.
type PhotoFetch func(ctx context.Context) (data []byte, contentType string, err error)

// Flow drives payment confirmation.
type Flow struct {
	sessions *session.Repo[session.PaymentSession]
	store    Storage
	blobs    blob.Store
}

// New builds a Flow on the given storage, blob store, and session store.
func New(store Storage, blobs blob.Store, kv session.Store) *Flow {
	return &Flow{
		sessions: session.NewRepo[session.PaymentSession](kv, session.KindPayment, session.PaymentTTL),
		store:    store,
		blobs:    blobs,
	}
}

// Active reports whether userID has a live payment session.
func (f *Flow) Active(ctx context.Context, userID int64) bool {
	return f.sessions.Exists(ctx, userID)
}

// ListUnpaid renders the caller's unpaid debts as pay buttons. groupID zero
// lists across all groups.
func (f *Flow) ListUnpaid(ctx context.Context, userID, groupID int64) (*ui.Outcome, error) {
	splits, err := f.store.UnpaidSplitsForUser(ctx, userID, groupID)
	if err != nil {
		return nil, err
	}
	if len(splits) == 0 {
		return ui.Text("🎉 You have no unpaid debts!"), nil
	}
	if len(splits) > listLimit {
		splits = splits[:listLimit]
	}

	payees := make([]int64, 0, len(splits))
	for _, d := range splits {
		payees = append(payees, d.PaidBy)
	}
	users, err := f.store.GetUsers(ctx, payees)
	if err != nil {
		logger.Warn(ctx, component, "pay.names.load_failed", slog.String("err", err.Error()))
		users = map[int64]storage.User{}
	}

	currencies := make(map[int64]string)
	rows := make([][]ui.Button, 0, len(splits))
	for _, d := range splits {
		cur, ok := currencies[d.GroupID]
		if !ok {
			cur = "$"
			if settings, err := f.store.GroupSettings(ctx, d.GroupID); err == nil && settings.Currency != "" {
				cur = settings.Currency
			}
			currencies[d.GroupID] = cur
		}
		payee := "User " + strconv.FormatInt(d.PaidBy, 10)
		if u, ok := users[d.PaidBy]; ok {
			payee = u.DisplayName()
		}
		rows = append(rows, ui.Row(ui.Button{
			Label:  fmt.Sprintf("#%d %s: %s", d.Number, payee, money.Format(cur, d.Amount)),
			Action: ActionPay,
			Data:   strconv.FormatInt(d.ID, 10),
		}))
	}
	return &ui.Outcome{Prompt: &ui.Prompt{
		Text:    "💸 Select a debt to pay:",
		Buttons: rows,
	}}, nil
}

// Begin validates the chosen split and opens the confirmation step. The split
// must still exist, be unpaid, and belong to the caller; the payee must have
// receiving account details on file.
func (f *Flow) Begin(ctx context.Context, userID, splitID int64) (*ui.Outcome, error) {
	d, err := f.store.GetSplitDetail(ctx, splitID)
	if errors.Is(err, storage.ErrNotFound) {
		return unavailableAlert(), nil
	}
	if err != nil {
		return nil, err
	}
	if d.Paid || d.UserID != userID {
		return unavailableAlert(), nil
	}

	account, err := f.store.ActiveAccountDetail(ctx, d.PaidBy)
	if errors.Is(err, storage.ErrNotFound) {
		return &ui.Outcome{
			Alert:     "The payee hasn't set up account details yet. Ask them to run /setaccount.",
			ShowAlert: true,
		}, nil
	}
	if err != nil {
		return nil, err
	}

	s := session.PaymentSession{
		Step:    session.StepConfirm,
		SplitID: d.ID,
		GroupID: d.GroupID,
		PayeeID: d.PaidBy,
		Amount:  d.Amount,
	}
	if err := f.sessions.Start(ctx, userID, s); err != nil {
		return nil, err
	}
	logger.Info(ctx, component, "pay.start",
		slog.Int64("split_id", d.ID),
		slog.Int64("payee_id", d.PaidBy),
	)

	var b strings.Builder
	fmt.Fprintf(&b, "💸 Pay %s %s\n", f.payeeName(ctx, d.PaidBy), f.formatAmount(ctx, d.GroupID, d.Amount))
	fmt.Fprintf(&b, "For: Expense #%d", d.Number)
	if d.Description.Valid && d.Description.String != "" {
		fmt.Fprintf(&b, " (%s)", d.Description.String)
	}
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Account type: %s\nAccount info: %s\n\nConfirm this payment?", account.AccountType, account.AccountInfo)

	return &ui.Outcome{Edit: &ui.Prompt{
		Text: b.String(),
		Buttons: [][]ui.Button{
			ui.Row(
				ui.Button{Label: "✅ Confirm", Action: ActionConfirm},
				ui.Button{Label: "❌ Cancel", Action: ActionCancel},
			),
		},
	}}, nil
}

// Confirm re-validates the split and asks for an optional proof photo. The
// debt can vanish between Begin and Confirm (someone else's device, a stale
// keyboard), so the check runs again.
func (f *Flow) Confirm(ctx context.Context, userID int64) (*ui.Outcome, error) {
	cur, err := f.sessions.Get(ctx, userID)
	if err != nil {
		return guard(err)
	}
	if cur.Step != session.StepConfirm {
		return &ui.Outcome{}, nil
	}

	d, err := f.store.GetSplitDetail(ctx, cur.SplitID)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && (d.Paid || d.UserID != userID)) {
		return f.abortUnavailable(ctx, userID)
	}
	if err != nil {
		return nil, err
	}

	if _, err := f.update(ctx, userID, session.StepConfirm, func(s *session.PaymentSession) {
		s.Step = session.StepProofPhoto
	}); err != nil {
		return guard(err)
	}
	return &ui.Outcome{Edit: &ui.Prompt{
		Text: "📸 Send a photo of the payment proof (optional).",
		Buttons: [][]ui.Button{
			ui.Row(
				ui.Button{Label: "⏭ Skip", Action: ActionSkip},
				ui.Button{Label: "❌ Cancel", Action: ActionCancel},
			),
		},
	}}, nil
}

// HandlePhoto stores the proof and settles. Upload trouble degrades to a skip
// with a warning; the settlement still happens.
func (f *Flow) HandlePhoto(ctx context.Context, userID int64, fetch PhotoFetch) (*ui.Outcome, error) {
	s, err := f.sessions.Get(ctx, userID)
	if err != nil {
		return guard(err)
	}
	if s.Step != session.StepProofPhoto {
		return &ui.Outcome{}, nil
	}

	var key, warn string
	data, contentType, ferr := fetch(ctx)
	if ferr != nil {
		logger.Warn(ctx, component, "pay.proof.fetch_failed", slog.String("err", ferr.Error()))
		warn = "⚠️ Couldn't download that photo, recording the payment without it.\n\n"
	} else {
		key = blob.PhotoKey("payment-proofs", userID)
		if perr := f.blobs.Put(ctx, key, data, contentType); perr != nil {
			logger.Warn(ctx, component, "pay.proof.store_failed", slog.String("err", perr.Error()))
			key = ""
			warn = "⚠️ Couldn't store that photo, recording the payment without it.\n\n"
		}
	}
	return f.settle(ctx, userID, s, key, warn)
}

// SkipPhoto settles without proof.
func (f *Flow) SkipPhoto(ctx context.Context, userID int64) (*ui.Outcome, error) {
	s, err := f.sessions.Get(ctx, userID)
	if err != nil {
		return guard(err)
	}
	if s.Step != session.StepProofPhoto {
		return &ui.Outcome{}, nil
	}
	return f.settle(ctx, userID, s, "", "")
}

// Cancel tears down the session.
func (f *Flow) Cancel(ctx context.Context, userID int64) (*ui.Outcome, error) {
	if err := f.sessions.Delete(ctx, userID); err != nil {
		return nil, err
	}
	logger.Info(ctx, component, "pay.cancel")
	return &ui.Outcome{
		Edit:  &ui.Prompt{Text: "❌ Payment cancelled."},
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
	logger.Info(ctx, component, "pay.abort")
	return true, nil
}

// settle marks the split paid. The guarded update inside SettleSplit is the
// last line of defense: if the split was settled elsewhere in the meantime no
// second payment row is written.
func (f *Flow) settle(ctx context.Context, userID int64, s session.PaymentSession, proofKey, warn string) (*ui.Outcome, error) {
	_, err := f.store.SettleSplit(ctx, s.SplitID, userID, s.PayeeID, s.Amount, proofKey)
	if errors.Is(err, storage.ErrSplitUnavailable) {
		return f.abortUnavailable(ctx, userID)
	}
	if err != nil {
		logger.Error(ctx, component, "pay.settle_failed",
			slog.Int64("split_id", s.SplitID),
			slog.String("err", err.Error()),
		)
		// session stays on the photo step so the user can retry
		return ui.Text("❌ Failed to record the payment. Please try again."), nil
	}
	if derr := f.sessions.Delete(ctx, userID); derr != nil {
		logger.Warn(ctx, component, "pay.session.delete_failed", slog.String("err", derr.Error()))
	}
	logger.Info(ctx, component, "pay.settled",
		slog.Int64("split_id", s.SplitID),
		slog.Int64("payee_id", s.PayeeID),
		slog.Bool("with_proof", proofKey != ""),
	)

	amount := f.formatAmount(ctx, s.GroupID, s.Amount)
	payee := f.payeeName(ctx, s.PayeeID)
	payer := f.payeeName(ctx, userID)

	return &ui.Outcome{
		Prompt: &ui.Prompt{Text: fmt.Sprintf("%s✅ Payment of %s to %s recorded!", warn, amount, payee)},
		Notices: []ui.Notice{{
			ChatID: s.PayeeID,
			Text:   fmt.Sprintf("💰 %s paid you %s.", payer, amount),
		}},
		Done: true,
	}, nil
}

// abortUnavailable ends the flow when the target split no longer qualifies.
func (f *Flow) abortUnavailable(ctx context.Context, userID int64) (*ui.Outcome, error) {
	if err := f.sessions.Delete(ctx, userID); err != nil && !errors.Is(err, session.ErrNotFound) {
		logger.Warn(ctx, component, "pay.session.delete_failed", slog.String("err", err.Error()))
	}
	return &ui.Outcome{
		Prompt: &ui.Prompt{Text: "This debt is no longer available. It may have been paid already."},
		Done:   true,
	}, nil
}

func (f *Flow) payeeName(ctx context.Context, id int64) string {
	users, err := f.store.GetUsers(ctx, []int64{id})
	if err == nil {
		if u, ok := users[id]; ok {
			return u.DisplayName()
		}
	}
	return "User " + strconv.FormatInt(id, 10)
}

func (f *Flow) formatAmount(ctx context.Context, groupID int64, amount decimal.Decimal) string {
	currency := "$"
	if settings, err := f.store.GroupSettings(ctx, groupID); err == nil && settings.Currency != "" {
		currency = settings.Currency
	}
	return money.Format(currency, amount)
}

func (f *Flow) update(ctx context.Context, userID int64, want session.PaymentStep, mut func(*session.PaymentSession)) (session.PaymentSession, error) {
	return f.sessions.Update(ctx, userID, func(s *session.PaymentSession) error {
		if s.Step != want {
			return errStepMoved
		}
		mut(s)
		return nil
	})
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

func unavailableAlert() *ui.Outcome {
	return &ui.Outcome{
		Alert:     "This debt is no longer available. It may have been paid already.",
		ShowAlert: true,
	}
}
