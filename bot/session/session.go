package session

import (
	"time"

	"github.com/shopspring/decimal"
)

// TTLs per flow. Every accepted input refreshes the deadline; expiry is
// enforced by the store, never by an application timer.
const (
	ExpenseTTL = 600 * time.Second
	PaymentTTL = 300 * time.Second
	AccountTTL = 600 * time.Second
)

// ExpenseStep is the current position in the expense creation flow.
type ExpenseStep string

const (
	StepAmount       ExpenseStep = "amount"
	StepDescription  ExpenseStep = "description"
	StepLocation     ExpenseStep = "location"
	StepPhoto        ExpenseStep = "photo"
	StepVendorSlip   ExpenseStep = "vendor_slip"
	StepUsers        ExpenseStep = "users"
	StepPaidBy       ExpenseStep = "paid_by"
	StepSplitType    ExpenseStep = "split_type"
	StepCustomSplits ExpenseStep = "custom_splits"
)

// Split type tags.
const (
	SplitEqual  = "equal"
	SplitCustom = "custom"
)

// ExpenseSession accumulates expense flow progress between turns. The group is
// captured at flow start and never re-derived from later events, which may
// arrive from a different chat (e.g. a private DM).
type ExpenseSession struct {
	Step          ExpenseStep                `json:"step"`
	GroupID       int64                      `json:"group_id"`
	Amount        decimal.Decimal            `json:"amount"`
	Description   string                     `json:"description,omitempty"`
	Location      string                     `json:"location,omitempty"`
	PhotoKey      string                     `json:"photo_key,omitempty"`
	VendorSlipKey string                     `json:"vendor_slip_key,omitempty"`
	Participants  []int64                    `json:"participants,omitempty"`
	PaidBy        int64                      `json:"paid_by,omitempty"`
	SplitType     string                     `json:"split_type,omitempty"`
	CustomSplits  map[int64]decimal.Decimal  `json:"custom_splits,omitempty"`
}

// HasParticipant reports whether id is in the selection set.
func (s *ExpenseSession) HasParticipant(id int64) bool {
	for _, p := range s.Participants {
		if p == id {
			return true
		}
	}
	return false
}

// ToggleParticipant adds id if absent, removes it if present. Toggle is its
// own inverse.
func (s *ExpenseSession) ToggleParticipant(id int64) {
	for i, p := range s.Participants {
		if p == id {
			s.Participants = append(s.Participants[:i], s.Participants[i+1:]...)
			return
		}
	}
	s.Participants = append(s.Participants, id)
}

// SetParticipants replaces the selection set with the given ids, dropping
// duplicates ("select all" is a bulk replace, not a toggle).
func (s *ExpenseSession) SetParticipants(ids []int64) {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	s.Participants = out
}

// NonPayerParticipants returns the selection set minus the payer.
func (s *ExpenseSession) NonPayerParticipants() []int64 {
	out := make([]int64, 0, len(s.Participants))
	for _, p := range s.Participants {
		if p != s.PaidBy {
			out = append(out, p)
		}
	}
	return out
}

// MissingCustomSplits returns the non-payer participants with no custom-split
// entry yet. Completion of the custom-split protocol is defined as this list
// being empty, not by any explicit "done" signal.
func (s *ExpenseSession) MissingCustomSplits() []int64 {
	var missing []int64
	for _, p := range s.NonPayerParticipants() {
		if _, ok := s.CustomSplits[p]; !ok {
			missing = append(missing, p)
		}
	}
	return missing
}

// CustomSplitSum totals the entered custom splits for non-payer participants.
// An entry recorded for the payer (allowed by last-write-wins entry, excluded
// at commit) does not count toward the sum.
func (s *ExpenseSession) CustomSplitSum() decimal.Decimal {
	sum := decimal.Zero
	for _, p := range s.NonPayerParticipants() {
		if amt, ok := s.CustomSplits[p]; ok {
			sum = sum.Add(amt)
		}
	}
	return sum
}

// PaymentStep is the current position in the payment confirmation flow.
type PaymentStep string

const (
	StepConfirm      PaymentStep = "confirm"
	StepProofPhoto   PaymentStep = "photo"
)

// PaymentSession tracks one in-progress debt settlement. The target split is
// re-validated against the database at confirm and commit time; nothing here
// is trusted beyond routing.
type PaymentSession struct {
	Step     PaymentStep     `json:"step"`
	SplitID  int64           `json:"split_id"`
	GroupID  int64           `json:"group_id"`
	PayeeID  int64           `json:"payee_id"`
	Amount   decimal.Decimal `json:"amount"`
	ProofKey string          `json:"proof_key,omitempty"`
}

// AccountStep is the current position in the account-details flow.
type AccountStep string

const (
	StepAccountType AccountStep = "type"
	StepAccountInfo AccountStep = "info"
)

// AccountSession tracks the two-step account-details entry flow.
type AccountSession struct {
	Step        AccountStep `json:"step"`
	AccountType string      `json:"account_type,omitempty"`
}
