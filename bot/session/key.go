package session

import "fmt"

// Kind identifies which flow a session belongs to. Keys are typed so expense
// and payment flows can never collide or be confused at a call site.
type Kind string

const (
	// KindExpense is the multi-step expense creation flow.
	KindExpense Kind = "expense"
	// KindPayment is the payment confirmation flow.
	KindPayment Kind = "pay"
	// KindAccount is the account-details entry flow.
	KindAccount Kind = "account"
)

// Key scopes a session to a flow kind and a user.
type Key struct {
	Kind   Kind
	UserID int64
}

// String renders the store key.
func (k Key) String() string {
	return fmt.Sprintf("%s_session:%d", k.Kind, k.UserID)
}
