package pos

import (
	"errors"
	"time"

	"github.com/noah-isme/backend-pos/internal/pricing"
)

// Method is the chosen payment method for a transaction.
type Method string

// Supported payment methods. The zero value means no method selected.
const (
	MethodCash Method = "cash"
	MethodCard Method = "card"
)

// Engine validation failures. Each aborts the attempted operation and
// leaves session state untouched so the cashier can correct and retry.
var (
	ErrItemNotFound          = errors.New("pos: item not found")
	ErrEmptyCart             = errors.New("pos: cart is empty")
	ErrPaymentMethodRequired = errors.New("pos: payment method required")
	ErrInsufficientPayment   = errors.New("pos: insufficient payment amount")
	ErrUnknownMethod         = errors.New("pos: unknown payment method")
	ErrSessionNotFound       = errors.New("pos: session not found")
)

// LineItem is one row of the in-progress transaction. UnitPrice is a
// snapshot taken when the item was first scanned; later catalog price
// edits do not reach an open cart.
type LineItem struct {
	ProductID string
	SKU       string
	Name      string
	UnitPrice pricing.Money
	Qty       int
}

// Session is the state of one open transaction at one register. It is
// an explicit value owned by the caller, not ambient UI state: every
// engine operation takes the session it mutates. Invariant: at most
// one line item per product id.
//
// Completing or cancelling a sale resets the same session to empty,
// which is the Open state of the next transaction.
type Session struct {
	ID             string
	Items          []LineItem
	Discount       pricing.Scalar
	Method         Method
	AmountReceived pricing.Money
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Empty reports whether the cart holds no line items.
func (s *Session) Empty() bool {
	return len(s.Items) == 0
}

func (s *Session) findLine(productID string) int {
	for i := range s.Items {
		if s.Items[i].ProductID == productID {
			return i
		}
	}
	return -1
}

func (s *Session) reset(now time.Time) {
	s.Items = nil
	s.Discount = 0
	s.Method = ""
	s.AmountReceived = 0
	s.UpdatedAt = now
}

// Sale is the immutable record of a settled transaction, created only
// by a successful completion.
type Sale struct {
	TransactionID  string
	SessionID      string
	Items          []LineItem
	Totals         pricing.Summary
	Method         Method
	AmountReceived pricing.Money
	ChangeDue      pricing.Money
	CompletedAt    time.Time
}
