package pos

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-pos/internal/catalog"
	"github.com/noah-isme/backend-pos/internal/pricing"
)

// Lookup resolves a scanned code to a catalog item. Codes match the
// product id or the exact SKU.
type Lookup interface {
	FindByCode(ctx context.Context, code string) (catalog.Item, error)
}

// Recorder persists a settled sale. Completion treats recording as
// best effort: a recorder failure is logged but never blocks the
// register, and the session resets regardless.
type Recorder interface {
	RecordSale(ctx context.Context, sale Sale) error
}

// StockPolicy decides whether a line may grow to the requested
// quantity. The default (nil) policy allows everything, so carts may
// exceed tracked stock. Wiring a strict policy here is the single
// point to change that.
type StockPolicy func(item catalog.Item, requestedQty int) error

// Engine applies transaction operations to sessions. It holds no
// session state itself and is safe for concurrent use as long as each
// session is driven by one goroutine at a time, which Registry.With
// guarantees.
type Engine struct {
	Catalog  Lookup
	Recorder Recorder
	TaxBps   int
	Stock    StockPolicy
	Now      func() time.Time
	NewTxnID func() string
	Log      zerolog.Logger
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) txnID() string {
	if e.NewTxnID != nil {
		return e.NewTxnID()
	}
	return NewTransactionID(e.now())
}

// NewTransactionID builds a settlement id from the completion time
// plus a random suffix so concurrent registers cannot collide.
func NewTransactionID(at time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("TXN%d-%s", at.UnixMilli(), suffix)
}

// AddItem resolves code and adds one unit to the session. Scanning a
// product already in the cart increments its line instead of creating
// a duplicate. The line's unit price is snapshotted on first add.
func (e *Engine) AddItem(ctx context.Context, s *Session, code string) (LineItem, error) {
	item, err := e.Catalog.FindByCode(ctx, code)
	if err != nil {
		return LineItem{}, fmt.Errorf("%q: %w", code, ErrItemNotFound)
	}

	qty := 1
	if i := s.findLine(item.ID); i >= 0 {
		qty = s.Items[i].Qty + 1
	}
	if e.Stock != nil {
		if err := e.Stock(item, qty); err != nil {
			return LineItem{}, err
		}
	}

	if i := s.findLine(item.ID); i >= 0 {
		s.Items[i].Qty = qty
		s.UpdatedAt = e.now()
		return s.Items[i], nil
	}
	line := LineItem{
		ProductID: item.ID,
		SKU:       item.SKU,
		Name:      item.Name,
		UnitPrice: item.Price,
		Qty:       1,
	}
	s.Items = append(s.Items, line)
	s.UpdatedAt = e.now()
	return line, nil
}

// SetQuantity replaces a line's quantity. Zero or negative removes the
// line. Unknown product ids are a no-op, matching removal semantics.
func (e *Engine) SetQuantity(ctx context.Context, s *Session, productID string, qty int) error {
	i := s.findLine(productID)
	if i < 0 {
		return nil
	}
	if qty <= 0 {
		s.Items = append(s.Items[:i], s.Items[i+1:]...)
		s.UpdatedAt = e.now()
		return nil
	}
	if e.Stock != nil && qty > s.Items[i].Qty {
		item, err := e.Catalog.FindByCode(ctx, productID)
		if err != nil {
			return fmt.Errorf("%q: %w", productID, ErrItemNotFound)
		}
		if err := e.Stock(item, qty); err != nil {
			return err
		}
	}
	s.Items[i].Qty = qty
	s.UpdatedAt = e.now()
	return nil
}

// RemoveItem deletes a line regardless of quantity. Removing an absent
// product is a no-op.
func (e *Engine) RemoveItem(s *Session, productID string) {
	if i := s.findLine(productID); i >= 0 {
		s.Items = append(s.Items[:i], s.Items[i+1:]...)
		s.UpdatedAt = e.now()
	}
}

// SetDiscount stores the discount scalar. Zero clears any discount.
// The scalar keeps the single-value encoding: values at or above 1.0
// are an absolute amount, values strictly between 0 and 1 a fraction
// of the subtotal.
func (e *Engine) SetDiscount(s *Session, value pricing.Scalar) {
	s.Discount = value
	s.UpdatedAt = e.now()
}

// SetPaymentMethod selects cash or card. Switching methods keeps any
// previously entered received amount; it simply stops mattering for
// card since card change due is always zero.
func (e *Engine) SetPaymentMethod(s *Session, m Method) error {
	if m != MethodCash && m != MethodCard {
		return fmt.Errorf("%q: %w", m, ErrUnknownMethod)
	}
	s.Method = m
	s.UpdatedAt = e.now()
	return nil
}

// SetAmountReceived records the tendered cash amount. No validation
// happens here; sufficiency is checked only at completion.
func (e *Engine) SetAmountReceived(s *Session, amount pricing.Money) {
	s.AmountReceived = amount
	s.UpdatedAt = e.now()
}

// Totals computes the session's current pricing summary.
func (e *Engine) Totals(s *Session) pricing.Summary {
	items := make([]pricing.Item, len(s.Items))
	for i, li := range s.Items {
		items[i] = pricing.Item{Qty: li.Qty, UnitPrice: li.UnitPrice}
	}
	return pricing.Compute(items, s.Discount, e.TaxBps)
}

// ChangeDue is the cash to hand back: received minus total, floored at
// zero. Card payments always owe zero change.
func (e *Engine) ChangeDue(s *Session) pricing.Money {
	if s.Method != MethodCash {
		return 0
	}
	due := s.AmountReceived - e.Totals(s).Total
	if due < 0 {
		return 0
	}
	return due
}

// CompleteSale validates and settles the transaction. On success the
// sale is handed to the recorder and the session resets to empty. Any
// validation failure leaves the session exactly as it was.
func (e *Engine) CompleteSale(ctx context.Context, s *Session) (Sale, error) {
	if s.Empty() {
		return Sale{}, ErrEmptyCart
	}
	if s.Method == "" {
		return Sale{}, ErrPaymentMethodRequired
	}
	totals := e.Totals(s)
	if s.Method == MethodCash && s.AmountReceived < totals.Total {
		return Sale{}, ErrInsufficientPayment
	}

	now := e.now()
	sale := Sale{
		TransactionID:  e.txnID(),
		SessionID:      s.ID,
		Items:          append([]LineItem(nil), s.Items...),
		Totals:         totals,
		Method:         s.Method,
		AmountReceived: s.AmountReceived,
		ChangeDue:      e.ChangeDue(s),
		CompletedAt:    now,
	}

	if e.Recorder != nil {
		if err := e.Recorder.RecordSale(ctx, sale); err != nil {
			e.Log.Error().Err(err).
				Str("transaction_id", sale.TransactionID).
				Msg("record sale failed, register continues")
		}
	}

	s.reset(now)
	return sale, nil
}

// Cancel abandons the transaction without settling. Nothing is
// recorded or emitted; the session is simply reset.
func (e *Engine) Cancel(s *Session) {
	s.reset(e.now())
}
