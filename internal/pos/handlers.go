package pos

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-pos/internal/common"
	"github.com/noah-isme/backend-pos/internal/events"
	"github.com/noah-isme/backend-pos/internal/lock"
	"github.com/noah-isme/backend-pos/internal/obs"
	"github.com/noah-isme/backend-pos/internal/pricing"
)

// Handler exposes register sessions over HTTP. Settlement runs under a
// short Redis lock so duplicated complete requests for one session
// serialize instead of racing.
type Handler struct {
	Registry *Registry
	Engine   *Engine
	Events   *events.Bus
	Locker   lock.Locker
	LockTTL  time.Duration
}

type lineView struct {
	ProductID string `json:"productId"`
	SKU       string `json:"sku"`
	Name      string `json:"name"`
	UnitPrice string `json:"unitPrice"`
	Quantity  int    `json:"quantity"`
	LineTotal string `json:"lineTotal"`
}

type totalsView struct {
	Subtotal string `json:"subtotal"`
	Tax      string `json:"tax"`
	Discount string `json:"discount"`
	Total    string `json:"total"`
}

type sessionView struct {
	ID             string     `json:"id"`
	Items          []lineView `json:"items"`
	Totals         totalsView `json:"totals"`
	Method         string     `json:"paymentMethod,omitempty"`
	AmountReceived string     `json:"amountReceived"`
	ChangeDue      string     `json:"changeDue"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

type saleView struct {
	TransactionID  string     `json:"transactionId"`
	Items          []lineView `json:"items"`
	Totals         totalsView `json:"totals"`
	Method         string     `json:"paymentMethod"`
	AmountReceived string     `json:"amountReceived"`
	ChangeDue      string     `json:"changeDue"`
	CompletedAt    time.Time  `json:"completedAt"`
}

func viewLines(items []LineItem) []lineView {
	out := make([]lineView, len(items))
	for i, li := range items {
		out[i] = lineView{
			ProductID: li.ProductID,
			SKU:       li.SKU,
			Name:      li.Name,
			UnitPrice: pricing.Format(li.UnitPrice),
			Quantity:  li.Qty,
			LineTotal: pricing.Format(li.UnitPrice * pricing.Money(li.Qty)),
		}
	}
	return out
}

func viewTotals(t pricing.Summary) totalsView {
	return totalsView{
		Subtotal: pricing.Format(t.Subtotal),
		Tax:      pricing.Format(t.Tax),
		Discount: pricing.Format(t.Discount),
		Total:    pricing.Format(t.Total),
	}
}

func (h *Handler) view(s *Session) sessionView {
	return sessionView{
		ID:             s.ID,
		Items:          viewLines(s.Items),
		Totals:         viewTotals(h.Engine.Totals(s)),
		Method:         string(s.Method),
		AmountReceived: pricing.Format(s.AmountReceived),
		ChangeDue:      pricing.Format(h.Engine.ChangeDue(s)),
		UpdatedAt:      s.UpdatedAt,
	}
}

func viewSale(sale Sale) saleView {
	return saleView{
		TransactionID:  sale.TransactionID,
		Items:          viewLines(sale.Items),
		Totals:         viewTotals(sale.Totals),
		Method:         string(sale.Method),
		AmountReceived: pricing.Format(sale.AmountReceived),
		ChangeDue:      pricing.Format(sale.ChangeDue),
		CompletedAt:    sale.CompletedAt,
	}
}

// CreateSession opens a new empty register session.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	s := h.Registry.Create()
	obs.SessionsOpenedTotal.Inc()
	common.JSON(w, http.StatusCreated, map[string]any{"data": h.view(s)})
}

// GetSession returns the current cart, totals and payment state.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, http.StatusOK, func(s *Session) error { return nil })
}

// DeleteSession drops the session from the registry entirely.
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.Registry.Delete(chi.URLParam(r, "id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Scan adds one unit of the coded product to the cart.
func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Code string `json:"code"`
	}
	if err := common.DecodeJSON(r, &payload); err != nil {
		h.writeError(w, err)
		return
	}
	if payload.Code == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "code is required", nil)
		return
	}
	h.respond(w, r, http.StatusOK, func(s *Session) error {
		if _, err := h.Engine.AddItem(r.Context(), s, payload.Code); err != nil {
			return err
		}
		obs.ItemsScannedTotal.Inc()
		return nil
	})
}

// SetQuantity replaces a line's quantity; zero removes the line.
func (h *Handler) SetQuantity(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Quantity int `json:"quantity"`
	}
	if err := common.DecodeJSON(r, &payload); err != nil {
		h.writeError(w, err)
		return
	}
	productID := chi.URLParam(r, "productId")
	h.respond(w, r, http.StatusOK, func(s *Session) error {
		return h.Engine.SetQuantity(r.Context(), s, productID, payload.Quantity)
	})
}

// RemoveItem deletes a line from the cart.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productId")
	h.respond(w, r, http.StatusOK, func(s *Session) error {
		h.Engine.RemoveItem(s, productID)
		return nil
	})
}

// SetDiscount applies the discount value. "0" clears it.
func (h *Handler) SetDiscount(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Value string `json:"value"`
	}
	if err := common.DecodeJSON(r, &payload); err != nil {
		h.writeError(w, err)
		return
	}
	value, err := pricing.ParseScalar(payload.Value)
	if err != nil || value < 0 {
		common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION", "discount must be a non-negative number", nil)
		return
	}
	h.respond(w, r, http.StatusOK, func(s *Session) error {
		h.Engine.SetDiscount(s, value)
		return nil
	})
}

// SetPayment selects the payment method and optionally records the
// amount received in the same call.
func (h *Handler) SetPayment(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Method         string  `json:"method"`
		AmountReceived *string `json:"amountReceived"`
	}
	if err := common.DecodeJSON(r, &payload); err != nil {
		h.writeError(w, err)
		return
	}
	var amount pricing.Money
	if payload.AmountReceived != nil {
		var err error
		amount, err = pricing.Parse(*payload.AmountReceived)
		if err != nil {
			common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION", "amountReceived must be a decimal amount", nil)
			return
		}
	}
	h.respond(w, r, http.StatusOK, func(s *Session) error {
		if payload.Method != "" {
			if err := h.Engine.SetPaymentMethod(s, Method(payload.Method)); err != nil {
				return err
			}
		}
		if payload.AmountReceived != nil {
			h.Engine.SetAmountReceived(s, amount)
		}
		return nil
	})
}

// Complete settles the transaction under a per-session lock and
// returns the sale record. The session in the response is already
// reset for the next customer.
func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var sale Sale
	settle := func(s *Session) error {
		var err error
		sale, err = h.Engine.CompleteSale(r.Context(), s)
		return err
	}
	var err error
	if h.Locker.R != nil {
		err = h.Locker.WithLock(r.Context(), "pos:settle:"+id, h.LockTTL, func(ctx context.Context) error {
			return h.Registry.With(id, settle)
		})
	} else {
		err = h.Registry.With(id, settle)
	}
	if err != nil {
		obs.SettlementFailuresTotal.WithLabelValues(failureReason(err)).Inc()
		h.writeError(w, err)
		return
	}
	obs.SalesCompletedTotal.Inc()
	obs.SaleAmount.Observe(float64(sale.Totals.Total) / float64(pricing.Scale))
	common.JSON(w, http.StatusOK, map[string]any{"data": viewSale(sale)})
}

// CancelSale abandons the in-progress transaction, keeping the session
// open and empty.
func (h *Handler) CancelSale(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, http.StatusOK, func(s *Session) error {
		abandoned := len(s.Items)
		h.Engine.Cancel(s)
		if h.Events != nil {
			_, _ = h.Events.Emit(r.Context(), events.TopicSaleCancelled, s.ID, map[string]any{
				"sessionId":  s.ID,
				"itemsCount": abandoned,
			})
		}
		return nil
	})
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, status int, fn func(*Session) error) {
	id := chi.URLParam(r, "id")
	var out sessionView
	err := h.Registry.With(id, func(s *Session) error {
		if err := fn(s); err != nil {
			return err
		}
		out = h.view(s)
		return nil
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, status, map[string]any{"data": out})
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, ErrPaymentMethodRequired):
		return "method_required"
	case errors.Is(err, ErrInsufficientPayment):
		return "insufficient_payment"
	case errors.Is(err, ErrSessionNotFound):
		return "session_not_found"
	default:
		return "other"
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		common.JSONError(w, http.StatusNotFound, "SESSION_NOT_FOUND", "session not found", nil)
	case errors.Is(err, ErrItemNotFound):
		common.JSONError(w, http.StatusNotFound, "ITEM_NOT_FOUND", "no product matches that code", nil)
	case errors.Is(err, ErrEmptyCart):
		common.JSONError(w, http.StatusUnprocessableEntity, "EMPTY_CART", "cannot complete a sale with an empty cart", nil)
	case errors.Is(err, ErrPaymentMethodRequired):
		common.JSONError(w, http.StatusUnprocessableEntity, "PAYMENT_METHOD_REQUIRED", "select a payment method first", nil)
	case errors.Is(err, ErrInsufficientPayment):
		common.JSONError(w, http.StatusUnprocessableEntity, "INSUFFICIENT_PAYMENT", "amount received is less than the total", nil)
	case errors.Is(err, ErrUnknownMethod):
		common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION", "payment method must be cash or card", nil)
	default:
		common.WriteError(w, err)
	}
}
