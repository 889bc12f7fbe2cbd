package report

import (
	"net/http"

	"github.com/noah-isme/backend-pos/internal/common"
	"github.com/noah-isme/backend-pos/internal/obs"
)

// Handler exposes reporting endpoints.
type Handler struct {
	Svc *Service
}

func (h *Handler) resolveRange(r *http.Request) (Range, error) {
	q := r.URL.Query()
	return h.Svc.ResolveRange(q.Get("range"), q.Get("from"), q.Get("to"))
}

// Financial handles GET /api/v1/reports/financial.
func (h *Handler) Financial(w http.ResponseWriter, r *http.Request) {
	rng, err := h.resolveRange(r)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	summary, err := h.Svc.Financial(r.Context(), rng)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": summary})
}

// Sales handles GET /api/v1/reports/sales.
func (h *Handler) Sales(w http.ResponseWriter, r *http.Request) {
	rng, err := h.resolveRange(r)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	rows, err := h.Svc.Sales(r.Context(), rng)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rows})
}

// Stock handles GET /api/v1/reports/stock.
func (h *Handler) Stock(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rows, err := h.Svc.Stock(r.Context(), StockParams{
		LowOnly: q.Get("low") == "true",
		Sort:    q.Get("sort"),
		Order:   q.Get("order"),
	})
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rows})
}

// Expenses handles GET /api/v1/expenses.
func (h *Handler) Expenses(w http.ResponseWriter, r *http.Request) {
	rng, err := h.resolveRange(r)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	rows, err := h.Svc.Expenses(r.Context(), rng)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rows})
}

// CreateExpense handles POST /api/v1/expenses.
func (h *Handler) CreateExpense(w http.ResponseWriter, r *http.Request) {
	var in ExpenseInput
	if err := common.DecodeJSON(r, &in); err != nil {
		common.WriteError(w, err)
		return
	}
	saved, err := h.Svc.RecordExpense(r.Context(), in)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	obs.ExpensesRecordedTotal.Inc()
	common.JSON(w, http.StatusCreated, map[string]any{"data": saved})
}

// FinancialCSV handles GET /api/v1/reports/financial/export.
func (h *Handler) FinancialCSV(w http.ResponseWriter, r *http.Request) {
	rng, err := h.resolveRange(r)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="financial_`+rangeLabel(rng)+`.csv"`)
	if err := h.Svc.WriteFinancialCSV(r.Context(), w, rng); err != nil {
		common.WriteError(w, err)
	}
}

// SalesCSV handles GET /api/v1/reports/sales/export.
func (h *Handler) SalesCSV(w http.ResponseWriter, r *http.Request) {
	rng, err := h.resolveRange(r)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="sales_`+rangeLabel(rng)+`.csv"`)
	if err := h.Svc.WriteSalesCSV(r.Context(), w, rng); err != nil {
		common.WriteError(w, err)
	}
}
