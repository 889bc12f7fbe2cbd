package report

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/noah-isme/backend-pos/internal/catalog"
	"github.com/noah-isme/backend-pos/internal/common"
	"github.com/noah-isme/backend-pos/internal/pricing"
)

// Service assembles financial and stock reports.
type Service struct {
	Ledger  *Ledger
	Catalog *catalog.Store
	// Currency is the ISO code stamped on financial summaries.
	Currency string
	Now      func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Range bounds a report query, inclusive on both ends.
type Range struct {
	From time.Time
	To   time.Time
}

// ResolveRange maps a named period to concrete bounds. Supported names
// are today, 7d, month and custom; custom requires from and to in
// YYYY-MM-DD form.
func (s *Service) ResolveRange(name, fromStr, toStr string) (Range, error) {
	now := s.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "today":
		return Range{From: today, To: today.Add(24*time.Hour - time.Millisecond)}, nil
	case "7d":
		return Range{From: today.AddDate(0, 0, -6), To: today.Add(24*time.Hour - time.Millisecond)}, nil
	case "month":
		first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		return Range{From: first, To: first.AddDate(0, 1, 0).Add(-time.Millisecond)}, nil
	case "custom":
		from, err := time.Parse("2006-01-02", fromStr)
		if err != nil {
			return Range{}, common.NewAppError("BAD_REQUEST", "from must be YYYY-MM-DD", http.StatusBadRequest, err)
		}
		to, err := time.Parse("2006-01-02", toStr)
		if err != nil {
			return Range{}, common.NewAppError("BAD_REQUEST", "to must be YYYY-MM-DD", http.StatusBadRequest, err)
		}
		if to.Before(from) {
			return Range{}, common.NewAppError("BAD_REQUEST", "to must not precede from", http.StatusBadRequest, nil)
		}
		return Range{From: from, To: to.Add(24*time.Hour - time.Millisecond)}, nil
	default:
		return Range{}, common.NewAppError("BAD_REQUEST", "range must be today, 7d, month or custom", http.StatusBadRequest, nil)
	}
}

// FinancialSummary aggregates income and expenses over a range.
type FinancialSummary struct {
	From         time.Time `json:"from"`
	To           time.Time `json:"to"`
	SalesCount   int       `json:"salesCount"`
	ExpenseCount int       `json:"expenseCount"`
	Income       string    `json:"income"`
	Expenses     string    `json:"expenses"`
	Net          string    `json:"net"`
	Currency     string    `json:"currency,omitempty"`
	NetDisplay   string    `json:"netDisplay,omitempty"`
}

// currencySymbol maps the configured ISO code to a display symbol.
// Unknown codes leave display amounts unset.
func currencySymbol(code string) string {
	switch strings.ToUpper(strings.TrimSpace(code)) {
	case "USD":
		return "$"
	case "EUR":
		return "€"
	case "GBP":
		return "£"
	case "IDR":
		return "Rp"
	}
	return ""
}

// Financial builds the income, expenses and net balance summary.
func (s *Service) Financial(ctx context.Context, r Range) (FinancialSummary, error) {
	sales, err := s.Ledger.SalesBetween(ctx, r.From, r.To)
	if err != nil {
		return FinancialSummary{}, err
	}
	expenses, err := s.Ledger.ExpensesBetween(ctx, r.From, r.To)
	if err != nil {
		return FinancialSummary{}, err
	}
	var income, spent pricing.Money
	for _, sale := range sales {
		income += sale.Total
	}
	for _, e := range expenses {
		spent += e.Amount
	}
	summary := FinancialSummary{
		From:         r.From,
		To:           r.To,
		SalesCount:   len(sales),
		ExpenseCount: len(expenses),
		Income:       pricing.Format(income),
		Expenses:     pricing.Format(spent),
		Net:          pricing.Format(income - spent),
		Currency:     s.Currency,
	}
	if sym := currencySymbol(s.Currency); sym != "" {
		summary.NetDisplay = pricing.FormatWithSymbol(sym, income-spent)
	}
	return summary, nil
}

// SaleRow is a sales report line with formatted amounts.
type SaleRow struct {
	TransactionID string    `json:"transactionId"`
	ItemCount     int       `json:"itemCount"`
	Subtotal      string    `json:"subtotal"`
	Tax           string    `json:"tax"`
	Discount      string    `json:"discount"`
	Total         string    `json:"total"`
	Method        string    `json:"method"`
	CompletedAt   time.Time `json:"completedAt"`
}

// Sales lists settled transactions in the range, oldest first.
func (s *Service) Sales(ctx context.Context, r Range) ([]SaleRow, error) {
	records, err := s.Ledger.SalesBetween(ctx, r.From, r.To)
	if err != nil {
		return nil, err
	}
	rows := make([]SaleRow, 0, len(records))
	for _, rec := range records {
		count := 0
		for _, li := range rec.Items {
			count += li.Qty
		}
		rows = append(rows, SaleRow{
			TransactionID: rec.TransactionID,
			ItemCount:     count,
			Subtotal:      pricing.Format(rec.Subtotal),
			Tax:           pricing.Format(rec.Tax),
			Discount:      pricing.Format(rec.Discount),
			Total:         pricing.Format(rec.Total),
			Method:        rec.Method,
			CompletedAt:   rec.CompletedAt,
		})
	}
	return rows, nil
}

// StockRow is one stock report line.
type StockRow struct {
	ID                string `json:"id"`
	SKU               string `json:"sku"`
	Name              string `json:"name"`
	Price             string `json:"price"`
	Stock             int    `json:"stock"`
	LowStockThreshold int    `json:"lowStockThreshold"`
	LowStock          bool   `json:"lowStock"`
}

// StockParams filter and order the stock report.
type StockParams struct {
	LowOnly bool
	Sort    string // name, stock or sku
	Order   string // asc or desc
}

// Stock reports current inventory levels with low stock flags.
func (s *Service) Stock(ctx context.Context, params StockParams) ([]StockRow, error) {
	switch params.Sort {
	case "", "name", "stock", "sku":
	default:
		return nil, common.NewAppError("BAD_REQUEST", "unsupported sort field", http.StatusBadRequest, nil)
	}
	switch params.Order {
	case "", "asc", "desc":
	default:
		return nil, common.NewAppError("BAD_REQUEST", "order must be asc or desc", http.StatusBadRequest, nil)
	}

	items := s.Catalog.List(ctx)
	rows := make([]StockRow, 0, len(items))
	for _, it := range items {
		if params.LowOnly && !it.LowStock() {
			continue
		}
		rows = append(rows, StockRow{
			ID:                it.ID,
			SKU:               it.SKU,
			Name:              it.Name,
			Price:             pricing.Format(it.Price),
			Stock:             it.Stock,
			LowStockThreshold: it.LowStockThreshold,
			LowStock:          it.LowStock(),
		})
	}

	asc := params.Order != "desc"
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if !asc {
			a, b = b, a
		}
		switch params.Sort {
		case "stock":
			return a.Stock < b.Stock
		case "sku":
			return a.SKU < b.SKU
		default:
			return a.Name < b.Name
		}
	})
	return rows, nil
}

// ExpenseInput carries a new expense entry.
type ExpenseInput struct {
	Description string `json:"description"`
	Category    string `json:"category"`
	Amount      string `json:"amount"`
}

// ExpenseView is the expense DTO with a formatted amount.
type ExpenseView struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	Category    string    `json:"category,omitempty"`
	Amount      string    `json:"amount"`
	OccurredAt  time.Time `json:"occurredAt"`
}

// RecordExpense validates and stores a manual expense.
func (s *Service) RecordExpense(ctx context.Context, in ExpenseInput) (ExpenseView, error) {
	if strings.TrimSpace(in.Description) == "" {
		return ExpenseView{}, common.NewAppError("VALIDATION", "description is required", http.StatusUnprocessableEntity, nil)
	}
	amount, err := pricing.Parse(in.Amount)
	if err != nil || amount <= 0 {
		return ExpenseView{}, common.NewAppError("VALIDATION", "amount must be a positive decimal", http.StatusUnprocessableEntity, err)
	}
	saved, err := s.Ledger.AddExpense(ctx, Expense{
		Description: strings.TrimSpace(in.Description),
		Category:    strings.TrimSpace(in.Category),
		Amount:      amount,
	})
	if err != nil {
		return ExpenseView{}, err
	}
	return toExpenseView(saved), nil
}

// Expenses lists expenses in the range, oldest first.
func (s *Service) Expenses(ctx context.Context, r Range) ([]ExpenseView, error) {
	list, err := s.Ledger.ExpensesBetween(ctx, r.From, r.To)
	if err != nil {
		return nil, err
	}
	out := make([]ExpenseView, 0, len(list))
	for _, e := range list {
		out = append(out, toExpenseView(e))
	}
	return out, nil
}

func toExpenseView(e Expense) ExpenseView {
	return ExpenseView{
		ID:          e.ID,
		Description: e.Description,
		Category:    e.Category,
		Amount:      pricing.Format(e.Amount),
		OccurredAt:  e.OccurredAt,
	}
}

func rangeLabel(r Range) string {
	return fmt.Sprintf("%s_%s", r.From.Format("20060102"), r.To.Format("20060102"))
}
