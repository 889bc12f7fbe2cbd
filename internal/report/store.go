package report

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/backend-pos/internal/events"
	"github.com/noah-isme/backend-pos/internal/pos"
	"github.com/noah-isme/backend-pos/internal/pricing"
)

const (
	salesIndexKey   = "pos:sales"
	saleKeyPrefix   = "pos:sale:"
	expensesZSetKey = "pos:expenses"
)

// SaleLine is one settled line item as stored in the ledger.
type SaleLine struct {
	ProductID string        `json:"productId"`
	SKU       string        `json:"sku"`
	Name      string        `json:"name"`
	UnitPrice pricing.Money `json:"unitPrice"`
	Qty       int           `json:"qty"`
}

// SaleRecord is the ledger row for a settled transaction. Amounts are
// raw fixed-point values; formatting happens at the report edge.
type SaleRecord struct {
	TransactionID  string        `json:"transactionId"`
	SessionID      string        `json:"sessionId,omitempty"`
	Items          []SaleLine    `json:"items"`
	Subtotal       pricing.Money `json:"subtotal"`
	Tax            pricing.Money `json:"tax"`
	Discount       pricing.Money `json:"discount"`
	Total          pricing.Money `json:"total"`
	Method         string        `json:"method"`
	AmountReceived pricing.Money `json:"amountReceived"`
	ChangeDue      pricing.Money `json:"changeDue"`
	CompletedAt    time.Time     `json:"completedAt"`
}

// Expense is a manually recorded cost entry.
type Expense struct {
	ID          string        `json:"id"`
	Description string        `json:"description"`
	Category    string        `json:"category,omitempty"`
	Amount      pricing.Money `json:"amount"`
	OccurredAt  time.Time     `json:"occurredAt"`
}

// Ledger persists sales and expenses in Redis. Sales are written once:
// the record key is claimed with SETNX so a replayed settlement cannot
// double count, and the event only fires on the first write.
type Ledger struct {
	R   *redis.Client
	Bus *events.Bus
	Now func() time.Time
}

func (l *Ledger) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

// RecordSale writes the sale to the ledger and emits sale.completed.
// Duplicate transaction ids are ignored.
func (l *Ledger) RecordSale(ctx context.Context, sale pos.Sale) error {
	rec := fromSale(sale)
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("report: encode sale: %w", err)
	}

	ok, err := l.R.SetNX(ctx, saleKeyPrefix+rec.TransactionID, data, 0).Result()
	if err != nil {
		return fmt.Errorf("report: persist sale: %w", err)
	}
	if !ok {
		// already recorded, keep the first write
		return nil
	}
	if err := l.R.ZAdd(ctx, salesIndexKey, redis.Z{
		Score:  float64(rec.CompletedAt.UnixMilli()),
		Member: rec.TransactionID,
	}).Err(); err != nil {
		return fmt.Errorf("report: index sale: %w", err)
	}

	if l.Bus != nil {
		if _, err := l.Bus.Emit(ctx, events.TopicSaleCompleted, rec.TransactionID, data); err != nil {
			return fmt.Errorf("report: emit sale: %w", err)
		}
	}
	return nil
}

func fromSale(sale pos.Sale) SaleRecord {
	lines := make([]SaleLine, len(sale.Items))
	for i, li := range sale.Items {
		lines[i] = SaleLine{
			ProductID: li.ProductID,
			SKU:       li.SKU,
			Name:      li.Name,
			UnitPrice: li.UnitPrice,
			Qty:       li.Qty,
		}
	}
	return SaleRecord{
		TransactionID:  sale.TransactionID,
		SessionID:      sale.SessionID,
		Items:          lines,
		Subtotal:       sale.Totals.Subtotal,
		Tax:            sale.Totals.Tax,
		Discount:       sale.Totals.Discount,
		Total:          sale.Totals.Total,
		Method:         string(sale.Method),
		AmountReceived: sale.AmountReceived,
		ChangeDue:      sale.ChangeDue,
		CompletedAt:    sale.CompletedAt,
	}
}

// SalesBetween returns ledger records completed in [from, to], oldest
// first.
func (l *Ledger) SalesBetween(ctx context.Context, from, to time.Time) ([]SaleRecord, error) {
	ids, err := l.R.ZRangeByScore(ctx, salesIndexKey, &redis.ZRangeBy{
		Min: fmt.Sprintf("%d", from.UnixMilli()),
		Max: fmt.Sprintf("%d", to.UnixMilli()),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("report: range sales: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = saleKeyPrefix + id
	}
	raws, err := l.R.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("report: load sales: %w", err)
	}
	out := make([]SaleRecord, 0, len(raws))
	for _, raw := range raws {
		s, ok := raw.(string)
		if !ok {
			continue
		}
		var rec SaleRecord
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// AddExpense records a manual expense entry and emits
// expense.recorded.
func (l *Ledger) AddExpense(ctx context.Context, e Expense) (Expense, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = l.now().UTC()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return Expense{}, fmt.Errorf("report: encode expense: %w", err)
	}
	if err := l.R.ZAdd(ctx, expensesZSetKey, redis.Z{
		Score:  float64(e.OccurredAt.UnixMilli()),
		Member: data,
	}).Err(); err != nil {
		return Expense{}, fmt.Errorf("report: persist expense: %w", err)
	}
	if l.Bus != nil {
		if _, err := l.Bus.Emit(ctx, events.TopicExpenseRecorded, e.ID, data); err != nil {
			return Expense{}, fmt.Errorf("report: emit expense: %w", err)
		}
	}
	return e, nil
}

// ExpensesBetween returns expenses recorded in [from, to], oldest
// first.
func (l *Ledger) ExpensesBetween(ctx context.Context, from, to time.Time) ([]Expense, error) {
	raws, err := l.R.ZRangeByScore(ctx, expensesZSetKey, &redis.ZRangeBy{
		Min: fmt.Sprintf("%d", from.UnixMilli()),
		Max: fmt.Sprintf("%d", to.UnixMilli()),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("report: range expenses: %w", err)
	}
	out := make([]Expense, 0, len(raws))
	for _, raw := range raws {
		var e Expense
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}
