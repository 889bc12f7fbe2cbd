package report

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
)

// WriteFinancialCSV streams the combined sales and expenses statement
// for the range as CSV.
func (s *Service) WriteFinancialCSV(ctx context.Context, w io.Writer, r Range) error {
	sales, err := s.Sales(ctx, r)
	if err != nil {
		return err
	}
	expenses, err := s.Expenses(ctx, r)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"type", "id", "description", "method", "amount", "at"}); err != nil {
		return err
	}
	for _, row := range sales {
		rec := []string{"sale", row.TransactionID, strconv.Itoa(row.ItemCount) + " items", row.Method, row.Total, row.CompletedAt.UTC().Format("2006-01-02 15:04:05")}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	for _, e := range expenses {
		rec := []string{"expense", e.ID, e.Description, "", "-" + e.Amount, e.OccurredAt.UTC().Format("2006-01-02 15:04:05")}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteSalesCSV streams the sales report for the range as CSV.
func (s *Service) WriteSalesCSV(ctx context.Context, w io.Writer, r Range) error {
	sales, err := s.Sales(ctx, r)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"transaction_id", "items", "subtotal", "tax", "discount", "total", "method", "completed_at"}); err != nil {
		return err
	}
	for _, row := range sales {
		rec := []string{
			row.TransactionID,
			strconv.Itoa(row.ItemCount),
			row.Subtotal,
			row.Tax,
			row.Discount,
			row.Total,
			row.Method,
			row.CompletedAt.UTC().Format("2006-01-02 15:04:05"),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
