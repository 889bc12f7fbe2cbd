package pricing

// Item describes a line item used for totals calculation.
type Item struct {
	Qty       int
	UnitPrice Money
}

// Summary aggregates the derived totals of an open transaction.
type Summary struct {
	Subtotal Money
	Tax      Money
	Discount Money
	Total    Money
}

// Compute derives transaction totals from the line items, the discount
// scalar, and the tax rate in basis points. It is a pure function of
// its inputs.
//
// The discount scalar keeps the register's single-field semantics: a
// value of 1.0 or more is an absolute currency amount, a value between
// zero and one is a fraction of the subtotal (0.15 means 15% off), and
// zero or less means no discount. Exactly 1.0 counts as absolute.
//
// The grand total is never clamped: a discount larger than subtotal
// plus tax produces a negative total, which the caller surfaces as-is.
func Compute(items []Item, discount Scalar, taxBps int) Summary {
	var subtotal Money
	for _, it := range items {
		if it.Qty <= 0 {
			continue
		}
		subtotal += Money(it.Qty) * it.UnitPrice
	}
	tax := subtotal * Money(taxBps) / 10000

	var discounted Money
	switch {
	case discount <= 0:
		discounted = 0
	case discount >= Scale:
		discounted = Money(discount)
	default:
		discounted = subtotal * Money(discount) / Scale
	}

	return Summary{
		Subtotal: subtotal,
		Tax:      tax,
		Discount: discounted,
		Total:    subtotal + tax - discounted,
	}
}
