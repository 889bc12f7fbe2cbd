package pricing

import (
	"errors"
	"fmt"
	"strings"
)

// Money represents a monetary value as a fixed-point integer scaled by
// Scale (four decimal places). All arithmetic stays exact at this
// precision; rounding to the displayed two decimals happens once, in
// Format.
type Money = int64

// Scalar carries a raw discount value at the same fixed-point scale.
// A scalar of 1.0 or more is an absolute amount, below 1.0 it is a
// fraction of the subtotal.
type Scalar = int64

// Scale is the fixed-point denominator shared by Money and Scalar.
const Scale = 10000

// ErrInvalidAmount is returned when a decimal string cannot be parsed.
var ErrInvalidAmount = errors.New("pricing: invalid amount")

// Parse converts a decimal string such as "29.99" into Money. Up to
// four fractional digits are accepted.
func Parse(value string) (Money, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, ErrInvalidAmount
	}
	negative := false
	switch trimmed[0] {
	case '-':
		negative = true
		trimmed = trimmed[1:]
	case '+':
		trimmed = trimmed[1:]
	}
	if trimmed == "" || trimmed == "." {
		return 0, ErrInvalidAmount
	}
	whole, frac, _ := strings.Cut(trimmed, ".")
	if len(frac) > 4 {
		return 0, fmt.Errorf("%w: more than four decimal places in %q", ErrInvalidAmount, value)
	}
	var amount int64
	for i := 0; i < len(whole); i++ {
		c := whole[i]
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, value)
		}
		amount = amount*10 + int64(c-'0')
		if amount > (1<<62)/Scale {
			return 0, fmt.Errorf("%w: %q overflows", ErrInvalidAmount, value)
		}
	}
	amount *= Scale
	mult := int64(Scale / 10)
	for i := 0; i < len(frac); i++ {
		c := frac[i]
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, value)
		}
		amount += int64(c-'0') * mult
		mult /= 10
	}
	if negative {
		amount = -amount
	}
	return amount, nil
}

// ParseScalar parses a raw discount value. The fixed-point scale is
// shared with Money so an absolute scalar is already its Money amount.
func ParseScalar(value string) (Scalar, error) {
	return Parse(value)
}

// Format renders the amount with two decimal places, rounding half
// away from zero. This is the only rounding point in the money path.
func Format(m Money) string {
	negative := m < 0
	if negative {
		m = -m
	}
	cents := (m + Scale/200) / (Scale / 100)
	out := fmt.Sprintf("%d.%02d", cents/100, cents%100)
	if negative {
		return "-" + out
	}
	return out
}

// FormatWithSymbol prefixes the formatted amount with a currency
// symbol, e.g. "$110.98". Negative amounts render as "-$1.02".
func FormatWithSymbol(symbol string, m Money) string {
	if m < 0 {
		return "-" + symbol + Format(-m)
	}
	return symbol + Format(m)
}
