package terminal

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// FormatAmount renders amount with exactly two fraction digits, the format the
// service expects. Extra digits are rounded half away from zero:
//
//	1      -> "1.00"
//	1.005  -> "1.01"
//	1.004  -> "1.00"
//	-1.005 -> "-1.01"
func FormatAmount(amount decimal.Decimal) string {
	return amount.StringFixed(2)
}

// ParseAmount parses a decimal string such as "12.50". The amount must be
// positive.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("invalid amount %q: must be greater than zero", s)
	}
	return d, nil
}
