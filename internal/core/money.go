// Package core holds the domain types of the billing ledger: entries,
// invoices, billing agreements and report rows.
//
// All monetary amounts are fixed-point decimals (shopspring/decimal),
// never floats, so thousands of entries sum without rounding drift.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a decimal string to a money amount.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and
// rounds half-up to two decimal places. A leading minus sign is allowed;
// the sign convention (charges positive, payments negative) is enforced
// by the caller, not here.
//
// Examples:
//   ParseAmount("12.34")  -> 12.34
//   ParseAmount("12,34")  -> 12.34
//   ParseAmount("12.345") -> 12.35 (rounds half-up)
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	// Normalize decimal comma to dot
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d.Round(2), nil
}

// FormatAmount renders an amount with exactly two decimal places for
// user-facing output. Calculations always stay in decimal.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}
