package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// AgedDebtRow buckets one account's unpaid charge amounts by age. Ages are
// whole calendar months between effective date and the as-of date.
type AgedDebtRow struct {
	AccountID       string          `json:"account_id"`
	Current         decimal.Decimal `json:"current"`
	Month1          decimal.Decimal `json:"month_1"`
	Month2          decimal.Decimal `json:"month_2"`
	Month3Plus      decimal.Decimal `json:"month_3_plus"`
	Total           decimal.Decimal `json:"total"`
	LastPaymentDate time.Time       `json:"last_payment_date"`
}

// AgedDebtReport is a read-side view recomputed from the ledger on every
// call. Rows cover only accounts with a positive outstanding balance.
type AgedDebtReport struct {
	AsOf   time.Time     `json:"as_of"`
	Rows   []AgedDebtRow `json:"rows"`
	Totals AgedDebtRow   `json:"totals"`
}

// TypeSummary aggregates entries of one type over a reporting range.
// Amount keeps the ledger sign: payment and credit totals are negative.
type TypeSummary struct {
	Type   EntryType       `json:"entry_type"`
	Count  int             `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

// MonthSummary breaks one calendar month down by entry type.
type MonthSummary struct {
	Year   int             `json:"year"`
	Month  time.Month      `json:"month"`
	ByType []TypeSummary   `json:"by_type"`
	Total  decimal.Decimal `json:"total"`
}

// IncomeSummaryReport aggregates ledger entries with effective dates in
// [From, To]. TotalIncome sums charge-like entries; TotalPayments sums
// payment-like entries and is a negative magnitude, reflecting ledger
// sign. Display layers show the absolute value.
type IncomeSummaryReport struct {
	From          time.Time       `json:"from"`
	To            time.Time       `json:"to"`
	ByType        []TypeSummary   `json:"by_type"`
	ByMonth       []MonthSummary  `json:"by_month"`
	TotalIncome   decimal.Decimal `json:"total_income"`
	TotalPayments decimal.Decimal `json:"total_payments"`
}

// MonthsBetween returns the whole calendar months elapsed from `from`
// until `until`, never negative. A charge dated Jan 10 is 3 months old on
// Apr 15 and 2 months old on Apr 5.
func MonthsBetween(from, until time.Time) int {
	months := (until.Year()-from.Year())*12 + int(until.Month()) - int(from.Month())
	if until.Day() < from.Day() {
		months--
	}
	if months < 0 {
		return 0
	}
	return months
}
