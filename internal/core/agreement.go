package core

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// BillingAgreement is a recurring charge owed by an account: the livery
// package or service an account holder has signed up for. Agreements are
// supplied by an external collaborator and are read-only input to the
// billing run.
type BillingAgreement struct {
	ID          string          `json:"id"`
	AccountID   string          `json:"account_id"`
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	StartDate   time.Time       `json:"start_date"`
	// EndDate zero means open-ended.
	EndDate time.Time `json:"end_date"`
}

// ActiveIn reports whether the agreement covers any day of the given
// calendar month.
func (a BillingAgreement) ActiveIn(year int, month time.Month) bool {
	monthStart := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	monthEnd := monthStart.AddDate(0, 1, -1)
	if a.StartDate.After(monthEnd) {
		return false
	}
	if !a.EndDate.IsZero() && a.EndDate.Before(monthStart) {
		return false
	}
	return true
}

// BillingRunRecord marks one agreement as billed for one calendar period.
// The 4-tuple is unique in storage; the record insert and the charge post
// share a transaction, which is what makes re-running a period safe.
type BillingRunRecord struct {
	Year        int
	Month       time.Month
	AccountID   string
	AgreementID string
}

// BillingRunKey is the source_ref prefix shared by all charges of one run
// period, e.g. "billing:2024-03".
func BillingRunKey(year int, month time.Month) string {
	return fmt.Sprintf("billing:%04d-%02d", year, int(month))
}

// BillingChargeRef is the source_ref of the charge posted for one
// agreement in one period, e.g. "billing:2024-03:agr-7".
func BillingChargeRef(year int, month time.Month, agreementID string) string {
	return fmt.Sprintf("%s:%s", BillingRunKey(year, month), agreementID)
}
