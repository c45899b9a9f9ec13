package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceStatus is the persisted invoice lifecycle state. Overdue is
// derived at read time (EffectiveStatus) and never stored, so it always
// agrees with the current date.
type InvoiceStatus string

const (
	InvoiceDraft     InvoiceStatus = "draft"
	InvoiceIssued    InvoiceStatus = "issued"
	InvoicePaid      InvoiceStatus = "paid"
	InvoiceCancelled InvoiceStatus = "cancelled"
	InvoiceOverdue   InvoiceStatus = "overdue"
)

// InvoiceLineItem is one grouped line of an invoice. Entries with the same
// description, category and unit price collapse into a single line with a
// summed quantity; Amount is always Quantity times UnitPrice.
type InvoiceLineItem struct {
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Quantity    int64           `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Amount      decimal.Decimal `json:"amount"`
}

// Invoice is an immutable-once-issued snapshot of selected ledger charges.
// Line items freeze when the invoice leaves draft; subsequent ledger
// changes never retroactively alter an issued invoice.
type Invoice struct {
	ID          string            `json:"id"`
	AccountID   string            `json:"account_id"`
	Status      InvoiceStatus     `json:"status"`
	PeriodStart time.Time         `json:"period_start"`
	PeriodEnd   time.Time         `json:"period_end"`
	IssueDate   time.Time         `json:"issue_date"`
	DueDate     time.Time         `json:"due_date"`
	PaidDate    time.Time         `json:"paid_date"`
	LineItems   []InvoiceLineItem `json:"line_items"`
	Subtotal    decimal.Decimal   `json:"subtotal"`

	// PaymentsReceived is the sum of payment entries tagged with this
	// invoice's source ref, recomputed from the ledger on every read.
	PaymentsReceived decimal.Decimal `json:"payments_received"`

	Notes string `json:"notes,omitempty"`
}

// InvoiceSourceRef returns the source_ref tag carried by ledger entries
// produced for the given invoice.
func InvoiceSourceRef(invoiceID string) string {
	return "invoice:" + invoiceID
}

// SourceRef returns this invoice's ledger tag.
func (i Invoice) SourceRef() string {
	return InvoiceSourceRef(i.ID)
}

// BalanceDue is subtotal minus payments received. Payments are stored with
// ledger sign (negative), so the magnitude is added back here.
func (i Invoice) BalanceDue() decimal.Decimal {
	return i.Subtotal.Add(i.PaymentsReceived)
}

// EffectiveStatus derives overdue at read time: an issued invoice past its
// due date with an outstanding balance reads as overdue without any stored
// state change.
func (i Invoice) EffectiveStatus(today time.Time) InvoiceStatus {
	if i.Status == InvoiceIssued && !i.DueDate.IsZero() && i.DueDate.Before(today) && i.BalanceDue().IsPositive() {
		return InvoiceOverdue
	}
	return i.Status
}
