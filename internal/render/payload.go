package render

import (
	"fmt"
	"time"

	"livery/internal/core"

	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// InvoiceLinePayload is one display line of an invoice document.
type InvoiceLinePayload struct {
	Description string `json:"description"`
	Category    string `json:"category"`
	Quantity    int64  `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	Amount      string `json:"amount"`
}

// InvoicePayload is the display form of an invoice: all amounts formatted
// to two decimals, dates as calendar strings, status already derived.
type InvoicePayload struct {
	InvoiceID        string               `json:"invoice_id"`
	AccountID        string               `json:"account_id"`
	Status           string               `json:"status"`
	PeriodStart      string               `json:"period_start"`
	PeriodEnd        string               `json:"period_end"`
	IssueDate        string               `json:"issue_date,omitempty"`
	DueDate          string               `json:"due_date,omitempty"`
	Lines            []InvoiceLinePayload `json:"lines"`
	Subtotal         string               `json:"subtotal"`
	PaymentsReceived string               `json:"payments_received"`
	BalanceDue       string               `json:"balance_due"`
	Notes            string               `json:"notes,omitempty"`
}

// BuildInvoice converts an invoice into its document payload. Payments
// display as a positive "received" magnitude even though the ledger stores
// them negative.
func BuildInvoice(inv core.Invoice, today time.Time) Document {
	lines := make([]InvoiceLinePayload, 0, len(inv.LineItems))
	for _, li := range inv.LineItems {
		lines = append(lines, InvoiceLinePayload{
			Description: li.Description,
			Category:    li.Category,
			Quantity:    li.Quantity,
			UnitPrice:   core.FormatAmount(li.UnitPrice),
			Amount:      core.FormatAmount(li.Amount),
		})
	}

	payload := InvoicePayload{
		InvoiceID:        inv.ID,
		AccountID:        inv.AccountID,
		Status:           string(inv.EffectiveStatus(today)),
		PeriodStart:      formatDate(inv.PeriodStart),
		PeriodEnd:        formatDate(inv.PeriodEnd),
		IssueDate:        formatDate(inv.IssueDate),
		DueDate:          formatDate(inv.DueDate),
		Lines:            lines,
		Subtotal:         core.FormatAmount(inv.Subtotal),
		PaymentsReceived: core.FormatAmount(inv.PaymentsReceived.Neg()),
		BalanceDue:       core.FormatAmount(inv.BalanceDue()),
		Notes:            inv.Notes,
	}

	return Document{
		Kind:     DocInvoice,
		Filename: fmt.Sprintf("invoice-%s.pdf", inv.ID),
		Payload:  payload,
	}
}

// ReceiptPayload acknowledges one received payment.
type ReceiptPayload struct {
	EntryID      string `json:"entry_id"`
	AccountID    string `json:"account_id"`
	Amount       string `json:"amount"`
	ReceivedDate string `json:"received_date"`
	AppliedTo    string `json:"applied_to,omitempty"`
	Description  string `json:"description"`
}

// BuildReceipt converts a payment ledger entry into a receipt document.
func BuildReceipt(entry core.LedgerEntry) Document {
	payload := ReceiptPayload{
		EntryID:      entry.ID,
		AccountID:    entry.AccountID,
		Amount:       core.FormatAmount(entry.Amount.Neg()),
		ReceivedDate: formatDate(entry.EffectiveDate),
		AppliedTo:    entry.SourceRef,
		Description:  entry.Description,
	}
	return Document{
		Kind:     DocReceipt,
		Filename: fmt.Sprintf("receipt-%s.pdf", entry.ID),
		Payload:  payload,
	}
}

// StatementLinePayload is one ledger movement with a running balance.
type StatementLinePayload struct {
	Date        string `json:"date"`
	Type        string `json:"entry_type"`
	Description string `json:"description"`
	Amount      string `json:"amount"`
	Balance     string `json:"balance"`
	Voided      bool   `json:"voided,omitempty"`
}

// StatementPayload is the display form of an account statement.
type StatementPayload struct {
	AccountID      string                 `json:"account_id"`
	From           string                 `json:"from"`
	To             string                 `json:"to"`
	OpeningBalance string                 `json:"opening_balance"`
	Lines          []StatementLinePayload `json:"lines"`
	ClosingBalance string                 `json:"closing_balance"`
}

// BuildStatement converts a statement into its document payload, carrying
// a running balance across the lines.
func BuildStatement(accountID string, from, to time.Time, opening decimal.Decimal, entries []core.LedgerEntry) Document {
	running := opening
	lines := make([]StatementLinePayload, 0, len(entries))
	for _, e := range entries {
		running = running.Add(e.Amount)
		lines = append(lines, StatementLinePayload{
			Date:        formatDate(e.EffectiveDate),
			Type:        string(e.Type),
			Description: e.Description,
			Amount:      core.FormatAmount(e.Amount),
			Balance:     core.FormatAmount(running),
			Voided:      e.IsVoided,
		})
	}

	payload := StatementPayload{
		AccountID:      accountID,
		From:           formatDate(from),
		To:             formatDate(to),
		OpeningBalance: core.FormatAmount(opening),
		Lines:          lines,
		ClosingBalance: core.FormatAmount(running),
	}
	return Document{
		Kind:     DocStatement,
		Filename: fmt.Sprintf("statement-%s-%s.pdf", accountID, formatDate(to)),
		Payload:  payload,
	}
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}
