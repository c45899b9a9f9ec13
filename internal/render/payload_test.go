package render

import (
	"testing"
	"time"

	"livery/internal/core"

	"github.com/shopspring/decimal"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestBuildInvoiceFormatsAmountsAndStatus(t *testing.T) {
	inv := core.Invoice{
		ID:          "inv-1",
		AccountID:   "acct-1",
		Status:      core.InvoiceIssued,
		PeriodStart: date(2024, time.March, 1),
		PeriodEnd:   date(2024, time.March, 31),
		IssueDate:   date(2024, time.April, 1),
		DueDate:     date(2024, time.April, 15),
		LineItems: []core.InvoiceLineItem{
			{Description: "Full livery", Category: "full_livery", Quantity: 1, UnitPrice: decimal.RequireFromString("450"), Amount: decimal.RequireFromString("450")},
		},
		Subtotal:         decimal.RequireFromString("450"),
		PaymentsReceived: decimal.RequireFromString("-100"),
	}

	doc := BuildInvoice(inv, date(2024, time.May, 1))
	payload, ok := doc.Payload.(InvoicePayload)
	if !ok {
		t.Fatalf("payload type = %T", doc.Payload)
	}

	if doc.Kind != DocInvoice {
		t.Errorf("Kind = %q", doc.Kind)
	}
	if payload.Status != string(core.InvoiceOverdue) {
		t.Errorf("Status = %q, want overdue (past due date with balance)", payload.Status)
	}
	if payload.Subtotal != "450.00" {
		t.Errorf("Subtotal = %q, want 450.00", payload.Subtotal)
	}
	if payload.PaymentsReceived != "100.00" {
		t.Errorf("PaymentsReceived = %q, want positive display magnitude", payload.PaymentsReceived)
	}
	if payload.BalanceDue != "350.00" {
		t.Errorf("BalanceDue = %q, want 350.00", payload.BalanceDue)
	}
	if payload.DueDate != "2024-04-15" {
		t.Errorf("DueDate = %q", payload.DueDate)
	}
}

func TestBuildReceiptDisplaysPositiveAmount(t *testing.T) {
	entry := core.LedgerEntry{
		ID:            "e-1",
		AccountID:     "acct-1",
		Type:          core.EntryPayment,
		Amount:        decimal.RequireFromString("-80"),
		Description:   "Payment received (bacs)",
		EffectiveDate: date(2024, time.April, 2),
		SourceRef:     "invoice:inv-1",
	}

	doc := BuildReceipt(entry)
	payload := doc.Payload.(ReceiptPayload)

	if payload.Amount != "80.00" {
		t.Errorf("Amount = %q, want 80.00", payload.Amount)
	}
	if payload.AppliedTo != "invoice:inv-1" {
		t.Errorf("AppliedTo = %q", payload.AppliedTo)
	}
}

func TestBuildStatementRunningBalance(t *testing.T) {
	entries := []core.LedgerEntry{
		{Type: core.EntryCharge, Amount: decimal.RequireFromString("450"), EffectiveDate: date(2024, time.March, 1), Description: "Full livery"},
		{Type: core.EntryPayment, Amount: decimal.RequireFromString("-200"), EffectiveDate: date(2024, time.March, 10), Description: "Payment received"},
	}

	doc := BuildStatement("acct-1", date(2024, time.March, 1), date(2024, time.March, 31), decimal.RequireFromString("50"), entries)
	payload := doc.Payload.(StatementPayload)

	if payload.OpeningBalance != "50.00" {
		t.Errorf("OpeningBalance = %q", payload.OpeningBalance)
	}
	if payload.Lines[0].Balance != "500.00" {
		t.Errorf("first running balance = %q, want 500.00", payload.Lines[0].Balance)
	}
	if payload.Lines[1].Balance != "300.00" {
		t.Errorf("second running balance = %q, want 300.00", payload.Lines[1].Balance)
	}
	if payload.ClosingBalance != "300.00" {
		t.Errorf("ClosingBalance = %q, want 300.00", payload.ClosingBalance)
	}
}
