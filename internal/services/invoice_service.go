package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"livery/internal/amqp"
	"livery/internal/core"
	"livery/internal/storage"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceService snapshots ledger charges into invoices and reconciles
// payments against them.
type InvoiceService struct {
	repo   *storage.Repository
	events *amqp.Client

	// paymentTermsDays is the offset from issue date to due date,
	// supplied by configuration (the agreement collaborator's payment
	// terms).
	paymentTermsDays int
}

func NewInvoiceService(repo *storage.Repository, events *amqp.Client, paymentTermsDays int) *InvoiceService {
	if paymentTermsDays <= 0 {
		paymentTermsDays = 14
	}
	return &InvoiceService{repo: repo, events: events, paymentTermsDays: paymentTermsDays}
}

// Generate creates a draft invoice from the account's billable entries in
// [periodStart, periodEnd]. With sinceLastInvoice, the window instead
// opens the day after the most recently issued invoice's period end.
//
// Only charge and adjustment entries are billable; voided entries are
// skipped because their reversal already cancels them, and invoicing
// either side would misstate the document. Entries sharing description,
// category and unit amount collapse into one line item with a summed
// quantity.
func (s *InvoiceService) Generate(ctx context.Context, accountID string, periodStart, periodEnd time.Time, sinceLastInvoice bool) (core.Invoice, error) {
	if accountID == "" {
		return core.Invoice{}, fmt.Errorf("%w: missing account id", core.ErrValidation)
	}
	if periodEnd.IsZero() {
		return core.Invoice{}, fmt.Errorf("%w: missing period end", core.ErrValidation)
	}

	if sinceLastInvoice {
		last, err := s.repo.LatestIssuedInvoice(ctx, accountID)
		switch {
		case err == nil:
			periodStart = last.PeriodEnd.AddDate(0, 0, 1)
		case errors.Is(err, core.ErrNotFound):
			// First invoice ever: bill everything up to period end.
			periodStart = time.Time{}
		default:
			return core.Invoice{}, fmt.Errorf("find last invoice: %w", err)
		}
	}

	entries, err := s.repo.ListEntries(ctx, accountID, core.EntryFilter{From: periodStart, To: periodEnd})
	if err != nil {
		return core.Invoice{}, fmt.Errorf("select entries: %w", err)
	}

	items := groupLineItems(entries)
	if len(items) == 0 {
		return core.Invoice{}, fmt.Errorf("account %s, period %s to %s: %w",
			accountID, periodStart.Format("2006-01-02"), periodEnd.Format("2006-01-02"),
			core.ErrNoChargesInPeriod)
	}

	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.Amount)
	}

	inv := core.Invoice{
		ID:               uuid.NewString(),
		AccountID:        accountID,
		Status:           core.InvoiceDraft,
		PeriodStart:      periodStart,
		PeriodEnd:        periodEnd,
		LineItems:        items,
		Subtotal:         subtotal,
		PaymentsReceived: decimal.Zero,
	}
	if err := s.repo.CreateInvoice(ctx, inv); err != nil {
		return core.Invoice{}, fmt.Errorf("create invoice: %w", err)
	}
	return inv, nil
}

// groupLineItems collapses billable entries into line items keyed by
// (description, category, unit price), preserving first-seen order.
// Distinct unit prices never merge.
func groupLineItems(entries []core.LedgerEntry) []core.InvoiceLineItem {
	type key struct {
		description string
		category    string
		unitPrice   string
	}
	index := make(map[key]int)
	var items []core.InvoiceLineItem

	for _, e := range entries {
		if !e.Type.ChargeLike() || e.IsVoided {
			continue
		}
		k := key{e.Description, e.Category, e.Amount.String()}
		if i, ok := index[k]; ok {
			items[i].Quantity++
			items[i].Amount = items[i].UnitPrice.Mul(decimal.NewFromInt(items[i].Quantity))
			continue
		}
		index[k] = len(items)
		items = append(items, core.InvoiceLineItem{
			Description: e.Description,
			Category:    e.Category,
			Quantity:    1,
			UnitPrice:   e.Amount,
			Amount:      e.Amount,
		})
	}
	return items
}

// Issue transitions a draft invoice to issued, fixing the issue date, the
// due date and the line items. The status re-check happens inside the
// storage transaction, so concurrent issue calls cannot both win.
func (s *InvoiceService) Issue(ctx context.Context, invoiceID string) (core.Invoice, error) {
	issueDate := today()
	dueDate := issueDate.AddDate(0, 0, s.paymentTermsDays)

	if err := s.repo.MarkInvoiceIssued(ctx, invoiceID, issueDate, dueDate); err != nil {
		return core.Invoice{}, fmt.Errorf("issue invoice: %w", err)
	}

	inv, err := s.Get(ctx, invoiceID)
	if err != nil {
		return core.Invoice{}, err
	}

	slog.InfoContext(ctx, "Invoice issued",
		"invoice_id", inv.ID,
		"account_id", inv.AccountID,
		"subtotal", core.FormatAmount(inv.Subtotal),
		"due_date", dueDate.Format("2006-01-02"))

	if s.events != nil {
		msg := amqp.NewInvoiceIssuedMessage(inv.ID, inv.AccountID, core.FormatAmount(inv.Subtotal), dueDate)
		if err := s.events.PublishInvoiceIssued(ctx, msg); err != nil {
			slog.ErrorContext(ctx, "Failed to publish invoice issued message",
				"invoice_id", inv.ID, "error", err)
		}
	}
	return inv, nil
}

// Cancel transitions a draft or issued invoice to cancelled. Paid
// invoices cannot be cancelled. Ledger entries already posted stay put;
// a wrong underlying charge must be voided separately.
func (s *InvoiceService) Cancel(ctx context.Context, invoiceID string) (core.Invoice, error) {
	if err := s.repo.MarkInvoiceCancelled(ctx, invoiceID); err != nil {
		return core.Invoice{}, fmt.Errorf("cancel invoice: %w", err)
	}
	return s.Get(ctx, invoiceID)
}

// Get loads an invoice with payments reconciled from the ledger.
func (s *InvoiceService) Get(ctx context.Context, invoiceID string) (core.Invoice, error) {
	inv, err := s.repo.GetInvoice(ctx, invoiceID)
	if err != nil {
		return core.Invoice{}, err
	}
	if err := s.fillPayments(ctx, &inv); err != nil {
		return core.Invoice{}, err
	}
	return inv, nil
}

// List returns an account's invoices with payments reconciled, ordered by
// period. Line items are not loaded.
func (s *InvoiceService) List(ctx context.Context, accountID string) ([]core.Invoice, error) {
	invoices, err := s.repo.ListInvoices(ctx, accountID)
	if err != nil {
		return nil, err
	}
	for i := range invoices {
		if err := s.fillPayments(ctx, &invoices[i]); err != nil {
			return nil, err
		}
	}
	return invoices, nil
}

func (s *InvoiceService) fillPayments(ctx context.Context, inv *core.Invoice) error {
	received, err := s.repo.PaymentsForInvoice(ctx, inv.ID)
	if err != nil {
		return fmt.Errorf("sum payments of invoice %s: %w", inv.ID, err)
	}
	inv.PaymentsReceived = received
	return nil
}

// RecordPayment posts a payment ledger entry against one invoice and
// transitions it to paid when the balance due reaches exactly zero. An
// overpayment leaves the invoice issued with a credit balance, to be
// resolved by a separate credit or adjustment entry, never auto-closed.
func (s *InvoiceService) RecordPayment(ctx context.Context, invoiceID string, amount decimal.Decimal, method string) (core.LedgerEntry, error) {
	if !amount.IsPositive() {
		return core.LedgerEntry{}, fmt.Errorf("%w: payment amount must be positive", core.ErrInvalidAmount)
	}

	inv, err := s.Get(ctx, invoiceID)
	if err != nil {
		return core.LedgerEntry{}, err
	}
	switch inv.Status {
	case core.InvoiceIssued:
	case core.InvoicePaid:
		return core.LedgerEntry{}, fmt.Errorf("invoice %s is already paid: %w", invoiceID, core.ErrInvalidState)
	default:
		return core.LedgerEntry{}, fmt.Errorf("record payment on invoice %s in status %s: %w",
			invoiceID, inv.Status, core.ErrInvalidState)
	}

	entry, err := s.postPayment(ctx, inv.AccountID, amount, method, inv.SourceRef())
	if err != nil {
		return core.LedgerEntry{}, err
	}

	if err := s.settleIfPaid(ctx, invoiceID); err != nil {
		return core.LedgerEntry{}, err
	}
	return entry, nil
}

// RecordAccountPayment records a payment with no specific invoice,
// allocating it oldest-open-invoice-first. Whatever remains after all open
// invoices are settled is posted as an unallocated payment entry.
func (s *InvoiceService) RecordAccountPayment(ctx context.Context, accountID string, amount decimal.Decimal, method string) ([]core.LedgerEntry, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: payment amount must be positive", core.ErrInvalidAmount)
	}

	invoices, err := s.repo.ListInvoices(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("list invoices of %s: %w", accountID, err)
	}

	// Oldest issue date first. ListInvoices orders by period already;
	// re-sorting by issue date keeps allocation tied to when the debt
	// was actually demanded.
	open := invoices[:0:0]
	for _, inv := range invoices {
		if inv.Status == core.InvoiceIssued {
			open = append(open, inv)
		}
	}
	sortInvoicesByIssueDate(open)

	var posted []core.LedgerEntry
	remaining := amount
	for _, inv := range open {
		if !remaining.IsPositive() {
			break
		}
		if err := s.fillPayments(ctx, &inv); err != nil {
			return posted, err
		}
		due := inv.BalanceDue()
		if !due.IsPositive() {
			continue
		}
		alloc := decimal.Min(due, remaining)
		entry, err := s.postPayment(ctx, accountID, alloc, method, inv.SourceRef())
		if err != nil {
			return posted, err
		}
		posted = append(posted, entry)
		remaining = remaining.Sub(alloc)

		if err := s.settleIfPaid(ctx, inv.ID); err != nil {
			return posted, err
		}
	}

	if remaining.IsPositive() {
		entry, err := s.postPayment(ctx, accountID, remaining, method, "")
		if err != nil {
			return posted, err
		}
		posted = append(posted, entry)
	}
	return posted, nil
}

func (s *InvoiceService) postPayment(ctx context.Context, accountID string, amount decimal.Decimal, method, sourceRef string) (core.LedgerEntry, error) {
	description := "Payment received"
	if method != "" {
		description = fmt.Sprintf("Payment received (%s)", method)
	}
	entry, err := s.repo.PostEntry(ctx, core.NewLedgerEntry{
		AccountID:     accountID,
		Type:          core.EntryPayment,
		Amount:        amount.Neg(),
		Description:   description,
		Category:      "payment",
		EffectiveDate: today(),
		CreatedBy:     "invoice-service",
		SourceRef:     sourceRef,
	})
	if err != nil {
		return core.LedgerEntry{}, fmt.Errorf("post payment: %w", err)
	}

	if s.events != nil {
		msg := amqp.NewPaymentRecordedMessage(entry.ID, accountID, core.FormatAmount(amount), method, sourceRef)
		if err := s.events.PublishPaymentRecorded(ctx, msg); err != nil {
			slog.ErrorContext(ctx, "Failed to publish payment message",
				"entry_id", entry.ID, "account_id", accountID, "error", err)
		}
	}
	return entry, nil
}

// settleIfPaid marks the invoice paid when its balance due is exactly
// zero. Over- or underpaid invoices stay issued.
func (s *InvoiceService) settleIfPaid(ctx context.Context, invoiceID string) error {
	inv, err := s.Get(ctx, invoiceID)
	if err != nil {
		return err
	}
	if inv.Status != core.InvoiceIssued || !inv.BalanceDue().IsZero() {
		return nil
	}
	if err := s.repo.MarkInvoicePaid(ctx, invoiceID, today()); err != nil {
		// Another payment settled it first; the invoice is paid either way.
		if errors.Is(err, core.ErrInvalidState) {
			return nil
		}
		return fmt.Errorf("mark invoice %s paid: %w", invoiceID, err)
	}
	slog.InfoContext(ctx, "Invoice paid in full", "invoice_id", invoiceID)
	return nil
}

func sortInvoicesByIssueDate(invoices []core.Invoice) {
	for i := 1; i < len(invoices); i++ {
		for j := i; j > 0 && invoices[j].IssueDate.Before(invoices[j-1].IssueDate); j-- {
			invoices[j], invoices[j-1] = invoices[j-1], invoices[j]
		}
	}
}
