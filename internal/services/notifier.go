package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"livery/internal/amqp"
	"livery/internal/core"
	"livery/internal/render"
)

// InvoiceNotifier reacts to invoice-issued events: it loads the invoice,
// assembles its document payload and hands it to the notification channel.
// Document rendering and delivery stay outside this module; the notifier
// produces the payload the external renderer consumes.
type InvoiceNotifier struct {
	invoices *InvoiceService
}

func NewInvoiceNotifier(invoices *InvoiceService) *InvoiceNotifier {
	return &InvoiceNotifier{invoices: invoices}
}

// HandleInvoiceIssued processes one invoice-issued message. An unknown
// invoice id is dropped rather than requeued: the message would never
// become processable and would loop forever.
func (n *InvoiceNotifier) HandleInvoiceIssued(ctx context.Context, msg *amqp.InvoiceIssuedMessage) error {
	inv, err := n.invoices.Get(ctx, msg.InvoiceID)
	if errors.Is(err, core.ErrNotFound) {
		slog.WarnContext(ctx, "Dropping invoice message for unknown invoice",
			"invoice_id", msg.InvoiceID,
			"account_id", msg.AccountID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load invoice %s: %w", msg.InvoiceID, err)
	}

	doc := render.BuildInvoice(inv, today())
	slog.InfoContext(ctx, "Invoice notification prepared",
		"invoice_id", inv.ID,
		"account_id", inv.AccountID,
		"document", doc.Filename,
		"subtotal", core.FormatAmount(inv.Subtotal),
		"balance_due", core.FormatAmount(inv.BalanceDue()),
		"due_date", msg.DueDate)
	return nil
}
