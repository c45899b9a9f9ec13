package amqp

import (
	"encoding/json"
	"time"
)

// BillingRunCompletedMessage announces that a monthly billing run finished.
// Consumers fetch details from the API; the message carries only the
// headline numbers.
type BillingRunCompletedMessage struct {
	Year            int       `json:"year"`
	Month           int       `json:"month"`
	AccountsCharged int       `json:"accounts_charged"`
	ErrorCount      int       `json:"error_count"`
	TotalAmount     string    `json:"total_amount"`
	Timestamp       time.Time `json:"timestamp"`
}

func NewBillingRunCompletedMessage(year, month, accountsCharged, errorCount int, totalAmount string) *BillingRunCompletedMessage {
	return &BillingRunCompletedMessage{
		Year:            year,
		Month:           month,
		AccountsCharged: accountsCharged,
		ErrorCount:      errorCount,
		TotalAmount:     totalAmount,
		Timestamp:       time.Now(),
	}
}

func (m *BillingRunCompletedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func BillingRunCompletedMessageFromJSON(data []byte) (*BillingRunCompletedMessage, error) {
	var msg BillingRunCompletedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// InvoiceIssuedMessage announces a newly issued invoice, typically picked
// up by a notification or document worker.
type InvoiceIssuedMessage struct {
	InvoiceID string    `json:"invoice_id"`
	AccountID string    `json:"account_id"`
	Subtotal  string    `json:"subtotal"`
	DueDate   string    `json:"due_date"`
	Timestamp time.Time `json:"timestamp"`
}

func NewInvoiceIssuedMessage(invoiceID, accountID, subtotal string, dueDate time.Time) *InvoiceIssuedMessage {
	return &InvoiceIssuedMessage{
		InvoiceID: invoiceID,
		AccountID: accountID,
		Subtotal:  subtotal,
		DueDate:   dueDate.Format("2006-01-02"),
		Timestamp: time.Now(),
	}
}

func (m *InvoiceIssuedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func InvoiceIssuedMessageFromJSON(data []byte) (*InvoiceIssuedMessage, error) {
	var msg InvoiceIssuedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// PaymentRecordedMessage announces a posted payment entry. Amount is the
// positive magnitude received, SourceRef the invoice tag when the payment
// was allocated to one.
type PaymentRecordedMessage struct {
	EntryID   string    `json:"entry_id"`
	AccountID string    `json:"account_id"`
	Amount    string    `json:"amount"`
	Method    string    `json:"method,omitempty"`
	SourceRef string    `json:"source_ref,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewPaymentRecordedMessage(entryID, accountID, amount, method, sourceRef string) *PaymentRecordedMessage {
	return &PaymentRecordedMessage{
		EntryID:   entryID,
		AccountID: accountID,
		Amount:    amount,
		Method:    method,
		SourceRef: sourceRef,
		Timestamp: time.Now(),
	}
}

func (m *PaymentRecordedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func PaymentRecordedMessageFromJSON(data []byte) (*PaymentRecordedMessage, error) {
	var msg PaymentRecordedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
