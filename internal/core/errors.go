package core

import (
	"errors"
	"fmt"
)

// Sentinel errors for the billing core. Every layer wraps these with
// fmt.Errorf("...: %w", ...) so callers can match with errors.Is while
// still seeing the entity id and operation in the message.
var (
	// ErrNotFound indicates an entry, invoice or account that does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState indicates an operation that is not valid for the
	// current lifecycle state (issuing a non-draft invoice, voiding a
	// reversal, cancelling a paid invoice).
	ErrInvalidState = errors.New("invalid state")

	// ErrAlreadyVoided indicates a void attempt on an entry that already
	// has a reversal.
	ErrAlreadyVoided = errors.New("entry already voided")

	// ErrNoChargesInPeriod indicates an invoice generation over a period
	// with no billable entries. Empty invoices are never created.
	ErrNoChargesInPeriod = errors.New("no charges in period")

	// ErrConflict indicates a concurrent mutation lost a race. Safe to retry.
	ErrConflict = errors.New("conflict")

	// ErrTimeout indicates a storage call exceeded its bound.
	ErrTimeout = errors.New("storage timeout")

	// ErrValidation indicates rejected input: zero amounts, missing dates,
	// unknown entry types.
	ErrValidation = errors.New("validation failed")
)

// ErrInvalidAmount rejects amounts that cannot be parsed or are zero where
// a non-zero amount is required.
var ErrInvalidAmount = fmt.Errorf("%w: invalid amount", ErrValidation)
