package core

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// EntryType is the closed set of ledger entry variants. Corrections are
// modeled as compensating reversal entries, never as edits or deletes.
type EntryType string

const (
	EntryCharge     EntryType = "charge"
	EntryPayment    EntryType = "payment"
	EntryCredit     EntryType = "credit"
	EntryAdjustment EntryType = "adjustment"
	EntryReversal   EntryType = "reversal"
)

// EntryTypes lists all variants in display order.
var EntryTypes = []EntryType{EntryCharge, EntryAdjustment, EntryPayment, EntryCredit, EntryReversal}

// Valid reports whether t is a known entry type.
func (t EntryType) Valid() bool {
	switch t {
	case EntryCharge, EntryPayment, EntryCredit, EntryAdjustment, EntryReversal:
		return true
	}
	return false
}

// ChargeLike reports whether entries of this type increase the amount owed.
func (t EntryType) ChargeLike() bool {
	return t == EntryCharge || t == EntryAdjustment
}

// PaymentLike reports whether entries of this type reduce the amount owed
// through money or goodwill received.
func (t EntryType) PaymentLike() bool {
	return t == EntryPayment || t == EntryCredit
}

// LedgerEntry is one immutable economic event for an account. Once posted
// only IsVoided may change, and only through the void operation which
// creates the compensating reversal in the same transaction.
//
// Amounts are signed relative to "amount owed": charges and debt-increasing
// adjustments are positive, payments and credits are negative.
type LedgerEntry struct {
	ID              string          `json:"id"`
	AccountID       string          `json:"account_id"`
	Type            EntryType       `json:"entry_type"`
	Amount          decimal.Decimal `json:"amount"`
	Description     string          `json:"description"`
	Category        string          `json:"category"`
	EffectiveDate   time.Time       `json:"effective_date"`
	CreatedBy       string          `json:"created_by"`
	CreatedAt       time.Time       `json:"created_at"`
	ReversedEntryID string          `json:"reversed_entry_id,omitempty"`
	IsVoided        bool            `json:"is_voided"`
	SourceRef       string          `json:"source_ref,omitempty"`
}

// NewLedgerEntry carries the caller-supplied fields of an entry to post.
// The store assigns ID and CreatedAt.
type NewLedgerEntry struct {
	AccountID       string
	Type            EntryType
	Amount          decimal.Decimal
	Description     string
	Category        string
	EffectiveDate   time.Time
	CreatedBy       string
	ReversedEntryID string
	SourceRef       string
}

// Validate rejects entries that are not economically meaningful: zero
// amounts, unset effective dates, missing accounts, unknown types.
func (e NewLedgerEntry) Validate() error {
	if e.AccountID == "" {
		return fmt.Errorf("%w: missing account id", ErrValidation)
	}
	if !e.Type.Valid() {
		return fmt.Errorf("%w: unknown entry type %q", ErrValidation, e.Type)
	}
	if e.Amount.IsZero() {
		return fmt.Errorf("%w: zero amount", ErrInvalidAmount)
	}
	if e.EffectiveDate.IsZero() {
		return fmt.Errorf("%w: missing effective date", ErrValidation)
	}
	return nil
}

// EntryFilter narrows a ledger listing. Zero values mean "no bound".
// Results are always ordered by effective date ascending, then id
// ascending, so pagination is deterministic.
type EntryFilter struct {
	From   time.Time
	To     time.Time
	Type   EntryType
	Limit  int
	Offset int
}
