// Package services provides the business operations of the billing core:
// posting and voiding ledger entries, the monthly billing run, invoice
// lifecycle management and read-side reporting.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"livery/internal/core"
	"livery/internal/storage"

	"github.com/shopspring/decimal"
)

// LedgerService exposes the ledger's operation surface: post entries, void
// them via compensating reversals, list and sum.
type LedgerService struct {
	repo *storage.Repository
}

func NewLedgerService(repo *storage.Repository) *LedgerService {
	return &LedgerService{repo: repo}
}

// Post stores a new ledger entry. Sign convention: charges and
// debt-increasing adjustments are positive, payments and credits negative.
func (s *LedgerService) Post(ctx context.Context, ne core.NewLedgerEntry) (core.LedgerEntry, error) {
	if err := checkSign(ne.Type, ne.Amount); err != nil {
		return core.LedgerEntry{}, err
	}
	entry, err := s.repo.PostEntry(ctx, ne)
	if err != nil {
		return core.LedgerEntry{}, fmt.Errorf("post entry: %w", err)
	}
	return entry, nil
}

// checkSign rejects entries whose sign contradicts their type. Adjustments
// may go either way; reversals carry the negation of their original.
func checkSign(t core.EntryType, amount decimal.Decimal) error {
	switch t {
	case core.EntryCharge:
		if amount.IsNegative() {
			return fmt.Errorf("%w: charge amount must be positive", core.ErrInvalidAmount)
		}
	case core.EntryPayment, core.EntryCredit:
		if amount.IsPositive() {
			return fmt.Errorf("%w: %s amount must be negative", core.ErrInvalidAmount, t)
		}
	}
	return nil
}

// Void creates the compensating reversal for an entry. History is never
// deleted or edited: the correction is a new, attributable entry and the
// balance is untouched because the pair nets to zero.
func (s *LedgerService) Void(ctx context.Context, entryID, reason, actor string) (core.LedgerEntry, error) {
	reversal, err := s.repo.VoidEntry(ctx, entryID, reason, actor, today())
	if err != nil {
		return core.LedgerEntry{}, fmt.Errorf("void entry: %w", err)
	}
	return reversal, nil
}

// Get loads one entry.
func (s *LedgerService) Get(ctx context.Context, entryID string) (core.LedgerEntry, error) {
	return s.repo.GetEntry(ctx, entryID)
}

// List returns an account's entries, filtered and paginated.
func (s *LedgerService) List(ctx context.Context, accountID string, f core.EntryFilter) ([]core.LedgerEntry, error) {
	return s.repo.ListEntries(ctx, accountID, f)
}

// Balance derives the account balance from the entry log on every call.
// There is no stored running total to drift out of sync.
func (s *LedgerService) Balance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	return s.repo.Balance(ctx, accountID)
}

// BalanceAsOf returns the balance before a given date, used as the
// opening balance of statements.
func (s *LedgerService) BalanceAsOf(ctx context.Context, accountID string, before time.Time) (decimal.Decimal, error) {
	return s.repo.BalanceAsOf(ctx, accountID, before)
}

// today returns the current date truncated to midnight UTC. Effective
// dates are calendar dates, not instants.
func today() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

func logAccountError(ctx context.Context, msg, accountID string, err error) {
	slog.ErrorContext(ctx, msg, "account_id", accountID, "error", err)
}
