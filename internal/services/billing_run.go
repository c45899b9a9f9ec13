package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"livery/internal/amqp"
	"livery/internal/core"
	"livery/internal/storage"

	"github.com/shopspring/decimal"
)

// AgreementSource supplies the billing agreements to consider for a run.
// Agreements are an external collaborator's data and read-only here.
type AgreementSource interface {
	Agreements(ctx context.Context) ([]core.BillingAgreement, error)
}

// ProposedCharge is one charge a billing run would (preview) or did (run)
// post.
type ProposedCharge struct {
	AccountID   string          `json:"account_id"`
	AgreementID string          `json:"agreement_id"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
}

// ChargeError records one agreement's posting failure inside a run. The
// run keeps going; callers must inspect this list even on an overall
// success return.
type ChargeError struct {
	AccountID   string `json:"account_id"`
	AgreementID string `json:"agreement_id"`
	Err         string `json:"error"`
}

// BillingRunResult is the outcome of a preview or run: the charges plus
// counts and the per-account error list. It is a batch of independent
// sub-transactions, never one atomic operation.
type BillingRunResult struct {
	Year                 int              `json:"year"`
	Month                time.Month       `json:"month"`
	Charges              []ProposedCharge `json:"charges"`
	TotalAmount          decimal.Decimal  `json:"total_amount"`
	AccountsCharged      int              `json:"accounts_charged"`
	SkippedAlreadyBilled int              `json:"skipped_already_billed"`
	SkippedInactive      int              `json:"skipped_no_active_agreement"`
	Errors               []ChargeError    `json:"errors,omitempty"`
}

// BillingRunner converts recurring agreements into ledger charges, exactly
// once per agreement and calendar period.
type BillingRunner struct {
	repo       *storage.Repository
	agreements AgreementSource
	events     *amqp.Client
}

func NewBillingRunner(repo *storage.Repository, agreements AgreementSource, events *amqp.Client) *BillingRunner {
	return &BillingRunner{repo: repo, agreements: agreements, events: events}
}

// Preview computes the charges a run would post, without persisting
// anything. Given no intervening state change, Run posts exactly this set.
func (b *BillingRunner) Preview(ctx context.Context, year int, month time.Month) (BillingRunResult, error) {
	result, _, err := b.plan(ctx, year, month)
	return result, err
}

// plan computes the proposed charges and the already-billed/inactive
// counts shared by Preview and Run.
func (b *BillingRunner) plan(ctx context.Context, year int, month time.Month) (BillingRunResult, []core.BillingAgreement, error) {
	result := BillingRunResult{Year: year, Month: month, TotalAmount: decimal.Zero}

	if err := validatePeriod(year, month); err != nil {
		return result, nil, err
	}

	agreements, err := b.agreements.Agreements(ctx)
	if err != nil {
		return result, nil, fmt.Errorf("load billing agreements: %w", err)
	}

	billed, err := b.repo.BilledAgreements(ctx, year, month)
	if err != nil {
		return result, nil, fmt.Errorf("load billing run records: %w", err)
	}

	// Deterministic order: preview output and run posting order match.
	sort.Slice(agreements, func(i, j int) bool {
		if agreements[i].AccountID != agreements[j].AccountID {
			return agreements[i].AccountID < agreements[j].AccountID
		}
		return agreements[i].ID < agreements[j].ID
	})

	var due []core.BillingAgreement
	for _, a := range agreements {
		if !a.ActiveIn(year, month) {
			result.SkippedInactive++
			continue
		}
		rec := core.BillingRunRecord{Year: year, Month: month, AccountID: a.AccountID, AgreementID: a.ID}
		if billed[rec] {
			result.SkippedAlreadyBilled++
			continue
		}
		due = append(due, a)
		result.Charges = append(result.Charges, ProposedCharge{
			AccountID:   a.AccountID,
			AgreementID: a.ID,
			Category:    a.Category,
			Description: chargeDescription(a, year, month),
			Amount:      a.Amount,
		})
		result.TotalAmount = result.TotalAmount.Add(a.Amount)
		result.AccountsCharged++
	}

	return result, due, nil
}

// Run posts the planned charges, each in its own transaction together
// with its billing run record. A failure for one account is collected in
// the result and does not abort or roll back the others: one bad account
// must not block billing for the whole yard.
func (b *BillingRunner) Run(ctx context.Context, year int, month time.Month) (BillingRunResult, error) {
	plan, due, err := b.plan(ctx, year, month)
	if err != nil {
		return plan, err
	}

	slog.InfoContext(ctx, "Billing run started",
		"year", year,
		"month", int(month),
		"charges_due", len(due),
		"skipped_already_billed", plan.SkippedAlreadyBilled)

	result := BillingRunResult{
		Year:                 year,
		Month:                month,
		TotalAmount:          decimal.Zero,
		SkippedAlreadyBilled: plan.SkippedAlreadyBilled,
		SkippedInactive:      plan.SkippedInactive,
	}

	effective := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	for _, a := range due {
		rec := core.BillingRunRecord{Year: year, Month: month, AccountID: a.AccountID, AgreementID: a.ID}
		entry := core.NewLedgerEntry{
			AccountID:     a.AccountID,
			Type:          core.EntryCharge,
			Amount:        a.Amount,
			Description:   chargeDescription(a, year, month),
			Category:      a.Category,
			EffectiveDate: effective,
			CreatedBy:     "billing-run",
			SourceRef:     core.BillingChargeRef(year, month, a.ID),
		}

		posted, err := b.repo.PostBillingCharge(ctx, rec, entry)
		if err != nil {
			// A unique-constraint conflict means another run got here
			// first; the period is covered either way.
			if isConflict(err) {
				result.SkippedAlreadyBilled++
				continue
			}
			logAccountError(ctx, "Billing charge failed", a.AccountID, err)
			result.Errors = append(result.Errors, ChargeError{
				AccountID:   a.AccountID,
				AgreementID: a.ID,
				Err:         err.Error(),
			})
			continue
		}

		result.Charges = append(result.Charges, ProposedCharge{
			AccountID:   a.AccountID,
			AgreementID: a.ID,
			Category:    a.Category,
			Description: posted.Description,
			Amount:      posted.Amount,
		})
		result.TotalAmount = result.TotalAmount.Add(posted.Amount)
		result.AccountsCharged++
	}

	slog.InfoContext(ctx, "Billing run complete",
		"year", year,
		"month", int(month),
		"accounts_charged", result.AccountsCharged,
		"total_amount", core.FormatAmount(result.TotalAmount),
		"errors", len(result.Errors))

	b.publishRunCompleted(ctx, result)
	return result, nil
}

func (b *BillingRunner) publishRunCompleted(ctx context.Context, result BillingRunResult) {
	if b.events == nil {
		return
	}
	msg := amqp.NewBillingRunCompletedMessage(result.Year, int(result.Month),
		result.AccountsCharged, len(result.Errors), core.FormatAmount(result.TotalAmount))
	if err := b.events.PublishBillingRunCompleted(ctx, msg); err != nil {
		// The run itself succeeded; a lost notification is not a reason
		// to fail it.
		slog.ErrorContext(ctx, "Failed to publish billing run message",
			"year", result.Year, "month", int(result.Month), "error", err)
	}
}

func chargeDescription(a core.BillingAgreement, year int, month time.Month) string {
	desc := a.Description
	if desc == "" {
		desc = a.Category
	}
	return fmt.Sprintf("%s (%s %d)", desc, month.String(), year)
}

func validatePeriod(year int, month time.Month) error {
	if year < 2000 || year > 2200 {
		return fmt.Errorf("%w: year %d out of range", core.ErrValidation, year)
	}
	if month < time.January || month > time.December {
		return fmt.Errorf("%w: month %d out of range", core.ErrValidation, int(month))
	}
	return nil
}

func isConflict(err error) bool {
	return err != nil && errors.Is(err, core.ErrConflict)
}
