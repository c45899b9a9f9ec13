// Package agreements supplies billing agreements to the billing run. The
// canonical source in this deployment is a JSON file exported by the
// account management system; a memory source backs tests.
package agreements

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"livery/internal/core"
)

const dateLayout = "2006-01-02"

// fileAgreement is the on-disk shape. Dates are calendar dates; end_date
// may be absent for open-ended agreements. Amounts are decimal strings.
type fileAgreement struct {
	ID          string `json:"id"`
	AccountID   string `json:"account_id"`
	Amount      string `json:"amount"`
	Category    string `json:"category"`
	Description string `json:"description"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date,omitempty"`
}

// FileSource reads agreements from a JSON file on every call, so edits to
// the file take effect on the next billing run without a restart.
type FileSource struct {
	path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (s *FileSource) Agreements(ctx context.Context) ([]core.BillingAgreement, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read agreements file: %w", err)
	}
	return parse(data)
}

func parse(data []byte) ([]core.BillingAgreement, error) {
	var raw []fileAgreement
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse agreements: %w", err)
	}

	agreements := make([]core.BillingAgreement, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for i, fa := range raw {
		a, err := fa.toDomain()
		if err != nil {
			return nil, fmt.Errorf("agreement %d (%s): %w", i, fa.ID, err)
		}
		if seen[a.ID] {
			return nil, fmt.Errorf("agreement %d: %w: duplicate id %s", i, core.ErrValidation, a.ID)
		}
		seen[a.ID] = true
		agreements = append(agreements, a)
	}
	return agreements, nil
}

func (fa fileAgreement) toDomain() (core.BillingAgreement, error) {
	if fa.ID == "" {
		return core.BillingAgreement{}, fmt.Errorf("%w: missing id", core.ErrValidation)
	}
	if fa.AccountID == "" {
		return core.BillingAgreement{}, fmt.Errorf("%w: missing account id", core.ErrValidation)
	}

	amount, err := core.ParseAmount(fa.Amount)
	if err != nil {
		return core.BillingAgreement{}, err
	}
	if !amount.IsPositive() {
		return core.BillingAgreement{}, fmt.Errorf("%w: agreement amount must be positive", core.ErrInvalidAmount)
	}

	start, err := time.Parse(dateLayout, fa.StartDate)
	if err != nil {
		return core.BillingAgreement{}, fmt.Errorf("%w: bad start date %q", core.ErrValidation, fa.StartDate)
	}

	var end time.Time
	if fa.EndDate != "" {
		end, err = time.Parse(dateLayout, fa.EndDate)
		if err != nil {
			return core.BillingAgreement{}, fmt.Errorf("%w: bad end date %q", core.ErrValidation, fa.EndDate)
		}
		if end.Before(start) {
			return core.BillingAgreement{}, fmt.Errorf("%w: end date before start date", core.ErrValidation)
		}
	}

	return core.BillingAgreement{
		ID:          fa.ID,
		AccountID:   fa.AccountID,
		Amount:      amount,
		Category:    fa.Category,
		Description: fa.Description,
		StartDate:   start,
		EndDate:     end,
	}, nil
}
