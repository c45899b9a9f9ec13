package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"livery/internal/core"
	"livery/internal/storage"

	"github.com/shopspring/decimal"
)

func newTestRepo(t *testing.T) *storage.Repository {
	t.Helper()
	repo, err := storage.NewRepository(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("NewRepository() error = %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func amt(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestPostEnforcesSignConvention(t *testing.T) {
	svc := NewLedgerService(newTestRepo(t))
	ctx := context.Background()

	tests := []struct {
		name      string
		entryType core.EntryType
		amount    string
		wantErr   bool
	}{
		{"positive charge", core.EntryCharge, "450", false},
		{"negative charge", core.EntryCharge, "-450", true},
		{"negative payment", core.EntryPayment, "-80", false},
		{"positive payment", core.EntryPayment, "80", true},
		{"positive credit", core.EntryCredit, "25", true},
		{"negative credit", core.EntryCredit, "-25", false},
		{"positive adjustment", core.EntryAdjustment, "10", false},
		{"negative adjustment", core.EntryAdjustment, "-10", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Post(ctx, core.NewLedgerEntry{
				AccountID:     "acct-1",
				Type:          tt.entryType,
				Amount:        amt(tt.amount),
				Description:   "test entry",
				EffectiveDate: date(2024, time.March, 1),
				CreatedBy:     "test",
			})
			if tt.wantErr && !errors.Is(err, core.ErrInvalidAmount) {
				t.Errorf("error = %v, want ErrInvalidAmount", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error = %v", err)
			}
		})
	}
}

func TestBalanceEqualsEntrySum(t *testing.T) {
	svc := NewLedgerService(newTestRepo(t))
	ctx := context.Background()

	amounts := []struct {
		t core.EntryType
		a string
	}{
		{core.EntryCharge, "450.00"},
		{core.EntryCharge, "35.10"},
		{core.EntryPayment, "-200.00"},
		{core.EntryCredit, "-15.10"},
	}
	expected := decimal.Zero
	for _, x := range amounts {
		if _, err := svc.Post(ctx, core.NewLedgerEntry{
			AccountID:     "acct-1",
			Type:          x.t,
			Amount:        amt(x.a),
			Description:   "entry",
			EffectiveDate: date(2024, time.March, 1),
			CreatedBy:     "test",
		}); err != nil {
			t.Fatal(err)
		}
		expected = expected.Add(amt(x.a))
	}

	balance, err := svc.Balance(ctx, "acct-1")
	if err != nil {
		t.Fatal(err)
	}
	if !balance.Equal(expected) {
		t.Errorf("balance = %s, want %s", balance, expected)
	}
}

func TestVoidThroughService(t *testing.T) {
	svc := NewLedgerService(newTestRepo(t))
	ctx := context.Background()

	entry, err := svc.Post(ctx, core.NewLedgerEntry{
		AccountID:     "acct-1",
		Type:          core.EntryCharge,
		Amount:        amt("450"),
		Description:   "Full livery",
		EffectiveDate: date(2024, time.March, 1),
		CreatedBy:     "test",
	})
	if err != nil {
		t.Fatal(err)
	}

	reversal, err := svc.Void(ctx, entry.ID, "posted twice", "admin")
	if err != nil {
		t.Fatalf("Void() error = %v", err)
	}
	if !reversal.Amount.Equal(amt("-450")) {
		t.Errorf("reversal amount = %s", reversal.Amount)
	}
	if reversal.CreatedBy != "admin" {
		t.Errorf("reversal actor = %q", reversal.CreatedBy)
	}

	if _, err := svc.Void(ctx, entry.ID, "again", "admin"); !errors.Is(err, core.ErrAlreadyVoided) {
		t.Errorf("double void error = %v, want ErrAlreadyVoided", err)
	}
}
