package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"livery/internal/core"

	"github.com/shopspring/decimal"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(filepath.Join(t.TempDir(), "ledger.db"))
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

func postCharge(t *testing.T, repo *Repository, accountID, amount string, effective time.Time) core.LedgerEntry {
	t.Helper()
	entry, err := repo.PostEntry(context.Background(), core.NewLedgerEntry{
		AccountID:     accountID,
		Type:          core.EntryCharge,
		Amount:        amt(amount),
		Description:   "Full livery",
		Category:      "full_livery",
		EffectiveDate: effective,
		CreatedBy:     "test",
	})
	if err != nil {
		t.Fatalf("PostEntry() error = %v", err)
	}
	return entry
}

func TestPostAndGetEntry(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	posted := postCharge(t, repo, "acct-1", "450.00", date(2024, time.March, 1))
	if posted.ID == "" {
		t.Fatal("posted entry has no id")
	}
	if posted.CreatedAt.IsZero() {
		t.Fatal("posted entry has no created_at")
	}

	got, err := repo.GetEntry(ctx, posted.ID)
	if err != nil {
		t.Fatalf("GetEntry() error = %v", err)
	}
	if got.AccountID != "acct-1" || got.Type != core.EntryCharge {
		t.Errorf("got entry %+v", got)
	}
	if !got.Amount.Equal(amt("450")) {
		t.Errorf("amount = %s, want 450", got.Amount)
	}
	if !got.EffectiveDate.Equal(date(2024, time.March, 1)) {
		t.Errorf("effective date = %v", got.EffectiveDate)
	}
}

func TestGetEntryNotFound(t *testing.T) {
	repo := newTestRepo(t)
	if _, err := repo.GetEntry(context.Background(), "absent"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestPostEntryRejectsInvalid(t *testing.T) {
	repo := newTestRepo(t)
	_, err := repo.PostEntry(context.Background(), core.NewLedgerEntry{
		AccountID:     "acct-1",
		Type:          core.EntryCharge,
		Amount:        decimal.Zero,
		EffectiveDate: date(2024, time.March, 1),
	})
	if !errors.Is(err, core.ErrInvalidAmount) {
		t.Errorf("error = %v, want ErrInvalidAmount", err)
	}
}

func TestListEntriesFilterAndOrder(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	postCharge(t, repo, "acct-1", "100", date(2024, time.March, 5))
	postCharge(t, repo, "acct-1", "200", date(2024, time.January, 1))
	postCharge(t, repo, "acct-2", "999", date(2024, time.February, 1))
	if _, err := repo.PostEntry(ctx, core.NewLedgerEntry{
		AccountID:     "acct-1",
		Type:          core.EntryPayment,
		Amount:        amt("-50"),
		Description:   "Payment received",
		EffectiveDate: date(2024, time.February, 10),
		CreatedBy:     "test",
	}); err != nil {
		t.Fatal(err)
	}

	all, err := repo.ListEntries(ctx, "acct-1", core.EntryFilter{})
	if err != nil {
		t.Fatalf("ListEntries() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d entries, want 3", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].EffectiveDate.Before(all[i-1].EffectiveDate) {
			t.Error("entries not ordered by effective date")
		}
	}

	payments, err := repo.ListEntries(ctx, "acct-1", core.EntryFilter{Type: core.EntryPayment})
	if err != nil {
		t.Fatal(err)
	}
	if len(payments) != 1 || !payments[0].Amount.Equal(amt("-50")) {
		t.Errorf("payments = %+v", payments)
	}

	ranged, err := repo.ListEntries(ctx, "acct-1", core.EntryFilter{
		From: date(2024, time.February, 1),
		To:   date(2024, time.February, 28),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(ranged) != 1 {
		t.Errorf("ranged = %d entries, want 1", len(ranged))
	}

	paged, err := repo.ListEntries(ctx, "acct-1", core.EntryFilter{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(paged) != 2 {
		t.Errorf("paged = %d entries, want 2", len(paged))
	}
	if paged[0].ID != all[1].ID {
		t.Error("offset did not skip the first entry")
	}
}

func TestBalanceIsSumOfEntries(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	balance, err := repo.Balance(ctx, "acct-1")
	if err != nil {
		t.Fatal(err)
	}
	if !balance.IsZero() {
		t.Errorf("empty account balance = %s, want 0", balance)
	}

	postCharge(t, repo, "acct-1", "450.00", date(2024, time.March, 1))
	postCharge(t, repo, "acct-1", "35.50", date(2024, time.March, 12))
	if _, err := repo.PostEntry(ctx, core.NewLedgerEntry{
		AccountID:     "acct-1",
		Type:          core.EntryPayment,
		Amount:        amt("-200"),
		Description:   "Payment received",
		EffectiveDate: date(2024, time.March, 20),
		CreatedBy:     "test",
	}); err != nil {
		t.Fatal(err)
	}

	balance, err = repo.Balance(ctx, "acct-1")
	if err != nil {
		t.Fatal(err)
	}
	if !balance.Equal(amt("285.50")) {
		t.Errorf("balance = %s, want 285.50", balance)
	}

	opening, err := repo.BalanceAsOf(ctx, "acct-1", date(2024, time.March, 12))
	if err != nil {
		t.Fatal(err)
	}
	if !opening.Equal(amt("450")) {
		t.Errorf("balance as of Mar 12 = %s, want 450 (strictly before)", opening)
	}
}

func TestVoidEntry(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	original := postCharge(t, repo, "acct-1", "450.00", date(2024, time.March, 1))

	now := date(2024, time.March, 15)
	reversal, err := repo.VoidEntry(ctx, original.ID, "duplicate charge", "admin", now)
	if err != nil {
		t.Fatalf("VoidEntry() error = %v", err)
	}

	if !reversal.Amount.Equal(amt("-450")) {
		t.Errorf("reversal amount = %s, want -450", reversal.Amount)
	}
	if reversal.Type != core.EntryReversal {
		t.Errorf("reversal type = %s", reversal.Type)
	}
	if reversal.ReversedEntryID != original.ID {
		t.Errorf("ReversedEntryID = %q, want %q", reversal.ReversedEntryID, original.ID)
	}
	if !reversal.EffectiveDate.Equal(now) {
		t.Errorf("reversal effective date = %v, want void date, not original date", reversal.EffectiveDate)
	}

	// The voided pair nets to zero: balance reads as if the charge never
	// happened, while both entries stay in history.
	after, err := repo.Balance(ctx, "acct-1")
	if err != nil {
		t.Fatal(err)
	}
	if !after.IsZero() {
		t.Errorf("balance after void = %s, want 0", after)
	}

	got, err := repo.GetEntry(ctx, original.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.IsVoided {
		t.Error("original not marked voided")
	}

	// Second void must fail and add nothing.
	if _, err := repo.VoidEntry(ctx, original.ID, "again", "admin", now); !errors.Is(err, core.ErrAlreadyVoided) {
		t.Errorf("second void error = %v, want ErrAlreadyVoided", err)
	}
	entries, _ := repo.ListEntries(ctx, "acct-1", core.EntryFilter{})
	if len(entries) != 2 {
		t.Errorf("entries after failed re-void = %d, want 2", len(entries))
	}
}

func TestVoidEntryEdgeCases(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := date(2024, time.March, 15)

	if _, err := repo.VoidEntry(ctx, "absent", "reason", "admin", now); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("void missing entry error = %v, want ErrNotFound", err)
	}

	original := postCharge(t, repo, "acct-1", "450.00", date(2024, time.March, 1))
	reversal, err := repo.VoidEntry(ctx, original.ID, "wrong amount", "admin", now)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := repo.VoidEntry(ctx, reversal.ID, "undo", "admin", now); !errors.Is(err, core.ErrInvalidState) {
		t.Errorf("void reversal error = %v, want ErrInvalidState", err)
	}
}

func TestPostBillingChargeIdempotency(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	rec := core.BillingRunRecord{Year: 2024, Month: time.March, AccountID: "acct-1", AgreementID: "agr-1"}
	ne := core.NewLedgerEntry{
		AccountID:     "acct-1",
		Type:          core.EntryCharge,
		Amount:        amt("450"),
		Description:   "Full livery (March 2024)",
		Category:      "full_livery",
		EffectiveDate: date(2024, time.March, 1),
		CreatedBy:     "billing-run",
		SourceRef:     core.BillingChargeRef(2024, time.March, "agr-1"),
	}

	if _, err := repo.PostBillingCharge(ctx, rec, ne); err != nil {
		t.Fatalf("first PostBillingCharge() error = %v", err)
	}

	if _, err := repo.PostBillingCharge(ctx, rec, ne); !errors.Is(err, core.ErrConflict) {
		t.Errorf("second PostBillingCharge() error = %v, want ErrConflict", err)
	}

	// The failed attempt must leave no charge behind.
	entries, err := repo.ListEntries(ctx, "acct-1", core.EntryFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("entries = %d, want exactly 1 after duplicate run", len(entries))
	}

	billed, err := repo.BilledAgreements(ctx, 2024, time.March)
	if err != nil {
		t.Fatal(err)
	}
	if !billed[rec] {
		t.Error("billed set missing the posted record")
	}

	// A different period is a fresh idempotency key.
	rec2 := rec
	rec2.Month = time.April
	ne2 := ne
	ne2.EffectiveDate = date(2024, time.April, 1)
	ne2.SourceRef = core.BillingChargeRef(2024, time.April, "agr-1")
	if _, err := repo.PostBillingCharge(ctx, rec2, ne2); err != nil {
		t.Errorf("next period PostBillingCharge() error = %v", err)
	}
}

func TestInvoiceLifecycle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	inv := core.Invoice{
		ID:          "inv-1",
		AccountID:   "acct-1",
		Status:      core.InvoiceDraft,
		PeriodStart: date(2024, time.March, 1),
		PeriodEnd:   date(2024, time.March, 31),
		LineItems: []core.InvoiceLineItem{
			{Description: "Full livery", Category: "full_livery", Quantity: 1, UnitPrice: amt("450"), Amount: amt("450")},
			{Description: "Farrier visit", Category: "farrier", Quantity: 2, UnitPrice: amt("40"), Amount: amt("80")},
		},
		Subtotal: amt("530"),
	}
	if err := repo.CreateInvoice(ctx, inv); err != nil {
		t.Fatalf("CreateInvoice() error = %v", err)
	}

	got, err := repo.GetInvoice(ctx, "inv-1")
	if err != nil {
		t.Fatalf("GetInvoice() error = %v", err)
	}
	if len(got.LineItems) != 2 {
		t.Fatalf("line items = %d, want 2", len(got.LineItems))
	}
	if got.LineItems[1].Quantity != 2 || !got.LineItems[1].Amount.Equal(amt("80")) {
		t.Errorf("second line item = %+v", got.LineItems[1])
	}
	if !got.Subtotal.Equal(amt("530")) {
		t.Errorf("subtotal = %s, want 530", got.Subtotal)
	}

	issueDate := date(2024, time.April, 1)
	dueDate := date(2024, time.April, 15)
	if err := repo.MarkInvoiceIssued(ctx, "inv-1", issueDate, dueDate); err != nil {
		t.Fatalf("MarkInvoiceIssued() error = %v", err)
	}

	// Double issue must fail: line items are frozen at first issue.
	if err := repo.MarkInvoiceIssued(ctx, "inv-1", issueDate, dueDate); !errors.Is(err, core.ErrInvalidState) {
		t.Errorf("second issue error = %v, want ErrInvalidState", err)
	}

	latest, err := repo.LatestIssuedInvoice(ctx, "acct-1")
	if err != nil {
		t.Fatalf("LatestIssuedInvoice() error = %v", err)
	}
	if latest.ID != "inv-1" {
		t.Errorf("latest issued = %s", latest.ID)
	}

	if err := repo.MarkInvoicePaid(ctx, "inv-1", date(2024, time.April, 10)); err != nil {
		t.Fatalf("MarkInvoicePaid() error = %v", err)
	}

	// Paid invoices cannot be cancelled.
	if err := repo.MarkInvoiceCancelled(ctx, "inv-1"); !errors.Is(err, core.ErrInvalidState) {
		t.Errorf("cancel paid error = %v, want ErrInvalidState", err)
	}
}

func TestMarkInvoicePaidRequiresIssued(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	inv := core.Invoice{
		ID:          "inv-1",
		AccountID:   "acct-1",
		Status:      core.InvoiceDraft,
		PeriodStart: date(2024, time.March, 1),
		PeriodEnd:   date(2024, time.March, 31),
		Subtotal:    amt("100"),
	}
	if err := repo.CreateInvoice(ctx, inv); err != nil {
		t.Fatal(err)
	}

	if err := repo.MarkInvoicePaid(ctx, "inv-1", date(2024, time.April, 1)); !errors.Is(err, core.ErrInvalidState) {
		t.Errorf("pay draft error = %v, want ErrInvalidState", err)
	}

	if err := repo.MarkInvoiceCancelled(ctx, "inv-1"); err != nil {
		t.Errorf("cancel draft error = %v", err)
	}
}

func TestLatestIssuedInvoiceNotFound(t *testing.T) {
	repo := newTestRepo(t)
	if _, err := repo.LatestIssuedInvoice(context.Background(), "acct-1"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestPaymentsForInvoice(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	ref := core.InvoiceSourceRef("inv-1")
	for _, amount := range []string{"-100", "-50"} {
		if _, err := repo.PostEntry(ctx, core.NewLedgerEntry{
			AccountID:     "acct-1",
			Type:          core.EntryPayment,
			Amount:        amt(amount),
			Description:   "Payment received",
			EffectiveDate: date(2024, time.April, 2),
			CreatedBy:     "test",
			SourceRef:     ref,
		}); err != nil {
			t.Fatal(err)
		}
	}
	// A charge with the same ref must not count as a payment.
	if _, err := repo.PostEntry(ctx, core.NewLedgerEntry{
		AccountID:     "acct-1",
		Type:          core.EntryCharge,
		Amount:        amt("10"),
		Description:   "Late fee",
		EffectiveDate: date(2024, time.April, 3),
		CreatedBy:     "test",
		SourceRef:     ref,
	}); err != nil {
		t.Fatal(err)
	}

	got, err := repo.PaymentsForInvoice(ctx, "inv-1")
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(amt("-150")) {
		t.Errorf("PaymentsForInvoice = %s, want -150", got)
	}
}

func TestAccountIDs(t *testing.T) {
	repo := newTestRepo(t)
	postCharge(t, repo, "acct-b", "10", date(2024, time.March, 1))
	postCharge(t, repo, "acct-a", "10", date(2024, time.March, 1))
	postCharge(t, repo, "acct-a", "10", date(2024, time.April, 1))

	ids, err := repo.AccountIDs(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 || ids[0] != "acct-a" || ids[1] != "acct-b" {
		t.Errorf("AccountIDs = %v", ids)
	}
}
