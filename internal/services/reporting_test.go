package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"livery/internal/core"

	"github.com/shopspring/decimal"
)

func postTyped(t *testing.T, svc *LedgerService, accountID string, entryType core.EntryType, amount string, effective time.Time) core.LedgerEntry {
	t.Helper()
	entry, err := svc.Post(context.Background(), core.NewLedgerEntry{
		AccountID:     accountID,
		Type:          entryType,
		Amount:        amt(amount),
		Description:   "test entry",
		EffectiveDate: effective,
		CreatedBy:     "test",
	})
	if err != nil {
		t.Fatal(err)
	}
	return entry
}

func TestAgedDebtBuckets(t *testing.T) {
	repo := newTestRepo(t)
	ledger := NewLedgerService(repo)
	reports := NewReportingService(repo)
	ctx := context.Background()

	asOf := date(2024, time.April, 15)

	// One charge per bucket: Jan 10 is three whole months old on Apr 15,
	// Feb 10 two, Mar 10 one, Apr 10 current.
	postTyped(t, ledger, "acct-1", core.EntryCharge, "100", date(2024, time.January, 10))
	postTyped(t, ledger, "acct-1", core.EntryCharge, "200", date(2024, time.February, 10))
	postTyped(t, ledger, "acct-1", core.EntryCharge, "300", date(2024, time.March, 10))
	postTyped(t, ledger, "acct-1", core.EntryCharge, "400", date(2024, time.April, 10))

	report, err := reports.AgedDebt(ctx, asOf)
	if err != nil {
		t.Fatalf("AgedDebt() error = %v", err)
	}
	if len(report.Rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(report.Rows))
	}
	row := report.Rows[0]
	for _, check := range []struct {
		name string
		got  string
		want string
	}{
		{"current", row.Current.String(), "400"},
		{"month_1", row.Month1.String(), "300"},
		{"month_2", row.Month2.String(), "200"},
		{"month_3_plus", row.Month3Plus.String(), "100"},
		{"total", row.Total.String(), "1000"},
	} {
		if check.got != check.want {
			t.Errorf("%s = %s, want %s", check.name, check.got, check.want)
		}
	}
	if !report.Totals.Total.Equal(row.Total) {
		t.Errorf("totals row = %s, want %s", report.Totals.Total, row.Total)
	}
}

func TestAgedDebtAllocatesPaymentsOldestFirst(t *testing.T) {
	repo := newTestRepo(t)
	ledger := NewLedgerService(repo)
	reports := NewReportingService(repo)

	// The payment extinguishes the January charge and half of February's,
	// so nothing lands in month_3_plus.
	postTyped(t, ledger, "acct-1", core.EntryCharge, "100", date(2024, time.January, 10))
	postTyped(t, ledger, "acct-1", core.EntryCharge, "200", date(2024, time.February, 10))
	postTyped(t, ledger, "acct-1", core.EntryPayment, "-200", date(2024, time.March, 1))

	report, err := reports.AgedDebt(context.Background(), date(2024, time.April, 15))
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(report.Rows))
	}
	row := report.Rows[0]
	if !row.Month3Plus.IsZero() {
		t.Errorf("month_3_plus = %s, want 0 (oldest charge fully paid)", row.Month3Plus)
	}
	if !row.Month2.Equal(amt("100")) {
		t.Errorf("month_2 = %s, want 100", row.Month2)
	}
	if !row.Total.Equal(amt("100")) {
		t.Errorf("total = %s, want 100", row.Total)
	}
	if !row.LastPaymentDate.Equal(date(2024, time.March, 1)) {
		t.Errorf("last payment date = %v", row.LastPaymentDate)
	}
}

func TestAgedDebtOmitsSettledAndCreditAccounts(t *testing.T) {
	repo := newTestRepo(t)
	ledger := NewLedgerService(repo)
	reports := NewReportingService(repo)

	// Settled account.
	postTyped(t, ledger, "acct-paid", core.EntryCharge, "100", date(2024, time.January, 10))
	postTyped(t, ledger, "acct-paid", core.EntryPayment, "-100", date(2024, time.February, 1))
	// Account in credit.
	postTyped(t, ledger, "acct-credit", core.EntryPayment, "-50", date(2024, time.February, 1))
	// Account with actual debt.
	postTyped(t, ledger, "acct-owing", core.EntryCharge, "75", date(2024, time.March, 10))

	report, err := reports.AgedDebt(context.Background(), date(2024, time.April, 15))
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Rows) != 1 {
		t.Fatalf("rows = %d, want only the owing account", len(report.Rows))
	}
	if report.Rows[0].AccountID != "acct-owing" {
		t.Errorf("row account = %s", report.Rows[0].AccountID)
	}
}

func TestAgedDebtIgnoresEntriesAfterAsOf(t *testing.T) {
	repo := newTestRepo(t)
	ledger := NewLedgerService(repo)
	reports := NewReportingService(repo)

	postTyped(t, ledger, "acct-1", core.EntryCharge, "100", date(2024, time.March, 10))
	postTyped(t, ledger, "acct-1", core.EntryPayment, "-100", date(2024, time.May, 1))

	report, err := reports.AgedDebt(context.Background(), date(2024, time.April, 15))
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Rows) != 1 {
		t.Fatalf("rows = %d, want 1 (May payment is invisible as of April)", len(report.Rows))
	}
	if !report.Rows[0].Total.Equal(amt("100")) {
		t.Errorf("total = %s, want 100", report.Rows[0].Total)
	}
}

func TestAgedDebtVoidedChargeNetsToZero(t *testing.T) {
	repo := newTestRepo(t)
	ledger := NewLedgerService(repo)
	reports := NewReportingService(repo)
	ctx := context.Background()

	entry := postTyped(t, ledger, "acct-1", core.EntryCharge, "100", date(2024, time.January, 10))
	if _, err := ledger.Void(ctx, entry.ID, "posted in error", "admin"); err != nil {
		t.Fatal(err)
	}

	// As of today the reversal is visible and cancels the charge.
	report, err := reports.AgedDebt(ctx, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Rows) != 0 {
		t.Errorf("rows = %d, want none (charge and reversal cancel)", len(report.Rows))
	}
}

func TestIncomeSummary(t *testing.T) {
	repo := newTestRepo(t)
	ledger := NewLedgerService(repo)
	reports := NewReportingService(repo)
	ctx := context.Background()

	postTyped(t, ledger, "acct-1", core.EntryCharge, "450", date(2024, time.March, 1))
	postTyped(t, ledger, "acct-2", core.EntryCharge, "120", date(2024, time.March, 5))
	postTyped(t, ledger, "acct-1", core.EntryPayment, "-200", date(2024, time.March, 20))
	postTyped(t, ledger, "acct-1", core.EntryCharge, "450", date(2024, time.April, 1))
	postTyped(t, ledger, "acct-1", core.EntryCredit, "-25", date(2024, time.April, 2))

	report, err := reports.IncomeSummary(ctx, date(2024, time.March, 1), date(2024, time.April, 30))
	if err != nil {
		t.Fatalf("IncomeSummary() error = %v", err)
	}

	if !report.TotalIncome.Equal(amt("1020")) {
		t.Errorf("total income = %s, want 1020", report.TotalIncome)
	}
	if !report.TotalPayments.Equal(amt("-225")) {
		t.Errorf("total payments = %s, want -225", report.TotalPayments)
	}

	// ByType follows the canonical entry type order.
	var typeOrder []core.EntryType
	for _, ts := range report.ByType {
		typeOrder = append(typeOrder, ts.Type)
	}
	var chargeSummary *core.TypeSummary
	for i := range report.ByType {
		if report.ByType[i].Type == core.EntryCharge {
			chargeSummary = &report.ByType[i]
		}
	}
	if chargeSummary == nil {
		t.Fatal("no charge summary in by_type")
	}
	if chargeSummary.Count != 3 {
		t.Errorf("charge count = %d, want 3", chargeSummary.Count)
	}
	if !chargeSummary.Amount.Equal(amt("1020")) {
		t.Errorf("charge amount = %s, want 1020", chargeSummary.Amount)
	}

	canonical := map[core.EntryType]int{}
	for i, et := range core.EntryTypes {
		canonical[et] = i
	}
	for i := 1; i < len(typeOrder); i++ {
		if canonical[typeOrder[i-1]] > canonical[typeOrder[i]] {
			t.Errorf("by_type out of canonical order: %v", typeOrder)
		}
	}

	// ByMonth is chronological.
	if len(report.ByMonth) != 2 {
		t.Fatalf("by_month = %d months, want 2", len(report.ByMonth))
	}
	if report.ByMonth[0].Month != time.March || report.ByMonth[1].Month != time.April {
		t.Errorf("months out of order: %v then %v", report.ByMonth[0].Month, report.ByMonth[1].Month)
	}
	if !report.ByMonth[0].Total.Equal(amt("370")) {
		t.Errorf("march total = %s, want 370", report.ByMonth[0].Total)
	}
	if !report.ByMonth[1].Total.Equal(amt("425")) {
		t.Errorf("april total = %s, want 425", report.ByMonth[1].Total)
	}
}

func TestIncomeSummaryReconcilesWithLedgerAfterVoid(t *testing.T) {
	repo := newTestRepo(t)
	ledger := NewLedgerService(repo)
	reports := NewReportingService(repo)
	ctx := context.Background()

	postTyped(t, ledger, "acct-1", core.EntryCharge, "450", date(2024, time.March, 1))
	voided := postTyped(t, ledger, "acct-1", core.EntryCharge, "100", date(2024, time.March, 10))
	if _, err := ledger.Void(ctx, voided.ID, "posted in error", "admin"); err != nil {
		t.Fatal(err)
	}

	// Range through today so both the voided charge and its reversal
	// (dated at the void) are in scope.
	report, err := reports.IncomeSummary(ctx, date(2024, time.March, 1), time.Time{})
	if err != nil {
		t.Fatal(err)
	}

	// The voided charge still counts in its type bucket; the reversal
	// offsets it in its own. The net across types must match the ledger.
	byType := map[core.EntryType]core.TypeSummary{}
	for _, ts := range report.ByType {
		byType[ts.Type] = ts
	}
	if got := byType[core.EntryCharge]; got.Count != 2 || !got.Amount.Equal(amt("550")) {
		t.Errorf("charge summary = %d/%s, want 2/550", got.Count, got.Amount)
	}
	if got := byType[core.EntryReversal]; got.Count != 1 || !got.Amount.Equal(amt("-100")) {
		t.Errorf("reversal summary = %d/%s, want 1/-100", got.Count, got.Amount)
	}

	reportNet := decimal.Zero
	for _, ts := range report.ByType {
		reportNet = reportNet.Add(ts.Amount)
	}
	monthNet := decimal.Zero
	for _, m := range report.ByMonth {
		monthNet = monthNet.Add(m.Total)
	}
	balance, err := repo.Balance(ctx, "acct-1")
	if err != nil {
		t.Fatal(err)
	}
	if !reportNet.Equal(balance) {
		t.Errorf("by_type net = %s, ledger = %s", reportNet, balance)
	}
	if !monthNet.Equal(balance) {
		t.Errorf("by_month net = %s, ledger = %s", monthNet, balance)
	}
}

func TestIncomeSummaryRejectsInvertedRange(t *testing.T) {
	reports := NewReportingService(newTestRepo(t))
	_, err := reports.IncomeSummary(context.Background(), date(2024, time.April, 1), date(2024, time.March, 1))
	if !errors.Is(err, core.ErrValidation) {
		t.Errorf("error = %v, want ErrValidation", err)
	}
}

func TestAccountStatement(t *testing.T) {
	repo := newTestRepo(t)
	ledger := NewLedgerService(repo)
	reports := NewReportingService(repo)
	ctx := context.Background()

	// Before the window: net 250 opening balance.
	postTyped(t, ledger, "acct-1", core.EntryCharge, "450", date(2024, time.February, 1))
	postTyped(t, ledger, "acct-1", core.EntryPayment, "-200", date(2024, time.February, 15))
	// In the window.
	postTyped(t, ledger, "acct-1", core.EntryCharge, "450", date(2024, time.March, 1))
	postTyped(t, ledger, "acct-1", core.EntryPayment, "-500", date(2024, time.March, 20))

	stmt, err := reports.AccountStatement(ctx, "acct-1", date(2024, time.March, 1), date(2024, time.March, 31))
	if err != nil {
		t.Fatalf("AccountStatement() error = %v", err)
	}
	if !stmt.OpeningBalance.Equal(amt("250")) {
		t.Errorf("opening = %s, want 250", stmt.OpeningBalance)
	}
	if len(stmt.Entries) != 2 {
		t.Errorf("entries = %d, want 2", len(stmt.Entries))
	}
	if !stmt.ClosingBalance.Equal(amt("200")) {
		t.Errorf("closing = %s, want 200", stmt.ClosingBalance)
	}

	if _, err := reports.AccountStatement(ctx, "", time.Time{}, time.Time{}); !errors.Is(err, core.ErrValidation) {
		t.Errorf("missing account error = %v, want ErrValidation", err)
	}
}
