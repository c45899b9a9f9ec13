package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"livery/internal/core"
	"livery/internal/storage"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// ReportingService computes read-side views over the ledger. Reports never
// write: running one twice over the same data yields the same output.
type ReportingService struct {
	repo *storage.Repository

	// concurrency caps the per-account fan-out of the aged debt report.
	concurrency int
}

func NewReportingService(repo *storage.Repository) *ReportingService {
	return &ReportingService{repo: repo, concurrency: 8}
}

// AgedDebt reports every account's outstanding balance bucketed by charge
// age at the as-of date. Payments and credits are allocated against the
// oldest charges first, so the buckets show what is genuinely still owed,
// not gross charges. Accounts are processed concurrently; a cancelled
// context aborts the whole report.
func (s *ReportingService) AgedDebt(ctx context.Context, asOf time.Time) (core.AgedDebtReport, error) {
	if asOf.IsZero() {
		asOf = today()
	}

	accounts, err := s.repo.AccountIDs(ctx)
	if err != nil {
		return core.AgedDebtReport{}, fmt.Errorf("list accounts: %w", err)
	}

	var (
		mu   sync.Mutex
		rows []core.AgedDebtRow
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, accountID := range accounts {
		g.Go(func() error {
			entries, err := s.repo.ListEntries(gctx, accountID, core.EntryFilter{To: asOf})
			if err != nil {
				return fmt.Errorf("entries of %s: %w", accountID, err)
			}
			row, ok := ageAccountDebt(accountID, entries, asOf)
			if !ok {
				return nil
			}
			mu.Lock()
			rows = append(rows, row)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return core.AgedDebtReport{}, err
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].AccountID < rows[j].AccountID })

	totals := core.AgedDebtRow{
		Current:    decimal.Zero,
		Month1:     decimal.Zero,
		Month2:     decimal.Zero,
		Month3Plus: decimal.Zero,
		Total:      decimal.Zero,
	}
	for _, r := range rows {
		totals.Current = totals.Current.Add(r.Current)
		totals.Month1 = totals.Month1.Add(r.Month1)
		totals.Month2 = totals.Month2.Add(r.Month2)
		totals.Month3Plus = totals.Month3Plus.Add(r.Month3Plus)
		totals.Total = totals.Total.Add(r.Total)
	}

	return core.AgedDebtReport{AsOf: asOf, Rows: rows, Totals: totals}, nil
}

// ageAccountDebt buckets one account's entries. All negative amounts
// (payments, credits, reversals of charges) form a single pool consumed
// oldest-charge-first, then the unpaid remainder of each positive entry
// lands in the bucket its age selects. Returns ok=false when nothing is
// outstanding.
func ageAccountDebt(accountID string, entries []core.LedgerEntry, asOf time.Time) (core.AgedDebtRow, bool) {
	pool := decimal.Zero
	var lastPayment time.Time
	for _, e := range entries {
		if e.Amount.IsNegative() {
			pool = pool.Add(e.Amount.Neg())
		}
		if e.Type == core.EntryPayment && e.EffectiveDate.After(lastPayment) {
			lastPayment = e.EffectiveDate
		}
	}

	row := core.AgedDebtRow{
		AccountID:       accountID,
		Current:         decimal.Zero,
		Month1:          decimal.Zero,
		Month2:          decimal.Zero,
		Month3Plus:      decimal.Zero,
		Total:           decimal.Zero,
		LastPaymentDate: lastPayment,
	}

	// Entries arrive ordered by effective date, so iterating in order is
	// already oldest-first allocation.
	for _, e := range entries {
		if !e.Amount.IsPositive() {
			continue
		}
		outstanding := e.Amount
		if pool.IsPositive() {
			applied := decimal.Min(pool, outstanding)
			pool = pool.Sub(applied)
			outstanding = outstanding.Sub(applied)
		}
		if !outstanding.IsPositive() {
			continue
		}
		switch core.MonthsBetween(e.EffectiveDate, asOf) {
		case 0:
			row.Current = row.Current.Add(outstanding)
		case 1:
			row.Month1 = row.Month1.Add(outstanding)
		case 2:
			row.Month2 = row.Month2.Add(outstanding)
		default:
			row.Month3Plus = row.Month3Plus.Add(outstanding)
		}
		row.Total = row.Total.Add(outstanding)
	}

	if !row.Total.IsPositive() {
		return core.AgedDebtRow{}, false
	}
	return row, true
}

// IncomeSummary aggregates all entries with effective dates in [from, to]
// by entry type and by calendar month. Voided originals are included:
// their reversal carries the offsetting amount, so the aggregates always
// reconcile with a direct ledger query over the same range. Skipping
// either side would cancel the void twice.
func (s *ReportingService) IncomeSummary(ctx context.Context, from, to time.Time) (core.IncomeSummaryReport, error) {
	if to.IsZero() {
		to = today()
	}
	if !from.IsZero() && to.Before(from) {
		return core.IncomeSummaryReport{}, fmt.Errorf("%w: range end before start", core.ErrValidation)
	}

	entries, err := s.repo.EntriesInRange(ctx, from, to)
	if err != nil {
		return core.IncomeSummaryReport{}, fmt.Errorf("entries in range: %w", err)
	}

	report := core.IncomeSummaryReport{
		From:          from,
		To:            to,
		TotalIncome:   decimal.Zero,
		TotalPayments: decimal.Zero,
	}

	type monthKey struct {
		year  int
		month time.Month
	}
	byType := make(map[core.EntryType]*core.TypeSummary)
	byMonth := make(map[monthKey]map[core.EntryType]*core.TypeSummary)
	monthTotals := make(map[monthKey]decimal.Decimal)

	for _, e := range entries {
		ts, ok := byType[e.Type]
		if !ok {
			ts = &core.TypeSummary{Type: e.Type, Amount: decimal.Zero}
			byType[e.Type] = ts
		}
		ts.Count++
		ts.Amount = ts.Amount.Add(e.Amount)

		mk := monthKey{e.EffectiveDate.Year(), e.EffectiveDate.Month()}
		mts, ok := byMonth[mk]
		if !ok {
			mts = make(map[core.EntryType]*core.TypeSummary)
			byMonth[mk] = mts
			monthTotals[mk] = decimal.Zero
		}
		ms, ok := mts[e.Type]
		if !ok {
			ms = &core.TypeSummary{Type: e.Type, Amount: decimal.Zero}
			mts[e.Type] = ms
		}
		ms.Count++
		ms.Amount = ms.Amount.Add(e.Amount)
		monthTotals[mk] = monthTotals[mk].Add(e.Amount)

		if e.Type.ChargeLike() {
			report.TotalIncome = report.TotalIncome.Add(e.Amount)
		}
		if e.Type.PaymentLike() {
			report.TotalPayments = report.TotalPayments.Add(e.Amount)
		}
	}

	for _, t := range core.EntryTypes {
		if ts, ok := byType[t]; ok {
			report.ByType = append(report.ByType, *ts)
		}
	}

	months := make([]monthKey, 0, len(byMonth))
	for mk := range byMonth {
		months = append(months, mk)
	}
	sort.Slice(months, func(i, j int) bool {
		if months[i].year != months[j].year {
			return months[i].year < months[j].year
		}
		return months[i].month < months[j].month
	})
	for _, mk := range months {
		ms := core.MonthSummary{Year: mk.year, Month: mk.month, Total: monthTotals[mk]}
		for _, t := range core.EntryTypes {
			if ts, ok := byMonth[mk][t]; ok {
				ms.ByType = append(ms.ByType, *ts)
			}
		}
		report.ByMonth = append(report.ByMonth, ms)
	}

	return report, nil
}

// Statement is a chronological account view: opening balance, entries in
// range and the resulting closing balance.
type Statement struct {
	AccountID      string             `json:"account_id"`
	From           time.Time          `json:"from"`
	To             time.Time          `json:"to"`
	OpeningBalance decimal.Decimal    `json:"opening_balance"`
	Entries        []core.LedgerEntry `json:"entries"`
	ClosingBalance decimal.Decimal    `json:"closing_balance"`
}

// AccountStatement builds a statement for [from, to]. The closing balance
// is recomputed from the opening balance plus the listed entries, so the
// statement is internally consistent even while new entries are posted.
func (s *ReportingService) AccountStatement(ctx context.Context, accountID string, from, to time.Time) (Statement, error) {
	if accountID == "" {
		return Statement{}, fmt.Errorf("%w: missing account id", core.ErrValidation)
	}
	if to.IsZero() {
		to = today()
	}

	opening, err := s.repo.BalanceAsOf(ctx, accountID, from)
	if err != nil {
		return Statement{}, fmt.Errorf("opening balance: %w", err)
	}

	entries, err := s.repo.ListEntries(ctx, accountID, core.EntryFilter{From: from, To: to})
	if err != nil {
		return Statement{}, fmt.Errorf("statement entries: %w", err)
	}

	closing := opening
	for _, e := range entries {
		closing = closing.Add(e.Amount)
	}

	return Statement{
		AccountID:      accountID,
		From:           from,
		To:             to,
		OpeningBalance: opening,
		Entries:        entries,
		ClosingBalance: closing,
	}, nil
}
