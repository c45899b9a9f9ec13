// Package storage persists the billing ledger in SQLite. The ledger table
// is append-oriented: entries are inserted, never updated, with the single
// exception of the is_voided marker flipped inside the void transaction.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"livery/internal/core"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

const (
	dateLayout     = "2006-01-02"
	defaultTimeout = 5 * time.Second
)

// Repository is the SQLite-backed ledger store. Every public method bounds
// its storage call with the configured timeout and surfaces expiry as
// core.ErrTimeout instead of hanging the caller.
type Repository struct {
	db      *sql.DB
	timeout time.Duration
}

func NewRepository(dbPath string) (*Repository, error) {
	return NewRepositoryWithTimeout(dbPath, defaultTimeout)
}

func NewRepositoryWithTimeout(dbPath string, timeout time.Duration) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Let concurrent writers queue instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Repository{db: db, timeout: timeout}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *Repository) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

// mapErr translates driver errors into the core taxonomy.
func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", core.ErrTimeout, err)
	case strings.Contains(err.Error(), "UNIQUE constraint failed"),
		strings.Contains(err.Error(), "SQLITE_BUSY"),
		strings.Contains(err.Error(), "database is locked"):
		return fmt.Errorf("%w: %v", core.ErrConflict, err)
	default:
		return err
	}
}

func fmtDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(dateLayout, s)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// PostEntry validates and durably stores a new ledger entry, assigning its
// id and creation timestamp.
func (r *Repository) PostEntry(ctx context.Context, ne core.NewLedgerEntry) (core.LedgerEntry, error) {
	if err := ne.Validate(); err != nil {
		return core.LedgerEntry{}, err
	}

	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	entry := newEntryFrom(ne, time.Now().UTC())
	if err := insertEntry(ctx, r.db, entry); err != nil {
		return core.LedgerEntry{}, fmt.Errorf("insert ledger entry: %w", mapErr(err))
	}

	slog.InfoContext(ctx, "Ledger entry posted",
		"entry_id", entry.ID,
		"account_id", entry.AccountID,
		"entry_type", entry.Type,
		"amount", core.FormatAmount(entry.Amount))

	return entry, nil
}

func newEntryFrom(ne core.NewLedgerEntry, createdAt time.Time) core.LedgerEntry {
	return core.LedgerEntry{
		ID:              uuid.NewString(),
		AccountID:       ne.AccountID,
		Type:            ne.Type,
		Amount:          ne.Amount,
		Description:     ne.Description,
		Category:        ne.Category,
		EffectiveDate:   ne.EffectiveDate,
		CreatedBy:       ne.CreatedBy,
		CreatedAt:       createdAt,
		ReversedEntryID: ne.ReversedEntryID,
		SourceRef:       ne.SourceRef,
	}
}

func insertEntry(ctx context.Context, q execer, e core.LedgerEntry) error {
	const query = `INSERT INTO ledger_entries
		(id, account_id, entry_type, amount, description, category, effective_date,
		 created_by, created_at, reversed_entry_id, is_voided, source_ref)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	voided := 0
	if e.IsVoided {
		voided = 1
	}
	_, err := q.ExecContext(ctx, query,
		e.ID, e.AccountID, string(e.Type), e.Amount.String(), e.Description, e.Category,
		fmtDate(e.EffectiveDate), e.CreatedBy, e.CreatedAt.Format(time.RFC3339Nano),
		e.ReversedEntryID, voided, e.SourceRef)
	return err
}

const entryColumns = `id, account_id, entry_type, amount, description, category,
	effective_date, created_by, created_at, reversed_entry_id, is_voided, source_ref`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (core.LedgerEntry, error) {
	var (
		e                          core.LedgerEntry
		entryType                  string
		amount, effective, created string
		voided                     int
	)
	err := row.Scan(&e.ID, &e.AccountID, &entryType, &amount, &e.Description, &e.Category,
		&effective, &e.CreatedBy, &created, &e.ReversedEntryID, &voided, &e.SourceRef)
	if err != nil {
		return core.LedgerEntry{}, err
	}

	e.Type = core.EntryType(entryType)
	e.IsVoided = voided != 0
	if e.Amount, err = decimal.NewFromString(amount); err != nil {
		return core.LedgerEntry{}, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	if e.EffectiveDate, err = parseDate(effective); err != nil {
		return core.LedgerEntry{}, fmt.Errorf("parse effective date %q: %w", effective, err)
	}
	if e.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return core.LedgerEntry{}, fmt.Errorf("parse created at %q: %w", created, err)
	}
	return e, nil
}

// GetEntry loads a single entry by id.
func (r *Repository) GetEntry(ctx context.Context, id string) (core.LedgerEntry, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	query := fmt.Sprintf("SELECT %s FROM ledger_entries WHERE id = ?", entryColumns)
	entry, err := scanEntry(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.LedgerEntry{}, fmt.Errorf("entry %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.LedgerEntry{}, fmt.Errorf("get entry %s: %w", id, mapErr(err))
	}
	return entry, nil
}

// ListEntries returns an account's entries ordered by effective date then
// id, so pagination is deterministic.
func (r *Repository) ListEntries(ctx context.Context, accountID string, f core.EntryFilter) ([]core.LedgerEntry, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	query := fmt.Sprintf("SELECT %s FROM ledger_entries WHERE account_id = ?", entryColumns)
	args := []any{accountID}

	if !f.From.IsZero() {
		query += " AND effective_date >= ?"
		args = append(args, fmtDate(f.From))
	}
	if !f.To.IsZero() {
		query += " AND effective_date <= ?"
		args = append(args, fmtDate(f.To))
	}
	if f.Type != "" {
		query += " AND entry_type = ?"
		args = append(args, string(f.Type))
	}
	query += " ORDER BY effective_date ASC, id ASC"
	if f.Limit > 0 || f.Offset > 0 {
		limit := f.Limit
		if limit <= 0 {
			limit = -1 // sqlite: no limit
		}
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, f.Offset)
	}

	return r.queryEntries(ctx, query, args...)
}

// EntriesInRange returns all accounts' entries with effective dates in
// [from, to], for reporting.
func (r *Repository) EntriesInRange(ctx context.Context, from, to time.Time) ([]core.LedgerEntry, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	query := fmt.Sprintf(`SELECT %s FROM ledger_entries
		WHERE effective_date >= ? AND effective_date <= ?
		ORDER BY effective_date ASC, id ASC`, entryColumns)
	return r.queryEntries(ctx, query, fmtDate(from), fmtDate(to))
}

// EntriesBySourceRef returns the entries tagged with a source ref, e.g.
// all payments recorded against one invoice.
func (r *Repository) EntriesBySourceRef(ctx context.Context, ref string) ([]core.LedgerEntry, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	query := fmt.Sprintf(`SELECT %s FROM ledger_entries
		WHERE source_ref = ? ORDER BY effective_date ASC, id ASC`, entryColumns)
	return r.queryEntries(ctx, query, ref)
}

func (r *Repository) queryEntries(ctx context.Context, query string, args ...any) ([]core.LedgerEntry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", mapErr(err))
	}
	defer rows.Close()

	var entries []core.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", mapErr(err))
	}
	return entries, nil
}

// Balance sums every entry amount for the account, voided originals and
// their reversals included: the pair cancels, so excluding either side
// would double-book. An account with no entries has balance zero.
func (r *Repository) Balance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	return r.sumAmounts(ctx,
		"SELECT amount FROM ledger_entries WHERE account_id = ?", accountID)
}

// BalanceAsOf sums entries with effective dates strictly before the given
// date; used as the opening balance of account statements.
func (r *Repository) BalanceAsOf(ctx context.Context, accountID string, before time.Time) (decimal.Decimal, error) {
	return r.sumAmounts(ctx,
		"SELECT amount FROM ledger_entries WHERE account_id = ? AND effective_date < ?",
		accountID, fmtDate(before))
}

// PaymentsForInvoice sums the payment entries tagged with the invoice's
// source ref. The result carries ledger sign (zero or negative).
func (r *Repository) PaymentsForInvoice(ctx context.Context, invoiceID string) (decimal.Decimal, error) {
	return r.sumAmounts(ctx,
		"SELECT amount FROM ledger_entries WHERE source_ref = ? AND entry_type = ?",
		core.InvoiceSourceRef(invoiceID), string(core.EntryPayment))
}

// sumAmounts adds amounts in decimal on the Go side. SQLite would sum the
// TEXT column in floating point, which is exactly the drift this module
// exists to avoid.
func (r *Repository) sumAmounts(ctx context.Context, query string, args ...any) (decimal.Decimal, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return decimal.Zero, fmt.Errorf("query amounts: %w", mapErr(err))
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return decimal.Zero, fmt.Errorf("scan amount: %w", err)
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero, fmt.Errorf("parse amount %q: %w", s, err)
		}
		total = total.Add(d)
	}
	if err := rows.Err(); err != nil {
		return decimal.Zero, fmt.Errorf("iterate amounts: %w", mapErr(err))
	}
	return total, nil
}

// AccountIDs returns every account that has at least one ledger entry.
func (r *Repository) AccountIDs(ctx context.Context) ([]string, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx,
		"SELECT DISTINCT account_id FROM ledger_entries ORDER BY account_id")
	if err != nil {
		return nil, fmt.Errorf("query account ids: %w", mapErr(err))
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan account id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate account ids: %w", mapErr(err))
	}
	return ids, nil
}

// VoidEntry creates the compensating reversal for an entry and marks the
// original voided, in one transaction. The read-check-write sequence is
// atomic: two concurrent voids of the same entry cannot both succeed.
func (r *Repository) VoidEntry(ctx context.Context, entryID, reason, actor string, now time.Time) (core.LedgerEntry, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.LedgerEntry{}, fmt.Errorf("begin void transaction: %w", mapErr(err))
	}
	defer tx.Rollback()

	query := fmt.Sprintf("SELECT %s FROM ledger_entries WHERE id = ?", entryColumns)
	original, err := scanEntry(tx.QueryRowContext(ctx, query, entryID))
	if errors.Is(err, sql.ErrNoRows) {
		return core.LedgerEntry{}, fmt.Errorf("void entry %s: %w", entryID, core.ErrNotFound)
	}
	if err != nil {
		return core.LedgerEntry{}, fmt.Errorf("load entry %s: %w", entryID, mapErr(err))
	}

	if original.IsVoided {
		return core.LedgerEntry{}, fmt.Errorf("void entry %s: %w", entryID, core.ErrAlreadyVoided)
	}
	// Reversals are terminal. Voiding a reversal would start a chain of
	// corrections-of-corrections; the original must be re-posted instead.
	if original.Type == core.EntryReversal {
		return core.LedgerEntry{}, fmt.Errorf("void entry %s is a reversal: %w", entryID, core.ErrInvalidState)
	}

	description := fmt.Sprintf("Reversal of %q: %s", original.Description, reason)
	reversal := newEntryFrom(core.NewLedgerEntry{
		AccountID: original.AccountID,
		Type:      core.EntryReversal,
		Amount:    original.Amount.Neg(),
		// The reversal is a new economic event, not backdated.
		EffectiveDate:   now,
		Description:     description,
		Category:        original.Category,
		CreatedBy:       actor,
		ReversedEntryID: original.ID,
		SourceRef:       original.SourceRef,
	}, time.Now().UTC())

	if err := insertEntry(ctx, tx, reversal); err != nil {
		return core.LedgerEntry{}, fmt.Errorf("insert reversal for %s: %w", entryID, mapErr(err))
	}

	res, err := tx.ExecContext(ctx,
		"UPDATE ledger_entries SET is_voided = 1 WHERE id = ? AND is_voided = 0", entryID)
	if err != nil {
		return core.LedgerEntry{}, fmt.Errorf("mark entry %s voided: %w", entryID, mapErr(err))
	}
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		return core.LedgerEntry{}, fmt.Errorf("void entry %s lost race: %w", entryID, core.ErrConflict)
	}

	if err := tx.Commit(); err != nil {
		return core.LedgerEntry{}, fmt.Errorf("commit void of %s: %w", entryID, mapErr(err))
	}

	slog.InfoContext(ctx, "Ledger entry voided",
		"entry_id", entryID,
		"reversal_id", reversal.ID,
		"account_id", original.AccountID,
		"reason", reason)

	return reversal, nil
}

// BilledAgreements returns the set of (account, agreement) pairs already
// billed for the period.
func (r *Repository) BilledAgreements(ctx context.Context, year int, month time.Month) (map[core.BillingRunRecord]bool, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx,
		"SELECT account_id, agreement_id FROM billing_run_records WHERE year = ? AND month = ?",
		year, int(month))
	if err != nil {
		return nil, fmt.Errorf("query billing run records: %w", mapErr(err))
	}
	defer rows.Close()

	billed := make(map[core.BillingRunRecord]bool)
	for rows.Next() {
		rec := core.BillingRunRecord{Year: year, Month: month}
		if err := rows.Scan(&rec.AccountID, &rec.AgreementID); err != nil {
			return nil, fmt.Errorf("scan billing run record: %w", err)
		}
		billed[rec] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate billing run records: %w", mapErr(err))
	}
	return billed, nil
}

// PostBillingCharge inserts the billing run record and posts the charge in
// one transaction. The record's uniqueness constraint is the idempotency
// key: if another run already billed this (period, account, agreement) the
// insert fails and the whole transaction rolls back with core.ErrConflict,
// leaving no charge behind.
func (r *Repository) PostBillingCharge(ctx context.Context, rec core.BillingRunRecord, ne core.NewLedgerEntry) (core.LedgerEntry, error) {
	if err := ne.Validate(); err != nil {
		return core.LedgerEntry{}, err
	}

	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.LedgerEntry{}, fmt.Errorf("begin billing transaction: %w", mapErr(err))
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO billing_run_records (year, month, account_id, agreement_id, created_at) VALUES (?, ?, ?, ?, ?)",
		rec.Year, int(rec.Month), rec.AccountID, rec.AgreementID, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return core.LedgerEntry{}, fmt.Errorf("insert billing run record %d-%02d %s/%s: %w",
			rec.Year, int(rec.Month), rec.AccountID, rec.AgreementID, mapErr(err))
	}

	entry := newEntryFrom(ne, time.Now().UTC())
	if err := insertEntry(ctx, tx, entry); err != nil {
		return core.LedgerEntry{}, fmt.Errorf("insert billing charge: %w", mapErr(err))
	}

	if err := tx.Commit(); err != nil {
		return core.LedgerEntry{}, fmt.Errorf("commit billing charge: %w", mapErr(err))
	}
	return entry, nil
}

// CreateInvoice stores a draft invoice with its line items.
func (r *Repository) CreateInvoice(ctx context.Context, inv core.Invoice) error {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin invoice transaction: %w", mapErr(err))
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO invoices (id, account_id, status, period_start, period_end,
			issue_date, due_date, paid_date, subtotal, notes)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.AccountID, string(inv.Status), fmtDate(inv.PeriodStart), fmtDate(inv.PeriodEnd),
		fmtDate(inv.IssueDate), fmtDate(inv.DueDate), fmtDate(inv.PaidDate),
		inv.Subtotal.String(), inv.Notes)
	if err != nil {
		return fmt.Errorf("insert invoice %s: %w", inv.ID, mapErr(err))
	}

	for i, item := range inv.LineItems {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO invoice_line_items (invoice_id, position, description, category, quantity, unit_price, amount)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			inv.ID, i, item.Description, item.Category, item.Quantity,
			item.UnitPrice.String(), item.Amount.String())
		if err != nil {
			return fmt.Errorf("insert line item %d of invoice %s: %w", i, inv.ID, mapErr(err))
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit invoice %s: %w", inv.ID, mapErr(err))
	}

	slog.InfoContext(ctx, "Invoice created",
		"invoice_id", inv.ID,
		"account_id", inv.AccountID,
		"line_items", len(inv.LineItems),
		"subtotal", core.FormatAmount(inv.Subtotal))
	return nil
}

const invoiceColumns = `id, account_id, status, period_start, period_end,
	issue_date, due_date, paid_date, subtotal, notes`

func scanInvoice(row rowScanner) (core.Invoice, error) {
	var (
		inv                                           core.Invoice
		status                                        string
		periodStart, periodEnd, issued, due, paid, st string
	)
	err := row.Scan(&inv.ID, &inv.AccountID, &status, &periodStart, &periodEnd,
		&issued, &due, &paid, &st, &inv.Notes)
	if err != nil {
		return core.Invoice{}, err
	}

	inv.Status = core.InvoiceStatus(status)
	if inv.Subtotal, err = decimal.NewFromString(st); err != nil {
		return core.Invoice{}, fmt.Errorf("parse subtotal %q: %w", st, err)
	}
	for _, f := range []struct {
		dst *time.Time
		src string
	}{
		{&inv.PeriodStart, periodStart},
		{&inv.PeriodEnd, periodEnd},
		{&inv.IssueDate, issued},
		{&inv.DueDate, due},
		{&inv.PaidDate, paid},
	} {
		if *f.dst, err = parseDate(f.src); err != nil {
			return core.Invoice{}, fmt.Errorf("parse invoice date %q: %w", f.src, err)
		}
	}
	return inv, nil
}

// GetInvoice loads an invoice with its line items. PaymentsReceived is
// left for the caller to fill from the ledger.
func (r *Repository) GetInvoice(ctx context.Context, id string) (core.Invoice, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	query := fmt.Sprintf("SELECT %s FROM invoices WHERE id = ?", invoiceColumns)
	inv, err := scanInvoice(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Invoice{}, fmt.Errorf("invoice %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Invoice{}, fmt.Errorf("get invoice %s: %w", id, mapErr(err))
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT description, category, quantity, unit_price, amount
		 FROM invoice_line_items WHERE invoice_id = ? ORDER BY position`, id)
	if err != nil {
		return core.Invoice{}, fmt.Errorf("query line items of %s: %w", id, mapErr(err))
	}
	defer rows.Close()

	for rows.Next() {
		var (
			item              core.InvoiceLineItem
			unitPrice, amount string
		)
		if err := rows.Scan(&item.Description, &item.Category, &item.Quantity, &unitPrice, &amount); err != nil {
			return core.Invoice{}, fmt.Errorf("scan line item: %w", err)
		}
		if item.UnitPrice, err = decimal.NewFromString(unitPrice); err != nil {
			return core.Invoice{}, fmt.Errorf("parse unit price %q: %w", unitPrice, err)
		}
		if item.Amount, err = decimal.NewFromString(amount); err != nil {
			return core.Invoice{}, fmt.Errorf("parse line amount %q: %w", amount, err)
		}
		inv.LineItems = append(inv.LineItems, item)
	}
	if err := rows.Err(); err != nil {
		return core.Invoice{}, fmt.Errorf("iterate line items: %w", mapErr(err))
	}
	return inv, nil
}

// ListInvoices returns an account's invoices ordered by period start then
// id, without line items.
func (r *Repository) ListInvoices(ctx context.Context, accountID string) ([]core.Invoice, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	query := fmt.Sprintf(`SELECT %s FROM invoices WHERE account_id = ?
		ORDER BY period_start ASC, id ASC`, invoiceColumns)
	rows, err := r.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("query invoices: %w", mapErr(err))
	}
	defer rows.Close()

	var invoices []core.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invoice: %w", err)
		}
		invoices = append(invoices, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate invoices: %w", mapErr(err))
	}
	return invoices, nil
}

// LatestIssuedInvoice returns the account's most recently issued invoice
// (paid ones included), or core.ErrNotFound when none was ever issued.
func (r *Repository) LatestIssuedInvoice(ctx context.Context, accountID string) (core.Invoice, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	query := fmt.Sprintf(`SELECT %s FROM invoices
		WHERE account_id = ? AND status IN (?, ?)
		ORDER BY issue_date DESC, id DESC LIMIT 1`, invoiceColumns)
	inv, err := scanInvoice(r.db.QueryRowContext(ctx, query, accountID,
		string(core.InvoiceIssued), string(core.InvoicePaid)))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Invoice{}, fmt.Errorf("no issued invoice for account %s: %w", accountID, core.ErrNotFound)
	}
	if err != nil {
		return core.Invoice{}, fmt.Errorf("latest issued invoice for %s: %w", accountID, mapErr(err))
	}
	return inv, nil
}

// MarkInvoiceIssued transitions draft -> issued. The status re-check and
// the mutation share a transaction, so two concurrent issue calls cannot
// both succeed on the same draft.
func (r *Repository) MarkInvoiceIssued(ctx context.Context, id string, issueDate, dueDate time.Time) error {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin issue transaction: %w", mapErr(err))
	}
	defer tx.Rollback()

	status, err := invoiceStatus(ctx, tx, id)
	if err != nil {
		return err
	}
	if status != core.InvoiceDraft {
		return fmt.Errorf("issue invoice %s in status %s: %w", id, status, core.ErrInvalidState)
	}

	res, err := tx.ExecContext(ctx,
		"UPDATE invoices SET status = ?, issue_date = ?, due_date = ? WHERE id = ? AND status = ?",
		string(core.InvoiceIssued), fmtDate(issueDate), fmtDate(dueDate), id, string(core.InvoiceDraft))
	if err != nil {
		return fmt.Errorf("issue invoice %s: %w", id, mapErr(err))
	}
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		return fmt.Errorf("issue invoice %s lost race: %w", id, core.ErrConflict)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit issue of %s: %w", id, mapErr(err))
	}
	return nil
}

// MarkInvoiceCancelled transitions draft or issued -> cancelled. Paid
// invoices stay paid.
func (r *Repository) MarkInvoiceCancelled(ctx context.Context, id string) error {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin cancel transaction: %w", mapErr(err))
	}
	defer tx.Rollback()

	status, err := invoiceStatus(ctx, tx, id)
	if err != nil {
		return err
	}
	if status != core.InvoiceDraft && status != core.InvoiceIssued {
		return fmt.Errorf("cancel invoice %s in status %s: %w", id, status, core.ErrInvalidState)
	}

	res, err := tx.ExecContext(ctx,
		"UPDATE invoices SET status = ? WHERE id = ? AND status IN (?, ?)",
		string(core.InvoiceCancelled), id, string(core.InvoiceDraft), string(core.InvoiceIssued))
	if err != nil {
		return fmt.Errorf("cancel invoice %s: %w", id, mapErr(err))
	}
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		return fmt.Errorf("cancel invoice %s lost race: %w", id, core.ErrConflict)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit cancel of %s: %w", id, mapErr(err))
	}
	return nil
}

// MarkInvoicePaid transitions issued -> paid.
func (r *Repository) MarkInvoicePaid(ctx context.Context, id string, paidDate time.Time) error {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx,
		"UPDATE invoices SET status = ?, paid_date = ? WHERE id = ? AND status = ?",
		string(core.InvoicePaid), fmtDate(paidDate), id, string(core.InvoiceIssued))
	if err != nil {
		return fmt.Errorf("mark invoice %s paid: %w", id, mapErr(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark invoice %s paid: %w", id, mapErr(err))
	}
	if n == 0 {
		return fmt.Errorf("mark invoice %s paid: %w", id, core.ErrInvalidState)
	}
	return nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func invoiceStatus(ctx context.Context, q queryRower, id string) (core.InvoiceStatus, error) {
	var status string
	err := q.QueryRowContext(ctx, "SELECT status FROM invoices WHERE id = ?", id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("invoice %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("load invoice %s status: %w", id, mapErr(err))
	}
	return core.InvoiceStatus(status), nil
}
