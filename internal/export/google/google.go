// Package google exports report snapshots to a Google spreadsheet using a
// Service Account. Each export appends rows, so the sheet keeps a history
// of snapshots rather than one mutable view.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"livery/internal/core"
	ports "livery/internal/export"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	agedDebtSheet string
	incomeSheet   string
}

// Ensure interface conformance
var _ ports.ReportWriter = (*Client)(nil)

// New creates a Sheets client for the given spreadsheet and sheet names,
// normally supplied by config. Service Account credentials come from
// GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or
// GOOGLE_APPLICATION_CREDENTIALS.
func New(ctx context.Context, spreadsheetID, agedDebtSheet, incomeSheet string) (*Client, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if agedDebtSheet = strings.TrimSpace(agedDebtSheet); agedDebtSheet == "" {
		agedDebtSheet = "Aged Debt"
	}
	if incomeSheet = strings.TrimSpace(incomeSheet); incomeSheet == "" {
		incomeSheet = "Income"
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		agedDebtSheet: agedDebtSheet,
		incomeSheet:   incomeSheet,
	}, nil
}

// newSheetsService initializes a Sheets Service using Service Account
// credentials from GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE
// or GOOGLE_APPLICATION_CREDENTIALS.
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))

	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	var err error

	switch {
	case serviceAccountJSON != "":
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		credentialsJSON, err = os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// WriteAgedDebt appends one row per account plus a totals row.
func (c *Client) WriteAgedDebt(ctx context.Context, report core.AgedDebtReport) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}

	asOf := report.AsOf.Format("2006-01-02")
	values := make([][]any, 0, len(report.Rows)+1)
	for _, r := range report.Rows {
		values = append(values, agedDebtRowValues(asOf, r.AccountID, r))
	}
	values = append(values, agedDebtRowValues(asOf, "TOTAL", report.Totals))

	if err := c.appendRows(ctx, c.agedDebtSheet, values); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Exported aged debt report",
		"as_of", asOf,
		"rows", len(report.Rows),
		"sheet", c.agedDebtSheet)
	return nil
}

func agedDebtRowValues(asOf, accountID string, r core.AgedDebtRow) []any {
	lastPayment := ""
	if !r.LastPaymentDate.IsZero() {
		lastPayment = r.LastPaymentDate.Format("2006-01-02")
	}
	return []any{
		asOf,
		accountID,
		core.FormatAmount(r.Current),
		core.FormatAmount(r.Month1),
		core.FormatAmount(r.Month2),
		core.FormatAmount(r.Month3Plus),
		core.FormatAmount(r.Total),
		lastPayment,
	}
}

// WriteIncomeSummary appends one row per month and entry type.
func (c *Client) WriteIncomeSummary(ctx context.Context, report core.IncomeSummaryReport) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}

	exportedAt := time.Now().UTC().Format("2006-01-02")
	values := incomeSummaryValues(exportedAt, report)
	if len(values) == 0 {
		return nil
	}

	if err := c.appendRows(ctx, c.incomeSheet, values); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Exported income summary",
		"from", report.From.Format("2006-01-02"),
		"to", report.To.Format("2006-01-02"),
		"rows", len(values),
		"sheet", c.incomeSheet)
	return nil
}

// incomeSummaryValues flattens the report into sheet rows: one row per
// month and entry type plus a per-month total row.
func incomeSummaryValues(exportedAt string, report core.IncomeSummaryReport) [][]any {
	var values [][]any
	for _, m := range report.ByMonth {
		period := fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
		for _, ts := range m.ByType {
			values = append(values, []any{
				exportedAt,
				period,
				string(ts.Type),
				ts.Count,
				core.FormatAmount(ts.Amount),
			})
		}
		values = append(values, []any{
			exportedAt,
			period,
			"total",
			"",
			core.FormatAmount(m.Total),
		})
	}
	return values
}

func (c *Client) appendRows(ctx context.Context, sheetName string, values [][]any) error {
	rng := fmt.Sprintf("%s!A:H", sheetName)
	vr := &gsheet.ValueRange{Values: values}

	_, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append to sheet %s: %w", sheetName, err)
	}
	return nil
}
