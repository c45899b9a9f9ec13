// Package export defines the outbound port for pushing report snapshots to
// external destinations, with Google Sheets and in-memory adapters.
package export

import (
	"context"

	"livery/internal/core"
)

// Ports for outbound report adapters.
type (
	// AgedDebtWriter appends an aged debt snapshot to the destination.
	AgedDebtWriter interface {
		WriteAgedDebt(ctx context.Context, report core.AgedDebtReport) error
	}

	// IncomeSummaryWriter appends an income summary snapshot.
	IncomeSummaryWriter interface {
		WriteIncomeSummary(ctx context.Context, report core.IncomeSummaryReport) error
	}

	// ReportWriter is the full export surface the HTTP layer wires.
	ReportWriter interface {
		AgedDebtWriter
		IncomeSummaryWriter
	}
)
