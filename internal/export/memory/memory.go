// Package memory holds exported report snapshots in process, for tests and
// deployments without a configured spreadsheet.
package memory

import (
	"context"
	"sync"

	"livery/internal/core"
)

type Store struct {
	mu       sync.Mutex
	agedDebt []core.AgedDebtReport
	income   []core.IncomeSummaryReport
}

func New() *Store {
	return &Store{}
}

func (s *Store) WriteAgedDebt(_ context.Context, report core.AgedDebtReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agedDebt = append(s.agedDebt, report)
	return nil
}

func (s *Store) WriteIncomeSummary(_ context.Context, report core.IncomeSummaryReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.income = append(s.income, report)
	return nil
}

// AgedDebtSnapshots returns the stored aged debt exports, oldest first.
func (s *Store) AgedDebtSnapshots() []core.AgedDebtReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.AgedDebtReport, len(s.agedDebt))
	copy(out, s.agedDebt)
	return out
}

// IncomeSnapshots returns the stored income summary exports, oldest first.
func (s *Store) IncomeSnapshots() []core.IncomeSummaryReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.IncomeSummaryReport, len(s.income))
	copy(out, s.income)
	return out
}
