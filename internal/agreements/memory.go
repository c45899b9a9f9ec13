package agreements

import (
	"context"

	"livery/internal/core"
)

// MemorySource serves a fixed agreement list, for tests and local runs.
type MemorySource struct {
	agreements []core.BillingAgreement
}

func NewMemorySource(agreements ...core.BillingAgreement) *MemorySource {
	return &MemorySource{agreements: agreements}
}

func (s *MemorySource) Agreements(ctx context.Context) ([]core.BillingAgreement, error) {
	out := make([]core.BillingAgreement, len(s.agreements))
	copy(out, s.agreements)
	return out, nil
}
