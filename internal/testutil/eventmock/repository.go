package eventmock

import (
	"context"

	domain "lendsmart-backend/internal/domain/event"
)

var _ domain.Repository = (*Repo)(nil)

// Repo is a function-backed mock that satisfies event.Repository.
type Repo struct {
	AppendFn             func(ctx context.Context, e *domain.LedgerEvent) error
	GetPendingByLoanIDFn func(ctx context.Context, loanID string) (*domain.LedgerEvent, error)
	MarkOutcomeFn        func(ctx context.Context, eventID string, outcome domain.Outcome, txRef string) error
	NextSeqFn            func(ctx context.Context, loanID string) (uint64, error)
	ListByLoanIDFn       func(ctx context.Context, loanID string) ([]domain.LedgerEvent, error)
}

func (m *Repo) Append(ctx context.Context, e *domain.LedgerEvent) error {
	if m.AppendFn != nil {
		return m.AppendFn(ctx, e)
	}
	return nil
}

func (m *Repo) GetPendingByLoanID(ctx context.Context, loanID string) (*domain.LedgerEvent, error) {
	if m.GetPendingByLoanIDFn != nil {
		return m.GetPendingByLoanIDFn(ctx, loanID)
	}
	return nil, domain.ErrNotFound
}

func (m *Repo) MarkOutcome(ctx context.Context, eventID string, outcome domain.Outcome, txRef string) error {
	if m.MarkOutcomeFn != nil {
		return m.MarkOutcomeFn(ctx, eventID, outcome, txRef)
	}
	return nil
}

func (m *Repo) NextSeq(ctx context.Context, loanID string) (uint64, error) {
	if m.NextSeqFn != nil {
		return m.NextSeqFn(ctx, loanID)
	}
	return 1, nil
}

func (m *Repo) ListByLoanID(ctx context.Context, loanID string) ([]domain.LedgerEvent, error) {
	if m.ListByLoanIDFn != nil {
		return m.ListByLoanIDFn(ctx, loanID)
	}
	return nil, nil
}
