package loanmock

import (
	"context"

	domain "lendsmart-backend/internal/domain/loan"
)

var _ domain.Repository = (*Repo)(nil)

// Repo is a function-backed mock that satisfies loan.Repository.
// Fill in the function fields a test needs; unfilled lookups return
// domain.ErrNotFound, unfilled writes succeed.
type Repo struct {
	CreateFn                  func(ctx context.Context, l *domain.Loan) error
	GetByLoanIDFn             func(ctx context.Context, loanID string) (*domain.Loan, error)
	GetByLoanIDForUpdateFn    func(ctx context.Context, loanID string) (*domain.Loan, error)
	GetOpenLoanByBorrowerIDFn func(ctx context.Context, borrowerID string) (*domain.Loan, error)
	CompareAndSetFn           func(ctx context.Context, l *domain.Loan, expectedVersion uint64) error
	ListUnsettledFn           func(ctx context.Context, limit int) ([]domain.Loan, error)
	ListByActorFn             func(ctx context.Context, actorID string) ([]domain.Loan, error)
}

func (m *Repo) Create(ctx context.Context, l *domain.Loan) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, l)
	}
	return nil
}

func (m *Repo) GetByLoanID(ctx context.Context, loanID string) (*domain.Loan, error) {
	if m.GetByLoanIDFn != nil {
		return m.GetByLoanIDFn(ctx, loanID)
	}
	return nil, domain.ErrNotFound
}

func (m *Repo) GetByLoanIDForUpdate(ctx context.Context, loanID string) (*domain.Loan, error) {
	if m.GetByLoanIDForUpdateFn != nil {
		return m.GetByLoanIDForUpdateFn(ctx, loanID)
	}
	return nil, domain.ErrNotFound
}

func (m *Repo) GetOpenLoanByBorrowerID(ctx context.Context, borrowerID string) (*domain.Loan, error) {
	if m.GetOpenLoanByBorrowerIDFn != nil {
		return m.GetOpenLoanByBorrowerIDFn(ctx, borrowerID)
	}
	return nil, domain.ErrNotFound
}

func (m *Repo) CompareAndSet(ctx context.Context, l *domain.Loan, expectedVersion uint64) error {
	if m.CompareAndSetFn != nil {
		return m.CompareAndSetFn(ctx, l, expectedVersion)
	}
	return nil
}

func (m *Repo) ListUnsettled(ctx context.Context, limit int) ([]domain.Loan, error) {
	if m.ListUnsettledFn != nil {
		return m.ListUnsettledFn(ctx, limit)
	}
	return nil, nil
}

func (m *Repo) ListByActor(ctx context.Context, actorID string) ([]domain.Loan, error) {
	if m.ListByActorFn != nil {
		return m.ListByActorFn(ctx, actorID)
	}
	return nil, nil
}
