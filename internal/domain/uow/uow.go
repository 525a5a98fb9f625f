package uow

import (
	"context"

	"lendsmart-backend/internal/domain/event"
	"lendsmart-backend/internal/domain/loan"
)

type Repos struct {
	Loans  loan.Repository
	Events event.Repository
}

type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(r Repos) error) error
	// WithinLoanTx locks the loan row first, then runs fn with the locked
	// snapshot. Used for the pre-image write and the commit step so the
	// journal and the mirror move together.
	WithinLoanTx(ctx context.Context, loanID string, fn func(r Repos, l *loan.Loan) error) error
}
