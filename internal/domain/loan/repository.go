package loan

import "context"

type Repository interface {
	Create(ctx context.Context, l *Loan) error
	GetByLoanID(ctx context.Context, loanID string) (*Loan, error)
	GetByLoanIDForUpdate(ctx context.Context, loanID string) (*Loan, error)
	GetOpenLoanByBorrowerID(ctx context.Context, borrowerID string) (*Loan, error)
	// CompareAndSet persists l only if the stored row still carries
	// expectedVersion; it bumps Version on success and returns
	// ErrVersionConflict otherwise.
	CompareAndSet(ctx context.Context, l *Loan, expectedVersion uint64) error
	// ListUnsettled returns loans whose sync state is Pending or Diverged,
	// oldest first, for the reconciliation prober.
	ListUnsettled(ctx context.Context, limit int) ([]Loan, error)
	// ListByActor returns loans where the actor is borrower or lender,
	// feeding the reputation fold.
	ListByActor(ctx context.Context, actorID string) ([]Loan, error)
}
