package event

import "context"

type Repository interface {
	Append(ctx context.Context, e *LedgerEvent) error
	// GetPendingByLoanID returns the single in-flight event for a loan, or
	// ErrNotFound. The engine never opens a second submission while one is
	// pending.
	GetPendingByLoanID(ctx context.Context, loanID string) (*LedgerEvent, error)
	MarkOutcome(ctx context.Context, eventID string, outcome Outcome, txRef string) error
	NextSeq(ctx context.Context, loanID string) (uint64, error)
	ListByLoanID(ctx context.Context, loanID string) ([]LedgerEvent, error)
}
