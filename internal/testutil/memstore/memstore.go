// Package memstore is an in-memory implementation of the loan and event
// repositories plus the unit of work, for exercising the reconciliation
// engine in tests without a database.
package memstore

import (
	"context"
	"sync"

	"lendsmart-backend/internal/domain/event"
	"lendsmart-backend/internal/domain/loan"
	"lendsmart-backend/internal/domain/uow"
)

type Store struct {
	mu     sync.Mutex
	loans  map[string]*loan.Loan
	events []*event.LedgerEvent
}

func New() *Store {
	return &Store{loans: map[string]*loan.Loan{}}
}

func (s *Store) Loans() loan.Repository   { return (*loanRepo)(s) }
func (s *Store) Events() event.Repository { return (*eventRepo)(s) }
func (s *Store) UoW() uow.UnitOfWork      { return (*memUoW)(s) }

// Put seeds a loan directly.
func (s *Store) Put(l *loan.Loan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loans[l.LoanID] = l.Clone()
}

// EventByID returns a journal row for assertions.
func (s *Store) EventByID(eventID string) *event.LedgerEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.events {
		if e.EventID == eventID {
			cp := *e
			return &cp
		}
	}
	return nil
}

// EventsOf lists the journal for a loan in append order.
func (s *Store) EventsOf(loanID string) []event.LedgerEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []event.LedgerEvent
	for _, e := range s.events {
		if e.LoanID == loanID {
			out = append(out, *e)
		}
	}
	return out
}

// --- loan.Repository ---

type loanRepo Store

func (r *loanRepo) Create(_ context.Context, l *loan.Loan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l.Version == 0 {
		l.Version = 1
	}
	r.loans[l.LoanID] = l.Clone()
	return nil
}

func (r *loanRepo) GetByLoanID(_ context.Context, loanID string) (*loan.Loan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.loans[loanID]
	if !ok {
		return nil, loan.ErrNotFound
	}
	return l.Clone(), nil
}

func (r *loanRepo) GetByLoanIDForUpdate(ctx context.Context, loanID string) (*loan.Loan, error) {
	return r.GetByLoanID(ctx, loanID)
}

func (r *loanRepo) GetOpenLoanByBorrowerID(_ context.Context, borrowerID string) (*loan.Loan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.loans {
		if l.BorrowerID == borrowerID && l.Status == loan.StatusRequested {
			return l.Clone(), nil
		}
	}
	return nil, loan.ErrNotFound
}

func (r *loanRepo) CompareAndSet(_ context.Context, l *loan.Loan, expectedVersion uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.loans[l.LoanID]
	if !ok {
		return loan.ErrNotFound
	}
	if cur.Version != expectedVersion {
		return loan.ErrVersionConflict
	}
	l.Version = expectedVersion + 1
	r.loans[l.LoanID] = l.Clone()
	return nil
}

func (r *loanRepo) ListUnsettled(_ context.Context, limit int) ([]loan.Loan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []loan.Loan
	for _, l := range r.loans {
		if l.SyncState != loan.SyncConfirmed {
			out = append(out, *l.Clone())
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (r *loanRepo) ListByActor(_ context.Context, actorID string) ([]loan.Loan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []loan.Loan
	for _, l := range r.loans {
		if l.BorrowerID == actorID || l.LenderID == actorID {
			out = append(out, *l.Clone())
		}
	}
	return out, nil
}

// --- event.Repository ---

type eventRepo Store

func (r *eventRepo) Append(_ context.Context, e *event.LedgerEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *e
	r.events = append(r.events, &cp)
	return nil
}

func (r *eventRepo) GetPendingByLoanID(_ context.Context, loanID string) (*event.LedgerEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		e := r.events[i]
		if e.LoanID == loanID && e.Outcome == event.OutcomePending {
			cp := *e
			return &cp, nil
		}
	}
	return nil, event.ErrNotFound
}

func (r *eventRepo) MarkOutcome(_ context.Context, eventID string, outcome event.Outcome, txRef string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.EventID == eventID {
			e.Outcome = outcome
			if txRef != "" {
				e.TxRef = txRef
			}
			return nil
		}
	}
	return event.ErrNotFound
}

func (r *eventRepo) NextSeq(_ context.Context, loanID string) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var max uint64
	for _, e := range r.events {
		if e.LoanID == loanID && e.Seq > max {
			max = e.Seq
		}
	}
	return max + 1, nil
}

func (r *eventRepo) ListByLoanID(_ context.Context, loanID string) ([]event.LedgerEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []event.LedgerEvent
	for _, e := range r.events {
		if e.LoanID == loanID {
			out = append(out, *e)
		}
	}
	return out, nil
}

// --- uow.UnitOfWork ---

type memUoW Store

func (u *memUoW) WithinTx(ctx context.Context, fn func(r uow.Repos) error) error {
	s := (*Store)(u)
	return fn(uow.Repos{Loans: s.Loans(), Events: s.Events()})
}

func (u *memUoW) WithinLoanTx(ctx context.Context, loanID string, fn func(r uow.Repos, l *loan.Loan) error) error {
	s := (*Store)(u)
	l, err := s.Loans().GetByLoanIDForUpdate(ctx, loanID)
	if err != nil {
		return err
	}
	return fn(uow.Repos{Loans: s.Loans(), Events: s.Events()}, l)
}
