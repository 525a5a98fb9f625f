package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	domainEvent "lendsmart-backend/internal/domain/event"
	"lendsmart-backend/internal/domain/ledger"
	domainLoan "lendsmart-backend/internal/domain/loan"
	"lendsmart-backend/internal/domain/uow"
	"lendsmart-backend/pkg/id"
)

var (
	// ErrAlreadyInProgress: a prior submission for this loan is still
	// awaiting its chain outcome; callers poll until it settles.
	ErrAlreadyInProgress = errors.New("a ledger operation for this loan is still pending")
)

// Engine drives the two-phase write that makes a chain-plus-mirror mutation
// look atomic: journal a pre-image, submit to the chain, commit the
// accounting delta only after confirmation. The chain is the source of truth
// for money movement; the mirror never gets ahead of it.
type Engine struct {
	loans  domainLoan.Repository
	events domainEvent.Repository
	uow    uow.UnitOfWork
	chain  ledger.Client

	lease         *lease
	submitTimeout time.Duration

	// Loans with a chain call currently awaiting its response in this
	// process. The probe must never revert their pending event: the call may
	// yet land, and a revert would let a second operation alias its effect.
	inflightMu sync.Mutex
	inflight   map[string]struct{}

	now func() time.Time
}

func NewEngine(loans domainLoan.Repository, events domainEvent.Repository, tx uow.UnitOfWork, chain ledger.Client, submitTimeout time.Duration) *Engine {
	return &Engine{
		loans:         loans,
		events:        events,
		uow:           tx,
		chain:         chain,
		lease:         newLease(),
		submitTimeout: submitTimeout,
		inflight:      map[string]struct{}{},
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Execute validates the intent, journals a pre-image, submits the required
// chain operation and commits the mirror delta once confirmed.
//
// On ledger.ErrTimeout the loan is returned in sync state Pending together
// with the sentinel: the outcome is unknown until a probe settles it.
func (e *Engine) Execute(ctx context.Context, loanID string, in domainLoan.Intent) (*domainLoan.Loan, error) {
	e.lease.acquire(loanID)
	l, err := e.loans.GetByLoanID(ctx, loanID)
	if err != nil {
		e.lease.release(loanID)
		return nil, err
	}

	// A loan stuck in Pending gets one repair attempt before we refuse.
	if l.SyncState == domainLoan.SyncPending {
		e.lease.release(loanID)
		if l, err = e.Probe(ctx, loanID); err != nil {
			if errors.Is(err, domainLoan.ErrDiverged) || errors.Is(err, ErrAlreadyInProgress) {
				return l, err
			}
			return l, fmt.Errorf("%w: %v", ErrAlreadyInProgress, err)
		}
		e.lease.acquire(loanID)
		if l.SyncState == domainLoan.SyncPending {
			e.lease.release(loanID)
			return l, ErrAlreadyInProgress
		}
	}

	out, err := domainLoan.Transition(l, in)
	if err != nil {
		e.lease.release(loanID)
		return nil, err
	}

	// Mirror-only transition: no chain call, persist directly.
	if out.LedgerOp == ledger.OpNone {
		defer e.lease.release(loanID)
		return e.commitInternal(ctx, l, in)
	}

	// Cancellation before anything ever reached the chain stays local.
	if out.LedgerOp == ledger.OpCancel && l.LedgerRef == "" && l.OpSeq == 0 {
		defer e.lease.release(loanID)
		return e.commitLocalCancel(ctx, l)
	}

	// Phase 1: journal the pre-image and mark the mirror Pending, in one tx.
	ev, err := e.writePreImage(ctx, l, in, out)
	if err != nil {
		e.lease.release(loanID)
		return nil, err
	}

	// Phase 2: submit. The lease is not held across the confirmation wait so
	// probes and late callers on the same loan are not starved, but the loan
	// is registered in flight so no probe reverts the event underneath the
	// open call.
	e.beginSubmit(loanID)
	e.lease.release(loanID)
	res, submitErr := e.submit(ctx, l, in, out)

	e.lease.acquire(loanID)
	defer e.lease.release(loanID)
	defer e.endSubmit(loanID)

	switch {
	case submitErr == nil:
		// Phase 3: confirmed; apply the accounting delta under the lock.
		return e.commitConfirmed(ctx, loanID, ev, in, res)

	case errors.Is(submitErr, ledger.ErrTimeout):
		log.Printf("reconcile: loan %s op %s ambiguous, awaiting probe", loanID, ev.Kind)
		cur, err := e.loans.GetByLoanID(ctx, loanID)
		if err != nil {
			return nil, err
		}
		return cur, ledger.ErrTimeout

	default:
		// The chain rejected the call before acceptance: nothing moved.
		// Restore the prior sync state and surface the failure.
		if err := e.rollbackFailed(ctx, loanID, ev); err != nil {
			return nil, err
		}
		cur, _ := e.loans.GetByLoanID(ctx, loanID)
		return cur, fmt.Errorf("%w: %v", ledger.ErrSubmission, submitErr)
	}
}

// Probe compares the chain record against the mirror and repairs the
// difference: replay a confirmed-but-uncommitted delta, revert one that
// never landed, or freeze the loan when the two disagree on terminal facts.
// Replays are idempotent via the per-loan operation sequence.
func (e *Engine) Probe(ctx context.Context, loanID string) (*domainLoan.Loan, error) {
	e.lease.acquire(loanID)
	defer e.lease.release(loanID)

	l, err := e.loans.GetByLoanID(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if l.SyncState == domainLoan.SyncDiverged {
		return l, domainLoan.ErrDiverged
	}

	ev, evErr := e.events.GetPendingByLoanID(ctx, loanID)
	if evErr != nil && !errors.Is(evErr, domainEvent.ErrNotFound) {
		return nil, evErr
	}

	if l.LedgerRef == "" {
		// Nothing was ever registered on chain, so a pending submission can
		// only be the registration itself, and its ref never came back.
		// Once the call can no longer be open, treat it as never-happened
		// and let the caller retry.
		if ev != nil {
			if e.stillInFlight(ev) {
				return l, ErrAlreadyInProgress
			}
			if err := e.revertPending(ctx, loanID, ev); err != nil {
				return nil, err
			}
			return e.loans.GetByLoanID(ctx, loanID)
		}
		return l, nil
	}

	rec, err := e.chain.GetLoanRecord(ctx, l.LedgerRef)
	if err != nil {
		// Leave the mirror untouched; the prober will come back.
		return l, err
	}

	if ev != nil {
		// Replaying a confirmed delta is safe at any time; the sequence
		// guard in commitConfirmed makes it idempotent.
		if opCompleted(ev, rec) {
			return e.commitConfirmed(ctx, loanID, ev, intentFromEvent(ev), ledger.SubmitResult{TxRef: ev.TxRef, Confirmed: true})
		}
		// The record not reflecting the op does not mean it failed: the
		// submission may still be awaiting its response. Revert only once
		// no open call can exist for this event.
		if e.stillInFlight(ev) {
			return l, ErrAlreadyInProgress
		}
		if err := e.revertPending(ctx, loanID, ev); err != nil {
			return nil, err
		}
		l, err = e.loans.GetByLoanID(ctx, loanID)
		if err != nil {
			return nil, err
		}
	}

	// No in-flight operation explains a disagreement on terminal facts:
	// that is a divergence, frozen for manual review, never auto-resolved.
	if diverged(l, rec) {
		if err := e.markDiverged(ctx, loanID); err != nil {
			return nil, err
		}
		cur, _ := e.loans.GetByLoanID(ctx, loanID)
		log.Printf("reconcile: ALERT loan %s diverged (mirror=%s ledger=%s)", loanID, l.Status, rec.Status)
		return cur, domainLoan.ErrDiverged
	}

	if l.SyncState != domainLoan.SyncConfirmed {
		if err := e.setSyncState(ctx, loanID, domainLoan.SyncConfirmed); err != nil {
			return nil, err
		}
		return e.loans.GetByLoanID(ctx, loanID)
	}
	return l, nil
}

// --- phases ---

func (e *Engine) writePreImage(ctx context.Context, l *domainLoan.Loan, in domainLoan.Intent, out domainLoan.Outcome) (*domainEvent.LedgerEvent, error) {
	ev := &domainEvent.LedgerEvent{
		EventID:       id.NewID32(),
		LoanID:        l.LoanID,
		Kind:          string(in.Kind),
		ActorID:       in.ActorID,
		Amount:        in.Amount,
		InstallmentNo: in.InstallmentNo,
		Outcome:       domainEvent.OutcomePending,
		PriorStatus:   string(l.Status),
		PriorSync:     string(l.SyncState),
		PriorFunded:   l.AmountFunded,
		PriorRepaid:   l.AmountRepaid,
		CreatedAt:     e.now(),
	}
	err := e.uow.WithinLoanTx(ctx, l.LoanID, func(r uow.Repos, locked *domainLoan.Loan) error {
		if locked.Version != l.Version {
			return domainLoan.ErrVersionConflict
		}
		// Failed attempts consume sequence numbers too, so two distinct
		// confirmed operations can never share one.
		seq, err := r.Events.NextSeq(ctx, l.LoanID)
		if err != nil {
			return err
		}
		if seq <= locked.OpSeq {
			seq = locked.OpSeq + 1
		}
		ev.Seq = seq
		if err := r.Events.Append(ctx, ev); err != nil {
			return err
		}
		locked.SyncState = domainLoan.SyncPending
		return r.Loans.CompareAndSet(ctx, locked, locked.Version)
	})
	if err != nil {
		return nil, err
	}
	return ev, nil
}

func (e *Engine) beginSubmit(loanID string) {
	e.inflightMu.Lock()
	e.inflight[loanID] = struct{}{}
	e.inflightMu.Unlock()
}

func (e *Engine) endSubmit(loanID string) {
	e.inflightMu.Lock()
	delete(e.inflight, loanID)
	e.inflightMu.Unlock()
}

// stillInFlight reports whether a submission for the pending event could
// still be awaiting its chain response: either this process has the call
// open, or the event is younger than the submit timeout (no call outlives
// its deadline, and a crashed process takes its open calls with it).
func (e *Engine) stillInFlight(ev *domainEvent.LedgerEvent) bool {
	e.inflightMu.Lock()
	_, open := e.inflight[ev.LoanID]
	e.inflightMu.Unlock()
	if open {
		return true
	}
	return e.now().Sub(ev.CreatedAt) < e.submitTimeout
}

func (e *Engine) submit(ctx context.Context, l *domainLoan.Loan, in domainLoan.Intent, out domainLoan.Outcome) (ledger.SubmitResult, error) {
	ctx, cancel := context.WithTimeout(ctx, e.submitTimeout)
	defer cancel()

	ref := l.LedgerRef
	if ref == "" {
		// First chain-bearing operation registers the loan to obtain its
		// on-chain index. Applying a loan makes no chain call by itself.
		newRef, _, err := e.chain.RequestLoan(ctx, ledger.Terms{
			Borrower:         l.BorrowerID,
			Principal:        l.Principal,
			InterestRate:     l.InterestRate,
			TermUnits:        l.TermUnits,
			Collateralized:   l.IsCollateralized,
			CollateralAmount: l.CollateralAmount,
		})
		if err != nil {
			return ledger.SubmitResult{}, err
		}
		ref = newRef
		if err := e.storeLedgerRef(ctx, l.LoanID, ref); err != nil {
			return ledger.SubmitResult{}, err
		}
	}

	switch out.LedgerOp {
	case ledger.OpFund:
		return e.chain.FundLoan(ctx, ref, in.ActorID, in.Amount)
	case ledger.OpDisburse:
		return e.chain.DisburseLoan(ctx, ref)
	case ledger.OpRepay:
		return e.chain.RepayLoan(ctx, ref, in.Amount)
	case ledger.OpCollateral:
		return e.chain.DepositCollateral(ctx, ref, in.Amount)
	case ledger.OpCancel:
		return e.chain.CancelLoanRequest(ctx, ref)
	case ledger.OpDefault:
		return e.chain.MarkDefaulted(ctx, ref)
	}
	return ledger.SubmitResult{}, fmt.Errorf("%w: unknown op %q", ledger.ErrSubmission, out.LedgerOp)
}

func (e *Engine) commitConfirmed(ctx context.Context, loanID string, ev *domainEvent.LedgerEvent, in domainLoan.Intent, res ledger.SubmitResult) (*domainLoan.Loan, error) {
	var out *domainLoan.Loan
	apply := func(r uow.Repos, locked *domainLoan.Loan) error {
		if locked.OpSeq >= ev.Seq {
			// Replay of an already-committed operation: fix bookkeeping only.
			locked.SyncState = domainLoan.SyncConfirmed
			if err := r.Loans.CompareAndSet(ctx, locked, locked.Version); err != nil {
				return err
			}
			return r.Events.MarkOutcome(ctx, ev.EventID, domainEvent.OutcomeConfirmed, res.TxRef)
		}

		next := locked.Clone()
		now := e.now()
		var err error
		switch domainLoan.IntentKind(ev.Kind) {
		case domainLoan.IntentFund:
			err = domainLoan.ApplyFunding(next, ev.ActorID, in, now)
		case domainLoan.IntentDisburse:
			err = domainLoan.ApplyDisbursement(next, now)
		case domainLoan.IntentRepay:
			err = domainLoan.ApplyRepayment(next, ev.InstallmentNo, in, now)
		case domainLoan.IntentCollateral:
			err = domainLoan.ApplyCollateral(next, now)
		case domainLoan.IntentCancel:
			err = domainLoan.ApplyCancel(next, now)
		case domainLoan.IntentDefault:
			err = domainLoan.ApplyDefault(next, now)
		default:
			err = domainLoan.ErrInvalidTransition
		}
		if err != nil {
			// The confirmation is real but no longer applicable to the
			// mirror (superseded by a later state). Discard it.
			locked.SyncState = domainLoan.SyncConfirmed
			locked.OpSeq = ev.Seq
			if err := r.Loans.CompareAndSet(ctx, locked, locked.Version); err != nil {
				return err
			}
			return r.Events.MarkOutcome(ctx, ev.EventID, domainEvent.OutcomeSuperseded, res.TxRef)
		}

		next.OpSeq = ev.Seq
		next.SyncState = domainLoan.SyncConfirmed
		if err := r.Loans.CompareAndSet(ctx, next, locked.Version); err != nil {
			return err
		}
		out = next
		return r.Events.MarkOutcome(ctx, ev.EventID, domainEvent.OutcomeConfirmed, res.TxRef)
	}

	err := e.uow.WithinLoanTx(ctx, loanID, apply)
	if errors.Is(err, domainLoan.ErrVersionConflict) {
		// One internal retry with a fresh read before surfacing the conflict.
		err = e.uow.WithinLoanTx(ctx, loanID, apply)
	}
	if err != nil {
		return nil, err
	}
	if out == nil {
		return e.loans.GetByLoanID(ctx, loanID)
	}
	return out, nil
}

func (e *Engine) commitInternal(ctx context.Context, l *domainLoan.Loan, in domainLoan.Intent) (*domainLoan.Loan, error) {
	var out *domainLoan.Loan
	err := e.uow.WithinLoanTx(ctx, l.LoanID, func(r uow.Repos, locked *domainLoan.Loan) error {
		next := locked.Clone()
		if err := domainLoan.ApplyRiskScore(next, in, e.now()); err != nil {
			return err
		}
		if err := r.Loans.CompareAndSet(ctx, next, locked.Version); err != nil {
			return err
		}
		out = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Engine) commitLocalCancel(ctx context.Context, l *domainLoan.Loan) (*domainLoan.Loan, error) {
	var out *domainLoan.Loan
	err := e.uow.WithinLoanTx(ctx, l.LoanID, func(r uow.Repos, locked *domainLoan.Loan) error {
		next := locked.Clone()
		if err := domainLoan.ApplyCancel(next, e.now()); err != nil {
			return err
		}
		if err := r.Loans.CompareAndSet(ctx, next, locked.Version); err != nil {
			return err
		}
		out = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Engine) rollbackFailed(ctx context.Context, loanID string, ev *domainEvent.LedgerEvent) error {
	return e.uow.WithinLoanTx(ctx, loanID, func(r uow.Repos, locked *domainLoan.Loan) error {
		locked.SyncState = domainLoan.SyncState(ev.PriorSync)
		if err := r.Loans.CompareAndSet(ctx, locked, locked.Version); err != nil {
			return err
		}
		return r.Events.MarkOutcome(ctx, ev.EventID, domainEvent.OutcomeFailed, "")
	})
}

func (e *Engine) revertPending(ctx context.Context, loanID string, ev *domainEvent.LedgerEvent) error {
	return e.uow.WithinLoanTx(ctx, loanID, func(r uow.Repos, locked *domainLoan.Loan) error {
		// The operation never landed on chain; the mirror only ever moved
		// its sync flag, so restoring the pre-image sync state is enough.
		locked.Status = domainLoan.Status(ev.PriorStatus)
		locked.AmountFunded = ev.PriorFunded
		locked.AmountRepaid = ev.PriorRepaid
		locked.SyncState = domainLoan.SyncConfirmed
		if err := r.Loans.CompareAndSet(ctx, locked, locked.Version); err != nil {
			return err
		}
		return r.Events.MarkOutcome(ctx, ev.EventID, domainEvent.OutcomeFailed, "")
	})
}

func (e *Engine) markDiverged(ctx context.Context, loanID string) error {
	return e.setSyncState(ctx, loanID, domainLoan.SyncDiverged)
}

func (e *Engine) setSyncState(ctx context.Context, loanID string, s domainLoan.SyncState) error {
	return e.uow.WithinLoanTx(ctx, loanID, func(r uow.Repos, locked *domainLoan.Loan) error {
		locked.SyncState = s
		return r.Loans.CompareAndSet(ctx, locked, locked.Version)
	})
}

func (e *Engine) storeLedgerRef(ctx context.Context, loanID, ref string) error {
	return e.uow.WithinLoanTx(ctx, loanID, func(r uow.Repos, locked *domainLoan.Loan) error {
		locked.LedgerRef = ref
		return r.Loans.CompareAndSet(ctx, locked, locked.Version)
	})
}

// --- comparison helpers ---

// opCompleted decides whether the chain record already reflects the pending
// operation.
func opCompleted(ev *domainEvent.LedgerEvent, rec *ledger.Record) bool {
	switch domainLoan.IntentKind(ev.Kind) {
	case domainLoan.IntentFund:
		return rec.AmountFunded.GreaterThanOrEqual(ev.PriorFunded.Add(ev.Amount))
	case domainLoan.IntentRepay:
		return rec.AmountRepaid.GreaterThanOrEqual(ev.PriorRepaid.Add(ev.Amount))
	case domainLoan.IntentDisburse:
		return rec.Status == string(domainLoan.StatusActive)
	case domainLoan.IntentCollateral:
		return rec.CollateralDeposited
	case domainLoan.IntentCancel:
		return rec.Cancelled || rec.Status == string(domainLoan.StatusCancelled)
	case domainLoan.IntentDefault:
		return rec.Status == string(domainLoan.StatusDefaulted)
	}
	return false
}

// diverged reports a terminal-fact disagreement that no journalled
// in-flight operation accounts for.
func diverged(l *domainLoan.Loan, rec *ledger.Record) bool {
	ledgerStatus := domainLoan.Status(rec.Status)
	if ledgerStatus.Terminal() && l.Status != ledgerStatus {
		return true
	}
	if l.Status.Terminal() && !ledgerStatus.Terminal() && ledgerStatus != "" {
		// Mirror reached a terminal state the chain does not know about.
		// Cancelled-before-registration loans never had a chain record, so
		// they cannot reach this path (LedgerRef is empty).
		return l.Status != domainLoan.StatusRejected
	}
	return false
}

func intentFromEvent(ev *domainEvent.LedgerEvent) domainLoan.Intent {
	return domainLoan.Intent{
		Kind:          domainLoan.IntentKind(ev.Kind),
		ActorID:       ev.ActorID,
		Amount:        ev.Amount,
		InstallmentNo: ev.InstallmentNo,
	}
}
