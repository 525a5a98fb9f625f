package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"lendsmart-backend/internal/domain/event"
	"lendsmart-backend/internal/domain/ledger"
	domain "lendsmart-backend/internal/domain/loan"
	"lendsmart-backend/internal/testutil/ledgermock"
	"lendsmart-backend/internal/testutil/memstore"

	"github.com/shopspring/decimal"
)

const (
	loanID     = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	borrowerID = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	lenderID   = "cccccccccccccccccccccccccccccccc"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func seedLoan(s *memstore.Store, status domain.Status) {
	l := &domain.Loan{
		LoanID:       loanID,
		BorrowerID:   borrowerID,
		Principal:    dec("1000"),
		AmountFunded: decimal.Zero,
		AmountRepaid: decimal.Zero,
		InterestRate: dec("0.00"),
		TermUnits:    2,
		Status:       status,
		SyncState:    domain.SyncConfirmed,
		Version:      1,
	}
	if status != domain.StatusRequested {
		l.LenderID = lenderID
		l.AmountFunded = l.Principal
		l.LedgerRef = "ref-1"
		l.OpSeq = 2
		l.Schedule = domain.BuildSchedule(l.Principal, l.InterestRate, l.TermUnits, time.Now().UTC())
	}
	s.Put(l)
}

func newEngine(s *memstore.Store, chain ledger.Client) *Engine {
	return NewEngine(s.Loans(), s.Events(), s.UoW(), chain, 5*time.Second)
}

func fundIntent() domain.Intent {
	return domain.Intent{Kind: domain.IntentFund, ActorID: lenderID, Role: domain.RoleLender, Amount: dec("1000")}
}

func repayIntent(no int, amount string) domain.Intent {
	return domain.Intent{Kind: domain.IntentRepay, ActorID: borrowerID, Role: domain.RoleBorrower, Amount: dec(amount), InstallmentNo: no, PaidAt: time.Now().UTC()}
}

// Happy path straight through the lifecycle: fund 1000, disburse, repay
// both 500 installments, loan ends Repaid with Confirmed sync throughout.
func TestExecute_HappyPathLifecycle(t *testing.T) {
	s := memstore.New()
	seedLoan(s, domain.StatusRequested)
	chain := &ledgermock.Client{}
	e := newEngine(s, chain)
	ctx := context.Background()

	l, err := e.Execute(ctx, loanID, fundIntent())
	if err != nil {
		t.Fatalf("fund: %v", err)
	}
	if l.Status != domain.StatusFunded || l.SyncState != domain.SyncConfirmed {
		t.Fatalf("after fund: %s/%s", l.Status, l.SyncState)
	}
	if l.LedgerRef == "" {
		t.Fatalf("fund did not register the loan on chain")
	}
	if len(l.Schedule) != 2 || !l.Schedule[0].AmountDue.Equal(dec("500")) {
		t.Fatalf("schedule = %+v", l.Schedule)
	}

	l, err = e.Execute(ctx, loanID, domain.Intent{Kind: domain.IntentDisburse, ActorID: borrowerID, Role: domain.RoleBorrower})
	if err != nil {
		t.Fatalf("disburse: %v", err)
	}
	if l.Status != domain.StatusActive {
		t.Fatalf("after disburse: %s", l.Status)
	}

	l, err = e.Execute(ctx, loanID, repayIntent(1, "500"))
	if err != nil {
		t.Fatalf("repay 1: %v", err)
	}
	if l.Schedule[0].Status != domain.InstallmentPaid || l.Status != domain.StatusActive {
		t.Fatalf("after repay 1: installment=%s loan=%s", l.Schedule[0].Status, l.Status)
	}

	l, err = e.Execute(ctx, loanID, repayIntent(2, "500"))
	if err != nil {
		t.Fatalf("repay 2: %v", err)
	}
	if l.Status != domain.StatusRepaid {
		t.Fatalf("after repay 2: %s, want Repaid", l.Status)
	}
	if !l.AmountRepaid.Equal(dec("1000")) {
		t.Fatalf("amountRepaid = %s", l.AmountRepaid)
	}

	evs := s.EventsOf(loanID)
	if len(evs) != 4 {
		t.Fatalf("journal has %d events, want 4", len(evs))
	}
	for _, ev := range evs {
		if ev.Outcome != event.OutcomeConfirmed {
			t.Fatalf("event %s/%s outcome %s", ev.Kind, ev.EventID, ev.Outcome)
		}
	}
}

// Ledger rejection before acceptance: mirror unchanged, sync state restored,
// error surfaced and safe to retry.
func TestExecute_SubmissionFailureRollsBack(t *testing.T) {
	s := memstore.New()
	seedLoan(s, domain.StatusRequested)
	boom := errors.New("gateway refused")
	chain := &ledgermock.Client{
		FundLoanFn: func(ctx context.Context, ref, lender string, amount decimal.Decimal) (ledger.SubmitResult, error) {
			return ledger.SubmitResult{}, boom
		},
	}
	e := newEngine(s, chain)

	_, err := e.Execute(context.Background(), loanID, fundIntent())
	if !errors.Is(err, ledger.ErrSubmission) {
		t.Fatalf("err = %v, want ErrSubmission", err)
	}

	l, _ := s.Loans().GetByLoanID(context.Background(), loanID)
	if l.Status != domain.StatusRequested || !l.AmountFunded.IsZero() {
		t.Fatalf("mirror mutated on failed submission: %s funded=%s", l.Status, l.AmountFunded)
	}
	if l.SyncState != domain.SyncConfirmed {
		t.Fatalf("sync state = %s, want Confirmed", l.SyncState)
	}
	evs := s.EventsOf(loanID)
	if len(evs) != 1 || evs[0].Outcome != event.OutcomeFailed {
		t.Fatalf("journal = %+v", evs)
	}
}

// Ambiguous timeout, then the probe finds the repayment confirmed on chain.
// The delta is applied exactly once even if the probe runs twice.
func TestExecute_TimeoutThenProbeConfirms_Idempotent(t *testing.T) {
	s := memstore.New()
	seedLoan(s, domain.StatusActive)

	var recMu sync.Mutex
	chainRec := &ledger.Record{
		Ref:          "ref-1",
		Status:       string(domain.StatusActive),
		Principal:    dec("1000"),
		AmountFunded: dec("1000"),
		AmountRepaid: decimal.Zero,
	}
	chain := &ledgermock.Client{
		RepayLoanFn: func(ctx context.Context, ref string, amount decimal.Decimal) (ledger.SubmitResult, error) {
			// The call actually lands on chain, but confirmation never
			// reaches us.
			recMu.Lock()
			chainRec.AmountRepaid = chainRec.AmountRepaid.Add(amount)
			recMu.Unlock()
			return ledger.SubmitResult{}, ledger.ErrTimeout
		},
		GetLoanRecordFn: func(ctx context.Context, ref string) (*ledger.Record, error) {
			recMu.Lock()
			defer recMu.Unlock()
			cp := *chainRec
			return &cp, nil
		},
	}
	e := newEngine(s, chain)
	ctx := context.Background()

	l, err := e.Execute(ctx, loanID, repayIntent(1, "500"))
	if !errors.Is(err, ledger.ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if l.SyncState != domain.SyncPending {
		t.Fatalf("sync state = %s, want Pending", l.SyncState)
	}
	if !l.AmountRepaid.IsZero() {
		t.Fatalf("accounting applied before confirmation: %s", l.AmountRepaid)
	}

	// First probe: replay the confirmed delta.
	l, err = e.Probe(ctx, loanID)
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if l.SyncState != domain.SyncConfirmed {
		t.Fatalf("sync state = %s after probe", l.SyncState)
	}
	if !l.AmountRepaid.Equal(dec("500")) || l.Schedule[0].Status != domain.InstallmentPaid {
		t.Fatalf("delta not applied: repaid=%s installment=%s", l.AmountRepaid, l.Schedule[0].Status)
	}

	// Second probe: no duplicate accounting.
	l, err = e.Probe(ctx, loanID)
	if err != nil {
		t.Fatalf("second probe: %v", err)
	}
	if !l.AmountRepaid.Equal(dec("500")) {
		t.Fatalf("double-applied delta: repaid=%s", l.AmountRepaid)
	}
}

// Timeout where the operation never actually landed: once no submission can
// still be open, the probe reverts the pre-image and the loan is usable
// again. Inside that window the probe refuses to guess.
func TestExecute_TimeoutThenProbeReverts(t *testing.T) {
	s := memstore.New()
	seedLoan(s, domain.StatusActive)

	chain := &ledgermock.Client{
		RepayLoanFn: func(ctx context.Context, ref string, amount decimal.Decimal) (ledger.SubmitResult, error) {
			return ledger.SubmitResult{}, ledger.ErrTimeout
		},
		GetLoanRecordFn: func(ctx context.Context, ref string) (*ledger.Record, error) {
			return &ledger.Record{
				Ref:          "ref-1",
				Status:       string(domain.StatusActive),
				Principal:    dec("1000"),
				AmountFunded: dec("1000"),
				AmountRepaid: decimal.Zero,
			}, nil
		},
	}
	e := newEngine(s, chain)
	ctx := context.Background()

	if _, err := e.Execute(ctx, loanID, repayIntent(1, "500")); !errors.Is(err, ledger.ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}

	// Too soon: a submission from another process could still be open.
	if _, err := e.Probe(ctx, loanID); !errors.Is(err, ErrAlreadyInProgress) {
		t.Fatalf("early probe err = %v, want ErrAlreadyInProgress", err)
	}
	l, _ := s.Loans().GetByLoanID(ctx, loanID)
	if l.SyncState != domain.SyncPending {
		t.Fatalf("early probe settled the loan: %s", l.SyncState)
	}

	// Past the submit timeout every call for the event has returned.
	e.now = func() time.Time { return time.Now().UTC().Add(time.Minute) }

	l, err := e.Probe(ctx, loanID)
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if l.SyncState != domain.SyncConfirmed {
		t.Fatalf("sync state = %s", l.SyncState)
	}
	if !l.AmountRepaid.IsZero() {
		t.Fatalf("phantom repayment applied: %s", l.AmountRepaid)
	}
	evs := s.EventsOf(loanID)
	if len(evs) != 1 || evs[0].Outcome != event.OutcomeFailed {
		t.Fatalf("journal = %+v", evs)
	}

	// The loan accepts the retry afterwards.
	chain.RepayLoanFn = nil
	if _, err := e.Execute(ctx, loanID, repayIntent(1, "500")); err != nil {
		t.Fatalf("retry after revert: %v", err)
	}
}

// A probe that lands while a submission is still on the wire must not revert
// the journalled event: the call may yet confirm, and a revert would let a
// second operation alias its effect on the mirror.
func TestProbe_DoesNotRevertInFlightSubmission(t *testing.T) {
	s := memstore.New()
	seedLoan(s, domain.StatusActive)

	var recMu sync.Mutex
	chainRec := &ledger.Record{
		Ref:          "ref-1",
		Status:       string(domain.StatusActive),
		Principal:    dec("1000"),
		AmountFunded: dec("1000"),
		AmountRepaid: decimal.Zero,
	}
	release := make(chan struct{})
	chain := &ledgermock.Client{
		RepayLoanFn: func(ctx context.Context, ref string, amount decimal.Decimal) (ledger.SubmitResult, error) {
			// Slow chain: the call confirms only once released.
			<-release
			recMu.Lock()
			chainRec.AmountRepaid = chainRec.AmountRepaid.Add(amount)
			recMu.Unlock()
			return ledger.SubmitResult{TxRef: "0xslow", Confirmed: true}, nil
		},
		GetLoanRecordFn: func(ctx context.Context, ref string) (*ledger.Record, error) {
			recMu.Lock()
			defer recMu.Unlock()
			cp := *chainRec
			return &cp, nil
		},
	}
	e := newEngine(s, chain)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := e.Execute(ctx, loanID, repayIntent(1, "500"))
		done <- err
	}()

	// Wait until the pre-image is journalled and the call is on the wire.
	deadline := time.Now().Add(time.Second)
	for {
		if evs := s.EventsOf(loanID); len(evs) == 1 && evs[0].Outcome == event.OutcomePending {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("submission never started")
		}
		time.Sleep(time.Millisecond)
	}

	if _, err := e.Probe(ctx, loanID); !errors.Is(err, ErrAlreadyInProgress) {
		t.Fatalf("probe err = %v, want ErrAlreadyInProgress", err)
	}
	if evs := s.EventsOf(loanID); evs[0].Outcome != event.OutcomePending {
		t.Fatalf("probe settled an in-flight event: %s", evs[0].Outcome)
	}
	// A second intent is refused rather than journalled beside the open one.
	if _, err := e.Execute(ctx, loanID, repayIntent(2, "500")); !errors.Is(err, ErrAlreadyInProgress) {
		t.Fatalf("second intent err = %v, want ErrAlreadyInProgress", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("slow repay: %v", err)
	}

	l, _ := s.Loans().GetByLoanID(ctx, loanID)
	recMu.Lock()
	onChain := chainRec.AmountRepaid
	recMu.Unlock()
	if !l.AmountRepaid.Equal(dec("500")) || !onChain.Equal(l.AmountRepaid) {
		t.Fatalf("mirror repaid %s, chain repaid %s", l.AmountRepaid, onChain)
	}
	evs := s.EventsOf(loanID)
	if len(evs) != 1 || evs[0].Outcome != event.OutcomeConfirmed {
		t.Fatalf("journal = %+v", evs)
	}
}

// The chain says Defaulted while the mirror says Active with no journalled
// submission explaining it. The loan freezes and mutations are rejected.
func TestProbe_DivergenceFreezesLoan(t *testing.T) {
	s := memstore.New()
	seedLoan(s, domain.StatusActive)
	// Force the prober to look at this loan.
	ctx := context.Background()
	l, _ := s.Loans().GetByLoanID(ctx, loanID)
	l.SyncState = domain.SyncPending
	if err := s.Loans().CompareAndSet(ctx, l, l.Version); err != nil {
		t.Fatalf("seed pending: %v", err)
	}

	chain := &ledgermock.Client{
		GetLoanRecordFn: func(ctx context.Context, ref string) (*ledger.Record, error) {
			return &ledger.Record{
				Ref:          "ref-1",
				Status:       string(domain.StatusDefaulted),
				Principal:    dec("1000"),
				AmountFunded: dec("1000"),
			}, nil
		},
	}
	e := newEngine(s, chain)

	if _, err := e.Probe(ctx, loanID); !errors.Is(err, domain.ErrDiverged) {
		t.Fatalf("probe err = %v, want ErrDiverged", err)
	}
	l, _ = s.Loans().GetByLoanID(ctx, loanID)
	if l.SyncState != domain.SyncDiverged {
		t.Fatalf("sync state = %s, want Diverged", l.SyncState)
	}

	// Any further mutation is rejected.
	if _, err := e.Execute(ctx, loanID, repayIntent(1, "500")); !errors.Is(err, domain.ErrDiverged) {
		t.Fatalf("repay on diverged loan: err = %v, want ErrDiverged", err)
	}
}

// Cancelling a Requested loan that never touched the chain is mirror-only.
func TestExecute_LocalCancelBeforeAnySubmission(t *testing.T) {
	s := memstore.New()
	seedLoan(s, domain.StatusRequested)
	chainCalled := false
	chain := &ledgermock.Client{
		CancelLoanRequestFn: func(ctx context.Context, ref string) (ledger.SubmitResult, error) {
			chainCalled = true
			return ledger.SubmitResult{Confirmed: true}, nil
		},
	}
	e := newEngine(s, chain)

	l, err := e.Execute(context.Background(), loanID, domain.Intent{Kind: domain.IntentCancel, ActorID: borrowerID, Role: domain.RoleBorrower})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if l.Status != domain.StatusCancelled {
		t.Fatalf("status = %s", l.Status)
	}
	if chainCalled {
		t.Fatalf("local cancel reached the chain")
	}
	if evs := s.EventsOf(loanID); len(evs) != 0 {
		t.Fatalf("local cancel journalled a chain op: %+v", evs)
	}
}

// Risk scoring is mirror-only and persists without any chain traffic.
func TestExecute_RiskScoreIsMirrorOnly(t *testing.T) {
	s := memstore.New()
	seedLoan(s, domain.StatusRequested)
	chain := &ledgermock.Client{
		RequestLoanFn: func(ctx context.Context, tm ledger.Terms) (string, ledger.SubmitResult, error) {
			t.Fatalf("risk score touched the chain")
			return "", ledger.SubmitResult{}, nil
		},
	}
	e := newEngine(s, chain)

	l, err := e.Execute(context.Background(), loanID, domain.Intent{
		Kind: domain.IntentRiskScore, ActorID: "dddddddddddddddddddddddddddddddd", Role: domain.RoleAssessor, Score: dec("0.3"),
	})
	if err != nil {
		t.Fatalf("risk score: %v", err)
	}
	if l.RiskScore == nil || !l.RiskScore.Equal(dec("0.3")) {
		t.Fatalf("score not persisted")
	}
}

// Validation failures never reach the chain.
func TestExecute_ValidationNeverTouchesLedger(t *testing.T) {
	s := memstore.New()
	seedLoan(s, domain.StatusRequested)
	chain := &ledgermock.Client{
		RequestLoanFn: func(ctx context.Context, tm ledger.Terms) (string, ledger.SubmitResult, error) {
			t.Fatalf("invalid intent reached the chain")
			return "", ledger.SubmitResult{}, nil
		},
	}
	e := newEngine(s, chain)

	// partial funding
	in := fundIntent()
	in.Amount = dec("400")
	if _, err := e.Execute(context.Background(), loanID, in); !errors.Is(err, domain.ErrAmountMismatch) {
		t.Fatalf("err = %v, want ErrAmountMismatch", err)
	}
	// self lending
	in = fundIntent()
	in.ActorID = borrowerID
	if _, err := e.Execute(context.Background(), loanID, in); !errors.Is(err, domain.ErrSelfLending) {
		t.Fatalf("err = %v, want ErrSelfLending", err)
	}
}

// A second intent while one is pending is refused, not queued behind the
// unknown outcome.
func TestExecute_PendingLoanRefusesSecondMutation(t *testing.T) {
	s := memstore.New()
	seedLoan(s, domain.StatusActive)
	chain := &ledgermock.Client{
		RepayLoanFn: func(ctx context.Context, ref string, amount decimal.Decimal) (ledger.SubmitResult, error) {
			return ledger.SubmitResult{}, ledger.ErrTimeout
		},
		GetLoanRecordFn: func(ctx context.Context, ref string) (*ledger.Record, error) {
			// Probe cannot settle it either.
			return nil, errors.New("gateway unreachable")
		},
	}
	e := newEngine(s, chain)
	ctx := context.Background()

	if _, err := e.Execute(ctx, loanID, repayIntent(1, "500")); !errors.Is(err, ledger.ErrTimeout) {
		t.Fatalf("first repay err = %v", err)
	}
	if _, err := e.Execute(ctx, loanID, repayIntent(2, "500")); !errors.Is(err, ErrAlreadyInProgress) {
		t.Fatalf("second repay err = %v, want ErrAlreadyInProgress", err)
	}
}

// Concurrent funding intents against the same loan serialize on the lease:
// whatever the interleaving, the accounting applies exactly once.
func TestExecute_SameLoanSerialized(t *testing.T) {
	s := memstore.New()
	seedLoan(s, domain.StatusRequested)
	chain := &ledgermock.Client{}
	e := newEngine(s, chain)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := 0; i < len(errs); i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.Execute(context.Background(), loanID, fundIntent())
		}(i)
	}
	wg.Wait()

	won := 0
	for _, err := range errs {
		if err == nil {
			won++
		}
	}
	if won == 0 {
		t.Fatalf("no funding intent succeeded: %v", errs)
	}
	l, _ := s.Loans().GetByLoanID(context.Background(), loanID)
	if !l.AmountFunded.Equal(dec("1000")) {
		t.Fatalf("amountFunded = %s after race, want exactly 1000", l.AmountFunded)
	}
	if l.Status != domain.StatusFunded || len(l.Schedule) != 2 {
		t.Fatalf("status %s with %d installments after race", l.Status, len(l.Schedule))
	}
}
