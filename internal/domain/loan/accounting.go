package loan

import (
	"time"
)

// Accounting deltas. Each Apply* mutates the given loan in place; the
// reconciliation engine always hands them a scratch Clone and only persists
// it after the chain has confirmed the matching operation. They re-check the
// preconditions so a stale replay can never corrupt the accumulators.

// ApplyFunding records a confirmed full funding and generates the repayment
// schedule. amountFunded never exceeds principal; the loan becomes Funded
// exactly when they are equal, which the exact-remainder rule guarantees
// here in a single step.
func ApplyFunding(l *Loan, lenderID string, in Intent, now time.Time) error {
	if l.Status != StatusRequested {
		return ErrInvalidTransition
	}
	if lenderID == l.BorrowerID {
		return ErrSelfLending
	}
	if !in.Amount.Equal(l.Remaining()) {
		return ErrAmountMismatch
	}
	l.LenderID = lenderID
	l.AmountFunded = l.AmountFunded.Add(in.Amount)
	l.Status = StatusFunded
	l.StatusUpdatedAt = now
	l.Schedule = BuildSchedule(l.Principal, l.InterestRate, l.TermUnits, now)
	return nil
}

// ApplyRepayment accumulates a confirmed payment into one installment,
// flips it to Paid at or above its amount due, and moves the loan to Repaid
// once every installment has settled.
func ApplyRepayment(l *Loan, installmentNo int, in Intent, now time.Time) error {
	if l.Status != StatusActive && l.Status != StatusFunded {
		return ErrInvalidTransition
	}
	inst := l.Installment(installmentNo)
	if inst == nil {
		return ErrNoInstallment
	}
	if inst.Status == InstallmentPaid {
		return ErrInstallmentPaid
	}
	if in.Amount.Sign() <= 0 {
		return ErrAmountMismatch
	}
	inst.AmountPaid = inst.AmountPaid.Add(in.Amount)
	l.AmountRepaid = l.AmountRepaid.Add(in.Amount)
	if inst.AmountPaid.GreaterThanOrEqual(inst.AmountDue) {
		inst.Status = InstallmentPaid
		paidAt := in.PaidAt
		if paidAt.IsZero() {
			paidAt = now
		}
		inst.PaidAt = &paidAt
	}
	if l.AllInstallmentsPaid() {
		l.Status = StatusRepaid
		l.StatusUpdatedAt = now
	}
	return nil
}

func ApplyDisbursement(l *Loan, now time.Time) error {
	if l.Status != StatusFunded {
		return ErrInvalidTransition
	}
	l.Status = StatusActive
	l.StatusUpdatedAt = now
	return nil
}

func ApplyCollateral(l *Loan, now time.Time) error {
	if !l.IsCollateralized || l.CollateralDeposited || l.Status != StatusRequested {
		return ErrInvalidTransition
	}
	l.CollateralDeposited = true
	return nil
}

func ApplyCancel(l *Loan, now time.Time) error {
	if l.Status != StatusRequested && l.Status != StatusFunded {
		return ErrInvalidTransition
	}
	l.Status = StatusCancelled
	l.StatusUpdatedAt = now
	return nil
}

func ApplyDefault(l *Loan, now time.Time) error {
	if l.Status != StatusActive {
		return ErrInvalidTransition
	}
	l.Status = StatusDefaulted
	l.StatusUpdatedAt = now
	return nil
}

// ApplyRiskScore is the one mirror-only delta: no chain operation
// accompanies it, so the engine persists it directly.
func ApplyRiskScore(l *Loan, in Intent, now time.Time) error {
	if l.Status != StatusRequested {
		return ErrInvalidTransition
	}
	if l.RiskScore != nil {
		return ErrRiskScoreSet
	}
	score := in.Score
	l.RiskScore = &score
	if in.Reject {
		l.Status = StatusRejected
		l.StatusUpdatedAt = now
	}
	return nil
}
