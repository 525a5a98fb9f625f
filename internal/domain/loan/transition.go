package loan

import (
	"time"

	"lendsmart-backend/internal/domain/ledger"

	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleBorrower Role = "borrower"
	RoleLender   Role = "lender"
	RoleAssessor Role = "assessor"
)

type IntentKind string

const (
	IntentFund       IntentKind = "fund"
	IntentDisburse   IntentKind = "disburse"
	IntentRepay      IntentKind = "repay"
	IntentCollateral IntentKind = "collateral"
	IntentCancel     IntentKind = "cancel"
	IntentRiskScore  IntentKind = "risk_score"
	IntentDefault    IntentKind = "default"
)

// Intent is a requested lifecycle action, before validation.
type Intent struct {
	Kind    IntentKind
	ActorID string
	Role    Role

	Amount        decimal.Decimal // fund, repay, collateral
	InstallmentNo int             // repay
	PaidAt        time.Time       // repay
	Score         decimal.Decimal // risk_score
	Reject        bool            // risk_score
}

// Outcome describes what a legal transition commits to: the status the
// mirror moves to once the chain confirms, and the contract operation that
// must accompany it (OpNone for purely internal transitions).
type Outcome struct {
	NewStatus Status
	LedgerOp  ledger.OpKind
}

// Transition validates an intent against the current snapshot and computes
// the outcome. It never mutates the loan; accounting deltas are applied
// separately after ledger confirmation.
//
// Legal status moves:
//
//	Requested -> Funded | Cancelled | Rejected
//	Funded    -> Active | Cancelled
//	Active    -> Repaid | Defaulted
func Transition(l *Loan, in Intent) (Outcome, error) {
	if l.SyncState == SyncDiverged {
		return Outcome{}, ErrDiverged
	}
	if l.Status.Terminal() {
		return Outcome{}, ErrTerminal
	}

	switch in.Kind {
	case IntentFund:
		if in.Role != RoleLender {
			return Outcome{}, ErrRoleNotAllowed
		}
		if in.ActorID == l.BorrowerID {
			return Outcome{}, ErrSelfLending
		}
		if l.Status != StatusRequested {
			return Outcome{}, ErrInvalidTransition
		}
		// Full funding only: the amount must match the remaining principal
		// exactly, no partial-lender fragmentation.
		if !in.Amount.Equal(l.Remaining()) {
			return Outcome{}, ErrAmountMismatch
		}
		return Outcome{NewStatus: StatusFunded, LedgerOp: ledger.OpFund}, nil

	case IntentDisburse:
		if in.Role != RoleBorrower && in.Role != RoleLender {
			return Outcome{}, ErrRoleNotAllowed
		}
		if in.ActorID != l.BorrowerID && in.ActorID != l.LenderID {
			return Outcome{}, ErrRoleNotAllowed
		}
		if l.Status != StatusFunded {
			return Outcome{}, ErrInvalidTransition
		}
		return Outcome{NewStatus: StatusActive, LedgerOp: ledger.OpDisburse}, nil

	case IntentRepay:
		if in.Role != RoleBorrower || in.ActorID != l.BorrowerID {
			return Outcome{}, ErrRoleNotAllowed
		}
		if l.Status != StatusActive && l.Status != StatusFunded {
			return Outcome{}, ErrInvalidTransition
		}
		inst := l.Installment(in.InstallmentNo)
		if inst == nil {
			return Outcome{}, ErrNoInstallment
		}
		if inst.Status == InstallmentPaid {
			return Outcome{}, ErrInstallmentPaid
		}
		if in.Amount.Sign() <= 0 {
			return Outcome{}, ErrAmountMismatch
		}
		// Whether the loan flips to Repaid is accounting's call, once the
		// confirmed payment settles the last open installment.
		return Outcome{NewStatus: l.Status, LedgerOp: ledger.OpRepay}, nil

	case IntentCollateral:
		if in.Role != RoleBorrower || in.ActorID != l.BorrowerID {
			return Outcome{}, ErrRoleNotAllowed
		}
		if !l.IsCollateralized {
			return Outcome{}, ErrNotCollateral
		}
		if l.Status != StatusRequested || l.CollateralDeposited {
			return Outcome{}, ErrInvalidTransition
		}
		if !in.Amount.Equal(l.CollateralAmount) {
			return Outcome{}, ErrAmountMismatch
		}
		return Outcome{NewStatus: l.Status, LedgerOp: ledger.OpCollateral}, nil

	case IntentCancel:
		if in.Role != RoleBorrower || in.ActorID != l.BorrowerID {
			return Outcome{}, ErrRoleNotAllowed
		}
		// A Funded loan may still be cancelled before disbursement.
		if l.Status != StatusRequested && l.Status != StatusFunded {
			return Outcome{}, ErrInvalidTransition
		}
		return Outcome{NewStatus: StatusCancelled, LedgerOp: ledger.OpCancel}, nil

	case IntentRiskScore:
		if in.Role != RoleAssessor {
			return Outcome{}, ErrRoleNotAllowed
		}
		if l.Status != StatusRequested {
			return Outcome{}, ErrInvalidTransition
		}
		if l.RiskScore != nil {
			return Outcome{}, ErrRiskScoreSet
		}
		if in.Score.Sign() < 0 || in.Score.GreaterThan(decimal.NewFromInt(1)) {
			return Outcome{}, ErrAmountMismatch
		}
		next := StatusRequested
		if in.Reject {
			next = StatusRejected
		}
		// Scoring is mirror-only: no funds move, so no chain call.
		return Outcome{NewStatus: next, LedgerOp: ledger.OpNone}, nil

	case IntentDefault:
		if in.Role != RoleLender || in.ActorID != l.LenderID {
			return Outcome{}, ErrRoleNotAllowed
		}
		if l.Status != StatusActive {
			return Outcome{}, ErrInvalidTransition
		}
		return Outcome{NewStatus: StatusDefaulted, LedgerOp: ledger.OpDefault}, nil
	}

	return Outcome{}, ErrInvalidTransition
}
