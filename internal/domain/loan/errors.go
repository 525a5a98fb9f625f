package loan

import "errors"

var (
	ErrNotFound          = errors.New("loan not found")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrRoleNotAllowed    = errors.New("actor role not allowed for this operation")
	ErrAmountMismatch    = errors.New("amount must equal the remaining unfunded principal")
	ErrSelfLending       = errors.New("borrower cannot fund their own loan")
	ErrInstallmentPaid   = errors.New("installment already paid")
	ErrNoInstallment     = errors.New("no such installment")
	ErrRiskScoreSet      = errors.New("risk score already set")
	ErrTerminal          = errors.New("loan is in a terminal state")
	// ErrDiverged freezes the loan: ledger and mirror disagree on terminal
	// facts and an operator has to pick a side.
	ErrDiverged        = errors.New("loan frozen: ledger and mirror diverged, manual review required")
	ErrVersionConflict = errors.New("loan was modified concurrently")
	ErrNotCollateral   = errors.New("loan is not collateralized")
)
