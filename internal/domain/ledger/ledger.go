package ledger

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrSubmission: the gateway rejected or dropped the call before the
	// chain accepted it. Nothing moved; safe to retry.
	ErrSubmission = errors.New("ledger submission failed")
	// ErrTimeout: the call was sent but no confirmation arrived in time.
	// The outcome is unknown until a probe reads the chain record.
	ErrTimeout = errors.New("ledger confirmation timed out")
	ErrNotFound = errors.New("ledger record not found")
)

// OpKind names the contract operations a lifecycle transition may require.
type OpKind string

const (
	OpNone       OpKind = ""
	OpRequest    OpKind = "requestLoan"
	OpFund       OpKind = "fundLoan"
	OpDisburse   OpKind = "disburseLoan"
	OpRepay      OpKind = "repayLoan"
	OpCollateral OpKind = "depositCollateral"
	OpCancel     OpKind = "cancelLoanRequest"
	OpDefault    OpKind = "markDefaulted"
)

// Terms is the immutable economics registered on chain at requestLoan.
type Terms struct {
	Borrower         string
	Principal        decimal.Decimal
	InterestRate     decimal.Decimal
	TermUnits        int
	Collateralized   bool
	CollateralAmount decimal.Decimal
}

// SubmitResult is what a mutating contract call yields once the gateway
// answers. Confirmed=false with a nil error never happens; ambiguity is
// reported as ErrTimeout.
type SubmitResult struct {
	TxRef     string
	Confirmed bool
}

// Record is the chain's current view of a loan, read back during
// reconciliation. Status strings follow the contract's enum names, which
// match the mirror's status set.
type Record struct {
	Ref                 string
	Status              string
	Principal           decimal.Decimal
	AmountFunded        decimal.Decimal
	AmountRepaid        decimal.Decimal
	CollateralDeposited bool
	Cancelled           bool
}

// Client is the capability surface of the external contract. Implementations
// are stateless adapters; the contract itself guarantees exactly-once
// application of confirmed operations.
type Client interface {
	RequestLoan(ctx context.Context, t Terms) (ref string, res SubmitResult, err error)
	FundLoan(ctx context.Context, ref string, lender string, amount decimal.Decimal) (SubmitResult, error)
	DisburseLoan(ctx context.Context, ref string) (SubmitResult, error)
	RepayLoan(ctx context.Context, ref string, amount decimal.Decimal) (SubmitResult, error)
	DepositCollateral(ctx context.Context, ref string, amount decimal.Decimal) (SubmitResult, error)
	CancelLoanRequest(ctx context.Context, ref string) (SubmitResult, error)
	MarkDefaulted(ctx context.Context, ref string) (SubmitResult, error)
	GetLoanRecord(ctx context.Context, ref string) (*Record, error)
}
