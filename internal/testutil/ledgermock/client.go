package ledgermock

import (
	"context"

	"lendsmart-backend/internal/domain/ledger"

	"github.com/shopspring/decimal"
)

var _ ledger.Client = (*Client)(nil)

// Client is a function-backed mock that satisfies ledger.Client. Unfilled
// mutating calls confirm immediately; an unfilled read reports no record.
type Client struct {
	RequestLoanFn       func(ctx context.Context, t ledger.Terms) (string, ledger.SubmitResult, error)
	FundLoanFn          func(ctx context.Context, ref, lender string, amount decimal.Decimal) (ledger.SubmitResult, error)
	DisburseLoanFn      func(ctx context.Context, ref string) (ledger.SubmitResult, error)
	RepayLoanFn         func(ctx context.Context, ref string, amount decimal.Decimal) (ledger.SubmitResult, error)
	DepositCollateralFn func(ctx context.Context, ref string, amount decimal.Decimal) (ledger.SubmitResult, error)
	CancelLoanRequestFn func(ctx context.Context, ref string) (ledger.SubmitResult, error)
	MarkDefaultedFn     func(ctx context.Context, ref string) (ledger.SubmitResult, error)
	GetLoanRecordFn     func(ctx context.Context, ref string) (*ledger.Record, error)
}

func confirmed() (ledger.SubmitResult, error) {
	return ledger.SubmitResult{TxRef: "0xmock", Confirmed: true}, nil
}

func (m *Client) RequestLoan(ctx context.Context, t ledger.Terms) (string, ledger.SubmitResult, error) {
	if m.RequestLoanFn != nil {
		return m.RequestLoanFn(ctx, t)
	}
	res, err := confirmed()
	return "ref-mock", res, err
}

func (m *Client) FundLoan(ctx context.Context, ref, lender string, amount decimal.Decimal) (ledger.SubmitResult, error) {
	if m.FundLoanFn != nil {
		return m.FundLoanFn(ctx, ref, lender, amount)
	}
	return confirmed()
}

func (m *Client) DisburseLoan(ctx context.Context, ref string) (ledger.SubmitResult, error) {
	if m.DisburseLoanFn != nil {
		return m.DisburseLoanFn(ctx, ref)
	}
	return confirmed()
}

func (m *Client) RepayLoan(ctx context.Context, ref string, amount decimal.Decimal) (ledger.SubmitResult, error) {
	if m.RepayLoanFn != nil {
		return m.RepayLoanFn(ctx, ref, amount)
	}
	return confirmed()
}

func (m *Client) DepositCollateral(ctx context.Context, ref string, amount decimal.Decimal) (ledger.SubmitResult, error) {
	if m.DepositCollateralFn != nil {
		return m.DepositCollateralFn(ctx, ref, amount)
	}
	return confirmed()
}

func (m *Client) CancelLoanRequest(ctx context.Context, ref string) (ledger.SubmitResult, error) {
	if m.CancelLoanRequestFn != nil {
		return m.CancelLoanRequestFn(ctx, ref)
	}
	return confirmed()
}

func (m *Client) MarkDefaulted(ctx context.Context, ref string) (ledger.SubmitResult, error) {
	if m.MarkDefaultedFn != nil {
		return m.MarkDefaultedFn(ctx, ref)
	}
	return confirmed()
}

func (m *Client) GetLoanRecord(ctx context.Context, ref string) (*ledger.Record, error) {
	if m.GetLoanRecordFn != nil {
		return m.GetLoanRecordFn(ctx, ref)
	}
	return nil, ledger.ErrNotFound
}
