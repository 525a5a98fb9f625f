// Package ledgerhttp implements ledger.Client against the chain gateway's
// JSON API. The gateway fronts the LoanManager contract and owns wallet and
// provider plumbing; this adapter only shuttles calls and never holds state.
package ledgerhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"lendsmart-backend/internal/domain/ledger"

	"github.com/shopspring/decimal"
)

type Client struct {
	base string
	http *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		base: baseURL,
		http: &http.Client{Timeout: timeout},
	}
}

type submitResponse struct {
	Ref       string `json:"ref"`
	TxRef     string `json:"tx_ref"`
	Confirmed bool   `json:"confirmed"`
}

type recordResponse struct {
	Ref                 string          `json:"ref"`
	Status              string          `json:"status"`
	Principal           decimal.Decimal `json:"principal"`
	AmountFunded        decimal.Decimal `json:"amount_funded"`
	AmountRepaid        decimal.Decimal `json:"amount_repaid"`
	CollateralDeposited bool            `json:"collateral_deposited"`
	Cancelled           bool            `json:"cancelled"`
}

func (c *Client) RequestLoan(ctx context.Context, t ledger.Terms) (string, ledger.SubmitResult, error) {
	body := map[string]any{
		"borrower":          t.Borrower,
		"principal":         t.Principal,
		"interest_rate":     t.InterestRate,
		"term_units":        t.TermUnits,
		"collateralized":    t.Collateralized,
		"collateral_amount": t.CollateralAmount,
	}
	var out submitResponse
	if err := c.post(ctx, "/loans", body, &out); err != nil {
		return "", ledger.SubmitResult{}, err
	}
	return out.Ref, ledger.SubmitResult{TxRef: out.TxRef, Confirmed: out.Confirmed}, nil
}

func (c *Client) FundLoan(ctx context.Context, ref, lender string, amount decimal.Decimal) (ledger.SubmitResult, error) {
	return c.submit(ctx, "/loans/"+ref+"/fund", map[string]any{"lender": lender, "amount": amount})
}

func (c *Client) DisburseLoan(ctx context.Context, ref string) (ledger.SubmitResult, error) {
	return c.submit(ctx, "/loans/"+ref+"/disburse", nil)
}

func (c *Client) RepayLoan(ctx context.Context, ref string, amount decimal.Decimal) (ledger.SubmitResult, error) {
	return c.submit(ctx, "/loans/"+ref+"/repay", map[string]any{"amount": amount})
}

func (c *Client) DepositCollateral(ctx context.Context, ref string, amount decimal.Decimal) (ledger.SubmitResult, error) {
	return c.submit(ctx, "/loans/"+ref+"/collateral", map[string]any{"amount": amount})
}

func (c *Client) CancelLoanRequest(ctx context.Context, ref string) (ledger.SubmitResult, error) {
	return c.submit(ctx, "/loans/"+ref+"/cancel", nil)
}

func (c *Client) MarkDefaulted(ctx context.Context, ref string) (ledger.SubmitResult, error) {
	return c.submit(ctx, "/loans/"+ref+"/default", nil)
}

func (c *Client) GetLoanRecord(ctx context.Context, ref string) (*ledger.Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/loans/"+ref, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ledger gateway read: %w", err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ledger.ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("ledger gateway read: unexpected status %d", resp.StatusCode)
	}
	var rec recordResponse
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return nil, err
	}
	return &ledger.Record{
		Ref:                 rec.Ref,
		Status:              rec.Status,
		Principal:           rec.Principal,
		AmountFunded:        rec.AmountFunded,
		AmountRepaid:        rec.AmountRepaid,
		CollateralDeposited: rec.CollateralDeposited,
		Cancelled:           rec.Cancelled,
	}, nil
}

func (c *Client) submit(ctx context.Context, path string, body any) (ledger.SubmitResult, error) {
	var out submitResponse
	if err := c.post(ctx, path, body, &out); err != nil {
		return ledger.SubmitResult{}, err
	}
	return ledger.SubmitResult{TxRef: out.TxRef, Confirmed: out.Confirmed}, nil
}

// post maps transport failures onto the ledger error taxonomy: a deadline is
// ambiguous (the call may still land on chain), everything else failed
// before acceptance and is safe to retry.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isClientTimeout(err) {
			return ledger.ErrTimeout
		}
		return fmt.Errorf("%w: %v", ledger.ErrSubmission, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusGatewayTimeout:
		return ledger.ErrTimeout
	case resp.StatusCode >= 400:
		return fmt.Errorf("%w: gateway status %d", ledger.ErrSubmission, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func isClientTimeout(err error) bool {
	var ne interface{ Timeout() bool }
	return errors.As(err, &ne) && ne.Timeout()
}
