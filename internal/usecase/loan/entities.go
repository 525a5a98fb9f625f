package loan

import (
	"errors"
	"time"

	"lendsmart-backend/internal/domain/event"
	"lendsmart-backend/internal/domain/ledger"
	domain "lendsmart-backend/internal/domain/loan"

	"github.com/shopspring/decimal"
)

type ApplyInput struct {
	BorrowerID       string          `json:"borrower_id"`
	Principal        decimal.Decimal `json:"principal"`
	InterestRate     decimal.Decimal `json:"interest_rate"`
	TermUnits        int             `json:"term_units"`
	IsCollateralized bool            `json:"is_collateralized"`
	CollateralAmount decimal.Decimal `json:"collateral_amount"`
}

type FundInput struct {
	LenderID string          `json:"lender_id"`
	Amount   decimal.Decimal `json:"amount"`
}

type RepayInput struct {
	BorrowerID    string          `json:"-"`
	InstallmentNo int             `json:"installment_no"`
	Amount        decimal.Decimal `json:"amount"`
	PaidAt        time.Time       `json:"paid_at"`
}

type RiskScoreInput struct {
	AssessorID string          `json:"-"`
	Score      decimal.Decimal `json:"score"`
	Reject     bool            `json:"reject"`
}

type InstallmentDTO struct {
	Number     int             `json:"number"`
	AmountDue  decimal.Decimal `json:"amount_due"`
	AmountPaid decimal.Decimal `json:"amount_paid"`
	DueDate    time.Time       `json:"due_date"`
	Status     string          `json:"status"`
	PaidAt     *time.Time      `json:"paid_at,omitempty"`
}

type LoanDTO struct {
	LoanID              string           `json:"loan_id"`
	LedgerRef           string           `json:"ledger_ref,omitempty"`
	BorrowerID          string           `json:"borrower_id"`
	LenderID            string           `json:"lender_id,omitempty"`
	Principal           decimal.Decimal  `json:"principal"`
	AmountFunded        decimal.Decimal  `json:"amount_funded"`
	AmountRepaid        decimal.Decimal  `json:"amount_repaid"`
	InterestRate        decimal.Decimal  `json:"interest_rate"`
	TermUnits           int              `json:"term_units"`
	IsCollateralized    bool             `json:"is_collateralized"`
	CollateralAmount    decimal.Decimal  `json:"collateral_amount"`
	CollateralDeposited bool             `json:"collateral_deposited"`
	RiskScore           *decimal.Decimal `json:"risk_score,omitempty"`
	Status              string           `json:"status"`
	SyncState           string           `json:"sync_state"`
	Schedule            []InstallmentDTO `json:"repayment_schedule,omitempty"`
	History             []HistoryDTO     `json:"history,omitempty"`
	CreatedAt           time.Time        `json:"created_at"`
}

// HistoryDTO is one journalled chain operation, served on the detail view.
type HistoryDTO struct {
	Seq           uint64          `json:"seq"`
	Kind          string          `json:"kind"`
	ActorID       string          `json:"actor_id,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	InstallmentNo int             `json:"installment_no,omitempty"`
	Outcome       string          `json:"outcome"`
	TxRef         string          `json:"tx_ref,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

type RiskAssessmentDTO struct {
	Loan             LoanDTO         `json:"loan"`
	Approved         bool            `json:"approved"`
	SuggestedRatePct decimal.Decimal `json:"suggested_rate_pct"`
}

func toDTO(l *domain.Loan) *LoanDTO {
	if l == nil {
		return nil
	}
	dto := &LoanDTO{
		LoanID:              l.LoanID,
		LedgerRef:           l.LedgerRef,
		BorrowerID:          l.BorrowerID,
		LenderID:            l.LenderID,
		Principal:           l.Principal,
		AmountFunded:        l.AmountFunded,
		AmountRepaid:        l.AmountRepaid,
		InterestRate:        l.InterestRate,
		TermUnits:           l.TermUnits,
		IsCollateralized:    l.IsCollateralized,
		CollateralAmount:    l.CollateralAmount,
		CollateralDeposited: l.CollateralDeposited,
		RiskScore:           l.RiskScore,
		Status:              string(l.Status),
		SyncState:           string(l.SyncState),
		CreatedAt:           l.CreatedAt,
	}
	for i := range l.Schedule {
		in := &l.Schedule[i]
		dto.Schedule = append(dto.Schedule, InstallmentDTO{
			Number:     in.Number,
			AmountDue:  in.AmountDue,
			AmountPaid: in.AmountPaid,
			DueDate:    in.DueDate,
			Status:     string(in.Status),
			PaidAt:     in.PaidAt,
		})
	}
	return dto
}

func toHistory(evs []event.LedgerEvent) []HistoryDTO {
	var out []HistoryDTO
	for i := range evs {
		ev := &evs[i]
		out = append(out, HistoryDTO{
			Seq:           ev.Seq,
			Kind:          ev.Kind,
			ActorID:       ev.ActorID,
			Amount:        ev.Amount,
			InstallmentNo: ev.InstallmentNo,
			Outcome:       string(ev.Outcome),
			TxRef:         ev.TxRef,
			CreatedAt:     ev.CreatedAt,
		})
	}
	return out
}

// wrap keeps the pending-confirmation contract: on an ambiguous ledger
// timeout the caller still gets the loan DTO (sync state Pending) together
// with ledger.ErrTimeout so the transport can answer 202 rather than 500.
func wrap(l *domain.Loan, err error) (*LoanDTO, error) {
	if err != nil {
		if errors.Is(err, ledger.ErrTimeout) && l != nil {
			return toDTO(l), err
		}
		return nil, err
	}
	return toDTO(l), nil
}
