package loan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lendsmart-backend/internal/domain/event"
	domain "lendsmart-backend/internal/domain/loan"
	"lendsmart-backend/internal/usecase/reconcile"
	"lendsmart-backend/pkg/id"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Usecase is the application surface over the lifecycle engine. Apply, Get
// and List touch only the mirror; every other operation routes through the
// reconciliation engine so the chain confirms before the mirror commits.
type Usecase struct {
	repo   domain.Repository
	events event.Repository
	engine *reconcile.Engine
}

func NewUsecase(r domain.Repository, events event.Repository, e *reconcile.Engine) *Usecase {
	return &Usecase{repo: r, events: events, engine: e}
}

func (u *Usecase) Apply(ctx context.Context, in ApplyInput) (*LoanDTO, error) {
	if in.BorrowerID == "" || len(in.BorrowerID) != 32 {
		return nil, errors.New("invalid borrower id")
	}
	if in.Principal.Sign() <= 0 {
		return nil, errors.New("principal must be positive")
	}
	if in.InterestRate.Sign() < 0 {
		return nil, errors.New("interest rate must not be negative")
	}
	if in.TermUnits <= 0 {
		return nil, errors.New("term must be at least one installment")
	}
	if in.IsCollateralized && in.CollateralAmount.Sign() <= 0 {
		return nil, errors.New("collateralized loan needs a positive collateral amount")
	}

	// One open request per borrower at a time.
	open, err := u.repo.GetOpenLoanByBorrowerID(ctx, in.BorrowerID)
	switch {
	case err == nil:
		return nil, fmt.Errorf("borrower %s already has an open loan request: %s", in.BorrowerID, open.LoanID)
	case !errors.Is(err, gorm.ErrRecordNotFound) && !errors.Is(err, domain.ErrNotFound):
		return nil, err
	}

	l := &domain.Loan{
		LoanID:           id.NewID32(),
		BorrowerID:       in.BorrowerID,
		Principal:        in.Principal,
		AmountFunded:     decimal.Zero,
		AmountRepaid:     decimal.Zero,
		InterestRate:     in.InterestRate,
		TermUnits:        in.TermUnits,
		IsCollateralized: in.IsCollateralized,
		CollateralAmount: in.CollateralAmount,
		Status:           domain.StatusRequested,
		SyncState:        domain.SyncConfirmed,
		Version:          1,
		StatusUpdatedAt:  time.Now().UTC(),
	}
	if err := u.repo.Create(ctx, l); err != nil {
		return nil, err
	}
	return toDTO(l), nil
}

func (u *Usecase) Get(ctx context.Context, loanID string) (*LoanDTO, error) {
	l, err := u.repo.GetByLoanID(ctx, loanID)
	if err != nil {
		return nil, err
	}
	// Reading a pending loan triggers an inline repair attempt.
	if l.SyncState != domain.SyncConfirmed {
		if probed, err := u.engine.Probe(ctx, loanID); err == nil {
			l = probed
		} else if errors.Is(err, domain.ErrDiverged) {
			l = probed
		}
	}
	dto := toDTO(l)
	// The detail view carries the journalled chain history.
	evs, err := u.events.ListByLoanID(ctx, loanID)
	if err != nil {
		return nil, err
	}
	dto.History = toHistory(evs)
	return dto, nil
}

// List returns every loan the actor is a party to, borrower or lender side.
func (u *Usecase) List(ctx context.Context, actorID string) ([]LoanDTO, error) {
	ls, err := u.repo.ListByActor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	out := make([]LoanDTO, 0, len(ls))
	for i := range ls {
		out = append(out, *toDTO(&ls[i]))
	}
	return out, nil
}

func (u *Usecase) Fund(ctx context.Context, loanID string, in FundInput) (*LoanDTO, error) {
	l, err := u.engine.Execute(ctx, loanID, domain.Intent{
		Kind:    domain.IntentFund,
		ActorID: in.LenderID,
		Role:    domain.RoleLender,
		Amount:  in.Amount,
	})
	return wrap(l, err)
}

func (u *Usecase) Disburse(ctx context.Context, loanID string, actorID string, role domain.Role) (*LoanDTO, error) {
	l, err := u.engine.Execute(ctx, loanID, domain.Intent{
		Kind:    domain.IntentDisburse,
		ActorID: actorID,
		Role:    role,
	})
	return wrap(l, err)
}

func (u *Usecase) Repay(ctx context.Context, loanID string, in RepayInput) (*LoanDTO, error) {
	l, err := u.engine.Execute(ctx, loanID, domain.Intent{
		Kind:          domain.IntentRepay,
		ActorID:       in.BorrowerID,
		Role:          domain.RoleBorrower,
		Amount:        in.Amount,
		InstallmentNo: in.InstallmentNo,
		PaidAt:        in.PaidAt,
	})
	return wrap(l, err)
}

func (u *Usecase) DepositCollateral(ctx context.Context, loanID string, borrowerID string, amount decimal.Decimal) (*LoanDTO, error) {
	l, err := u.engine.Execute(ctx, loanID, domain.Intent{
		Kind:    domain.IntentCollateral,
		ActorID: borrowerID,
		Role:    domain.RoleBorrower,
		Amount:  amount,
	})
	return wrap(l, err)
}

func (u *Usecase) Cancel(ctx context.Context, loanID string, borrowerID string) (*LoanDTO, error) {
	l, err := u.engine.Execute(ctx, loanID, domain.Intent{
		Kind:    domain.IntentCancel,
		ActorID: borrowerID,
		Role:    domain.RoleBorrower,
	})
	return wrap(l, err)
}

func (u *Usecase) MarkDefaulted(ctx context.Context, loanID string, lenderID string) (*LoanDTO, error) {
	l, err := u.engine.Execute(ctx, loanID, domain.Intent{
		Kind:    domain.IntentDefault,
		ActorID: lenderID,
		Role:    domain.RoleLender,
	})
	return wrap(l, err)
}

// SetRiskScore records the assessor's score (mirror-only, no chain call) and
// returns the rate the score suggests: 5% base plus 10% weighted by risk.
func (u *Usecase) SetRiskScore(ctx context.Context, loanID string, in RiskScoreInput) (*RiskAssessmentDTO, error) {
	l, err := u.engine.Execute(ctx, loanID, domain.Intent{
		Kind:    domain.IntentRiskScore,
		ActorID: in.AssessorID,
		Role:    domain.RoleAssessor,
		Score:   in.Score,
		Reject:  in.Reject,
	})
	if err != nil {
		return nil, err
	}
	suggested := decimal.NewFromInt(5).Add(in.Score.Mul(decimal.NewFromInt(10))).Round(2)
	return &RiskAssessmentDTO{
		Loan:             *toDTO(l),
		Approved:         !in.Reject,
		SuggestedRatePct: suggested,
	}, nil
}
