package reputation

import (
	"context"
	"errors"

	domain "lendsmart-backend/internal/domain/loan"

	"github.com/shopspring/decimal"
)

// Scoring weights. Positive history (timely repayment, funding activity)
// raises the score, defaults sink it. The fold only sees confirmed mirror
// state, so the score can lag the chain; consumers tolerate staleness.
var (
	weightOnTimeInstallment = decimal.NewFromInt(10)
	weightLateInstallment   = decimal.NewFromInt(3)
	weightLoanRepaid        = decimal.NewFromInt(25)
	weightLoanFunded        = decimal.NewFromInt(15)
	weightDefault           = decimal.NewFromInt(-60)
)

var ErrUnknownActor = errors.New("actor has no loan history")

type Usecase struct {
	loans domain.Repository
}

func NewUsecase(loans domain.Repository) *Usecase { return &Usecase{loans: loans} }

type ScoreDTO struct {
	ActorID       string          `json:"actor_id"`
	Score         decimal.Decimal `json:"score"`
	LoansBorrowed int             `json:"loans_borrowed"`
	LoansFunded   int             `json:"loans_funded"`
	Defaults      int             `json:"defaults"`
}

// Score folds the actor's completed lifecycle events into a single number.
// It never blocks a lifecycle transition and never mutates loan state.
func (u *Usecase) Score(ctx context.Context, actorID string) (*ScoreDTO, error) {
	loans, err := u.loans.ListByActor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if len(loans) == 0 {
		return nil, ErrUnknownActor
	}

	out := &ScoreDTO{ActorID: actorID, Score: decimal.Zero}
	for i := range loans {
		l := &loans[i]

		if l.LenderID == actorID && l.AmountFunded.Equal(l.Principal) && l.Principal.Sign() > 0 {
			out.LoansFunded++
			out.Score = out.Score.Add(weightLoanFunded)
		}

		if l.BorrowerID != actorID {
			continue
		}
		out.LoansBorrowed++
		switch l.Status {
		case domain.StatusRepaid:
			out.Score = out.Score.Add(weightLoanRepaid)
		case domain.StatusDefaulted:
			out.Defaults++
			out.Score = out.Score.Add(weightDefault)
		}
		for j := range l.Schedule {
			inst := &l.Schedule[j]
			if inst.Status != domain.InstallmentPaid || inst.PaidAt == nil {
				continue
			}
			if !inst.PaidAt.After(inst.DueDate) {
				out.Score = out.Score.Add(weightOnTimeInstallment)
			} else {
				out.Score = out.Score.Add(weightLateInstallment)
			}
		}
	}
	return out, nil
}
