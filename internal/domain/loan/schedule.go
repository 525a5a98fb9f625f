package loan

import (
	"time"

	"github.com/shopspring/decimal"
)

// BuildSchedule splits principal plus simple interest into termUnits equal
// monthly installments. Division rounds down to cents and the remainder is
// carried on the last installment, so the schedule always sums to the exact
// total due.
func BuildSchedule(principal, rate decimal.Decimal, termUnits int, fundedAt time.Time) []Installment {
	if termUnits <= 0 {
		return nil
	}
	total := principal.Add(principal.Mul(rate)).Round(2)
	per := total.Div(decimal.NewFromInt(int64(termUnits))).RoundDown(2)
	out := make([]Installment, termUnits)
	allocated := decimal.Zero
	for i := 0; i < termUnits; i++ {
		due := per
		if i == termUnits-1 {
			due = total.Sub(allocated)
		}
		allocated = allocated.Add(due)
		out[i] = Installment{
			Number:     i + 1,
			AmountDue:  due,
			AmountPaid: decimal.Zero,
			DueDate:    fundedAt.AddDate(0, i+1, 0),
			Status:     InstallmentPending,
		}
	}
	return out
}
