package loan

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestApplyFunding_FullAmountFlipsToFunded(t *testing.T) {
	l := requestedLoan()
	now := time.Now().UTC()
	if err := ApplyFunding(l, lenderID, Intent{Amount: dec("1000")}, now); err != nil {
		t.Fatalf("ApplyFunding: %v", err)
	}
	if l.Status != StatusFunded {
		t.Fatalf("status = %s, want Funded", l.Status)
	}
	if !l.AmountFunded.Equal(l.Principal) {
		t.Fatalf("amountFunded = %s, want %s", l.AmountFunded, l.Principal)
	}
	if l.LenderID != lenderID {
		t.Fatalf("lender = %q", l.LenderID)
	}
	if len(l.Schedule) != l.TermUnits {
		t.Fatalf("schedule length = %d, want %d", len(l.Schedule), l.TermUnits)
	}
}

func TestApplyFunding_RejectsSelfAndPartial(t *testing.T) {
	l := requestedLoan()
	if err := ApplyFunding(l, borrowerID, Intent{Amount: dec("1000")}, time.Now()); !errors.Is(err, ErrSelfLending) {
		t.Fatalf("self lending: %v", err)
	}
	if err := ApplyFunding(l, lenderID, Intent{Amount: dec("999")}, time.Now()); !errors.Is(err, ErrAmountMismatch) {
		t.Fatalf("partial: %v", err)
	}
	if !l.AmountFunded.IsZero() || l.Status != StatusRequested {
		t.Fatalf("rejected funding mutated the loan: %s %s", l.AmountFunded, l.Status)
	}
}

func TestApplyRepayment_AccumulatesAndFlips(t *testing.T) {
	l := activeLoan() // 2 installments of 550 (1000 * 1.10)
	now := time.Now().UTC()

	if err := ApplyRepayment(l, 1, Intent{Amount: dec("300")}, now); err != nil {
		t.Fatalf("partial repay: %v", err)
	}
	if l.Schedule[0].Status != InstallmentPending {
		t.Fatalf("installment flipped below amountDue")
	}
	if !l.AmountRepaid.Equal(dec("300")) {
		t.Fatalf("amountRepaid = %s", l.AmountRepaid)
	}

	if err := ApplyRepayment(l, 1, Intent{Amount: dec("250"), PaidAt: now}, now); err != nil {
		t.Fatalf("completing repay: %v", err)
	}
	if l.Schedule[0].Status != InstallmentPaid {
		t.Fatalf("installment 1 not Paid at amountDue")
	}
	if l.Status == StatusRepaid {
		t.Fatalf("loan Repaid with an open installment")
	}

	if err := ApplyRepayment(l, 2, Intent{Amount: dec("550"), PaidAt: now}, now); err != nil {
		t.Fatalf("final repay: %v", err)
	}
	if l.Status != StatusRepaid {
		t.Fatalf("status = %s, want Repaid", l.Status)
	}
	if !l.AmountRepaid.Equal(dec("1100")) {
		t.Fatalf("amountRepaid = %s, want 1100", l.AmountRepaid)
	}
}

func TestApplyRepayment_RejectsPaidInstallment(t *testing.T) {
	l := activeLoan()
	now := time.Now().UTC()
	if err := ApplyRepayment(l, 1, Intent{Amount: dec("550")}, now); err != nil {
		t.Fatalf("repay: %v", err)
	}
	if err := ApplyRepayment(l, 1, Intent{Amount: dec("1")}, now); !errors.Is(err, ErrInstallmentPaid) {
		t.Fatalf("double repay: err = %v, want ErrInstallmentPaid", err)
	}
}

func TestApplyRiskScore_SetOnceAndReject(t *testing.T) {
	l := requestedLoan()
	now := time.Now().UTC()
	if err := ApplyRiskScore(l, Intent{Score: dec("0.4")}, now); err != nil {
		t.Fatalf("risk score: %v", err)
	}
	if l.RiskScore == nil || !l.RiskScore.Equal(dec("0.4")) {
		t.Fatalf("risk score not recorded")
	}
	if err := ApplyRiskScore(l, Intent{Score: dec("0.5")}, now); !errors.Is(err, ErrRiskScoreSet) {
		t.Fatalf("second score: %v", err)
	}

	l2 := requestedLoan()
	if err := ApplyRiskScore(l2, Intent{Score: dec("0.9"), Reject: true}, now); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if l2.Status != StatusRejected {
		t.Fatalf("status = %s, want Rejected", l2.Status)
	}
}

// Invariant fuzz: random operation sequences never break the accounting
// invariants, whatever order and whatever garbage amounts are thrown at
// them.
func TestAccountingInvariants_RandomOps(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	now := time.Now().UTC()

	for run := 0; run < 200; run++ {
		l := requestedLoan()
		l.TermUnits = 1 + rng.Intn(6)

		for step := 0; step < 30; step++ {
			amount := decimal.NewFromInt(int64(rng.Intn(2000))).Sub(decimal.NewFromInt(100))
			switch rng.Intn(4) {
			case 0:
				_ = ApplyFunding(l, lenderID, Intent{Amount: amount}, now)
			case 1:
				if l.Status == StatusFunded {
					_ = ApplyDisbursement(l, now)
				}
			case 2:
				no := 1 + rng.Intn(l.TermUnits+1)
				_ = ApplyRepayment(l, no, Intent{Amount: amount, PaidAt: now}, now)
			case 3:
				_ = ApplyRiskScore(l, Intent{Score: dec("0.5")}, now)
			}

			if l.AmountFunded.GreaterThan(l.Principal) {
				t.Fatalf("run %d step %d: amountFunded %s > principal %s", run, step, l.AmountFunded, l.Principal)
			}
			sum := decimal.Zero
			for i := range l.Schedule {
				sum = sum.Add(l.Schedule[i].AmountPaid)
				if (l.Schedule[i].Status == InstallmentPaid) != l.Schedule[i].AmountPaid.GreaterThanOrEqual(l.Schedule[i].AmountDue) {
					t.Fatalf("run %d step %d: installment %d status %s inconsistent with paid %s / due %s",
						run, step, l.Schedule[i].Number, l.Schedule[i].Status, l.Schedule[i].AmountPaid, l.Schedule[i].AmountDue)
				}
			}
			if !l.AmountRepaid.Equal(sum) {
				t.Fatalf("run %d step %d: amountRepaid %s != sum of installments %s", run, step, l.AmountRepaid, sum)
			}
			if l.Status == StatusRepaid && !l.AllInstallmentsPaid() {
				t.Fatalf("run %d step %d: Repaid with open installments", run, step)
			}
		}
	}
}
