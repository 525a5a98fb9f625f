package loan

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Status string

const (
	StatusRequested Status = "Requested"
	StatusFunded    Status = "Funded"
	StatusActive    Status = "Active"
	StatusRepaid    Status = "Repaid"
	StatusDefaulted Status = "Defaulted"
	StatusCancelled Status = "Cancelled"
	StatusRejected  Status = "Rejected"
)

// Terminal reports whether no further accounting mutation is allowed.
// Only SyncState may still change on a terminal loan, to absorb a
// late-arriving chain confirmation.
func (s Status) Terminal() bool {
	switch s {
	case StatusRepaid, StatusDefaulted, StatusCancelled, StatusRejected:
		return true
	}
	return false
}

// SyncState tracks whether the mirror matches the last-known chain record.
type SyncState string

const (
	SyncConfirmed SyncState = "Confirmed"
	SyncPending   SyncState = "Pending"
	SyncDiverged  SyncState = "Diverged"
)

type InstallmentStatus string

const (
	InstallmentPending InstallmentStatus = "Pending"
	InstallmentPaid    InstallmentStatus = "Paid"
)

type Loan struct {
	ID     uint64 `gorm:"primaryKey;column:id" json:"-"`
	LoanID string `gorm:"size:32;uniqueIndex:ux_loans_loan_id_active" json:"loan_id"`
	// LedgerRef is the contract-side loan index, empty until the first
	// chain registration confirms.
	LedgerRef  string `gorm:"size:66;index" json:"ledger_ref,omitempty"`
	BorrowerID string `gorm:"size:32;index:idx_loans_borrower_active" json:"borrower_id"`
	LenderID   string `gorm:"size:32;index" json:"lender_id,omitempty"`

	Principal    decimal.Decimal `gorm:"type:decimal(18,2)" json:"principal"`
	AmountFunded decimal.Decimal `gorm:"type:decimal(18,2)" json:"amount_funded"`
	AmountRepaid decimal.Decimal `gorm:"type:decimal(18,2)" json:"amount_repaid"`
	InterestRate decimal.Decimal `gorm:"type:decimal(6,4)" json:"interest_rate"`
	TermUnits    int             `gorm:"not null" json:"term_units"`

	IsCollateralized    bool            `gorm:"not null;default:false" json:"is_collateralized"`
	CollateralAmount    decimal.Decimal `gorm:"type:decimal(18,2)" json:"collateral_amount"`
	CollateralDeposited bool            `gorm:"not null;default:false" json:"collateral_deposited"`

	// RiskScore is set at most once, by an assessor, while Requested.
	RiskScore *decimal.Decimal `gorm:"type:decimal(5,4)" json:"risk_score,omitempty"`

	Status    Status    `gorm:"type:enum('Requested','Funded','Active','Repaid','Defaulted','Cancelled','Rejected');default:'Requested'" json:"status"`
	SyncState SyncState `gorm:"type:enum('Confirmed','Pending','Diverged');default:'Confirmed'" json:"sync_state"`

	// OpSeq counts confirmed chain operations applied to the mirror; replays
	// at or below it are discarded.
	OpSeq uint64 `gorm:"not null;default:0" json:"-"`
	// Version is the optimistic-lock counter checked by CompareAndSet.
	Version uint64 `gorm:"not null;default:1" json:"-"`

	Schedule []Installment `gorm:"foreignKey:LoanRowID;references:ID" json:"repayment_schedule,omitempty"`

	StatusUpdatedAt time.Time      `gorm:"autoCreateTime" json:"status_updated_at"`
	CreatedAt       time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Loan) TableName() string { return "loans" }

// Remaining is the unfunded part of the principal.
func (l *Loan) Remaining() decimal.Decimal { return l.Principal.Sub(l.AmountFunded) }

// Installment locates a schedule entry by its 1-based number.
func (l *Loan) Installment(number int) *Installment {
	for i := range l.Schedule {
		if l.Schedule[i].Number == number {
			return &l.Schedule[i]
		}
	}
	return nil
}

// AllInstallmentsPaid reports whether every installment has settled.
// False for an empty schedule: a loan without a schedule cannot be Repaid.
func (l *Loan) AllInstallmentsPaid() bool {
	if len(l.Schedule) == 0 {
		return false
	}
	for i := range l.Schedule {
		if l.Schedule[i].Status != InstallmentPaid {
			return false
		}
	}
	return true
}

// Clone deep-copies the loan so accounting can work on a scratch copy and
// the engine can keep the pre-image around for rollback.
func (l *Loan) Clone() *Loan {
	out := *l
	out.Schedule = make([]Installment, len(l.Schedule))
	copy(out.Schedule, l.Schedule)
	if l.RiskScore != nil {
		rs := *l.RiskScore
		out.RiskScore = &rs
	}
	return &out
}

// Installment is one scheduled repayment. Number is 1-based and fixed when
// the schedule is generated at funding time.
type Installment struct {
	ID         uint64            `gorm:"primaryKey;column:id" json:"-"`
	LoanRowID  uint64            `gorm:"column:loan_row_id;index;uniqueIndex:ux_installments_loan_no" json:"-"`
	Number     int               `gorm:"not null;uniqueIndex:ux_installments_loan_no" json:"number"`
	AmountDue  decimal.Decimal   `gorm:"type:decimal(18,2)" json:"amount_due"`
	AmountPaid decimal.Decimal   `gorm:"type:decimal(18,2)" json:"amount_paid"`
	DueDate    time.Time         `gorm:"not null" json:"due_date"`
	Status     InstallmentStatus `gorm:"type:enum('Pending','Paid');default:'Pending'" json:"status"`
	PaidAt     *time.Time        `json:"paid_at,omitempty"`
	CreatedAt  time.Time         `gorm:"autoCreateTime" json:"-"`
	UpdatedAt  time.Time         `gorm:"autoUpdateTime" json:"-"`
}

func (Installment) TableName() string { return "installments" }
