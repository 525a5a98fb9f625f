package event

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var ErrNotFound = errors.New("ledger event not found")

// Outcome of a journalled chain operation.
type Outcome string

const (
	OutcomePending Outcome = "Pending"
	// OutcomeConfirmed: the chain confirmed and the mirror applied the delta.
	OutcomeConfirmed Outcome = "Confirmed"
	// OutcomeFailed: the chain rejected the call or a probe found it never
	// landed; the mirror was reverted to the pre-image.
	OutcomeFailed Outcome = "Failed"
	// OutcomeSuperseded: a later confirmation made this one inapplicable.
	OutcomeSuperseded Outcome = "Superseded"
)

// LedgerEvent is the journal row written before any chain submission: the
// pre-image that makes a crash between submit and commit detectable, the
// per-loan sequence that makes probe replays idempotent, and the operation
// history served with the loan detail.
type LedgerEvent struct {
	ID      uint64 `gorm:"primaryKey;column:id"`
	EventID string `gorm:"size:32;uniqueIndex:ux_ledger_events_event_id"`
	LoanID  string `gorm:"size:32;index:idx_ledger_events_loan"`
	// Seq is 1-based per loan; an event applies to the mirror only while
	// loan.OpSeq < Seq.
	Seq     uint64 `gorm:"not null;index:idx_ledger_events_loan"`
	Kind    string `gorm:"size:24;not null"`
	ActorID string `gorm:"size:32;index"`

	Amount        decimal.Decimal `gorm:"type:decimal(18,2)"`
	InstallmentNo int             `gorm:"not null;default:0"`
	TxRef         string          `gorm:"size:80"`

	Outcome Outcome `gorm:"type:enum('Pending','Confirmed','Failed','Superseded');default:'Pending'"`

	// Pre-image of the loan at submission time, for rollback.
	PriorStatus string          `gorm:"size:16;not null"`
	PriorSync   string          `gorm:"size:16;not null"`
	PriorFunded decimal.Decimal `gorm:"type:decimal(18,2)"`
	PriorRepaid decimal.Decimal `gorm:"type:decimal(18,2)"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (LedgerEvent) TableName() string { return "ledger_events" }
