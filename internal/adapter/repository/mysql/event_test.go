package mysql

import (
	"context"
	"errors"
	"testing"

	domain "lendsmart-backend/internal/domain/event"
	"lendsmart-backend/pkg/id"

	"github.com/shopspring/decimal"
)

func makeEvent(loanID string, seq uint64, outcome domain.Outcome) *domain.LedgerEvent {
	return &domain.LedgerEvent{
		EventID:     id.NewID32(),
		LoanID:      loanID,
		Seq:         seq,
		Kind:        "repay",
		ActorID:     "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
		Amount:      dec("550.00"),
		Outcome:     outcome,
		PriorStatus: "Active",
		PriorSync:   "Confirmed",
		PriorFunded: dec("1000.00"),
		PriorRepaid: decimal.Zero,
	}
}

func TestAppendAndGetPending(t *testing.T) {
	db := openTestDB(t)
	repo := NewEventRepository(db)
	ctx := context.Background()

	loanID := id.NewID32()
	settled := makeEvent(loanID, 1, domain.OutcomeConfirmed)
	if err := repo.Append(ctx, settled); err != nil {
		t.Fatalf("Append: %v", err)
	}
	pending := makeEvent(loanID, 2, domain.OutcomePending)
	if err := repo.Append(ctx, pending); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := repo.GetPendingByLoanID(ctx, loanID)
	if err != nil {
		t.Fatalf("GetPendingByLoanID: %v", err)
	}
	if got.EventID != pending.EventID || got.Seq != 2 {
		t.Fatalf("unexpected event: %+v", got)
	}
	if !got.PriorFunded.Equal(dec("1000")) {
		t.Fatalf("pre-image round-trip: %s", got.PriorFunded)
	}
}

func TestGetPending_NoneLeft(t *testing.T) {
	db := openTestDB(t)
	repo := NewEventRepository(db)
	ctx := context.Background()

	loanID := id.NewID32()
	if err := repo.Append(ctx, makeEvent(loanID, 1, domain.OutcomeConfirmed)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := repo.GetPendingByLoanID(ctx, loanID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMarkOutcome(t *testing.T) {
	db := openTestDB(t)
	repo := NewEventRepository(db)
	ctx := context.Background()

	loanID := id.NewID32()
	ev := makeEvent(loanID, 1, domain.OutcomePending)
	if err := repo.Append(ctx, ev); err != nil {
		t.Fatalf("Append: %v", err)
	}

	if err := repo.MarkOutcome(ctx, ev.EventID, domain.OutcomeConfirmed, "0xdeadbeef"); err != nil {
		t.Fatalf("MarkOutcome: %v", err)
	}
	list, err := repo.ListByLoanID(ctx, loanID)
	if err != nil {
		t.Fatalf("ListByLoanID: %v", err)
	}
	if len(list) != 1 || list[0].Outcome != domain.OutcomeConfirmed || list[0].TxRef != "0xdeadbeef" {
		t.Fatalf("outcome not persisted: %+v", list)
	}

	// unknown event id
	if err := repo.MarkOutcome(ctx, "ffffffffffffffffffffffffffffffff", domain.OutcomeFailed, ""); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestNextSeq(t *testing.T) {
	db := openTestDB(t)
	repo := NewEventRepository(db)
	ctx := context.Background()

	loanID := id.NewID32()
	n, err := repo.NextSeq(ctx, loanID)
	if err != nil {
		t.Fatalf("NextSeq: %v", err)
	}
	if n != 1 {
		t.Fatalf("fresh loan NextSeq = %d, want 1", n)
	}

	if err := repo.Append(ctx, makeEvent(loanID, 1, domain.OutcomeConfirmed)); err != nil {
		t.Fatal(err)
	}
	if err := repo.Append(ctx, makeEvent(loanID, 2, domain.OutcomeFailed)); err != nil {
		t.Fatal(err)
	}

	n, err = repo.NextSeq(ctx, loanID)
	if err != nil {
		t.Fatalf("NextSeq: %v", err)
	}
	if n != 3 {
		t.Fatalf("NextSeq = %d, want 3", n)
	}
}

func TestListByLoanID_Ordered(t *testing.T) {
	db := openTestDB(t)
	repo := NewEventRepository(db)
	ctx := context.Background()

	loanID := id.NewID32()
	// append out of order
	if err := repo.Append(ctx, makeEvent(loanID, 2, domain.OutcomeConfirmed)); err != nil {
		t.Fatal(err)
	}
	if err := repo.Append(ctx, makeEvent(loanID, 1, domain.OutcomeConfirmed)); err != nil {
		t.Fatal(err)
	}

	list, err := repo.ListByLoanID(ctx, loanID)
	if err != nil {
		t.Fatalf("ListByLoanID: %v", err)
	}
	if len(list) != 2 || list[0].Seq != 1 || list[1].Seq != 2 {
		t.Fatalf("events not ordered by seq: %+v", list)
	}
}
