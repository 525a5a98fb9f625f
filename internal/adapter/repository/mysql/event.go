package mysql

import (
	"context"
	"errors"

	domain "lendsmart-backend/internal/domain/event"

	"gorm.io/gorm"
)

type EventRepository struct{ db *gorm.DB }

func NewEventRepository(db *gorm.DB) *EventRepository { return &EventRepository{db: db} }

func (r *EventRepository) Append(ctx context.Context, e *domain.LedgerEvent) error {
	return r.db.WithContext(ctx).Create(e).Error
}

func (r *EventRepository) GetPendingByLoanID(ctx context.Context, loanID string) (*domain.LedgerEvent, error) {
	var out domain.LedgerEvent
	res := r.db.WithContext(ctx).
		Where("loan_id = ? AND outcome = ?", loanID, domain.OutcomePending).
		Order("seq DESC").
		First(&out)
	if errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	return &out, res.Error
}

func (r *EventRepository) MarkOutcome(ctx context.Context, eventID string, outcome domain.Outcome, txRef string) error {
	updates := map[string]any{"outcome": outcome}
	if txRef != "" {
		updates["tx_ref"] = txRef
	}
	res := r.db.WithContext(ctx).
		Model(&domain.LedgerEvent{}).
		Where("event_id = ?", eventID).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *EventRepository) NextSeq(ctx context.Context, loanID string) (uint64, error) {
	var max uint64
	err := r.db.WithContext(ctx).
		Model(&domain.LedgerEvent{}).
		Where("loan_id = ?", loanID).
		Select("COALESCE(MAX(seq), 0)").
		Scan(&max).Error
	return max + 1, err
}

func (r *EventRepository) ListByLoanID(ctx context.Context, loanID string) ([]domain.LedgerEvent, error) {
	var out []domain.LedgerEvent
	err := r.db.WithContext(ctx).
		Where("loan_id = ?", loanID).
		Order("seq ASC").
		Find(&out).Error
	return out, err
}
