package mysql

import (
	"context"
	"errors"

	domain "lendsmart-backend/internal/domain/loan"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type LoanRepository struct{ db *gorm.DB }

func NewLoanRepository(db *gorm.DB) *LoanRepository { return &LoanRepository{db: db} }

func (r *LoanRepository) Create(ctx context.Context, l *domain.Loan) error {
	return r.db.WithContext(ctx).Create(l).Error
}

func (r *LoanRepository) GetByLoanID(ctx context.Context, loanID string) (*domain.Loan, error) {
	var out domain.Loan
	res := r.db.WithContext(ctx).Preload("Schedule").Where("loan_id = ?", loanID).First(&out)
	if errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	return &out, res.Error
}

func (r *LoanRepository) GetByLoanIDForUpdate(ctx context.Context, loanID string) (*domain.Loan, error) {
	var out domain.Loan
	res := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("Schedule").
		Where("loan_id = ?", loanID).
		First(&out)
	if errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	return &out, res.Error
}

func (r *LoanRepository) GetOpenLoanByBorrowerID(ctx context.Context, borrowerID string) (*domain.Loan, error) {
	var out domain.Loan
	res := r.db.WithContext(ctx).
		Where("borrower_id = ? AND status = ?", borrowerID, domain.StatusRequested).
		Order("status_updated_at DESC, id DESC").
		First(&out)
	return &out, res.Error
}

// CompareAndSet persists the loan only if the stored version still matches
// expectedVersion, bumping the counter in the same statement. The guarded
// update is what lets the engine detect writers outside its own lease, e.g.
// an administrative tool.
func (r *LoanRepository) CompareAndSet(ctx context.Context, l *domain.Loan, expectedVersion uint64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		l.Version = expectedVersion + 1
		res := tx.Model(&domain.Loan{}).
			Where("loan_id = ? AND version = ?", l.LoanID, expectedVersion).
			Select("*").
			Omit("id", "loan_id", "created_at", "Schedule").
			Updates(l)
		if res.Error != nil {
			l.Version = expectedVersion
			return res.Error
		}
		if res.RowsAffected == 0 {
			l.Version = expectedVersion
			return domain.ErrVersionConflict
		}
		for i := range l.Schedule {
			l.Schedule[i].LoanRowID = l.ID
			if err := tx.Save(&l.Schedule[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *LoanRepository) ListUnsettled(ctx context.Context, limit int) ([]domain.Loan, error) {
	var out []domain.Loan
	q := r.db.WithContext(ctx).
		Preload("Schedule").
		Where("sync_state IN ?", []domain.SyncState{domain.SyncPending, domain.SyncDiverged}).
		Order("updated_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	return out, q.Find(&out).Error
}

func (r *LoanRepository) ListByActor(ctx context.Context, actorID string) ([]domain.Loan, error) {
	var out []domain.Loan
	err := r.db.WithContext(ctx).
		Preload("Schedule").
		Where("borrower_id = ? OR lender_id = ?", actorID, actorID).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}
