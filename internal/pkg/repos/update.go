package repos

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/ambercms/amber-update/internal/pkg/types"
)

// UpdateRepo persists the durable log of update and rollback attempts.
type UpdateRepo interface {
	Create(ctx context.Context, tx *gorm.DB, record *types.UpdateRecord) error
	Save(ctx context.Context, tx *gorm.DB, record *types.UpdateRecord) error
	History(ctx context.Context, tx *gorm.DB, limit int) ([]*types.UpdateRecord, error)
	Latest(ctx context.Context, tx *gorm.DB) (*types.UpdateRecord, error)
}

type updateRepo struct {
	db *gorm.DB
}

// NewUpdateRepo returns an UpdateRepo backed by the provided database.
func NewUpdateRepo(db *gorm.DB) UpdateRepo {
	return &updateRepo{db: db}
}

func (r *updateRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *updateRepo) Create(ctx context.Context, tx *gorm.DB, record *types.UpdateRecord) error {
	return r.conn(tx).WithContext(ctx).Create(record).Error
}

func (r *updateRepo) Save(ctx context.Context, tx *gorm.DB, record *types.UpdateRecord) error {
	return r.conn(tx).WithContext(ctx).Save(record).Error
}

func (r *updateRepo) History(ctx context.Context, tx *gorm.DB, limit int) ([]*types.UpdateRecord, error) {
	var records []*types.UpdateRecord
	if err := r.conn(tx).WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// Latest returns the most recent record by creation order, or nil when the
// history is empty.
func (r *updateRepo) Latest(ctx context.Context, tx *gorm.DB) (*types.UpdateRecord, error) {
	var record types.UpdateRecord
	err := r.conn(tx).WithContext(ctx).
		Order("created_at DESC").
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}
