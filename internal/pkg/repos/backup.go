package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ambercms/amber-update/internal/pkg/types"
)

// BackupRepo persists backup metadata records.
type BackupRepo interface {
	Create(ctx context.Context, tx *gorm.DB, backup *types.Backup) error
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Backup, error)
	List(ctx context.Context, tx *gorm.DB) ([]*types.Backup, error)
	MarkRestored(ctx context.Context, tx *gorm.DB, id uuid.UUID, restoredAt time.Time) error
	Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
}

type backupRepo struct {
	db *gorm.DB
}

// NewBackupRepo returns a BackupRepo backed by the provided database.
func NewBackupRepo(db *gorm.DB) BackupRepo {
	return &backupRepo{db: db}
}

func (r *backupRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *backupRepo) Create(ctx context.Context, tx *gorm.DB, backup *types.Backup) error {
	return r.conn(tx).WithContext(ctx).Create(backup).Error
}

func (r *backupRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Backup, error) {
	var backup types.Backup
	if err := r.conn(tx).WithContext(ctx).First(&backup, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &backup, nil
}

func (r *backupRepo) List(ctx context.Context, tx *gorm.DB) ([]*types.Backup, error) {
	var backups []*types.Backup
	if err := r.conn(tx).WithContext(ctx).
		Order("created_at DESC").
		Find(&backups).Error; err != nil {
		return nil, err
	}
	return backups, nil
}

func (r *backupRepo) MarkRestored(ctx context.Context, tx *gorm.DB, id uuid.UUID, restoredAt time.Time) error {
	return r.conn(tx).WithContext(ctx).
		Model(&types.Backup{}).
		Where("id = ?", id).
		Update("restored_at", restoredAt).Error
}

func (r *backupRepo) Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	return r.conn(tx).WithContext(ctx).Delete(&types.Backup{}, "id = ?", id).Error
}
