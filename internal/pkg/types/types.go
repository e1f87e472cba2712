// Package types holds the persisted records of the update engine.
package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Update lifecycle statuses. A record moves pending to completed or failed,
// never both; a completed record may later be marked rolled_back.
const (
	StatusPending    = "pending"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusRolledBack = "rolled_back"
)

// Update types.
const (
	UpdateTypeManual    = "manual"
	UpdateTypeAutomatic = "automatic"
)

// Backup is the metadata record of a versioned backup archive of the live
// application tree. Immutable once created except for RestoredAt.
type Backup struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Version    string     `gorm:"not null;column:version" json:"version"`
	BackupPath string     `gorm:"not null;column:backup_path" json:"backup_path"`
	FileSize   int64      `gorm:"not null;column:file_size" json:"file_size"`
	Checksum   string     `gorm:"column:checksum" json:"checksum"`
	CreatedBy  string     `gorm:"column:created_by" json:"created_by"`
	CreatedAt  time.Time  `gorm:"not null" json:"created_at"`
	RestoredAt *time.Time `gorm:"column:restored_at" json:"restored_at,omitempty"`
}

func (Backup) TableName() string {
	return "cms_backups"
}

func (b *Backup) BeforeCreate(_ *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// UpdateRecord is the durable log entry of one update or rollback attempt.
type UpdateRecord struct {
	ID              uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Version         string     `gorm:"not null;column:version" json:"version"`
	PreviousVersion string     `gorm:"column:previous_version" json:"previous_version"`
	UpdateType      string     `gorm:"not null;column:update_type" json:"update_type"`
	Status          string     `gorm:"not null;column:status" json:"status"`
	BackupPath      string     `gorm:"column:backup_path" json:"backup_path"`
	Changelog       string     `gorm:"column:changelog" json:"changelog"`
	TreeDigest      string     `gorm:"column:tree_digest" json:"tree_digest"`
	UpdatedBy       string     `gorm:"column:updated_by" json:"updated_by"`
	CreatedAt       time.Time  `gorm:"not null" json:"created_at"`
	CompletedAt     *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
}

func (UpdateRecord) TableName() string {
	return "cms_updates"
}

func (u *UpdateRecord) BeforeCreate(_ *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
