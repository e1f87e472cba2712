// Package backup creates, lists, and deletes versioned backup archives of
// the live application tree together with their metadata records.
package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/opencontainers/go-digest"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/ambercms/amber-update/internal/pkg/archive"
	"github.com/ambercms/amber-update/internal/pkg/core/metrics"
	"github.com/ambercms/amber-update/internal/pkg/repos"
	"github.com/ambercms/amber-update/internal/pkg/structure"
	"github.com/ambercms/amber-update/internal/pkg/types"
)

// ErrBackupNotFound is returned when a backup id has no record.
var ErrBackupNotFound = errors.New("backup not found")

const archiveTimestampLayout = "2006-01-02_15-04-05"

// Store manages backup archives under a backup root directory.
type Store struct {
	repo       repos.BackupRepo
	appRoot    string
	backupRoot string
}

// NewStore returns a Store that archives the application tree rooted at
// appRoot into backupRoot.
func NewStore(repo repos.BackupRepo, appRoot, backupRoot string) *Store {
	return &Store{
		repo:       repo,
		appRoot:    appRoot,
		backupRoot: backupRoot,
	}
}

// CreateBackup archives the live application tree and persists a Backup
// record. The archive contains every required directory and essential file
// that exists; absent optional entries are skipped, never an error. A nil
// tx runs the metadata write on the store's own connection.
func (s *Store) CreateBackup(ctx context.Context, tx *gorm.DB, version, createdBy string) (*types.Backup, error) {
	if err := os.MkdirAll(s.backupRoot, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory %q: %w", s.backupRoot, err)
	}

	timestamp := time.Now().UTC().Format(archiveTimestampLayout)
	archiveName := fmt.Sprintf("cms_backup_%s_%s.zip", version, timestamp)
	archivePath := filepath.Join(s.backupRoot, archiveName)

	dirs := prefixed(s.appRoot, structure.PresentDirectories(s.appRoot))
	files := prefixed(s.appRoot, structure.PresentFiles(s.appRoot, structure.BackupEssentialFiles))

	if err := archive.PackZip(dirs, files, archivePath); err != nil {
		return nil, fmt.Errorf("failed to create backup archive: %w", err)
	}

	info, err := os.Stat(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat backup archive %q: %w", archivePath, err)
	}
	checksum, err := archive.FileDigest(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to digest backup archive %q: %w", archivePath, err)
	}

	backup := &types.Backup{
		Version:    version,
		BackupPath: archivePath,
		FileSize:   info.Size(),
		Checksum:   checksum.String(),
		CreatedBy:  createdBy,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, tx, backup); err != nil {
		return nil, fmt.Errorf("failed to persist backup record: %w", err)
	}

	metrics.BackupsTotal.Inc()
	log.WithFields(log.Fields{
		"version":   version,
		"backup_id": backup.ID,
		"file_size": backup.FileSize,
	}).Info("CMS backup created")

	return backup, nil
}

// GetBackup looks up a backup record by id.
func (s *Store) GetBackup(ctx context.Context, id uuid.UUID) (*types.Backup, error) {
	backup, err := s.repo.GetByID(ctx, nil, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBackupNotFound
		}
		return nil, err
	}
	return backup, nil
}

// ListBackups returns all backups, most recent creation time first.
func (s *Store) ListBackups(ctx context.Context) ([]*types.Backup, error) {
	return s.repo.List(ctx, nil)
}

// MarkRestored stamps the backup's restored timestamp.
func (s *Store) MarkRestored(ctx context.Context, tx *gorm.DB, id uuid.UUID, restoredAt time.Time) error {
	return s.repo.MarkRestored(ctx, tx, id, restoredAt)
}

// VerifyArchive checks that the backup's archive exists on disk and matches
// its recorded checksum.
func (s *Store) VerifyArchive(backup *types.Backup) error {
	info, err := os.Stat(backup.BackupPath)
	if err != nil || !info.Mode().IsRegular() {
		return fmt.Errorf("backup file not found at %q", backup.BackupPath)
	}
	if backup.Checksum == "" {
		return nil
	}
	if err := archive.VerifyFileDigest(backup.BackupPath, digest.Digest(backup.Checksum)); err != nil {
		return fmt.Errorf("backup archive %q failed verification: %w", backup.BackupPath, err)
	}
	return nil
}

// DeleteBackup removes the archive file, then the record. A missing file is
// tolerated, but any other removal failure keeps the record so the artifact
// is never orphaned without metadata.
func (s *Store) DeleteBackup(ctx context.Context, id uuid.UUID) error {
	backup, err := s.GetBackup(ctx, id)
	if err != nil {
		return err
	}
	if err := os.Remove(backup.BackupPath); err != nil && !os.IsNotExist(err) {
		log.WithError(err).WithField("backup_id", id).Error("failed to remove backup archive")
		return fmt.Errorf("failed to remove backup archive %q: %w", backup.BackupPath, err)
	}
	if err := s.repo.Delete(ctx, nil, id); err != nil {
		return fmt.Errorf("failed to delete backup record: %w", err)
	}
	log.WithField("backup_id", id).Info("backup deleted")
	return nil
}

func prefixed(root string, names []string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, filepath.Join(root, name))
	}
	return out
}
