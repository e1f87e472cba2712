// Package update drives the self-update state machine: validate, backup,
// extract, validate structure, apply, record, clean up — and rollback.
package update

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/mod/sumdb/dirhash"
	"gorm.io/gorm"

	"github.com/ambercms/amber-update/internal/pkg/archive"
	"github.com/ambercms/amber-update/internal/pkg/backup"
	"github.com/ambercms/amber-update/internal/pkg/core/metrics"
	"github.com/ambercms/amber-update/internal/pkg/repos"
	"github.com/ambercms/amber-update/internal/pkg/structure"
	"github.com/ambercms/amber-update/internal/pkg/types"
	"github.com/ambercms/amber-update/internal/pkg/utils/fileutils"
	"github.com/ambercms/amber-update/internal/pkg/versioncfg"
)

// Result is the outcome of an ApplyUpdate call.
type Result struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	Record  *types.UpdateRecord `json:"update,omitempty"`
	Backup  *types.Backup       `json:"backup,omitempty"`
}

// Orchestrator owns the live application tree during apply operations. Only
// one apply (update or rollback) runs at a time, enforced by an exclusive
// file lock derived from the live root.
type Orchestrator struct {
	db          *gorm.DB
	backups     *backup.Store
	updates     repos.UpdateRepo
	version     *versioncfg.File
	appRoot     string
	scratchRoot string
	lockPath    string
}

// NewOrchestrator assembles the update state machine. scratchRoot must live
// on the same filesystem as appRoot so staged directories can be moved into
// place with rename.
func NewOrchestrator(db *gorm.DB, backups *backup.Store, updates repos.UpdateRepo, version *versioncfg.File, appRoot, scratchRoot string) *Orchestrator {
	return &Orchestrator{
		db:          db,
		backups:     backups,
		updates:     updates,
		version:     version,
		appRoot:     appRoot,
		scratchRoot: scratchRoot,
		lockPath:    fileutils.LockPathFor(appRoot),
	}
}

// ApplyUpdate runs one update attempt from an already spooled archive. The
// archive must have passed archive.ValidateUpload before this is called;
// validation failures there never reach the history. Every other failure is
// recorded on the attempt's UpdateRecord.
func (o *Orchestrator) ApplyUpdate(ctx context.Context, archivePath, targetVersion, initiator, changelog string) Result {
	return o.applyUpdate(ctx, archivePath, targetVersion, initiator, changelog, types.UpdateTypeManual)
}

func (o *Orchestrator) applyUpdate(ctx context.Context, archivePath, targetVersion, initiator, changelog, updateType string) Result {
	// Serialize with any other apply before reading the current version, so
	// a queued attempt records the version the previous one left behind.
	lock, err := fileutils.AcquireLock(o.lockPath)
	if err != nil {
		return o.failure(NewUpdateError(ErrLockFailed, err))
	}
	defer func() {
		_ = fileutils.ReleaseLock(lock)
	}()

	currentVersion, err := o.version.Current()
	if err != nil {
		return o.failure(fmt.Errorf("failed to read current version: %w", err))
	}

	record := &types.UpdateRecord{
		Version:         targetVersion,
		PreviousVersion: currentVersion,
		UpdateType:      updateType,
		Status:          types.StatusPending,
		Changelog:       changelog,
		UpdatedBy:       initiator,
		CreatedAt:       time.Now().UTC(),
	}
	if err := o.updates.Create(ctx, nil, record); err != nil {
		return o.failure(NewUpdateError(ErrPersistenceFailed, err))
	}

	// No update proceeds without a backup.
	backupRecord, err := o.backups.CreateBackup(ctx, nil, currentVersion, initiator)
	if err != nil {
		o.markFailed(ctx, record)
		return o.failure(NewUpdateError(ErrBackupPrecondition, err))
	}
	record.BackupPath = backupRecord.BackupPath
	if err := o.updates.Save(ctx, nil, record); err != nil {
		o.markFailed(ctx, record)
		return o.failure(NewUpdateError(ErrPersistenceFailed, err))
	}

	scratch, err := o.newScratchDir("cms_update_")
	if err != nil {
		o.markFailed(ctx, record)
		return o.failure(NewUpdateError(ErrExtractionFailed, err))
	}
	defer o.cleanupScratch(scratch)

	if err := archive.ExtractZip(archivePath, scratch); err != nil {
		o.markFailed(ctx, record)
		return o.failure(NewUpdateError(ErrExtractionFailed, err))
	}

	if violations := structure.ValidateApplicationPayload(scratch); len(violations) > 0 {
		o.markFailed(ctx, record)
		return o.failure(NewUpdateError(ErrStructureInvalid, fmt.Errorf("%s", strings.Join(violations, ", "))))
	}

	applyStart := time.Now()
	if err := o.applyPayload(scratch); err != nil {
		o.markFailed(ctx, record)
		log.WithError(err).WithFields(log.Fields{
			"backup_id":   backupRecord.ID,
			"backup_path": backupRecord.BackupPath,
		}).Error("apply step failed, live tree may be in a mixed state; roll back to the listed backup")
		return o.failure(NewUpdateError(ErrApplyFailed, err))
	}
	metrics.ApplyDuration.Observe(time.Since(applyStart).Seconds())

	if err := o.version.Set(targetVersion); err != nil {
		o.markFailed(ctx, record)
		return o.failure(NewUpdateError(ErrApplyFailed, err))
	}

	if treeHash, err := dirhash.HashDir(o.appRoot, "", dirhash.Hash1); err == nil {
		record.TreeDigest = treeHash
	}

	now := time.Now().UTC()
	record.Status = types.StatusCompleted
	record.CompletedAt = &now
	err = o.db.Transaction(func(tx *gorm.DB) error {
		return o.updates.Save(ctx, tx, record)
	})
	if err != nil {
		// The live tree is already updated; the audit trail now disagrees
		// with the filesystem.
		log.WithError(err).WithFields(log.Fields{
			"version":   targetVersion,
			"update_id": record.ID,
		}).Error("CRITICAL: update applied but outcome could not be recorded")
		return o.failure(NewUpdateError(ErrPersistenceFailed, err))
	}

	metrics.UpdatesTotal.WithLabelValues(types.StatusCompleted).Inc()
	log.WithFields(log.Fields{
		"version":          targetVersion,
		"previous_version": currentVersion,
		"update_id":        record.ID,
	}).Info("CMS update applied successfully")

	return Result{
		Success: true,
		Message: fmt.Sprintf("CMS updated successfully to version %s", targetVersion),
		Record:  record,
		Backup:  backupRecord,
	}
}

// Rollback restores the live tree from a stored backup. Failures before the
// apply step leave the live tree untouched.
func (o *Orchestrator) Rollback(ctx context.Context, backupID uuid.UUID) error {
	err := o.rollback(ctx, backupID)
	if err != nil {
		metrics.RollbacksTotal.WithLabelValues(types.StatusFailed).Inc()
		log.WithError(err).WithField("backup_id", backupID).Error("CMS rollback failed")
		return err
	}
	metrics.RollbacksTotal.WithLabelValues(types.StatusCompleted).Inc()
	return nil
}

func (o *Orchestrator) rollback(ctx context.Context, backupID uuid.UUID) error {
	backupRecord, err := o.backups.GetBackup(ctx, backupID)
	if err != nil {
		return err
	}
	if err := o.backups.VerifyArchive(backupRecord); err != nil {
		return NewUpdateError(ErrBackupMissing, err)
	}

	lock, err := fileutils.AcquireLock(o.lockPath)
	if err != nil {
		return NewUpdateError(ErrLockFailed, err)
	}
	defer func() {
		_ = fileutils.ReleaseLock(lock)
	}()

	scratch, err := o.newScratchDir("cms_rollback_")
	if err != nil {
		return NewUpdateError(ErrExtractionFailed, err)
	}
	defer o.cleanupScratch(scratch)

	if err := archive.ExtractZip(backupRecord.BackupPath, scratch); err != nil {
		return NewUpdateError(ErrExtractionFailed, err)
	}

	if err := o.applyPayload(scratch); err != nil {
		return NewUpdateError(ErrApplyFailed, err)
	}

	if err := o.version.Set(backupRecord.Version); err != nil {
		return NewUpdateError(ErrApplyFailed, err)
	}

	now := time.Now().UTC()
	if err := o.backups.MarkRestored(ctx, nil, backupRecord.ID, now); err != nil {
		return NewUpdateError(ErrPersistenceFailed, err)
	}

	latest, err := o.updates.Latest(ctx, nil)
	if err != nil {
		return NewUpdateError(ErrPersistenceFailed, err)
	}
	if latest != nil {
		latest.Status = types.StatusRolledBack
		if err := o.updates.Save(ctx, nil, latest); err != nil {
			return NewUpdateError(ErrPersistenceFailed, err)
		}
	}

	log.WithFields(log.Fields{
		"backup_id": backupID,
		"version":   backupRecord.Version,
	}).Info("CMS rolled back successfully")
	return nil
}

// History returns the most recent update attempts, newest first.
func (o *Orchestrator) History(ctx context.Context, limit int) ([]*types.UpdateRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	return o.updates.History(ctx, nil, limit)
}

// applyPayload is the sole writer of the live tree. For each required
// directory present in the payload the live directory is removed and the
// payload copy moved into its place; essential files are overwritten.
func (o *Orchestrator) applyPayload(payloadRoot string) error {
	for _, dir := range structure.PresentDirectories(payloadRoot) {
		src := filepath.Join(payloadRoot, dir)
		dst := filepath.Join(o.appRoot, dir)
		if err := fileutils.ReplaceDirectory(src, dst); err != nil {
			return fmt.Errorf("failed to replace directory %q: %w", dir, err)
		}
	}
	for _, name := range structure.PresentFiles(payloadRoot, structure.UpdateEssentialFiles) {
		src := filepath.Join(payloadRoot, name)
		dst := filepath.Join(o.appRoot, name)
		if err := fileutils.ReplaceFile(src, dst); err != nil {
			return fmt.Errorf("failed to replace file %q: %w", name, err)
		}
	}
	return nil
}

func (o *Orchestrator) newScratchDir(prefix string) (string, error) {
	if err := os.MkdirAll(o.scratchRoot, 0o755); err != nil {
		return "", err
	}
	return os.MkdirTemp(o.scratchRoot, prefix+"*")
}

// cleanupScratch is best-effort: a leftover scratch directory must never
// mask the error that caused the attempt to fail.
func (o *Orchestrator) cleanupScratch(path string) {
	if err := os.RemoveAll(path); err != nil {
		log.WithError(err).Warnf("failed to clean scratch directory %q", path)
	}
}

func (o *Orchestrator) markFailed(ctx context.Context, record *types.UpdateRecord) {
	record.Status = types.StatusFailed
	if err := o.updates.Save(ctx, nil, record); err != nil {
		log.WithError(err).WithField("update_id", record.ID).Error("failed to mark update record as failed")
	}
	metrics.UpdatesTotal.WithLabelValues(types.StatusFailed).Inc()
}

func (o *Orchestrator) failure(err error) Result {
	log.WithError(err).Error("CMS update failed")
	return Result{
		Success: false,
		Message: fmt.Sprintf("Update failed: %s", err.Error()),
	}
}
