// Package scheduler runs automatic backups on a cron schedule.
package scheduler

import (
	"context"

	"github.com/robfig/cron"
	log "github.com/sirupsen/logrus"

	"github.com/ambercms/amber-update/internal/pkg/backup"
	"github.com/ambercms/amber-update/internal/pkg/versioncfg"
)

// SystemCreator identifies backups taken by the scheduler rather than an
// operator.
const SystemCreator = "system"

// BackupScheduler triggers periodic backups of the live application tree.
type BackupScheduler struct {
	store    *backup.Store
	version  *versioncfg.File
	schedule string
	c        *cron.Cron
}

// New returns a scheduler for the given cron expression. An empty
// expression disables scheduling.
func New(store *backup.Store, version *versioncfg.File, schedule string) *BackupScheduler {
	return &BackupScheduler{
		store:    store,
		version:  version,
		schedule: schedule,
	}
}

// Start begins the schedule; it is a no-op when no expression is configured.
func (s *BackupScheduler) Start() error {
	if s.schedule == "" {
		return nil
	}
	s.c = cron.New()
	if err := s.c.AddFunc(s.schedule, s.runBackup); err != nil {
		return err
	}
	s.c.Start()
	log.Infof("scheduled automatic backups: %s", s.schedule)
	return nil
}

// Stop halts the schedule; a running backup finishes on its own.
func (s *BackupScheduler) Stop() {
	if s.c != nil {
		s.c.Stop()
	}
}

func (s *BackupScheduler) runBackup() {
	version, err := s.version.Current()
	if err != nil {
		log.WithError(err).Error("scheduled backup skipped, failed to read current version")
		return
	}
	if _, err := s.store.CreateBackup(context.Background(), nil, version, SystemCreator); err != nil {
		log.WithError(err).Error("scheduled backup failed")
	}
}
