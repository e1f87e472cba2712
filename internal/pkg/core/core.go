// Package core assembles the update engine: metadata database, backup
// store, orchestrator, scheduler, and the HTTP server.
package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/ambercms/amber-update/configs"
	"github.com/ambercms/amber-update/internal/pkg/api"
	"github.com/ambercms/amber-update/internal/pkg/api/apicommon"
	"github.com/ambercms/amber-update/internal/pkg/backup"
	"github.com/ambercms/amber-update/internal/pkg/repos"
	"github.com/ambercms/amber-update/internal/pkg/scheduler"
	"github.com/ambercms/amber-update/internal/pkg/update"
	"github.com/ambercms/amber-update/internal/pkg/versioncfg"
)

// Amber is the update engine server.
type Amber struct {
	engine    *gin.Engine
	srv       *http.Server
	scheduler *scheduler.BackupScheduler
	hostname  string
	port      uint16
}

// New returns an instance of the update engine server.
func New(config configs.ServerConfig) (*Amber, error) {
	a := &Amber{}
	if err := a.init(config); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Amber) init(config configs.ServerConfig) error {
	cfgFile := config.ConfigFile

	db, err := repos.Open(cfgFile.DatabasePath)
	if err != nil {
		return err
	}

	backupStore := backup.NewStore(repos.NewBackupRepo(db), cfgFile.AppRoot, cfgFile.BackupRoot)
	version := versioncfg.New(cfgFile.VersionConfigPath)
	orchestrator := update.NewOrchestrator(
		db,
		backupStore,
		repos.NewUpdateRepo(db),
		version,
		cfgFile.AppRoot,
		cfgFile.ScratchRoot,
	)
	a.scheduler = scheduler.New(backupStore, version, cfgFile.BackupSchedule)

	a.hostname = config.CliOpts.Host
	a.port = config.CliOpts.HTTPPort

	appConfig := &apicommon.Config{
		AdminToken:     cfgFile.AdminToken,
		MaxUpdateSize:  cfgFile.Uploads.MaxUpdateSize,
		MaxPackageSize: cfgFile.Uploads.MaxPackageSize,
		HistoryLimit:   20,
		UploadSpoolDir: cfgFile.ScratchRoot,
	}
	if config.CliOpts.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	a.engine = api.BuildApp(appConfig, orchestrator, backupStore)
	if err := a.engine.SetTrustedProxies(cfgFile.TrustedProxies); err != nil {
		return fmt.Errorf("failed to set trusted proxies: %w", err)
	}
	return nil
}

// Start the update engine server.
func (a *Amber) Start() error {
	log.Info("Starting Amber update engine")
	if err := a.scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start backup scheduler: %w", err)
	}
	serverURL := fmt.Sprintf("%s:%d", a.hostname, a.port)
	a.srv = &http.Server{
		Addr:    serverURL,
		Handler: a.engine,
	}
	go func() {
		if err := a.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("failed to start server")
		}
	}()
	log.Infof("Listening on %s", a.srv.Addr)
	return nil
}

// Stop the update engine server. An apply in flight finishes before the
// process exits; shutdown only stops accepting new requests.
func (a *Amber) Stop(ctx context.Context) error {
	a.scheduler.Stop()
	return a.srv.Shutdown(ctx)
}
