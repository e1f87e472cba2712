// Package updateapi exposes the operator endpoints of the update engine:
// upload an update, list history and backups, roll back, delete a backup.
package updateapi

import (
	"errors"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"

	"github.com/ambercms/amber-update/internal/pkg/api/apicommon"
	"github.com/ambercms/amber-update/internal/pkg/archive"
	"github.com/ambercms/amber-update/internal/pkg/backup"
	"github.com/ambercms/amber-update/internal/pkg/structure"
	"github.com/ambercms/amber-update/internal/pkg/types"
	"github.com/ambercms/amber-update/internal/pkg/update"
)

// API bundles the handlers of the system-update endpoints.
type API struct {
	orchestrator *update.Orchestrator
	backups      *backup.Store
	config       *apicommon.Config
}

// RegisterRoutes attaches the system-update endpoints to the group.
func RegisterRoutes(g *gin.RouterGroup, config *apicommon.Config, orchestrator *update.Orchestrator, backups *backup.Store) {
	a := &API{
		orchestrator: orchestrator,
		backups:      backups,
		config:       config,
	}
	g.POST("/update", a.upload)
	g.GET("/update/history", a.history)
	g.POST("/packages/validate", a.validatePackage)
	g.GET("/backups", a.listBackups)
	g.POST("/backups/:id/rollback", a.rollback)
	g.DELETE("/backups/:id", a.deleteBackup)
}

// upload accepts a full application update archive and applies it.
func (a *API) upload(c *gin.Context) {
	fileHeader, err := c.FormFile("update_zip")
	if err != nil {
		c.JSON(http.StatusBadRequest, apicommon.ErrorResponse{Message: "update_zip file is required"})
		return
	}
	version := c.PostForm("version")
	if version == "" || len(version) > 50 {
		c.JSON(http.StatusBadRequest, apicommon.ErrorResponse{Message: "version is required and must be at most 50 characters"})
		return
	}
	changelog := c.PostForm("changelog")

	spooled, cleanup, err := a.spoolUpload(c, fileHeader)
	if err != nil {
		log.WithError(err).Error("failed to spool uploaded archive")
		c.JSON(http.StatusInternalServerError, apicommon.ErrorResponse{Message: "Update upload failed"})
		return
	}
	defer cleanup()

	violations := archive.ValidateUpload(spooled, a.config.MaxUpdateSize)
	if len(violations) > 0 {
		c.JSON(http.StatusUnprocessableEntity, apicommon.ErrorResponse{
			Message: "Invalid update ZIP file",
			Errors:  violations,
		})
		return
	}

	result := a.orchestrator.ApplyUpdate(c.Request.Context(), spooled.Path, version, c.GetString(apicommon.ActorKey), changelog)
	if !result.Success {
		c.JSON(http.StatusInternalServerError, apicommon.ErrorResponse{Message: result.Message})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": result.Message,
		"update":  result.Record,
		"backup":  apicommon.NewBackupView(result.Backup),
	})
}

// validatePackage probes a plugin or theme archive without installing it.
func (a *API) validatePackage(c *gin.Context) {
	kind := c.Query("kind")
	if kind != "plugin" && kind != "theme" {
		c.JSON(http.StatusBadRequest, apicommon.ErrorResponse{Message: "kind must be plugin or theme"})
		return
	}
	fileHeader, err := c.FormFile("package_zip")
	if err != nil {
		c.JSON(http.StatusBadRequest, apicommon.ErrorResponse{Message: "package_zip file is required"})
		return
	}

	spooled, cleanup, err := a.spoolUpload(c, fileHeader)
	if err != nil {
		log.WithError(err).Error("failed to spool uploaded archive")
		c.JSON(http.StatusInternalServerError, apicommon.ErrorResponse{Message: "Package upload failed"})
		return
	}
	defer cleanup()

	violations := archive.ValidateUpload(spooled, a.config.MaxPackageSize)
	if len(violations) == 0 {
		violations = a.validatePackageStructure(spooled.Path, kind)
	}
	if len(violations) > 0 {
		c.JSON(http.StatusUnprocessableEntity, apicommon.ErrorResponse{
			Message: "Invalid " + kind + " package",
			Errors:  violations,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Package is valid"})
}

func (a *API) validatePackageStructure(archivePath, kind string) []string {
	scratch, err := os.MkdirTemp(a.config.UploadSpoolDir, "pkg_validate_*")
	if err != nil {
		return []string{"failed to prepare validation directory"}
	}
	defer func() {
		_ = os.RemoveAll(scratch)
	}()
	if err := archive.ExtractZip(archivePath, scratch); err != nil {
		return []string{"Failed to extract ZIP file"}
	}
	if kind == "plugin" {
		return structure.ValidatePluginPayload(scratch)
	}
	return structure.ValidateThemePayload(scratch)
}

func (a *API) history(c *gin.Context) {
	records, err := a.orchestrator.History(c.Request.Context(), a.config.HistoryLimit)
	if err != nil {
		log.WithError(err).Error("failed to list update history")
		c.JSON(http.StatusInternalServerError, apicommon.ErrorResponse{Message: "Failed to list update history"})
		return
	}
	c.JSON(http.StatusOK, apicommon.DataResponse[[]*types.UpdateRecord]{Data: records})
}

func (a *API) listBackups(c *gin.Context) {
	backups, err := a.backups.ListBackups(c.Request.Context())
	if err != nil {
		log.WithError(err).Error("failed to list backups")
		c.JSON(http.StatusInternalServerError, apicommon.ErrorResponse{Message: "Failed to list backups"})
		return
	}
	views := lo.Map(backups, func(b *types.Backup, _ int) apicommon.BackupView {
		return apicommon.NewBackupView(b)
	})
	c.JSON(http.StatusOK, apicommon.DataResponse[[]apicommon.BackupView]{Data: views})
}

func (a *API) rollback(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apicommon.ErrorResponse{Message: "invalid backup id"})
		return
	}
	if err := a.orchestrator.Rollback(c.Request.Context(), id); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, backup.ErrBackupNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, apicommon.ErrorResponse{Message: "Rollback failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "CMS rolled back successfully"})
}

func (a *API) deleteBackup(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apicommon.ErrorResponse{Message: "invalid backup id"})
		return
	}
	if err := a.backups.DeleteBackup(c.Request.Context(), id); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, backup.ErrBackupNotFound) {
			status = http.StatusNotFound
		}
		log.WithError(err).WithField("backup_id", id).Error("backup deletion failed")
		c.JSON(status, apicommon.ErrorResponse{Message: "Failed to delete backup"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Backup deleted successfully"})
}

// spoolUpload writes the multipart file to the spool directory and returns
// the archive description plus a cleanup closure.
func (a *API) spoolUpload(c *gin.Context, fileHeader *multipart.FileHeader) (archive.Upload, func(), error) {
	if err := os.MkdirAll(a.config.UploadSpoolDir, 0o755); err != nil {
		return archive.Upload{}, nil, err
	}
	dst := filepath.Join(a.config.UploadSpoolDir, "upload_"+uuid.NewString()+".zip")
	if err := c.SaveUploadedFile(fileHeader, dst); err != nil {
		return archive.Upload{}, nil, err
	}
	cleanup := func() {
		if err := os.Remove(dst); err != nil && !os.IsNotExist(err) {
			log.WithError(err).Warnf("failed to remove spooled upload %q", dst)
		}
	}
	upload := archive.Upload{
		Path:        dst,
		Filename:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Size:        fileHeader.Size,
	}
	return upload, cleanup, nil
}
