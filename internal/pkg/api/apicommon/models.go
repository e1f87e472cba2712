package apicommon

import (
	"github.com/ambercms/amber-update/internal/pkg/archive"
	"github.com/ambercms/amber-update/internal/pkg/types"
)

// ActorKey is the gin context key under which the authorization layer stores
// the acting operator's identity.
const ActorKey = "actor"

// Config carries the API-facing knobs of the engine.
type Config struct {
	// AdminToken authorizes the operator endpoints. Authorization proper is
	// an external concern; this token check stands in for it.
	AdminToken string
	// MaxUpdateSize caps full application update uploads in bytes.
	MaxUpdateSize int64
	// MaxPackageSize caps plugin/theme payload uploads in bytes.
	MaxPackageSize int64
	// HistoryLimit bounds the update history listing.
	HistoryLimit int
	// UploadSpoolDir is where uploads are spooled before validation.
	UploadSpoolDir string
}

// ErrorResponse is the uniform error payload of the operator API.
type ErrorResponse struct {
	Message string   `json:"message"`
	Errors  []string `json:"errors,omitempty"`
}

// DataResponse wraps list payloads.
type DataResponse[T any] struct {
	Data T `json:"data"`
}

// BackupView is the API projection of a backup record.
type BackupView struct {
	*types.Backup
	FileSizeHuman string `json:"file_size_human"`
}

// NewBackupView renders a backup with its human readable size.
func NewBackupView(b *types.Backup) BackupView {
	return BackupView{
		Backup:        b,
		FileSizeHuman: archive.FormatBytes(b.FileSize),
	}
}
