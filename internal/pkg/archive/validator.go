package archive

import (
	"archive/zip"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/samber/lo"
)

// Upload describes a candidate archive before any of its content is trusted.
// Path points at the spooled upload on disk; Filename and ContentType are the
// client-declared values.
type Upload struct {
	Path        string
	Filename    string
	ContentType string
	Size        int64
}

var allowedContentTypes = []string{
	"application/zip",
	"application/x-zip-compressed",
	"application/x-zip",
}

// ValidateUpload probes an uploaded archive and returns the list of
// violations. All checks run; an empty result means the upload is acceptable.
// The archive handle opened for the well-formedness check is closed before
// returning.
func ValidateUpload(u Upload, sizeLimit int64) []string {
	var errs []string

	if strings.ToLower(filepath.Ext(u.Filename)) != ".zip" {
		errs = append(errs, "File must be a ZIP archive")
	}

	if !lo.Contains(allowedContentTypes, u.ContentType) {
		errs = append(errs, "Invalid file type. Only ZIP files are allowed")
	}

	if u.Size > sizeLimit {
		errs = append(errs, fmt.Sprintf("File size exceeds maximum allowed size of %s", FormatBytes(sizeLimit)))
	}

	r, err := zip.OpenReader(u.Path)
	if err != nil {
		errs = append(errs, "File is not a valid ZIP archive")
	} else {
		_ = r.Close()
	}

	return errs
}

// FormatBytes renders a byte count in a human readable unit.
func FormatBytes(bytes int64) string {
	units := []string{"B", "KB", "MB", "GB", "TB"}
	size := float64(bytes)
	i := 0
	for size >= 1024 && i < len(units)-1 {
		size /= 1024
		i++
	}
	return fmt.Sprintf("%.2f %s", size, units[i])
}
