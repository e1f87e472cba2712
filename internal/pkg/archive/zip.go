package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/opencontainers/go-digest"
	log "github.com/sirupsen/logrus"

	"github.com/ambercms/amber-update/internal/pkg/utils/funcutils"
)

// ExtractZip extracts the archive at archivePath into destDir, creating the
// destination (including parents) if needed. Entries that would resolve
// outside destDir are rejected. On error the destination must be treated as
// unusable and discarded by the caller.
func ExtractZip(archivePath, destDir string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		log.WithError(err).Errorf("failed to open archive %q for extraction to %q", archivePath, destDir)
		return fmt.Errorf("failed to open archive %q: %w", archivePath, err)
	}
	defer funcutils.PanicOrLogOnErr(r.Close, false, "failed to close archive")

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("failed to create destination %q: %w", destDir, err)
	}

	for _, f := range r.File {
		if err := extractEntry(destDir, f); err != nil {
			log.WithError(err).Errorf("extraction of %q to %q failed at entry %q", archivePath, destDir, f.Name)
			return fmt.Errorf("failed to extract entry %q: %w", f.Name, err)
		}
	}
	return nil
}

func extractEntry(destDir string, f *zip.File) error {
	path, err := ensureBasePath(destDir, f.Name)
	if err != nil {
		return err
	}

	mode := f.Mode()
	switch {
	case mode.IsDir():
		return os.MkdirAll(path, 0o755)
	case mode.IsRegular():
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		defer funcutils.PanicOrLogOnErr(rc.Close, false, "failed to close archive entry")
		return writeFile(path, rc, mode.Perm())
	default:
		// Symlinks and other special entries have no place in an update payload.
		return fmt.Errorf("unsupported file type %v", mode)
	}
}

// ensureBasePath ensures the entry name resolves inside base, returning the
// joined destination path.
func ensureBasePath(base, name string) (string, error) {
	if filepath.IsAbs(name) {
		return "", fmt.Errorf("%q is an absolute path", name)
	}
	cleaned := filepath.ToSlash(filepath.Clean(name))
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%q is outside of %q", name, base)
	}
	return filepath.Join(base, filepath.FromSlash(cleaned)), nil
}

// writeFile writes content to the file specified by the `path` parameter.
func writeFile(path string, r io.Reader, perm os.FileMode) (err error) {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	defer func() {
		closeErr := file.Close()
		if err == nil {
			err = closeErr
		}
	}()

	_, err = io.Copy(file, r)
	// call Sync to make sure file is written to the disk
	return errors.Join(err, file.Sync())
}

// PackZip creates a new archive at destPath (overwriting any existing file)
// containing each listed directory recursively, namespaced under the
// directory's own base name, and each listed file under its bare filename.
func PackZip(dirs, files []string, destPath string) (err error) {
	out, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create archive %q: %w", destPath, err)
	}
	defer func() {
		closeErr := errors.Join(out.Sync(), out.Close())
		if err == nil {
			err = closeErr
		}
	}()

	zw := zip.NewWriter(out)
	defer func() {
		closeErr := zw.Close()
		if err == nil {
			err = closeErr
		}
	}()

	for _, dir := range dirs {
		if err := packDirectory(zw, dir); err != nil {
			return fmt.Errorf("failed to pack directory %q: %w", dir, err)
		}
	}
	for _, file := range files {
		if err := packFile(zw, file, filepath.Base(file)); err != nil {
			return fmt.Errorf("failed to pack file %q: %w", file, err)
		}
	}
	return nil
}

func packDirectory(zw *zip.Writer, dir string) error {
	base := filepath.Base(dir)
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		return packFile(zw, path, filepath.ToSlash(filepath.Join(base, rel)))
	})
}

func packFile(zw *zip.Writer, path, name string) (err error) {
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() {
		closeErr := in.Close()
		if err == nil {
			err = closeErr
		}
	}()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = name
	hdr.Method = zip.Deflate
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, in)
	return err
}

// FileDigest computes the canonical digest of the file at the path.
func FileDigest(path string) (d digest.Digest, err error) {
	fp, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() {
		closeErr := fp.Close()
		if err == nil {
			err = closeErr
		}
	}()
	return digest.FromReader(fp)
}

// VerifyFileDigest checks the file at the path against an expected digest.
func VerifyFileDigest(path string, expected digest.Digest) (err error) {
	fp, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() {
		closeErr := fp.Close()
		if err == nil {
			err = closeErr
		}
	}()
	verifier := expected.Verifier()
	if _, err := io.Copy(verifier, fp); err != nil {
		return err
	}
	if !verifier.Verified() {
		return errors.New("content digest mismatch")
	}
	return nil
}
