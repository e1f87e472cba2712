// Package versioncfg manages the version entry of the persisted CMS
// configuration artifact. The value is substituted in place so the rest of
// the artifact survives an update byte for byte.
package versioncfg

import (
	"fmt"
	"os"
	"regexp"

	"github.com/ambercms/amber-update/internal/pkg/utils/fileutils"
	"github.com/ambercms/amber-update/internal/pkg/utils/funcutils"
	"github.com/ambercms/amber-update/internal/pkg/utils/writerutils"
)

// DefaultVersion is reported when the artifact does not declare a version.
const DefaultVersion = "1.0.0"

var versionLine = regexp.MustCompile(`(?m)^(\s*version\s*:\s*).*$`)

// File is a handle on the version configuration artifact.
type File struct {
	path string
}

// New returns a handle on the artifact at the path. The file may not exist
// yet; Current reports DefaultVersion until Set creates it.
func New(path string) *File {
	return &File{path: path}
}

// Path returns the location of the artifact.
func (f *File) Path() string {
	return f.path
}

type versionDoc struct {
	Version string `yaml:"version"`
}

// Current reads the configured version, falling back to DefaultVersion when
// the artifact is absent or carries no version key.
func (f *File) Current() (string, error) {
	exists, err := fileutils.Exists(f.path)
	if err != nil {
		return "", err
	}
	if !exists {
		return DefaultVersion, nil
	}
	var doc versionDoc
	available, err := fileutils.SafeReadYAML(f.path, &doc)
	if err != nil {
		return "", fmt.Errorf("failed to read version config %q: %w", f.path, err)
	}
	if !available || doc.Version == "" {
		return DefaultVersion, nil
	}
	return doc.Version, nil
}

// Set substitutes the version value in place, preserving the remainder of
// the artifact. A missing artifact is created with just the version key.
func (f *File) Set(version string) error {
	replacement := fmt.Sprintf(`version: "%s"`, version)

	exists, err := fileutils.Exists(f.path)
	if err != nil {
		return err
	}
	content := []byte(replacement + "\n")
	if exists {
		raw, err := os.ReadFile(f.path)
		if err != nil {
			return fmt.Errorf("failed to read version config %q: %w", f.path, err)
		}
		if versionLine.Match(raw) {
			// Literal substitution: a $ in the version must not be expanded
			// as a capture-group reference.
			content = versionLine.ReplaceAllFunc(raw, func(line []byte) []byte {
				prefix := versionLine.FindSubmatch(line)[1]
				return append(append([]byte{}, prefix...), fmt.Sprintf("%q", version)...)
			})
		} else {
			content = append([]byte(replacement+"\n"), raw...)
		}
	}

	fp, err := os.OpenFile(f.path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open version config %q: %w", f.path, err)
	}
	w := writerutils.NewSafeFileWriter(fp)
	defer funcutils.PanicOrLogOnErr(w.Close, false, "failed to close version config")
	if _, err := w.Write(content); err != nil {
		return fmt.Errorf("failed to write version config %q: %w", f.path, err)
	}
	return nil
}
