// Package structure validates that an extracted payload looks like a
// legitimate package before any of it reaches the live application tree.
package structure

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/samber/lo"

	"github.com/ambercms/amber-update/internal/pkg/utils/fileutils"
)

// RequiredDirectories is the fixed set of top-level directories that make up
// the live application tree. Updates and backups operate on exactly this set.
var RequiredDirectories = []string{"app", "config", "database", "public", "resources", "routes"}

// BackupEssentialFiles are top-level files included in backups when present.
var BackupEssentialFiles = []string{"composer.json", "composer.lock", "package.json", "artisan"}

// UpdateEssentialFiles are top-level files overwritten by an update when the
// payload carries them.
var UpdateEssentialFiles = []string{"composer.json", "composer.lock", "package.json"}

// PackageManifest is the required package-manifest file of a full
// application payload.
const PackageManifest = "composer.json"

var slugPattern = regexp.MustCompile(`^[a-z0-9-]+$`)

var manifestRequiredFields = []string{"name", "slug", "version", "author"}

// ValidatePluginPayload checks an extracted plugin payload rooted at path.
func ValidatePluginPayload(path string) []string {
	return validateManifest(filepath.Join(path, "plugin.json"), "plugin.json", "Plugin")
}

// ValidateThemePayload checks an extracted theme payload rooted at path.
func ValidateThemePayload(path string) []string {
	return validateManifest(filepath.Join(path, "theme.json"), "theme.json", "Theme")
}

// validateManifest collects all violations of the manifest at manifestPath.
// A missing manifest short-circuits since no content checks are possible.
func validateManifest(manifestPath, manifestName, kind string) []string {
	var errs []string

	exists, err := fileutils.Exists(manifestPath)
	if err != nil || !exists {
		return []string{fmt.Sprintf("%s not found in ZIP root", manifestName)}
	}

	raw, err := os.ReadFile(manifestPath)
	if err != nil {
		return []string{fmt.Sprintf("Failed to read %s: %s", manifestName, err)}
	}

	var manifest map[string]any
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return []string{fmt.Sprintf("%s is not valid JSON", manifestName)}
	}

	missing := lo.Filter(manifestRequiredFields, func(field string, _ int) bool {
		value, ok := manifest[field].(string)
		return !ok || value == ""
	})
	errs = append(errs, lo.Map(missing, func(field string, _ int) string {
		return fmt.Sprintf("%s missing required field: %s", manifestName, field)
	})...)

	if slug, ok := manifest["slug"].(string); ok && slug != "" && !slugPattern.MatchString(slug) {
		errs = append(errs, fmt.Sprintf("%s slug must contain only lowercase letters, numbers, and hyphens", kind))
	}

	return errs
}

// ValidateApplicationPayload checks that an extracted payload rooted at path
// carries the full application tree: every required directory plus the
// package manifest. It reads the filesystem only and mutates nothing.
func ValidateApplicationPayload(path string) []string {
	var errs []string

	for _, dir := range RequiredDirectories {
		_, isDir, err := fileutils.ExistsAndIsDirectory(filepath.Join(path, dir))
		if err != nil || !isDir {
			errs = append(errs, fmt.Sprintf("Missing required directory: %s", dir))
		}
	}

	exists, err := fileutils.Exists(filepath.Join(path, PackageManifest))
	if err != nil || !exists {
		errs = append(errs, fmt.Sprintf("%s not found - this does not appear to be a valid CMS package", PackageManifest))
	}

	return errs
}

// PresentDirectories returns the required directories that exist under root.
func PresentDirectories(root string) []string {
	return lo.Filter(RequiredDirectories, func(dir string, _ int) bool {
		_, isDir, err := fileutils.ExistsAndIsDirectory(filepath.Join(root, dir))
		return err == nil && isDir
	})
}

// PresentFiles returns those of the given top-level files that exist under root.
func PresentFiles(root string, names []string) []string {
	return lo.Filter(names, func(name string, _ int) bool {
		exists, err := fileutils.Exists(filepath.Join(root, name))
		return err == nil && exists
	})
}
