package configs

import (
	"fmt"
	"path/filepath"

	"github.com/ambercms/amber-update/internal/pkg/utils/fileutils"
)

// Default upload size ceilings: plugin/theme payloads and full application
// update payloads.
const (
	DefaultMaxPackageSize = 50 * 1024 * 1024
	DefaultMaxUpdateSize  = 100 * 1024 * 1024
)

// ServerConfigFile is the YAML configuration of the update engine.
type ServerConfigFile struct {
	// AppRoot is the root of the live application tree.
	AppRoot string `yaml:"app-root"`
	// BackupRoot is where backup archives are stored.
	BackupRoot string `yaml:"backup-root"`
	// ScratchRoot holds per-attempt extraction directories. It must share a
	// filesystem with AppRoot so staged directories can be renamed into place.
	ScratchRoot string `yaml:"scratch-root"`
	// DatabasePath is the sqlite file holding backup and update records.
	DatabasePath string `yaml:"database-path"`
	// VersionConfigPath is the artifact carrying the current version string.
	// Defaults to <app-root>/config/cms.yaml.
	VersionConfigPath string `yaml:"version-config-path"`
	// AdminToken gates the operator endpoints.
	AdminToken string `yaml:"admin-token"`
	// BackupSchedule is a cron expression for automatic backups; empty
	// disables them.
	BackupSchedule string `yaml:"backup-schedule"`
	TrustedProxies []string `yaml:"trusted-proxies"`
	Uploads        Uploads  `yaml:"uploads"`
}

// Uploads holds the archive size ceilings in bytes.
type Uploads struct {
	MaxPackageSize int64 `yaml:"max-package-size"`
	MaxUpdateSize  int64 `yaml:"max-update-size"`
}

// CliOpts are options provided via command line arguments.
type CliOpts struct {
	Host           string
	HTTPPort       uint16
	LogLevel       string
	LogFormat      string
	ConfigFilePath string
}

// ServerConfig aggregates the config file and CLI options.
type ServerConfig struct {
	ConfigFile ServerConfigFile
	CliOpts    CliOpts
}

// LoadConfigFile reads and defaults the YAML config at the path.
func LoadConfigFile(path string) (ServerConfigFile, error) {
	var cfg ServerConfigFile
	available, err := fileutils.SafeReadYAML(path, &cfg)
	if err != nil {
		return cfg, fmt.Errorf("failed to load config file %q: %w", path, err)
	}
	if !available {
		return cfg, fmt.Errorf("config file %q is empty", path)
	}
	cfg.ApplyDefaults()
	if cfg.AppRoot == "" {
		return cfg, fmt.Errorf("config file %q does not set app-root", path)
	}
	return cfg, nil
}

// ApplyDefaults fills the derivable fields that were left unset.
func (c *ServerConfigFile) ApplyDefaults() {
	if c.VersionConfigPath == "" && c.AppRoot != "" {
		c.VersionConfigPath = filepath.Join(c.AppRoot, "config", "cms.yaml")
	}
	if c.ScratchRoot == "" && c.AppRoot != "" {
		c.ScratchRoot = filepath.Join(c.AppRoot, "storage", "temp")
	}
	if c.BackupRoot == "" && c.AppRoot != "" {
		c.BackupRoot = filepath.Join(c.AppRoot, "storage", "backups")
	}
	if c.DatabasePath == "" && c.BackupRoot != "" {
		c.DatabasePath = filepath.Join(c.BackupRoot, "amber-update.db")
	}
	if c.Uploads.MaxPackageSize == 0 {
		c.Uploads.MaxPackageSize = DefaultMaxPackageSize
	}
	if c.Uploads.MaxUpdateSize == 0 {
		c.Uploads.MaxUpdateSize = DefaultMaxUpdateSize
	}
}
