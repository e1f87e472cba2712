package fileutils

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	log "github.com/sirupsen/logrus"
)

// LockPathFor computes a unique lock file path based on the canonical
// absolute path of the protected target.
func LockPathFor(target string) string {
	abs, err := filepath.Abs(target)
	if err != nil {
		abs = target
	}
	abs = filepath.Clean(abs)
	hash := sha256.Sum256([]byte(abs))
	return filepath.Join(os.TempDir(), "amber_apply_lock_"+hex.EncodeToString(hash[:]))
}

// AcquireLock creates a flock for lockPath and blocks until the exclusive
// lock is held.
func AcquireLock(lockPath string) (*flock.Flock, error) {
	lock := flock.New(lockPath)
	if err := lock.Lock(); err != nil {
		return nil, err
	}
	return lock, nil
}

// ReleaseLock releases the lock held by the flock.
func ReleaseLock(lock *flock.Flock) error {
	return lock.Unlock()
}

// ReplaceFile replaces the file at targetPath with the file at currentPath.
func ReplaceFile(currentPath, targetPath string) error {
	return os.Rename(currentPath, targetPath)
}

// ReplaceDirectory replaces the directory at targetPath with the directory at
// currentPath, removing any existing directory at targetPath first. Callers
// must hold the apply lock for the tree containing targetPath.
func ReplaceDirectory(currentPath, targetPath string) error {
	if _, err := os.Stat(targetPath); err == nil {
		log.Debugf("removing %q", targetPath)
		if err := os.RemoveAll(targetPath); err != nil {
			log.WithError(err).Debug("failed to remove old directory")
			return err
		}
	} else if !os.IsNotExist(err) {
		return err
	}
	return os.Rename(currentPath, targetPath)
}
