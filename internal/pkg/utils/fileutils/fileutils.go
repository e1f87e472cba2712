package fileutils

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// SafeReadYAML reads the YAML file at the path into the targetPointer.
// Returns true if the file held content, or an error if reading failed.
func SafeReadYAML(filePath string, targetPointer any) (yamlAvailable bool, err error) {
	fileBytes, err := os.ReadFile(filePath)
	if err != nil {
		return false, fmt.Errorf("unable to open file: %s, %w", filePath, err)
	}
	if len(fileBytes) == 0 {
		return false, nil
	}
	return true, yaml.Unmarshal(fileBytes, targetPointer)
}

// Exists reports whether a file or directory exists at the path.
func Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ExistsAndIsDirectory reports whether the path exists and is a directory.
func ExistsAndIsDirectory(path string) (exists, isDir bool, err error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, false, nil
		}
		return false, false, err
	}
	return true, info.IsDir(), nil
}

// CompareDirectories checks if two directories have the same structure and
// content by walking both trees and comparing file hashes.
func CompareDirectories(dir1, dir2 string) (bool, error) {
	files1 := make(map[string][32]byte)

	err := filepath.Walk(dir1, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		relPath, err := filepath.Rel(dir1, path)
		if err != nil {
			return err
		}
		hash, err := hashFile(path)
		if err != nil {
			return err
		}
		files1[relPath] = hash
		return nil
	})
	if err != nil {
		return false, err
	}

	err = filepath.Walk(dir2, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		relPath, err := filepath.Rel(dir2, path)
		if err != nil {
			return err
		}
		hash, err := hashFile(path)
		if err != nil {
			return err
		}
		if hash1, ok := files1[relPath]; !ok || hash1 != hash {
			return fmt.Errorf("file mismatch: %s", relPath)
		}
		delete(files1, relPath)
		return nil
	})
	if err != nil {
		return false, err
	}

	if len(files1) > 0 {
		return false, fmt.Errorf("directory contains %d extra files", len(files1))
	}
	return true, nil
}

func hashFile(path string) ([32]byte, error) {
	var hash [32]byte
	file, err := os.Open(path)
	if err != nil {
		return hash, err
	}
	defer func() {
		_ = file.Close()
	}()
	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return hash, err
	}
	copy(hash[:], hasher.Sum(nil))
	return hash, nil
}
