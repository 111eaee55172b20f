package fileutil

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/giantswarm/enginectl/internal/sentinel"
)

// ErrEmptyPath is returned when a file path is empty.
const ErrEmptyPath = sentinel.Error("path must not be empty")

// dirMode is used for every directory created here. The journal can hold
// command output, so the directories are not world readable.
const dirMode = 0o750

// EnsureDir creates path and any missing parents. Returns nil if the
// directory already exists.
func EnsureDir(path string) error {
	if path == "" {
		return ErrEmptyPath
	}
	if err := os.MkdirAll(path, dirMode); err != nil {
		return fmt.Errorf("create directory %s: %w", path, err)
	}
	return nil
}

// EnsureDirForFile creates the parent directory of filePath so the file can
// be created without a missing-directory error.
func EnsureDirForFile(filePath string) error {
	if filePath == "" {
		return ErrEmptyPath
	}
	if err := EnsureDir(filepath.Dir(filePath)); err != nil {
		return fmt.Errorf("ensure dir for %s: %w", filePath, err)
	}
	return nil
}
