//go:build windows

package fsutil

import (
	"os"

	"github.com/hpungsan/castchunk/internal/errors"
)

// OpenNoFollow opens a file for writing.
// O_NOFOLLOW is not available on Windows; ValidateExportPath still rejects
// symlinks before we get here.
func OpenNoFollow(path string, flag int, perm os.FileMode) (*os.File, error) {
	return os.OpenFile(path, flag, perm)
}

// OpenNoFollowRead opens a file for reading.
func OpenNoFollowRead(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewFileNotFound(path)
		}
		return nil, err
	}
	return f, nil
}
