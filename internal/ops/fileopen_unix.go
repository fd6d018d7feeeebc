//go:build !windows

package ops

import (
	stderrors "errors"
	"os"

	"golang.org/x/sys/unix"

	"github.com/hpungsan/wpswap/internal/errors"
)

// createReportFile creates path exclusively. A symlink planted at path is
// refused instead of followed.
func createReportFile(path string) (*os.File, error) {
	fd, err := unix.Open(path, unix.O_CREAT|unix.O_EXCL|unix.O_WRONLY|unix.O_NOFOLLOW|unix.O_CLOEXEC, 0600)
	if err != nil {
		if stderrors.Is(err, unix.ELOOP) || stderrors.Is(err, unix.EEXIST) {
			return nil, errors.NewInvalidRequest("report temp file already exists or is a symlink: " + path)
		}
		return nil, err
	}
	return os.NewFile(uintptr(fd), path), nil
}
