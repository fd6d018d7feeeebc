//go:build windows

package ops

import (
	"os"
)

// createReportFile creates path exclusively. Windows has no O_NOFOLLOW;
// O_EXCL still refuses an existing file or link at path.
func createReportFile(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
}
