//go:build !windows

package preflight

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"
)

func checkAccess(path string) error {
	return unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK)
}

// CheckFreeSpace reports the space available to unprivileged writers on the
// volume holding path. It fails when less than need bytes are free.
func CheckFreeSpace(name, path string, need int64) Result {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("statfs %s: %v", path, err)}
	}
	free := st.Bavail * uint64(st.Bsize)
	detail := fmt.Sprintf("%s free", humanize.IBytes(free))
	if need > 0 && free < uint64(need) {
		return Result{Name: name, Detail: fmt.Sprintf("%s, below retention cap of %s", detail, humanize.IBytes(uint64(need)))}
	}
	return Result{Name: name, Passed: true, Detail: detail}
}
