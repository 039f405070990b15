//go:build windows

package preflight

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/windows"
)

func checkAccess(path string) error {
	probe, err := os.CreateTemp(path, ".tapedeck-access-*")
	if err != nil {
		return err
	}
	name := probe.Name()
	_ = probe.Close()
	return os.Remove(filepath.Clean(name))
}

// CheckFreeSpace reports the space available to the caller on the volume
// holding path. It fails when less than need bytes are free.
func CheckFreeSpace(name, path string, need int64) Result {
	dir, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	var free, total, totalFree uint64
	if err := windows.GetDiskFreeSpaceEx(dir, &free, &total, &totalFree); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("free space %s: %v", path, err)}
	}
	detail := fmt.Sprintf("%s free", humanize.IBytes(free))
	if need > 0 && free < uint64(need) {
		return Result{Name: name, Detail: fmt.Sprintf("%s, below retention cap of %s", detail, humanize.IBytes(uint64(need)))}
	}
	return Result{Name: name, Passed: true, Detail: detail}
}
