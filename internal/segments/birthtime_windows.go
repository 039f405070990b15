//go:build windows

package segments

import (
	"io/fs"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

func creationTime(path string, info fs.FileInfo) time.Time {
	name, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return info.ModTime()
	}
	var data windows.Win32FileAttributeData
	if err := windows.GetFileAttributesEx(name, windows.GetFileExInfoStandard, (*byte)(unsafe.Pointer(&data))); err != nil {
		return info.ModTime()
	}
	return time.Unix(0, data.CreationTime.Nanoseconds())
}
