//go:build windows

package persistence

import (
	"golang.org/x/sys/windows"
)

// replaceFile is the Windows fallback for a failed os.Rename: when the
// portable os.Rename fails (commonly ERROR_ACCESS_DENIED against an
// open/mapped target), retry with MoveFileExW using REPLACE_EXISTING so
// the destination is overwritten in place, plus COPY_ALLOWED to tolerate
// the temp file living on a different volume.
func replaceFile(src, dst string) error {
	srcPtr, err := windows.UTF16PtrFromString(src)
	if err != nil {
		return err
	}
	dstPtr, err := windows.UTF16PtrFromString(dst)
	if err != nil {
		return err
	}
	flags := windows.MOVEFILE_REPLACE_EXISTING | windows.MOVEFILE_COPY_ALLOWED
	return windows.MoveFileEx(srcPtr, dstPtr, flags)
}
