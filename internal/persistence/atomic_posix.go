//go:build !windows

package persistence

import "os"

// replaceFile is the POSIX fallback for a failed os.Rename: POSIX rename(2)
// is already atomic-replace, so a plain retry is the only sensible
// fallback here. The real MoveFileExW behavior is Windows-only, see
// atomic_windows.go.
func replaceFile(src, dst string) error {
	return os.Rename(src, dst)
}
