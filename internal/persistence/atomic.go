// Package persistence implements crash-safe storage of session settings,
// resume blobs, metadata files, and the rpc-id map, all written through a
// single temp+fsync+rename primitive.
//
// Grounded on fulgidus-libreseed's pkg/storage/filesystem.go
// (AtomicWriteFile/EnsureDir), generalized with a Windows MoveFileExW
// fallback and split into per-artifact helpers.
package persistence

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// AtomicWriteFile writes data to path via: create parent dir, write a
// sibling .tmp file, fsync, close, rename over
// the target (falling back to replaceFile on rename failure), and clean up
// the .tmp file on any error. The rename failure path is where Windows'
// MoveFileExW fallback (replaceFile, platform-specific) takes over; on
// POSIX replaceFile is just another os.Rename attempt and normally never
// runs because the first rename already succeeded.
func AtomicWriteFile(path string, data []byte, perm os.FileMode) error {
	if path == "" {
		return errors.New("persistence: empty path")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("persistence: ensure dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(path)+"-")
	if err != nil {
		return fmt.Errorf("persistence: create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	ok := false
	defer func() {
		if !ok {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	for written := 0; written < len(data); {
		n, werr := tmp.Write(data[written:])
		if n <= 0 || werr != nil {
			if werr == nil {
				werr = errors.New("short write")
			}
			return fmt.Errorf("persistence: write temp file: %w", werr)
		}
		written += n
	}

	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("persistence: fsync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("persistence: close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("persistence: chmod temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		if err := replaceFile(tmpPath, path); err != nil {
			return fmt.Errorf("persistence: rename temp file over target: %w", err)
		}
	}

	ok = true
	return nil
}

// ReadFile reads path, returning (nil, nil) if it does not exist so callers
// can apply defaults without a separate os.Stat round trip.
func ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}
