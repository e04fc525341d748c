package persistence

import (
	"fmt"
	"os"
	"strings"
)

// SaveResumeBlob persists the resume blob for hash, written on each
// on_resume_data callback. Resume blobs are opaque bytes supplied by the
// torrent library, so no codec is involved beyond the atomic write itself.
func SaveResumeBlob(layout Layout, hex string, data []byte) error {
	return AtomicWriteFile(layout.ResumeFile(hex), data, 0644)
}

// LoadResumeBlob reads the resume blob for hash, or nil if none exists.
func LoadResumeBlob(layout Layout, hex string) ([]byte, error) {
	return ReadFile(layout.ResumeFile(hex))
}

// EnumerateResumeBlobs lists every persisted resume blob's hex info-hash,
// used during warm-up to find the torrents to re-add.
func EnumerateResumeBlobs(layout Layout) ([]string, error) {
	entries, err := os.ReadDir(layout.ResumeDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("persistence: enumerate resume dir: %w", err)
	}

	var hexes []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".resume") {
			continue
		}
		hexes = append(hexes, strings.TrimSuffix(name, ".resume"))
	}
	return hexes, nil
}
