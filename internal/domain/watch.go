package domain

import "time"

// WatchEntry records a file the Watch Directory Monitor has already
// submitted as an add_torrent task, so a later fsnotify event for the same
// unmodified file doesn't resubmit it.
type WatchEntry struct {
	Path    string
	ModTime time.Time
}
