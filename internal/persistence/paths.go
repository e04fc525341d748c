package persistence

import "path/filepath"

// Layout resolves the on-disk paths for a session's persisted artifacts,
// rooted at a single data directory, stable across restarts.
type Layout struct {
	Root string
}

func NewLayout(root string) Layout { return Layout{Root: root} }

func (l Layout) StateFile() string         { return filepath.Join(l.Root, "state.json") }
func (l Layout) SessionParamsFile() string { return filepath.Join(l.Root, ".session_state") }
func (l Layout) DownloadsDir() string      { return filepath.Join(l.Root, "downloads") }
func (l Layout) BlocklistFile() string     { return filepath.Join(l.Root, "blocklists", "blocklist.txt") }
func (l Layout) ResumeDir() string         { return filepath.Join(l.Root, "resume") }
func (l Layout) MetadataDir() string       { return filepath.Join(l.Root, "metadata") }

func (l Layout) ResumeFile(hex string) string {
	return filepath.Join(l.ResumeDir(), hex+".resume")
}

func (l Layout) MetadataFile(hex string) string {
	return filepath.Join(l.MetadataDir(), hex+".torrent")
}
