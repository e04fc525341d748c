package domain

import (
	"reflect"
	"sync/atomic"
)

// TorrentState mirrors the coarse lifecycle state a snapshot reports for a
// torrent. It is a value, not a state-machine — the underlying library
// (anacrolix/torrent) has no single enum for this, so the snapshot builder
// derives it from stats + mode each tick.
type TorrentState string

const (
	TorrentStateChecking    TorrentState = "checking"
	TorrentStateDownloading TorrentState = "downloading"
	TorrentStateSeeding     TorrentState = "seeding"
	TorrentStatePaused      TorrentState = "paused"
	TorrentStateQueued      TorrentState = "queued"
	TorrentStateError       TorrentState = "error"
)

// TorrentSnapshot is the immutable per-torrent value published each tick.
// Once built it is never mutated; a new tick either reuses it verbatim
// (same Revision) or replaces it wholesale.
type TorrentSnapshot struct {
	ID                RpcId
	InfoHash          string // hex
	Name              string
	State             TorrentState
	DownloadRate      int64 // bytes/sec, clamped >= 0
	UploadRate        int64 // bytes/sec, clamped >= 0
	BytesDownloaded   int64
	BytesUploaded     int64
	SizeTotal         int64
	Progress          float64 // 0..1
	Paused            bool
	ErrorCode         int
	Labels            []string
	BandwidthPriority int
	AddedTime         int64 // unix seconds, preserved across rebuilds
	Revision          int64
}

// Equal reports whether two snapshots carry byte-identical observable
// fields, ignoring Revision itself. Used by tests asserting the snapshot
// monotonicity invariant: across two builds either the revision increases
// or every other field is unchanged.
func (s TorrentSnapshot) Equal(o TorrentSnapshot) bool {
	if len(s.Labels) != len(o.Labels) {
		return false
	}
	for i := range s.Labels {
		if s.Labels[i] != o.Labels[i] {
			return false
		}
	}
	s.Labels, o.Labels = nil, nil
	s.Revision, o.Revision = 0, 0
	return reflect.DeepEqual(s, o)
}

// SessionSnapshot is the immutable aggregate published to RPC readers once
// per tick. It is swapped in atomically (see PublishedSnapshot) so a reader
// never observes a torn mix of old and new torrent entries.
type SessionSnapshot struct {
	Torrents      []TorrentSnapshot
	TorrentCount  int
	ActiveCount   int
	PausedCount   int
	SeedingCount  int
	ErrorCount    int
	DownloadRate  int64
	UploadRate    int64
	DHTNodes      int
}

// PublishedSnapshot is a single atomic reference-counted slot holding the
// latest SessionSnapshot. Readers load a pointer and see either the
// previous or the new aggregate, never a torn one.
type PublishedSnapshot struct {
	ptr atomic.Pointer[SessionSnapshot]
}

// NewPublishedSnapshot returns a slot pre-populated with an empty snapshot
// so readers never observe a nil pointer before the first tick completes.
func NewPublishedSnapshot() *PublishedSnapshot {
	p := &PublishedSnapshot{}
	p.Publish(&SessionSnapshot{})
	return p
}

// Publish installs s as the current snapshot (release semantics).
func (p *PublishedSnapshot) Publish(s *SessionSnapshot) {
	p.ptr.Store(s)
}

// Load returns the current snapshot (acquire semantics).
func (p *PublishedSnapshot) Load() *SessionSnapshot {
	return p.ptr.Load()
}
