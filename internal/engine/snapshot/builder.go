// Package snapshot produces an immutable SessionSnapshot each tick,
// amortizing work through per-torrent revision caching so an idle torrent
// population costs one cheap comparison instead of a full rebuild.
package snapshot

import (
	"torrentd/internal/domain"
)

// Handle is the minimal view of a live torrent the builder needs; callers
// supply a slice of these each tick, the current torrent handle list from
// the session.
type Handle interface {
	InfoHash() domain.InfoHash
}

// Callbacks supplies everything the builder cannot compute on its own —
// id assignment, revision tracking, and per-torrent field population.
type Callbacks struct {
	// AssignID returns the stable RpcId for hash (domain.IdMap.AssignID).
	AssignID func(hash domain.InfoHash) domain.RpcId

	// VisitTorrent is invoked once per handle before revision lookup, for
	// bookkeeping such as lazily creating per-torrent label/priority state.
	VisitTorrent func(id domain.RpcId, h Handle)

	// Revision returns the current revision counter for id.
	Revision func(id domain.RpcId) int64

	// BuildEntry constructs a fresh TorrentSnapshot for a handle whose
	// cached revision didn't match, or that has never been built. prevAdded
	// is the cached added_time (0 if none); the builder is authoritative
	// for carrying it forward.
	BuildEntry func(id domain.RpcId, h Handle, revision int64, prevAdded int64) domain.TorrentSnapshot

	// Labels and Priority overlay optional per-torrent state; either may
	// be nil.
	Labels   func(id domain.RpcId, hex string) []string
	Priority func(id domain.RpcId) int

	// DHTNodes reports the current DHT routing table size for the
	// SessionSnapshot.dht_nodes aggregate counter.
	DHTNodes func() int
}

// Builder caches the last published per-torrent snapshots by RpcId so
// unchanged torrents skip BuildEntry entirely.
type Builder struct {
	published *domain.PublishedSnapshot
	cache     map[domain.RpcId]domain.TorrentSnapshot
}

func New(published *domain.PublishedSnapshot) *Builder {
	return &Builder{
		published: published,
		cache:     make(map[domain.RpcId]domain.TorrentSnapshot),
	}
}

// Build rebuilds or reuses each torrent's snapshot entry and returns the
// new snapshot plus the set of ids seen this cycle; purging ids that
// disappeared is left to the caller.
func (b *Builder) Build(handles []Handle, cb Callbacks) (*domain.SessionSnapshot, map[domain.RpcId]struct{}) {
	seen := make(map[domain.RpcId]struct{}, len(handles))
	torrents := make([]domain.TorrentSnapshot, 0, len(handles))
	newCache := make(map[domain.RpcId]domain.TorrentSnapshot, len(handles))

	var aggDown, aggUp int64
	var seeding, errored, paused int

	for _, h := range handles {
		hash := h.InfoHash()
		id := cb.AssignID(hash)
		if id == 0 {
			continue
		}
		seen[id] = struct{}{}

		if cb.VisitTorrent != nil {
			cb.VisitTorrent(id, h)
		}

		revision := int64(0)
		if cb.Revision != nil {
			revision = cb.Revision(id)
		}

		var entry domain.TorrentSnapshot
		if cached, ok := b.cache[id]; ok && cached.Revision == revision {
			entry = cached
		} else {
			prevAdded := int64(0)
			if cached, ok := b.cache[id]; ok {
				prevAdded = cached.AddedTime
			}
			entry = cb.BuildEntry(id, h, revision, prevAdded)
			entry.Revision = revision
		}

		if cb.Labels != nil {
			entry.Labels = cb.Labels(id, hash.Hex())
		}
		if cb.Priority != nil {
			entry.BandwidthPriority = cb.Priority(id)
		}

		if entry.State == domain.TorrentStateSeeding {
			seeding++
		}
		if entry.ErrorCode != 0 {
			errored++
		}
		if entry.Paused {
			paused++
		}
		if entry.DownloadRate > 0 {
			aggDown += entry.DownloadRate
		}
		if entry.UploadRate > 0 {
			aggUp += entry.UploadRate
		}

		newCache[id] = entry
		torrents = append(torrents, entry)
	}

	dhtNodes := 0
	if cb.DHTNodes != nil {
		dhtNodes = cb.DHTNodes()
	}

	snap := &domain.SessionSnapshot{
		Torrents:     torrents,
		TorrentCount: len(torrents),
		ActiveCount:  len(torrents) - paused,
		PausedCount:  paused,
		SeedingCount: seeding,
		ErrorCount:   errored,
		DownloadRate: aggDown,
		UploadRate:   aggUp,
		DHTNodes:     dhtNodes,
	}

	b.cache = newCache
	b.published.Publish(snap)
	return snap, seen
}
