package domain

import "sync"

// RpcId is the small positive integer the engine assigns to a torrent for
// external identification. It is stable across restarts and never reused
// once assigned.
type RpcId int64

// IdMap is the bidirectional InfoHash<->RpcId mapping owned by the Torrent
// Manager. It is single-writer (the engine goroutine) but RecoverMappings
// and the accessor methods take a mutex so it can be read from tests or a
// diagnostic endpoint without racing the engine thread.
type IdMap struct {
	mu      sync.Mutex
	byHash  map[string]RpcId
	byID    map[RpcId]string // hex info-hash
	nextID  RpcId
}

// NewIdMap returns an empty map with the allocator seeded at 1 (RpcId 0 is
// reserved for "no id", returned for the zero hash).
func NewIdMap() *IdMap {
	return &IdMap{
		byHash: make(map[string]RpcId),
		byID:   make(map[RpcId]string),
		nextID: 1,
	}
}

// AssignID is idempotent: it returns 0 for the zero hash, the existing id
// if the hash is already known, or allocates nextID++ otherwise.
func (m *IdMap) AssignID(hash InfoHash) RpcId {
	if hash.IsZero() {
		return 0
	}
	hex := hash.Hex()

	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.byHash[hex]; ok {
		return id
	}
	id := m.nextID
	m.nextID++
	m.bindLocked(hex, id)
	return id
}

// bindLocked installs hex -> id, removing any prior id's inverse entry
// first so the two maps never disagree about who owns which id: if an
// info-hash is re-bound to a new id, the prior id is removed from the
// inverse map before the new binding is inserted.
func (m *IdMap) bindLocked(hex string, id RpcId) {
	if prevID, ok := m.byHash[hex]; ok {
		delete(m.byID, prevID)
	}
	m.byHash[hex] = id
	m.byID[id] = hex
}

// Lookup returns the id bound to a hex info-hash, if any.
func (m *IdMap) Lookup(hex string) (RpcId, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byHash[hex]
	return id, ok
}

// HashFor returns the hex info-hash bound to an id, if any.
func (m *IdMap) HashFor(id RpcId) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	hex, ok := m.byID[id]
	return hex, ok
}

// RecoverMappings seeds the map from persisted (hex, id) pairs at startup.
// Recovered ids are honored verbatim; nextID is advanced past the highest
// one seen so the allocator never reissues a recovered id.
func (m *IdMap) RecoverMappings(pairs map[string]RpcId) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for hex, id := range pairs {
		m.bindLocked(hex, id)
		if id >= m.nextID {
			m.nextID = id + 1
		}
	}
}

// PurgeMissing removes every id not present in seen and returns the removed
// ids, so the caller can clean up any per-id state (labels, priorities,
// revisions) that has nothing left to attach to.
func (m *IdMap) PurgeMissing(seen map[RpcId]struct{}) []RpcId {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed []RpcId
	for id, hex := range m.byID {
		if _, ok := seen[id]; ok {
			continue
		}
		removed = append(removed, id)
		delete(m.byID, id)
		delete(m.byHash, hex)
	}
	return removed
}

// Snapshot returns a copy of the current hex->id map, e.g. for embedding in
// state.json under the "rpc_ids" key.
func (m *IdMap) Snapshot() map[string]RpcId {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]RpcId, len(m.byHash))
	for hex, id := range m.byHash {
		out[hex] = id
	}
	return out
}
