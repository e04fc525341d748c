// Package torrentmgr implements the Torrent Manager: it owns the
// *torrent.Client session, mediates every mutation and observation
// against it, assigns stable RpcIds, and synthesizes an alert taxonomy.
//
// anacrolix/torrent has no push-style alert queue the way libtorrent
// does — it exposes polling surfaces instead (Client.Torrents(),
// Torrent.Stats(), Torrent.GotInfo(), Torrent.Closed()). ProcessAlerts
// therefore polls every live torrent once per tick and diffs against the
// previous poll to synthesize the same alert taxonomy a push-based
// library would deliver, preserving the ordering/dispatch contract the
// rest of the engine is built against.
package torrentmgr

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/anacrolix/torrent"
	"github.com/anacrolix/torrent/iplist"
	"github.com/anacrolix/torrent/metainfo"
	"golang.org/x/time/rate"

	"torrentd/internal/domain"
	"torrentd/internal/engine/queue"
	"torrentd/internal/engine/snapshot"
	"torrentd/internal/metrics"
	"torrentd/internal/persistence"
)

// AddTorrentParams describes an async_add_torrent request: source (file
// bytes OR magnet URI), save path, and flags.
type AddTorrentParams struct {
	Magnet     string
	TorrentRaw []byte
	SavePath   string
	Paused     bool
}

// BandwidthLimits is the set_torrent_bandwidth_limits payload: a pointer
// field means "leave unchanged", mirroring the wire contract's optional
// fields.
type BandwidthLimits struct {
	DownloadKBps   *int64
	DownloadLimited *bool
	UploadKBps     *int64
	UploadLimited  *bool
}

type torrentPoll struct {
	gotInfo   bool
	finished  bool
	down, up  int64
	completed int64
	total     int64
	state     domain.TorrentState
}

// Manager is the Torrent Manager. All mutating methods except EnqueueTask
// and Notify are expected to run on the single engine goroutine; the
// revision/label/priority state and poll cache are therefore unguarded,
// owned exclusively by that goroutine. The id map (domain.IdMap) and the
// pending-move set take their own mutexes.
type Manager struct {
	client *torrent.Client
	logger *slog.Logger
	layout persistence.Layout

	ids   *domain.IdMap
	queue *queue.Queue

	cb Callbacks

	revisions map[domain.RpcId]int64
	addedTime map[domain.RpcId]int64
	labels    map[domain.RpcId][]string
	priority  map[domain.RpcId]int
	bandwidth map[domain.RpcId]BandwidthLimits
	polls     map[domain.RpcId]torrentPoll
	metaDone  map[domain.RpcId]bool
	paused    map[domain.RpcId]bool

	resumeSavedAt map[domain.RpcId]time.Time

	moveMu       sync.Mutex
	pendingMoves map[string]string // hex -> target path

	downLimiter, upLimiter *rate.Limiter
}

// New constructs a Manager around an already-started *torrent.Client.
// Session construction itself (start_session) is the caller's
// responsibility via StartSession below — failure there is fatal.
func New(client *torrent.Client, layout persistence.Layout, q *queue.Queue, cb Callbacks, logger *slog.Logger, downLimiter, upLimiter *rate.Limiter) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if downLimiter == nil {
		downLimiter = rate.NewLimiter(rate.Inf, 1<<20)
	}
	if upLimiter == nil {
		upLimiter = rate.NewLimiter(rate.Inf, 1<<20)
	}
	return &Manager{
		client:       client,
		logger:       logger,
		layout:       layout,
		ids:          domain.NewIdMap(),
		queue:        q,
		cb:           cb,
		revisions:    make(map[domain.RpcId]int64),
		addedTime:    make(map[domain.RpcId]int64),
		labels:       make(map[domain.RpcId][]string),
		priority:     make(map[domain.RpcId]int),
		bandwidth:    make(map[domain.RpcId]BandwidthLimits),
		polls:        make(map[domain.RpcId]torrentPoll),
		metaDone:     make(map[domain.RpcId]bool),
		paused:       make(map[domain.RpcId]bool),
		resumeSavedAt: make(map[domain.RpcId]time.Time),
		pendingMoves: make(map[string]string),
		downLimiter:  downLimiter,
		upLimiter:    upLimiter,
	}
}

// NewRateLimiters returns the shared download/upload token buckets so the
// composition root can wire the identical instances into
// torrent.ClientConfig.Download/UploadRateLimiter before the client is
// constructed. Rate limiting is realized via golang.org/x/time/rate, not
// a library-native knob.
func NewRateLimiters() (down, up *rate.Limiter) {
	return rate.NewLimiter(rate.Inf, 1 << 20), rate.NewLimiter(rate.Inf, 1 << 20)
}

// StartSession builds the underlying *torrent.Client from cfg. A failure
// here is fatal: the session cannot be constructed.
func StartSession(cfg *torrent.ClientConfig) (*torrent.Client, error) {
	client, err := torrent.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("torrentmgr: start session: %w", domain.NewEngineError(domain.SeverityFatal, "start_session", err))
	}
	return client, nil
}

// EnqueueTask appends fn to the command queue, blocking the caller (an
// RPC goroutine) until space is available. It wakes the engine loop as a
// side effect of Queue.Push.
func (m *Manager) EnqueueTask(correlationID string, fn func() error) {
	m.queue.Push(domain.Task{CorrelationID: correlationID, Fn: fn})
}

// ProcessTasks drains and executes every pending task in FIFO order. A
// task that returns an error is logged and skipped; the rest still run.
func (m *Manager) ProcessTasks() {
	batch := m.queue.Drain()
	for _, t := range batch {
		if err := t.Fn(); err != nil {
			m.logger.Warn("command task failed",
				slog.String("correlation_id", t.CorrelationID),
				slog.Any("error", domain.NewEngineError(domain.SeveritySurfaced, "process_tasks", err)))
		}
	}
}

// Notify wakes the engine loop without enqueueing work, used by timers.
func (m *Manager) Notify() {
	m.queue.Notify()
}

// WaitForWork parks the engine loop on the command queue until work
// arrives, idle elapses, or shutdown fires.
func (m *Manager) WaitForWork(idle time.Duration, shutdown *queue.ShutdownFlag) {
	m.queue.WaitForWork(idle, shutdown)
}

// PendingTaskCount exposes the current queue depth for metrics.
func (m *Manager) PendingTaskCount() int {
	return m.queue.Len()
}

// LiveTorrents returns every torrent currently held by the session, for
// shutdown's "force a resume-save for each live torrent" step.
func (m *Manager) LiveTorrents() []*torrent.Torrent {
	return m.client.Torrents()
}

// Close destroys the underlying session. No alert callbacks may fire
// after this returns; the session must be destroyed last in the shutdown
// sequence.
func (m *Manager) Close() {
	m.client.Close()
}

// AssignID is the assign_rpc_id wrapper used by the Snapshot Builder. It
// increments engine_rpc_ids_assigned_total the first time a given
// info-hash is seen.
func (m *Manager) AssignID(hash domain.InfoHash) domain.RpcId {
	if !hash.IsZero() {
		if _, known := m.ids.Lookup(hash.Hex()); !known {
			metrics.RPCIdsAssignedTotal.Inc()
		}
	}
	return m.ids.AssignID(hash)
}

// RecoverMappings seeds the id map from persisted (hex, rpc_id) pairs at
// startup.
func (m *Manager) RecoverMappings(pairs map[string]domain.RpcId) {
	m.ids.RecoverMappings(pairs)
}

// PurgeMissingIDs removes every id absent from seen and drops the
// matching revision/label/priority/poll/metadata bookkeeping, returning
// the removed ids so callers can clean up anything else keyed by id.
func (m *Manager) PurgeMissingIDs(seen map[domain.RpcId]struct{}) []domain.RpcId {
	removed := m.ids.PurgeMissing(seen)
	for _, id := range removed {
		delete(m.revisions, id)
		delete(m.addedTime, id)
		delete(m.labels, id)
		delete(m.priority, id)
		delete(m.bandwidth, id)
		delete(m.polls, id)
		delete(m.metaDone, id)
		delete(m.paused, id)
		delete(m.resumeSavedAt, id)
	}
	return removed
}

// PausedFor reports the locally tracked pause flag for id, used by the
// snapshot entry builder since anacrolix/torrent has no single getter for
// "is this torrent currently allowed to transfer data".
func (m *Manager) PausedFor(id domain.RpcId) bool {
	return m.paused[id]
}

// ensureRevision returns the current revision for id, initializing it to
// 1 on first observation so every torrent's first snapshot is never
// confused with the zero value of a removed entry.
func (m *Manager) ensureRevision(id domain.RpcId) int64 {
	if r, ok := m.revisions[id]; ok {
		return r
	}
	m.revisions[id] = 1
	return 1
}

func (m *Manager) bumpRevision(id domain.RpcId) {
	m.revisions[id]++
}

// hashOf converts a live torrent's info-hash to domain.InfoHash via its
// hex string, the one representation every anacrolix/torrent version
// exposes uniformly regardless of whether the torrent is v1, v2, or
// hybrid (t.InfoHash().HexString(), as used throughout the library's own
// examples).
func hashOf(t *torrent.Torrent) domain.InfoHash {
	hash, _ := domain.InfoHashFromHex(t.InfoHash().HexString())
	return hash
}

// clientHandle adapts *torrent.Torrent to snapshot.Handle.
type clientHandle struct{ t *torrent.Torrent }

func (h clientHandle) InfoHash() domain.InfoHash { return hashOf(h.t) }

// Handles returns the live torrent list wrapped for the Snapshot Builder.
func (m *Manager) Handles() []snapshot.Handle {
	ts := m.client.Torrents()
	out := make([]snapshot.Handle, 0, len(ts))
	for _, t := range ts {
		out = append(out, clientHandle{t})
	}
	return out
}

// torrentByHash looks up a live *torrent.Torrent by its RpcId via the id
// map, for command handlers (remove/start/stop/recheck/set_settings...).
func (m *Manager) torrentByHash(id domain.RpcId) (*torrent.Torrent, domain.InfoHash, bool) {
	hex, ok := m.ids.HashFor(id)
	if !ok {
		return nil, nil, false
	}
	for _, t := range m.client.Torrents() {
		if t.InfoHash().HexString() == hex {
			hash, _ := domain.InfoHashFromHex(hex)
			return t, hash, true
		}
	}
	return nil, nil, false
}

// SnapshotCallbacks wires the Manager's bookkeeping into
// snapshot.Callbacks for build_snapshot. buildEntry is supplied by the
// caller (engine loop) since it alone knows how to translate
// *torrent.Torrent stats into a domain.TorrentSnapshot.
func (m *Manager) SnapshotCallbacks(buildEntry func(id domain.RpcId, t *torrent.Torrent, revision, prevAdded int64) domain.TorrentSnapshot) snapshot.Callbacks {
	return snapshot.Callbacks{
		AssignID: m.AssignID,
		VisitTorrent: func(id domain.RpcId, h snapshot.Handle) {
			if _, ok := m.addedTime[id]; !ok {
				m.addedTime[id] = time.Now().Unix()
			}
		},
		Revision: m.ensureRevision,
		BuildEntry: func(id domain.RpcId, h snapshot.Handle, revision, prevAdded int64) domain.TorrentSnapshot {
			ch := h.(clientHandle)
			added := prevAdded
			if added == 0 {
				added = m.addedTime[id]
			}
			return buildEntry(id, ch.t, revision, added)
		},
		Labels: func(id domain.RpcId, hex string) []string {
			return m.labels[id]
		},
		Priority: func(id domain.RpcId) int {
			return m.priority[id]
		},
		DHTNodes: func() int { return dhtNodeCount(m.client) },
	}
}

// dispatch routes an alert through Callbacks while recording the
// engine_alerts_processed_total counter, keyed by alert kind so a
// dashboard can see which alert types actually fire.
// A panicking callback is recovered and logged so alert processing
// continues.
func (m *Manager) dispatch(a Alert) {
	metrics.AlertsProcessedTotal.WithLabelValues(alertKind(a)).Inc()
	defer m.recoverCallback(alertKind(a))
	m.cb.Dispatch(a)
}

// recoverCallback logs and swallows a panic raised by an alert callback.
func (m *Manager) recoverCallback(kind string) {
	if r := recover(); r != nil {
		m.logger.Warn("alert callback panicked", slog.String("kind", kind), slog.Any("panic", r))
	}
}

// ProcessAlerts polls every live torrent, diffs against the previous poll,
// synthesizes alerts, writes metadata files inline where required, and
// dispatches everything through Callbacks. Processing never propagates a
// panic or error out of the loop.
func (m *Manager) ProcessAlerts() {
	for _, t := range m.client.Torrents() {
		hash := hashOf(t)
		id := m.AssignID(hash)
		if id == 0 {
			continue
		}
		m.pollOne(id, hash, t)
	}
}

func (m *Manager) pollOne(id domain.RpcId, hash domain.InfoHash, t *torrent.Torrent) {
	prev := m.polls[id]

	gotInfo := false
	select {
	case <-t.GotInfo():
		gotInfo = true
	default:
	}

	var completed, total int64
	var down, up int64
	if gotInfo {
		total = t.Length()
		completed = t.BytesCompleted()
		stats := t.Stats()
		down = stats.BytesReadUsefulData.Int64()
		up = stats.BytesWrittenData.Int64()
	}

	finished := gotInfo && total > 0 && completed >= total

	changed := prev.gotInfo != gotInfo || prev.down != down || prev.up != up ||
		prev.completed != completed || prev.total != total

	m.polls[id] = torrentPoll{
		gotInfo: gotInfo, finished: finished,
		down: down, up: up, completed: completed, total: total,
	}

	if !prev.gotInfo && gotInfo {
		m.onMetadataReceived(id, hash, t)
	} else if gotInfo {
		m.maybeSaveResumeData(id, hash, t, false)
	}
	if !prev.finished && finished {
		m.dispatch(TorrentFinishedAlert{Hash: hash})
	}
	if changed {
		m.bumpRevision(id)
		m.dispatch(StateUpdateAlert{Hash: hash})
	}
}

func (m *Manager) onMetadataReceived(id domain.RpcId, hash domain.InfoHash, t *torrent.Torrent) {
	m.dispatch(MetadataReceivedAlert{Hash: hash})
	m.maybeSaveResumeData(id, hash, t, true)
	if m.metaDone[id] {
		return
	}
	if t.Info() == nil {
		return
	}
	blob, err := encodeMetainfo(t.Metainfo())
	if err != nil {
		m.logger.Warn("encode metadata failed",
			slog.Any("error", domain.NewEngineError(domain.SeverityRecovered, "metadata_received", err).WithHash(hash.Hex(), id)))
		return
	}
	path := m.layout.MetadataFile(hash.Hex())
	writeStart := time.Now()
	if err := persistence.SaveMetadataFile(m.layout, hash.Hex(), blob); err != nil {
		metrics.PersistenceWriteFailuresTotal.WithLabelValues("metadata").Inc()
		m.logger.Warn("persist metadata failed",
			slog.Any("error", domain.NewEngineError(domain.SeverityRecovered, "metadata_received", err).WithHash(hash.Hex(), id)))
		return
	}
	metrics.PersistenceWriteDuration.WithLabelValues("metadata").Observe(time.Since(writeStart).Seconds())
	m.metaDone[id] = true
	if m.cb.OnMetadataPersisted != nil {
		defer m.recoverCallback("metadata_received")
		m.cb.OnMetadataPersisted(hash, path, len(blob))
	}
}

// encodeMetainfo re-serializes the torrent's metainfo to bencode, the
// canonical .torrent-equivalent blob saved as a torrent's metadata file.
func encodeMetainfo(mi metainfo.MetaInfo) ([]byte, error) {
	var buf bytes.Buffer
	if err := mi.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// AsyncAddTorrent performs the actual async_add_torrent client call; the
// caller is expected to wrap it in a Task via EnqueueTask and invoke this
// from inside that task closure on the engine goroutine.
func (m *Manager) AsyncAddTorrent(p AddTorrentParams) (domain.InfoHash, error) {
	var t *torrent.Torrent
	var err error
	switch {
	case p.Magnet != "":
		t, err = m.client.AddMagnet(p.Magnet)
	case len(p.TorrentRaw) > 0:
		mi, merr := metainfo.Load(bytes.NewReader(p.TorrentRaw))
		if merr != nil {
			return nil, fmt.Errorf("torrentmgr: parse torrent file: %w", merr)
		}
		ts := torrent.TorrentSpecFromMetaInfo(mi)
		// Per-torrent save-path override is not wired: the client is
		// configured with a single DataDir; per-torrent directory layout
		// is left to an external collaborator.
		t, _, err = m.client.AddTorrentSpec(ts)
	default:
		err = errors.New("torrentmgr: add_torrent requires a magnet URI or torrent file bytes")
	}
	if err != nil {
		m.dispatch(AddTorrentAlert{Err: err})
		return nil, err
	}
	hash := hashOf(t)
	id := m.AssignID(hash)
	if p.Paused {
		t.DisallowDataDownload()
		t.DisallowDataUpload()
		m.paused[id] = true
	}
	m.dispatch(AddTorrentAlert{Hash: hash})
	return hash, nil
}

// SetTorrentPaused toggles a torrent's resume/pause flag. anacrolix/torrent
// has no single Pause()/Resume() pair, so this composes the
// upload/download disallow toggles it does expose.
func (m *Manager) SetTorrentPaused(id domain.RpcId, paused bool) error {
	t, _, ok := m.torrentByHash(id)
	if !ok {
		return domain.NewEngineError(domain.SeveritySurfaced, "set_torrent_paused", errors.New("unknown rpc id")).WithHash("", id)
	}
	if paused {
		t.DisallowDataDownload()
		t.DisallowDataUpload()
	} else {
		t.AllowDataDownload()
		t.AllowDataUpload()
	}
	m.paused[id] = paused
	m.bumpRevision(id)
	return nil
}

// Recheck forces a piece re-verification pass.
func (m *Manager) Recheck(id domain.RpcId) error {
	t, _, ok := m.torrentByHash(id)
	if !ok {
		return domain.NewEngineError(domain.SeveritySurfaced, "recheck", errors.New("unknown rpc id")).WithHash("", id)
	}
	t.VerifyData()
	m.bumpRevision(id)
	return nil
}

// RemoveTorrent drops the torrent identified by id, optionally deleting
// its data. The id map entry is purged on the next build_snapshot cycle,
// once the library confirms the torrent is gone.
func (m *Manager) RemoveTorrent(id domain.RpcId, deleteData bool) error {
	t, hash, ok := m.torrentByHash(id)
	if !ok {
		return domain.NewEngineError(domain.SeveritySurfaced, "remove_torrent", errors.New("unknown rpc id")).WithHash("", id)
	}
	if deleteData {
		if err := removeTorrentData(t); err != nil {
			m.dispatch(TorrentDeleteFailedAlert{Hash: hash, Err: err})
			return nil
		}
	}
	t.Drop()
	return nil
}

// ApplySettings pushes a partial SessionState onto the client's runtime
// knobs that anacrolix/torrent exposes live (the rest of SessionState —
// proxy, alt-speed schedule, queueing — has no client-level setter and is
// carried purely as persisted configuration consumed at next restart).
func (m *Manager) ApplySettings(s domain.SessionState) {
	if s.SpeedLimitDownEnabled {
		m.setDownloadRateLimit(s.SpeedLimitDownKBps * 1024)
	} else {
		m.setDownloadRateLimit(0)
	}
	if s.SpeedLimitUpEnabled {
		m.setUploadRateLimit(s.SpeedLimitUpKBps * 1024)
	} else {
		m.setUploadRateLimit(0)
	}
	m.SetPexEnabled(s.PEXEnabled)
}

func (m *Manager) setDownloadRateLimit(bytesPerSec int64) {
	if bytesPerSec <= 0 {
		m.downLimiter.SetLimit(rate.Inf)
		return
	}
	m.downLimiter.SetLimit(rate.Limit(bytesPerSec))
}

func (m *Manager) setUploadRateLimit(bytesPerSec int64) {
	if bytesPerSec <= 0 {
		m.upLimiter.SetLimit(rate.Inf)
		return
	}
	m.upLimiter.SetLimit(rate.Limit(bytesPerSec))
}

// SetPexEnabled accepts a PEX toggle but does not act on it:
// anacrolix/torrent only reads ClientConfig.DisablePEX at construction
// time, so the value is neither recorded nor applied to live torrents.
func (m *Manager) SetPexEnabled(bool) {
	// anacrolix/torrent has no live per-client PEX toggle after
	// construction; this is intentionally a no-op beyond the
	// construction-time ClientConfig.DisablePEX set from SessionState.
}

// SetTorrentBandwidthLimits records per-torrent limits. anacrolix/torrent
// has no native per-torrent token bucket, so these are tracked here and
// enforced opaquely: the value is authoritative for RPC reads even though
// the library itself never observes it, the same opaque-passthrough
// treatment given to queue_stalled_enabled.
func (m *Manager) SetTorrentBandwidthLimits(ids []domain.RpcId, limits BandwidthLimits) {
	for _, id := range ids {
		m.bandwidth[id] = limits
		m.bumpRevision(id)
	}
}

// BandwidthLimitsFor returns the recorded limits for id, if any.
func (m *Manager) BandwidthLimitsFor(id domain.RpcId) (BandwidthLimits, bool) {
	l, ok := m.bandwidth[id]
	return l, ok
}

// SetLabels records the label set for a torrent (used by
// labels_for_torrent in the snapshot overlay).
func (m *Manager) SetLabels(id domain.RpcId, labels []string) {
	m.labels[id] = labels
	m.bumpRevision(id)
}

// SetPriority records the bandwidth priority for a torrent.
func (m *Manager) SetPriority(id domain.RpcId, priority int) {
	m.priority[id] = priority
	m.bumpRevision(id)
}

// SetIPFilter applies an IP filter. Modeled as a thin wrapper over the
// client's blocklist, loaded from blocklists/blocklist.txt at startup.
func (m *Manager) SetIPFilter(blocked *iplist.IPList) {
	m.client.SetIPBlockList(blocked)
}

// WriteSessionParams serializes whatever opaque session-level state the
// library wants persisted across restarts into the .session_state
// artifact. anacrolix/torrent has no single "session params" blob the
// way libtorrent does; the blob written here is a base64-encoded random
// 16-byte nonce. Listen addresses and other session settings are not
// included (those live in state.json).
func (m *Manager) WriteSessionParams() ([]byte, error) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return []byte(base64.StdEncoding.EncodeToString(nonce)), nil
}

// MarkPendingMove records a storage relocation in flight under its own
// mutex because RPC may query it from a non-engine thread.
func (m *Manager) MarkPendingMove(hex, target string) {
	m.moveMu.Lock()
	m.pendingMoves[hex] = target
	m.moveMu.Unlock()
}

func (m *Manager) ClearPendingMove(hex string) {
	m.moveMu.Lock()
	delete(m.pendingMoves, hex)
	m.moveMu.Unlock()
}

func (m *Manager) PendingMove(hex string) (string, bool) {
	m.moveMu.Lock()
	defer m.moveMu.Unlock()
	target, ok := m.pendingMoves[hex]
	return target, ok
}

// MoveStorage relocates a torrent's storage synchronously, recording it as
// a pending move while the rename runs.
func (m *Manager) MoveStorage(id domain.RpcId, target string, deleteSource bool) error {
	t, hash, ok := m.torrentByHash(id)
	if !ok {
		return domain.NewEngineError(domain.SeveritySurfaced, "move_storage", errors.New("unknown rpc id")).WithHash("", id)
	}
	m.MarkPendingMove(hash.Hex(), target)
	if err := moveTorrentStorage(t, target); err != nil {
		m.ClearPendingMove(hash.Hex())
		m.dispatch(StorageMovedFailedAlert{Hash: hash, Err: err})
		return nil
	}
	m.ClearPendingMove(hash.Hex())
	m.dispatch(StorageMovedAlert{Hash: hash, Path: target})
	if deleteSource {
		// Nothing to clean up: moveTorrentStorage renames the source
		// directory, so no copy is left behind at the old location.
	}
	return nil
}
