// Package engine implements the single-threaded tick cycle that composes
// the Torrent Manager, Snapshot Builder, Command Queue, Persistence
// Manager, and Settings Persistence Service, plus the shutdown sequence
// that flushes every durable artifact before the session is destroyed.
package engine

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/anacrolix/torrent"

	"torrentd/internal/domain"
	"torrentd/internal/engine/queue"
	"torrentd/internal/engine/snapshot"
	"torrentd/internal/engine/torrentmgr"
	"torrentd/internal/metrics"
	"torrentd/internal/persistence"
	"torrentd/internal/settings"
)

// IdleSleep bounds how long a tick waits for new work before looping
// again when the session is otherwise idle.
const IdleSleep = 50 * time.Millisecond

// resumeSaveWait bounds how long shutdown waits for in-flight resume-data
// writes before giving up and proceeding anyway.
const resumeSaveWait = 5 * time.Second

// Loop is the Engine Loop. It owns nothing directly transferable across
// restarts — all durable state lives behind the Manager and Layout it was
// built with.
type Loop struct {
	mgr      *torrentmgr.Manager
	builder  *snapshot.Builder
	settings *settings.Service
	layout   persistence.Layout
	logger   *slog.Logger
	tracer   trace.Tracer

	shutdown *queue.ShutdownFlag
}

// New wires the five core components into a runnable Loop. settingsSvc's
// supplier/sink are expected to already close over the same layout and a
// SessionState accessor (the caller owns that wiring, see cmd/engine).
func New(mgr *torrentmgr.Manager, builder *snapshot.Builder, settingsSvc *settings.Service, layout persistence.Layout, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		mgr:      mgr,
		builder:  builder,
		settings: settingsSvc,
		layout:   layout,
		logger:   logger,
		tracer:   otel.Tracer("torrentd/engine"),
		shutdown: &queue.ShutdownFlag{},
	}
}

// Run executes the canonical tick iteration until Stop is called. It
// blocks the calling goroutine — callers run it on a single dedicated
// engine goroutine; no other goroutine may touch session state directly.
func (l *Loop) Run(ctx context.Context) {
	for !l.shutdown.IsSet() {
		select {
		case <-ctx.Done():
			l.Stop()
		default:
		}
		l.tick(time.Now())
	}
	l.drainShutdown()
}

// Stop requests a clean shutdown; it is safe to call from any goroutine
// (e.g. a signal handler) since it only flips the shared flag and wakes
// the loop out of wait_for_work.
func (l *Loop) Stop() {
	l.shutdown.Set()
	l.mgr.Notify()
}

// tick runs one full cycle: drain queued tasks, dispatch pending alerts,
// rebuild the snapshot, purge stale id mappings, and flush dirty settings.
func (l *Loop) tick(now time.Time) {
	ctx, span := l.tracer.Start(context.Background(), "engine.tick")
	defer span.End()

	start := time.Now()
	defer func() {
		metrics.TickDuration.Observe(time.Since(start).Seconds())
	}()

	l.processTasks(ctx)
	l.processAlerts(ctx)
	seen := l.buildSnapshot(ctx)
	l.mgr.PurgeMissingIDs(seen)
	l.flushSettingsTraced(ctx, now)

	metrics.CommandQueueDepth.Set(float64(l.mgr.PendingTaskCount()))
	metrics.TorrentsTotal.Set(float64(len(seen)))

	if l.shutdown.IsSet() {
		return
	}
	l.mgr.WaitForWork(IdleSleep, l.shutdown)
}

func (l *Loop) processTasks(ctx context.Context) {
	_, span := l.tracer.Start(ctx, "engine.process_tasks")
	defer span.End()
	before := l.mgr.PendingTaskCount()
	l.mgr.ProcessTasks()
	metrics.TasksProcessedTotal.Add(float64(before))
}

func (l *Loop) processAlerts(ctx context.Context) {
	_, span := l.tracer.Start(ctx, "engine.process_alerts")
	defer span.End()
	l.mgr.ProcessAlerts()
}

func (l *Loop) buildSnapshot(ctx context.Context) map[domain.RpcId]struct{} {
	_, span := l.tracer.Start(ctx, "engine.build_snapshot")
	defer span.End()

	cb := l.mgr.SnapshotCallbacks(buildSnapshotEntry(l.mgr))
	_, seen := l.builder.Build(l.mgr.Handles(), cb)
	return seen
}

func (l *Loop) flushSettingsTraced(ctx context.Context, now time.Time) {
	_, span := l.tracer.Start(ctx, "engine.persist")
	defer span.End()
	l.flushSettings(now)
}

func (l *Loop) flushSettings(now time.Time) {
	start := time.Now()
	flushed, err := l.settings.Tick(now)
	if err != nil {
		l.logger.Warn("settings flush failed",
			slog.Any("error", domain.NewEngineError(domain.SeverityRecovered, "settings_service.tick", err)))
		metrics.PersistenceWriteFailuresTotal.WithLabelValues("state.json").Inc()
		return
	}
	if flushed {
		metrics.PersistenceWriteDuration.WithLabelValues("state.json").Observe(time.Since(start).Seconds())
	}
}

// buildSnapshotEntry derives a domain.TorrentSnapshot from a live
// *torrent.Torrent's polled state. anacrolix/torrent has no single state
// enum, so the coarse lifecycle state is derived from metadata readiness,
// the locally tracked pause flag, and completed-vs-total bytes.
func buildSnapshotEntry(mgr *torrentmgr.Manager) func(id domain.RpcId, t *torrent.Torrent, revision, prevAdded int64) domain.TorrentSnapshot {
	return func(id domain.RpcId, t *torrent.Torrent, revision, prevAdded int64) domain.TorrentSnapshot {
		hash := t.InfoHash().HexString()
		name := t.Name()
		paused := mgr.PausedFor(id)

		var total, completed, down, up int64
		state := domain.TorrentStateChecking

		select {
		case <-t.GotInfo():
			total = t.Length()
			completed = t.BytesCompleted()
			stats := t.Stats()
			down = stats.BytesReadUsefulData.Int64()
			up = stats.BytesWrittenData.Int64()

			switch {
			case paused:
				state = domain.TorrentStatePaused
			case total > 0 && completed >= total:
				state = domain.TorrentStateSeeding
			default:
				state = domain.TorrentStateDownloading
			}
		default:
			if paused {
				state = domain.TorrentStatePaused
			}
		}

		progress := 0.0
		if total > 0 {
			progress = float64(completed) / float64(total)
		}

		if down < 0 {
			down = 0
		}
		if up < 0 {
			up = 0
		}

		return domain.TorrentSnapshot{
			ID:              id,
			InfoHash:        hash,
			Name:            name,
			State:           state,
			DownloadRate:    down,
			UploadRate:      up,
			BytesDownloaded: completed,
			BytesUploaded:   up,
			SizeTotal:       total,
			Progress:        progress,
			Paused:          paused,
			AddedTime:       prevAdded,
			Revision:        revision,
		}
	}
}

// drainShutdown runs the shutdown sequence: one final task cycle, a
// forced resume-save per live torrent, a bounded wait, an
// unconditional settings flush, the session-params write, and only then
// Manager.Close (no alert callbacks may fire after the session is
// destroyed).
func (l *Loop) drainShutdown() {
	l.mgr.ProcessTasks()

	live := l.mgr.LiveTorrents()
	deadline := time.Now().Add(resumeSaveWait)
	for i, t := range live {
		l.forceResumeSave(t)
		if time.Now().After(deadline) {
			l.logger.Warn("shutdown resume-save wait exceeded, proceeding",
				slog.Int("remaining", len(live)-i-1))
			break
		}
	}

	if err := l.settings.FlushNow(); err != nil {
		l.logger.Warn("shutdown settings flush failed", slog.Any("error", err))
	}

	params, err := l.mgr.WriteSessionParams()
	if err != nil {
		l.logger.Warn("encode session params failed", slog.Any("error", err))
	} else {
		writeStart := time.Now()
		if err := persistence.SaveSessionParams(l.layout, params); err != nil {
			metrics.PersistenceWriteFailuresTotal.WithLabelValues("session_params").Inc()
			l.logger.Warn("persist session params failed", slog.Any("error", err))
		} else {
			metrics.PersistenceWriteDuration.WithLabelValues("session_params").Observe(time.Since(writeStart).Seconds())
		}
	}

	l.mgr.Close()
}

// forceResumeSave persists a single torrent's resume blob on shutdown,
// bypassing the live save-resume alert path since no callbacks may fire
// once drainShutdown starts tearing the session down.
func (l *Loop) forceResumeSave(t *torrent.Torrent) {
	hex := t.InfoHash().HexString()
	data, err := torrentmgr.ResumeDataFor(t)
	if err != nil {
		return
	}
	writeStart := time.Now()
	if err := persistence.SaveResumeBlob(l.layout, hex, data); err != nil {
		metrics.PersistenceWriteFailuresTotal.WithLabelValues("resume").Inc()
		l.logger.Warn("persist resume blob failed", slog.String("info_hash", hex), slog.Any("error", err))
		return
	}
	metrics.PersistenceWriteDuration.WithLabelValues("resume").Observe(time.Since(writeStart).Seconds())
}
