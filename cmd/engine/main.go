// cmd/engine composes the engine core components into a runnable process:
// wiring start_session, the Torrent Manager, Snapshot Builder, Command
// Queue, Persistence Manager, Settings Persistence Service, and the
// optional Watch Directory Monitor together, then running the Engine Loop
// until a shutdown signal arrives.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/anacrolix/torrent"
	"github.com/anacrolix/torrent/iplist"
	"github.com/prometheus/client_golang/prometheus"

	"torrentd/internal/app"
	"torrentd/internal/domain"
	"torrentd/internal/engine"
	"torrentd/internal/engine/queue"
	"torrentd/internal/engine/snapshot"
	"torrentd/internal/engine/torrentmgr"
	"torrentd/internal/metrics"
	"torrentd/internal/persistence"
	"torrentd/internal/settings"
	"torrentd/internal/telemetry"
	"torrentd/internal/watch"
)

func main() {
	cfg := app.LoadConfig()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.Init(rootCtx, "torrentd-engine")
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	layout := persistence.NewLayout(cfg.DataDir)

	state, rpcPairs, err := persistence.LoadState(layout)
	if err != nil {
		logger.Error("load state.json failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	state = cfg.ApplyOverrides(state)

	logger.Info("configuration loaded",
		slog.String("dataDir", cfg.DataDir),
		slog.String("listenInterface", state.ListenInterface),
		slog.String("rpcBind", state.RPCBind),
		slog.Bool("dhtEnabled", state.DHTEnabled),
		slog.Bool("watchDirEnabled", state.WatchDirEnabled),
	)

	downLimiter, upLimiter := torrentmgr.NewRateLimiters()

	clientCfg := torrent.NewDefaultClientConfig()
	clientCfg.DataDir = resolveDownloadPath(layout, state)
	clientCfg.NoDHT = !state.DHTEnabled
	clientCfg.DisablePEX = !state.PEXEnabled
	clientCfg.DisableUTP = !state.UTPEnabled
	clientCfg.Seed = true
	clientCfg.DownloadRateLimiter = downLimiter
	clientCfg.UploadRateLimiter = upLimiter
	if host, portStr, splitErr := splitListenAddr(state.ListenInterface); splitErr == nil {
		clientCfg.SetListenAddr(host + ":" + portStr)
	}

	if blocked, loadErr := loadBlocklist(layout.BlocklistFile()); loadErr != nil {
		logger.Warn("blocklist load failed, continuing without it",
			slog.Any("error", domain.NewEngineError(domain.SeverityRecovered, "load_blocklist", loadErr)))
	} else if blocked != nil {
		clientCfg.IPBlocklist = blocked
	}

	client, err := torrentmgr.StartSession(clientCfg)
	if err != nil {
		logger.Error("start session failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	q := queue.New(queue.DefaultMaxPending)
	mgr := torrentmgr.New(client, layout, q, engineCallbacks(logger, layout), logger, downLimiter, upLimiter)
	mgr.ApplySettings(state)
	mgr.RecoverMappings(rpcPairs)

	resumeWarmStart(mgr, layout, logger)

	published := domain.NewPublishedSnapshot()
	builder := snapshot.New(published)

	// currentState is the supplier snapshot_service.tick() reads; a real
	// control surface (out of scope here) would mutate it under the
	// engine goroutine and call settingsSvc.MarkDirty on every
	// set_settings command.
	currentState := state
	settingsSvc := settings.New(settings.DefaultInterval,
		func() domain.SessionState { return currentState },
		func(s domain.SessionState) error { return persistence.SaveState(layout, s) },
	)

	var watcher *watch.Watcher
	if state.WatchDirEnabled && state.WatchDir != "" {
		watcher = watch.New(state.WatchDir, mgr.EnqueueTask, func(data []byte) error {
			_, addErr := mgr.AsyncAddTorrent(torrentmgr.AddTorrentParams{TorrentRaw: data})
			return addErr
		}, logger)
		if startErr := watcher.Start(); startErr != nil {
			logger.Warn("watch directory start failed",
				slog.Any("error", domain.NewEngineError(domain.SeverityRecovered, "watch_start", startErr)))
			watcher = nil
		}
	}

	loop := engine.New(mgr, builder, settingsSvc, layout, logger)

	logger.Info("engine started")
	loop.Run(rootCtx)

	if watcher != nil {
		watcher.Stop()
	}
	logger.Info("engine stopped")
}

// engineCallbacks wires the alert taxonomy's notification slots to
// structured logging; none of them mutate engine state directly — any
// mutation still has to go through enqueue_task — they only observe and
// log.
func engineCallbacks(logger *slog.Logger, layout persistence.Layout) torrentmgr.Callbacks {
	return torrentmgr.Callbacks{
		OnTorrentFinished: func(hash domain.InfoHash) {
			logger.Info("torrent finished", slog.String("info_hash", hash.Hex()))
		},
		OnResumeData: func(hash domain.InfoHash, data []byte) {
			writeStart := time.Now()
			if err := persistence.SaveResumeBlob(layout, hash.Hex(), data); err != nil {
				metrics.PersistenceWriteFailuresTotal.WithLabelValues("resume").Inc()
				logger.Warn("persist resume blob failed", slog.String("info_hash", hash.Hex()), slog.Any("error", err))
				return
			}
			metrics.PersistenceWriteDuration.WithLabelValues("resume").Observe(time.Since(writeStart).Seconds())
		},
		OnResumeHashCompleted: func(hash domain.InfoHash) {
			logger.Debug("resume hash completed", slog.String("info_hash", hash.Hex()))
		},
		ExtendResumeDeadline: func() {
			logger.Debug("resume deadline extended, handle unresolved")
		},
		OnMetadataPersisted: func(hash domain.InfoHash, path string, n int) {
			logger.Info("metadata persisted", slog.String("info_hash", hash.Hex()), slog.String("path", path), slog.Int("bytes", n))
		},
		OnAddTorrent: func(hash domain.InfoHash, err error) {
			if err != nil {
				logger.Warn("add_torrent failed", slog.Any("error", err))
				return
			}
			logger.Info("torrent added", slog.String("info_hash", hash.Hex()))
		},
		OnTrackerError: func(hash domain.InfoHash, url string, err error) {
			logger.Warn("tracker error", slog.String("info_hash", hash.Hex()), slog.String("url", url), slog.Any("error", err))
		},
		OnTorrentDeleteFailed: func(hash domain.InfoHash, err error) {
			logger.Warn("remove torrent data failed", slog.String("info_hash", hash.Hex()), slog.Any("error", err))
		},
		OnStorageMovedFailed: func(hash domain.InfoHash, err error) {
			logger.Warn("move storage failed", slog.String("info_hash", hash.Hex()), slog.Any("error", err))
		},
	}
}

// resumeWarmStart enumerates every persisted resume blob and re-adds the
// corresponding torrent by calling AsyncAddTorrent directly with its saved
// metadata file, before the engine loop starts. A blob whose metadata file
// is missing is skipped, and the blob's own contents are not read.
func resumeWarmStart(mgr *torrentmgr.Manager, layout persistence.Layout, logger *slog.Logger) {
	hexes, err := persistence.EnumerateResumeBlobs(layout)
	if err != nil {
		logger.Warn("enumerate resume blobs failed", slog.Any("error", err))
		return
	}
	for _, hex := range hexes {
		raw, err := persistence.LoadMetadataFile(layout, hex)
		if err != nil || raw == nil {
			continue
		}
		if _, err := mgr.AsyncAddTorrent(torrentmgr.AddTorrentParams{TorrentRaw: raw}); err != nil {
			logger.Warn("resume warm start failed", slog.String("info_hash", hex), slog.Any("error", err))
		}
	}
}

func resolveDownloadPath(layout persistence.Layout, state domain.SessionState) string {
	if state.DownloadPath != "" && filepath.IsAbs(state.DownloadPath) {
		return state.DownloadPath
	}
	return layout.DownloadsDir()
}

func splitListenAddr(addr string) (host, port string, err error) {
	idx := strings.LastIndex(addr, ":")
	if idx < 0 {
		return "", "", strconv.ErrSyntax
	}
	return addr[:idx], addr[idx+1:], nil
}

// loadBlocklist parses a PeerGuardian-format blocklist (the format
// anacrolix/torrent's iplist package expects). A missing file is not an
// error — blocking is simply disabled.
func loadBlocklist(path string) (*iplist.IPList, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	ranges, err := iplist.NewFromReader(f)
	if err != nil {
		return nil, err
	}
	return iplist.New(ranges), nil
}

func newLogger(levelRaw, formatRaw string) *slog.Logger {
	level := parseLogLevel(levelRaw)
	options := &slog.HandlerOptions{Level: level}
	if strings.ToLower(strings.TrimSpace(formatRaw)) == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, options))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, options))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
