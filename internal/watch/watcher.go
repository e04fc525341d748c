// Package watch implements the Watch Directory Monitor: it observes
// a configured directory for new .torrent files and submits each as an
// add_torrent task, debounced so a file still being written doesn't get
// picked up mid-copy.
//
// Grounded on fulgidus-libreseed's legacy/seeder/internal/watcher —
// same fsnotify + per-file debounce-timer shape, generalized from
// tar.gz packages to .torrent files and from a direct engine call to an
// enqueued Task so the watcher never touches the engine's state
// directly; it only ever reaches the session through enqueue_task.
package watch

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"torrentd/internal/domain"
)

const debounceDelay = 200 * time.Millisecond

// Submitter enqueues an add_torrent task for a discovered file, mirroring
// Manager.EnqueueTask's signature so the watcher has no import on
// torrentmgr itself.
type Submitter func(correlationID string, fn func() error)

// AddFromFile is invoked on the engine goroutine with the raw bytes of a
// discovered .torrent file; the caller supplies the actual
// AsyncAddTorrent wiring.
type AddFromFile func(data []byte) error

type Watcher struct {
	dir     string
	submit  Submitter
	addFile AddFromFile
	logger  *slog.Logger

	fsw *fsnotify.Watcher

	timerMu sync.Mutex
	timers  map[string]*time.Timer

	seen   map[string]domain.WatchEntry
	seenMu sync.Mutex

	stop chan struct{}
	done chan struct{}
}

func New(dir string, submit Submitter, addFile AddFromFile, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		dir:     dir,
		submit:  submit,
		addFile: addFile,
		logger:  logger,
		timers:  make(map[string]*time.Timer),
		seen:    make(map[string]domain.WatchEntry),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start begins watching dir; it returns once the watch is registered, the
// event loop itself runs in a background goroutine.
func (w *Watcher) Start() error {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsw.Add(w.dir); err != nil {
		fsw.Close()
		return err
	}
	w.fsw = fsw

	go w.eventLoop()
	w.logger.Info("watch directory monitor started", slog.String("dir", w.dir))
	return nil
}

// Stop cancels all pending debounce timers and closes the underlying
// fsnotify watcher, waiting for the event loop to exit.
func (w *Watcher) Stop() {
	close(w.stop)
	w.timerMu.Lock()
	for _, t := range w.timers {
		t.Stop()
	}
	w.timerMu.Unlock()
	if w.fsw != nil {
		w.fsw.Close()
	}
	<-w.done
}

func (w *Watcher) eventLoop() {
	defer close(w.done)
	for {
		select {
		case <-w.stop:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch directory monitor error", slog.Any("error", err))
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
		return
	}
	if !strings.EqualFold(filepath.Ext(ev.Name), ".torrent") {
		return
	}
	w.scheduleSubmit(ev.Name)
}

func (w *Watcher) scheduleSubmit(path string) {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()

	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(debounceDelay, func() {
		w.submitFile(path)
		w.timerMu.Lock()
		delete(w.timers, path)
		w.timerMu.Unlock()
	})
}

func (w *Watcher) submitFile(path string) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}

	w.seenMu.Lock()
	last, already := w.seen[path]
	w.seenMu.Unlock()
	if already && !info.ModTime().After(last.ModTime) {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		w.logger.Warn("read watched torrent file failed", slog.String("path", path), slog.Any("error", err))
		return
	}

	w.seenMu.Lock()
	w.seen[path] = domain.WatchEntry{Path: path, ModTime: info.ModTime()}
	w.seenMu.Unlock()

	w.submit(uuid.NewString(), func() error {
		return w.addFile(data)
	})
}
