package torrentmgr

import (
	"errors"
	"testing"

	"torrentd/internal/engine/queue"
	"torrentd/internal/persistence"

	"torrentd/internal/domain"
)

// newTestManager builds a Manager with a nil *torrent.Client, valid only
// for exercising the bookkeeping methods below that never dereference the
// client field.
func newTestManager(cb Callbacks) *Manager {
	return New(nil, persistence.NewLayout("testdata-unused"), queue.New(16), cb, nil, nil, nil)
}

func TestEnqueueTaskAndProcessTasksRunsInOrder(t *testing.T) {
	m := newTestManager(Callbacks{})
	var order []int
	m.EnqueueTask("a", func() error { order = append(order, 1); return nil })
	m.EnqueueTask("b", func() error { order = append(order, 2); return nil })

	if got := m.PendingTaskCount(); got != 2 {
		t.Fatalf("PendingTaskCount = %d, want 2", got)
	}

	m.ProcessTasks()

	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("order = %v, want [1 2]", order)
	}
	if got := m.PendingTaskCount(); got != 0 {
		t.Fatalf("PendingTaskCount after drain = %d, want 0", got)
	}
}

func TestProcessTasksContinuesPastFailure(t *testing.T) {
	m := newTestManager(Callbacks{})
	var secondRan bool
	m.EnqueueTask("bad", func() error { return errors.New("boom") })
	m.EnqueueTask("good", func() error { secondRan = true; return nil })

	m.ProcessTasks()

	if !secondRan {
		t.Fatal("a failing task must not prevent the next task from running")
	}
}

func TestAssignIDIsStableAndNonZero(t *testing.T) {
	m := newTestManager(Callbacks{})
	hash, _ := domain.InfoHashFromHex("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")

	id1 := m.AssignID(hash)
	id2 := m.AssignID(hash)
	if id1 != id2 {
		t.Fatalf("AssignID not stable: %d != %d", id1, id2)
	}
	if id1 == 0 {
		t.Fatal("non-zero hash should get a non-zero id")
	}
}

func TestRecoverMappingsThenPurgeMissingIDs(t *testing.T) {
	m := newTestManager(Callbacks{})
	m.RecoverMappings(map[string]domain.RpcId{
		"bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb": 5,
	})

	m.SetLabels(5, []string{"movies"})
	m.SetPriority(5, 2)

	removed := m.PurgeMissingIDs(map[domain.RpcId]struct{}{})
	if len(removed) != 1 || removed[0] != 5 {
		t.Fatalf("removed = %v, want [5]", removed)
	}
	if got, ok := m.BandwidthLimitsFor(5); ok {
		t.Fatalf("BandwidthLimitsFor(5) after purge = (%v, true), want not-ok", got)
	}
}

func TestSetLabelsAndPriorityBumpRevision(t *testing.T) {
	m := newTestManager(Callbacks{})
	id := domain.RpcId(1)

	before := m.ensureRevision(id)
	m.SetLabels(id, []string{"x"})
	afterLabels := m.ensureRevision(id)
	if afterLabels <= before {
		t.Fatalf("revision did not bump after SetLabels: before=%d after=%d", before, afterLabels)
	}

	m.SetPriority(id, 3)
	afterPriority := m.ensureRevision(id)
	if afterPriority <= afterLabels {
		t.Fatalf("revision did not bump after SetPriority: %d <= %d", afterPriority, afterLabels)
	}
}

func TestBandwidthLimitsRoundTrip(t *testing.T) {
	m := newTestManager(Callbacks{})
	down := int64(500)
	m.SetTorrentBandwidthLimits([]domain.RpcId{9}, BandwidthLimits{DownloadKBps: &down})

	got, ok := m.BandwidthLimitsFor(9)
	if !ok {
		t.Fatal("expected limits to be recorded")
	}
	if got.DownloadKBps == nil || *got.DownloadKBps != 500 {
		t.Fatalf("DownloadKBps = %v, want 500", got.DownloadKBps)
	}
}

func TestPendingMoveLifecycle(t *testing.T) {
	m := newTestManager(Callbacks{})
	m.MarkPendingMove("cafe", "/new/path")

	target, ok := m.PendingMove("cafe")
	if !ok || target != "/new/path" {
		t.Fatalf("PendingMove = (%q, %v), want (/new/path, true)", target, ok)
	}

	m.ClearPendingMove("cafe")
	if _, ok := m.PendingMove("cafe"); ok {
		t.Fatal("expected pending move to be cleared")
	}
}

func TestSetTorrentPausedUnknownIDSurfacesError(t *testing.T) {
	m := newTestManager(Callbacks{})
	err := m.SetTorrentPaused(domain.RpcId(404), true)
	if err == nil {
		t.Fatal("expected an error for an unknown rpc id")
	}
}

func TestRecheckUnknownIDSurfacesError(t *testing.T) {
	m := newTestManager(Callbacks{})
	if err := m.Recheck(domain.RpcId(404)); err == nil {
		t.Fatal("expected an error for an unknown rpc id")
	}
}

func TestRemoveTorrentUnknownIDSurfacesError(t *testing.T) {
	m := newTestManager(Callbacks{})
	if err := m.RemoveTorrent(domain.RpcId(404), false); err == nil {
		t.Fatal("expected an error for an unknown rpc id")
	}
}

func TestMoveStorageUnknownIDSurfacesError(t *testing.T) {
	m := newTestManager(Callbacks{})
	if err := m.MoveStorage(domain.RpcId(404), "/tmp/x", false); err == nil {
		t.Fatal("expected an error for an unknown rpc id")
	}
}

func TestWriteSessionParamsProducesNonEmptyBlob(t *testing.T) {
	m := newTestManager(Callbacks{})
	data, err := m.WriteSessionParams()
	if err != nil {
		t.Fatalf("WriteSessionParams: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected a non-empty session params blob")
	}
}
