package settings

import (
	"errors"
	"testing"
	"time"

	"torrentd/internal/domain"
)

func newTestService(t *testing.T, interval time.Duration) (*Service, *int, func() domain.SessionState) {
	t.Helper()
	state := domain.DefaultSessionState()
	writes := 0
	supplier := func() domain.SessionState { return state }
	sink := func(s domain.SessionState) error {
		writes++
		state = s
		return nil
	}
	return New(interval, supplier, sink), &writes, supplier
}

func TestMarkDirtyThenTickBeforeDeadlineDoesNotFlush(t *testing.T) {
	svc, writes, _ := newTestService(t, time.Minute)
	now := time.Now()

	svc.MarkDirty(now)
	flushed, err := svc.Tick(now.Add(time.Second))
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if flushed {
		t.Fatal("Tick flushed before the debounce deadline")
	}
	if *writes != 0 {
		t.Fatalf("writes = %d, want 0", *writes)
	}
	if !svc.Dirty() {
		t.Fatal("service should still be dirty")
	}
}

func TestTickFlushesAfterDeadline(t *testing.T) {
	svc, writes, _ := newTestService(t, 100*time.Millisecond)
	now := time.Now()

	svc.MarkDirty(now)
	flushed, err := svc.Tick(now.Add(200 * time.Millisecond))
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if !flushed {
		t.Fatal("Tick should have flushed past the deadline")
	}
	if *writes != 1 {
		t.Fatalf("writes = %d, want 1", *writes)
	}
	if svc.Dirty() {
		t.Fatal("service should be clean after a successful flush")
	}
}

func TestMarkDirtyDoesNotExtendDeadline(t *testing.T) {
	svc, writes, _ := newTestService(t, 100*time.Millisecond)
	now := time.Now()

	svc.MarkDirty(now)
	svc.MarkDirty(now.Add(90 * time.Millisecond)) // must not push the deadline out

	flushed, err := svc.Tick(now.Add(150 * time.Millisecond))
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if !flushed {
		t.Fatal("second MarkDirty should not have rescheduled the original deadline")
	}
	if *writes != 1 {
		t.Fatalf("writes = %d, want 1", *writes)
	}
}

func TestFlushNowIgnoresDirtyFlag(t *testing.T) {
	svc, writes, _ := newTestService(t, time.Hour)
	if err := svc.FlushNow(); err != nil {
		t.Fatalf("FlushNow: %v", err)
	}
	if *writes != 1 {
		t.Fatalf("writes = %d, want 1", *writes)
	}
	if svc.Dirty() {
		t.Fatal("FlushNow should leave the service clean")
	}
}

func TestTickLeavesDirtyOnSinkFailure(t *testing.T) {
	state := domain.DefaultSessionState()
	sinkErr := errors.New("disk full")
	svc := New(10*time.Millisecond, func() domain.SessionState { return state }, func(domain.SessionState) error {
		return sinkErr
	})

	now := time.Now()
	svc.MarkDirty(now)
	flushed, err := svc.Tick(now.Add(time.Second))
	if !errors.Is(err, sinkErr) {
		t.Fatalf("Tick error = %v, want %v", err, sinkErr)
	}
	if flushed {
		t.Fatal("Tick should report no flush on sink failure")
	}
	if !svc.Dirty() {
		t.Fatal("service should remain dirty after a failed flush so the next tick retries")
	}
}
