package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"wacrm/internal/store"
)

func TestGuardSingleAdmission(t *testing.T) {
	var g Guard
	if !g.TryAcquire() {
		t.Fatal("first acquire should succeed")
	}
	if g.TryAcquire() {
		t.Fatal("second acquire should fail while held")
	}
	g.Release()
	if !g.TryAcquire() {
		t.Fatal("acquire after release should succeed")
	}
}

func TestSchedulerRejectsOverlappingRuns(t *testing.T) {
	s := newFakeRunStore(5)

	block := make(chan struct{})
	started := make(chan struct{}, 5)
	handler := func(ctx context.Context, act *store.PendingAction) error {
		started <- struct{}{}
		<-block
		return nil
	}

	sched := &Scheduler{
		Guard:  &Guard{},
		Runner: newRunner(s, handler),
	}

	done := make(chan error, 1)
	go func() {
		done <- sched.RunOnce(context.Background(), nil)
	}()

	// Wait until the first run is mid-batch, then trigger again.
	<-started
	if err := sched.RunOnce(context.Background(), nil); !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("expected ErrRunInProgress, got %v", err)
	}

	close(block)
	if err := <-done; err != nil {
		t.Fatalf("first run: %v", err)
	}

	// Guard is released after completion: a fresh trigger is admitted.
	if err := sched.RunOnce(context.Background(), nil); err != nil {
		t.Fatalf("run after release: %v", err)
	}
}

func TestSchedulerReleasesGuardAfterFailedRun(t *testing.T) {
	s := newFakeRunStore(3)
	for _, id := range s.order {
		s.failPersist[id] = errors.New("db unreachable")
	}

	sched := &Scheduler{
		Guard:  &Guard{},
		Runner: newRunner(s, func(ctx context.Context, act *store.PendingAction) error { return nil }),
	}

	if err := sched.RunOnce(context.Background(), nil); err == nil {
		t.Fatal("expected failed run")
	}

	// A crashed run must not wedge the guard.
	if !sched.Guard.TryAcquire() {
		t.Fatal("guard still held after failed run")
	}
	sched.Guard.Release()
}

func TestSchedulerStartStopsOnCancel(t *testing.T) {
	sched := &Scheduler{
		Guard:  &Guard{},
		Runner: newRunner(newFakeRunStore(0), func(ctx context.Context, act *store.PendingAction) error { return nil }),
	}

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		sched.Start(ctx, 10*time.Millisecond)
		close(stopped)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop on cancel")
	}
}
