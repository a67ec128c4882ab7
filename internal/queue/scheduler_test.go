package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/adverant/nexus/sirim-worker/internal/syncer"
	"github.com/alicebob/miniredis/v2"
)

// recordingCycler is safe to call from the asynq worker goroutine
type recordingCycler struct {
	mu       sync.Mutex
	outcome  syncer.Outcome
	attempts []time.Time
}

func (c *recordingCycler) RunCycle(ctx context.Context, ownerID string) syncer.Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts = append(c.attempts, time.Now())
	return c.outcome
}

func (c *recordingCycler) attemptTimes() []time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Time(nil), c.attempts...)
}

func newTestScheduler(t *testing.T, cycler Cycler, maxRetry int, base time.Duration) *Scheduler {
	t.Helper()
	mr := miniredis.RunT(t)
	s, err := NewScheduler(&SchedulerConfig{
		RedisURL:     "redis://" + mr.Addr(),
		QueueName:    "sirim:sync",
		OwnerID:      "owner-1",
		Interval:     time.Hour,
		BaseBackoff:  base,
		MaxBackoff:   time.Minute,
		MaxRetry:     maxRetry,
		LockTTL:      time.Minute,
		PollInterval: 100 * time.Millisecond,
		Cycler:       cycler,
	})
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	return s
}

func startTestScheduler(t *testing.T, s *Scheduler) {
	t.Helper()
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = s.Stop(context.Background()) })
}

func waitUntil(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func archivedCount(s *Scheduler) int {
	archived, err := s.inspector.ListArchivedTasks(s.config.QueueName)
	if err != nil {
		return 0
	}
	return len(archived)
}

func TestScheduler_OfflineRetriesBackOffThenArchive(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for real retry delays")
	}
	cycler := &recordingCycler{outcome: syncer.NoConnection()}
	s := newTestScheduler(t, cycler, 2, 3*time.Second)
	startTestScheduler(t, s)

	if err := s.TriggerNow(context.Background(), "owner-1"); err != nil {
		t.Fatalf("TriggerNow: %v", err)
	}
	waitUntil(t, 45*time.Second, "offline cycle to be archived", func() bool {
		return archivedCount(s) == 1
	})

	attempts := cycler.attemptTimes()
	if len(attempts) != 3 {
		t.Fatalf("attempts = %d, want 3 (first run + MaxRetry)", len(attempts))
	}
	first, second := attempts[1].Sub(attempts[0]), attempts[2].Sub(attempts[1])
	if second <= first {
		t.Fatalf("retry delays did not grow: %s then %s", first, second)
	}

	archived, err := s.inspector.ListArchivedTasks(s.config.QueueName)
	if err != nil {
		t.Fatal(err)
	}
	if archived[0].Retried != 2 {
		t.Fatalf("retried = %d, want 2", archived[0].Retried)
	}
}

func TestScheduler_TriggerAfterTerminalErrorRunsAgain(t *testing.T) {
	if testing.Short() {
		t.Skip("runs an asynq server")
	}
	cycler := &recordingCycler{outcome: syncer.Failed("remote schema missing")}
	s := newTestScheduler(t, cycler, 3, time.Second)
	startTestScheduler(t, s)

	ctx := context.Background()
	if err := s.TriggerNow(ctx, "owner-1"); err != nil {
		t.Fatalf("first TriggerNow: %v", err)
	}
	waitUntil(t, 15*time.Second, "failed cycle to be archived", func() bool {
		return archivedCount(s) == 1
	})

	if err := s.TriggerNow(ctx, "owner-1"); err != nil {
		t.Fatalf("second TriggerNow: %v", err)
	}
	waitUntil(t, 15*time.Second, "second cycle to run", func() bool {
		return len(cycler.attemptTimes()) == 2
	})
}

func TestScheduler_TriggerCoalescesWhilePending(t *testing.T) {
	cycler := &recordingCycler{outcome: syncer.Complete(0, 0)}
	s := newTestScheduler(t, cycler, 3, time.Second)
	t.Cleanup(func() { _ = s.Stop(context.Background()) })

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := s.TriggerNow(ctx, "owner-1"); err != nil {
			t.Fatalf("TriggerNow #%d: %v", i+1, err)
		}
	}
	pending, err := s.inspector.ListPendingTasks(s.config.QueueName)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].Type != TaskTypeSyncCycle {
		t.Fatalf("pending = %d tasks, want 1", len(pending))
	}

	if err := s.TriggerNow(ctx, "owner-2"); err != nil {
		t.Fatalf("TriggerNow owner-2: %v", err)
	}
	other, err := s.inspector.ListPendingTasks(s.config.QueueName)
	if err != nil {
		t.Fatal(err)
	}
	if len(other) != 2 {
		t.Fatalf("a different owner must not coalesce, pending = %d", len(other))
	}
}
