package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tasktable/internal/eventbus"
	logx "tasktable/pkg/logx"
)

func startEngine(t *testing.T, cfg Config, bus eventbus.Bus) *Service {
	t.Helper()
	s := New(cfg, logx.Nop(), bus)
	s.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.Stop(ctx)
	})
	return s
}

func TestEnqueueBeforeStart(t *testing.T) {
	s := New(Config{}, logx.Nop(), nil)
	err := s.Enqueue(Task{Name: "x", Run: func(context.Context) error { return nil }})
	assert.ErrorIs(t, err, ErrStopped)
}

func TestEnqueueValidates(t *testing.T) {
	s := startEngine(t, Config{Workers: 1}, nil)
	assert.ErrorIs(t, s.Enqueue(Task{Name: "x"}), ErrNoRun)
	assert.ErrorIs(t, s.Enqueue(Task{Name: "  ", Run: func(context.Context) error { return nil }}), ErrNoName)
}

func TestRunsTasksAndRecordsHistory(t *testing.T) {
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(16)
	defer unsub()

	s := startEngine(t, Config{Workers: 2}, bus)

	var ran int32
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Enqueue(Task{Name: "count", Run: func(context.Context) error {
			atomic.AddInt32(&ran, 1)
			return nil
		}}))
	}
	require.NoError(t, s.Enqueue(Task{ID: "fixed", Name: "boom", Run: func(context.Context) error {
		return errors.New("boom")
	}}))

	require.Eventually(t, func() bool { return len(s.Snapshot().History) == 4 }, 2*time.Second, 5*time.Millisecond)
	assert.EqualValues(t, 3, atomic.LoadInt32(&ran))

	var failed, finished int
	deadline := time.After(2 * time.Second)
	for failed+finished < 4 {
		select {
		case ev := <-ch:
			switch ev.Type {
			case eventbus.TypeTaskFailed:
				failed++
				te := ev.Data.(TaskEvent)
				assert.Equal(t, "fixed", te.ID)
				assert.Equal(t, "boom", te.Error)
			case eventbus.TypeTaskFinished:
				finished++
				assert.NotEmpty(t, ev.Data.(TaskEvent).ID)
			}
		case <-deadline:
			t.Fatalf("timed out waiting for events: failed=%d finished=%d", failed, finished)
		}
	}
	assert.Equal(t, 1, failed)
	assert.Equal(t, 3, finished)
}

func TestPanicIsRecordedAsFailure(t *testing.T) {
	s := startEngine(t, Config{Workers: 1}, nil)
	require.NoError(t, s.Enqueue(Task{Name: "panic", Run: func(context.Context) error { panic("bad") }}))
	require.NoError(t, s.Enqueue(Task{Name: "after", Run: func(context.Context) error { return nil }}))

	require.Eventually(t, func() bool { return len(s.Snapshot().History) == 2 }, 2*time.Second, 5*time.Millisecond)
	h := s.Snapshot().History
	assert.Contains(t, h[0].Error, "panic: bad")
	assert.Empty(t, h[1].Error)
}

func TestQueueFullDrops(t *testing.T) {
	s := startEngine(t, Config{Workers: 1, QueueSize: 1}, nil)

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, s.Enqueue(Task{Name: "block", Run: func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}}))
	<-started

	noop := Task{Name: "noop", Run: func(context.Context) error { return nil }}
	require.NoError(t, s.Enqueue(noop))
	assert.ErrorIs(t, s.Enqueue(noop), ErrQueueFull)
	close(release)

	snap := s.Snapshot()
	assert.EqualValues(t, 1, snap.Dropped)
	assert.EqualValues(t, 1, snap.DroppedQueueFull)
}

func TestSubmitHonorsContext(t *testing.T) {
	s := startEngine(t, Config{Workers: 1, QueueSize: 1}, nil)

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, s.Enqueue(Task{Name: "block", Run: func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}}))
	<-started
	defer close(release)

	noop := Task{Name: "noop", Run: func(context.Context) error { return nil }}
	require.NoError(t, s.Enqueue(noop))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Submit(ctx, noop), context.DeadlineExceeded)
}

func TestSkipIfRunning(t *testing.T) {
	s := startEngine(t, Config{Workers: 2}, nil)

	release := make(chan struct{})
	started := make(chan struct{})
	task := Task{Name: "slow", Overlap: OverlapSkipIfRunning, Run: func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}}
	require.NoError(t, s.Enqueue(task))
	<-started

	assert.ErrorIs(t, s.Enqueue(task), ErrOverlapSkip)
	assert.EqualValues(t, 1, s.Snapshot().Skipped)
	close(release)

	require.Eventually(t, func() bool { return len(s.Snapshot().History) == 1 }, 2*time.Second, 5*time.Millisecond)
	again := Task{Name: "slow", Overlap: OverlapSkipIfRunning, Run: func(context.Context) error { return nil }}
	assert.NoError(t, s.Enqueue(again))
}

func TestTimeoutCancelsRun(t *testing.T) {
	s := startEngine(t, Config{Workers: 1}, nil)
	require.NoError(t, s.Enqueue(Task{Name: "slow", Timeout: 20 * time.Millisecond, Run: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}))

	require.Eventually(t, func() bool { return len(s.Snapshot().History) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, context.DeadlineExceeded.Error(), s.Snapshot().History[0].Error)
}

func TestStaleTasksAreDropped(t *testing.T) {
	s := startEngine(t, Config{Workers: 1, MaxQueueDelay: 10 * time.Millisecond}, nil)

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, s.Enqueue(Task{Name: "block", Run: func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}}))
	<-started

	var ran int32
	require.NoError(t, s.Enqueue(Task{Name: "late", Run: func(context.Context) error {
		atomic.AddInt32(&ran, 1)
		return nil
	}}))
	time.Sleep(30 * time.Millisecond)
	close(release)

	require.Eventually(t, func() bool { return s.Snapshot().DroppedStale == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.EqualValues(t, 0, atomic.LoadInt32(&ran))
}

func TestHistoryIsTrimmed(t *testing.T) {
	s := startEngine(t, Config{Workers: 1, HistorySize: 3}, nil)
	for i := 0; i < 6; i++ {
		require.NoError(t, s.Submit(context.Background(), Task{Name: "n", Run: func(context.Context) error { return nil }}))
	}
	require.Eventually(t, func() bool {
		snap := s.Snapshot()
		return snap.QueueLen == 0 && snap.InFlight == 0 && len(snap.History) == 3
	}, 2*time.Second, 5*time.Millisecond)
}

func TestStopAndRestart(t *testing.T) {
	s := New(Config{Workers: 1}, logx.Nop(), nil)
	s.Start(context.Background())
	assert.True(t, s.Running())

	s.Stop(context.Background())
	assert.False(t, s.Running())
	assert.ErrorIs(t, s.Enqueue(Task{Name: "x", Run: func(context.Context) error { return nil }}), ErrStopped)

	s.Start(context.Background())
	defer s.Stop(context.Background())
	done := make(chan struct{})
	require.NoError(t, s.Enqueue(Task{Name: "x", Run: func(context.Context) error { close(done); return nil }}))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task did not run after restart")
	}
}
