package table

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "tasktable/pkg/logx"
)

func nopLogger() logx.Logger { return logx.Nop() }

func TestSpawnerRecoversPanics(t *testing.T) {
	sp := NewSpawner(context.Background(), nopLogger())
	done := make(chan struct{})

	sp.Dispatch(Identity{ID: 1, Period: 1}, func(context.Context, Identity) { panic("task blew up") })
	sp.Dispatch(Identity{ID: 2, Period: 1}, func(context.Context, Identity) { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("second task did not run after first panicked")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, sp.Stop(ctx))
	st := sp.Stats()
	assert.EqualValues(t, 2, st.Started)
	assert.EqualValues(t, 1, st.Panics)
	assert.Zero(t, st.InFlight)
}

func TestSpawnerAllowsOverlappingInstances(t *testing.T) {
	sp := NewSpawner(context.Background(), nopLogger())
	var running atomic.Int32
	release := make(chan struct{})

	body := func(context.Context, Identity) {
		running.Add(1)
		<-release
	}
	id := Identity{ID: 1, Period: 1}
	sp.Dispatch(id, body)
	sp.Dispatch(id, body)
	sp.Dispatch(id, body)

	require.Eventually(t, func() bool { return running.Load() == 3 }, 2*time.Second, 5*time.Millisecond)
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, sp.Stop(ctx))
}

func TestSpawnerStopCancelsAndDrains(t *testing.T) {
	sp := NewSpawner(context.Background(), nopLogger())
	var canceled atomic.Bool
	started := make(chan struct{})

	sp.Dispatch(Identity{ID: 1, Period: 1}, func(ctx context.Context, _ Identity) {
		close(started)
		<-ctx.Done()
		canceled.Store(true)
	})
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, sp.Stop(ctx))
	assert.True(t, canceled.Load())

	// Dispatches after Stop are dropped.
	var ran atomic.Bool
	assert.False(t, sp.Dispatch(Identity{ID: 2, Period: 1}, func(context.Context, Identity) { ran.Store(true) }))
	time.Sleep(20 * time.Millisecond)
	assert.False(t, ran.Load())
	assert.EqualValues(t, 1, sp.Stats().Dropped)
}

func TestSpawnerStopTimesOutOnStuckBody(t *testing.T) {
	sp := NewSpawner(context.Background(), nopLogger())
	release := make(chan struct{})
	defer close(release)

	sp.Dispatch(Identity{ID: 1, Period: 1}, func(context.Context, Identity) { <-release })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := sp.Stop(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDispatcherFunc(t *testing.T) {
	var got Identity
	d := DispatcherFunc(func(id Identity, fn Func) bool {
		got = id
		fn(context.Background(), id)
		return true
	})
	ran := false
	assert.True(t, d.Dispatch(Identity{ID: 4, Period: 2}, func(context.Context, Identity) { ran = true }))
	assert.True(t, ran)
	assert.Equal(t, 4, got.ID)
}
