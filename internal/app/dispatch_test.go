package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tasktable/internal/config"
	"tasktable/internal/task/table"
	logx "tasktable/pkg/logx"
)

// fillPool occupies the single worker and the single queue slot.
func fillPool(t *testing.T, pd *poolDispatcher) (release func()) {
	t.Helper()
	started := make(chan struct{})
	ch := make(chan struct{})
	require.True(t, pd.Dispatch(table.Identity{ID: 1, Period: 1}, func(context.Context, table.Identity) {
		close(started)
		<-ch
	}))
	<-started
	require.True(t, pd.Dispatch(table.Identity{ID: 2, Period: 1}, func(context.Context, table.Identity) {}))
	return func() { close(ch) }
}

func TestPoolDispatcherRefusesWhenFull(t *testing.T) {
	ctx := context.Background()
	pd := newPoolDispatcher(ctx, config.PoolSettings{Workers: 1, QueueSize: 1}, logx.Nop(), nil)
	defer pd.Stop(ctx)
	release := fillPool(t, pd)
	defer release()

	assert.False(t, pd.Dispatch(table.Identity{ID: 3, Period: 1}, func(context.Context, table.Identity) {}))
	assert.EqualValues(t, 1, pd.Snapshot().DroppedQueueFull)
}

func TestPoolDispatcherWaitsForQueueSpace(t *testing.T) {
	ctx := context.Background()
	pd := newPoolDispatcher(ctx, config.PoolSettings{Workers: 1, QueueSize: 1, EnqueueWait: 5 * time.Second}, logx.Nop(), nil)
	defer pd.Stop(ctx)
	release := fillPool(t, pd)

	accepted := make(chan bool, 1)
	go func() {
		accepted <- pd.Dispatch(table.Identity{ID: 3, Period: 1}, func(context.Context, table.Identity) {})
	}()
	select {
	case <-accepted:
		t.Fatal("dispatch returned while the queue was full")
	case <-time.After(50 * time.Millisecond):
	}

	release()
	select {
	case ok := <-accepted:
		assert.True(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch did not get queue space")
	}
}

func TestPoolDispatcherGivesUpAfterWait(t *testing.T) {
	ctx := context.Background()
	pd := newPoolDispatcher(ctx, config.PoolSettings{Workers: 1, QueueSize: 1, EnqueueWait: 30 * time.Millisecond}, logx.Nop(), nil)
	defer pd.Stop(ctx)
	release := fillPool(t, pd)
	defer release()

	assert.False(t, pd.Dispatch(table.Identity{ID: 3, Period: 1}, func(context.Context, table.Identity) {}))
}

func TestPoolDispatcherStopIsIdempotent(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	pd := newPoolDispatcher(ctx, config.PoolSettings{Workers: 1}, logx.Nop(), nil)
	require.NoError(t, pd.Stop(ctx))
	require.NoError(t, pd.Stop(ctx))
	assert.False(t, pd.Dispatch(table.Identity{ID: 1, Period: 1}, func(context.Context, table.Identity) {}))
}
