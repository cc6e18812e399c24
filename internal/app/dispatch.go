package app

import (
	"context"
	"errors"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"tasktable/internal/config"
	"tasktable/internal/eventbus"
	"tasktable/internal/task/engine"
	"tasktable/internal/task/table"
	logx "tasktable/pkg/logx"
)

// dispatcher is a table.Dispatcher the app can drain on shutdown.
type dispatcher interface {
	table.Dispatcher
	Stop(ctx context.Context) error
}

// poolDispatcher runs table dispatches on the bounded worker pool.
// Drops and overlap skips are reported by the engine itself.
type poolDispatcher struct {
	ctx     context.Context
	eng     *engine.Service
	overlap engine.OverlapPolicy
	wait    time.Duration
	log     logx.Logger

	stoppedWarn rate.Sometimes
}

func newPoolDispatcher(ctx context.Context, ps config.PoolSettings, log logx.Logger, bus eventbus.Bus) *poolDispatcher {
	eng := engine.New(engine.Config{
		Workers:        ps.Workers,
		QueueSize:      ps.QueueSize,
		DefaultTimeout: ps.DefaultTimeout,
		MaxQueueDelay:  ps.MaxQueueDelay,
		HistorySize:    ps.HistorySize,
	}, log.With(logx.String("comp", "taskengine")), bus)
	eng.Start(ctx)

	overlap := engine.OverlapAllow
	if ps.SkipIfRunning {
		overlap = engine.OverlapSkipIfRunning
	}
	return &poolDispatcher{
		ctx:         ctx,
		eng:         eng,
		overlap:     overlap,
		wait:        ps.EnqueueWait,
		log:         log,
		stoppedWarn: rate.Sometimes{Interval: 5 * time.Second},
	}
}

// Dispatch enqueues without blocking, or waits up to enqueue_wait for queue
// space. It reports whether the engine accepted the run.
func (p *poolDispatcher) Dispatch(id table.Identity, fn table.Func) bool {
	if fn == nil {
		return false
	}
	t := engine.Task{
		Name:    "task." + strconv.Itoa(id.ID),
		Ref:     id.ID,
		Overlap: p.overlap,
		Run: func(ctx context.Context) error {
			fn(ctx, id)
			return ctx.Err()
		},
	}

	var err error
	if p.wait > 0 {
		ctx, cancel := context.WithTimeout(p.ctx, p.wait)
		err = p.eng.Submit(ctx, t)
		cancel()
	} else {
		err = p.eng.Enqueue(t)
	}

	switch {
	case err == nil:
		return true
	case errors.Is(err, engine.ErrStopped), errors.Is(err, engine.ErrStopping):
		p.stoppedWarn.Do(func() {
			p.log.Warn("task dropped: dispatcher stopped", logx.Int("id", id.ID))
		})
	case errors.Is(err, context.DeadlineExceeded):
		p.log.Debug("task dropped: no queue space within enqueue_wait", logx.Int("id", id.ID), logx.Duration("wait", p.wait))
	}
	return false
}

func (p *poolDispatcher) Stop(ctx context.Context) error {
	if !p.eng.Running() {
		return nil
	}
	p.eng.Stop(ctx)
	return ctx.Err()
}

func (p *poolDispatcher) Snapshot() engine.Snapshot { return p.eng.Snapshot() }

func newDispatcher(ctx context.Context, cfg *config.Config, log logx.Logger, bus eventbus.Bus) (dispatcher, string, error) {
	mode, err := cfg.DispatchMode()
	if err != nil {
		return nil, "", err
	}
	if mode == config.DispatchPool {
		ps, err := cfg.PoolSettings()
		if err != nil {
			return nil, "", err
		}
		return newPoolDispatcher(ctx, ps, log, bus), mode, nil
	}
	return table.NewSpawner(ctx, log.With(logx.String("comp", "spawner"))), mode, nil
}
