package table

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"

	"tasktable/internal/runtime/supervisor"
	logx "tasktable/pkg/logx"
)

// Dispatcher starts one execution of fn for id. Dispatch must return without
// waiting for fn; it is called from OnTick outside the table lock. It reports
// false when the run was refused (stopped, queue full, overlap skip); refused
// runs are not published as dispatched.
type Dispatcher interface {
	Dispatch(id Identity, fn Func) bool
}

// DispatcherFunc adapts an ordinary function to Dispatcher.
type DispatcherFunc func(id Identity, fn Func) bool

func (f DispatcherFunc) Dispatch(id Identity, fn Func) bool { return f(id, fn) }

// Spawner runs every dispatch in its own goroutine.
//
// Executions are unbounded: a task whose body outlasts its period will have
// several instances running at once, and nothing limits the total. Use the
// worker-pool dispatcher (internal/task/engine) when that matters.
//
// Panics in a task body are recovered and logged. Stop cancels the context
// handed to running bodies and waits for them until its own context expires.
type Spawner struct {
	mu      sync.RWMutex
	stopped bool

	sup     *supervisor.Supervisor
	log     logx.Logger
	dropped atomic.Uint64
}

func NewSpawner(parent context.Context, log logx.Logger) *Spawner {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Spawner{
		sup: supervisor.New(parent, supervisor.WithLogger(log), supervisor.WithQuiet(true)),
		log: log,
	}
}

func (s *Spawner) Dispatch(id Identity, fn Func) bool {
	if fn == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped {
		s.dropped.Add(1)
		s.log.Warn("task dropped: dispatcher stopped", logx.Int("id", id.ID))
		return false
	}
	s.sup.Go0("task."+strconv.Itoa(id.ID), func(ctx context.Context) {
		fn(ctx, id)
	})
	return true
}

// InFlight is the number of task bodies currently running.
func (s *Spawner) InFlight() int64 { return s.sup.Counters().Active }

// Stats returns best-effort execution counters.
func (s *Spawner) Stats() SpawnerStats {
	c := s.sup.Counters()
	return SpawnerStats{Started: c.Started, InFlight: c.Active, Panics: c.Panics, Dropped: s.dropped.Load()}
}

type SpawnerStats struct {
	Started  uint64
	InFlight int64
	Panics   uint64
	Dropped  uint64
}

// Stop rejects further dispatches, cancels running bodies' context and waits
// for them until ctx is done. Bodies still running after that are abandoned.
func (s *Spawner) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	inflight := s.InFlight()
	// A non-nil error without ctx expiry is a recorded body panic, which was
	// already logged when it happened.
	if err := s.sup.Stop(ctx); err != nil && ctx.Err() != nil {
		s.log.Warn("task drain timed out", logx.Int64("in_flight", s.InFlight()), logx.Any("err", err))
		return err
	}
	s.log.Debug("task drain finished", logx.Int64("drained", inflight))
	return nil
}
