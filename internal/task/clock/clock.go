// Package clock drives a task table in real time.
//
// A Clock fires on a constant-delay cron schedule and calls OnTick with an
// integer that advances by exactly one per firing. Resolution is whole
// seconds; anything shorter is rounded up to one second.
package clock

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "tasktable/pkg/logx"
)

// Ticker receives clock ticks. *table.Table implements it.
type Ticker interface {
	OnTick(now int64)
}

type Config struct {
	// Resolution is the real time between ticks. Default 1s.
	Resolution time.Duration
	// Start is the value of the first tick. Default 1.
	Start int64
	// MaxTicks stops the clock after that many ticks; 0 runs until Stop.
	MaxTicks int64
}

type Clock struct {
	mu     sync.Mutex
	cfg    Config
	target Ticker
	log    logx.Logger

	c     *cron.Cron
	next  int64
	fired int64
	done  chan struct{}
	once  sync.Once
}

func New(cfg Config, target Ticker, log logx.Logger) *Clock {
	if cfg.Resolution < time.Second {
		cfg.Resolution = time.Second
	}
	if cfg.Start == 0 {
		cfg.Start = 1
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Clock{
		cfg:    cfg,
		target: target,
		log:    log,
		next:   cfg.Start,
		done:   make(chan struct{}),
	}
}

// Start begins ticking and stops the clock for good once ctx is done. It is
// idempotent; a stopped clock cannot be restarted.
func (k *Clock) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if k.c != nil || k.isDone() {
		return
	}
	go func() {
		select {
		case <-ctx.Done():
			k.Stop(context.Background())
		case <-k.done:
		}
	}()
	cl := cronLogger{log: k.log}
	k.c = cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	k.c.Schedule(cron.Every(k.cfg.Resolution), cron.FuncJob(k.step))
	k.c.Start()
	k.log.Info("clock started", logx.Duration("resolution", k.cfg.Resolution), logx.Int64("start", k.next), logx.Int64("max_ticks", k.cfg.MaxTicks))
}

// Stop halts ticking and waits for an in-progress tick until ctx is done.
func (k *Clock) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	k.mu.Lock()
	c := k.c
	k.c = nil
	k.mu.Unlock()

	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
		}
		k.log.Info("clock stopped", logx.Int64("ticks", k.Fired()))
	}
	k.finish()
}

// Run starts the clock and blocks until MaxTicks is reached or ctx is done.
func (k *Clock) Run(ctx context.Context) {
	k.Start(ctx)
	select {
	case <-k.Done():
	case <-ctx.Done():
	}
	k.Stop(context.Background())
}

// Done is closed once the clock has stopped for good.
func (k *Clock) Done() <-chan struct{} { return k.done }

// Current is the value of the most recent tick, or Start-1 before the first.
func (k *Clock) Current() int64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.next - 1
}

// Fired is the number of ticks delivered so far.
func (k *Clock) Fired() int64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.fired
}

// step delivers one tick. Ticks are delivered under the clock mutex, so values
// reach the target strictly increasing even if cron overlaps two firings.
func (k *Clock) step() {
	k.mu.Lock()
	if k.isDone() || (k.cfg.MaxTicks > 0 && k.fired >= k.cfg.MaxTicks) {
		k.mu.Unlock()
		return
	}
	now := k.next
	k.next++
	k.fired++
	reached := k.cfg.MaxTicks > 0 && k.fired >= k.cfg.MaxTicks
	k.target.OnTick(now)
	k.mu.Unlock()

	k.log.Trace("tick", logx.Int64("now", now))
	if reached {
		k.finish()
	}
}

func (k *Clock) finish() {
	k.once.Do(func() { close(k.done) })
}

func (k *Clock) isDone() bool {
	select {
	case <-k.done:
		return true
	default:
		return false
	}
}
