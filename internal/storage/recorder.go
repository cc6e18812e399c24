package storage

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"tasktable/internal/eventbus"
	"tasktable/internal/runtime/supervisor"
	"tasktable/internal/task/engine"
	logx "tasktable/pkg/logx"
)

const (
	recorderBuffer       = 1024
	recorderWriteTimeout = 2 * time.Second
)

// Recorder copies bus events into the audit journal.
type Recorder struct {
	store Store
	bus   eventbus.Bus
	log   logx.Logger

	mu    sync.Mutex
	sup   *supervisor.Supervisor
	unsub func()

	written atomic.Uint64
	failed  atomic.Uint64
}

func NewRecorder(store Store, bus eventbus.Bus, log logx.Logger) *Recorder {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Recorder{store: store, bus: bus, log: log.With(logx.String("comp", "audit"))}
}

// Start subscribes to the bus. It is a no-op without a store or bus, or when already started.
func (r *Recorder) Start(ctx context.Context) {
	if r.store == nil || r.bus == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sup != nil {
		return
	}
	ch, unsub := r.bus.Subscribe(recorderBuffer)
	r.unsub = unsub
	// The loop ends when the subscription is closed, not on ctx, so Stop can flush.
	r.sup = supervisor.New(context.WithoutCancel(ctx), supervisor.WithLogger(r.log))
	r.sup.Go0("audit.recorder", func(context.Context) {
		for ev := range ch {
			r.handle(ev)
		}
	})
}

// Stop unsubscribes and waits until buffered events are written or ctx expires.
func (r *Recorder) Stop(ctx context.Context) error {
	r.mu.Lock()
	sup, unsub := r.sup, r.unsub
	r.sup, r.unsub = nil, nil
	r.mu.Unlock()
	if sup == nil {
		return nil
	}
	unsub()
	err := sup.Wait(ctx)
	r.log.Debug("audit recorder stopped", logx.Uint64("written", r.written.Load()), logx.Uint64("failed", r.failed.Load()))
	return err
}

func (r *Recorder) Written() uint64 { return r.written.Load() }
func (r *Recorder) Failed() uint64  { return r.failed.Load() }

func (r *Recorder) handle(ev eventbus.Event) {
	e, ok := EntryFromEvent(ev)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), recorderWriteTimeout)
	defer cancel()
	if err := r.store.AppendAudit(ctx, e); err != nil {
		if r.failed.Add(1) == 1 {
			r.log.Warn("audit append failed", logx.String("kind", e.Kind), logx.Err(err))
		}
		return
	}
	r.written.Add(1)
}

var eventKinds = map[string]string{
	eventbus.TypeTaskAdded:       KindAdded,
	eventbus.TypeTaskRemoved:     KindRemoved,
	eventbus.TypeIntervalChanged: KindIntervalChanged,
	eventbus.TypeTaskIDChanged:   KindIDChanged,
	eventbus.TypeTaskReplaced:    KindReplaced,
	eventbus.TypeTaskDispatched:  KindDispatched,
	eventbus.TypeTaskDropped:     KindDropped,
	eventbus.TypeTaskSkipped:     KindSkipped,
	eventbus.TypeTaskFailed:      KindFailed,
	eventbus.TypeTaskFinished:    KindFinished,
}

// EntryFromEvent maps a table or pool event to an audit record.
func EntryFromEvent(ev eventbus.Event) (AuditEntry, bool) {
	kind, ok := eventKinds[ev.Type]
	if !ok {
		return AuditEntry{}, false
	}
	at := ev.Time
	if at.IsZero() {
		at = time.Now()
	}
	switch d := ev.Data.(type) {
	case eventbus.TaskEvent:
		return AuditEntry{
			At:         at,
			Kind:       kind,
			TaskID:     d.TaskID,
			Period:     d.Period,
			PrevID:     d.PrevID,
			PrevPeriod: d.PrevPeriod,
			Tick:       d.Tick,
		}, true
	case engine.TaskEvent:
		return AuditEntry{At: at, Kind: kind, TaskID: d.Ref, Error: d.Error}, true
	default:
		return AuditEntry{}, false
	}
}
