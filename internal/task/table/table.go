package table

import (
	"context"
	"sort"
	"sync"
	"time"

	"tasktable/internal/eventbus"
	logx "tasktable/pkg/logx"
)

type entry struct {
	id Identity
	fn Func
}

// Table is a concurrency-safe registry of periodic tasks.
// The zero value is not usable; create one with New.
type Table struct {
	mu      sync.Mutex
	entries map[int]entry

	dispatcher Dispatcher
	log        logx.Logger
	bus        eventbus.Bus
}

type Option func(*Table)

func WithLogger(log logx.Logger) Option { return func(t *Table) { t.log = log } }

// WithBus publishes mutations and dispatches on b.
func WithBus(b eventbus.Bus) Option { return func(t *Table) { t.bus = b } }

// WithDispatcher replaces the default goroutine-per-dispatch Spawner.
func WithDispatcher(d Dispatcher) Option { return func(t *Table) { t.dispatcher = d } }

func New(opts ...Option) *Table {
	t := &Table{entries: make(map[int]entry)}
	for _, o := range opts {
		o(t)
	}
	if t.log.IsZero() {
		t.log = logx.Nop()
	}
	if t.dispatcher == nil {
		t.dispatcher = NewSpawner(context.Background(), t.log)
	}
	return t
}

// Add registers fn under id. It fails with ErrDuplicateTask if id.ID is
// already present, leaving the existing entry untouched.
func (t *Table) Add(id Identity, fn Func) error {
	if fn == nil {
		return &Error{Op: OpAdd, ID: id.ID, Code: CodeNilFunc, Err: ErrNilFunc}
	}
	if id.Period <= 0 {
		return &Error{Op: OpAdd, ID: id.ID, Code: CodeInvalidInterval, Err: ErrInvalidInterval}
	}

	t.mu.Lock()
	if _, ok := t.entries[id.ID]; ok {
		t.mu.Unlock()
		return &Error{Op: OpAdd, ID: id.ID, Code: CodeDuplicate, Err: ErrDuplicateTask}
	}
	t.entries[id.ID] = entry{id: id, fn: fn}
	n := len(t.entries)
	t.mu.Unlock()

	t.log.Debug("task added", logx.Int("id", id.ID), logx.Int("period", id.Period), logx.Int("tasks", n))
	t.publish(eventbus.TypeTaskAdded, eventbus.TaskEvent{TaskID: id.ID, Period: id.Period})
	return nil
}

func (t *Table) Remove(id int) error {
	t.mu.Lock()
	e, ok := t.entries[id]
	if !ok {
		t.mu.Unlock()
		return notFound(OpRemove, id, CodeRemove)
	}
	delete(t.entries, id)
	n := len(t.entries)
	t.mu.Unlock()

	t.log.Debug("task removed", logx.Int("id", id), logx.Int("tasks", n))
	t.publish(eventbus.TypeTaskRemoved, eventbus.TaskEvent{TaskID: id, Period: e.id.Period})
	return nil
}

// ChangeInterval sets a new period for id, keeping its body. The next OnTick
// already uses the new period.
func (t *Table) ChangeInterval(id int, period int) error {
	if period <= 0 {
		return &Error{Op: OpChangeInterval, ID: id, Code: CodeInvalidInterval, Err: ErrInvalidInterval}
	}

	t.mu.Lock()
	e, ok := t.entries[id]
	if !ok {
		t.mu.Unlock()
		return notFound(OpChangeInterval, id, CodeChangeInterval)
	}
	prev := e.id.Period
	e.id.Period = period
	t.entries[id] = e
	t.mu.Unlock()

	t.log.Debug("task interval changed", logx.Int("id", id), logx.Int("from", prev), logx.Int("to", period))
	t.publish(eventbus.TypeIntervalChanged, eventbus.TaskEvent{TaskID: id, Period: period, PrevID: id, PrevPeriod: prev})
	return nil
}

// ChangeTaskID re-keys the task registered as oldID to newID, keeping period
// and body. Re-keying onto an id that is already registered fails with
// ErrDuplicateTask and changes nothing.
func (t *Table) ChangeTaskID(oldID, newID int) error {
	t.mu.Lock()
	e, ok := t.entries[oldID]
	if !ok {
		t.mu.Unlock()
		return notFound(OpChangeTaskID, oldID, CodeChangeTaskID)
	}
	if oldID == newID {
		t.mu.Unlock()
		return nil
	}
	if _, taken := t.entries[newID]; taken {
		t.mu.Unlock()
		return &Error{Op: OpChangeTaskID, ID: newID, Code: CodeDuplicate, Err: ErrDuplicateTask}
	}
	delete(t.entries, oldID)
	e.id.ID = newID
	t.entries[newID] = e
	t.mu.Unlock()

	t.log.Debug("task id changed", logx.Int("from", oldID), logx.Int("to", newID), logx.Int("period", e.id.Period))
	t.publish(eventbus.TypeTaskIDChanged, eventbus.TaskEvent{TaskID: newID, Period: e.id.Period, PrevID: oldID, PrevPeriod: e.id.Period})
	return nil
}

// Replace swaps the period and body of id in one step, so no tick observes
// the task missing. It fails with ErrTaskNotFound if id is absent.
func (t *Table) Replace(id Identity, fn Func) error {
	if fn == nil {
		return &Error{Op: OpReplace, ID: id.ID, Code: CodeNilFunc, Err: ErrNilFunc}
	}
	if id.Period <= 0 {
		return &Error{Op: OpReplace, ID: id.ID, Code: CodeInvalidInterval, Err: ErrInvalidInterval}
	}

	t.mu.Lock()
	e, ok := t.entries[id.ID]
	if !ok {
		t.mu.Unlock()
		return notFound(OpReplace, id.ID, CodeReplace)
	}
	prev := e.id.Period
	t.entries[id.ID] = entry{id: id, fn: fn}
	t.mu.Unlock()

	t.log.Debug("task replaced", logx.Int("id", id.ID), logx.Int("from", prev), logx.Int("to", id.Period))
	t.publish(eventbus.TypeTaskReplaced, eventbus.TaskEvent{TaskID: id.ID, Period: id.Period, PrevID: id.ID, PrevPeriod: prev})
	return nil
}

func (t *Table) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Interval returns the period of id in seconds.
func (t *Table) Interval(id int) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	if !ok {
		return 0, notFound(OpInterval, id, CodeIntervalQuery)
	}
	return e.id.Period, nil
}

func (t *Table) Has(id int) bool {
	t.mu.Lock()
	_, ok := t.entries[id]
	t.mu.Unlock()
	return ok
}

// Tasks returns the registered identities ordered by id.
func (t *Table) Tasks() []Identity {
	t.mu.Lock()
	out := make([]Identity, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e.id)
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// OnTick dispatches every task whose period divides now. The set of due
// tasks is taken under the table lock; dispatch happens after the lock is
// released and does not wait for the tasks to run.
func (t *Table) OnTick(now int64) {
	var due []entry

	t.mu.Lock()
	for _, e := range t.entries {
		if e.id.Due(now) {
			due = append(due, e)
		}
	}
	d := t.dispatcher
	t.mu.Unlock()

	if len(due) == 0 {
		return
	}
	at := time.Now()
	trace := t.log.Enabled(logx.LevelTrace)
	accepted := 0
	for _, e := range due {
		if !d.Dispatch(e.id, e.fn) {
			// The dispatcher logs and publishes its own refusal.
			continue
		}
		accepted++
		if trace {
			t.log.Trace("task dispatched", logx.Int("id", e.id.ID), logx.Int("period", e.id.Period), logx.Int64("tick", now))
		}
		t.publishAt(at, eventbus.TypeTaskDispatched, eventbus.TaskEvent{TaskID: e.id.ID, Period: e.id.Period, Tick: now})
	}
	t.log.Debug("tick dispatched", logx.Int64("tick", now), logx.Int("due", len(due)), logx.Int("accepted", accepted))
}

func (t *Table) publish(typ string, data eventbus.TaskEvent) {
	t.publishAt(time.Now(), typ, data)
}

func (t *Table) publishAt(at time.Time, typ string, data eventbus.TaskEvent) {
	if t.bus == nil {
		return
	}
	t.bus.Publish(eventbus.Event{Type: typ, Time: at, Data: data})
}
