package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event types published by the task table and dispatchers.
const (
	TypeTaskAdded       = "table.added"
	TypeTaskRemoved     = "table.removed"
	TypeIntervalChanged = "table.interval_changed"
	TypeTaskIDChanged   = "table.id_changed"
	TypeTaskReplaced    = "table.replaced"
	TypeTaskDispatched  = "task.dispatched"
	TypeTaskDropped     = "task.dropped"
	TypeTaskSkipped     = "task.skipped"
	TypeTaskFailed      = "task.failed"
	TypeTaskFinished    = "task.finished"
)

// Event is a lightweight, in-memory signal used to decouple components.
//
// Contract:
//   - Publish MUST be non-blocking.
//   - Subscribers MUST use buffered channels.
//   - Slow subscribers may drop events (bounded backpressure).
type Event struct {
	Type string
	Time time.Time
	Data any
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns a simple in-memory fanout bus. It owns no goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

type memBus struct {
	mu      sync.RWMutex
	subs    map[uint64]chan Event
	seq     atomic.Uint64
	dropped atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// Sends happen under the read lock; unsubscribe takes the write lock
	// before closing, so a send never hits a closed channel.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			close(ch)
			b.mu.Unlock()
		})
	}
	return ch, unsub
}

// Dropped reports how many deliveries were dropped because a subscriber was full.
// Returns 0 for buses not created by New.
func Dropped(b Bus) uint64 {
	if mb, ok := b.(*memBus); ok {
		return mb.dropped.Load()
	}
	return 0
}

// TaskEvent is the payload of table.* and task.dispatched events.
type TaskEvent struct {
	TaskID     int   `json:"task_id"`
	Period     int   `json:"period"`
	PrevID     int   `json:"prev_id,omitempty"`
	PrevPeriod int   `json:"prev_period,omitempty"`
	Tick       int64 `json:"tick,omitempty"`
}
