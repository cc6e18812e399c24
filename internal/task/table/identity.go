package table

import (
	"context"
	"fmt"
)

// Identity names a registered task. Two identities with the same ID are the
// same task regardless of Period; the table is keyed by ID alone.
type Identity struct {
	ID     int
	Period int // seconds
}

// Due reports whether the task fires at tick now.
func (i Identity) Due(now int64) bool {
	if i.Period <= 0 {
		return false
	}
	return now%int64(i.Period) == 0
}

func (i Identity) String() string {
	return fmt.Sprintf("Task id: %d, Period: %d", i.ID, i.Period)
}

// Func is a task body. It receives the identity it was dispatched under and a
// context owned by the dispatcher; the table itself never cancels it.
type Func func(ctx context.Context, id Identity)
