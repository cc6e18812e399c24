package storage

import (
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrClosed   = errors.New("storage closed")
)

// Config configures storage.
//
// Driver values:
//   - "file": JSON Lines file, no extra dependencies
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Audit kinds.
const (
	KindAdded           = "added"
	KindRemoved         = "removed"
	KindIntervalChanged = "interval_changed"
	KindIDChanged       = "id_changed"
	KindReplaced        = "replaced"
	KindDispatched      = "dispatched"
	KindDropped         = "dropped"
	KindSkipped         = "skipped"
	KindFailed          = "failed"
	KindFinished        = "finished"
)

// AuditEntry is one journal record. Keep it compact and schema-stable.
type AuditEntry struct {
	At         time.Time `json:"at"`
	Kind       string    `json:"kind"`
	TaskID     int       `json:"task_id"`
	Period     int       `json:"period,omitempty"`
	PrevID     int       `json:"prev_id,omitempty"`
	PrevPeriod int       `json:"prev_period,omitempty"`
	Tick       int64     `json:"tick,omitempty"`
	Error      string    `json:"error,omitempty"`
}
