package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Dispatch modes.
const (
	DispatchSpawn = "spawn"
	DispatchPool  = "pool"
)

// Storage drivers.
const (
	StorageNone   = "none"
	StorageFile   = "file"
	StorageSQLite = "sqlite"
)

type Config struct {
	Logging  LoggingConfig  `json:"logging"`
	Clock    ClockConfig    `json:"clock"`
	Dispatch DispatchConfig `json:"dispatch"`
	Storage  *StorageConfig `json:"storage,omitempty"`
	Systemd  SystemdConfig  `json:"systemd"`
	Tasks    []TaskConfig   `json:"tasks"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// ClockConfig controls the real-time tick source.
//
// Resolution is a Go duration string; anything below one second is raised to 1s.
// MaxTicks 0 means run until shutdown.
type ClockConfig struct {
	Resolution string `json:"resolution,omitempty"`
	Start      int64  `json:"start,omitempty"`
	MaxTicks   int64  `json:"max_ticks,omitempty"`
}

// DispatchConfig selects how due tasks are executed.
//
// Defaults (when fields are omitted/zero):
//   - mode: "spawn" (one goroutine per execution, unbounded)
//   - drain_timeout: "5s"
type DispatchConfig struct {
	Mode         string     `json:"mode,omitempty"`
	DrainTimeout string     `json:"drain_timeout,omitempty"`
	Pool         PoolConfig `json:"pool"`
}

// PoolConfig is only used when dispatch.mode is "pool".
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type PoolConfig struct {
	Workers   int `json:"workers,omitempty"`
	QueueSize int `json:"queue_size,omitempty"`

	// DefaultTimeout bounds a single execution. "0s" disables it.
	DefaultTimeout string `json:"default_timeout,omitempty"`

	// MaxQueueDelay drops executions that waited in the queue longer than this.
	MaxQueueDelay string `json:"max_queue_delay,omitempty"`

	HistorySize   int  `json:"history_size,omitempty"`
	SkipIfRunning bool `json:"skip_if_running,omitempty"`

	// EnqueueWait lets a tick wait this long for queue space before the run
	// is dropped. Empty or "0s" never waits. Keep it well below clock.resolution.
	EnqueueWait string `json:"enqueue_wait,omitempty"`
}

// StorageConfig controls the audit journal.
//
// Example:
//
//	storage: { driver: file, path: ./tasktable_audit }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

type SystemdConfig struct {
	// Notify is a pointer so an omitted key keeps the default (on).
	Notify *bool `json:"notify,omitempty"`
}

func (s SystemdConfig) NotifyEnabled() bool {
	return s.Notify == nil || *s.Notify
}

// TaskConfig declares one periodic task.
type TaskConfig struct {
	ID      int         `json:"id"`
	Period  PeriodValue `json:"period"`
	Message string      `json:"message,omitempty"`
	// Work is how long the sample body runs (Go duration string).
	Work string `json:"work,omitempty"`
}

// PeriodValue accepts both `period: 3` and `period: "1m"`.
type PeriodValue string

func (p *PeriodValue) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*p = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*p = PeriodValue(s)
		return nil
	}
	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&n); err != nil {
		return fmt.Errorf("period must be a number or string: %w", err)
	}
	*p = PeriodValue(n.String())
	return nil
}

func (p PeriodValue) String() string { return strings.TrimSpace(string(p)) }
