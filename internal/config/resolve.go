package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"tasktable/internal/task/period"
	logx "tasktable/pkg/logx"
)

const (
	defaultResolution   = time.Second
	defaultDrainTimeout = 5 * time.Second
	defaultBusyTimeout  = 5 * time.Second
)

// TaskSpec is a validated task declaration.
type TaskSpec struct {
	ID      int
	Period  int
	Message string
	Work    time.Duration
}

// ClockSettings are the resolved clock values.
type ClockSettings struct {
	Resolution time.Duration
	Start      int64
	MaxTicks   int64
}

// PoolSettings are the resolved worker pool values. Zero counts mean "engine default".
type PoolSettings struct {
	Workers        int
	QueueSize      int
	DefaultTimeout time.Duration
	MaxQueueDelay  time.Duration
	HistorySize    int
	SkipIfRunning  bool
	EnqueueWait    time.Duration
}

// StorageSettings are the resolved storage values. Driver is never empty.
type StorageSettings struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration
}

// Validate checks every section and returns all problems joined together.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	if _, err := logx.ParseLevel(cfg.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	if _, err := cfg.ClockSettings(); err != nil {
		errs = append(errs, err)
	}
	if _, err := cfg.DispatchMode(); err != nil {
		errs = append(errs, err)
	}
	if _, err := cfg.DrainTimeout(); err != nil {
		errs = append(errs, err)
	}
	if _, err := cfg.PoolSettings(); err != nil {
		errs = append(errs, err)
	}
	if _, err := cfg.StorageSettings(); err != nil {
		errs = append(errs, err)
	}
	if _, err := cfg.TaskSpecs(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c *Config) ClockSettings() (ClockSettings, error) {
	res, err := secondsField("clock.resolution", c.Clock.Resolution, defaultResolution)
	if err != nil {
		return ClockSettings{}, err
	}
	if c.Clock.MaxTicks < 0 {
		return ClockSettings{}, fmt.Errorf("clock.max_ticks: must be >= 0")
	}
	start := c.Clock.Start
	if start <= 0 {
		start = 1
	}
	return ClockSettings{Resolution: res, Start: start, MaxTicks: c.Clock.MaxTicks}, nil
}

func (c *Config) DispatchMode() (string, error) {
	m := strings.ToLower(strings.TrimSpace(c.Dispatch.Mode))
	switch m {
	case "":
		return DispatchSpawn, nil
	case DispatchSpawn, DispatchPool:
		return m, nil
	default:
		return "", fmt.Errorf("dispatch.mode: unknown mode %q (want %s or %s)", c.Dispatch.Mode, DispatchSpawn, DispatchPool)
	}
}

func (c *Config) DrainTimeout() (time.Duration, error) {
	return durationField("dispatch.drain_timeout", c.Dispatch.DrainTimeout, defaultDrainTimeout)
}

func (c *Config) PoolSettings() (PoolSettings, error) {
	p := c.Dispatch.Pool
	if p.Workers < 0 {
		return PoolSettings{}, fmt.Errorf("dispatch.pool.workers: must be >= 0")
	}
	if p.QueueSize < 0 {
		return PoolSettings{}, fmt.Errorf("dispatch.pool.queue_size: must be >= 0")
	}
	if p.HistorySize < 0 {
		return PoolSettings{}, fmt.Errorf("dispatch.pool.history_size: must be >= 0")
	}
	timeout, err := durationField("dispatch.pool.default_timeout", p.DefaultTimeout, 0)
	if err != nil {
		return PoolSettings{}, err
	}
	delay, err := durationField("dispatch.pool.max_queue_delay", p.MaxQueueDelay, 0)
	if err != nil {
		return PoolSettings{}, err
	}
	wait, err := durationField("dispatch.pool.enqueue_wait", p.EnqueueWait, 0)
	if err != nil {
		return PoolSettings{}, err
	}
	return PoolSettings{
		Workers:        p.Workers,
		QueueSize:      p.QueueSize,
		DefaultTimeout: timeout,
		MaxQueueDelay:  delay,
		HistorySize:    p.HistorySize,
		SkipIfRunning:  p.SkipIfRunning,
		EnqueueWait:    wait,
	}, nil
}

func (c *Config) StorageSettings() (StorageSettings, error) {
	if c.Storage == nil {
		return StorageSettings{Driver: StorageNone}, nil
	}
	driver := strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	path := strings.TrimSpace(c.Storage.Path)
	switch driver {
	case "", StorageNone:
		return StorageSettings{Driver: StorageNone}, nil
	case StorageFile, StorageSQLite:
		if path == "" {
			return StorageSettings{}, fmt.Errorf("storage.path: required for driver %q", driver)
		}
	default:
		return StorageSettings{}, fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver)
	}
	busy, err := durationField("storage.busy_timeout", c.Storage.BusyTimeout, defaultBusyTimeout)
	if err != nil {
		return StorageSettings{}, err
	}
	return StorageSettings{Driver: driver, Path: path, BusyTimeout: busy}, nil
}

// TaskSpecs validates the task list and returns it sorted by id.
func (c *Config) TaskSpecs() ([]TaskSpec, error) {
	out := make([]TaskSpec, 0, len(c.Tasks))
	seen := make(map[int]int, len(c.Tasks))
	var errs []error
	for i, t := range c.Tasks {
		path := fmt.Sprintf("tasks[%d]", i)
		if prev, dup := seen[t.ID]; dup {
			errs = append(errs, fmt.Errorf("%s.id: duplicate id %d (also tasks[%d])", path, t.ID, prev))
			continue
		}
		seen[t.ID] = i

		secs, err := period.Parse(t.Period.String())
		if err != nil {
			errs = append(errs, fmt.Errorf("%s.period: %w", path, err))
			continue
		}
		work, err := durationField(path+".work", t.Work, 0)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, TaskSpec{ID: t.ID, Period: secs, Message: strings.TrimSpace(t.Message), Work: work})
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
