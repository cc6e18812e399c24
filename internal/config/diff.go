package config

import (
	"reflect"
	"sort"
	"strings"

	logx "tasktable/pkg/logx"
)

// TaskDiff is what it takes to move a table from one task list to another.
type TaskDiff struct {
	// Removed ids are not in the new list.
	Removed []int
	// Added specs are new ids.
	Added []TaskSpec
	// Retimed specs keep their body but change period.
	Retimed []TaskSpec
	// Replaced specs changed message or work; the body must be rebuilt.
	Replaced []TaskSpec
}

func (d TaskDiff) Empty() bool {
	return len(d.Removed) == 0 && len(d.Added) == 0 && len(d.Retimed) == 0 && len(d.Replaced) == 0
}

// DiffTasks compares two task lists by id. All slices are sorted by id.
func DiffTasks(oldSpecs, newSpecs []TaskSpec) TaskDiff {
	oldM := make(map[int]TaskSpec, len(oldSpecs))
	for _, s := range oldSpecs {
		oldM[s.ID] = s
	}
	newM := make(map[int]TaskSpec, len(newSpecs))
	for _, s := range newSpecs {
		newM[s.ID] = s
	}

	var d TaskDiff
	for id := range oldM {
		if _, ok := newM[id]; !ok {
			d.Removed = append(d.Removed, id)
		}
	}
	for id, n := range newM {
		o, ok := oldM[id]
		switch {
		case !ok:
			d.Added = append(d.Added, n)
		case o.Message != n.Message || o.Work != n.Work:
			d.Replaced = append(d.Replaced, n)
		case o.Period != n.Period:
			d.Retimed = append(d.Retimed, n)
		}
	}

	sort.Ints(d.Removed)
	byID := func(s []TaskSpec) {
		sort.Slice(s, func(i, j int) bool { return s[i].ID < s[j].ID })
	}
	byID(d.Added)
	byID(d.Retimed)
	byID(d.Replaced)
	return d
}

// SummarizeConfigChange returns the changed top-level sections and safe
// structured attrs for logging them.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 12)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.Clock != newCfg.Clock {
		changed = append(changed, "clock")
		attrs = append(attrs, logx.String("clock.resolution", strings.TrimSpace(newCfg.Clock.Resolution)))
	}

	if oldCfg.Dispatch != newCfg.Dispatch {
		changed = append(changed, "dispatch")
		attrs = append(attrs,
			logx.String("dispatch.mode", strings.TrimSpace(newCfg.Dispatch.Mode)),
			logx.Int("dispatch.pool.workers", newCfg.Dispatch.Pool.Workers),
		)
	}

	// Nil means disabled.
	var oS, nS StorageConfig
	if oldCfg.Storage != nil {
		oS = *oldCfg.Storage
	}
	if newCfg.Storage != nil {
		nS = *newCfg.Storage
	}
	if oS != nS {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(nS.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(nS.Path) != ""),
		)
	}

	if oldCfg.Systemd.NotifyEnabled() != newCfg.Systemd.NotifyEnabled() {
		changed = append(changed, "systemd")
		attrs = append(attrs, logx.Bool("systemd.notify", newCfg.Systemd.NotifyEnabled()))
	}

	if !reflect.DeepEqual(oldCfg.Tasks, newCfg.Tasks) {
		changed = append(changed, "tasks")
		attrs = append(attrs, logx.Int("tasks.count", len(newCfg.Tasks)))
	}

	sort.Strings(changed)
	return changed, attrs
}
