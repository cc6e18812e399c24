package app

import (
	"errors"
	"fmt"

	"tasktable/internal/config"
	"tasktable/internal/console"
	"tasktable/internal/task/table"
	logx "tasktable/pkg/logx"
)

// Reconcile makes the table match cfg.tasks. Each failing task is logged and
// skipped; the rest are still applied. The joined failures are returned.
func (a *App) Reconcile(cfg *config.Config) error {
	specs, err := cfg.TaskSpecs()
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	current := make([]config.TaskSpec, 0, len(a.applied))
	for _, s := range a.applied {
		current = append(current, s)
	}
	diff := config.DiffTasks(current, specs)
	if diff.Empty() {
		return nil
	}

	var errs []error
	fail := func(err error, s string, id int) {
		a.log.Warn("reconcile step failed", logx.String("step", s), logx.Int("id", id), logx.Int("code", table.Code(err)), logx.Err(err))
		errs = append(errs, err)
	}

	for _, id := range diff.Removed {
		if err := a.table.Remove(id); err != nil && !errors.Is(err, table.ErrTaskNotFound) {
			fail(err, "remove", id)
			continue
		}
		delete(a.applied, id)
	}
	for _, s := range diff.Replaced {
		// A task removed behind reconcile's back is simply installed again.
		if !a.table.Has(s.ID) {
			delete(a.applied, s.ID)
			if err := a.install(s); err != nil {
				fail(err, "replace", s.ID)
			}
			continue
		}
		id := table.Identity{ID: s.ID, Period: s.Period}
		if err := a.table.Replace(id, console.SampleTask(a.printer, s.Message, s.Work)); err != nil {
			fail(err, "replace", s.ID)
			continue
		}
		a.applied[s.ID] = s
	}
	for _, s := range diff.Retimed {
		if err := a.table.ChangeInterval(s.ID, s.Period); err != nil {
			fail(err, "change interval", s.ID)
			continue
		}
		a.applied[s.ID] = s
	}
	for _, s := range diff.Added {
		if err := a.install(s); err != nil {
			fail(err, "add", s.ID)
		}
	}

	a.log.Info("tasks reconciled",
		logx.Int("added", len(diff.Added)),
		logx.Int("removed", len(diff.Removed)),
		logx.Int("retimed", len(diff.Retimed)),
		logx.Int("replaced", len(diff.Replaced)),
		logx.Int("failed", len(errs)),
		logx.Int("tasks", a.table.Count()),
	)
	if len(errs) > 0 {
		return fmt.Errorf("reconcile: %w", errors.Join(errs...))
	}
	return nil
}

// install adds s with the sample body. Caller holds a.mu.
func (a *App) install(s config.TaskSpec) error {
	id := table.Identity{ID: s.ID, Period: s.Period}
	if err := a.table.Add(id, console.SampleTask(a.printer, s.Message, s.Work)); err != nil {
		return err
	}
	a.applied[s.ID] = s
	return nil
}
