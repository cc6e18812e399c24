package app

import (
	"tasktable/internal/eventbus"
	"tasktable/internal/task/table"
	logx "tasktable/pkg/logx"
)

// summary is logged once on shutdown.
func (a *App) summary() []logx.Field {
	fields := []logx.Field{
		logx.String("dispatch", a.mode),
		logx.Int("tasks", a.table.Count()),
		logx.Int64("last_tick", a.clock.Current()),
		logx.Uint64("bus_dropped", eventbus.Dropped(a.bus)),
	}
	switch d := a.disp.(type) {
	case *table.Spawner:
		st := d.Stats()
		fields = append(fields,
			logx.Uint64("dispatch_started", st.Started),
			logx.Uint64("dispatch_panics", st.Panics),
			logx.Uint64("dispatch_dropped", st.Dropped),
			logx.Int64("dispatch_abandoned", st.InFlight),
		)
	case *poolDispatcher:
		sn := d.Snapshot()
		fields = append(fields,
			logx.Int("dispatch_history", len(sn.History)),
			logx.Uint64("dispatch_dropped", sn.Dropped),
			logx.Uint64("dispatch_skipped", sn.Skipped),
		)
	}
	if a.rec != nil {
		fields = append(fields,
			logx.Uint64("audit_written", a.rec.Written()),
			logx.Uint64("audit_failed", a.rec.Failed()),
		)
	}
	return fields
}
