package app

import (
	"context"
	"time"

	"tasktable/internal/console"
	"tasktable/internal/task/clock"
	"tasktable/internal/task/table"
	logx "tasktable/pkg/logx"
)

// DemoConfig tunes the reference scenario.
type DemoConfig struct {
	// TickEvery is the real-time spacing of ticks. 0 ticks as fast as possible.
	TickEvery time.Duration
	// Ticks per phase; the clock runs 1..Ticks each phase.
	Ticks int64
	// Work is how long each sample body runs.
	Work time.Duration
}

func DefaultDemoConfig() DemoConfig {
	return DemoConfig{TickEvery: time.Second, Ticks: 18, Work: 3 * time.Second}
}

// RunDemo drives the table through the reference scenario:
//
//  1. add 1(p3), 2(p5), 3(p3), then 2(p3) which fails as a duplicate; tick 1..N
//  2. change intervals 1→7, 2→2, 2→10, 5→10; the last fails and ends the batch; tick 1..N
//  3. remove 2; tick 1..N
//
// Errors are printed with their code and the scenario continues.
func (a *App) RunDemo(ctx context.Context, dc DemoConfig) error {
	if dc.Ticks <= 0 {
		dc.Ticks = 18
	}
	if a.rec != nil {
		a.rec.Start(ctx)
	}
	p := a.printer
	body := console.SampleTask(p, "", dc.Work)

	for _, id := range []table.Identity{{ID: 1, Period: 3}, {ID: 2, Period: 5}, {ID: 3, Period: 3}, {ID: 2, Period: 3}} {
		if err := a.table.Add(id, body); err != nil {
			printErr(p, err)
		}
	}
	if err := a.tickPhase(ctx, dc); err != nil {
		return err
	}

	changes := []struct{ id, period int }{{1, 7}, {2, 2}, {2, 10}, {5, 10}}
	for _, c := range changes {
		if err := a.table.ChangeInterval(c.id, c.period); err != nil {
			printErr(p, err)
			break
		}
	}
	if err := a.tickPhase(ctx, dc); err != nil {
		return err
	}

	period, _ := a.table.Interval(2)
	if err := a.table.Remove(2); err != nil {
		printErr(p, err)
	} else {
		p.Printf("Removed Task: Task info: %s", table.Identity{ID: 2, Period: period})
	}
	return a.tickPhase(ctx, dc)
}

func printErr(p *console.Printer, err error) {
	p.Printf("%v Error code: %d", err, table.Code(err))
}

func (a *App) tickPhase(ctx context.Context, dc DemoConfig) error {
	a.log.Debug("demo phase", logx.Int("tasks", a.table.Count()), logx.Int64("ticks", dc.Ticks))
	if dc.TickEvery <= 0 {
		for now := int64(1); now <= dc.Ticks; now++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			a.table.OnTick(now)
		}
		return nil
	}
	k := clock.New(clock.Config{Resolution: dc.TickEvery, Start: 1, MaxTicks: dc.Ticks}, a.table, a.log.With(logx.String("comp", "clock")))
	k.Run(ctx)
	return ctx.Err()
}
