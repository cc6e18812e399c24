package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"tasktable/internal/config"
	"tasktable/internal/console"
	"tasktable/internal/eventbus"
	"tasktable/internal/runtime/supervisor"
	"tasktable/internal/storage"
	"tasktable/internal/task/clock"
	"tasktable/internal/task/table"
	logx "tasktable/pkg/logx"
)

type App struct {
	cfg  *config.Config
	cfgm *config.Manager

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store storage.Store
	rec   *storage.Recorder

	disp    dispatcher
	mode    string
	drain   time.Duration
	table   *table.Table
	clock   *clock.Clock
	printer *console.Printer
	sd      sdNotifier

	sup      *supervisor.Supervisor
	failed   chan struct{}
	stopOnce sync.Once

	// applied mirrors the task specs currently installed in the table.
	mu      sync.Mutex
	applied map[int]config.TaskSpec
}

type Option func(*App)

// WithManager enables hot reload from m.
func WithManager(m *config.Manager) Option { return func(a *App) { a.cfgm = m } }

// WithPrinter replaces the stdout print sink used by task bodies.
func WithPrinter(p *console.Printer) Option { return func(a *App) { a.printer = p } }

// New wires every component from cfg. Nothing runs until Start or RunDemo.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	if err := checkBuild(context.Background(), cfg); err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, applied: make(map[int]config.TaskSpec), failed: make(chan struct{})}
	for _, o := range opts {
		o(a)
	}
	if a.cfgm != nil {
		a.cfgm.SetValidator(checkBuild)
	}
	if a.printer == nil {
		a.printer = console.Default()
	}

	logSvc, log := logx.NewService(logConfig(cfg))
	a.logs = logSvc
	a.log = log.With(logx.String("comp", "app"))
	a.bus = eventbus.New()

	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log)
		if err != nil {
			return nil, err
		}
		a.store = st
		a.rec = storage.NewRecorder(st, a.bus, log)
		a.log.Info("audit journal enabled", logx.String("driver", sc.Driver))
	}

	drain, err := cfg.DrainTimeout()
	if err != nil {
		a.closeStore()
		return nil, err
	}
	a.drain = drain

	disp, mode, err := newDispatcher(ctx, cfg, log, a.bus)
	if err != nil {
		a.closeStore()
		return nil, err
	}
	a.disp = disp
	a.mode = mode

	a.table = table.New(
		table.WithLogger(log.With(logx.String("comp", "table"))),
		table.WithBus(a.bus),
		table.WithDispatcher(disp),
	)

	cs, err := cfg.ClockSettings()
	if err != nil {
		a.closeStore()
		return nil, err
	}
	a.clock = clock.New(clock.Config{Resolution: cs.Resolution, Start: cs.Start, MaxTicks: cs.MaxTicks}, a.table, log.With(logx.String("comp", "clock")))

	a.sd = sdNotifier{enabled: cfg.Systemd.NotifyEnabled(), log: a.log}
	return a, nil
}

// checkBuild rejects configs this binary cannot run, so a reload asking for
// them is refused before commit.
func checkBuild(_ context.Context, cfg *config.Config) error {
	st, err := cfg.StorageSettings()
	if err != nil {
		return err
	}
	if st.Driver == config.StorageSQLite && !storage.SQLiteAvailable {
		return fmt.Errorf("storage.driver: sqlite is not built into this binary (build with -tags sqlite)")
	}
	return nil
}

func logConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File:    logx.FileConfig{Enabled: cfg.Logging.File.Enabled, Path: cfg.Logging.File.Path},
	}
}

func (a *App) Table() *table.Table { return a.table }

func (a *App) Logger() logx.Logger { return a.log }

// Done is closed when the clock stops: clock.max_ticks was reached or the
// context given to Start ended.
func (a *App) Done() <-chan struct{} { return a.clock.Done() }

// Failed is closed when a background loop (config watch, reload, event log)
// panics or returns an error. Err then reports the first such error.
func (a *App) Failed() <-chan struct{} { return a.failed }

func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start installs the configured tasks and starts ticking.
func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	go func(sup *supervisor.Supervisor) {
		<-sup.Context().Done()
		if sup.Err() != nil {
			close(a.failed)
		}
	}(a.sup)
	if a.rec != nil {
		a.rec.Start(ctx)
	}

	if err := a.Reconcile(a.cfg); err != nil {
		a.log.Warn("some configured tasks were not installed", logx.Err(err))
	}

	a.startEventLog()
	if a.cfgm != nil {
		a.startReload()
	}
	a.sup.Go0("systemd.watchdog", a.sd.watchdog)

	a.clock.Start(ctx)
	a.sd.ready()
	a.log.Info("app started", logx.String("dispatch", a.mode), logx.Int("tasks", a.table.Count()))
	return nil
}

func (a *App) startEventLog() {
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				// Debug only; dispatch events fire every tick.
				a.log.Debug("event", logx.String("type", e.Type), logx.Any("data", e.Data))
			}
		}
	})
}

func (a *App) startReload() {
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfg
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						break drain
					}
				}
				a.applyConfig(last, newCfg)
				last = newCfg
			}
		}
	})
	a.sup.Go("config.watch", a.cfgm.Watch)
}

func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}

	for _, s := range sections {
		switch s {
		case "logging":
			if err := a.logs.Apply(logConfig(newCfg)); err != nil {
				a.log.Warn("logging config applied with errors", logx.Err(err))
			}
		case "clock", "dispatch", "storage", "systemd":
			a.log.Warn("config section changed; restart required for changes to take effect", logx.String("section", s))
		}
	}
	if err := a.Reconcile(newCfg); err != nil {
		a.log.Warn("config reload applied with errors", logx.Err(err))
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config applied", fields...)
}

// Stop shuts down in order: clock, background loops, dispatcher drain,
// audit recorder, store. It is safe to call more than once.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	a.stopOnce.Do(func() {
		a.stop(ctx, reason)
	})
	return nil
}

func (a *App) stop(ctx context.Context, reason StopReason) {
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sd.stopping()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		runStopStep(ctx, a.log, name, max, fn)
	}

	step("clock", time.Second, func(c context.Context) error { a.clock.Stop(c); return nil })
	if a.sup != nil {
		a.sup.Cancel()
	}
	step("dispatcher", a.drain, a.disp.Stop)
	step("recorder", 2*time.Second, func(c context.Context) error {
		if a.rec != nil {
			return a.rec.Stop(c)
		}
		return nil
	})
	step("storage", time.Second, func(context.Context) error { return a.closeStore() })
	if a.sup != nil {
		step("supervisor", 2*time.Second, a.sup.Wait)
	}

	a.log.Info("stopped", a.summary()...)
	_ = a.logs.Close()
}

func (a *App) closeStore() error {
	if a.store == nil {
		return nil
	}
	st := a.store
	a.store = nil
	return st.Close()
}

// runStopStep runs one shutdown step bounded by max (never extending ctx's deadline).
// A step that ignores its context is abandoned and logged when it finally returns.
func runStopStep(ctx context.Context, log logx.Logger, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

	stepCtx := ctx
	if max > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, max)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		took := time.Since(start)
		if took >= 500*time.Millisecond {
			log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
		} else {
			log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
		}
	case <-stepCtx.Done():
		log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Err(stepCtx.Err()), logx.Duration("elapsed", time.Since(start)))
		go func() {
			err := <-done
			if err != nil {
				log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err), logx.Duration("took", time.Since(start)))
			}
		}()
	}
}
