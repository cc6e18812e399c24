package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tasktable/internal/app"
	"tasktable/internal/config"
	"tasktable/internal/storage"
	logx "tasktable/pkg/logx"
)

const defaultConfigPath = "./tasktable.yaml"

func main() {
	var (
		cfgPath string
		envFile string
		demo    bool
		audit   int
	)
	flag.StringVar(&cfgPath, "config", defaultConfigPath, "path to config yaml/json (env TASKTABLE_CONFIG)")
	flag.StringVar(&envFile, "env", ".env", "dotenv file loaded before reading the environment (optional)")
	flag.BoolVar(&demo, "demo", false, "run the reference add/change/remove scenario and exit")
	flag.IntVar(&audit, "audit", 0, "print the last N audit journal entries as JSON lines and exit")
	flag.Parse()

	if err := config.LoadDotenv(envFile); err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}
	ov, err := config.ReadEnv()
	if err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}
	if !flagSet("config") && ov.ConfigPath != "" {
		cfgPath = ov.ConfigPath
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	switch {
	case audit > 0:
		err = runAudit(ctx, cfgPath, ov, audit)
	case demo:
		err = runDemo(ctx, cfgPath, ov)
	default:
		err = runDaemon(ctx, cfgPath, ov)
	}
	if err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}
}

func flagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func runDaemon(ctx context.Context, cfgPath string, ov config.EnvOverrides) error {
	m := config.NewManager(cfgPath)
	m.SetEnv(ov)
	cfg, err := m.Load()
	if err != nil {
		return fmt.Errorf("load %s: %w", m.Path(), err)
	}

	a, err := app.New(ctx, cfg, app.WithManager(m))
	if err != nil {
		return err
	}
	m.SetLogger(a.Logger().With(logx.String("comp", "config")))

	if err := a.Start(ctx); err != nil {
		_ = a.Stop(context.Background(), app.StopFatalError)
		return err
	}

	reason := app.StopSignal
	select {
	case <-ctx.Done():
	case <-a.Done():
		reason = app.StopMaxTicks
	case <-a.Failed():
		reason = app.StopFatalError
	}
	// The clock also stops on ctx, so Done can win the race against a signal.
	if ctx.Err() != nil && reason == app.StopMaxTicks {
		reason = app.StopSignal
	}
	if err := a.Stop(context.Background(), reason); err != nil {
		return err
	}
	return a.Err()
}

// runDemo uses the config file when present (logging, dispatch, storage) and
// ignores its task list.
func runDemo(ctx context.Context, cfgPath string, ov config.EnvOverrides) error {
	cfg := &config.Config{Logging: config.LoggingConfig{Level: "info", Console: true}}
	if _, err := os.Stat(cfgPath); err == nil {
		m := config.NewManager(cfgPath)
		m.SetEnv(ov)
		if cfg, err = m.Load(); err != nil {
			return fmt.Errorf("load %s: %w", cfgPath, err)
		}
	} else if errors.Is(err, fs.ErrNotExist) {
		ov.Apply(cfg)
	} else {
		return err
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	derr := a.RunDemo(ctx, app.DefaultDemoConfig())

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	reason := app.StopDemoDone
	if derr != nil {
		reason = app.StopSignal
	}
	_ = a.Stop(stopCtx, reason)
	if errors.Is(derr, context.Canceled) {
		return nil
	}
	return derr
}

// runAudit dumps the tail of the journal configured under storage.
func runAudit(ctx context.Context, cfgPath string, ov config.EnvOverrides, n int) error {
	m := config.NewManager(cfgPath)
	m.SetEnv(ov)
	cfg, err := m.Load()
	if err != nil {
		return fmt.Errorf("load %s: %w", m.Path(), err)
	}
	st, err := cfg.StorageSettings()
	if err != nil {
		return err
	}
	store, err := storage.Open(storage.Config{Driver: st.Driver, Path: st.Path, BusyTimeout: st.BusyTimeout}, logx.Nop())
	if err != nil {
		return err
	}
	if store == nil {
		return fmt.Errorf("audit journal disabled (storage.driver is %q)", st.Driver)
	}
	defer store.Close()

	entries, err := store.ReadAudit(ctx, n)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return err
		}
	}
	return nil
}
