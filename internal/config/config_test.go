package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
logging: { level: debug, console: true }
clock: { resolution: 2s, start: 5, max_ticks: 10 }
dispatch:
  mode: pool
  drain_timeout: 3s
  pool: { workers: 4, queue_size: 16, default_timeout: 1s, skip_if_running: true }
storage: { driver: file, path: ./audit }
systemd: { notify: false }
tasks:
  - { id: 1, period: 3, message: backup, work: 3s }
  - { id: 2, period: "1m", message: rotate }
  - { id: 3, period: "every:00:02" }
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestLoadYAML(t *testing.T) {
	m := NewManager(writeFile(t, "tasktable.yaml", sampleYAML))
	cfg, err := m.Load()
	require.NoError(t, err)
	clk, err := cfg.ClockSettings()
	require.NoError(t, err)
	assert.Equal(t, ClockSettings{Resolution: 2 * time.Second, Start: 5, MaxTicks: 10}, clk)

	mode, err := cfg.DispatchMode()
	require.NoError(t, err)
	assert.Equal(t, DispatchPool, mode)

	drain, err := cfg.DrainTimeout()
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, drain)

	pool, err := cfg.PoolSettings()
	require.NoError(t, err)
	assert.Equal(t, 4, pool.Workers)
	assert.Equal(t, time.Second, pool.DefaultTimeout)
	assert.True(t, pool.SkipIfRunning)

	st, err := cfg.StorageSettings()
	require.NoError(t, err)
	assert.Equal(t, StorageFile, st.Driver)
	assert.Equal(t, defaultBusyTimeout, st.BusyTimeout)

	assert.False(t, cfg.Systemd.NotifyEnabled())

	specs, err := cfg.TaskSpecs()
	require.NoError(t, err)
	assert.Equal(t, []TaskSpec{
		{ID: 1, Period: 3, Message: "backup", Work: 3 * time.Second},
		{ID: 2, Period: 60, Message: "rotate"},
		{ID: 3, Period: 120},
	}, specs)
}

func TestLoadJSON(t *testing.T) {
	m := NewManager(writeFile(t, "tasktable.json", `{"tasks":[{"id":7,"period":"5"}]}`))
	cfg, err := m.Load()
	require.NoError(t, err)

	mode, _ := cfg.DispatchMode()
	assert.Equal(t, DispatchSpawn, mode)
	st, _ := cfg.StorageSettings()
	assert.Equal(t, StorageNone, st.Driver)
	assert.True(t, cfg.Systemd.NotifyEnabled())

	specs, err := cfg.TaskSpecs()
	require.NoError(t, err)
	assert.Equal(t, []TaskSpec{{ID: 7, Period: 5}}, specs)
}

func TestDecodeRejectsUnknownKeys(t *testing.T) {
	_, err := Decode("x.yaml", []byte("clock: { resolution: 1s, tz: UTC }\n"))
	assert.Error(t, err)

	_, err = Decode("x.json", []byte(`{"tasks":[]} {"tasks":[]}`))
	assert.Error(t, err)
}

func TestValidateReportsPaths(t *testing.T) {
	cfg := &Config{
		Clock:    ClockConfig{Resolution: "soon"},
		Dispatch: DispatchConfig{Mode: "threads"},
		Storage:  &StorageConfig{Driver: "file"},
		Tasks: []TaskConfig{
			{ID: 1, Period: "0"},
			{ID: 2, Period: "3", Work: "-1s"},
			{ID: 2, Period: "3"},
		},
	}
	err := Validate(cfg)
	require.Error(t, err)
	msg := err.Error()
	for _, want := range []string{
		"clock.resolution",
		"dispatch.mode",
		"storage.path",
		"tasks[0].period",
		"tasks[1].work",
		"tasks[2].id",
	} {
		assert.Contains(t, msg, want)
	}
}

func TestResolutionIsWholeSeconds(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw  string
		want time.Duration
	}{
		{"", time.Second},
		{"100ms", time.Second},
		{"1500ms", 2 * time.Second},
		{"3", 3 * time.Second},
		{"1m", time.Minute},
	}
	for _, tt := range tests {
		cfg := &Config{Clock: ClockConfig{Resolution: tt.raw}}
		clk, err := cfg.ClockSettings()
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.want, clk.Resolution, tt.raw)
		assert.EqualValues(t, 1, clk.Start)
	}
}

func TestDurationFields(t *testing.T) {
	t.Parallel()
	d, err := durationField("x", "7", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 7*time.Second, d)

	d, err = durationField("x", "0s", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, d)

	_, err = durationField("dispatch.drain_timeout", "-2", 0)
	assert.ErrorContains(t, err, "dispatch.drain_timeout")

	_, err = durationField("x", "later", 0)
	assert.Error(t, err)
}

func TestDecodeEmptyDocuments(t *testing.T) {
	t.Parallel()
	for _, path := range []string{"empty.yaml", "empty.json"} {
		cfg, err := Decode(path, nil)
		require.NoError(t, err, path)
		assert.Empty(t, cfg.Tasks)
	}
}

func TestValidateRejectsUnknownLogLevel(t *testing.T) {
	err := Validate(&Config{Logging: LoggingConfig{Level: "chatty"}})
	assert.ErrorContains(t, err, "logging.level")
	assert.NoError(t, Validate(&Config{Logging: LoggingConfig{Level: "WARN"}}))
}

func TestEnvOverrides(t *testing.T) {
	ov, err := ReadEnvFrom(map[string]string{
		"TASKTABLE_LOG_LEVEL":      "warn",
		"TASKTABLE_DISPATCH_MODE":  "pool",
		"TASKTABLE_STORAGE_DRIVER": "file",
		"TASKTABLE_STORAGE_PATH":   "/tmp/audit",
	})
	require.NoError(t, err)
	require.False(t, ov.IsZero())

	cfg := &Config{Logging: LoggingConfig{Level: "info"}}
	ov.Apply(cfg)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "pool", cfg.Dispatch.Mode)
	require.NotNil(t, cfg.Storage)
	assert.Equal(t, StorageConfig{Driver: "file", Path: "/tmp/audit"}, *cfg.Storage)
}

func TestManagerAppliesEnvOnParse(t *testing.T) {
	m := NewManager(writeFile(t, "tasktable.yaml", "logging: { level: info }\n"))
	m.SetEnv(EnvOverrides{LogLevel: "error"})
	cfg, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Logging.Level)
}

func TestLoadDotenvSkipsMissing(t *testing.T) {
	assert.NoError(t, LoadDotenv(filepath.Join(t.TempDir(), "missing.env"), ""))

	p := writeFile(t, "test.env", "TASKTABLE_TEST_DOTENV=loaded\n")
	t.Setenv("TASKTABLE_TEST_DOTENV", "")
	require.NoError(t, os.Unsetenv("TASKTABLE_TEST_DOTENV"))
	require.NoError(t, LoadDotenv(p))
	assert.Equal(t, "loaded", os.Getenv("TASKTABLE_TEST_DOTENV"))
}

func TestValidatorRejects(t *testing.T) {
	m := NewManager(writeFile(t, "tasktable.yaml", "tasks: [{ id: 1, period: 3 }]\n"))
	m.SetValidator(func(ctx context.Context, cfg *Config) error {
		return assert.AnError
	})
	_, err := m.Load()
	assert.ErrorIs(t, err, assert.AnError)
}

func TestWatchPublishesReload(t *testing.T) {
	path := writeFile(t, "tasktable.yaml", "tasks: [{ id: 1, period: 3 }]\n")
	m := NewManager(path)
	_, err := m.Load()
	require.NoError(t, err)

	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Watch(ctx) }()
	// Give the watcher a moment to register the directory.
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("tasks: [{ id: 1, period: 4 }]\n"), 0o600))

	select {
	case cfg := <-ch:
		specs, err := cfg.TaskSpecs()
		require.NoError(t, err)
		assert.Equal(t, 4, specs[0].Period)
	case <-time.After(3 * time.Second):
		t.Fatal("no reload published")
	}
}

func TestDiffTasks(t *testing.T) {
	oldSpecs := []TaskSpec{
		{ID: 1, Period: 3, Message: "a"},
		{ID: 2, Period: 5, Message: "b"},
		{ID: 3, Period: 3, Message: "c"},
		{ID: 4, Period: 9, Message: "d"},
	}
	newSpecs := []TaskSpec{
		{ID: 1, Period: 3, Message: "a"},
		{ID: 2, Period: 10, Message: "b"},
		{ID: 3, Period: 3, Message: "changed"},
		{ID: 5, Period: 2},
	}
	d := DiffTasks(oldSpecs, newSpecs)
	assert.Equal(t, []int{4}, d.Removed)
	assert.Equal(t, []TaskSpec{{ID: 5, Period: 2}}, d.Added)
	assert.Equal(t, []TaskSpec{{ID: 2, Period: 10, Message: "b"}}, d.Retimed)
	assert.Equal(t, []TaskSpec{{ID: 3, Period: 3, Message: "changed"}}, d.Replaced)
	assert.False(t, d.Empty())

	assert.True(t, DiffTasks(oldSpecs, oldSpecs).Empty())
}

func TestSummarizeConfigChange(t *testing.T) {
	a := &Config{Tasks: []TaskConfig{{ID: 1, Period: "3"}}}
	b := &Config{Tasks: []TaskConfig{{ID: 1, Period: "4"}}, Dispatch: DispatchConfig{Mode: "pool"}}
	changed, attrs := SummarizeConfigChange(a, b)
	assert.Equal(t, []string{"dispatch", "tasks"}, changed)
	assert.NotEmpty(t, attrs)

	changed, _ = SummarizeConfigChange(a, a)
	assert.Empty(t, changed)
}
