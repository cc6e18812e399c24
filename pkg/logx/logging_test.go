package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "debug").With(String("comp", "table"))

	log.Info("task added", Int("id", 3), Err(errors.New("boom")))

	var m map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &m))
	assert.Equal(t, "task added", m["message"])
	assert.Equal(t, "table", m["comp"])
	assert.EqualValues(t, 3, m["id"])
	assert.Equal(t, "boom", m["err"])
	assert.Equal(t, "info", m["level"])
	assert.True(t, strings.HasPrefix(m["caller"].(string), "logging_test.go:"))
}

func TestLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "warn")

	log.Debug("hidden")
	log.Info("hidden")
	assert.Zero(t, buf.Len())
	assert.False(t, log.Enabled(LevelDebug))
	assert.True(t, log.Enabled(LevelError))

	log.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestZeroLoggerIsNoop(t *testing.T) {
	var log Logger
	assert.True(t, log.IsZero())
	log.Info("nothing happens", String("k", "v"))

	assert.False(t, Nop().IsZero())
	Nop().Error("nothing either")
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want Level
		ok   bool
	}{
		{"", LevelInfo, true},
		{" debug ", LevelDebug, true},
		{"WARNING", LevelWarn, true},
		{"trace", LevelTrace, true},
		{"bogus", LevelInfo, false},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.ok, err == nil, tt.in)
	}
}

func TestServiceApplySwapsLevelForDerivedLoggers(t *testing.T) {
	var buf lockedBuffer
	svc, root := NewService(Config{Level: "info", Console: true, Out: &buf})
	defer svc.Close()
	log := root.With(String("comp", "table"))

	log.Debug("dropped at info")
	assert.NotContains(t, buf.String(), "dropped at info")
	assert.False(t, log.Enabled(LevelTrace))

	require.NoError(t, svc.Apply(Config{Level: "trace", Console: true, Out: &buf}))
	assert.True(t, log.Enabled(LevelTrace))
	log.Debug("visible at trace")
	assert.Contains(t, buf.String(), "visible at trace")
	assert.Contains(t, buf.String(), "comp=table")
}

func TestServiceFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasktable.log")
	svc, log := NewService(Config{Level: "info", File: FileConfig{Enabled: true, Path: path}})
	log.Info("to file", Int("id", 7))
	require.NoError(t, svc.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(b), &m))
	assert.Equal(t, "to file", m["message"])
	assert.EqualValues(t, 7, m["id"])
}

func TestServiceApplyReportsProblems(t *testing.T) {
	var buf lockedBuffer
	svc, _ := NewService(Config{Console: true, Out: &buf})
	defer svc.Close()

	assert.Error(t, svc.Apply(Config{Level: "loud", Console: true, Out: &buf}))

	missing := filepath.Join(t.TempDir(), "no", "such", "dir", "x.log")
	assert.Error(t, svc.Apply(Config{Console: true, Out: &buf, File: FileConfig{Enabled: true, Path: missing}}))
}

type lockedBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (l *lockedBuffer) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.Write(p)
}

func (l *lockedBuffer) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.String()
}
