package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "mnemo.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, time.Hour, cfg.Scheduler.CycleInterval.Std())
	assert.True(t, cfg.IsDevelopment())
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
environment: production
log_level: warn
storage:
  backend: sqlite
  sqlite_path: /var/lib/mnemo/mnemo.db
embedding:
  provider: http
  endpoint: http://embedder:11434
  timeout: 45s
scheduler:
  cycle_interval: 15m
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, "/var/lib/mnemo/mnemo.db", cfg.Storage.SQLitePath)
	assert.Equal(t, 45*time.Second, cfg.Embedding.Timeout.Std())
	assert.Equal(t, 15*time.Minute, cfg.Scheduler.CycleInterval.Std())

	// untouched sections keep their defaults
	assert.Equal(t, "log", cfg.Messaging.Sink)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown environment", "environment: flaky"},
		{"unknown backend", "storage:\n  backend: etcd"},
		{"sqlite without path", "storage:\n  backend: sqlite\n  sqlite_path: \"\""},
		{"bad duration", "scheduler:\n  cycle_interval: soon"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, t.TempDir(), tt.body)
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MNEMO_LOG_LEVEL", "debug")
	t.Setenv("MNEMO_STORAGE_BACKEND", "sqlite")
	t.Setenv("MNEMO_SQLITE_PATH", "override.db")
	t.Setenv("MNEMO_CYCLE_INTERVAL", "5m")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, "override.db", cfg.Storage.SQLitePath)
	assert.Equal(t, 5*time.Minute, cfg.Scheduler.CycleInterval.Std())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestDomainConfigFollowsEnvironment(t *testing.T) {
	cfg := Default()
	cfg.Environment = "production"
	dc := cfg.DomainConfig()
	require.NotNil(t, dc)
	require.NoError(t, dc.Validate())
}

func TestWatcherReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "log_level: info")

	initial, err := Load(path)
	require.NoError(t, err)

	w := NewWatcher(path, initial, zap.NewNop())
	changed := make(chan *Config, 1)
	w.OnChange(func(c *Config) {
		select {
		case changed <- c:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Watch(ctx) }()

	// give the watcher time to register before writing
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("log_level: error"), 0o600))

	select {
	case cfg := <-changed:
		assert.Equal(t, "error", cfg.LogLevel)
		assert.Equal(t, "error", w.Current().LogLevel)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not observe the change")
	}
}

func TestWatcherKeepsSnapshotOnBadReload(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "log_level: info")

	initial, err := Load(path)
	require.NoError(t, err)

	w := NewWatcher(path, initial, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Watch(ctx) }()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("log_level: shouting"), 0o600))

	time.Sleep(500 * time.Millisecond)
	assert.Equal(t, "info", w.Current().LogLevel)
}
