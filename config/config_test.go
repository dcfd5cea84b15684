package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdirTemp runs the test from an empty directory so that no stray .env file
// leaks into Load.
func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(wd) })
	return dir
}

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.True(t, cfg.JournalEnabled())
}

func TestLoadYAML(t *testing.T) {
	dir := chdirTemp(t)
	t.Setenv("TEST_JOURNAL", filepath.Join(dir, "journal.db"))

	path := writeTempFile(t, dir, "nickchat.yaml", `
addr: 127.0.0.1:9000
websocket_addr: 127.0.0.1:9001
journal_path: ${TEST_JOURNAL}
max_users: 5
idle_timeout: 2m
write_timeout: 5s
outbox_size: 16
log_format: json
log_level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.Addr)
	assert.Equal(t, "127.0.0.1:9001", cfg.WebSocketAddr)
	assert.Equal(t, filepath.Join(dir, "journal.db"), cfg.JournalPath)
	assert.Equal(t, 5, cfg.MaxUsers)
	assert.Equal(t, 2*time.Minute, cfg.IdleTimeout)
	assert.Equal(t, 5*time.Second, cfg.WriteTimeout)
	assert.Equal(t, 16, cfg.OutboxSize)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/tmp/nickchat.sock", cfg.ControlSocket, "unset keys keep defaults")
}

func TestEnvOverridesYAML(t *testing.T) {
	dir := chdirTemp(t)
	path := writeTempFile(t, dir, "nickchat.yaml", "addr: :7000\nmax_users: 5\n")

	t.Setenv("NICKCHAT_ADDR", ":7100")
	t.Setenv("NICKCHAT_MAX_USERS", "0")
	t.Setenv("NICKCHAT_JOURNAL_PATH", JournalOff)
	t.Setenv("NICKCHAT_WRITE_TIMEOUT", "1s")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7100", cfg.Addr)
	assert.Equal(t, 0, cfg.MaxUsers)
	assert.Equal(t, time.Second, cfg.WriteTimeout)
	assert.False(t, cfg.JournalEnabled())
}

func TestDotEnv(t *testing.T) {
	dir := chdirTemp(t)
	writeTempFile(t, dir, ".env", "NICKCHAT_OUTBOX_SIZE=64\n")
	t.Cleanup(func() { os.Unsetenv("NICKCHAT_OUTBOX_SIZE") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.OutboxSize)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		env  map[string]string
	}{
		{name: "bad yaml", yaml: "addr: [unterminated"},
		{name: "bad int env", env: map[string]string{"NICKCHAT_MAX_USERS": "many"}},
		{name: "bad duration env", env: map[string]string{"NICKCHAT_IDLE_TIMEOUT": "soon"}},
		{name: "negative max users", yaml: "max_users: -1"},
		{name: "zero outbox", yaml: "outbox_size: 0"},
		{name: "unknown log format", yaml: "log_format: xml"},
		{name: "empty addr", yaml: "addr: \"\""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := chdirTemp(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := ""
			if tt.yaml != "" {
				path = writeTempFile(t, dir, "nickchat.yaml", tt.yaml)
			}
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	chdirTemp(t)
	_, err := Load("/does/not/exist.yaml")
	assert.ErrorIs(t, err, os.ErrNotExist)
}
