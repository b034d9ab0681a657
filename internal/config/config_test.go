package config

import (
	"errors"
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func envMap(m map[string]string) lookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	path := writeFile(t, "gophmesh.yaml", `
name: notes
backend: sqlite
tracker: https://tracker.example.com
sync_interval: 5s
`)
	t.Setenv(EnvSyncInterval, "250ms")
	t.Setenv(EnvDataDir, "/var/lib/gophmesh")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "notes", cfg.Name)
	assert.Equal(t, "sqlite", cfg.Backend)
	assert.Equal(t, "https://tracker.example.com", cfg.Tracker)
	assert.Equal(t, 250*time.Millisecond, cfg.SyncInterval)
	assert.Equal(t, "/var/lib/gophmesh", cfg.DataDir)
	assert.Equal(t, 500*time.Millisecond, cfg.FlushInterval)
	require.NoError(t, cfg.Validate())
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("GOPHMESH_NAME=from-dotenv\n"), 0o600))

	// переменная из .env видна только этому тесту
	t.Setenv(EnvName, "")
	require.NoError(t, os.Unsetenv(EnvName))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Name)
}

func TestLoad_Errors(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "bad.yaml", "unknown_key: 1\n"))
	assert.Error(t, err)

	t.Setenv(EnvFlushInterval, "soon")
	_, err = Load("")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoad_EmptyFile(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load(writeFile(t, "empty.yaml", ""))
	require.NoError(t, err)
	assert.Equal(t, Default().Name, cfg.Name)
}

func TestConfig_FlagsOverride(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.applyEnv(envMap(map[string]string{EnvName: "env-name", EnvBackend: "sqlite"})))

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg.RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"-name", "flag-name", "-sync-interval", "2s"}))

	assert.Equal(t, "flag-name", cfg.Name)
	assert.Equal(t, "sqlite", cfg.Backend)
	assert.Equal(t, 2*time.Second, cfg.SyncInterval)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{name: "bad name", mutate: func(c *Config) { c.Name = "../etc" }},
		{name: "bad backend", mutate: func(c *Config) { c.Backend = "postgres" }},
		{name: "relative tracker", mutate: func(c *Config) { c.Tracker = "tracker" }},
		{name: "negative interval", mutate: func(c *Config) { c.SyncInterval = -time.Second }},
		{name: "bad log level", mutate: func(c *Config) { c.LogLevel = "loud" }},
	}

	require.NoError(t, Default().Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}

	offline := Default()
	offline.Tracker = ""
	assert.NoError(t, offline.Validate())
}

func TestConfig_ResolveConnection(t *testing.T) {
	file := writeFile(t, "conn", "fromfile\n")
	noEnv := func(string) string { return "" }
	prompt := func(string) (string, error) { return " prompted ", nil }

	tests := []struct {
		name   string
		cfg    Config
		getenv func(string) string
		prompt func(string) (string, error)
		want   string
	}{
		{
			name:   "env wins",
			cfg:    Config{Connection: "flag", ConnectionFile: file},
			getenv: func(string) string { return "fromenv" },
			want:   "fromenv",
		},
		{
			name:   "file before flag",
			cfg:    Config{Connection: "flag", ConnectionFile: file},
			getenv: noEnv,
			want:   "fromfile",
		},
		{
			name:   "flag before prompt",
			cfg:    Config{Connection: "flag"},
			getenv: noEnv,
			prompt: prompt,
			want:   "flag",
		},
		{
			name:   "prompt fallback",
			getenv: noEnv,
			prompt: prompt,
			want:   "prompted",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cfg.ResolveConnection(tt.getenv, tt.prompt)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := Config{}.ResolveConnection(noEnv, nil)
	assert.Error(t, err)

	_, err = Config{}.ResolveConnection(noEnv, func(string) (string, error) { return "", errors.New("no tty") })
	assert.Error(t, err)

	_, err = Config{ConnectionFile: writeFile(t, "empty", "\n")}.ResolveConnection(noEnv, nil)
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, "DEBUG", level.String())

	_, err = ParseLevel("verbose")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoadTracker(t *testing.T) {
	t.Chdir(t.TempDir())
	path := writeFile(t, "tracker.yaml", "addr: \":9000\"\nrate_window: 30s\n")
	t.Setenv(EnvTrackerLimit, "10")

	cfg, err := LoadTracker(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, 10, cfg.RateLimit)
	assert.Equal(t, 30*time.Second, cfg.RateWindow)
	require.NoError(t, cfg.Validate())

	t.Setenv(EnvTrackerLimit, "many")
	_, err = LoadTracker(path)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	bad := DefaultTracker()
	bad.RateLimit = 0
	assert.ErrorIs(t, bad.Validate(), ErrInvalidConfig)
}

func TestPathFromArgs(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "none", args: []string{"list"}, want: ""},
		{name: "separate value", args: []string{"-config", "a.yaml", "list"}, want: "a.yaml"},
		{name: "equals", args: []string{"--config=b.yaml", "status"}, want: "b.yaml"},
		{name: "after other flags", args: []string{"-name", "x", "-config", "c.yaml"}, want: "c.yaml"},
		{name: "after terminator", args: []string{"--", "-config", "d.yaml"}, want: ""},
		{name: "missing value", args: []string{"-config"}, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PathFromArgs(tt.args))
		})
	}
}
