// Package config loads settings for the gophmesh binaries. Sources are
// applied in order, each overriding the previous one: built-in defaults,
// a YAML file, a .env file and GOPHMESH_* environment variables, then
// command-line flags.
package config

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/iudanet/gophmesh/internal/validation"
)

// EnvPrefix префикс переменных окружения
const EnvPrefix = "GOPHMESH_"

// Имена переменных окружения
const (
	EnvConfig         = EnvPrefix + "CONFIG"
	EnvConnection     = EnvPrefix + "CONNECTION"
	EnvName           = EnvPrefix + "NAME"
	EnvDataDir        = EnvPrefix + "DATA_DIR"
	EnvBackend        = EnvPrefix + "BACKEND"
	EnvTracker        = EnvPrefix + "TRACKER"
	EnvPeerID         = EnvPrefix + "PEER_ID"
	EnvLogLevel       = EnvPrefix + "LOG_LEVEL"
	EnvFlushInterval  = EnvPrefix + "FLUSH_INTERVAL"
	EnvSyncInterval   = EnvPrefix + "SYNC_INTERVAL"
	EnvMetricsAddr    = EnvPrefix + "METRICS_ADDR"
	EnvTrackerAddr    = EnvPrefix + "TRACKER_ADDR"
	EnvTrackerLimit   = EnvPrefix + "TRACKER_RATE_LIMIT"
	EnvTrackerWindow  = EnvPrefix + "TRACKER_RATE_WINDOW"
	EnvConnectionFile = EnvPrefix + "CONNECTION_FILE"
)

// ErrInvalidConfig indicates a setting with an unusable value
var ErrInvalidConfig = errors.New("invalid config")

// Config holds the settings of the peer CLI
type Config struct {
	Name           string        `yaml:"name"`
	DataDir        string        `yaml:"data_dir"`
	Backend        string        `yaml:"backend"`
	Tracker        string        `yaml:"tracker"`
	PeerID         string        `yaml:"peer_id"`
	Connection     string        `yaml:"connection"`
	ConnectionFile string        `yaml:"connection_file"`
	LogLevel       string        `yaml:"log_level"`
	MetricsAddr    string        `yaml:"metrics_addr"`
	FlushInterval  time.Duration `yaml:"flush_interval"`
	SyncInterval   time.Duration `yaml:"sync_interval"`
}

// Default returns the built-in defaults
func Default() Config {
	return Config{
		Name:          "default",
		DataDir:       defaultDataDir(),
		Backend:       "bolt",
		Tracker:       "http://localhost:8080",
		LogLevel:      "warn",
		FlushInterval: 500 * time.Millisecond,
		SyncInterval:  time.Second,
	}
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "gophmesh")
	}
	return ".gophmesh"
}

// Load builds a Config from defaults, the YAML file at path (or $GOPHMESH_CONFIG),
// a .env file in the working directory and the environment
func Load(path string) (Config, error) {
	cfg := Default()

	if err := loadDotEnv(); err != nil {
		return cfg, err
	}
	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, err
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// loadDotEnv загружает .env, если он есть. Уже заданные переменные не перезаписываются
func loadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

// loadFile читает YAML строго: неизвестные ключи - ошибка
func loadFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

type lookupFunc func(key string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	setString(lookup, EnvName, &c.Name)
	setString(lookup, EnvDataDir, &c.DataDir)
	setString(lookup, EnvBackend, &c.Backend)
	setString(lookup, EnvTracker, &c.Tracker)
	setString(lookup, EnvPeerID, &c.PeerID)
	setString(lookup, EnvConnectionFile, &c.ConnectionFile)
	setString(lookup, EnvLogLevel, &c.LogLevel)
	setString(lookup, EnvMetricsAddr, &c.MetricsAddr)

	if err := setDuration(lookup, EnvFlushInterval, &c.FlushInterval); err != nil {
		return err
	}
	return setDuration(lookup, EnvSyncInterval, &c.SyncInterval)
}

// RegisterFlags binds the config fields to fs. Current values become the flag defaults
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Name, "name", c.Name, "Local database name")
	fs.StringVar(&c.DataDir, "data-dir", c.DataDir, "Directory for database files")
	fs.StringVar(&c.Backend, "backend", c.Backend, "Storage backend: bolt or sqlite")
	fs.StringVar(&c.Tracker, "tracker", c.Tracker, "Tracker URL, empty to stay offline")
	fs.StringVar(&c.PeerID, "peer-id", c.PeerID, "Peer id announced to the tracker (uuid, random if empty)")
	fs.StringVar(&c.Connection, "connection", c.Connection, "Connection string (not recommended, use env var or file)")
	fs.StringVar(&c.ConnectionFile, "connection-file", c.ConnectionFile, "Path to file containing the connection string")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level: debug, info, warn, error")
	fs.StringVar(&c.MetricsAddr, "metrics-addr", c.MetricsAddr, "Address for the /metrics endpoint while serving")
	fs.DurationVar(&c.FlushInterval, "flush-interval", c.FlushInterval, "Period of background writes to disk")
	fs.DurationVar(&c.SyncInterval, "sync-interval", c.SyncInterval, "Period of incremental sync with peers")
}

// Validate checks the settings that are not checked where they are used
func (c Config) Validate() error {
	if err := validation.ValidateDatabaseName(c.Name); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.Backend != "bolt" && c.Backend != "sqlite" {
		return fmt.Errorf("%w: backend must be bolt or sqlite, got %q", ErrInvalidConfig, c.Backend)
	}
	if c.Tracker != "" {
		u, err := url.Parse(c.Tracker)
		if err != nil || u.Host == "" {
			return fmt.Errorf("%w: tracker must be an absolute url, got %q", ErrInvalidConfig, c.Tracker)
		}
	}
	if c.FlushInterval < 0 || c.SyncInterval < 0 {
		return fmt.Errorf("%w: intervals must not be negative", ErrInvalidConfig)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ResolveConnection returns the connection string from, in priority order:
// 1. GOPHMESH_CONNECTION environment variable
// 2. the connection file
// 3. the connection flag or config value
// 4. interactive prompt (fallback)
func (c Config) ResolveConnection(getenv func(string) string, prompt func(string) (string, error)) (string, error) {
	if conn := strings.TrimSpace(getenv(EnvConnection)); conn != "" {
		return conn, nil
	}

	if c.ConnectionFile != "" {
		content, err := os.ReadFile(c.ConnectionFile)
		if err != nil {
			return "", fmt.Errorf("failed to read connection file: %w", err)
		}
		conn := strings.TrimSpace(string(content))
		if conn == "" {
			return "", fmt.Errorf("connection file is empty")
		}
		return conn, nil
	}

	if c.Connection != "" {
		return strings.TrimSpace(c.Connection), nil
	}

	if prompt == nil {
		return "", fmt.Errorf("connection string is required")
	}
	conn, err := prompt("Connection string: ")
	if err != nil {
		return "", fmt.Errorf("failed to read connection string: %w", err)
	}
	conn = strings.TrimSpace(conn)
	if conn == "" {
		return "", fmt.Errorf("connection string cannot be empty")
	}
	return conn, nil
}

// ParseLevel maps a level name to slog.Level
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("%w: log level %q", ErrInvalidConfig, s)
	}
	return level, nil
}

func setString(lookup lookupFunc, key string, dst *string) {
	if v, ok := lookup(key); ok && v != "" {
		*dst = v
	}
}

func setInt(lookup lookupFunc, key string, dst *int) error {
	v, ok := lookup(key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidConfig, key, err)
	}
	*dst = n
	return nil
}

func setDuration(lookup lookupFunc, key string, dst *time.Duration) error {
	v, ok := lookup(key)
	if !ok || v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidConfig, key, err)
	}
	*dst = d
	return nil
}

// PathFromArgs finds the value of -config in command-line arguments before
// the flag set is parsed: the file supplies the defaults of the other flags
func PathFromArgs(args []string) string {
	for i, arg := range args {
		if arg == "--" {
			break
		}
		if !strings.HasPrefix(arg, "-") {
			continue
		}
		name := strings.TrimLeft(arg, "-")
		if value, ok := strings.CutPrefix(name, "config="); ok {
			return value
		}
		if name == "config" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}
