package config

import (
	"flag"
	"fmt"
	"os"
	"time"
)

// Tracker holds the settings of the tracker relay
type Tracker struct {
	Addr       string        `yaml:"addr"`
	LogLevel   string        `yaml:"log_level"`
	RateLimit  int           `yaml:"rate_limit"`
	RateWindow time.Duration `yaml:"rate_window"`
}

// DefaultTracker returns the built-in tracker defaults
func DefaultTracker() Tracker {
	return Tracker{
		Addr:       ":8080",
		LogLevel:   "info",
		RateLimit:  60,
		RateWindow: time.Minute,
	}
}

// LoadTracker builds a Tracker config the same way Load does
func LoadTracker(path string) (Tracker, error) {
	cfg := DefaultTracker()

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

func (c *Tracker) applyEnv(lookup lookupFunc) error {
	setString(lookup, EnvTrackerAddr, &c.Addr)
	setString(lookup, EnvLogLevel, &c.LogLevel)
	if err := setInt(lookup, EnvTrackerLimit, &c.RateLimit); err != nil {
		return err
	}
	return setDuration(lookup, EnvTrackerWindow, &c.RateWindow)
}

// RegisterFlags binds the tracker fields to fs
func (c *Tracker) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Addr, "addr", c.Addr, "Listen address")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level: debug, info, warn, error")
	fs.IntVar(&c.RateLimit, "rate-limit", c.RateLimit, "Websocket connections per client IP per window")
	fs.DurationVar(&c.RateWindow, "rate-window", c.RateWindow, "Rate limit window")
}

// Validate checks the tracker settings
func (c Tracker) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: listen address is required", ErrInvalidConfig)
	}
	if c.RateLimit <= 0 || c.RateWindow <= 0 {
		return fmt.Errorf("%w: rate limit and window must be positive", ErrInvalidConfig)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}
