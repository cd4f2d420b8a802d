// Package config handles configuration loading and validation for focusmon.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds the complete daemon configuration.
type Config struct {
	Monitor MonitorConfig `toml:"monitor"`
	Storage StorageConfig `toml:"storage"`
	Rules   RulesConfig   `toml:"rules"`
	Sync    SyncConfig    `toml:"sync"`
	Logging LoggingConfig `toml:"logging"`
}

// MonitorConfig holds monitoring loop configuration.
type MonitorConfig struct {
	// PollIntervalMs is the foreground poll cadence in milliseconds.
	PollIntervalMs int `toml:"poll_interval_ms"`

	// IdleTimeoutSec closes the focus session after this many seconds
	// without a work app holding focus.
	IdleTimeoutSec int `toml:"idle_timeout_sec"`

	// FailureWarnThreshold is the number of consecutive inspector or
	// persistence failures before a warning is logged.
	FailureWarnThreshold int `toml:"failure_warn_threshold"`

	// SummaryIntervalSec is the usage summary log cadence in seconds.
	SummaryIntervalSec int `toml:"summary_interval_sec"`

	// NotificationBuffer is the block-notice channel capacity.
	NotificationBuffer int `toml:"notification_buffer"`
}

// StorageConfig holds persistence configuration.
type StorageConfig struct {
	// Path is the path to the SQLite database file.
	Path string `toml:"path"`

	// KeyHex is the optional SQLCipher encryption key as 64 hex
	// characters. Takes precedence over KeyFile.
	KeyHex string `toml:"key_hex"`

	// KeyFile is the path to a key file holding the encryption key.
	// A missing file is created with a fresh random key on first run.
	// Empty, together with an empty KeyHex, disables encryption.
	KeyFile string `toml:"key_file"`
}

// RulesConfig holds app rule configuration.
type RulesConfig struct {
	// Path is the path to the JSON rules file. The daemon watches it
	// and reloads on change.
	Path string `toml:"path"`
}

// SyncConfig holds remote sync configuration. Credentials come from the
// environment, never from this file.
type SyncConfig struct {
	// Enabled turns the background forwarder on.
	Enabled bool `toml:"enabled"`

	// IntervalSec is the push cadence in seconds.
	IntervalSec int `toml:"interval_sec"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `toml:"level"`

	// Path is the log file path. Empty logs to stderr.
	Path string `toml:"path"`
}

// Dir returns the focusmon configuration directory.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".focusmon"
	}
	return filepath.Join(home, ".config", "focusmon")
}

// DefaultPath returns the default configuration file path.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.toml")
}

// Default returns the built-in configuration.
func Default() Config {
	dir := Dir()
	return Config{
		Monitor: MonitorConfig{
			PollIntervalMs:       1000,
			IdleTimeoutSec:       300,
			FailureWarnThreshold: 10,
			SummaryIntervalSec:   60,
			NotificationBuffer:   16,
		},
		Storage: StorageConfig{
			Path: filepath.Join(dir, "focusmon.db"),
		},
		Rules: RulesConfig{
			Path: filepath.Join(dir, "apprules.json"),
		},
		Sync: SyncConfig{
			Enabled:     false,
			IntervalSec: 300,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads the configuration file at path, filling unset fields from
// defaults. A missing file is not an error: defaults apply.
func Load(path string) (Config, error) {
	cfg := Default()

	meta, err := toml.DecodeFile(path, &cfg)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("config %s: unknown key %q", path, undecoded[0].String())
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks field ranges and formats.
func (c *Config) Validate() error {
	if c.Monitor.PollIntervalMs < 100 {
		return fmt.Errorf("monitor.poll_interval_ms must be at least 100, got %d", c.Monitor.PollIntervalMs)
	}
	if c.Monitor.IdleTimeoutSec < 1 {
		return fmt.Errorf("monitor.idle_timeout_sec must be positive, got %d", c.Monitor.IdleTimeoutSec)
	}
	if c.Monitor.FailureWarnThreshold < 1 {
		return fmt.Errorf("monitor.failure_warn_threshold must be positive, got %d", c.Monitor.FailureWarnThreshold)
	}
	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path must not be empty")
	}
	if k := c.Storage.KeyHex; k != "" {
		if len(k) != 64 {
			return fmt.Errorf("storage.key_hex must be 64 hex characters, got %d", len(k))
		}
		for _, r := range k {
			if !isHex(r) {
				return fmt.Errorf("storage.key_hex contains non-hex character %q", r)
			}
		}
	}
	if c.Rules.Path == "" {
		return fmt.Errorf("rules.path must not be empty")
	}
	if c.Sync.Enabled && c.Sync.IntervalSec < 10 {
		return fmt.Errorf("sync.interval_sec must be at least 10, got %d", c.Sync.IntervalSec)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	return nil
}

// PollInterval returns monitor.poll_interval_ms as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Monitor.PollIntervalMs) * time.Millisecond
}

// IdleTimeout returns monitor.idle_timeout_sec as a duration.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.Monitor.IdleTimeoutSec) * time.Second
}

// SummaryInterval returns monitor.summary_interval_sec as a duration.
func (c *Config) SummaryInterval() time.Duration {
	return time.Duration(c.Monitor.SummaryIntervalSec) * time.Second
}

// SyncInterval returns sync.interval_sec as a duration.
func (c *Config) SyncInterval() time.Duration {
	return time.Duration(c.Sync.IntervalSec) * time.Second
}

func isHex(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}
