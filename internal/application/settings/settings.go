// Package settings defines application-level configuration data.
package settings

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultPollInterval is the poll interval in seconds when none is configured.
const DefaultPollInterval = 1800

// ConfigurationError reports a configuration that must not be activated.
type ConfigurationError struct {
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid configuration: %v", e.Err)
	}
	return fmt.Sprintf("invalid configuration %s: %v", e.Field, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// PollConfig defines the recurring poll.
type PollConfig struct {
	PollInterval int `yaml:"poll_interval" kong:"help='Seconds between poll ticks',default='1800'"`
	FetchTimeout int `yaml:"fetch_timeout" kong:"help='Per-feed fetch timeout in seconds',default='20'"`
}

// Interval returns the poll interval as a duration.
func (p PollConfig) Interval() time.Duration {
	return time.Duration(p.PollInterval) * time.Second
}

// Timeout returns the per-fetch timeout as a duration.
func (p PollConfig) Timeout() time.Duration {
	return time.Duration(p.FetchTimeout) * time.Second
}

// NotifyConfig defines where group notifications go.
type NotifyConfig struct {
	GroupRecipient string `yaml:"group_recipient" kong:"help='Room that receives group subscription news'"`
}

// StoreConfig defines the subscription persistence.
type StoreConfig struct {
	Driver    string `yaml:"driver" kong:"help='Backend: sqlite, pebble or postgres',default='sqlite'"`
	Path      string `yaml:"path" kong:"help='SQLite file or Pebble directory'"`
	DSN       string `yaml:"dsn" kong:"help='PostgreSQL connection string'"`
	Namespace string `yaml:"namespace" kong:"help='Key namespace inside the database',default='rss_feed'"`
	// HistoryPath is the delivery journal. Empty means next to the database.
	HistoryPath string `yaml:"history_path" kong:"help='Delivery journal path (JSON Lines)'"`
}

// LogConfig defines logging output.
type LogConfig struct {
	Level      string `yaml:"level" kong:"help='Log level (debug/info/warn/error)',default='info'"`
	File       string `yaml:"file" kong:"help='Log file path, empty for stderr only'"`
	MaxSize    int    `yaml:"max_size" kong:"help='Max log file size in MB',default='64'"`
	MaxBackups int    `yaml:"max_backups" kong:"help='Rotated log files to keep',default='3'"`
	MaxAge     int    `yaml:"max_age" kong:"help='Days to keep rotated log files',default='7'"`
}

// Settings represents the application configuration.
type Settings struct {
	Poll   PollConfig   `yaml:"poll" kong:"embed,prefix='poll.'"`
	Notify NotifyConfig `yaml:"notify" kong:"embed,prefix='notify.'"`
	Admins []string     `yaml:"admins" kong:"help='Users allowed to clear all feeds'"`
	Store  StoreConfig  `yaml:"store" kong:"embed,prefix='store.'"`
	Log    LogConfig    `yaml:"log" kong:"embed,prefix='log.'"`
}

// Validate checks values the YAML schema cannot express.
func (s Settings) Validate() error {
	if s.Poll.PollInterval <= 0 {
		return &ConfigurationError{Field: "poll.poll_interval", Err: fmt.Errorf("must be a positive integer, got %d", s.Poll.PollInterval)}
	}
	if s.Poll.FetchTimeout <= 0 {
		return &ConfigurationError{Field: "poll.fetch_timeout", Err: fmt.Errorf("must be a positive integer, got %d", s.Poll.FetchTimeout)}
	}
	switch s.Store.Driver {
	case "sqlite", "pebble":
	case "postgres":
		if strings.TrimSpace(s.Store.DSN) == "" {
			return &ConfigurationError{Field: "store.dsn", Err: errors.New("required for the postgres driver")}
		}
	default:
		return &ConfigurationError{Field: "store.driver", Err: fmt.Errorf("unknown driver %q", s.Store.Driver)}
	}
	if strings.TrimSpace(s.Store.Namespace) == "" {
		return &ConfigurationError{Field: "store.namespace", Err: errors.New("must not be empty")}
	}
	return nil
}

// IsAdmin reports whether user may run privileged commands.
func (s Settings) IsAdmin(user string) bool {
	user = strings.TrimSpace(user)
	if user == "" {
		return false
	}
	for _, admin := range s.Admins {
		if strings.EqualFold(strings.TrimSpace(admin), user) {
			return true
		}
	}
	return false
}
