// Package config provides YAML-based configuration loading for Roundhouse.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level Roundhouse configuration, loaded from
// roundhouse.yaml.
type Config struct {
	DB        DBConfig       `yaml:"db"`
	Pacing    PacingConfig   `yaml:"pacing"`
	Login     LoginConfig    `yaml:"login"`
	Voice     VoiceConfig    `yaml:"voice"`
	Dashboard DashConfig     `yaml:"dashboard"`
	RoleSync  RoleSyncConfig `yaml:"rolesync"`
}

// DBConfig selects the account store backend: a SQLite file by default, or a
// MySQL DSN when set.
type DBConfig struct {
	Path     string `yaml:"path"`
	MySQLDSN string `yaml:"mysql_dsn"`
}

// PacingConfig holds the rate-gate intervals, in milliseconds.
type PacingConfig struct {
	AccountDelayMs int `yaml:"account_delay_ms"` // between accounts in fleet loops
	ItemDelayMs    int `yaml:"item_delay_ms"`    // between batch items
	MessageDelayMs int `yaml:"message_delay_ms"` // between message deletions
}

// LoginConfig bounds the login handshake.
type LoginConfig struct {
	TimeoutSec int `yaml:"timeout_sec"`
}

// VoiceConfig holds the voice reconnection timing knobs.
type VoiceConfig struct {
	SettleSec     int `yaml:"settle_sec"`
	BackoffSec    int `yaml:"backoff_sec"`
	Attempts      int `yaml:"attempts"`
	ReconnectSec  int `yaml:"reconnect_sec"`
	MoveSec       int `yaml:"move_sec"`
	LeaveGraceSec int `yaml:"leave_grace_sec"`
}

// DashConfig configures the status dashboard server.
type DashConfig struct {
	Port int `yaml:"port"`
}

// RoleSyncConfig configures the scheduled leaderboard role-sync job.
type RoleSyncConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cron    string `yaml:"cron"`
	GuildID string `yaml:"guild_id"`
	RoleID  string `yaml:"role_id"`
	Top     int    `yaml:"top"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a Config with all defaults applied, for running without a
// config file.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.DB.Path == "" && c.DB.MySQLDSN == "" {
		c.DB.Path = "roundhouse.db"
	}
	if c.Pacing.AccountDelayMs == 0 {
		c.Pacing.AccountDelayMs = 3000
	}
	if c.Pacing.ItemDelayMs == 0 {
		c.Pacing.ItemDelayMs = 1500
	}
	if c.Pacing.MessageDelayMs == 0 {
		c.Pacing.MessageDelayMs = 1200
	}
	if c.Login.TimeoutSec == 0 {
		c.Login.TimeoutSec = 15
	}
	if c.Voice.SettleSec == 0 {
		c.Voice.SettleSec = 2
	}
	if c.Voice.BackoffSec == 0 {
		c.Voice.BackoffSec = 3
	}
	if c.Voice.Attempts == 0 {
		c.Voice.Attempts = 5
	}
	if c.Voice.ReconnectSec == 0 {
		c.Voice.ReconnectSec = 5
	}
	if c.Voice.MoveSec == 0 {
		c.Voice.MoveSec = 3
	}
	if c.Voice.LeaveGraceSec == 0 {
		c.Voice.LeaveGraceSec = 2
	}
	if c.Dashboard.Port == 0 {
		c.Dashboard.Port = 8080
	}
	if c.RoleSync.Top == 0 {
		c.RoleSync.Top = 10
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.Pacing.AccountDelayMs < 0 || c.Pacing.ItemDelayMs < 0 || c.Pacing.MessageDelayMs < 0 {
		errs = append(errs, "pacing delays must not be negative")
	}
	if c.Voice.Attempts < 1 {
		errs = append(errs, "voice.attempts must be at least 1")
	}
	if c.RoleSync.Enabled {
		if c.RoleSync.Cron == "" {
			errs = append(errs, "rolesync.cron is required when rolesync is enabled")
		}
		if c.RoleSync.GuildID == "" {
			errs = append(errs, "rolesync.guild_id is required when rolesync is enabled")
		}
		if c.RoleSync.RoleID == "" {
			errs = append(errs, "rolesync.role_id is required when rolesync is enabled")
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// AccountDelay returns the inter-account pacing interval.
func (c *Config) AccountDelay() time.Duration {
	return time.Duration(c.Pacing.AccountDelayMs) * time.Millisecond
}

// ItemDelay returns the inter-item pacing interval.
func (c *Config) ItemDelay() time.Duration {
	return time.Duration(c.Pacing.ItemDelayMs) * time.Millisecond
}

// MessageDelay returns the per-deletion pacing interval.
func (c *Config) MessageDelay() time.Duration {
	return time.Duration(c.Pacing.MessageDelayMs) * time.Millisecond
}

// LoginTimeout returns the ready-signal wait bound.
func (c *Config) LoginTimeout() time.Duration {
	return time.Duration(c.Login.TimeoutSec) * time.Second
}
