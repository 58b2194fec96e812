// Package config loads application configuration from a YAML file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the FinTrack core configuration.
type Config struct {
	FinTrack struct {
		Storage StorageConfig `yaml:"storage"`
		Sync    SyncConfig    `yaml:"sync"`
		Remote  RemoteConfig  `yaml:"remote"`
		Desktop DesktopConfig `yaml:"desktop"`
		Logging LoggingConfig `yaml:"logging"`
	} `yaml:"fintrack"`
}

// StorageConfig configures the local mirror database and its quota.
type StorageConfig struct {
	DataDir         string  `yaml:"data_dir"`
	MaxBytes        int64   `yaml:"max_bytes"`
	HighWater       float64 `yaml:"high_water"`
	LowWater        float64 `yaml:"low_water"`
	RetentionMonths int     `yaml:"retention_months"`
}

// SyncConfig configures the sync engine and scheduler.
type SyncConfig struct {
	OwnerID          string        `yaml:"owner_id"`
	SyncInterval     time.Duration `yaml:"sync_interval"`
	QueueInterval    time.Duration `yaml:"queue_interval"`
	PassTimeout      time.Duration `yaml:"pass_timeout"`
	OpTimeout        time.Duration `yaml:"op_timeout"`
	MaxRetries       int           `yaml:"max_retries"`
	BreakerThreshold int           `yaml:"breaker_threshold"`
	BreakerCooldown  time.Duration `yaml:"breaker_cooldown"`
	WindowMonths     int           `yaml:"window_months"`
	PageSize         int           `yaml:"page_size"`
	LockFile         string        `yaml:"lock_file"`
}

// RemoteConfig configures the connection to the authoritative server.
type RemoteConfig struct {
	Endpoint string        `yaml:"endpoint"`
	APIKey   string        `yaml:"api_key"`
	Timeout  time.Duration `yaml:"timeout"`
}

// DesktopConfig configures the desktop companion server.
type DesktopConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// LoggingConfig configures structured log output.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// LoadConfig loads configuration from a YAML file and fills defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	config.applyDefaults()
	return &config, nil
}

// Default returns a configuration with every field at its default.
func Default() *Config {
	var config Config
	config.applyDefaults()
	return &config
}

func (c *Config) applyDefaults() {
	s := &c.FinTrack.Storage
	if s.DataDir == "" {
		s.DataDir = "./data"
	}
	if s.MaxBytes == 0 {
		s.MaxBytes = 512 << 20
	}
	if s.HighWater == 0 {
		s.HighWater = 0.85
	}
	if s.LowWater == 0 {
		s.LowWater = 0.60
	}
	if s.RetentionMonths == 0 {
		s.RetentionMonths = 24
	}

	y := &c.FinTrack.Sync
	if y.SyncInterval == 0 {
		y.SyncInterval = 15 * time.Minute
	}
	if y.QueueInterval == 0 {
		y.QueueInterval = 1 * time.Minute
	}
	if y.PassTimeout == 0 {
		y.PassTimeout = 5 * time.Minute
	}
	if y.OpTimeout == 0 {
		y.OpTimeout = 60 * time.Second
	}
	if y.MaxRetries == 0 {
		y.MaxRetries = 3
	}
	if y.BreakerThreshold == 0 {
		y.BreakerThreshold = 5
	}
	if y.BreakerCooldown == 0 {
		y.BreakerCooldown = 60 * time.Second
	}
	if y.WindowMonths == 0 {
		y.WindowMonths = 12
	}
	if y.PageSize == 0 {
		y.PageSize = 500
	}
	if y.LockFile == "" {
		y.LockFile = filepath.Join(s.DataDir, "sync.lock")
	}

	r := &c.FinTrack.Remote
	if r.Timeout == 0 {
		r.Timeout = 30 * time.Second
	}

	d := &c.FinTrack.Desktop
	if d.ListenAddr == "" {
		d.ListenAddr = "127.0.0.1:8790"
	}

	l := &c.FinTrack.Logging
	if l.Level == "" {
		l.Level = "info"
	}
}
