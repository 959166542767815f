// Package config loads server configuration from the environment and an
// optional YAML file. Environment variables take precedence over the
// file, which takes precedence over built-in defaults; all env keys use
// the PRUDA prefix (PRUDA_SERVER_PORT and so on).
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config is the complete application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server" envconfig:"SERVER"`
	Logging  LoggingConfig  `yaml:"logging" envconfig:"LOGGING"`
	Database DatabaseConfig `yaml:"database" envconfig:"DATABASE"`
	Sweep    SweepConfig    `yaml:"sweep" envconfig:"SWEEP"`
	Events   EventsConfig   `yaml:"events" envconfig:"EVENTS"`
	Admin    AdminConfig    `yaml:"admin" envconfig:"ADMIN"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
}

// LoggingConfig contains slog settings.
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LEVEL"`
	Output      string `yaml:"output" envconfig:"OUTPUT"`
	FilePath    string `yaml:"file_path" envconfig:"FILE_PATH"`
	Development bool   `yaml:"development" envconfig:"DEVELOPMENT"`
}

// DatabaseConfig points at the sqlite file.
type DatabaseConfig struct {
	Path string `yaml:"path" envconfig:"PATH"`
}

// SweepConfig controls the background expiry sweep.
type SweepConfig struct {
	Interval   time.Duration `yaml:"interval" envconfig:"INTERVAL"`
	SoonWindow time.Duration `yaml:"soon_window" envconfig:"SOON_WINDOW"`
}

// EventsConfig bounds the in-memory lifecycle event queue.
type EventsConfig struct {
	QueueSize int `yaml:"queue_size" envconfig:"QUEUE_SIZE"`
}

// AdminConfig carries the bearer token required on mutating endpoints.
// An empty token disables the check (local development).
type AdminConfig struct {
	Token string `yaml:"token" envconfig:"TOKEN"`
}

// Load reads config.yaml if present, overlays environment variables and
// fills the remaining zero values with defaults.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("PRUDA", &cfg); err != nil {
		return nil, fmt.Errorf("load config from env: %w", err)
	}

	path := os.Getenv("PRUDA_CONFIG_FILE")
	if path == "" {
		path = "config.yaml"
	}
	if _, err := os.Stat(path); err == nil {
		fileCfg, err := loadFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("load config from file: %w", err)
		}
		cfg = merge(*fileCfg, cfg)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// merge overlays env values on top of the file config; env wins when set.
func merge(file, env Config) Config {
	if env.Server.Port == 0 {
		env.Server.Port = file.Server.Port
	}
	if env.Server.ReadTimeout == 0 {
		env.Server.ReadTimeout = file.Server.ReadTimeout
	}
	if env.Server.WriteTimeout == 0 {
		env.Server.WriteTimeout = file.Server.WriteTimeout
	}
	if env.Server.IdleTimeout == 0 {
		env.Server.IdleTimeout = file.Server.IdleTimeout
	}
	if env.Server.ShutdownTimeout == 0 {
		env.Server.ShutdownTimeout = file.Server.ShutdownTimeout
	}
	if env.Logging.Level == "" {
		env.Logging.Level = file.Logging.Level
	}
	if env.Logging.Output == "" {
		env.Logging.Output = file.Logging.Output
	}
	if env.Logging.FilePath == "" {
		env.Logging.FilePath = file.Logging.FilePath
	}
	env.Logging.Development = env.Logging.Development || file.Logging.Development
	if env.Database.Path == "" {
		env.Database.Path = file.Database.Path
	}
	if env.Sweep.Interval == 0 {
		env.Sweep.Interval = file.Sweep.Interval
	}
	if env.Sweep.SoonWindow == 0 {
		env.Sweep.SoonWindow = file.Sweep.SoonWindow
	}
	if env.Events.QueueSize == 0 {
		env.Events.QueueSize = file.Events.QueueSize
	}
	if env.Admin.Token == "" {
		env.Admin.Token = file.Admin.Token
	}
	return env
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 15 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 60 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 30 * time.Second
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "console"
	}
	if c.Logging.FilePath == "" {
		c.Logging.FilePath = "logs/prudad.log"
	}
	if c.Database.Path == "" {
		c.Database.Path = "prudad.db"
	}
	if c.Sweep.Interval == 0 {
		c.Sweep.Interval = 15 * time.Minute
	}
	if c.Sweep.SoonWindow == 0 {
		c.Sweep.SoonWindow = 72 * time.Hour
	}
	if c.Events.QueueSize == 0 {
		c.Events.QueueSize = 256
	}
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Sweep.Interval < time.Second {
		return fmt.Errorf("sweep interval %s too small", c.Sweep.Interval)
	}
	if c.Events.QueueSize < 1 {
		return fmt.Errorf("event queue size %d must be positive", c.Events.QueueSize)
	}
	return nil
}
