package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// JournalOff disables the message journal.
const JournalOff = "off"

type Config struct {
	Addr          string        `yaml:"addr" validate:"required"`
	WebSocketAddr string        `yaml:"websocket_addr"`
	ControlSocket string        `yaml:"control_socket"`
	JournalPath   string        `yaml:"journal_path" validate:"required"`
	MaxUsers      int           `yaml:"max_users" validate:"gte=0"`
	IdleTimeout   time.Duration `yaml:"idle_timeout" validate:"gte=0"`
	WriteTimeout  time.Duration `yaml:"write_timeout" validate:"gt=0"`
	OutboxSize    int           `yaml:"outbox_size" validate:"gt=0"`
	LogFormat     string        `yaml:"log_format" validate:"oneof=text json"`
	LogLevel      string        `yaml:"log_level" validate:"oneof=debug info warn error"`
}

func Default() *Config {
	return &Config{
		Addr:          ":8080",
		ControlSocket: "/tmp/nickchat.sock",
		JournalPath:   ":memory:",
		MaxUsers:      100,
		WriteTimeout:  30 * time.Second,
		OutboxSize:    1024,
		LogFormat:     "text",
		LogLevel:      "info",
	}
}

// Load builds the configuration from defaults, the optional YAML file at
// path, a .env file in the working directory and NICKCHAT_* variables, in
// that order of precedence, lowest first.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse config yaml: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("NICKCHAT_ADDR"); v != "" {
		c.Addr = v
	}
	if v := os.Getenv("NICKCHAT_WEBSOCKET_ADDR"); v != "" {
		c.WebSocketAddr = v
	}
	if v := os.Getenv("NICKCHAT_CONTROL_SOCKET"); v != "" {
		c.ControlSocket = v
	}
	if v := os.Getenv("NICKCHAT_JOURNAL_PATH"); v != "" {
		c.JournalPath = v
	}
	if v := os.Getenv("NICKCHAT_LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}
	if v := os.Getenv("NICKCHAT_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}

	if v := os.Getenv("NICKCHAT_MAX_USERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("NICKCHAT_MAX_USERS: %w", err)
		}
		c.MaxUsers = n
	}
	if v := os.Getenv("NICKCHAT_OUTBOX_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("NICKCHAT_OUTBOX_SIZE: %w", err)
		}
		c.OutboxSize = n
	}
	if v := os.Getenv("NICKCHAT_IDLE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("NICKCHAT_IDLE_TIMEOUT: %w", err)
		}
		c.IdleTimeout = d
	}
	if v := os.Getenv("NICKCHAT_WRITE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("NICKCHAT_WRITE_TIMEOUT: %w", err)
		}
		c.WriteTimeout = d
	}

	return nil
}

var validate = validator.New()

// Validate checks every field against its constraints.
func (c *Config) Validate() error {
	return validate.Struct(c)
}

// JournalEnabled reports whether messages should be journaled.
func (c *Config) JournalEnabled() bool {
	return c.JournalPath != JournalOff
}
