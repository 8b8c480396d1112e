package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Engine   EngineConfig   `yaml:"engine"`
	Drainer  DrainerConfig  `yaml:"drainer"`
	Agent    AgentConfig    `yaml:"agent"`
	Notify   NotifyConfig   `yaml:"notify"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type EngineConfig struct {
	MaxRetries      int           `yaml:"max_retries"`
	DispatchTimeout time.Duration `yaml:"dispatch_timeout"`
}

type DrainerConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// AgentConfig points at the local print agent that owns the OS-level
// printer connections.
type AgentConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

type NotifyConfig struct {
	URL         string        `yaml:"url"`
	Secret      string        `yaml:"secret"`
	Timeout     time.Duration `yaml:"timeout"`
	WorkerCount int           `yaml:"worker_count"`
	QueueSize   int           `yaml:"queue_size"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Path: "./data/printflow.db",
		},
		Engine: EngineConfig{
			MaxRetries:      3,
			DispatchTimeout: 10 * time.Second,
		},
		Drainer: DrainerConfig{
			Interval: 30 * time.Second,
		},
		Agent: AgentConfig{
			URL:     "http://127.0.0.1:9631",
			Timeout: 10 * time.Second,
		},
		Notify: NotifyConfig{
			Timeout:     10 * time.Second,
			WorkerCount: 2,
			QueueSize:   100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func Load(configPath string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

func LoadFromEnv() *Config {
	cfg := defaults()

	if v := os.Getenv("PRINTFLOW_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("PRINTFLOW_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("PRINTFLOW_AGENT_URL"); v != "" {
		cfg.Agent.URL = v
	}

	if v := os.Getenv("PRINTFLOW_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	return cfg
}

func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.ReadTimeout < 0 {
		return fmt.Errorf("server read timeout must be non-negative")
	}

	if c.Server.WriteTimeout < 0 {
		return fmt.Errorf("server write timeout must be non-negative")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}

	if c.Engine.MaxRetries < 0 {
		return fmt.Errorf("max retries must be non-negative")
	}

	if c.Engine.DispatchTimeout <= 0 {
		return fmt.Errorf("dispatch timeout must be positive")
	}

	if c.Drainer.Interval <= 0 {
		return fmt.Errorf("drainer interval must be positive")
	}

	if c.Agent.URL == "" {
		return fmt.Errorf("agent url is required")
	}

	if c.Agent.Timeout <= 0 {
		return fmt.Errorf("agent timeout must be positive")
	}

	if c.Notify.WorkerCount < 1 {
		return fmt.Errorf("notify worker count must be at least 1")
	}

	if c.Notify.QueueSize < 1 {
		return fmt.Errorf("notify queue size must be at least 1")
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	validFormats := map[string]bool{
		"json":  true,
		"text":  true,
		"plain": true,
	}

	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (valid: json, text, plain)", c.Logging.Format)
	}

	return nil
}
