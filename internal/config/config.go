package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`

	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Port    int    `yaml:"port"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`

	Database struct {
		// Dialect is "sqlite3" or "postgres".
		Dialect string `yaml:"dialect"`
		// DSN is the file path for sqlite3 or the connection string for postgres.
		DSN string `yaml:"dsn"`
	} `yaml:"database"`

	LLM struct {
		// Provider is "openai" or "anthropic".
		Provider string `yaml:"provider"`
		Model    string `yaml:"model"`
		APIKey   string `yaml:"api_key"`
	} `yaml:"llm"`

	Auth struct {
		Secret       string `yaml:"secret"`
		TokenTTLMins int    `yaml:"token_ttl_minutes"`
	} `yaml:"auth"`

	Simulation struct {
		TickIntervalMS int `yaml:"tick_interval_ms"`
		PingIntervalS  int `yaml:"ping_interval_seconds"`
		PongTimeoutS   int `yaml:"pong_timeout_seconds"`
	} `yaml:"simulation"`
}

// Load reads the configuration file at path and applies defaults for any
// value left unset. A missing file is not an error; defaults are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Metrics.Port == 0 {
		c.Metrics.Port = 9090
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Database.Dialect == "" {
		c.Database.Dialect = "sqlite3"
	}
	if c.Database.DSN == "" {
		c.Database.DSN = "agentarium.db"
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "gpt-4-turbo-preview"
	}
	if c.LLM.APIKey == "" {
		switch c.LLM.Provider {
		case "anthropic":
			c.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		default:
			c.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}
	if c.Auth.Secret == "" {
		c.Auth.Secret = os.Getenv("AUTH_SECRET")
	}
	if c.Auth.TokenTTLMins == 0 {
		c.Auth.TokenTTLMins = 60 * 24
	}
	if c.Simulation.TickIntervalMS == 0 {
		c.Simulation.TickIntervalMS = 2000
	}
	if c.Simulation.PingIntervalS == 0 {
		c.Simulation.PingIntervalS = 30
	}
	if c.Simulation.PongTimeoutS == 0 {
		c.Simulation.PongTimeoutS = 60
	}
}

// TickInterval returns the simulation tick period
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Simulation.TickIntervalMS) * time.Millisecond
}

// PingInterval returns the websocket ping period
func (c *Config) PingInterval() time.Duration {
	return time.Duration(c.Simulation.PingIntervalS) * time.Second
}

// PongTimeout returns the window a connection has to answer a liveness ping
func (c *Config) PongTimeout() time.Duration {
	return time.Duration(c.Simulation.PongTimeoutS) * time.Second
}

// TokenTTL returns the lifetime of issued API tokens
func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.Auth.TokenTTLMins) * time.Minute
}
