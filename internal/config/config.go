package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config carries every tunable the server reads at startup.
type Config struct {
	Database *DatabaseConfig `json:"database"`
	HTTP     *HTTPConfig     `json:"http"`
	Gateway  *GatewayConfig  `json:"gateway"`
	Session  *SessionConfig  `json:"session"`
}

type DatabaseConfig struct {
	Path    string        `json:"path"`
	Timeout time.Duration `json:"timeout"`
}

type HTTPConfig struct {
	Port         int           `json:"port"`
	Host         string        `json:"host"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
}

// GatewayConfig tunes the listener WebSocket endpoint.
type GatewayConfig struct {
	AuthTimeout    time.Duration `json:"auth_timeout"`
	PingInterval   time.Duration `json:"ping_interval"`
	ReadTimeout    time.Duration `json:"read_timeout"`
	EventQueueSize int           `json:"event_queue_size"`
}

type SessionConfig struct {
	TTL           time.Duration `json:"ttl"`
	SweepInterval time.Duration `json:"sweep_interval"`
}

func DefaultConfig() *Config {
	return &Config{
		Database: &DatabaseConfig{
			Path:    "./data/helpforum.db",
			Timeout: 30 * time.Second,
		},
		HTTP: &HTTPConfig{
			Port:         8080,
			Host:         "0.0.0.0",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Gateway: &GatewayConfig{
			AuthTimeout:    30 * time.Second,
			PingInterval:   30 * time.Second,
			ReadTimeout:    60 * time.Second,
			EventQueueSize: 256,
		},
		Session: &SessionConfig{
			TTL:           12 * time.Hour,
			SweepInterval: 10 * time.Minute,
		},
	}
}

func (c *Config) Validate() error {
	if c.Database == nil {
		return fmt.Errorf("database configuration is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.Database.Timeout <= 0 {
		return fmt.Errorf("database timeout must be positive")
	}

	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}
	if c.HTTP.ReadTimeout <= 0 {
		return fmt.Errorf("HTTP read timeout must be positive")
	}
	if c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP write timeout must be positive")
	}

	if c.Gateway == nil {
		return fmt.Errorf("gateway configuration is required")
	}
	if c.Gateway.AuthTimeout <= 0 {
		return fmt.Errorf("gateway auth timeout must be positive")
	}
	if c.Gateway.PingInterval <= 0 {
		return fmt.Errorf("gateway ping interval must be positive")
	}
	if c.Gateway.ReadTimeout <= 0 {
		return fmt.Errorf("gateway read timeout must be positive")
	}
	if c.Gateway.EventQueueSize <= 0 {
		return fmt.Errorf("gateway event queue size must be positive")
	}

	if c.Session == nil {
		return fmt.Errorf("session configuration is required")
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("session TTL must be positive")
	}
	if c.Session.SweepInterval <= 0 {
		return fmt.Errorf("session sweep interval must be positive")
	}

	return nil
}

// LoadFromEnv builds a config from defaults overridden by HELPFORUM_*
// environment variables. Unparseable values fall back to the default.
func LoadFromEnv() *Config {
	config := DefaultConfig()

	if path := os.Getenv("HELPFORUM_DATABASE_PATH"); path != "" {
		config.Database.Path = path
	}
	if raw := os.Getenv("HELPFORUM_DATABASE_TIMEOUT"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			config.Database.Timeout = d
		}
	}

	if raw := os.Getenv("HELPFORUM_HTTP_PORT"); raw != "" {
		if p, err := strconv.Atoi(raw); err == nil {
			config.HTTP.Port = p
		}
	}
	if host := os.Getenv("HELPFORUM_HTTP_HOST"); host != "" {
		config.HTTP.Host = host
	}
	if raw := os.Getenv("HELPFORUM_HTTP_READ_TIMEOUT"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			config.HTTP.ReadTimeout = d
		}
	}
	if raw := os.Getenv("HELPFORUM_HTTP_WRITE_TIMEOUT"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			config.HTTP.WriteTimeout = d
		}
	}

	if raw := os.Getenv("HELPFORUM_GATEWAY_AUTH_TIMEOUT"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			config.Gateway.AuthTimeout = d
		}
	}
	if raw := os.Getenv("HELPFORUM_GATEWAY_PING_INTERVAL"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			config.Gateway.PingInterval = d
		}
	}
	if raw := os.Getenv("HELPFORUM_GATEWAY_READ_TIMEOUT"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			config.Gateway.ReadTimeout = d
		}
	}
	if raw := os.Getenv("HELPFORUM_GATEWAY_EVENT_QUEUE_SIZE"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			config.Gateway.EventQueueSize = n
		}
	}

	if raw := os.Getenv("HELPFORUM_SESSION_TTL"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			config.Session.TTL = d
		}
	}
	if raw := os.Getenv("HELPFORUM_SESSION_SWEEP_INTERVAL"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			config.Session.SweepInterval = d
		}
	}

	return config
}

// configFile mirrors Config with string durations for JSON parsing.
type configFile struct {
	Database *databaseConfigFile `json:"database"`
	HTTP     *httpConfigFile     `json:"http"`
	Gateway  *gatewayConfigFile  `json:"gateway"`
	Session  *sessionConfigFile  `json:"session"`
}

type databaseConfigFile struct {
	Path    string `json:"path"`
	Timeout string `json:"timeout"`
}

type httpConfigFile struct {
	Port         int    `json:"port"`
	Host         string `json:"host"`
	ReadTimeout  string `json:"read_timeout"`
	WriteTimeout string `json:"write_timeout"`
}

type gatewayConfigFile struct {
	AuthTimeout    string `json:"auth_timeout"`
	PingInterval   string `json:"ping_interval"`
	ReadTimeout    string `json:"read_timeout"`
	EventQueueSize int    `json:"event_queue_size"`
}

type sessionConfigFile struct {
	TTL           string `json:"ttl"`
	SweepInterval string `json:"sweep_interval"`
}

// LoadFromFile reads a JSON config file over the defaults. Durations are
// written as strings ("30s", "12h").
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed configFile
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	config := DefaultConfig()

	if parsed.Database != nil {
		if parsed.Database.Path != "" {
			config.Database.Path = parsed.Database.Path
		}
		applyDuration(&config.Database.Timeout, parsed.Database.Timeout)
	}

	if parsed.HTTP != nil {
		if parsed.HTTP.Port > 0 {
			config.HTTP.Port = parsed.HTTP.Port
		}
		if parsed.HTTP.Host != "" {
			config.HTTP.Host = parsed.HTTP.Host
		}
		applyDuration(&config.HTTP.ReadTimeout, parsed.HTTP.ReadTimeout)
		applyDuration(&config.HTTP.WriteTimeout, parsed.HTTP.WriteTimeout)
	}

	if parsed.Gateway != nil {
		applyDuration(&config.Gateway.AuthTimeout, parsed.Gateway.AuthTimeout)
		applyDuration(&config.Gateway.PingInterval, parsed.Gateway.PingInterval)
		applyDuration(&config.Gateway.ReadTimeout, parsed.Gateway.ReadTimeout)
		if parsed.Gateway.EventQueueSize > 0 {
			config.Gateway.EventQueueSize = parsed.Gateway.EventQueueSize
		}
	}

	if parsed.Session != nil {
		applyDuration(&config.Session.TTL, parsed.Session.TTL)
		applyDuration(&config.Session.SweepInterval, parsed.Session.SweepInterval)
	}

	return config, nil
}

func applyDuration(target *time.Duration, raw string) {
	if raw == "" {
		return
	}
	if d, err := time.ParseDuration(raw); err == nil {
		*target = d
	}
}

// Load resolves the effective configuration: a config file when the path is
// set, environment overrides otherwise. The result is always validated.
func Load(configPath string) (*Config, error) {
	var config *Config
	if configPath != "" {
		loaded, err := LoadFromFile(configPath)
		if err != nil {
			return nil, err
		}
		config = loaded
	} else {
		config = LoadFromEnv()
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}
