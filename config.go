package testd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type TOMLDuration time.Duration

func (t *TOMLDuration) UnmarshalText(b []byte) error {
	d, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}

	*t = TOMLDuration(d)
	return nil
}

type ServerConfig struct {
	Host            string `toml:"host"`
	Port            int    `toml:"port"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
	AllowAllOrigins bool   `toml:"allow_all_origins"`
}

type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
}

type RedisConfig struct {
	URL       string `toml:"url"`
	Namespace string `toml:"namespace"`
}

type RunnerConfig struct {
	SuiteManifest string `toml:"suite_manifest"`
	GoBinary      string `toml:"go_binary"`
	WorkDir       string `toml:"work_dir"`
	Package       string `toml:"package"`
}

type StreamConfig struct {
	HeartbeatInterval TOMLDuration `toml:"heartbeat_interval"`
}

type Config struct {
	// Version is stamped by the binary, not the config file.
	Version string `toml:"-"`

	LogLevel string        `toml:"log_level"`
	Server   ServerConfig  `toml:"server"`
	Metrics  MetricsConfig `toml:"metrics"`
	Redis    RedisConfig   `toml:"redis"`
	Runner   RunnerConfig  `toml:"runner"`
	Stream   StreamConfig  `toml:"stream"`
}

// ReadFromEnvOrConfig resolves "$VAR" config values from the process
// environment, so secrets like the Redis URL stay out of config files.
func ReadFromEnvOrConfig(value string) (string, error) {
	if strings.HasPrefix(value, "$") {
		envValue := os.Getenv(strings.TrimPrefix(value, "$"))
		if envValue == "" {
			return "", fmt.Errorf("config env var %s not found", value)
		}
		return envValue, nil
	}
	return value, nil
}

func ReadConfig(path string) (*Config, error) {
	cfg := NewDefaultConfig()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func NewDefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Server: ServerConfig{
			Host:           "127.0.0.1",
			Port:           7357,
			TimeoutSeconds: 30,
		},
		Metrics: MetricsConfig{
			Host: "0.0.0.0",
			Port: 9090,
		},
		Redis: RedisConfig{
			Namespace: "testd",
		},
		Runner: RunnerConfig{
			GoBinary: "go",
			Package:  "./...",
		},
		Stream: StreamConfig{
			HeartbeatInterval: TOMLDuration(10 * time.Second),
		},
	}
}

func (c *Config) Validate() error {
	if c.Runner.SuiteManifest == "" {
		return fmt.Errorf("runner.suite_manifest is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	if c.Metrics.Enabled && (c.Metrics.Port <= 0 || c.Metrics.Port > 65535) {
		return fmt.Errorf("invalid metrics.port %d", c.Metrics.Port)
	}
	if c.Redis.URL != "" {
		url, err := ReadFromEnvOrConfig(c.Redis.URL)
		if err != nil {
			return err
		}
		c.Redis.URL = url
	}
	if c.Stream.HeartbeatInterval < 0 {
		return fmt.Errorf("stream.heartbeat_interval must not be negative")
	}
	return nil
}
