package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Library  LibraryConfig  `yaml:"library"`
	Scanner  ScannerConfig  `yaml:"scanner"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds HTTP server settings. When both TLSCert and TLSKey are
// set, an HTTP/3 listener is started on the same port alongside the TCP server.
type ServerConfig struct {
	Port     int    `yaml:"port"`
	BasePath string `yaml:"base_path"`
	TLSCert  string `yaml:"tls_cert"`
	TLSKey   string `yaml:"tls_key"`
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LibraryConfig holds media library path settings.
type LibraryConfig struct {
	Path string `yaml:"path"`
}

// ScannerConfig holds library scan settings.
type ScannerConfig struct {
	IntervalHours int      `yaml:"interval_hours"`
	Watch         bool     `yaml:"watch"`
	Exclusions    []string `yaml:"exclusions"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:     8096,
			BasePath: "/",
		},
		Database: DatabaseConfig{
			Path: "/data/millpond.db",
		},
		Library: LibraryConfig{
			Path: "/media",
		},
		Scanner: ScannerConfig{
			IntervalHours: 12,
			Watch:         true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads config from a YAML file (if it exists) and overrides with
// environment variables. Environment variables take precedence.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	cfg.loadFromEnv()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from trusted config env
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, c)
}

func (c *Config) loadFromEnv() {
	if v := os.Getenv("MP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("MP_BASE_PATH"); v != "" {
		c.Server.BasePath = v
	}
	if v := os.Getenv("MP_TLS_CERT"); v != "" {
		c.Server.TLSCert = v
	}
	if v := os.Getenv("MP_TLS_KEY"); v != "" {
		c.Server.TLSKey = v
	}
	if v := os.Getenv("MP_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("MP_LIBRARY_PATH"); v != "" {
		c.Library.Path = v
	}
	if v := os.Getenv("MP_SCAN_INTERVAL_HOURS"); v != "" {
		if hours, err := strconv.Atoi(v); err == nil {
			c.Scanner.IntervalHours = hours
		}
	}
	if v := os.Getenv("MP_SCAN_WATCH"); v != "" {
		c.Scanner.Watch = v == "true" || v == "1"
	}
	if v := os.Getenv("MP_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("MP_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	if (c.Server.TLSCert == "") != (c.Server.TLSKey == "") {
		return fmt.Errorf("tls_cert and tls_key must be set together")
	}
	if c.Scanner.IntervalHours < 0 {
		return fmt.Errorf("invalid scan interval: %d", c.Scanner.IntervalHours)
	}
	c.Server.BasePath = strings.TrimRight(c.Server.BasePath, "/")
	return nil
}
