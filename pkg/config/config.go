// Package config holds daemon configuration: defaults, optional YAML
// overrides, and logger construction.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration. Defaults target SwitchBot
// sensors: company id 0x0969 and service UUID 0xFD3D.
type Config struct {
	ListenAddr string `yaml:"listen_addr" default:":7430"`
	LogLevel   string `yaml:"log_level" default:"info"`

	CompanyID   uint16 `yaml:"company_id" default:"2409"`    // 0x0969
	ServiceUUID uint16 `yaml:"service_uuid" default:"64829"` // 0xFD3D

	// AllowDuplicates asks the scanner for every advertisement rather
	// than one per device, which split readings depend on.
	AllowDuplicates bool `yaml:"allow_duplicates" default:"true"`
}

// DefaultConfig returns the configuration with default values applied.
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML config file over the defaults. An empty path
// returns the defaults untouched.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// NewLogger creates a configured logger instance.
func (c *Config) NewLogger() (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}

	logger := logrus.New()
	logger.SetLevel(level)

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger, nil
}
