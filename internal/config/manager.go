package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Manager implements the ConfigManager interface.
type Manager struct{}

// NewManager creates a new configuration manager.
func NewManager() *Manager {
	return &Manager{}
}

// Load reads and parses the configuration file.
func (m *Manager) Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filename, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filename, err)
	}

	if err := m.Validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate checks if the configuration values are valid.
func (m *Manager) Validate(config *Config) error {
	cp := &config.ControlPlane

	if cp.ListenPort < 0 || cp.ListenPort > 65535 {
		return fmt.Errorf("invalid listen port: %d (must be 0-65535)", cp.ListenPort)
	}

	if strings.TrimSpace(cp.SharedSecret) == "" {
		return fmt.Errorf("shared secret cannot be empty")
	}

	if len(cp.AdvertisedHostports) == 0 {
		return fmt.Errorf("at least one advertised hostport is required")
	}

	if cp.AuthTimeoutMS <= 0 {
		return fmt.Errorf("auth timeout must be positive: %d", cp.AuthTimeoutMS)
	}

	if cp.InboundBufferBytes < 1024 {
		return fmt.Errorf("inbound buffer too small: %d bytes (minimum 1024)", cp.InboundBufferBytes)
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	logLevel := strings.ToLower(config.Logging.Level)
	if !validLogLevels[logLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", config.Logging.Level)
	}

	if config.CDR.Enabled && strings.TrimSpace(config.CDR.Path) == "" {
		return fmt.Errorf("cdr path cannot be empty when cdr archiving is enabled")
	}

	return nil
}

// GetDefaultConfig returns a configuration with default values.
func GetDefaultConfig() *Config {
	var c Config
	c.ControlPlane.ListenAddress = "0.0.0.0"
	c.ControlPlane.ListenPort = 9022
	c.ControlPlane.SharedSecret = "changeme"
	c.ControlPlane.AdvertisedHostports = []string{"127.0.0.1:9022"}
	c.ControlPlane.AuthTimeoutMS = 2000
	c.ControlPlane.InboundBufferBytes = 12288
	c.Logging.Level = "info"
	c.Logging.File = ""
	c.CDR.Enabled = true
	c.CDR.Path = "./cdr.db"
	return &c
}
