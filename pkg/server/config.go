package server

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/aeolun/linechat/pkg/protocol"
)

// ServerConfig holds server configuration
type ServerConfig struct {
	TCPPort              int
	HTTPPort             int // 0 disables the HTTP listener (WebSocket/health/metrics)
	MaxLineLength        int
	IdleTimeoutSeconds   int
	SweepIntervalSeconds int
	WriteTimeoutSeconds  int
}

// DefaultConfig returns default server configuration
func DefaultConfig() ServerConfig {
	return ServerConfig{
		TCPPort:              4000,
		HTTPPort:             0,
		MaxLineLength:        protocol.MaxLineLength,
		IdleTimeoutSeconds:   60,
		SweepIntervalSeconds: 10,
		WriteTimeoutSeconds:  5,
	}
}

// IdleTimeout returns the idle threshold as a duration.
func (c ServerConfig) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutSeconds) * time.Second
}

// SweepInterval returns the reaper period as a duration.
func (c ServerConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

// WriteTimeout returns the per-write deadline as a duration.
func (c ServerConfig) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutSeconds) * time.Second
}

// TOMLConfig represents the structure of the server config file
type TOMLConfig struct {
	Server ServerSection `toml:"server"`
	Limits LimitsSection `toml:"limits"`
}

type ServerSection struct {
	TCPPort  int `toml:"tcp_port"`
	HTTPPort int `toml:"http_port"`
}

type LimitsSection struct {
	MaxLineLength        int `toml:"max_line_length"`
	IdleTimeoutSeconds   int `toml:"idle_timeout_seconds"`
	SweepIntervalSeconds int `toml:"sweep_interval_seconds"`
	WriteTimeoutSeconds  int `toml:"write_timeout_seconds"`
}

// DefaultTOMLConfig returns the default TOML configuration
func DefaultTOMLConfig() TOMLConfig {
	defaults := DefaultConfig()

	return TOMLConfig{
		Server: ServerSection{
			TCPPort:  defaults.TCPPort,
			HTTPPort: defaults.HTTPPort,
		},
		Limits: LimitsSection{
			MaxLineLength:        defaults.MaxLineLength,
			IdleTimeoutSeconds:   defaults.IdleTimeoutSeconds,
			SweepIntervalSeconds: defaults.SweepIntervalSeconds,
			WriteTimeoutSeconds:  defaults.WriteTimeoutSeconds,
		},
	}
}

// LoadConfig loads configuration from a TOML file, creates default if not found
func LoadConfig(path string) (TOMLConfig, error) {
	// Expand ~ in path
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return TOMLConfig{}, fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		// File doesn't exist, create default config
		config := DefaultTOMLConfig()
		if err := writeDefaultConfig(path, config); err != nil {
			// If we can't write, just return defaults without error
			// (might be a permissions issue, but we can still run)
			return config, nil
		}
		return config, nil
	}

	var config TOMLConfig
	if _, err := toml.DecodeFile(path, &config); err != nil {
		return TOMLConfig{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// writeDefaultConfig writes the default config to a file
func writeDefaultConfig(path string, config TOMLConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	header := `# LineChat Server Configuration
# This file was auto-generated with default values
# Edit as needed and restart the server for changes to take effect

`
	if _, err := f.WriteString(header); err != nil {
		return err
	}

	encoder := toml.NewEncoder(f)
	if err := encoder.Encode(config); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// ToServerConfig converts TOMLConfig to ServerConfig, falling back to
// defaults for unset values.
func (c *TOMLConfig) ToServerConfig() ServerConfig {
	cfg := DefaultConfig()

	if c.Server.TCPPort != 0 {
		cfg.TCPPort = c.Server.TCPPort
	}

	if c.Server.HTTPPort != 0 {
		cfg.HTTPPort = c.Server.HTTPPort
	}

	if c.Limits.MaxLineLength != 0 {
		cfg.MaxLineLength = c.Limits.MaxLineLength
	}

	if c.Limits.IdleTimeoutSeconds != 0 {
		cfg.IdleTimeoutSeconds = c.Limits.IdleTimeoutSeconds
	}

	if c.Limits.SweepIntervalSeconds != 0 {
		cfg.SweepIntervalSeconds = c.Limits.SweepIntervalSeconds
	}

	if c.Limits.WriteTimeoutSeconds != 0 {
		cfg.WriteTimeoutSeconds = c.Limits.WriteTimeoutSeconds
	}

	return cfg
}
