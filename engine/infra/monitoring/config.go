package monitoring

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Config holds configuration for the monitoring service.
type Config struct {
	Enabled bool
	// File receives a Prometheus text snapshot on Flush.
	File string
}

// DefaultConfig returns default monitoring configuration
func DefaultConfig() *Config {
	return &Config{Enabled: false}
}

// FileConfig enables monitoring when path is set.
func FileConfig(path string) *Config {
	path = strings.TrimSpace(path)
	return &Config{Enabled: path != "", File: path}
}

// Validate validates the monitoring configuration
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.File == "" {
		return fmt.Errorf("monitoring file cannot be empty when monitoring is enabled")
	}
	if strings.HasSuffix(c.File, string(filepath.Separator)) {
		return fmt.Errorf("monitoring file must name a file, got directory %s", c.File)
	}
	return nil
}
