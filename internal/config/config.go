// Package config loads and validates application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// API settings.
	BaseURL        string
	RequestTimeout time.Duration

	// Progress tracking settings.
	PollInterval time.Duration
	PollTimeout  time.Duration

	// Export settings.
	ExportDir        string
	ExportResolution int // DPI for raster exports; 150-600.
	IncludeLegend    bool
	PaperSize        string

	// Operational settings.
	LogLevel string
}

// Load reads configuration from environment variables with sensible defaults.
// All malformed variables are reported together in one error.
func Load() (Config, error) {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	cfg := Config{BaseURL: envStr("TERRALENS_BASE_URL", "http://localhost:8000")}

	var err error
	cfg.RequestTimeout, err = envDuration("TERRALENS_REQUEST_TIMEOUT", 30*time.Second)
	collect(err)
	cfg.PollInterval, err = envDuration("TERRALENS_POLL_INTERVAL", 2*time.Second)
	collect(err)
	cfg.PollTimeout, err = envDuration("TERRALENS_POLL_TIMEOUT", 10*time.Second)
	collect(err)
	cfg.ExportDir = envStr("TERRALENS_EXPORT_DIR", "exports")
	cfg.ExportResolution, err = envInt("TERRALENS_EXPORT_RESOLUTION", 300)
	collect(err)
	cfg.IncludeLegend, err = envBool("TERRALENS_INCLUDE_LEGEND", true)
	collect(err)
	cfg.PaperSize = envStr("TERRALENS_PAPER_SIZE", "A4")
	cfg.LogLevel = envStr("TERRALENS_LOG_LEVEL", "info")

	if len(errs) > 0 {
		return Config{}, fmt.Errorf("config: %w", errors.Join(errs...))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the loaded configuration is usable.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("config: TERRALENS_BASE_URL is required")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("config: TERRALENS_POLL_INTERVAL must be positive")
	}
	if c.ExportResolution < 150 || c.ExportResolution > 600 {
		return fmt.Errorf("config: TERRALENS_EXPORT_RESOLUTION must be in 150-600")
	}
	return nil
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid integer", key, v)
	}
	return n, nil
}

func envBool(key string, defaultVal bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s=%q is not a valid boolean", key, v)
	}
	return b, nil
}

func envDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid duration", key, v)
	}
	return d, nil
}
