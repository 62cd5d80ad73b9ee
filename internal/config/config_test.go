package config

import (
	"strings"
	"testing"
	"time"
)

func TestEnvIntValid(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	v, err := envInt("TEST_INT", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 42 {
		t.Fatalf("expected 42, got %d", v)
	}
}

func TestEnvIntFallback(t *testing.T) {
	// TEST_INT_MISSING is not set.
	v, err := envInt("TEST_INT_MISSING", 99)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 99 {
		t.Fatalf("expected fallback 99, got %d", v)
	}
}

func TestEnvIntInvalid(t *testing.T) {
	t.Setenv("TEST_INT_BAD", "abc")
	_, err := envInt("TEST_INT_BAD", 0)
	if err == nil {
		t.Fatal("expected error for non-integer value, got nil")
	}
	if got := err.Error(); got != `TEST_INT_BAD="abc" is not a valid integer` {
		t.Fatalf("unexpected error message: %s", got)
	}
}

func TestEnvBoolValid(t *testing.T) {
	t.Setenv("TEST_BOOL", "true")
	v, err := envBool("TEST_BOOL", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !v {
		t.Fatal("expected true")
	}
}

func TestEnvBoolInvalid(t *testing.T) {
	t.Setenv("TEST_BOOL_BAD", "maybe")
	_, err := envBool("TEST_BOOL_BAD", false)
	if err == nil {
		t.Fatal("expected error for non-boolean value, got nil")
	}
	if got := err.Error(); got != `TEST_BOOL_BAD="maybe" is not a valid boolean` {
		t.Fatalf("unexpected error message: %s", got)
	}
}

func TestEnvDurationValid(t *testing.T) {
	t.Setenv("TEST_DUR", "5s")
	v, err := envDuration("TEST_DUR", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Seconds() != 5 {
		t.Fatalf("expected 5s, got %s", v)
	}
}

func TestEnvDurationInvalid(t *testing.T) {
	t.Setenv("TEST_DUR_BAD", "five-seconds")
	_, err := envDuration("TEST_DUR_BAD", 0)
	if err == nil {
		t.Fatal("expected error for invalid duration, got nil")
	}
	if got := err.Error(); got != `TEST_DUR_BAD="five-seconds" is not a valid duration` {
		t.Fatalf("unexpected error message: %s", got)
	}
}

func TestLoadFailsOnInvalidResolution(t *testing.T) {
	t.Setenv("TERRALENS_EXPORT_RESOLUTION", "abc")
	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to fail with invalid TERRALENS_EXPORT_RESOLUTION")
	}
	// Error should mention the variable name and value.
	if got := err.Error(); !strings.Contains(got, "TERRALENS_EXPORT_RESOLUTION") || !strings.Contains(got, "abc") {
		t.Fatalf("error should mention TERRALENS_EXPORT_RESOLUTION and value 'abc', got: %s", got)
	}
}

func TestLoadFailsOnMultipleInvalid(t *testing.T) {
	t.Setenv("TERRALENS_EXPORT_RESOLUTION", "abc")
	t.Setenv("TERRALENS_POLL_INTERVAL", "xyz")
	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to fail with multiple invalid vars")
	}
	got := err.Error()
	if !strings.Contains(got, "TERRALENS_EXPORT_RESOLUTION") {
		t.Fatalf("error should mention TERRALENS_EXPORT_RESOLUTION, got: %s", got)
	}
	if !strings.Contains(got, "TERRALENS_POLL_INTERVAL") {
		t.Fatalf("error should mention TERRALENS_POLL_INTERVAL, got: %s", got)
	}
}

func TestLoadFailsOnOutOfRangeResolution(t *testing.T) {
	t.Setenv("TERRALENS_EXPORT_RESOLUTION", "1200")
	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to reject resolution outside 150-600")
	}
}

func TestLoadSucceedsWithDefaults(t *testing.T) {
	// With no env vars set, Load should succeed using all defaults.
	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected Load() to succeed with defaults, got: %v", err)
	}
	if cfg.BaseURL != "http://localhost:8000" {
		t.Fatalf("unexpected default base URL: %s", cfg.BaseURL)
	}
	if cfg.PollInterval != 2*time.Second {
		t.Fatalf("expected default poll interval 2s, got %s", cfg.PollInterval)
	}
	if cfg.ExportResolution != 300 {
		t.Fatalf("expected default resolution 300, got %d", cfg.ExportResolution)
	}
	if !cfg.IncludeLegend {
		t.Fatal("expected legend enabled by default")
	}
}
