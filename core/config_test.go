package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Environment != "production" {
		t.Errorf("expected default environment production, got %s", cfg.Environment)
	}
	if cfg.Resilience.Retry.MaxAttempts != 5 {
		t.Errorf("expected default max attempts 5, got %d", cfg.Resilience.Retry.MaxAttempts)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("expected default log format json, got %s", cfg.Logging.Format)
	}
}

func TestNewConfigRequiresConfigID(t *testing.T) {
	_, err := NewConfig(WithEnvironment("production"))
	if err == nil {
		t.Fatal("expected error when config_id is missing")
	}
	if !IsConfigurationError(err) && !isWrappedMissingConfig(err) {
		t.Errorf("expected a configuration error, got %v", err)
	}
}

func isWrappedMissingConfig(err error) bool {
	fe, ok := err.(*FrameworkError)
	if !ok {
		return false
	}
	return fe.Err == ErrMissingConfiguration
}

func TestNewConfigWithOptions(t *testing.T) {
	cfg, err := NewConfig(
		WithConfigID("abcd1234@AdobeOrg"),
		WithEnvironment("integration"),
		WithDomain("custom.example.com"),
		WithRedisURL("redis://localhost:6379"),
		WithRetry(3, 2*time.Second),
		WithCircuitBreaker(0.3, 10*time.Second),
	)
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	if cfg.ConfigID != "abcd1234@AdobeOrg" {
		t.Errorf("expected config id to be set, got %s", cfg.ConfigID)
	}
	if cfg.Environment != "integration" {
		t.Errorf("expected environment integration, got %s", cfg.Environment)
	}
	if cfg.Persistence.RedisURL != "redis://localhost:6379" {
		t.Errorf("expected redis url to be set, got %s", cfg.Persistence.RedisURL)
	}
	if cfg.Resilience.Retry.MaxAttempts != 3 {
		t.Errorf("expected max attempts 3, got %d", cfg.Resilience.Retry.MaxAttempts)
	}
	if cfg.Resilience.CircuitBreaker.ErrorThreshold != 0.3 {
		t.Errorf("expected error threshold 0.3, got %f", cfg.Resilience.CircuitBreaker.ErrorThreshold)
	}
}

func TestValidateRejectsUnknownEnvironment(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ConfigID = "abcd1234@AdobeOrg"
	cfg.Environment = "staging-3"

	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for unknown environment")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv(EnvConfigID, "from-env@AdobeOrg")
	t.Setenv(EnvEnvironment, "pre-production")
	t.Setenv(EnvRedisURL, "redis://env-host:6379")

	cfg := DefaultConfig()
	if err := cfg.LoadFromEnv(); err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}

	if cfg.ConfigID != "from-env@AdobeOrg" {
		t.Errorf("expected config id from env, got %s", cfg.ConfigID)
	}
	if cfg.Environment != "pre-production" {
		t.Errorf("expected environment from env, got %s", cfg.Environment)
	}
	if cfg.Persistence.RedisURL != "redis://env-host:6379" {
		t.Errorf("expected redis url from env, got %s", cfg.Persistence.RedisURL)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "overlay.yaml")
	contents := "environment: integration\nconfig_id: file-override@AdobeOrg\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write overlay file: %v", err)
	}

	cfg := DefaultConfig()
	cfg.ConfigID = "original@AdobeOrg"
	if err := cfg.LoadFromFile(path); err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}

	if cfg.Environment != "integration" {
		t.Errorf("expected environment overridden by file, got %s", cfg.Environment)
	}
	if cfg.ConfigID != "file-override@AdobeOrg" {
		t.Errorf("expected config id overridden by file, got %s", cfg.ConfigID)
	}
}

func TestWithLoggerOverridesProductionLogger(t *testing.T) {
	custom := &NoOpLogger{}
	cfg, err := NewConfig(WithConfigID("abcd@AdobeOrg"), WithLogger(custom))
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	if cfg.Logger() != Logger(custom) {
		t.Error("expected custom logger to be preserved")
	}
}
