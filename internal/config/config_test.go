package config

import (
	"strings"
	"testing"
	"time"
)

func TestNewConfigDefaults(t *testing.T) {
	// empty numeric values fall back to their defaults
	for _, key := range []string{"POLL_INTERVAL_MS", "HTTP_TIMEOUT_SECONDS", "PREVIEW_SIZE", "REDIS_DB"} {
		t.Setenv(key, "")
	}
	t.Setenv("UPSCALE_SERVICE_URL", "http://localhost:8084/")
	t.Setenv("EVENTS_BACKEND", "none")
	t.Setenv("REDIS_HOST", "localhost")
	t.Setenv("REDIS_PORT", "6379")

	cfg := NewConfig()

	if cfg.ServiceURL != "http://localhost:8084" {
		t.Fatalf("ServiceURL = %q, want trailing slash trimmed", cfg.ServiceURL)
	}
	if cfg.PollInterval != time.Second {
		t.Fatalf("PollInterval = %v, want 1s", cfg.PollInterval)
	}
	if cfg.HTTPTimeout != 300*time.Second {
		t.Fatalf("HTTPTimeout = %v, want 5m", cfg.HTTPTimeout)
	}
	if cfg.PreviewSize != 256 {
		t.Fatalf("PreviewSize = %d, want 256", cfg.PreviewSize)
	}
	if cfg.Events.Backend != EventsNone {
		t.Fatalf("Events.Backend = %q, want none", cfg.Events.Backend)
	}
	if cfg.Events.Redis.Addr != "localhost:6379" {
		t.Fatalf("Redis.Addr = %q", cfg.Events.Redis.Addr)
	}
}

func TestNewConfigOverrides(t *testing.T) {
	t.Setenv("UPSCALE_SERVICE_URL", "http://upscaler:9000")
	t.Setenv("POLL_INTERVAL_MS", "250")
	t.Setenv("HTTP_TIMEOUT_SECONDS", "30")
	t.Setenv("EVENTS_BACKEND", "RabbitMQ")
	t.Setenv("PREVIEW_SIZE", "128")

	cfg := NewConfig()

	if cfg.ServiceURL != "http://upscaler:9000" {
		t.Fatalf("ServiceURL = %q", cfg.ServiceURL)
	}
	if cfg.PollInterval != 250*time.Millisecond {
		t.Fatalf("PollInterval = %v", cfg.PollInterval)
	}
	if cfg.HTTPTimeout != 30*time.Second {
		t.Fatalf("HTTPTimeout = %v", cfg.HTTPTimeout)
	}
	if cfg.Events.Backend != EventsRabbitMQ {
		t.Fatalf("Events.Backend = %q", cfg.Events.Backend)
	}
	if cfg.PreviewSize != 128 {
		t.Fatalf("PreviewSize = %d", cfg.PreviewSize)
	}
}

func TestValidateResetsInvalidValues(t *testing.T) {
	cfg := &Config{
		PollInterval: 0,
		HTTPTimeout:  -time.Second,
		PreviewSize:  4,
		Events:       EventsConfig{Backend: "kafka", Redis: RedisConfig{DB: -1}},
	}

	warnings := validate(cfg)

	if len(warnings) != 5 {
		t.Errorf("warnings = %q, want one per reset value", warnings)
	}
	if cfg.PollInterval != time.Second {
		t.Errorf("PollInterval = %v, want 1s", cfg.PollInterval)
	}
	if cfg.HTTPTimeout != 300*time.Second {
		t.Errorf("HTTPTimeout = %v, want 5m", cfg.HTTPTimeout)
	}
	if cfg.PreviewSize != 256 {
		t.Errorf("PreviewSize = %d, want 256", cfg.PreviewSize)
	}
	if cfg.Events.Backend != EventsNone {
		t.Errorf("Backend = %q, want none", cfg.Events.Backend)
	}
	if cfg.Events.Redis.DB != 0 {
		t.Errorf("Redis.DB = %d, want 0", cfg.Events.Redis.DB)
	}
}

func TestNewConfigWarnings(t *testing.T) {
	t.Setenv("POLL_INTERVAL_MS", "-5")
	t.Setenv("HTTP_TIMEOUT_SECONDS", "")
	t.Setenv("PREVIEW_SIZE", "")
	t.Setenv("REDIS_DB", "")
	t.Setenv("EVENTS_BACKEND", "redis")

	cfg := NewConfig()

	if len(cfg.Warnings) != 1 || !strings.Contains(cfg.Warnings[0], "POLL_INTERVAL_MS") {
		t.Fatalf("Warnings = %q", cfg.Warnings)
	}
}
