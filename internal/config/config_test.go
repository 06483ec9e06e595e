package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("DEDUP_WINDOW", "")
	t.Setenv("OUTBOUND_RETRY_DELAY", "")
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("expected default log level, got %s", cfg.LogLevel)
	}
	if cfg.DedupWindow != 5*time.Minute {
		t.Fatalf("expected default dedup window, got %s", cfg.DedupWindow)
	}
	if cfg.OutboundMaxRetries != 2 {
		t.Fatalf("expected default max retries, got %d", cfg.OutboundMaxRetries)
	}
	if cfg.OutboundRetryDelay != 4*time.Hour {
		t.Fatalf("expected default retry delay, got %s", cfg.OutboundRetryDelay)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DATABASE_URL", "postgres://user@host/db")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("GEMINI_MODEL_ID", "gemini-2.5-pro")
	t.Setenv("SMS_API_KEY", "key_test")
	t.Setenv("DEDUP_WINDOW", "10m")
	t.Setenv("OUTBOUND_MAX_RETRIES", "5")
	t.Setenv("OUTBOUND_RETRY_DELAY", "90m")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if cfg.Env != "production" {
		t.Fatalf("expected env override, got %s", cfg.Env)
	}
	if cfg.DatabaseURL != "postgres://user@host/db" {
		t.Fatalf("expected db override, got %s", cfg.DatabaseURL)
	}
	if cfg.RedisAddr != "redis:6379" {
		t.Fatalf("expected redis override, got %s", cfg.RedisAddr)
	}
	if cfg.GeminiModelID != "gemini-2.5-pro" {
		t.Fatalf("expected gemini model override, got %s", cfg.GeminiModelID)
	}
	if cfg.SMSAPIKey != "key_test" {
		t.Fatalf("expected sms key override, got %s", cfg.SMSAPIKey)
	}
	if cfg.DedupWindow != 10*time.Minute {
		t.Fatalf("expected dedup window override, got %s", cfg.DedupWindow)
	}
	if cfg.OutboundMaxRetries != 5 {
		t.Fatalf("expected max retries override, got %d", cfg.OutboundMaxRetries)
	}
	if cfg.OutboundRetryDelay != 90*time.Minute {
		t.Fatalf("expected retry delay override, got %s", cfg.OutboundRetryDelay)
	}
}

func TestLoadInvalidDurationFallsBack(t *testing.T) {
	t.Setenv("DEDUP_WINDOW", "not-a-duration")
	cfg := Load()
	if cfg.DedupWindow != 5*time.Minute {
		t.Fatalf("expected fallback dedup window, got %s", cfg.DedupWindow)
	}
}
