package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	DatabaseURL string

	RedisAddr     string
	RedisPassword string

	GeminiAPIKey  string
	GeminiModelID string

	SMSAPIKey    string
	SMSProfileID string
	SMSBaseURL   string

	DedupWindow      time.Duration
	CampaignCacheTTL time.Duration

	OutboundMaxRetries int
	OutboundRetryDelay time.Duration
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
		GeminiModelID: getEnv("GEMINI_MODEL_ID", ""),

		SMSAPIKey:    getEnv("SMS_API_KEY", ""),
		SMSProfileID: getEnv("SMS_PROFILE_ID", ""),
		SMSBaseURL:   getEnv("SMS_BASE_URL", ""),

		DedupWindow:      getEnvAsDuration("DEDUP_WINDOW", 5*time.Minute),
		CampaignCacheTTL: getEnvAsDuration("CAMPAIGN_CACHE_TTL", time.Minute),

		OutboundMaxRetries: getEnvAsInt("OUTBOUND_MAX_RETRIES", 2),
		OutboundRetryDelay: getEnvAsDuration("OUTBOUND_RETRY_DELAY", 4*time.Hour),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
