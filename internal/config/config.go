package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// SessionBackend selects the session store: memory, redis or dynamodb.
	SessionBackend string
	SessionTable   string
	SessionTTL     time.Duration

	// CatalogBackend selects the symptom catalog: memory or postgres.
	CatalogBackend  string
	CatalogCacheTTL time.Duration

	LLMProvider            string
	BedrockModelID         string
	BedrockFallbackModelID string
	GeminiAPIKey           string
	GeminiModel            string
	ModelTimeout           time.Duration
	ModelMaxTokens         int

	MaxQuestionsPerSymptom int
	UrgentPhrases          []string
	HighPriorityPhrases    []string

	ClinicTimezone string
	SlotSearchDays int

	TurnQueueURL   string
	UseMemoryQueue bool
	WorkerCount    int

	ArchiveBucket   string
	DisclaimerLevel string

	AMQPURL            string
	EmergencyExchange  string
	OutboxPollInterval time.Duration

	AdminJWTSecret     string
	CORSAllowedOrigins []string
	RateLimitPerMinute int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		SessionBackend: strings.ToLower(getEnv("SESSION_BACKEND", "memory")),
		SessionTable:   getEnv("SESSION_TABLE", "intake_sessions"),
		SessionTTL:     getEnvAsDuration("SESSION_TTL", 24*time.Hour),

		CatalogBackend:  strings.ToLower(getEnv("CATALOG_BACKEND", "memory")),
		CatalogCacheTTL: getEnvAsDuration("CATALOG_CACHE_TTL", 5*time.Minute),

		LLMProvider:            strings.ToLower(getEnv("LLM_PROVIDER", "bedrock")),
		BedrockModelID:         getEnv("BEDROCK_MODEL_ID", ""),
		BedrockFallbackModelID: getEnv("BEDROCK_FALLBACK_MODEL_ID", ""),
		GeminiAPIKey:           getEnv("GEMINI_API_KEY", ""),
		GeminiModel:            getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		ModelTimeout:           getEnvAsDuration("MODEL_TIMEOUT", 20*time.Second),
		ModelMaxTokens:         getEnvAsInt("MODEL_MAX_TOKENS", 600),

		MaxQuestionsPerSymptom: getEnvAsInt("MAX_QUESTIONS_PER_SYMPTOM", 5),
		UrgentPhrases:          getEnvAsList("URGENT_PHRASES", nil),
		HighPriorityPhrases:    getEnvAsList("HIGH_PRIORITY_PHRASES", nil),

		ClinicTimezone: getEnv("CLINIC_TIMEZONE", "UTC"),
		SlotSearchDays: getEnvAsInt("SLOT_SEARCH_DAYS", 7),

		TurnQueueURL:   getEnv("TURN_QUEUE_URL", ""),
		UseMemoryQueue: getEnvAsBool("USE_MEMORY_QUEUE", true),
		WorkerCount:    getEnvAsInt("WORKER_COUNT", 4),

		ArchiveBucket:   getEnv("ARCHIVE_BUCKET", ""),
		DisclaimerLevel: strings.ToLower(getEnv("DISCLAIMER_LEVEL", "full")),

		AMQPURL:            getEnv("AMQP_URL", ""),
		EmergencyExchange:  getEnv("EMERGENCY_EXCHANGE", "intake.emergency"),
		OutboxPollInterval: getEnvAsDuration("OUTBOX_POLL_INTERVAL", 2*time.Second),

		AdminJWTSecret:     getEnv("ADMIN_JWT_SECRET", ""),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		RateLimitPerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 60),
	}
}

// ClinicLocation resolves ClinicTimezone, falling back to UTC.
func (c *Config) ClinicLocation() *time.Location {
	if c == nil || strings.TrimSpace(c.ClinicTimezone) == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.ClinicTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// IsProduction reports whether ENV is production.
func (c *Config) IsProduction() bool {
	return c != nil && strings.EqualFold(c.Env, "production")
}

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

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
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

// getEnvAsList splits a comma-separated variable, dropping blank entries.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
