// Package config loads service configuration from the environment and an
// optional .env file.
package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/dvloznov/quantoda/internal/classifier"
	"github.com/dvloznov/quantoda/internal/history"
	"github.com/dvloznov/quantoda/internal/normalizer"
	"github.com/dvloznov/quantoda/internal/pipeline"
	"github.com/dvloznov/quantoda/internal/session"
)

// Config holds everything the API server and CLI need.
type Config struct {
	// Core
	Port      string
	LogLevel  string
	LogFormat string

	// Classifier
	GeminiAPIKey      string
	GeminiModel       string
	ClassifierTimeout time.Duration
	ClassifierRetries int
	PromptProfilePath string
	MaxStatementChars int

	// Uploads
	MaxUploadBytes int64

	// History
	History history.BackendConfig

	// Archive
	BigQueryProject string

	// Sessions and payments
	SessionTTL         time.Duration
	FreeCredits        int
	CreditsPerPurchase int
	AbacatePayAPIKey   string
	AbacatePayBaseURL  string
	PaymentReturnURL   string

	// Jobs
	Workers      int
	QueueSize    int
	JobRetries   int
	JobBackoff   time.Duration
	RateInterval time.Duration
	RateBurst    int

	// Notion export
	NotionToken      string
	NotionDatabaseID string
}

// Load reads the .env file (current or parent directory) if present, then
// the process environment.
func Load(log zerolog.Logger) *Config {
	errEnv := godotenv.Load()
	if errEnv != nil {
		errEnv = godotenv.Load("../.env")
	}
	switch {
	case errEnv == nil:
		log.Debug().Msg(".env file loaded")
	case errors.Is(errEnv, fs.ErrNotExist):
		log.Debug().Msg("No .env file found, relying on environment variables")
	default:
		log.Warn().Err(errEnv).Msg("Error loading .env file, relying on environment variables")
	}

	return FromEnv(log)
}

// FromEnv builds a Config from the process environment only.
func FromEnv(log zerolog.Logger) *Config {
	cfg := &Config{
		Port:      getEnv("PORT", "8080"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		GeminiAPIKey:      getEnv("GEMINI_API_KEY", ""),
		GeminiModel:       getEnv("GEMINI_MODEL", classifier.DefaultModelName),
		ClassifierTimeout: getEnvAsDuration(log, "CLASSIFIER_TIMEOUT", pipeline.DefaultClassifierTimeout),
		ClassifierRetries: getEnvAsInt(log, "CLASSIFIER_RETRIES", 2),
		PromptProfilePath: getEnv("PROMPT_PROFILE_PATH", ""),
		MaxStatementChars: getEnvAsInt(log, "MAX_STATEMENT_CHARS", normalizer.DefaultMaxChars),

		MaxUploadBytes: int64(getEnvAsInt(log, "MAX_UPLOAD_BYTES", 10<<20)),

		History: history.BackendConfig{
			Backend:     getEnv("HISTORY_BACKEND", history.BackendFile),
			Dir:         getEnv("HISTORY_DIR", "./data/history"),
			Bucket:      getEnv("HISTORY_BUCKET", ""),
			Prefix:      getEnv("HISTORY_PREFIX", ""),
			DatabaseURL: getEnv("DATABASE_URL", ""),
		},

		BigQueryProject: getEnv("BIGQUERY_PROJECT", ""),

		SessionTTL:         getEnvAsDuration(log, "SESSION_TTL", session.DefaultTTL),
		FreeCredits:        getEnvAsInt(log, "FREE_CREDITS", session.DefaultFreeCredits),
		CreditsPerPurchase: getEnvAsInt(log, "CREDITS_PER_PURCHASE", session.DefaultCreditsPerPurchase),
		AbacatePayAPIKey:   getEnv("ABACATEPAY_API_KEY", ""),
		AbacatePayBaseURL:  getEnv("ABACATEPAY_BASE_URL", ""),
		PaymentReturnURL:   getEnv("PAYMENT_RETURN_URL", "http://localhost:3000"),

		Workers:      getEnvAsInt(log, "WORKERS", 2),
		QueueSize:    getEnvAsInt(log, "QUEUE_SIZE", 100),
		JobRetries:   getEnvAsInt(log, "JOB_RETRIES", 2),
		JobBackoff:   getEnvAsDuration(log, "JOB_BACKOFF", time.Second),
		RateInterval: getEnvAsDuration(log, "RATE_LIMIT_INTERVAL", 100*time.Millisecond),
		RateBurst:    getEnvAsInt(log, "RATE_LIMIT_BURST", 30),

		NotionToken:      getEnv("NOTION_TOKEN", ""),
		NotionDatabaseID: getEnv("NOTION_DATABASE_ID", ""),
	}

	if cfg.GeminiAPIKey == "" {
		log.Warn().Msg("GEMINI_API_KEY not set, analyses will fail")
	}
	return cfg
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return defaultValue
}

func getEnvAsInt(log zerolog.Logger, key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Warn().Str("key", key).Str("value", valueStr).Int("default", defaultValue).Msg("Invalid integer, using default")
		return defaultValue
	}
	return value
}

func getEnvAsDuration(log zerolog.Logger, key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Warn().Str("key", key).Str("value", valueStr).Dur("default", defaultValue).Msg("Invalid duration, using default")
		return defaultValue
	}
	return value
}
