package infra

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	SQLitePath  string
	JWTSecret   string

	GlobalConcurrencyLimit int
	WorkerPollInterval     time.Duration
	WorkerErrorBackoff     time.Duration

	StorageBackend string
	StoragePath    string
	StorageBaseURL string
	GCSBucketName  string

	RunpodEndpointID string
	RunpodAPIKey     string
	GeminiAPIKey     string
	GeminiBaseURL    string

	GroqAPIKey  string
	GroqModel   string
	GroqBaseURL string

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		SQLitePath:  getEnv("SQLITE_PATH", "jobs.db"),
		JWTSecret:   os.Getenv("JWT_SECRET"),

		GlobalConcurrencyLimit: getEnvInt("GLOBAL_CONCURRENCY_LIMIT", 5),
		WorkerPollInterval:     time.Second * time.Duration(getEnvInt("WORKER_POLL_SECONDS", 2)),
		WorkerErrorBackoff:     time.Second * time.Duration(getEnvInt("WORKER_BACKOFF_SECONDS", 5)),

		StorageBackend: getEnv("STORAGE_BACKEND", "file"),
		StoragePath:    getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL: getEnv("STORAGE_BASE_URL", "http://localhost:8080/static"),
		GCSBucketName:  os.Getenv("GCS_BUCKET_NAME"),

		RunpodEndpointID: os.Getenv("RUNPOD_ENDPOINT_ID"),
		RunpodAPIKey:     os.Getenv("RUNPOD_API_KEY"),
		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
		GeminiBaseURL:    getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),

		GroqAPIKey:  os.Getenv("GROQ_API_KEY"),
		GroqModel:   getEnv("GROQ_MODEL", "llama-3.3-70b-versatile"),
		GroqBaseURL: getEnv("GROQ_BASE_URL", "https://api.groq.com/openai/v1"),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	if cfg.GlobalConcurrencyLimit < 1 {
		return nil, fmt.Errorf("GLOBAL_CONCURRENCY_LIMIT must be at least 1")
	}

	if cfg.StorageBackend == "gcs" && cfg.GCSBucketName == "" {
		return nil, fmt.Errorf("GCS_BUCKET_NAME is required when STORAGE_BACKEND=gcs")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
