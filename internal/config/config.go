package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the meeting transcription service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	AllowAnyOrigin   bool
	DataDir          string

	MaxMessageBytes    int64
	SessionIdleTimeout time.Duration
	SweepInterval      time.Duration

	FlushMinBytes       int
	FlushMinChunks      int
	FlushMinInterval    time.Duration
	FlushForcedInterval time.Duration
	BufferMaxBytes      int
	BufferMaxChunks     int

	FinalizeWorkers int
	MinutesRetryMax int

	TranscriberProvider string
	AssemblyAIAPIKey    string

	GroqAPIKey  string
	GroqAPIURL  string
	GroqModel   string
	DatabaseURL string

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:            envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:    envOrDefault("APP_METRICS_NAMESPACE", "meetingscribe"),
		AllowAnyOrigin:      false,
		DataDir:             envOrDefault("APP_DATA_DIR", "data"),
		ShutdownTimeout:     15 * time.Second,
		MaxMessageBytes:     1 << 20,
		SessionIdleTimeout:  time.Hour,
		SweepInterval:       60 * time.Second,
		FlushMinBytes:       50000,
		FlushMinChunks:      3,
		FlushMinInterval:    5 * time.Second,
		FlushForcedInterval: 30 * time.Second,
		BufferMaxBytes:      10 << 20,
		BufferMaxChunks:     512,
		FinalizeWorkers:     2,
		MinutesRetryMax:     2,
		TranscriberProvider: envOrDefault("TRANSCRIBER_PROVIDER", "auto"),
		AssemblyAIAPIKey:    trimmedEnv("ASSEMBLYAI_API_KEY"),
		GroqAPIKey:          trimmedEnv("GROQ_API_KEY"),
		GroqAPIURL:          envOrDefault("GROQ_API_URL", "https://api.groq.com"),
		GroqModel:           envOrDefault("GROQ_MODEL", "llama-3.1-70b-versatile"),
		DatabaseURL:         trimmedEnv("DATABASE_URL"),
		MinioEndpoint:       trimmedEnv("MINIO_ENDPOINT"),
		MinioAccessKey:      trimmedEnv("MINIO_ACCESS_KEY"),
		MinioSecretKey:      trimmedEnv("MINIO_SECRET_KEY"),
		MinioBucket:         envOrDefault("MINIO_BUCKET", "meeting-audio"),
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionIdleTimeout, err = durationFromEnv("APP_SESSION_IDLE_TIMEOUT", cfg.SessionIdleTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SweepInterval, err = durationFromEnv("APP_SWEEP_INTERVAL", cfg.SweepInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.FlushMinInterval, err = durationFromEnv("APP_FLUSH_MIN_INTERVAL", cfg.FlushMinInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.FlushForcedInterval, err = durationFromEnv("APP_FLUSH_FORCED_INTERVAL", cfg.FlushForcedInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.MinioUseSSL, err = boolFromEnv("MINIO_USE_SSL", cfg.MinioUseSSL)
	if err != nil {
		return Config{}, err
	}

	maxMessage, err := intFromEnv("APP_MAX_MESSAGE_BYTES", int(cfg.MaxMessageBytes))
	if err != nil {
		return Config{}, err
	}
	cfg.MaxMessageBytes = int64(maxMessage)

	cfg.FlushMinBytes, err = intFromEnv("APP_FLUSH_MIN_BYTES", cfg.FlushMinBytes)
	if err != nil {
		return Config{}, err
	}
	cfg.FlushMinChunks, err = intFromEnv("APP_FLUSH_MIN_CHUNKS", cfg.FlushMinChunks)
	if err != nil {
		return Config{}, err
	}
	cfg.BufferMaxBytes, err = intFromEnv("APP_BUFFER_MAX_BYTES", cfg.BufferMaxBytes)
	if err != nil {
		return Config{}, err
	}
	cfg.BufferMaxChunks, err = intFromEnv("APP_BUFFER_MAX_CHUNKS", cfg.BufferMaxChunks)
	if err != nil {
		return Config{}, err
	}
	cfg.FinalizeWorkers, err = intFromEnv("APP_FINALIZE_WORKERS", cfg.FinalizeWorkers)
	if err != nil {
		return Config{}, err
	}
	cfg.MinutesRetryMax, err = intFromEnv("APP_MINUTES_RETRY_MAX", cfg.MinutesRetryMax)
	if err != nil {
		return Config{}, err
	}

	if cfg.MaxMessageBytes <= 0 {
		return Config{}, fmt.Errorf("APP_MAX_MESSAGE_BYTES must be positive")
	}
	if cfg.SessionIdleTimeout < 10*time.Second {
		return Config{}, fmt.Errorf("APP_SESSION_IDLE_TIMEOUT must be at least 10s")
	}
	if cfg.SweepInterval <= 0 {
		return Config{}, fmt.Errorf("APP_SWEEP_INTERVAL must be positive")
	}
	if cfg.FlushMinBytes <= 0 || cfg.FlushMinChunks <= 0 {
		return Config{}, fmt.Errorf("flush thresholds must be positive")
	}
	if cfg.FlushForcedInterval < cfg.FlushMinInterval {
		return Config{}, fmt.Errorf("APP_FLUSH_FORCED_INTERVAL must not be shorter than APP_FLUSH_MIN_INTERVAL")
	}
	if cfg.BufferMaxBytes < cfg.FlushMinBytes {
		return Config{}, fmt.Errorf("APP_BUFFER_MAX_BYTES must not be smaller than APP_FLUSH_MIN_BYTES")
	}
	if cfg.BufferMaxChunks < cfg.FlushMinChunks {
		return Config{}, fmt.Errorf("APP_BUFFER_MAX_CHUNKS must not be smaller than APP_FLUSH_MIN_CHUNKS")
	}
	if cfg.FinalizeWorkers <= 0 {
		return Config{}, fmt.Errorf("APP_FINALIZE_WORKERS must be positive")
	}
	if cfg.MinutesRetryMax < 0 {
		return Config{}, fmt.Errorf("APP_MINUTES_RETRY_MAX must be >= 0")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func trimmedEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(trimmedEnv(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
