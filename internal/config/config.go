package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAppName        = "TipBot"
	defaultAppEnv         = "development"
	defaultPort           = "8080"
	defaultLogLevel       = "info"
	defaultSlackAPIURL    = "https://slack.com/api"
	defaultShutdownDelay  = 10 * time.Second
	defaultExecTimeout    = 60 * time.Second
	defaultMaxConcurrency = 16

	execSecondsEnvVar      = "EXEC_TIMEOUT_SECONDS"
	execDurationEnvVar     = "EXEC_TIMEOUT"
	shutdownSecondsEnvVar  = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar = "SHUTDOWN_TIMEOUT"
)

// Credential store backends accepted in STORE_BACKEND.
const (
	StoreMemory   = "memory"
	StoreFile     = "file"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
	StoreDynamo   = "dynamo"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName  string
	AppEnv   string
	Port     string
	LogLevel string

	SlackBotToken          string
	SlackVerificationToken string
	SlackAPIURL            string
	SPSPFieldID            string

	StoreBackend    string
	RedisURL        string
	DatabaseURL     string
	CredentialsFile string
	DynamoTable     string
	SealKey         []byte

	MaxConcurrency int
	ExecTimeout    time.Duration
	ShutdownPeriod time.Duration
	EnableMetrics  bool
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	cfg := Config{
		AppName:  getEnv("APP_NAME", defaultAppName),
		AppEnv:   getEnv("APP_ENV", defaultAppEnv),
		Port:     getEnv("PORT", defaultPort),
		LogLevel: strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),

		SlackBotToken:          os.Getenv("SLACK_BOT_TOKEN"),
		SlackVerificationToken: os.Getenv("SLACK_VERIFICATION_TOKEN"),
		SlackAPIURL:            getEnv("SLACK_API_URL", defaultSlackAPIURL),
		SPSPFieldID:            os.Getenv("SPSP_FIELD_ID"),

		StoreBackend:    strings.ToLower(getEnv("STORE_BACKEND", StoreMemory)),
		RedisURL:        os.Getenv("REDIS_URL"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		CredentialsFile: os.Getenv("CREDENTIALS_FILE"),
		DynamoTable:     os.Getenv("DYNAMO_TABLE"),

		MaxConcurrency: defaultMaxConcurrency,
		ExecTimeout:    defaultExecTimeout,
		ShutdownPeriod: defaultShutdownDelay,
		EnableMetrics:  getEnv("ENABLE_METRICS", "false") == "true",
	}

	if v := os.Getenv("MAX_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid MAX_CONCURRENCY: %q", v)
		}
		cfg.MaxConcurrency = n
	}

	if v := os.Getenv(execSecondsEnvVar); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", execSecondsEnvVar, err)
		}
		cfg.ExecTimeout = time.Duration(seconds) * time.Second
	} else if v := os.Getenv(execDurationEnvVar); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", execDurationEnvVar, err)
		}
		cfg.ExecTimeout = d
	}

	if v := os.Getenv(shutdownSecondsEnvVar); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", shutdownSecondsEnvVar, err)
		}
		cfg.ShutdownPeriod = time.Duration(seconds) * time.Second
	} else if v := os.Getenv(shutdownDurationEnvVar); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", shutdownDurationEnvVar, err)
		}
		cfg.ShutdownPeriod = d
	}

	if v := os.Getenv("CREDENTIAL_SEAL_KEY"); v != "" {
		key, err := hex.DecodeString(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid CREDENTIAL_SEAL_KEY: %w", err)
		}
		if len(key) != 32 {
			return Config{}, fmt.Errorf("CREDENTIAL_SEAL_KEY must be 64 hex characters, got %d", len(v))
		}
		cfg.SealKey = key
	}

	if cfg.SlackBotToken == "" {
		return Config{}, fmt.Errorf("SLACK_BOT_TOKEN must be set")
	}

	if cfg.SlackVerificationToken == "" {
		return Config{}, fmt.Errorf("SLACK_VERIFICATION_TOKEN must be set")
	}

	switch cfg.StoreBackend {
	case StoreMemory:
	case StoreFile:
		if cfg.CredentialsFile == "" {
			return Config{}, fmt.Errorf("CREDENTIALS_FILE must be set when STORE_BACKEND=file")
		}
	case StoreRedis:
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("REDIS_URL must be set when STORE_BACKEND=redis")
		}
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL must be set when STORE_BACKEND=postgres")
		}
	case StoreDynamo:
		if cfg.DynamoTable == "" {
			return Config{}, fmt.Errorf("DYNAMO_TABLE must be set when STORE_BACKEND=dynamo")
		}
	default:
		return Config{}, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}

	if cfg.SealKey == nil && cfg.StoreBackend != StoreMemory && !cfg.IsDev() {
		return Config{}, fmt.Errorf("CREDENTIAL_SEAL_KEY must be set when APP_ENV=%s", cfg.AppEnv)
	}

	return cfg, nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// IsDev reports whether the configured environment counts as development.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local":
		return true
	default:
		return false
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
