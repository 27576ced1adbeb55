package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Assessment   AssessmentConfig
	Matching     MatchingConfig
	Coordinator  CoordinatorConfig
	Notification NotificationConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values. An empty DSN switches the
// service to in-memory stores.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AssessmentConfig tunes the report classification stage.
type AssessmentConfig struct {
	NLUEndpoint      string
	TimeoutSeconds   int
	RetryAttempts    int
	RetryBackoffMS   int
	FallbackSeverity int
}

// MatchingConfig tunes unit selection. A zero MaxRadiusMeters disables the
// travel radius filter.
type MatchingConfig struct {
	AverageSpeedKMH float64
	MaxRadiusMeters float64
}

// CoordinatorConfig tunes the dispatch pipeline loop.
type CoordinatorConfig struct {
	Workers                int
	RequeueIntervalSeconds int
	ShutdownTimeoutSeconds int
}

// NotificationConfig controls where lifecycle events are published.
type NotificationConfig struct {
	ChannelPrefix string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	fallbackSeverity := getEnvAsInt("ASSESS_FALLBACK_SEVERITY", 5)
	if fallbackSeverity < 1 || fallbackSeverity > 10 {
		return nil, fmt.Errorf("ASSESS_FALLBACK_SEVERITY out of range: %d", fallbackSeverity)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "dispatch-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Assessment: AssessmentConfig{
			NLUEndpoint:      getEnv("NLU_ENDPOINT_URL", ""),
			TimeoutSeconds:   getEnvAsInt("NLU_TIMEOUT_SECONDS", 2),
			RetryAttempts:    getEnvAsInt("NLU_RETRY_ATTEMPTS", 2),
			RetryBackoffMS:   getEnvAsInt("NLU_RETRY_BACKOFF_MS", 200),
			FallbackSeverity: fallbackSeverity,
		},
		Matching: MatchingConfig{
			AverageSpeedKMH: getEnvAsFloat("MATCH_AVERAGE_SPEED_KMH", 50),
			MaxRadiusMeters: getEnvAsFloat("MATCH_MAX_RADIUS_METERS", 0),
		},
		Coordinator: CoordinatorConfig{
			Workers:                getEnvAsInt("COORDINATOR_WORKERS", 4),
			RequeueIntervalSeconds: getEnvAsInt("COORDINATOR_REQUEUE_INTERVAL_SECONDS", 15),
			ShutdownTimeoutSeconds: getEnvAsInt("COORDINATOR_SHUTDOWN_TIMEOUT_SECONDS", 10),
		},
		Notification: NotificationConfig{
			ChannelPrefix: getEnv("NOTIFY_CHANNEL_PREFIX", "dispatch"),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// Timeout returns the per-call deadline for the classification endpoint.
func (a AssessmentConfig) Timeout() time.Duration {
	if a.TimeoutSeconds <= 0 {
		return 2 * time.Second
	}
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// RetryBackoff returns the pause between classification retries.
func (a AssessmentConfig) RetryBackoff() time.Duration {
	if a.RetryBackoffMS <= 0 {
		return 0
	}
	return time.Duration(a.RetryBackoffMS) * time.Millisecond
}

// RequeueInterval returns how often queued incidents are re-attempted.
func (c CoordinatorConfig) RequeueInterval() time.Duration {
	if c.RequeueIntervalSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.RequeueIntervalSeconds) * time.Second
}

// ShutdownTimeout bounds how long graceful shutdown may take.
func (c CoordinatorConfig) ShutdownTimeout() time.Duration {
	if c.ShutdownTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsFloat(key string, fallback float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return fallback
	}
	return parsed
}
