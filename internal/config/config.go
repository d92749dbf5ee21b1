// Package config loads service settings from the environment.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/Shivanand-hulikatti/slot-booking/internal/database"
	"github.com/Shivanand-hulikatti/slot-booking/internal/store"
)

// Storage backends.
const (
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Notification backends.
const (
	NotifyLog   = "log"
	NotifyRedis = "redis"
	NotifyKafka = "kafka"
)

// Config holds every setting the service reads at startup.
type Config struct {
	Port     string
	Env      string
	LogLevel string

	StoreBackend string
	Redis        store.RedisConfig
	MaxTxRetries int
	DB           database.Config

	Auth   AuthConfig
	Notify NotifyConfig

	PublicBaseURL    string
	CreateRatePerMin int
	CORSOrigins      []string
}

// AuthConfig holds the admin credentials and token settings.
type AuthConfig struct {
	AdminPassword     string
	AdminPasswordHash string
	Secret            string
	TokenTTL          time.Duration
}

// NotifyConfig selects and configures the notification sender.
type NotifyConfig struct {
	Backend      string
	RedisChannel string
	KafkaBrokers []string
	KafkaTopic   string
	Timeout      time.Duration
}

// Load reads .env (if present) and the process environment, falling back
// to local-development defaults.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file found; using process environment")
	}

	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("APP_ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		StoreBackend: strings.ToLower(getEnv("STORE_BACKEND", BackendRedis)),
		Redis: store.RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		MaxTxRetries: getEnvInt("MAX_TX_RETRIES", 10),
		DB: database.Config{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "slotbooking"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},

		Auth: AuthConfig{
			AdminPassword:     getEnv("ADMIN_PASSWORD", ""),
			AdminPasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),
			Secret:            getEnv("AUTH_SECRET", ""),
			TokenTTL:          getEnvDuration("AUTH_TOKEN_TTL", 12*time.Hour),
		},
		Notify: NotifyConfig{
			Backend:      strings.ToLower(getEnv("NOTIFY_BACKEND", NotifyLog)),
			RedisChannel: getEnv("NOTIFY_CHANNEL", "booking-notifications"),
			KafkaBrokers: splitList(getEnv("KAFKA_BROKERS", "localhost:9092")),
			KafkaTopic:   getEnv("KAFKA_TOPIC", "booking.created"),
			Timeout:      getEnvDuration("NOTIFY_TIMEOUT", 10*time.Second),
		},

		PublicBaseURL:    strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		CreateRatePerMin: getEnvInt("CREATE_RATE_PER_MIN", 5),
		CORSOrigins:      splitList(getEnv("CORS_ORIGINS", "*")),
	}
}

// Validate reports settings the service cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.Auth.AdminPassword == "" && c.Auth.AdminPasswordHash == "" {
		errs = append(errs, errors.New("ADMIN_PASSWORD or ADMIN_PASSWORD_HASH must be set"))
	}
	if c.Auth.Secret == "" {
		errs = append(errs, errors.New("AUTH_SECRET must be set"))
	}
	switch c.StoreBackend {
	case BackendRedis, BackendPostgres:
	default:
		errs = append(errs, errors.New("STORE_BACKEND must be redis or postgres"))
	}
	switch c.Notify.Backend {
	case NotifyLog, NotifyRedis, NotifyKafka:
	default:
		errs = append(errs, errors.New("NOTIFY_BACKEND must be log, redis or kafka"))
	}
	if c.Notify.Backend == NotifyRedis && c.StoreBackend != BackendRedis {
		errs = append(errs, errors.New("NOTIFY_BACKEND=redis requires STORE_BACKEND=redis"))
	}
	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		log.Warn().Str("key", key).Str("value", v).Msg("invalid integer, using default")
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		log.Warn().Str("key", key).Str("value", v).Msg("invalid duration, using default")
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
