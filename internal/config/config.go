package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr        string
	ShutdownTimeout time.Duration
	LogLevel        string

	DatabaseDriver string
	DatabaseURL    string

	CatalogPath string
	RecipesPath string
	Currency    string
	TaxRateBps  int64

	JWTSecret       string
	SessionTokenTTL time.Duration

	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string

	RedisAddr    string
	CartCacheTTL time.Duration

	SMTPHost string
	SMTPPort string
	SMTPFrom string
}

// Load reads the configuration from the environment. Malformed numbers and
// durations are reported instead of silently defaulted.
func Load() (Config, error) {
	cfg := Config{
		HTTPAddr:       getEnv("HTTP_ADDR", ":8080"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		DatabaseDriver: getEnv("DATABASE_DRIVER", "sqlite"),
		DatabaseURL:    getEnv("DATABASE_URL", "file:commerce.db"),
		CatalogPath:    os.Getenv("CATALOG_PATH"),
		RecipesPath:    os.Getenv("RECIPES_PATH"),
		Currency:       strings.ToUpper(getEnv("CURRENCY", "INR")),
		JWTSecret:      getEnv("JWT_SECRET", "dev-secret-change-me"),
		KafkaBrokers:   splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:     getEnv("KAFKA_TOPIC", "commerce-events"),
		KafkaGroupID:   getEnv("KAFKA_GROUP_ID", "commerce-notifier"),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		SMTPHost:       getEnv("SMTP_HOST", "localhost"),
		SMTPPort:       getEnv("SMTP_PORT", "1025"),
		SMTPFrom:       getEnv("SMTP_FROM", "orders@example.com"),
	}

	var err error
	if cfg.TaxRateBps, err = getEnvInt64("TAX_RATE_BPS", 1000); err != nil {
		return Config{}, err
	}
	if cfg.TaxRateBps < 0 {
		return Config{}, fmt.Errorf("config: TAX_RATE_BPS must not be negative, got %d", cfg.TaxRateBps)
	}
	if cfg.ShutdownTimeout, err = getEnvDuration("SHUTDOWN_TIMEOUT", 5*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.SessionTokenTTL, err = getEnvDuration("SESSION_TOKEN_TTL", 24*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.CartCacheTTL, err = getEnvDuration("CART_CACHE_TTL", 15*time.Minute); err != nil {
		return Config{}, err
	}

	switch cfg.DatabaseDriver {
	case "sqlite", "postgres":
	default:
		return Config{}, fmt.Errorf("config: unsupported DATABASE_DRIVER %q", cfg.DatabaseDriver)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) (int64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
