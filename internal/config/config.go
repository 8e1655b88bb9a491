package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fjod/go_cart/storefront/internal/repository"
)

type Config struct {
	HTTPPort           string
	LogLevel           string
	RequestTimeout     time.Duration
	ShutdownTimeout    time.Duration
	MaxRequestBodySize int64

	MongoURI    string
	MongoDBName string

	RedisAddr     string
	RedisPassword string

	Postgres repository.Credentials

	KafkaBrokers     string
	OrderEventsTopic string

	JWTSecret string

	Payment PaymentConfig
}

type PaymentConfig struct {
	IamportAPIKey    string
	IamportAPISecret string
	IamportBaseURL   string
	SkipVerify       bool
	Timeout          time.Duration
	MaxRetries       uint64
}

// Configured reports whether provider credentials are present.
func (p PaymentConfig) Configured() bool {
	return p.IamportAPIKey != "" && p.IamportAPISecret != ""
}

// Load reads the process environment. Missing values fall back to local
// development defaults; malformed values are an error.
func Load() (*Config, error) {
	var errs []error

	cfg := &Config{
		HTTPPort:           getEnv("HTTP_PORT", "5005"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		RequestTimeout:     getDuration("REQUEST_TIMEOUT", 30*time.Second, &errs),
		ShutdownTimeout:    getDuration("SHUTDOWN_TIMEOUT", 10*time.Second, &errs),
		MaxRequestBodySize: 1 << 20, // 1MB

		MongoURI:    getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDBName: getEnv("MONGO_DB_NAME", "storefront"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		Postgres: repository.Credentials{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getInt("DB_PORT", 5432, &errs),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", "postgres"),
			DBName:            getEnv("DB_NAME", "storefront"),
			MigrationsDirPath: getEnv("MIGRATIONS_PATH", "./internal/repository/migrations"),
		},

		KafkaBrokers:     getEnv("KAFKA_BROKERS", ""),
		OrderEventsTopic: getEnv("ORDER_EVENTS_TOPIC", "order-events"),

		JWTSecret: os.Getenv("JWT_SECRET"),

		Payment: PaymentConfig{
			IamportAPIKey:    strings.TrimSpace(os.Getenv("IAMPORT_API_KEY")),
			IamportAPISecret: strings.TrimSpace(os.Getenv("IAMPORT_API_SECRET")),
			IamportBaseURL:   getEnv("IAMPORT_BASE_URL", "https://api.iamport.kr"),
			SkipVerify:       getBool("PAYMENT_SKIP_VERIFY", false, &errs),
			Timeout:          getDuration("PAYMENT_TIMEOUT", 5*time.Second, &errs),
			MaxRetries:       2,
		},
	}

	if cfg.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if cfg.RequestTimeout <= 0 {
		errs = append(errs, errors.New("REQUEST_TIMEOUT must be positive"))
	}
	if cfg.Payment.Timeout <= 0 {
		errs = append(errs, errors.New("PAYMENT_TIMEOUT must be positive"))
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int, errs *[]error) int {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
		return defaultValue
	}
	return v
}

func getBool(key string, defaultValue bool, errs *[]error) bool {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
		return defaultValue
	}
	return v
}

func getDuration(key string, defaultValue time.Duration, errs *[]error) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
		return defaultValue
	}
	return v
}
