package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Env      string
	Server   ServerConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Assets   AssetsConfig
	Logger   LoggerConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            string
	PathPrefix      string
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host            string
	Port            string
	Username        string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	Embedded        bool
	EmbeddedPath    string
	Silent          bool
}

// AuthConfig holds JWT verification settings for the admin API
type AuthConfig struct {
	JWTSecret string
	AdminRole string
}

// AssetsConfig controls where generated QR codes and passports are written
// and how they are addressed publicly.
type AssetsConfig struct {
	RootDir         string
	PublicBaseURL   string
	PassportBaseURL string
}

// LoggerConfig holds zap logger settings
type LoggerConfig struct {
	Level             string
	Encoding          string
	Development       bool
	DisableCaller     bool
	DisableStacktrace bool
}

// RedisConfig holds the inventory details cache settings.
// The cache is disabled when Addr is empty.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// Enabled reports whether a redis address was configured
func (c RedisConfig) Enabled() bool { return c.Addr != "" }

// KafkaConfig holds the order fulfillment consumer settings.
// The consumer is disabled when no brokers are configured.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// Enabled reports whether at least one broker was configured
func (c KafkaConfig) Enabled() bool { return len(c.Brokers) > 0 }

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	env := getEnv("APP_ENV", "development")

	return &Config{
		Env: env,
		Server: ServerConfig{
			Port:            getEnv("PORT", "3210"),
			PathPrefix:      strings.TrimRight(os.Getenv("HTTP_PATH_PREFIX"), "/"),
			ShutdownTimeout: time.Duration(getEnvInt("SHUTDOWN_TIMEOUT_SECONDS", 10)) * time.Second,
		},
		Database: DatabaseConfig{
			Host:            getEnv("PG_HOST", "localhost"),
			Port:            getEnv("PG_PORT", "5432"),
			Username:        getEnv("PG_USERNAME", "postgres"),
			Password:        os.Getenv("PG_PASSWORD"),
			Database:        getEnv("PG_DATABASE", "stockd"),
			SSLMode:         getEnv("PG_SSLMODE", "disable"),
			MaxOpenConns:    getEnvInt("PG_MAX_OPEN_CONNS", 50),
			MaxIdleConns:    getEnvInt("PG_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: time.Duration(getEnvInt("PG_CONN_MAX_LIFETIME_SECONDS", 3600)) * time.Second,
			Embedded:        getEnvBool("PG_EMBEDDED", false),
			EmbeddedPath:    getEnv("PG_EMBEDDED_PATH", "./db_data"),
			Silent:          getEnvBool("DB_SILENT", env == "production"),
		},
		Auth: AuthConfig{
			JWTSecret: jwtSecret,
			AdminRole: getEnv("ADMIN_ROLE", "admin"),
		},
		Assets: AssetsConfig{
			RootDir:         getEnv("ASSETS_DIR", "./uploads"),
			PublicBaseURL:   strings.TrimRight(getEnv("ASSETS_PUBLIC_URL", "/assets"), "/"),
			PassportBaseURL: strings.TrimRight(getEnv("PASSPORT_BASE_URL", "https://example.com/passport"), "/"),
		},
		Logger: LoggerConfig{
			Level:             getEnv("LOGGER_LEVEL", "info"),
			Encoding:          getEnv("LOGGER_ENCODING", "json"),
			Development:       env == "development",
			DisableCaller:     getEnvBool("LOGGER_DISABLE_CALLER", false),
			DisableStacktrace: getEnvBool("LOGGER_DISABLE_STACKTRACE", true),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getEnvInt("REDIS_DB", 0),
			TTL:      time.Duration(getEnvInt("REDIS_TTL_SECONDS", 300)) * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers: getEnvSlice("KAFKA_BROKERS", nil),
			Topic:   getEnv("KAFKA_TOPIC_FULFILLMENT", "orders.fulfilled"),
			GroupID: getEnv("KAFKA_GROUP_INVENTORY", "stockd-inventory"),
		},
	}, nil
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvSlice(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
