package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	ListenAddr  string

	// Reserved credentials resolved at process start. These are deployment-wide
	// shared secrets, not per-tenant keys. Empty value disables the caller class.
	SuperAdminAPIKey string
	GuestAPIKey      string

	GuestLimit      int
	GuestResetAfter time.Duration

	RequiredService string
	DefaultAPILimit int64

	VTO VTOConfig

	Logger LoggerConfig

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int

	RateLimit RateLimitConfig
}

// VTOConfig describes the upstream image service.
type VTOConfig struct {
	BaseURL string
	Timeout time.Duration
}

type LoggerConfig struct {
	Level  string
	Format string
}

// RateLimitConfig configures the optional redis ingress limiter.
type RateLimitConfig struct {
	Enabled       bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Rate          float64
	Burst         int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	environment := getenv("ENVIRONMENT", "development")

	vtoURL := getenv("VTO_SERVICE_URL", "")
	if vtoURL == "" {
		if environment == "production" {
			vtoURL = "https://vto.onrender.com"
		} else {
			vtoURL = "http://localhost:8001"
		}
	}

	return Config{
		AppName:     getenv("APP_SERVICE", "vto-gateway"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: environment,
		ListenAddr:  getenv("LISTEN_ADDR", ":8080"),

		SuperAdminAPIKey: strings.TrimSpace(os.Getenv("SUPER_ADMIN_API_KEY")),
		GuestAPIKey:      strings.TrimSpace(os.Getenv("GUEST_API_KEY")),

		GuestLimit:      getenvInt("GUEST_LIMIT", 200),
		GuestResetAfter: time.Duration(getenvInt("GUEST_RESET_HOURS", 24)) * time.Hour,

		RequiredService: getenv("REQUIRED_SERVICE", "vto_makeup"),
		DefaultAPILimit: getenvInt64("DEFAULT_API_LIMIT", 10000),

		VTO: VTOConfig{
			BaseURL: vtoURL,
			Timeout: time.Duration(getenvInt("VTO_TIMEOUT_SECONDS", 30)) * time.Second,
		},

		Logger: LoggerConfig{
			Level:  getenv("LOG_LEVEL", "info"),
			Format: getenv("LOG_FORMAT", "json"),
		},

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "vto_gateway"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 3600),

		RateLimit: RateLimitConfig{
			Enabled:       getenvBool("RATE_LIMIT_ENABLED", false),
			RedisAddr:     strings.TrimSpace(os.Getenv("RATE_LIMIT_REDIS_ADDR")),
			RedisPassword: strings.TrimSpace(os.Getenv("RATE_LIMIT_REDIS_PASSWORD")),
			RedisDB:       getenvInt("RATE_LIMIT_REDIS_DB", 0),
			Rate:          getenvFloat("RATE_LIMIT_RATE", 50),
			Burst:         getenvInt("RATE_LIMIT_BURST", 100),
		},
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

// Module wires application configuration.
var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewEndpointsHolder),
)
