// Package config centralizes CryptoCrash's environment-driven settings,
// generalizing the getEnv/getEnvAsInt helpers nutcas3-aviator-fun's
// internal/cache package uses for Redis into a single typed Config
// covering every component (spec.md §6.3).
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	_ "github.com/joho/godotenv/autoload"
)

// Config holds every environment-driven setting CryptoCrash reads at
// startup.
type Config struct {
	Port string

	DBHost     string
	DBPort     string
	DBUsername string
	DBPassword string
	DBDatabase string
	DBSchema   string

	RedisURL      string
	RedisPassword string
	RedisDB       int

	FrontendURL string

	CoinGeckoAPIURL    string
	PriceCacheDuration time.Duration
	PriceFetchTimeout  time.Duration

	HouseEdge       float64
	MultiplierTick  time.Duration
	WaitDuration    time.Duration
	PostCrashWait   time.Duration
	MaxBetUSD       decimal.Decimal
	MinBetUSD       decimal.Decimal
	RateLimitPerMin int

	JWTSecret string

	MigrationsPath string
}

// Load reads Config from the process environment, applying the same
// defaults spec.md §6.3 names.
func Load() Config {
	return Config{
		Port: getEnv("PORT", "8080"),

		DBHost:     getEnv("BLUEPRINT_DB_HOST", "localhost"),
		DBPort:     getEnv("BLUEPRINT_DB_PORT", "5432"),
		DBUsername: getEnv("BLUEPRINT_DB_USERNAME", "postgres"),
		DBPassword: getEnv("BLUEPRINT_DB_PASSWORD", "postgres"),
		DBDatabase: getEnv("BLUEPRINT_DB_DATABASE", "crashdb"),
		DBSchema:   getEnv("BLUEPRINT_DB_SCHEMA", "public"),

		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		FrontendURL: getEnv("FRONTEND_URL", "*"),

		CoinGeckoAPIURL:    getEnv("COINGECKO_API_URL", "https://api.coingecko.com/api/v3/simple/price"),
		PriceCacheDuration: getEnvAsDuration("PRICE_CACHE_DURATION_MS", 10000*time.Millisecond),
		PriceFetchTimeout:  5 * time.Second,

		HouseEdge:       getEnvAsFloat("HOUSE_EDGE", 0.04),
		MultiplierTick:  getEnvAsDuration("MULTIPLIER_TICK_MS", 100*time.Millisecond),
		WaitDuration:    getEnvAsDuration("WAIT_MS", 5000*time.Millisecond),
		PostCrashWait:   getEnvAsDuration("POST_CRASH_MS", 5000*time.Millisecond) + time.Second,
		MaxBetUSD:       decimal.NewFromFloat(getEnvAsFloat("MAX_BET_USD", 10000)),
		MinBetUSD:       decimal.NewFromFloat(0.01),
		RateLimitPerMin: getEnvAsInt("RATE_LIMIT_PER_MIN", 100),

		JWTSecret: getEnv("JWT_SECRET", "dev-secret-change-me"),

		MigrationsPath: getEnv("MIGRATIONS_PATH", "./migrations"),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if floatVal, err := strconv.ParseFloat(val, 64); err == nil {
			return floatVal
		}
	}
	return defaultVal
}

// getEnvAsDuration parses the env var as milliseconds, matching
// spec.md §6.3's *_MS naming convention.
func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if ms, err := strconv.Atoi(val); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultVal
}
