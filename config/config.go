package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config holds all application configuration
type Config struct {
	OpenRouterAPIKey string `env:"OPENROUTER_API_KEY" envDefault:"-"`
	AnthropicAPIKey  string `env:"ANTHROPIC_API_KEY" envDefault:"-"`
	DatabaseURL      string `env:"DATABASE_URL" envDefault:""`
	RedisURL         string `env:"REDIS_URL" envDefault:""`
	ListenAddr       string `env:"LISTEN_ADDR" envDefault:":8080"`
	LogLevel         string `env:"LOG_LEVEL" envDefault:"info"`

	RequestTimeout  int     `env:"REQUEST_TIMEOUT" envDefault:"30"` // seconds
	SourceTimeout   int     `env:"SOURCE_TIMEOUT" envDefault:"20"`  // seconds, per forecast source
	RequestsPerSec  int     `env:"REQUESTS_PER_SEC" envDefault:"5"`
	CacheTTLMinutes int     `env:"CACHE_TTL_MINUTES" envDefault:"60"`
	RiskFreeRate    float64 `env:"RISK_FREE_RATE" envDefault:"4.5"`

	DefaultTimeframe string `env:"DEFAULT_TIMEFRAME" envDefault:"90d"`
	EnableClaude     bool   `env:"ENABLE_CLAUDE" envDefault:"true"`
	EnableOpenRouter bool   `env:"ENABLE_OPENROUTER" envDefault:"true"`
}

// Load initializes configuration from environment variables
func Load() (*Config, error) {
	// Load environment variables from .env file if present
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg(".env file not found, relying on actual environment variables")
	}

	var cfg Config

	cfg.OpenRouterAPIKey = os.Getenv("OPENROUTER_API_KEY")
	cfg.AnthropicAPIKey = os.Getenv("ANTHROPIC_API_KEY")
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.RedisURL = os.Getenv("REDIS_URL")
	cfg.ListenAddr = getEnvWithDefault("LISTEN_ADDR", ":8080")
	cfg.LogLevel = getEnvWithDefault("LOG_LEVEL", "info")
	cfg.RequestTimeout = getEnvIntWithDefault("REQUEST_TIMEOUT", 30)
	cfg.SourceTimeout = getEnvIntWithDefault("SOURCE_TIMEOUT", 20)
	cfg.RequestsPerSec = getEnvIntWithDefault("REQUESTS_PER_SEC", 5)
	cfg.CacheTTLMinutes = getEnvIntWithDefault("CACHE_TTL_MINUTES", 60)
	cfg.RiskFreeRate = getEnvFloatWithDefault("RISK_FREE_RATE", 4.5)
	cfg.DefaultTimeframe = getEnvWithDefault("DEFAULT_TIMEFRAME", "90d")
	cfg.EnableClaude = getEnvBoolWithDefault("ENABLE_CLAUDE", true)
	cfg.EnableOpenRouter = getEnvBoolWithDefault("ENABLE_OPENROUTER", true)

	return &cfg, nil
}

// Helper functions for environment variable handling
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatWithDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBoolWithDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}
