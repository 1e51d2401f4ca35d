package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config carries every tunable the server reads from the environment.
type Config struct {
	Port        string
	DatabaseURL string

	JWTSecret    string
	AuthDisabled bool
	CORSOrigins  []string

	CacheTTL        time.Duration
	CacheMaxEntries int

	MaxPredictionsPerMonth int
	MinObservations        int
	ModelFitTimeout        time.Duration
	PrimaryEngineDisabled  bool

	LogLevel string
}

// Load reads a .env file when present, then the process environment.
func Load() (*Config, error) {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := &Config{
		Port:                   getEnv("PORT", "8080"),
		DatabaseURL:            os.Getenv("DATABASE_URL"),
		JWTSecret:              os.Getenv("JWT_SECRET"),
		AuthDisabled:           getBool("AUTH_DISABLED", false),
		CORSOrigins:            splitList(getEnv("CORS_ORIGINS", "*")),
		CacheMaxEntries:        getInt("CACHE_MAX_ENTRIES", 1000),
		MaxPredictionsPerMonth: getInt("MAX_PREDICTIONS_PER_MONTH", 5),
		MinObservations:        getInt("MIN_OBSERVATIONS", 7),
		PrimaryEngineDisabled:  getBool("PRIMARY_ENGINE_DISABLED", false),
		LogLevel:               getEnv("LOG_LEVEL", "info"),
	}
	cfg.CacheTTL = time.Duration(getInt("CACHE_TTL_HOURS", 24)) * time.Hour
	cfg.ModelFitTimeout = time.Duration(getInt("MODEL_FIT_TIMEOUT_SECONDS", 20)) * time.Second

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if !c.AuthDisabled && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required unless AUTH_DISABLED=true")
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("CACHE_TTL_HOURS must be positive")
	}
	if c.CacheMaxEntries <= 0 {
		return fmt.Errorf("CACHE_MAX_ENTRIES must be positive")
	}
	if c.MaxPredictionsPerMonth <= 0 {
		return fmt.Errorf("MAX_PREDICTIONS_PER_MONTH must be positive")
	}
	if c.MinObservations < 2 {
		return fmt.Errorf("MIN_OBSERVATIONS must be at least 2")
	}
	if c.ModelFitTimeout <= 0 {
		return fmt.Errorf("MODEL_FIT_TIMEOUT_SECONDS must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
