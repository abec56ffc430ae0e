package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config carries everything the client reads from the environment. The API
// origin was hard-coded in earlier deployments; it must stay configurable.
type Config struct {
	APIOrigin   string
	StateDir    string
	HTTPTimeout time.Duration
	Environment string

	// RateLimit paces outbound API calls in requests per second; zero
	// leaves them unpaced. RateBurst is the pacer's burst allowance.
	RateLimit float64
	RateBurst int
}

// Load reads .env when present, then environment variables, applying
// defaults for anything unset.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		APIOrigin:   getEnv("NIVARAN_API_ORIGIN", "http://localhost:5000"),
		StateDir:    getEnv("NIVARAN_STATE_DIR", defaultStateDir()),
		HTTPTimeout: getEnvAsDuration("NIVARAN_HTTP_TIMEOUT", 15*time.Second),
		Environment: getEnv("NIVARAN_ENV", "production"),
		RateLimit:   getEnvAsFloat("NIVARAN_RATE_LIMIT", 0),
		RateBurst:   getEnvAsInt("NIVARAN_RATE_BURST", 1),
	}
}

func defaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".nivaran"
	}
	return filepath.Join(home, ".nivaran")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return fallback
	}
	return f
}

func getEnvAsInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
