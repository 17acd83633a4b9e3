// internal/config/config.go
//
// Service configuration read from the environment.
// A .env file in the working directory is loaded first (if present); real
// environment variables always win over it.

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Riddle sources.
const (
	SourceMemory = "memory"
	SourceSQLite = "sqlite"
)

// devSecret is only acceptable outside production.
const devSecret = "dev_secret_change_me"

type Config struct {
	Port         string
	LogLevel     zerolog.Level
	LogConsole   bool
	ClientOrigin string

	// Session tokens and sweeping
	SessionSecret string
	SessionTTL    time.Duration
	SessionIdle   time.Duration

	// Riddle content
	RiddleSource    string
	RiddleDB        string
	RiddlesFile     string
	ProviderLatency time.Duration

	// Game rules
	TotalRounds  int
	RoundSeconds int
}

// Load reads .env and the environment. Malformed values are errors rather
// than silent defaults.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds a Config from the current environment only.
func FromEnv() (*Config, error) {
	c := &Config{
		Port:          getEnv("PORT", "5175"),
		ClientOrigin:  getEnv("CLIENT_ORIGIN", "http://localhost:5173"),
		SessionSecret: getEnv("SESSION_SECRET", devSecret),
		RiddleSource:  strings.ToLower(getEnv("RIDDLE_SOURCE", SourceMemory)),
		RiddleDB:      getEnv("RIDDLE_DB", "./data/riddles.db"),
		RiddlesFile:   os.Getenv("RIDDLES_FILE"),
		LogConsole:    strings.EqualFold(os.Getenv("LOG_FORMAT"), "console"),
	}

	lvl, err := zerolog.ParseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	c.LogLevel = lvl

	if c.SessionTTL, err = durationEnv("SESSION_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if c.SessionIdle, err = durationEnv("SESSION_IDLE", 30*time.Minute); err != nil {
		return nil, err
	}
	// 0 disables simulated latency; 300-500ms feels like a remote generator
	if c.ProviderLatency, err = durationEnv("PROVIDER_LATENCY", 0); err != nil {
		return nil, err
	}
	if c.TotalRounds, err = intEnv("TOTAL_ROUNDS", 10); err != nil {
		return nil, err
	}
	if c.RoundSeconds, err = intEnv("ROUND_SECONDS", 15); err != nil {
		return nil, err
	}

	switch c.RiddleSource {
	case SourceMemory, SourceSQLite:
	default:
		return nil, fmt.Errorf("RIDDLE_SOURCE: unknown source %q", c.RiddleSource)
	}
	if os.Getenv("NODE_ENV") == "production" && c.SessionSecret == devSecret {
		return nil, fmt.Errorf("SESSION_SECRET must be set in production")
	}
	return c, nil
}

// Production reports whether cookies should be marked Secure.
func (c *Config) Production() bool { return os.Getenv("NODE_ENV") == "production" }

// getEnv returns the value of k or def if unset/empty.
func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func durationEnv(k string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%s: invalid duration %q", k, v)
	}
	return d, nil
}

func intEnv(k string, def int) (int, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s: want a positive integer, got %q", k, v)
	}
	return n, nil
}
