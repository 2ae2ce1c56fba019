package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

// Storage backends
const (
	StorageFile     = "file"
	StoragePostgres = "postgres"
)

// Config holds all configuration for our application
type Config struct {
	DiscordToken       string
	StorageBackend     string
	DataFile           string
	DatabaseDSN        string
	LogLevel           string
	Location           *time.Location
	PollHour           int
	PollMinute         int
	SummaryHour        int
	SummaryMinute      int
	AwardHour          int
	SetupTimeout       time.Duration
	ResetTotalsOnAward bool
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// .env file is optional, continue with environment variables
	_ = godotenv.Load()

	config := &Config{
		DiscordToken:   os.Getenv("DISCORD_TOKEN"),
		StorageBackend: strings.ToLower(getEnv("STORAGE_BACKEND", StorageFile)),
		DataFile:       getEnv("DATA_FILE", "data/guilds.json"),
		DatabaseDSN:    os.Getenv("DATABASE_DSN"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
	}

	if config.DiscordToken == "" {
		return nil, &ConfigError{Field: "DISCORD_TOKEN", Message: "DISCORD_TOKEN is required"}
	}

	switch config.StorageBackend {
	case StorageFile:
	case StoragePostgres:
		if config.DatabaseDSN == "" {
			return nil, &ConfigError{Field: "DATABASE_DSN", Message: "DATABASE_DSN is required for postgres storage"}
		}
	default:
		return nil, &ConfigError{Field: "STORAGE_BACKEND", Message: fmt.Sprintf("unknown storage backend %q", config.StorageBackend)}
	}

	loc, err := time.LoadLocation(getEnv("TIMEZONE", "Local"))
	if err != nil {
		return nil, &ConfigError{Field: "TIMEZONE", Message: fmt.Sprintf("invalid TIMEZONE: %v", err)}
	}
	config.Location = loc

	if config.PollHour, config.PollMinute, err = parseClock(getEnv("POLL_TIME", "07:00")); err != nil {
		return nil, &ConfigError{Field: "POLL_TIME", Message: fmt.Sprintf("invalid POLL_TIME: %v", err)}
	}
	if config.SummaryHour, config.SummaryMinute, err = parseClock(getEnv("SUMMARY_TIME", "23:00")); err != nil {
		return nil, &ConfigError{Field: "SUMMARY_TIME", Message: fmt.Sprintf("invalid SUMMARY_TIME: %v", err)}
	}

	config.AwardHour, err = strconv.Atoi(getEnv("AWARD_HOUR", "0"))
	if err != nil || config.AwardHour < 0 || config.AwardHour > 23 {
		return nil, &ConfigError{Field: "AWARD_HOUR", Message: "AWARD_HOUR must be between 0 and 23"}
	}

	timeout, err := strconv.Atoi(getEnv("SETUP_TIMEOUT", "60"))
	if err != nil || timeout <= 0 {
		return nil, &ConfigError{Field: "SETUP_TIMEOUT", Message: "SETUP_TIMEOUT must be a positive number of seconds"}
	}
	config.SetupTimeout = time.Duration(timeout) * time.Second

	config.ResetTotalsOnAward, err = strconv.ParseBool(getEnv("RESET_TOTALS_ON_AWARD", "false"))
	if err != nil {
		return nil, &ConfigError{Field: "RESET_TOTALS_ON_AWARD", Message: "RESET_TOTALS_ON_AWARD must be true or false"}
	}

	return config, nil
}

// parseClock parses an HH:MM time of day
func parseClock(value string) (int, int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(value))
	if err != nil {
		return 0, 0, err
	}
	return t.Hour(), t.Minute(), nil
}

// getEnv gets an environment variable with a fallback default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}
