// Package config loads runtime settings from the environment, optionally
// seeded from a .env file in the working directory.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env         string
	ServiceName string
	LogLevel    string
	HTTPAddr    string

	// RedisAddr empty means carts and catalog live in process memory.
	RedisAddr string

	// DrawerDriver is "sqlite" or "pgx".
	DrawerDriver string
	DrawerDSN    string
	SagaLogPath  string

	CatalogPath    string
	DefaultStoreID string

	// FeedURL is the base URL of the ticket feed used by cmd/kitchen-board.
	FeedURL      string
	PollInterval time.Duration

	OTelEnabled  bool
	OTelEndpoint string
}

// Load reads envFile (if it exists; pass "" to skip) and then the process
// environment. Values already set in the environment win over the file.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("config: load %s: %w", envFile, err)
		}
	}

	poll, err := time.ParseDuration(getEnv("POLL_INTERVAL", "3s"))
	if err != nil {
		return Config{}, fmt.Errorf("config: POLL_INTERVAL: %w", err)
	}
	if poll <= 0 {
		return Config{}, fmt.Errorf("config: POLL_INTERVAL must be positive, got %s", poll)
	}

	otelEnabled, err := strconv.ParseBool(getEnv("OTEL_ENABLED", "false"))
	if err != nil {
		return Config{}, fmt.Errorf("config: OTEL_ENABLED: %w", err)
	}

	cfg := Config{
		Env:            getEnv("ENV", "development"),
		ServiceName:    getEnv("SERVICE_NAME", "pos-api"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		HTTPAddr:       getEnv("HTTP_ADDR", ":8080"),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		DrawerDriver:   getEnv("DRAWER_DB_DRIVER", "sqlite"),
		DrawerDSN:      getEnv("DRAWER_DB_DSN", "./data/drawer.db"),
		SagaLogPath:    getEnv("SAGA_LOG_PATH", "./data/saga.db"),
		CatalogPath:    getEnv("CATALOG_PATH", "./config/catalog.example.json"),
		DefaultStoreID: getEnv("DEFAULT_STORE_ID", "store-1"),
		FeedURL:        getEnv("FEED_URL", "http://localhost:8080"),
		PollInterval:   poll,
		OTelEnabled:    otelEnabled,
		OTelEndpoint:   getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
	}

	switch cfg.DrawerDriver {
	case "sqlite", "pgx":
	default:
		return Config{}, fmt.Errorf("config: DRAWER_DB_DRIVER must be sqlite or pgx, got %q", cfg.DrawerDriver)
	}

	return cfg, nil
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
