// Package cli consolidates the initialization steps shared by the finly
// binaries.
package cli

import (
	"os"

	"github.com/joho/godotenv"

	"finly/internal/config"
	applog "finly/internal/log"
	"finly/internal/storage"
)

// Bootstrap loads the environment, sets up logging, and validates the
// configuration. It exits the process on invalid configuration.
func Bootstrap(component string) (*applog.Logger, *config.Config) {
	// .env is for local development; in containers the env is already set.
	_ = godotenv.Load()

	logger := applog.New(applog.Config{
		Level:     applog.ParseLevel(os.Getenv("LOG_LEVEL")),
		Component: component,
	})
	applog.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	return logger, cfg
}

// OpenRepository opens the SQLite repository and runs migrations, exiting the
// process on failure.
func OpenRepository(logger *applog.Logger, dbPath string) *storage.SQLiteRepository {
	repo, err := storage.NewSQLiteRepository(dbPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", dbPath)
		os.Exit(1)
	}
	return repo
}
