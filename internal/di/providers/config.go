// Package providers wires the vault's components into the DI container
// and wraps the stateful ones in shutdown-capable handles.
package providers

import (
	"github.com/samber/do/v2"

	"github.com/pixvaultapp/pixvault-server/internal/config"
	"github.com/pixvaultapp/pixvault-server/internal/logger"
)

// ProvideConfig runs the flag > env > default cascade once for the
// whole container.
func ProvideConfig(i do.Injector) (*config.Config, error) {
	return config.Load()
}

// ProvideLogger builds the process logger and emits the startup
// banner.
func ProvideLogger(i do.Injector) (*logger.Logger, error) {
	cfg := do.MustInvoke[*config.Config](i)

	log := logger.New(logger.Config{
		Level:       logger.ParseLevel(cfg.Logger.Level),
		Format:      cfg.Logger.Format,
		AddSource:   cfg.App.Environment == "development",
		Environment: cfg.App.Environment,
	})

	log.Info("Starting PixVault Server",
		"environment", cfg.App.Environment,
		"log_level", cfg.Logger.Level,
		"data_path", cfg.Data.BasePath,
		"inbox_path", cfg.Inbox.Path,
	)

	return log, nil
}
