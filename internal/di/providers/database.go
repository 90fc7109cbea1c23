package providers

import (
	"fmt"
	"os"
	"sync"

	"github.com/samber/do/v2"

	"github.com/pixvaultapp/pixvault-server/internal/config"
	"github.com/pixvaultapp/pixvault-server/internal/logger"
	"github.com/pixvaultapp/pixvault-server/internal/store/sqlite"
)

// StoreHandle wraps the relational store with shutdown capability.
type StoreHandle struct {
	*sqlite.Store

	once sync.Once
	err  error
}

// Shutdown closes the database once, no matter how many shutdown paths
// reach it. Both the container and the daemon's exit sequence call it.
func (h *StoreHandle) Shutdown() error {
	h.once.Do(func() { h.err = h.Close() })
	return h.err
}

// ProvideStore provides the relational store.
func ProvideStore(i do.Injector) (*StoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if err := os.MkdirAll(cfg.Data.BasePath, 0750); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	db, err := sqlite.Open(cfg.DatabasePath(), log.Logger)
	if err != nil {
		return nil, err
	}

	log.Info("Database initialized", "path", cfg.DatabasePath())

	return &StoreHandle{Store: db}, nil
}
