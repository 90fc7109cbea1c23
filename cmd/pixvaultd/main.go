// Package main is the PixVault server daemon. It watches the inbox
// directory for dropped PNGs and keeps the vault and its search index
// in sync until signalled to stop.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/do/v2"

	"github.com/pixvaultapp/pixvault-server/internal/di"
	"github.com/pixvaultapp/pixvault-server/internal/di/providers"
	"github.com/pixvaultapp/pixvault-server/internal/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "pixvaultd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	injector := di.NewContainer()
	if err := di.Bootstrap(injector); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	log := do.MustInvoke[*logger.Logger](injector)

	// Handles are grabbed while the container is still live; Bootstrap
	// already instantiated them, so these invokes never construct.
	inboxHandle, inboxErr := do.Invoke[*providers.InboxHandle](injector)
	searchHandle, searchErr := do.Invoke[*providers.SearchIndexHandle](injector)
	storeHandle, storeErr := do.Invoke[*providers.StoreHandle](injector)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	// Restore default signal handling so a second ^C kills a stuck
	// shutdown.
	stop()

	log.Info("Shutting down")

	// The inbox stops first so nothing new enters the pipeline while
	// the stores close. Its handle bounds the drain internally.
	if inboxErr == nil {
		if err := inboxHandle.Shutdown(); err != nil {
			log.Error("Inbox daemon shutdown", "error", err)
		}
	}

	if err := injector.Shutdown(); err != nil {
		log.Error("Container shutdown", "error", err)
	}

	// The index and database hold the on-disk state and must be closed
	// even if the container missed them. Handle shutdown is idempotent,
	// so these are no-ops when the container already ran them.
	if searchErr == nil {
		if err := searchHandle.Shutdown(); err != nil {
			log.Error("Search index close", "error", err)
		}
	}
	if storeErr == nil {
		if err := storeHandle.Shutdown(); err != nil {
			log.Error("Database close", "error", err)
		}
	}

	log.Info("Vault sealed, goodnight.")
	return nil
}
