// Package di provides dependency injection configuration for the PixVault server.
package di

import (
	"fmt"

	"github.com/samber/do/v2"

	"github.com/pixvaultapp/pixvault-server/internal/blob"
	"github.com/pixvaultapp/pixvault-server/internal/config"
	"github.com/pixvaultapp/pixvault-server/internal/di/providers"
	"github.com/pixvaultapp/pixvault-server/internal/logger"
	"github.com/pixvaultapp/pixvault-server/internal/metadata"
	"github.com/pixvaultapp/pixvault-server/internal/service"
)

// NewContainer registers every provider on a fresh injector.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Config and logging
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)

	// Catalog database
	do.Provide(injector, providers.ProvideStore)

	// Blob storage
	do.Provide(injector, providers.ProvideBlobStore)

	// Search index and queries
	do.Provide(injector, providers.ProvideSearchIndex)
	do.Provide(injector, providers.ProvideSearchService)

	// Generation metadata readers
	do.Provide(injector, providers.ProvideMetadataRegistry)

	// Domain services
	do.Provide(injector, providers.ProvideTagService)
	do.Provide(injector, providers.ProvideIngestService)

	// Drop-folder ingestion
	do.Provide(injector, providers.ProvideInboxDaemon)

	return injector
}

// Bootstrap eagerly instantiates the service graph so configuration
// problems surface at startup instead of on the first inbox event.
// Instantiation order matters twice: config must come first so provider
// failures arrive as errors rather than MustInvoke panics, and the
// container shuts services down in reverse, which closes the inbox
// before the stores it writes through.
func Bootstrap(injector *do.RootScope) error {
	if _, err := do.Invoke[*config.Config](injector); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := do.Invoke[*logger.Logger](injector); err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	if _, err := do.Invoke[*providers.StoreHandle](injector); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if _, err := do.Invoke[blob.Store](injector); err != nil {
		return fmt.Errorf("blob store: %w", err)
	}
	if _, err := do.Invoke[*providers.SearchIndexHandle](injector); err != nil {
		return fmt.Errorf("search index: %w", err)
	}
	if _, err := do.Invoke[*metadata.Registry](injector); err != nil {
		return fmt.Errorf("metadata registry: %w", err)
	}
	if _, err := do.Invoke[*service.TagService](injector); err != nil {
		return fmt.Errorf("tag service: %w", err)
	}
	if _, err := do.Invoke[*service.SearchService](injector); err != nil {
		return fmt.Errorf("search service: %w", err)
	}
	if _, err := do.Invoke[*service.IngestService](injector); err != nil {
		return fmt.Errorf("ingest service: %w", err)
	}
	if _, err := do.Invoke[*providers.InboxHandle](injector); err != nil {
		return fmt.Errorf("inbox daemon: %w", err)
	}
	return nil
}
