package providers

import (
	"github.com/samber/do/v2"

	"github.com/pixvaultapp/pixvault-server/internal/blob"
	"github.com/pixvaultapp/pixvault-server/internal/config"
	"github.com/pixvaultapp/pixvault-server/internal/logger"
	"github.com/pixvaultapp/pixvault-server/internal/metadata"
	"github.com/pixvaultapp/pixvault-server/internal/service"
)

// ProvideTagService provides the tag popularity evaluator.
func ProvideTagService(i do.Injector) (*service.TagService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	indexHandle := do.MustInvoke[*SearchIndexHandle](i)
	searchService := do.MustInvoke[*service.SearchService](i)
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewTagService(
		storeHandle.Store,
		indexHandle.Index,
		searchService,
		cfg.Tags.UsageCacheTTL,
		log.Logger,
	), nil
}

// ProvideIngestService provides the ingestion pipeline for the daemon.
// The unattended path never fails an image over a derivative; the
// reindex tool closes the gap later.
func ProvideIngestService(i do.Injector) (*service.IngestService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	blobs := do.MustInvoke[blob.Store](i)
	registry := do.MustInvoke[*metadata.Registry](i)
	tagService := do.MustInvoke[*service.TagService](i)
	searchService := do.MustInvoke[*service.SearchService](i)
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	opts := service.IngestOptions{
		Lossless:          cfg.Derivatives.Lossless,
		LosslessFormat:    cfg.Derivatives.Format,
		StrictDerivatives: false,
	}

	return service.NewIngestService(
		storeHandle.Store,
		blobs,
		registry,
		tagService,
		searchService,
		opts,
		log.Logger,
	), nil
}
