package providers

import (
	"context"
	"sync"

	"github.com/samber/do/v2"

	"github.com/pixvaultapp/pixvault-server/internal/config"
	"github.com/pixvaultapp/pixvault-server/internal/logger"
	"github.com/pixvaultapp/pixvault-server/internal/search"
	"github.com/pixvaultapp/pixvault-server/internal/service"
)

// SearchIndexHandle wraps the document index with shutdown capability.
type SearchIndexHandle struct {
	search.Index

	once sync.Once
	err  error
}

// Shutdown closes the index once, no matter how many shutdown paths
// reach it. Bleve loses unflushed batches on a skipped Close, so the
// daemon closes explicitly rather than trusting container order alone.
func (h *SearchIndexHandle) Shutdown() error {
	h.once.Do(func() { h.err = h.Index.Close() })
	return h.err
}

// ProvideSearchIndex provides the document index for the configured backend.
func ProvideSearchIndex(i do.Injector) (*SearchIndexHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	var index search.Index
	switch cfg.Search.Backend {
	case "meilisearch":
		idx, err := search.NewMeiliIndex(search.MeiliOptions{
			Host:   cfg.Search.MeiliHost,
			APIKey: cfg.Search.MeiliAPIKey,
			Logger: log.Logger,
		})
		if err != nil {
			return nil, err
		}
		index = idx
	default:
		idx, err := search.NewBleveIndex(search.BleveOptions{
			DataPath: cfg.Search.BlevePath,
			Logger:   log.Logger,
		})
		if err != nil {
			return nil, err
		}
		index = idx
	}

	if err := index.EnsureIndexes(context.Background()); err != nil {
		_ = index.Close()
		return nil, err
	}

	log.Info("Search index initialized", "backend", cfg.Search.Backend)

	return &SearchIndexHandle{Index: index}, nil
}

// ProvideSearchService provides query execution and document assembly.
func ProvideSearchService(i do.Injector) (*service.SearchService, error) {
	indexHandle := do.MustInvoke[*SearchIndexHandle](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewSearchService(indexHandle.Index, storeHandle.Store, log.Logger), nil
}
