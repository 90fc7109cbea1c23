package providers

import (
	"github.com/samber/do/v2"

	"github.com/pixvaultapp/pixvault-server/internal/logger"
	"github.com/pixvaultapp/pixvault-server/internal/metadata"
	"github.com/pixvaultapp/pixvault-server/internal/metadata/novelai"
)

// ProvideMetadataRegistry provides the generation metadata reader registry.
// Readers are tried in order; comments nobody claims are stored verbatim.
func ProvideMetadataRegistry(i do.Injector) (*metadata.Registry, error) {
	log := do.MustInvoke[*logger.Logger](i)

	registry := metadata.NewRegistry(novelai.NewReader())
	log.Info("Metadata registry initialized")

	return registry, nil
}
