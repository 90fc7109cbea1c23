package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/pixvaultapp/pixvault-server/internal/blob"
	"github.com/pixvaultapp/pixvault-server/internal/config"
	"github.com/pixvaultapp/pixvault-server/internal/logger"
)

// ProvideBlobStore provides the blob store for the configured backend.
func ProvideBlobStore(i do.Injector) (blob.Store, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	switch cfg.Blob.Backend {
	case "s3":
		store, err := blob.NewS3Store(context.Background(), blob.S3Options{
			Endpoint:       cfg.Blob.S3Endpoint,
			Region:         cfg.Blob.S3Region,
			Bucket:         cfg.Blob.S3Bucket,
			AccessKey:      cfg.Blob.S3AccessKey,
			SecretKey:      cfg.Blob.S3SecretKey,
			ForcePathStyle: cfg.Blob.S3ForcePathStyle,
		})
		if err != nil {
			return nil, err
		}
		log.Info("Blob store initialized", "backend", "s3", "bucket", cfg.Blob.S3Bucket)
		return store, nil
	default:
		store, err := blob.NewFSStore(cfg.Blob.FSPath)
		if err != nil {
			return nil, err
		}
		log.Info("Blob store initialized", "backend", "fs", "path", cfg.Blob.FSPath)
		return store, nil
	}
}
