// Package main provides the one-shot ingest tool.
//
// It pushes PNG files through the same pipeline the daemon runs, but
// with strict derivative handling as configured: an operator at a
// terminal wants the failure now, not a repair run later.
//
// Usage:
//
//	ingest shot.png
//	ingest --env-file /etc/pixvault.env exports/*.png
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/pixvaultapp/pixvault-server/internal/blob"
	"github.com/pixvaultapp/pixvault-server/internal/config"
	"github.com/pixvaultapp/pixvault-server/internal/logger"
	"github.com/pixvaultapp/pixvault-server/internal/metadata"
	"github.com/pixvaultapp/pixvault-server/internal/metadata/novelai"
	"github.com/pixvaultapp/pixvault-server/internal/search"
	"github.com/pixvaultapp/pixvault-server/internal/service"
	"github.com/pixvaultapp/pixvault-server/internal/store/sqlite"
)

var (
	envFile = flag.String("env-file", ".env", "Location of the .env file")
	verbose = flag.Bool("verbose", false, "Log pipeline internals")
)

func main() {
	flag.Parse()

	files := flag.Args()
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "usage: ingest [flags] file.png ...")
		os.Exit(2)
	}

	cfg, err := config.FromEnv(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Keep stdout for the per-file outcomes; pipeline logs go to stderr
	// and stay quiet unless asked for.
	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	log := logger.New(logger.Config{
		Writer:      os.Stderr,
		Level:       level,
		Format:      cfg.Logger.Format,
		Environment: cfg.App.Environment,
	})

	ingestSvc, cleanup, err := wire(cfg, log)
	if err != nil {
		log.Fatal("Failed to open backends", "error", err)
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errored := false
	for _, path := range files {
		if ctx.Err() != nil {
			fmt.Fprintln(os.Stderr, "interrupted")
			errored = true
			break
		}

		data, err := os.ReadFile(path) //#nosec G304 -- Paths come from the operator's command line
		if err != nil {
			fmt.Printf("error      %s: %v\n", path, err)
			errored = true
			continue
		}

		result, err := ingestSvc.Ingest(ctx, data, filepath.Base(path))
		if err != nil {
			fmt.Printf("error      %s: %v\n", path, err)
			errored = true
			continue
		}

		if result.Duplicate {
			fmt.Printf("duplicate  %s  image=%s\n", path, result.Image.ID)
		} else {
			fmt.Printf("new        %s  image=%s tags=%d\n", path, result.Image.ID, result.TagCount)
		}
	}

	if errored {
		os.Exit(1)
	}
}

// wire builds the full ingestion stack without the daemon's container.
func wire(cfg *config.Config, log *logger.Logger) (*service.IngestService, func(), error) {
	if err := os.MkdirAll(cfg.Data.BasePath, 0750); err != nil {
		return nil, nil, fmt.Errorf("create data directory: %w", err)
	}

	st, err := sqlite.Open(cfg.DatabasePath(), log.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}

	blobs, err := openBlobStore(cfg)
	if err != nil {
		_ = st.Close()
		return nil, nil, err
	}

	index, err := openSearchIndex(cfg, log)
	if err != nil {
		_ = st.Close()
		return nil, nil, err
	}

	if err := index.EnsureIndexes(context.Background()); err != nil {
		_ = index.Close()
		_ = st.Close()
		return nil, nil, fmt.Errorf("ensure search indexes: %w", err)
	}

	registry := metadata.NewRegistry(novelai.NewReader())
	searchSvc := service.NewSearchService(index, st, log.Logger)
	tagSvc := service.NewTagService(st, index, searchSvc, cfg.Tags.UsageCacheTTL, log.Logger)

	opts := service.IngestOptions{
		Lossless:          cfg.Derivatives.Lossless,
		LosslessFormat:    cfg.Derivatives.Format,
		StrictDerivatives: cfg.Derivatives.Strict,
	}
	ingestSvc := service.NewIngestService(st, blobs, registry, tagSvc, searchSvc, opts, log.Logger)

	cleanup := func() {
		if err := index.Close(); err != nil {
			log.Warn("failed to close search index", "error", err)
		}
		if err := st.Close(); err != nil {
			log.Warn("failed to close database", "error", err)
		}
	}

	return ingestSvc, cleanup, nil
}

func openBlobStore(cfg *config.Config) (blob.Store, error) {
	if cfg.Blob.Backend == "s3" {
		return blob.NewS3Store(context.Background(), blob.S3Options{
			Endpoint:       cfg.Blob.S3Endpoint,
			Region:         cfg.Blob.S3Region,
			Bucket:         cfg.Blob.S3Bucket,
			AccessKey:      cfg.Blob.S3AccessKey,
			SecretKey:      cfg.Blob.S3SecretKey,
			ForcePathStyle: cfg.Blob.S3ForcePathStyle,
		})
	}
	return blob.NewFSStore(cfg.Blob.FSPath)
}

func openSearchIndex(cfg *config.Config, log *logger.Logger) (search.Index, error) {
	if cfg.Search.Backend == "meilisearch" {
		return search.NewMeiliIndex(search.MeiliOptions{
			Host:   cfg.Search.MeiliHost,
			APIKey: cfg.Search.MeiliAPIKey,
			Logger: log.Logger,
		})
	}
	return search.NewBleveIndex(search.BleveOptions{
		DataPath: cfg.Search.BlevePath,
		Logger:   log.Logger,
	})
}
