// Package main provides the batch repair tool for the PixVault store.
//
// Every derived artifact is rebuildable from the originals and the
// relational rows, so each subcommand closes one consistency gap the
// ingestion pipeline may have left behind: missing lossless copies,
// missing sidecars, stale or absent search documents.
//
// Usage:
//
//	reindex lossless-derivative --batch-size 200 --concurrency 8
//	reindex reindex-tags --dry-run --verbose
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pixvaultapp/pixvault-server/internal/blob"
	"github.com/pixvaultapp/pixvault-server/internal/config"
	"github.com/pixvaultapp/pixvault-server/internal/logger"
	"github.com/pixvaultapp/pixvault-server/internal/reindex"
	"github.com/pixvaultapp/pixvault-server/internal/search"
	"github.com/pixvaultapp/pixvault-server/internal/service"
	"github.com/pixvaultapp/pixvault-server/internal/store/sqlite"
)

func main() {
	var opts reindex.Options
	var envFile string

	rootCmd := &cobra.Command{
		Use:   "reindex",
		Short: "PixVault repair CLI",
		Long: "Rebuild derived artifacts and search documents from the relational store.\n" +
			"Targets are idempotent, so interrupted runs restart safely.",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().IntVar(&opts.BatchSize, "batch-size", 100, "Items fetched per batch")
	rootCmd.PersistentFlags().IntVar(&opts.Concurrency, "concurrency", 4, "Concurrent repairs within a batch")
	rootCmd.PersistentFlags().DurationVar(&opts.Delay, "delay", 0, "Minimum time between batches (0 disables pacing)")
	rootCmd.PersistentFlags().BoolVar(&opts.DryRun, "dry-run", false, "Log intended repairs without writing anything")
	rootCmd.PersistentFlags().BoolVar(&opts.Verbose, "verbose", false, "Log every item instead of showing a progress bar")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Location of the .env file")

	rootCmd.AddCommand(
		setupLosslessCommand(&opts, &envFile),
		setupSidecarCommand(&opts, &envFile),
		setupImagesCommand(&opts, &envFile),
		setupTagsCommand(&opts, &envFile),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupLosslessCommand(opts *reindex.Options, envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "lossless-derivative",
		Short: "Backfill missing lossless derivatives",
		Long:  "Re-encode the stored original for every image missing its lossless copy.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTarget(*opts, *envFile, func(env *repairEnv) reindex.Target {
				return reindex.NewLosslessTarget(env.store, env.blobs, env.search, env.cfg.Derivatives.Format, opts.DryRun)
			})
		},
	}
}

func setupSidecarCommand(opts *reindex.Options, envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "metadata-sidecar",
		Short: "Backfill missing metadata sidecars",
		Long:  "Write the JSON sidecar next to every original missing one.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTarget(*opts, *envFile, func(env *repairEnv) reindex.Target {
				return reindex.NewSidecarTarget(env.store, env.blobs, env.search, opts.DryRun)
			})
		},
	}
}

func setupImagesCommand(opts *reindex.Options, envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex-images",
		Short: "Upsert every image document",
		Long: "Rebuild the image search document for every row in the store.\n" +
			"Clears nothing; documents for deleted images are untouched.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTarget(*opts, *envFile, func(env *repairEnv) reindex.Target {
				return reindex.NewImagesTarget(env.store, env.search, opts.DryRun)
			})
		},
	}
}

func setupTagsCommand(opts *reindex.Options, envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex-tags",
		Short: "Rebuild the tag index from scratch",
		Long: "Clear the tag index, then re-evaluate every tag and write back\n" +
			"the ones that qualify for indexing.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTarget(*opts, *envFile, func(env *repairEnv) reindex.Target {
				return reindex.NewTagsTarget(env.tags, env.index, opts.DryRun)
			})
		},
	}
}

// repairEnv holds the backends a repair run works against.
type repairEnv struct {
	cfg    *config.Config
	store  *sqlite.Store
	blobs  blob.Store
	index  search.Index
	search *service.SearchService
	tags   *service.TagService
}

// runTarget opens the backends, runs one repair target to completion,
// and maps item failures to a non-zero exit.
func runTarget(opts reindex.Options, envFile string, build func(env *repairEnv) reindex.Target) error {
	cfg, err := config.FromEnv(envFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(logger.Config{
		Level:       logger.ParseLevel(cfg.Logger.Level),
		Format:      cfg.Logger.Format,
		Environment: cfg.App.Environment,
	})

	env, err := openEnv(cfg, log)
	if err != nil {
		return err
	}
	defer env.close(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Make sure the collections exist before writing into them. A dry
	// run writes nothing, so it skips this too.
	if !opts.DryRun {
		if err := env.index.EnsureIndexes(ctx); err != nil {
			return fmt.Errorf("ensure search indexes: %w", err)
		}
	}

	runner := reindex.NewRunner(opts, log.Logger)
	summary, err := runner.Run(ctx, build(env))
	if err != nil {
		return err
	}

	if failed := summary.Counts[reindex.OutcomeFailed]; failed > 0 {
		return fmt.Errorf("%d of %d items failed", failed, summary.Total)
	}
	return nil
}

// openEnv wires the same backends the daemon uses, minus the container:
// a short-lived CLI has no lifecycle to manage beyond close-on-exit.
func openEnv(cfg *config.Config, log *logger.Logger) (*repairEnv, error) {
	if err := os.MkdirAll(cfg.Data.BasePath, 0750); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	st, err := sqlite.Open(cfg.DatabasePath(), log.Logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	blobs, err := openBlobStore(cfg)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	index, err := openSearchIndex(cfg, log)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	searchSvc := service.NewSearchService(index, st, log.Logger)
	tagSvc := service.NewTagService(st, index, searchSvc, cfg.Tags.UsageCacheTTL, log.Logger)

	return &repairEnv{
		cfg:    cfg,
		store:  st,
		blobs:  blobs,
		index:  index,
		search: searchSvc,
		tags:   tagSvc,
	}, nil
}

func (e *repairEnv) close(log *logger.Logger) {
	if err := e.index.Close(); err != nil {
		log.Warn("failed to close search index", "error", err)
	}
	if err := e.store.Close(); err != nil {
		log.Warn("failed to close database", "error", err)
	}
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
