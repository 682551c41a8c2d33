package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"storefront/internal/config"
	"storefront/internal/coupon"
	"storefront/internal/database"
	"storefront/internal/repository"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// Imports gzipped JSON-lines coupon catalogues into the coupons table.
//
//	import-coupons [-dry-run] catalogue1.jsonl.gz [catalogue2.jsonl.gz ...]
//
// With S3 enabled each path is tried under S3_PREFIX first, then on local disk.
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	dryRun := flag.Bool("dry-run", false, "load and validate catalogues without writing to the database")
	flag.Parse()

	paths := flag.Args()
	if len(paths) == 0 {
		return fmt.Errorf("usage: import-coupons [-dry-run] <catalogue> [catalogue...]")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := config.NewLogger(cfg.Logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loader := newLoader(ctx, cfg, logger)

	if *dryRun {
		total := 0
		for _, p := range paths {
			catalogue, err := loader.Load(ctx, p)
			if err != nil {
				return fmt.Errorf("failed to load %s: %w", p, err)
			}
			total += catalogue.Size()
		}
		logger.Info().Int("files", len(paths)).Int("coupons", total).Msg("dry run completed, nothing written")
		return nil
	}

	pool, err := database.NewPool(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer pool.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, pool, logger); err != nil {
			return fmt.Errorf("failed to apply migrations: %w", err)
		}
	}

	importer := coupon.NewImporter(loader, repository.NewCouponRepository(pool, logger), logger)
	n, err := importer.Import(ctx, paths)
	if err != nil {
		return err
	}

	fmt.Printf("Imported %d coupons from %d files\n", n, len(paths))
	return nil
}

func newLoader(ctx context.Context, cfg *config.Config, logger zerolog.Logger) coupon.Loader {
	fileLoader := coupon.NewFileLoader(logger)
	if !cfg.S3.Enabled {
		logger.Info().Msg("using local file system for coupon files (S3 disabled)")
		return fileLoader
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.S3.Region))
	if err != nil {
		logger.Warn().
			Err(err).
			Msg("failed to load AWS configuration, falling back to local file system only")
		return fileLoader
	}

	s3Loader := coupon.NewS3Loader(s3.NewFromConfig(awsCfg), cfg.S3.Bucket, logger)
	return coupon.NewFallbackLoader(s3Loader, fileLoader, cfg.S3.Prefix, true, logger)
}
