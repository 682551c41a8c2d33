package coupon

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Importer loads catalogue files and upserts their coupons.
type Importer struct {
	loader Loader
	repo   Repository
	logger zerolog.Logger
}

// NewImporter creates a catalogue importer.
func NewImporter(loader Loader, repo Repository, logger zerolog.Logger) *Importer {
	return &Importer{
		loader: loader,
		repo:   repo,
		logger: logger.With().Str("component", "coupon-importer").Logger(),
	}
}

// Import loads every path and upserts the merged catalogue.
// Later files override earlier definitions of the same code.
func (im *Importer) Import(ctx context.Context, paths []string) (int, error) {
	merged := NewCatalogue(1024)
	for _, p := range paths {
		catalogue, err := im.loader.Load(ctx, p)
		if err != nil {
			return 0, fmt.Errorf("failed to load %s: %w", p, err)
		}
		for _, cp := range catalogue.Coupons() {
			if err := merged.Add(cp); err != nil {
				return 0, fmt.Errorf("failed to merge %s: %w", p, err)
			}
		}
	}

	if merged.Size() == 0 {
		im.logger.Warn().Strs("paths", paths).Msg("no coupons to import")
		return 0, nil
	}

	n, err := im.repo.Upsert(ctx, merged.Coupons())
	if err != nil {
		return 0, fmt.Errorf("failed to upsert coupons: %w", err)
	}

	im.logger.Info().
		Int("files", len(paths)).
		Int("coupons", n).
		Msg("coupon catalogue imported")

	return n, nil
}
