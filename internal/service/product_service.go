package service

import (
	"context"
	"fmt"
	"strings"

	"storefront/internal/model"
	"storefront/internal/repository"

	"github.com/rs/zerolog"
)

const (
	defaultCataloguePage = 24
	maxCataloguePage     = 100
)

// productService implements ProductService.
type productService struct {
	productRepo repository.ProductRepository
	logger      zerolog.Logger
}

// NewProductService creates a new product service.
func NewProductService(productRepo repository.ProductRepository, logger zerolog.Logger) ProductService {
	return &productService{
		productRepo: productRepo,
		logger:      logger.With().Str("service", "product").Logger(),
	}
}

// GetAll returns a catalogue page with availability resolved per product.
// Sizes are matched upper-cased, as they are stored.
func (s *productService) GetAll(ctx context.Context, q model.ProductQuery) ([]model.Product, error) {
	switch {
	case q.Limit <= 0:
		q.Limit = defaultCataloguePage
	case q.Limit > maxCataloguePage:
		q.Limit = maxCataloguePage
	}
	q.Offset = max(q.Offset, 0)
	q.Size = strings.ToUpper(strings.TrimSpace(q.Size))

	products, err := s.productRepo.GetAll(ctx, q)
	if err != nil {
		s.logger.Error().Err(err).
			Int("limit", q.Limit).
			Int("offset", q.Offset).
			Str("size", q.Size).
			Msg("failed to list catalogue")
		return nil, fmt.Errorf("failed to get products: %w", err)
	}

	for i := range products {
		markAvailability(&products[i])
	}

	s.logger.Debug().
		Int("count", len(products)).
		Str("size", q.Size).
		Bool("in_stock", q.InStock).
		Msg("catalogue page listed")

	return products, nil
}

// GetByID retrieves a single product by ID.
func (s *productService) GetByID(ctx context.Context, id int64) (*model.Product, error) {
	if id <= 0 {
		return nil, model.ErrProductNotFound
	}

	product, err := s.productRepo.GetByID(ctx, id)
	if err != nil {
		s.logger.Error().Err(err).Int64("product_id", id).Msg("failed to get product")
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	if product == nil {
		return nil, model.ErrProductNotFound
	}

	markAvailability(product)
	return product, nil
}

// markAvailability flags products that can still be bought in some size.
func markAvailability(p *model.Product) {
	p.Available = p.TotalStock() > 0
}
