package repository

import (
	"context"
	"fmt"

	"storefront/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const productColumns = `id, name, slug, description, price, image_url, stock, created_at`

// productRepository implements the ProductRepository interface using PostgreSQL.
type productRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewProductRepository creates a new PostgreSQL-backed product repository.
func NewProductRepository(pool *pgxpool.Pool, logger zerolog.Logger) ProductRepository {
	return &productRepository{
		pool:   pool,
		logger: logger.With().Str("repository", "product").Logger(),
	}
}

// GetAll retrieves a catalogue page. Products with sizes are in stock when any
// size counter is positive; products without sizes use their own counter.
func (r *productRepository) GetAll(ctx context.Context, q model.ProductQuery) ([]model.Product, error) {
	query := `SELECT ` + productColumns + `
		FROM products
		WHERE ($3 = '' OR EXISTS (
				SELECT 1 FROM product_sizes s
				WHERE s.product_id = products.id AND s.size = $3 AND (NOT $4 OR s.stock > 0)))
		  AND (NOT $4 OR $3 <> '' OR CASE
				WHEN EXISTS (SELECT 1 FROM product_sizes s WHERE s.product_id = products.id)
				THEN EXISTS (SELECT 1 FROM product_sizes s WHERE s.product_id = products.id AND s.stock > 0)
				ELSE products.stock > 0
			END)
		ORDER BY name, id
		LIMIT $1 OFFSET $2
	`

	rows, err := r.pool.Query(ctx, query, q.Limit, q.Offset, q.Size, q.InStock)
	if err != nil {
		r.logger.Error().Err(err).
			Int("limit", q.Limit).
			Int("offset", q.Offset).
			Str("size", q.Size).
			Bool("in_stock", q.InStock).
			Msg("failed to query products")
		return nil, fmt.Errorf("failed to query products: %w", err)
	}

	products, err := scanProducts(rows)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to scan product rows")
		return nil, err
	}

	if err := r.attachSizes(ctx, products); err != nil {
		return nil, err
	}
	return products, nil
}

// GetByID retrieves a single product by its ID.
func (r *productRepository) GetByID(ctx context.Context, id int64) (*model.Product, error) {
	products, err := r.GetByIDs(ctx, []int64{id})
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		r.logger.Debug().Int64("product_id", id).Msg("product not found")
		return nil, nil
	}
	return &products[0], nil
}

// GetByIDs retrieves multiple products by their IDs.
func (r *productRepository) GetByIDs(ctx context.Context, ids []int64) ([]model.Product, error) {
	if len(ids) == 0 {
		return []model.Product{}, nil
	}

	query := `SELECT ` + productColumns + `
		FROM products
		WHERE id = ANY($1)
		ORDER BY id
	`

	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		r.logger.Error().Err(err).
			Int("id_count", len(ids)).
			Msg("failed to query products by IDs")
		return nil, fmt.Errorf("failed to query products by IDs: %w", err)
	}

	products, err := scanProducts(rows)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to scan product rows")
		return nil, err
	}

	if err := r.attachSizes(ctx, products); err != nil {
		return nil, err
	}

	r.logger.Debug().
		Int("requested", len(ids)).
		Int("found", len(products)).
		Msg("products retrieved by IDs")

	return products, nil
}

func (r *productRepository) attachSizes(ctx context.Context, products []model.Product) error {
	if len(products) == 0 {
		return nil
	}

	ids := make([]int64, len(products))
	index := make(map[int64]int, len(products))
	for i, p := range products {
		ids[i] = p.ID
		index[p.ID] = i
	}

	rows, err := r.pool.Query(ctx, `
		SELECT product_id, size, stock
		FROM product_sizes
		WHERE product_id = ANY($1)
		ORDER BY product_id, size
	`, ids)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to query product sizes")
		return fmt.Errorf("failed to query product sizes: %w", err)
	}

	sizes, err := pgx.CollectRows(rows, pgx.RowToStructByPos[model.ProductSize])
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to scan product sizes")
		return fmt.Errorf("failed to scan product sizes: %w", err)
	}

	for _, s := range sizes {
		i := index[s.ProductID]
		products[i].Sizes = append(products[i].Sizes, s)
	}
	return nil
}

func scanProducts(rows pgx.Rows) ([]model.Product, error) {
	defer rows.Close()

	products := []model.Product{}
	for rows.Next() {
		var p model.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Slug, &p.Description, &p.Price, &p.ImageURL, &p.Stock, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating products: %w", err)
	}
	return products, nil
}
