package repository

import (
	"context"
	"fmt"

	"storefront/internal/inventory"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// Size-level counters.
const (
	sizeDecrementQuery = `
		UPDATE product_sizes SET stock = stock - $3
		WHERE product_id = $1 AND size = $2 AND stock >= $3
		RETURNING stock`
	sizeLockQuery = `
		SELECT stock FROM product_sizes
		WHERE product_id = $1 AND size = $2
		FOR UPDATE`
	sizeFloorQuery = `
		UPDATE product_sizes SET stock = 0
		WHERE product_id = $1 AND size = $2`
	sizeIncrementQuery = `
		UPDATE product_sizes SET stock = stock + $3
		WHERE product_id = $1 AND size = $2`
)

// Product-level counters.
const (
	productDecrementQuery = `
		UPDATE products SET stock = stock - $2
		WHERE id = $1 AND stock >= $2
		RETURNING stock`
	productLockQuery = `
		SELECT stock FROM products
		WHERE id = $1
		FOR UPDATE`
	productFloorQuery = `
		UPDATE products SET stock = 0
		WHERE id = $1`
	productIncrementQuery = `
		UPDATE products SET stock = stock + $2
		WHERE id = $1`
)

// inventoryRepository implements inventory.Ledger with conditional updates.
type inventoryRepository struct {
	logger zerolog.Logger
}

// NewInventoryRepository creates a new PostgreSQL-backed stock ledger.
func NewInventoryRepository(logger zerolog.Logger) inventory.Ledger {
	return &inventoryRepository{
		logger: logger.With().Str("repository", "inventory").Logger(),
	}
}

// Decrement subtracts quantity with a single conditional update. When the
// counter cannot cover the quantity, the row is locked and floored at zero and
// the uncovered part is returned as shortfall. A size without its own row
// falls back to the product counter.
func (r *inventoryRepository) Decrement(ctx context.Context, tx pgx.Tx, key inventory.Key, quantity int) (int, int, error) {
	if quantity <= 0 {
		return 0, 0, fmt.Errorf("invalid decrement quantity %d for %s", quantity, key)
	}

	if key.Size != "" {
		remaining, shortfall, found, err := r.decrement(ctx, tx, key, quantity,
			[]any{key.ProductID, key.Size, quantity}, sizeDecrementQuery, sizeLockQuery, sizeFloorQuery)
		if err != nil || found {
			return remaining, shortfall, err
		}
		r.logger.Debug().Str("key", key.String()).Msg("no size counter, using product counter")
	}

	remaining, shortfall, found, err := r.decrement(ctx, tx, key, quantity,
		[]any{key.ProductID, quantity}, productDecrementQuery, productLockQuery, productFloorQuery)
	if err != nil {
		return 0, 0, err
	}
	if !found {
		r.logger.Warn().
			Str("key", key.String()).
			Int("quantity", quantity).
			Msg("no stock counter for sold product, recording full shortfall")
		return 0, quantity, nil
	}
	return remaining, shortfall, nil
}

func (r *inventoryRepository) decrement(ctx context.Context, tx pgx.Tx, key inventory.Key, quantity int,
	args []any, decrementQuery, lockQuery, floorQuery string) (remaining, shortfall int, found bool, err error) {
	err = tx.QueryRow(ctx, decrementQuery, args...).Scan(&remaining)
	if err == nil {
		return remaining, 0, true, nil
	}
	if !isNoRows(err) {
		r.logger.Error().Err(err).Str("key", key.String()).Msg("failed to decrement stock")
		return 0, 0, false, fmt.Errorf("failed to decrement stock: %w", err)
	}

	keyArgs := args[:len(args)-1]
	var current int
	err = tx.QueryRow(ctx, lockQuery, keyArgs...).Scan(&current)
	if isNoRows(err) {
		return 0, 0, false, nil
	}
	if err != nil {
		r.logger.Error().Err(err).Str("key", key.String()).Msg("failed to lock stock row")
		return 0, 0, false, fmt.Errorf("failed to lock stock row: %w", err)
	}

	if current >= quantity {
		// Restocked between the two statements; the row is now locked.
		return r.decrement(ctx, tx, key, quantity, args, decrementQuery, lockQuery, floorQuery)
	}

	if _, err := tx.Exec(ctx, floorQuery, keyArgs...); err != nil {
		r.logger.Error().Err(err).Str("key", key.String()).Msg("failed to floor stock")
		return 0, 0, false, fmt.Errorf("failed to floor stock: %w", err)
	}

	shortfall = quantity - current
	r.logger.Warn().
		Str("key", key.String()).
		Int("requested", quantity).
		Int("available", current).
		Int("shortfall", shortfall).
		Msg("stock oversold, counter floored at zero")
	return 0, shortfall, true, nil
}

// Increment adds quantity back to the size counter, or the product counter
// if the size has no row.
func (r *inventoryRepository) Increment(ctx context.Context, tx pgx.Tx, key inventory.Key, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("invalid increment quantity %d for %s", quantity, key)
	}

	if key.Size != "" {
		tag, err := tx.Exec(ctx, sizeIncrementQuery, key.ProductID, key.Size, quantity)
		if err != nil {
			r.logger.Error().Err(err).Str("key", key.String()).Msg("failed to increment size stock")
			return fmt.Errorf("failed to increment stock: %w", err)
		}
		if tag.RowsAffected() > 0 {
			return nil
		}
	}

	tag, err := tx.Exec(ctx, productIncrementQuery, key.ProductID, quantity)
	if err != nil {
		r.logger.Error().Err(err).Str("key", key.String()).Msg("failed to increment product stock")
		return fmt.Errorf("failed to increment stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		r.logger.Warn().Str("key", key.String()).Msg("no stock counter to restock")
	}
	return nil
}
