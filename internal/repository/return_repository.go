package repository

import (
	"context"
	"fmt"

	"storefront/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const activeReturnIndex = "idx_returns_one_active_per_order"

// returnRepository implements the ReturnRepository interface using PostgreSQL.
type returnRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewReturnRepository creates a new PostgreSQL-backed return repository.
func NewReturnRepository(pool *pgxpool.Pool, logger zerolog.Logger) ReturnRepository {
	return &returnRepository{
		pool:   pool,
		logger: logger.With().Str("repository", "return").Logger(),
	}
}

// BeginTx starts a new database transaction.
func (r *returnRepository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to begin transaction")
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return tx, nil
}

// Create inserts a return and its items.
func (r *returnRepository) Create(ctx context.Context, tx pgx.Tx, ret *model.Return) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO returns (id, order_id, reference, status, reason, refund_amount, label_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, ret.ID, ret.OrderID, ret.Reference, ret.Status, ret.Reason, ret.RefundAmount, ret.LabelKey, ret.CreatedAt, ret.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, activeReturnIndex) {
			r.logger.Info().Str("order_id", ret.OrderID.String()).Msg("active return already exists")
			return model.ErrReturnExists
		}
		r.logger.Error().Err(err).Str("order_id", ret.OrderID.String()).Msg("failed to create return")
		return fmt.Errorf("failed to create return: %w", err)
	}

	batch := &pgx.Batch{}
	for _, it := range ret.Items {
		batch.Queue(`
			INSERT INTO return_items (return_id, order_item_id, product_id, product_name, size, unit_price, quantity)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, ret.ID, it.OrderItemID, it.ProductID, it.ProductName, it.Size, it.UnitPrice, it.Quantity)
	}

	results := tx.SendBatch(ctx, batch)
	defer results.Close()

	for range ret.Items {
		if _, err := results.Exec(); err != nil {
			r.logger.Error().Err(err).Str("return_id", ret.ID.String()).Msg("failed to create return item")
			return fmt.Errorf("failed to create return item: %w", err)
		}
	}

	r.logger.Debug().
		Str("return_id", ret.ID.String()).
		Str("reference", ret.Reference).
		Int("items", len(ret.Items)).
		Msg("return created successfully")

	return nil
}

// GetByID retrieves a return with its items.
func (r *returnRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Return, error) {
	var ret model.Return
	err := r.pool.QueryRow(ctx, `
		SELECT id, order_id, reference, status, reason, refund_amount, refund_reference, admin_notes,
		       label_key, received_at, refunded_at, rejected_at, created_at, updated_at
		FROM returns
		WHERE id = $1
	`, id).Scan(
		&ret.ID, &ret.OrderID, &ret.Reference, &ret.Status, &ret.Reason, &ret.RefundAmount,
		&ret.RefundReference, &ret.AdminNotes, &ret.LabelKey, &ret.ReceivedAt, &ret.RefundedAt,
		&ret.RejectedAt, &ret.CreatedAt, &ret.UpdatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			r.logger.Debug().Str("return_id", id.String()).Msg("return not found")
			return nil, nil
		}
		r.logger.Error().Err(err).Str("return_id", id.String()).Msg("failed to query return")
		return nil, fmt.Errorf("failed to query return: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT order_item_id, product_id, product_name, size, unit_price, quantity
		FROM return_items
		WHERE return_id = $1
		ORDER BY product_id, size
	`, id)
	if err != nil {
		r.logger.Error().Err(err).Str("return_id", id.String()).Msg("failed to query return items")
		return nil, fmt.Errorf("failed to query return items: %w", err)
	}

	ret.Items, err = pgx.CollectRows(rows, pgx.RowToStructByPos[model.ReturnItem])
	if err != nil {
		return nil, fmt.Errorf("failed to scan return items: %w", err)
	}

	return &ret, nil
}

// HasActiveForOrder reports whether the order has a non-rejected return.
func (r *returnRepository) HasActiveForOrder(ctx context.Context, orderID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM returns WHERE order_id = $1 AND status <> $2)
	`, orderID, model.ReturnStatusRejected).Scan(&exists)
	if err != nil {
		r.logger.Error().Err(err).Str("order_id", orderID.String()).Msg("failed to check active returns")
		return false, fmt.Errorf("failed to check active returns: %w", err)
	}
	return exists, nil
}

// UpdateStatus applies a transition if the return is still in t.From.
func (r *returnRepository) UpdateStatus(ctx context.Context, tx pgx.Tx, t model.ReturnTransition) (bool, error) {
	query := `
		UPDATE returns
		SET status = $3,
		    refund_amount = $4,
		    refund_reference = COALESCE($5, refund_reference),
		    admin_notes = COALESCE($6, admin_notes),
		    received_at = CASE WHEN $3 = 'received' THEN $7 ELSE received_at END,
		    refunded_at = CASE WHEN $3 = 'refunded' THEN $7 ELSE refunded_at END,
		    rejected_at = CASE WHEN $3 = 'rejected' THEN $7 ELSE rejected_at END,
		    updated_at = $7
		WHERE id = $1 AND status = $2
	`

	tag, err := tx.Exec(ctx, query, t.ID, t.From, t.To, t.RefundAmount, t.RefundReference, t.AdminNotes, t.At)
	if err != nil {
		r.logger.Error().
			Err(err).
			Str("return_id", t.ID.String()).
			Str("from", string(t.From)).
			Str("to", string(t.To)).
			Msg("failed to update return status")
		return false, fmt.Errorf("failed to update return status: %w", err)
	}

	if tag.RowsAffected() == 0 {
		r.logger.Info().
			Str("return_id", t.ID.String()).
			Str("expected", string(t.From)).
			Msg("return status changed concurrently")
		return false, nil
	}
	return true, nil
}
