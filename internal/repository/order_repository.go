package repository

import (
	"context"
	"fmt"
	"time"

	"storefront/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const orderColumns = `
	id, number, customer_name, email, phone, address, city, postal_code, country,
	shipping_method, status, subtotal, shipping_cost, discount, total, coupon_code,
	checkout_session_id, payment_reference, delivered_at, created_at, updated_at`

// orderRepository implements the OrderRepository interface using PostgreSQL.
type orderRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewOrderRepository creates a new PostgreSQL-backed order repository.
func NewOrderRepository(pool *pgxpool.Pool, logger zerolog.Logger) OrderRepository {
	return &orderRepository{
		pool:   pool,
		logger: logger.With().Str("repository", "order").Logger(),
	}
}

// BeginTx starts a new database transaction.
func (r *orderRepository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to begin transaction")
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return tx, nil
}

// CreateOrder inserts a new order within the provided transaction.
// A concurrent insert for the same session blocks until the winner commits,
// then reports false.
func (r *orderRepository) CreateOrder(ctx context.Context, tx pgx.Tx, order *model.Order) (bool, error) {
	query := `
		INSERT INTO orders (
			id, customer_name, email, phone, address, city, postal_code, country,
			shipping_method, status, subtotal, shipping_cost, discount, total, coupon_code,
			checkout_session_id, payment_reference, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (checkout_session_id) DO NOTHING
		RETURNING number
	`

	c := order.Customer
	err := tx.QueryRow(ctx, query,
		order.ID, c.Name, c.Email, c.Phone, c.Address, c.City, c.PostalCode, c.Country,
		order.ShippingMethod, order.Status, order.Subtotal, order.ShippingCost, order.Discount, order.Total,
		order.CouponCode, order.CheckoutSessionID, order.PaymentReference, order.CreatedAt, order.UpdatedAt,
	).Scan(&order.Number)
	if isNoRows(err) {
		r.logger.Info().
			Str("session_id", order.CheckoutSessionID).
			Msg("order already exists for checkout session")
		return false, nil
	}
	if err != nil {
		r.logger.Error().
			Err(err).
			Str("order_id", order.ID.String()).
			Msg("failed to create order")
		return false, fmt.Errorf("failed to create order: %w", err)
	}

	r.logger.Debug().
		Str("order_id", order.ID.String()).
		Str("number", order.Number).
		Msg("order created successfully")

	return true, nil
}

// CreateOrderItems inserts multiple order items within the provided transaction.
func (r *orderRepository) CreateOrderItems(ctx context.Context, tx pgx.Tx, items []model.OrderItem) error {
	if len(items) == 0 {
		return nil
	}

	query := `
		INSERT INTO order_items (id, order_id, product_id, product_name, unit_price, quantity, size)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	batch := &pgx.Batch{}
	for _, item := range items {
		batch.Queue(query, item.ID, item.OrderID, item.ProductID, item.ProductName, item.UnitPrice, item.Quantity, item.Size)
	}

	results := tx.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < len(items); i++ {
		_, err := results.Exec()
		if err != nil {
			r.logger.Error().
				Err(err).
				Str("order_id", items[i].OrderID.String()).
				Int64("product_id", items[i].ProductID).
				Msg("failed to create order item")
			return fmt.Errorf("failed to create order item: %w", err)
		}
	}

	r.logger.Debug().
		Int("count", len(items)).
		Msg("order items created successfully")

	return nil
}

// CreateInvoice inserts the invoice header and lines.
func (r *orderRepository) CreateInvoice(ctx context.Context, tx pgx.Tx, inv *model.Invoice) error {
	query := `
		INSERT INTO invoices (id, order_id, number, net, base, tax, tax_rate, shipping, total, issued_at)
		VALUES ($1, $2, 'FAC-' || TO_CHAR($9::TIMESTAMPTZ AT TIME ZONE 'UTC', 'YYYY') || '-' || LPAD(nextval('invoice_number_seq')::TEXT, 6, '0'),
		        $3, $4, $5, $6::NUMERIC, $7, $8, $9)
		RETURNING number
	`

	err := tx.QueryRow(ctx, query,
		inv.ID, inv.OrderID, inv.Net, inv.Base, inv.Tax, inv.TaxRate.String(), inv.Shipping, inv.Total, inv.IssuedAt,
	).Scan(&inv.Number)
	if err != nil {
		r.logger.Error().Err(err).Str("order_id", inv.OrderID.String()).Msg("failed to create invoice")
		return fmt.Errorf("failed to create invoice: %w", err)
	}

	if len(inv.Items) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for i, it := range inv.Items {
		batch.Queue(`
			INSERT INTO invoice_items (invoice_id, position, description, size, quantity, unit_price, line_total)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, inv.ID, i+1, it.Description, it.Size, it.Quantity, it.UnitPrice, it.LineTotal)
	}

	results := tx.SendBatch(ctx, batch)
	defer results.Close()

	for range inv.Items {
		if _, err := results.Exec(); err != nil {
			r.logger.Error().Err(err).Str("invoice_id", inv.ID.String()).Msg("failed to create invoice item")
			return fmt.Errorf("failed to create invoice item: %w", err)
		}
	}

	r.logger.Debug().
		Str("order_id", inv.OrderID.String()).
		Str("number", inv.Number).
		Msg("invoice created successfully")

	return nil
}

// GetByID retrieves an order by its ID along with its items.
func (r *orderRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Order, []model.OrderItem, error) {
	return r.getOne(ctx, "id = $1", id)
}

// GetBySessionID retrieves the order created for a checkout session.
func (r *orderRepository) GetBySessionID(ctx context.Context, sessionID string) (*model.Order, []model.OrderItem, error) {
	return r.getOne(ctx, "checkout_session_id = $1", sessionID)
}

func (r *orderRepository) getOne(ctx context.Context, where string, arg any) (*model.Order, []model.OrderItem, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE ` + where

	order, err := scanOrder(r.pool.QueryRow(ctx, query, arg))
	if err != nil {
		if isNoRows(err) {
			r.logger.Debug().Interface("key", arg).Msg("order not found")
			return nil, nil, nil
		}
		r.logger.Error().Err(err).Interface("key", arg).Msg("failed to query order")
		return nil, nil, fmt.Errorf("failed to query order: %w", err)
	}

	itemsQuery := `
		SELECT id, order_id, product_id, product_name, unit_price, quantity, size
		FROM order_items
		WHERE order_id = $1
		ORDER BY product_id, size, id
	`

	rows, err := r.pool.Query(ctx, itemsQuery, order.ID)
	if err != nil {
		r.logger.Error().
			Err(err).
			Str("order_id", order.ID.String()).
			Msg("failed to query order items")
		return nil, nil, fmt.Errorf("failed to query order items: %w", err)
	}

	items, err := pgx.CollectRows(rows, pgx.RowToStructByPos[model.OrderItem])
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to scan order item rows")
		return nil, nil, fmt.Errorf("failed to scan order items: %w", err)
	}

	return order, items, nil
}

// GetInvoice retrieves the invoice of an order.
func (r *orderRepository) GetInvoice(ctx context.Context, orderID uuid.UUID) (*model.Invoice, error) {
	var (
		inv  model.Invoice
		rate string
	)
	err := r.pool.QueryRow(ctx, `
		SELECT id, order_id, number, net, base, tax, tax_rate::TEXT, shipping, total, issued_at
		FROM invoices
		WHERE order_id = $1
	`, orderID).Scan(&inv.ID, &inv.OrderID, &inv.Number, &inv.Net, &inv.Base, &inv.Tax, &rate, &inv.Shipping, &inv.Total, &inv.IssuedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		r.logger.Error().Err(err).Str("order_id", orderID.String()).Msg("failed to query invoice")
		return nil, fmt.Errorf("failed to query invoice: %w", err)
	}

	if inv.TaxRate, err = decimal.NewFromString(rate); err != nil {
		return nil, fmt.Errorf("failed to parse invoice tax rate %q: %w", rate, err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT description, size, quantity, unit_price, line_total
		FROM invoice_items
		WHERE invoice_id = $1
		ORDER BY position
	`, inv.ID)
	if err != nil {
		r.logger.Error().Err(err).Str("invoice_id", inv.ID.String()).Msg("failed to query invoice items")
		return nil, fmt.Errorf("failed to query invoice items: %w", err)
	}

	inv.Items, err = pgx.CollectRows(rows, pgx.RowToStructByPos[model.InvoiceItem])
	if err != nil {
		return nil, fmt.Errorf("failed to scan invoice items: %w", err)
	}

	return &inv, nil
}

// UpdateStatus moves the order from one status to another with a compare-and-set.
// Moving to delivered also records the delivery time.
func (r *orderRepository) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, to model.OrderStatus, at time.Time) (bool, error) {
	query := `
		UPDATE orders
		SET status = $3,
		    updated_at = $4,
		    delivered_at = CASE WHEN $3 = 'delivered' THEN $4 ELSE delivered_at END
		WHERE id = $1 AND status = $2
	`

	tag, err := tx.Exec(ctx, query, id, from, to, at)
	if err != nil {
		r.logger.Error().
			Err(err).
			Str("order_id", id.String()).
			Str("from", string(from)).
			Str("to", string(to)).
			Msg("failed to update order status")
		return false, fmt.Errorf("failed to update order status: %w", err)
	}

	if tag.RowsAffected() == 0 {
		r.logger.Info().
			Str("order_id", id.String()).
			Str("expected", string(from)).
			Msg("order status changed concurrently")
		return false, nil
	}
	return true, nil
}

func scanOrder(row pgx.Row) (*model.Order, error) {
	var o model.Order
	c := &o.Customer
	err := row.Scan(
		&o.ID, &o.Number, &c.Name, &c.Email, &c.Phone, &c.Address, &c.City, &c.PostalCode, &c.Country,
		&o.ShippingMethod, &o.Status, &o.Subtotal, &o.ShippingCost, &o.Discount, &o.Total, &o.CouponCode,
		&o.CheckoutSessionID, &o.PaymentReference, &o.DeliveredAt, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}
