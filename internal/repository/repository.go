package repository

import (
	"context"
	"time"

	"storefront/internal/coupon"
	"storefront/internal/model"
	"storefront/internal/notify"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ProductRepository defines the interface for product data access operations.
type ProductRepository interface {
	// GetAll retrieves a filtered catalogue page of products with their sizes.
	GetAll(ctx context.Context, q model.ProductQuery) ([]model.Product, error)

	// GetByID retrieves a single product with its sizes. Returns nil when missing.
	GetByID(ctx context.Context, id int64) (*model.Product, error)

	// GetByIDs retrieves multiple products with their sizes. Missing ids are skipped.
	GetByIDs(ctx context.Context, ids []int64) ([]model.Product, error)
}

// OrderRepository defines the interface for order data access operations.
type OrderRepository interface {
	// BeginTx starts a new database transaction.
	BeginTx(ctx context.Context) (pgx.Tx, error)

	// CreateOrder inserts the order keyed on its checkout session.
	// It reports false when an order for the session already exists.
	CreateOrder(ctx context.Context, tx pgx.Tx, order *model.Order) (bool, error)

	// CreateOrderItems inserts multiple order items within the provided transaction.
	CreateOrderItems(ctx context.Context, tx pgx.Tx, items []model.OrderItem) error

	// CreateInvoice inserts the invoice and its lines, assigning the invoice number.
	CreateInvoice(ctx context.Context, tx pgx.Tx, invoice *model.Invoice) error

	// GetByID retrieves an order by its ID along with its items.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Order, []model.OrderItem, error)

	// GetBySessionID retrieves the order created for a checkout session.
	GetBySessionID(ctx context.Context, sessionID string) (*model.Order, []model.OrderItem, error)

	// GetInvoice retrieves the invoice of an order. Returns nil when missing.
	GetInvoice(ctx context.Context, orderID uuid.UUID) (*model.Invoice, error)

	// UpdateStatus moves the order from one status to another.
	// It reports false when the order was no longer in the expected status.
	UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, to model.OrderStatus, at time.Time) (bool, error)
}

// ReturnRepository defines the interface for return data access operations.
type ReturnRepository interface {
	// BeginTx starts a new database transaction.
	BeginTx(ctx context.Context) (pgx.Tx, error)

	// Create inserts a return and its items. A second active return for the
	// same order fails with model.ErrReturnExists.
	Create(ctx context.Context, tx pgx.Tx, ret *model.Return) error

	// GetByID retrieves a return with its items. Returns nil when missing.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Return, error)

	// HasActiveForOrder reports whether the order has a non-rejected return.
	HasActiveForOrder(ctx context.Context, orderID uuid.UUID) (bool, error)

	// UpdateStatus applies the transition if the return is still in t.From.
	UpdateStatus(ctx context.Context, tx pgx.Tx, t model.ReturnTransition) (bool, error)
}

// CouponRepository adds redemption recording to the validator's view.
type CouponRepository interface {
	coupon.Repository

	// Redeem increments the usage counter if the global limit allows it and
	// records the redemption. It reports false when the limit was reached.
	Redeem(ctx context.Context, tx pgx.Tx, code, email string, orderID uuid.UUID) (bool, error)
}

// OutboxRepository stores notifications for the dispatcher.
type OutboxRepository interface {
	notify.Outbox
	notify.Repository
}
