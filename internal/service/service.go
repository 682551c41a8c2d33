package service

import (
	"context"
	"time"

	"storefront/internal/label"
	"storefront/internal/model"
	"storefront/internal/pricing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Confirmation sources reported to metrics and logs.
const (
	SourceRedirect = "redirect"
	SourceWebhook  = "webhook"
)

// ProductService defines operations for the product catalogue.
type ProductService interface {
	// GetAll retrieves a catalogue page, optionally filtered by size and stock.
	GetAll(ctx context.Context, q model.ProductQuery) ([]model.Product, error)

	// GetByID retrieves a single product by ID.
	GetByID(ctx context.Context, id int64) (*model.Product, error)
}

// CheckoutService opens payment sessions for carts.
type CheckoutService interface {
	// Checkout validates the cart against the catalogue and opens a gateway session.
	Checkout(ctx context.Context, req *model.CheckoutRequest) (*model.CheckoutResponse, error)
}

// ConfirmationService materialises paid checkout sessions into orders.
type ConfirmationService interface {
	// Confirm creates the order for a paid session exactly once.
	// Repeated calls for the same session return the existing order with Created false.
	Confirm(ctx context.Context, sessionID, source string) (*model.OrderResponse, error)
}

// WebhookService reconciles gateway events.
type WebhookService interface {
	// HandleEvent verifies and processes a raw webhook delivery.
	HandleEvent(ctx context.Context, payload []byte, signature string) error
}

// OrderService defines operations on existing orders.
type OrderService interface {
	// GetByID retrieves an order with its items and invoice.
	GetByID(ctx context.Context, id uuid.UUID) (*model.OrderResponse, error)

	// Cancel refunds and cancels a paid order on behalf of its customer.
	Cancel(ctx context.Context, id uuid.UUID, email string) (*model.OrderResponse, error)

	// AdvanceStatus moves an order along its fulfilment path.
	AdvanceStatus(ctx context.Context, id uuid.UUID, status model.OrderStatus) (*model.OrderResponse, error)
}

// ReturnService defines the return and refund workflow.
type ReturnService interface {
	// Create opens a return for a delivered order.
	Create(ctx context.Context, req *model.ReturnRequest) (*model.Return, error)

	// GetByID retrieves a return with its items.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Return, error)

	// AdvanceStatus applies an admin transition, issuing the refund when required.
	AdvanceStatus(ctx context.Context, id uuid.UUID, req *model.ReturnStatusRequest) (*model.Return, error)
}

// Settings holds the business parameters shared by the order workflows.
type Settings struct {
	BaseURL           string
	Currency          string
	TaxRate           decimal.Decimal
	LowStockThreshold int
	ReturnWindow      time.Duration
	Rates             pricing.ShippingRates
	ReturnAddress     label.Address
}

func (s Settings) returnWindow() time.Duration {
	if s.ReturnWindow <= 0 {
		return model.ReturnWindow
	}
	return s.ReturnWindow
}
