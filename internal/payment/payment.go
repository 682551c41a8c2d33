package payment

import (
	"context"
	"errors"
)

// ErrInvalidSignature is returned when a webhook payload fails verification.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// Webhook event types handled by the reconciler.
const (
	EventCheckoutCompleted     = "checkout.session.completed"
	EventAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"
	EventAsyncPaymentFailed    = "checkout.session.async_payment_failed"
)

// Gateway is the hosted payment provider.
type Gateway interface {
	// CreateCheckoutSession opens a hosted checkout and returns its redirect URL.
	CreateCheckoutSession(ctx context.Context, req SessionRequest) (*Session, error)

	// GetCheckoutSession fetches the current state of a session.
	GetCheckoutSession(ctx context.Context, id string) (*Session, error)

	// Refund issues a refund. Requests with the same idempotency key refund at most once.
	Refund(ctx context.Context, req RefundRequest) (*Refund, error)

	// ParseWebhook verifies the signature and decodes the event.
	ParseWebhook(payload []byte, signature string) (*Event, error)
}

// SessionLine is one purchasable line of a checkout session.
type SessionLine struct {
	Name      string
	UnitPrice int64
	Quantity  int
}

// SessionRequest describes a checkout to open.
// Shipping is charged as an extra line and Discount as an amount-off coupon.
type SessionRequest struct {
	Lines         []SessionLine
	Shipping      int64
	ShippingLabel string
	Discount      int64
	CouponCode    string
	CustomerEmail string
	Currency      string
	SuccessURL    string
	CancelURL     string
	Metadata      map[string]string
}

// Session is the gateway view of a checkout session.
type Session struct {
	ID               string
	URL              string
	Paid             bool
	PaymentReference string
	AmountTotal      int64
	Metadata         map[string]string
}

// RefundRequest asks for a refund against a payment reference.
type RefundRequest struct {
	PaymentReference string
	Amount           int64
	IdempotencyKey   string
	Reason           string
}

// Refund is the gateway outcome of a refund.
type Refund struct {
	ID     string
	Status string
	Amount int64
}

// Event is a verified webhook event.
type Event struct {
	ID        string
	Type      string
	SessionID string
}
