package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"
)

// stripeGateway implements Gateway on Stripe Checkout.
type stripeGateway struct {
	api           *client.API
	webhookSecret string
	logger        zerolog.Logger
}

// NewStripeGateway creates a Stripe-backed gateway.
func NewStripeGateway(secretKey, webhookSecret string, logger zerolog.Logger) Gateway {
	return &stripeGateway{
		api:           client.New(secretKey, nil),
		webhookSecret: webhookSecret,
		logger:        logger.With().Str("component", "stripe-gateway").Logger(),
	}
}

// CreateCheckoutSession opens a Stripe Checkout session in payment mode.
func (g *stripeGateway) CreateCheckoutSession(ctx context.Context, req SessionRequest) (*Session, error) {
	var couponID string
	if req.Discount > 0 {
		cp, err := g.createDiscountCoupon(ctx, req)
		if err != nil {
			return nil, err
		}
		couponID = cp
	}

	params := buildSessionParams(req, couponID)
	params.Context = ctx

	s, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		g.logger.Error().Err(err).Str("customer_email", req.CustomerEmail).Msg("failed to create checkout session")
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}

	g.logger.Info().
		Str("session_id", s.ID).
		Int("lines", len(req.Lines)).
		Msg("checkout session created")

	return toSession(s), nil
}

// createDiscountCoupon mints a single-use amount-off coupon for the session.
func (g *stripeGateway) createDiscountCoupon(ctx context.Context, req SessionRequest) (string, error) {
	name := "Descuento"
	if req.CouponCode != "" {
		name = req.CouponCode
	}
	params := &stripe.CouponParams{
		AmountOff:      stripe.Int64(req.Discount),
		Currency:       stripe.String(req.Currency),
		Duration:       stripe.String(string(stripe.CouponDurationOnce)),
		MaxRedemptions: stripe.Int64(1),
		Name:           stripe.String(name),
	}
	params.Context = ctx

	cp, err := g.api.Coupons.New(params)
	if err != nil {
		g.logger.Error().Err(err).Int64("amount_off", req.Discount).Msg("failed to create gateway coupon")
		return "", fmt.Errorf("failed to create gateway coupon: %w", err)
	}
	return cp.ID, nil
}

// GetCheckoutSession retrieves a session with its payment intent expanded.
func (g *stripeGateway) GetCheckoutSession(ctx context.Context, id string) (*Session, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("payment_intent")

	s, err := g.api.CheckoutSessions.Get(id, params)
	if err != nil {
		g.logger.Error().Err(err).Str("session_id", id).Msg("failed to retrieve checkout session")
		return nil, fmt.Errorf("failed to retrieve checkout session: %w", err)
	}
	return toSession(s), nil
}

// Refund issues a refund against a payment intent.
func (g *stripeGateway) Refund(ctx context.Context, req RefundRequest) (*Refund, error) {
	if req.PaymentReference == "" {
		return nil, errors.New("payment reference is required")
	}

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.PaymentReference),
		Amount:        stripe.Int64(req.Amount),
	}
	if req.Reason != "" {
		params.Reason = stripe.String(req.Reason)
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	r, err := g.api.Refunds.New(params)
	if err != nil {
		g.logger.Error().
			Err(err).
			Str("idempotency_key", req.IdempotencyKey).
			Int64("amount", req.Amount).
			Msg("refund failed")
		return nil, fmt.Errorf("failed to create refund: %w", err)
	}

	g.logger.Info().
		Str("refund_id", r.ID).
		Str("status", string(r.Status)).
		Int64("amount", r.Amount).
		Msg("refund issued")

	return &Refund{ID: r.ID, Status: string(r.Status), Amount: r.Amount}, nil
}

// ParseWebhook verifies the Stripe-Signature header and extracts the session id.
func (g *stripeGateway) ParseWebhook(payload []byte, signature string) (*Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		g.logger.Warn().Err(err).Msg("webhook signature verification failed")
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	out := &Event{ID: event.ID, Type: string(event.Type)}
	if event.Data != nil && len(event.Data.Raw) > 0 {
		var obj struct {
			ID     string `json:"id"`
			Object string `json:"object"`
		}
		if err := json.Unmarshal(event.Data.Raw, &obj); err != nil {
			return nil, fmt.Errorf("failed to decode webhook object: %w", err)
		}
		if obj.Object == "checkout.session" {
			out.SessionID = obj.ID
		}
	}
	return out, nil
}

func buildSessionParams(req SessionRequest, couponID string) *stripe.CheckoutSessionParams {
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}

	for _, l := range req.Lines {
		params.LineItems = append(params.LineItems, lineItem(req.Currency, l.Name, l.UnitPrice, int64(l.Quantity)))
	}
	if req.Shipping > 0 {
		label := req.ShippingLabel
		if label == "" {
			label = "Envío"
		}
		params.LineItems = append(params.LineItems, lineItem(req.Currency, label, req.Shipping, 1))
	}

	if couponID != "" {
		params.Discounts = []*stripe.CheckoutSessionDiscountParams{
			{Coupon: stripe.String(couponID)},
		}
	}

	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	return params
}

func lineItem(currency, name string, unitAmount, quantity int64) *stripe.CheckoutSessionLineItemParams {
	return &stripe.CheckoutSessionLineItemParams{
		PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
			Currency:   stripe.String(currency),
			UnitAmount: stripe.Int64(unitAmount),
			ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
				Name: stripe.String(name),
			},
		},
		Quantity: stripe.Int64(quantity),
	}
}

func toSession(s *stripe.CheckoutSession) *Session {
	out := &Session{
		ID:          s.ID,
		URL:         s.URL,
		Paid:        s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		AmountTotal: s.AmountTotal,
		Metadata:    s.Metadata,
	}
	if s.PaymentIntent != nil {
		out.PaymentReference = s.PaymentIntent.ID
	}
	return out
}
