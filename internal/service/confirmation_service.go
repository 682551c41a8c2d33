package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"storefront/internal/coupon"
	"storefront/internal/inventory"
	"storefront/internal/messaging/kafka"
	"storefront/internal/metrics"
	"storefront/internal/model"
	"storefront/internal/payment"
	"storefront/internal/pricing"
	"storefront/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// confirmationService implements ConfirmationService.
type confirmationService struct {
	orderRepo   repository.OrderRepository
	productRepo repository.ProductRepository
	couponRepo  repository.CouponRepository
	ledger      inventory.Ledger
	gateway     payment.Gateway
	notifier    *Notifier
	metrics     *metrics.Metrics
	settings    Settings
	logger      zerolog.Logger
	now         func() time.Time
}

// NewConfirmationService creates a new confirmation service.
func NewConfirmationService(
	orderRepo repository.OrderRepository,
	productRepo repository.ProductRepository,
	couponRepo repository.CouponRepository,
	ledger inventory.Ledger,
	gateway payment.Gateway,
	notifier *Notifier,
	m *metrics.Metrics,
	settings Settings,
	logger zerolog.Logger,
) ConfirmationService {
	return &confirmationService{
		orderRepo:   orderRepo,
		productRepo: productRepo,
		couponRepo:  couponRepo,
		ledger:      ledger,
		gateway:     gateway,
		notifier:    notifier,
		metrics:     m,
		settings:    settings,
		logger:      logger.With().Str("service", "confirmation").Logger(),
		now:         time.Now,
	}
}

// Confirm creates the order for a paid session exactly once.
func (s *confirmationService) Confirm(ctx context.Context, sessionID, source string) (*model.OrderResponse, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, model.ValidationError(model.ErrCodeMissingField, "El campo sessionId es obligatorio")
	}
	log := s.logger.With().Str("session_id", sessionID).Str("source", source).Logger()

	if resp, err := s.existing(ctx, sessionID); err != nil || resp != nil {
		if resp != nil {
			log.Debug().Str("order_id", resp.Order.ID.String()).Msg("session already confirmed")
		}
		return resp, err
	}

	sess, err := s.gateway.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		log.Error().Err(err).Msg("failed to fetch checkout session")
		return nil, fmt.Errorf("failed to fetch checkout session: %w", err)
	}
	if !sess.Paid {
		log.Info().Msg("checkout session not paid")
		return nil, model.ErrPaymentIncomplete
	}

	intent, err := payment.DecodeIntent(sess.Metadata)
	if err != nil {
		log.Error().Err(err).Msg("failed to decode order intent")
		return nil, fmt.Errorf("failed to decode order intent: %w", err)
	}
	if sess.AmountTotal != 0 && sess.AmountTotal != intent.Total {
		log.Warn().
			Int64("amount_total", sess.AmountTotal).
			Int64("intent_total", intent.Total).
			Msg("gateway amount differs from intent total")
	}

	names, err := s.productNames(ctx, intent.Items)
	if err != nil {
		return nil, err
	}

	now := s.now()
	order := buildOrder(sessionID, sess.PaymentReference, intent, now)
	items := buildItems(order.ID, intent.Items, names)
	invoice := buildInvoice(order, items, s.settings, now)

	tx, err := s.orderRepo.BeginTx(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to begin transaction")
		return nil, fmt.Errorf("failed to confirm order: %w", err)
	}

	// Ensure transaction is rolled back on error
	finished := false
	defer func() {
		if !finished {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Error().Err(rbErr).Msg("failed to rollback transaction")
			}
		}
	}()

	created, err := s.orderRepo.CreateOrder(ctx, tx, order)
	if err != nil {
		log.Error().Err(err).Msg("failed to create order")
		return nil, fmt.Errorf("failed to create order: %w", err)
	}
	if !created {
		// Lost the race against a concurrent confirmation for the same session.
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			log.Error().Err(rbErr).Msg("failed to rollback transaction")
		}
		finished = true
		resp, err := s.existing(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if resp == nil {
			return nil, fmt.Errorf("order for session %s vanished after conflict", sessionID)
		}
		log.Info().Str("order_id", resp.Order.ID.String()).Msg("concurrent confirmation resolved to existing order")
		return resp, nil
	}

	if err = s.orderRepo.CreateOrderItems(ctx, tx, items); err != nil {
		log.Error().Err(err).Str("order_id", order.ID.String()).Msg("failed to create order items")
		return nil, fmt.Errorf("failed to create order items: %w", err)
	}

	if err = s.orderRepo.CreateInvoice(ctx, tx, invoice); err != nil {
		log.Error().Err(err).Str("order_id", order.ID.String()).Msg("failed to create invoice")
		return nil, fmt.Errorf("failed to create invoice: %w", err)
	}

	if order.CouponCode != nil {
		redeemed, err := s.couponRepo.Redeem(ctx, tx, *order.CouponCode, order.Customer.Email, order.ID)
		if err != nil {
			log.Error().Err(err).Str("coupon_code", *order.CouponCode).Msg("failed to redeem coupon")
			return nil, fmt.Errorf("failed to redeem coupon: %w", err)
		}
		if !redeemed {
			log.Warn().Str("coupon_code", *order.CouponCode).Msg("coupon limit reached at confirmation, discount kept")
		}
	}

	changes, err := inventory.Apply(ctx, s.ledger, tx, inventory.Aggregate(items))
	if err != nil {
		log.Error().Err(err).Str("order_id", order.ID.String()).Msg("failed to decrement stock")
		return nil, fmt.Errorf("failed to decrement stock: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		log.Error().Err(err).Str("order_id", order.ID.String()).Msg("failed to commit transaction")
		return nil, fmt.Errorf("failed to confirm order: %w", err)
	}
	finished = true

	s.metrics.OrderConfirmed(source)
	for _, c := range changes {
		if c.Oversold() {
			s.metrics.StockShortfall(c.Shortfall)
			log.Warn().
				Str("key", c.Key.String()).
				Int("shortfall", c.Shortfall).
				Msg("stock oversold, counter floored at zero")
		}
	}

	threshold := s.settings.LowStockThreshold
	if threshold <= 0 {
		threshold = inventory.DefaultLowStockThreshold
	}
	alerts := inventory.Classify(changes, threshold)
	for _, a := range alerts {
		s.metrics.StockAlert(string(a.Level))
	}

	composer := s.notifier.Composer()
	notifications := composer.OrderConfirmed(order, items, invoice)
	notifications = append(notifications, composer.StockAlert(order.Number, alerts)...)
	s.notifier.Enqueue(ctx, notifications, orderEvent(kafka.EventOrderPaid, order))

	log.Info().
		Str("order_id", order.ID.String()).
		Str("order_number", order.Number).
		Int64("total", order.Total).
		Int("alerts", len(alerts)).
		Msg("order confirmed")

	return &model.OrderResponse{
		Success: true,
		Order:   *order,
		Items:   items,
		Invoice: invoice,
		Created: true,
	}, nil
}

func (s *confirmationService) existing(ctx context.Context, sessionID string) (*model.OrderResponse, error) {
	order, items, err := s.orderRepo.GetBySessionID(ctx, sessionID)
	if err != nil {
		s.logger.Error().Err(err).Str("session_id", sessionID).Msg("failed to look up order by session")
		return nil, fmt.Errorf("failed to look up order: %w", err)
	}
	if order == nil {
		return nil, nil
	}

	invoice, err := s.orderRepo.GetInvoice(ctx, order.ID)
	if err != nil {
		s.logger.Error().Err(err).Str("order_id", order.ID.String()).Msg("failed to get invoice")
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}

	s.metrics.DuplicateConfirmation()
	return &model.OrderResponse{
		Success: true,
		Order:   *order,
		Items:   items,
		Invoice: invoice,
		Created: false,
	}, nil
}

// productNames snapshots catalogue names; a product deleted since checkout keeps a placeholder.
func (s *confirmationService) productNames(ctx context.Context, items []model.LineItem) (map[int64]string, error) {
	ids := make([]int64, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	products, err := s.productRepo.GetByIDs(ctx, ids)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to load products for confirmation")
		return nil, fmt.Errorf("failed to load products: %w", err)
	}
	names := make(map[int64]string, len(products))
	for _, p := range products {
		names[p.ID] = p.Name
	}
	return names, nil
}

func buildOrder(sessionID, paymentRef string, intent model.OrderIntent, now time.Time) *model.Order {
	order := &model.Order{
		ID:                uuid.New(),
		Customer:          intent.Customer,
		ShippingMethod:    intent.ShippingMethod,
		Status:            model.OrderStatusPaid,
		Subtotal:          intent.Subtotal,
		ShippingCost:      intent.Shipping,
		Discount:          intent.Discount,
		Total:             intent.Total,
		CheckoutSessionID: sessionID,
		PaymentReference:  paymentRef,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if intent.CouponCode != "" {
		code := coupon.NormaliseCode(intent.CouponCode)
		order.CouponCode = &code
	}
	return order
}

func buildItems(orderID uuid.UUID, lines []model.LineItem, names map[int64]string) []model.OrderItem {
	items := make([]model.OrderItem, len(lines))
	for i, l := range lines {
		name, ok := names[l.ProductID]
		if !ok {
			name = fmt.Sprintf("Producto #%d", l.ProductID)
		}
		items[i] = model.OrderItem{
			ID:          uuid.New(),
			OrderID:     orderID,
			ProductID:   l.ProductID,
			ProductName: name,
			UnitPrice:   l.UnitPrice,
			Quantity:    l.Quantity,
			Size:        l.Size,
		}
	}
	return items
}

func buildInvoice(order *model.Order, items []model.OrderItem, settings Settings, now time.Time) *model.Invoice {
	net := order.Subtotal - order.Discount
	base, tax := pricing.ExtractTax(net, settings.TaxRate)

	lines := make([]model.InvoiceItem, len(items))
	for i, it := range items {
		lines[i] = model.InvoiceItem{
			Description: it.ProductName,
			Size:        it.Size,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			LineTotal:   it.LineTotal(),
		}
	}

	return &model.Invoice{
		ID:       uuid.New(),
		OrderID:  order.ID,
		Net:      net,
		Base:     base,
		Tax:      tax,
		TaxRate:  settings.TaxRate,
		Shipping: order.ShippingCost,
		Total:    net + order.ShippingCost,
		IssuedAt: now,
		Items:    lines,
	}
}
