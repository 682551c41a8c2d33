package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"storefront/internal/inventory"
	"storefront/internal/messaging/kafka"
	"storefront/internal/metrics"
	"storefront/internal/model"
	"storefront/internal/payment"
	"storefront/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// orderService implements OrderService.
type orderService struct {
	orderRepo repository.OrderRepository
	ledger    inventory.Ledger
	gateway   payment.Gateway
	notifier  *Notifier
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	now       func() time.Time
}

// NewOrderService creates a new order service.
func NewOrderService(
	orderRepo repository.OrderRepository,
	ledger inventory.Ledger,
	gateway payment.Gateway,
	notifier *Notifier,
	m *metrics.Metrics,
	logger zerolog.Logger,
) OrderService {
	return &orderService{
		orderRepo: orderRepo,
		ledger:    ledger,
		gateway:   gateway,
		notifier:  notifier,
		metrics:   m,
		logger:    logger.With().Str("service", "order").Logger(),
		now:       time.Now,
	}
}

// GetByID retrieves an order with its items and invoice.
func (s *orderService) GetByID(ctx context.Context, id uuid.UUID) (*model.OrderResponse, error) {
	order, items, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	invoice, err := s.orderRepo.GetInvoice(ctx, id)
	if err != nil {
		s.logger.Error().Err(err).Str("order_id", id.String()).Msg("failed to get invoice")
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}

	return &model.OrderResponse{
		Success: true,
		Order:   *order,
		Items:   items,
		Invoice: invoice,
	}, nil
}

// Cancel refunds and cancels a paid order on behalf of its customer.
// The order is claimed with a paid to cancelled compare-and-set before the refund, and the
// claimed row stays locked until commit, so a concurrent admin transition cannot ship it.
// A refund failure rolls the claim back and the order stays paid.
func (s *orderService) Cancel(ctx context.Context, id uuid.UUID, email string) (*model.OrderResponse, error) {
	order, items, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	log := s.logger.With().Str("order_id", id.String()).Logger()

	if !emailMatches(order.Customer.Email, email) {
		log.Warn().Msg("cancellation email does not match order")
		return nil, model.ErrUnauthorised
	}
	if order.Status != model.OrderStatusPaid {
		log.Info().Str("status", string(order.Status)).Msg("order not cancelable")
		return nil, model.ErrOrderNotCancelable
	}
	if order.PaymentReference == "" {
		log.Error().Msg("paid order without payment reference")
		return nil, model.ErrMissingPaymentRef
	}

	tx, err := s.orderRepo.BeginTx(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to begin transaction")
		return nil, fmt.Errorf("failed to cancel order: %w", err)
	}

	var refund *payment.Refund

	// Ensure transaction is rolled back on error
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Error().Err(rbErr).Msg("failed to rollback transaction")
			}
			if refund != nil {
				s.metrics.UnreconciledRefund("cancellation")
				log.Error().
					Err(err).
					Str("refund_id", refund.ID).
					Int64("amount", refund.Amount).
					Msg("refund issued but cancellation was not persisted")
			}
		}
	}()

	now := s.now()
	var ok bool
	ok, err = s.orderRepo.UpdateStatus(ctx, tx, order.ID, model.OrderStatusPaid, model.OrderStatusCancelled, now)
	if err != nil {
		log.Error().Err(err).Msg("failed to update order status")
		return nil, fmt.Errorf("failed to cancel order: %w", err)
	}
	if !ok {
		err = model.ErrOrderNotCancelable
		log.Info().Msg("order status changed before cancellation")
		return nil, err
	}

	composer := s.notifier.Composer()
	s.notifier.Enqueue(ctx, []model.Notification{composer.CancellationProcessing(order)})

	refund, err = s.gateway.Refund(ctx, payment.RefundRequest{
		PaymentReference: order.PaymentReference,
		Amount:           order.Total,
		IdempotencyKey:   "cancel-" + order.ID.String(),
		Reason:           "requested_by_customer",
	})
	s.metrics.Refund("cancellation", err)
	if err != nil {
		refund = nil
		log.Error().Err(err).Int64("amount", order.Total).Msg("failed to refund cancelled order")
		return nil, fmt.Errorf("failed to refund order: %w", err)
	}

	if err = inventory.Restock(ctx, s.ledger, tx, inventory.Aggregate(items)); err != nil {
		log.Error().Err(err).Msg("failed to restore stock")
		return nil, fmt.Errorf("failed to restore stock: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		log.Error().Err(err).Msg("failed to commit transaction")
		return nil, fmt.Errorf("failed to cancel order: %w", err)
	}

	order.Status = model.OrderStatusCancelled
	order.UpdatedAt = now

	s.notifier.Enqueue(ctx,
		composer.CancellationCompleted(order, refund.Amount),
		orderEvent(kafka.EventOrderCancelled, order),
	)

	log.Info().
		Str("refund_id", refund.ID).
		Int64("amount", refund.Amount).
		Msg("order cancelled")

	return &model.OrderResponse{
		Success: true,
		Order:   *order,
		Items:   items,
	}, nil
}

// AdvanceStatus moves an order along its fulfilment path.
// Paid and cancelled are reached only through confirmation and cancellation.
func (s *orderService) AdvanceStatus(ctx context.Context, id uuid.UUID, status model.OrderStatus) (*model.OrderResponse, error) {
	switch status {
	case model.OrderStatusShipped, model.OrderStatusReadyForPickup, model.OrderStatusDelivered:
	default:
		return nil, model.ErrInvalidStatus
	}

	order, items, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	log := s.logger.With().Str("order_id", id.String()).Str("from", string(order.Status)).Str("to", string(status)).Logger()

	if !order.Status.CanTransitionTo(status) {
		log.Info().Msg("order transition rejected")
		return nil, model.ConflictError(model.ErrCodeInvalidTransition,
			"No se puede pasar el pedido de %s a %s", order.Status, status)
	}
	pickup := order.ShippingMethod == model.ShippingPickup
	if (status == model.OrderStatusShipped && pickup) || (status == model.OrderStatusReadyForPickup && !pickup) {
		log.Info().Str("shipping_method", string(order.ShippingMethod)).Msg("transition does not match shipping method")
		return nil, model.ConflictError(model.ErrCodeInvalidTransition,
			"El estado %s no corresponde al método de envío %s", status, order.ShippingMethod)
	}

	tx, err := s.orderRepo.BeginTx(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to begin transaction")
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}

	// Ensure transaction is rolled back on error
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Error().Err(rbErr).Msg("failed to rollback transaction")
			}
		}
	}()

	now := s.now()
	var ok bool
	ok, err = s.orderRepo.UpdateStatus(ctx, tx, order.ID, order.Status, status, now)
	if err != nil {
		log.Error().Err(err).Msg("failed to update order status")
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}
	if !ok {
		err = model.ConflictError(model.ErrCodeInvalidTransition, "El pedido ha cambiado de estado, inténtalo de nuevo")
		log.Warn().Msg("order status changed concurrently")
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		log.Error().Err(err).Msg("failed to commit transaction")
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}

	order.Status = status
	order.UpdatedAt = now
	if status == model.OrderStatusDelivered {
		order.DeliveredAt = &now
	}

	s.notifier.Enqueue(ctx,
		[]model.Notification{s.notifier.Composer().StatusUpdate(order)},
		orderEvent(kafka.EventOrderStatusChanged, order),
	)

	log.Info().Msg("order status updated")

	return &model.OrderResponse{
		Success: true,
		Order:   *order,
		Items:   items,
	}, nil
}

func (s *orderService) load(ctx context.Context, id uuid.UUID) (*model.Order, []model.OrderItem, error) {
	order, items, err := s.orderRepo.GetByID(ctx, id)
	if err != nil {
		s.logger.Error().Err(err).Str("order_id", id.String()).Msg("failed to get order")
		return nil, nil, fmt.Errorf("failed to get order: %w", err)
	}
	if order == nil {
		s.logger.Debug().Str("order_id", id.String()).Msg("order not found")
		return nil, nil, model.ErrOrderNotFound
	}
	return order, items, nil
}

func emailMatches(want, got string) bool {
	got = strings.TrimSpace(got)
	return got != "" && strings.EqualFold(strings.TrimSpace(want), got)
}
