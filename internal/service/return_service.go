package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"storefront/internal/document"
	"storefront/internal/inventory"
	"storefront/internal/label"
	"storefront/internal/messaging/kafka"
	"storefront/internal/metrics"
	"storefront/internal/model"
	"storefront/internal/payment"
	"storefront/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const referenceAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// returnService implements ReturnService.
type returnService struct {
	returnRepo repository.ReturnRepository
	orderRepo  repository.OrderRepository
	ledger     inventory.Ledger
	gateway    payment.Gateway
	labels     label.Generator
	documents  document.Store
	notifier   *Notifier
	metrics    *metrics.Metrics
	settings   Settings
	logger     zerolog.Logger
	now        func() time.Time
}

// NewReturnService creates a new return service.
func NewReturnService(
	returnRepo repository.ReturnRepository,
	orderRepo repository.OrderRepository,
	ledger inventory.Ledger,
	gateway payment.Gateway,
	labels label.Generator,
	documents document.Store,
	notifier *Notifier,
	m *metrics.Metrics,
	settings Settings,
	logger zerolog.Logger,
) ReturnService {
	return &returnService{
		returnRepo: returnRepo,
		orderRepo:  orderRepo,
		ledger:     ledger,
		gateway:    gateway,
		labels:     labels,
		documents:  documents,
		notifier:   notifier,
		metrics:    m,
		settings:   settings,
		logger:     logger.With().Str("service", "return").Logger(),
		now:        time.Now,
	}
}

// Create opens a return for a delivered order within the return window.
func (s *returnService) Create(ctx context.Context, req *model.ReturnRequest) (*model.Return, error) {
	if req == nil || req.OrderID == uuid.Nil {
		return nil, model.ValidationError(model.ErrCodeMissingField, "El campo orderId es obligatorio")
	}
	if len(req.Items) == 0 {
		return nil, model.ValidationError(model.ErrCodeMissingField, "Selecciona al menos un artículo")
	}

	order, items, err := s.orderRepo.GetByID(ctx, req.OrderID)
	if err != nil {
		s.logger.Error().Err(err).Str("order_id", req.OrderID.String()).Msg("failed to get order")
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	if order == nil {
		return nil, model.ErrOrderNotFound
	}
	log := s.logger.With().Str("order_id", order.ID.String()).Logger()

	if !emailMatches(order.Customer.Email, req.Email) {
		log.Warn().Msg("return email does not match order")
		return nil, model.ErrUnauthorised
	}
	if order.Status != model.OrderStatusDelivered {
		return nil, model.ErrOrderNotDelivered
	}

	now := s.now()
	if order.DeliveredAt == nil || now.Sub(*order.DeliveredAt) > s.settings.returnWindow() {
		log.Info().Msg("return window expired")
		return nil, model.ErrReturnWindow
	}

	active, err := s.returnRepo.HasActiveForOrder(ctx, order.ID)
	if err != nil {
		log.Error().Err(err).Msg("failed to check active returns")
		return nil, fmt.Errorf("failed to check active returns: %w", err)
	}
	if active {
		return nil, model.ErrReturnExists
	}

	returned, refund, err := selectReturnItems(req.Items, items)
	if err != nil {
		return nil, err
	}

	reference, err := newReference()
	if err != nil {
		return nil, fmt.Errorf("failed to generate return reference: %w", err)
	}

	ret := &model.Return{
		ID:           uuid.New(),
		OrderID:      order.ID,
		Reference:    reference,
		Status:       model.ReturnStatusPending,
		Reason:       req.Reason,
		Items:        returned,
		RefundAmount: refund,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	ret.LabelKey = s.storeLabel(ctx, order, ret)

	tx, err := s.returnRepo.BeginTx(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to begin transaction")
		return nil, fmt.Errorf("failed to create return: %w", err)
	}

	// Ensure transaction is rolled back on error
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Error().Err(rbErr).Msg("failed to rollback transaction")
			}
		}
	}()

	if err = s.returnRepo.Create(ctx, tx, ret); err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		log.Error().Err(err).Msg("failed to commit transaction")
		return nil, fmt.Errorf("failed to create return: %w", err)
	}

	s.notifier.Enqueue(ctx,
		s.notifier.Composer().ReturnCreated(order, ret),
		returnEvent(kafka.EventReturnCreated, ret),
	)

	log.Info().
		Str("return_id", ret.ID.String()).
		Str("reference", ret.Reference).
		Int64("refund_amount", ret.RefundAmount).
		Msg("return created")

	return ret, nil
}

// GetByID retrieves a return with its items.
func (s *returnService) GetByID(ctx context.Context, id uuid.UUID) (*model.Return, error) {
	ret, err := s.returnRepo.GetByID(ctx, id)
	if err != nil {
		s.logger.Error().Err(err).Str("return_id", id.String()).Msg("failed to get return")
		return nil, fmt.Errorf("failed to get return: %w", err)
	}
	if ret == nil {
		return nil, model.ErrReturnNotFound
	}
	return ret, nil
}

// AdvanceStatus applies an admin transition. Reaching received restocks the
// returned items; reaching refunded issues the gateway refund first and only
// persists the status after it succeeds.
func (s *returnService) AdvanceStatus(ctx context.Context, id uuid.UUID, req *model.ReturnStatusRequest) (*model.Return, error) {
	if req == nil || !req.Status.Valid() {
		return nil, model.ErrInvalidStatus
	}

	ret, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	log := s.logger.With().
		Str("return_id", id.String()).
		Str("from", string(ret.Status)).
		Str("to", string(req.Status)).
		Logger()

	if !ret.Status.CanTransitionTo(req.Status) {
		log.Info().Msg("return transition rejected")
		return nil, model.ConflictError(model.ErrCodeInvalidTransition,
			"No se puede pasar la devolución de %s a %s", ret.Status, req.Status)
	}

	order, _, err := s.orderRepo.GetByID(ctx, ret.OrderID)
	if err != nil {
		log.Error().Err(err).Msg("failed to get order")
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	if order == nil {
		log.Error().Str("order_id", ret.OrderID.String()).Msg("return references missing order")
		return nil, model.ErrOrderNotFound
	}

	t := model.ReturnTransition{
		ID:           ret.ID,
		From:         ret.Status,
		To:           req.Status,
		RefundAmount: ret.RefundAmount,
		At:           s.now(),
	}
	if req.Notes != "" {
		notes := req.Notes
		t.AdminNotes = &notes
	}

	if req.Status == model.ReturnStatusRefunded {
		if err := s.refund(ctx, order, ret, req.RefundAmount, &t); err != nil {
			return nil, err
		}
	}

	tx, err := s.returnRepo.BeginTx(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to begin transaction")
		return nil, fmt.Errorf("failed to update return: %w", err)
	}

	// Ensure transaction is rolled back on error
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Error().Err(rbErr).Msg("failed to rollback transaction")
			}
		}
	}()

	var ok bool
	ok, err = s.returnRepo.UpdateStatus(ctx, tx, t)
	if err != nil {
		log.Error().Err(err).Msg("failed to update return status")
		return nil, fmt.Errorf("failed to update return: %w", err)
	}
	if !ok {
		err = model.ConflictError(model.ErrCodeInvalidTransition, "La devolución ha cambiado de estado, inténtalo de nuevo")
		if t.RefundReference != nil {
			s.metrics.UnreconciledRefund("return")
			log.Error().Str("refund_id", *t.RefundReference).Msg("refund issued but return status changed concurrently")
		} else {
			log.Warn().Msg("return status changed concurrently")
		}
		return nil, err
	}

	if req.Status == model.ReturnStatusReceived {
		if err = inventory.Restock(ctx, s.ledger, tx, inventory.Aggregate(returnedOrderItems(ret.Items))); err != nil {
			log.Error().Err(err).Msg("failed to restock returned items")
			return nil, fmt.Errorf("failed to restock returned items: %w", err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		log.Error().Err(err).Msg("failed to commit transaction")
		return nil, fmt.Errorf("failed to update return: %w", err)
	}

	applyTransition(ret, t)

	s.notifier.Enqueue(ctx,
		[]model.Notification{s.notifier.Composer().ReturnStatus(order, ret)},
		returnEvent(kafka.EventReturnStatusChanged, ret),
	)

	log.Info().Int64("refund_amount", ret.RefundAmount).Msg("return status updated")

	return ret, nil
}

func (s *returnService) refund(ctx context.Context, order *model.Order, ret *model.Return, override *int64, t *model.ReturnTransition) error {
	if order.PaymentReference == "" {
		return model.ErrMissingPaymentRef
	}

	amount := ret.RefundAmount
	if override != nil {
		if *override <= 0 || *override > order.Total {
			return model.ErrInvalidAmount
		}
		amount = *override
	}
	if amount <= 0 || amount > order.Total {
		return model.ErrInvalidAmount
	}

	refund, err := s.gateway.Refund(ctx, payment.RefundRequest{
		PaymentReference: order.PaymentReference,
		Amount:           amount,
		IdempotencyKey:   "return-" + ret.ID.String(),
		Reason:           "requested_by_customer",
	})
	s.metrics.Refund("return", err)
	if err != nil {
		s.logger.Error().Err(err).Str("return_id", ret.ID.String()).Int64("amount", amount).Msg("failed to refund return")
		return fmt.Errorf("failed to refund return: %w", err)
	}

	t.RefundAmount = amount
	t.RefundReference = &refund.ID
	return nil
}

// storeLabel renders and stores the shipping label. A failure leaves the return without a label.
func (s *returnService) storeLabel(ctx context.Context, order *model.Order, ret *model.Return) string {
	data, err := s.labels.Generate(label.Data{
		Reference:   ret.Reference,
		OrderNumber: order.Number,
		Customer:    order.Customer,
		Items:       ret.Items,
		Store:       s.settings.ReturnAddress,
		CreatedAt:   ret.CreatedAt,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("reference", ret.Reference).Msg("failed to generate return label")
		return ""
	}

	key := "returns/" + ret.Reference + ".pdf"
	if err := s.documents.Put(ctx, key, label.ContentType, data); err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("failed to store return label")
		return ""
	}
	return key
}

// selectReturnItems validates the requested quantities against the order and
// snapshots each returned line.
func selectReturnItems(reqs []model.ReturnItemRequest, items []model.OrderItem) ([]model.ReturnItem, int64, error) {
	byID := make(map[uuid.UUID]model.OrderItem, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}

	seen := make(map[uuid.UUID]bool, len(reqs))
	out := make([]model.ReturnItem, 0, len(reqs))
	var refund int64
	for _, r := range reqs {
		it, ok := byID[r.OrderItemID]
		if !ok {
			return nil, 0, model.ValidationError(model.ErrCodeProductNotFound,
				"El artículo %s no pertenece al pedido", r.OrderItemID)
		}
		if seen[r.OrderItemID] {
			return nil, 0, model.ValidationError(model.ErrCodeInvalidQuantity,
				"El artículo %q aparece más de una vez", it.ProductName)
		}
		seen[r.OrderItemID] = true
		if r.Quantity < 1 || r.Quantity > it.Quantity {
			return nil, 0, model.ValidationError(model.ErrCodeInvalidQuantity,
				"Cantidad a devolver no válida para %q: máximo %d", it.ProductName, it.Quantity)
		}
		out = append(out, model.ReturnItem{
			OrderItemID: it.ID,
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Size:        it.Size,
			UnitPrice:   it.UnitPrice,
			Quantity:    r.Quantity,
		})
		refund += it.UnitPrice * int64(r.Quantity)
	}
	return out, refund, nil
}

func returnedOrderItems(items []model.ReturnItem) []model.OrderItem {
	out := make([]model.OrderItem, len(items))
	for i, it := range items {
		out[i] = model.OrderItem{
			ID:          it.OrderItemID,
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Size:        it.Size,
			UnitPrice:   it.UnitPrice,
			Quantity:    it.Quantity,
		}
	}
	return out
}

func applyTransition(ret *model.Return, t model.ReturnTransition) {
	ret.Status = t.To
	ret.UpdatedAt = t.At
	ret.RefundAmount = t.RefundAmount
	if t.AdminNotes != nil {
		ret.AdminNotes = t.AdminNotes
	}
	switch t.To {
	case model.ReturnStatusReceived:
		ret.ReceivedAt = &t.At
	case model.ReturnStatusRefunded:
		ret.RefundedAt = &t.At
		ret.RefundReference = t.RefundReference
	case model.ReturnStatusRejected:
		ret.RejectedAt = &t.At
	}
}

// newReference returns a human-readable return reference such as DEV-7K2QXM9A.
func newReference() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = referenceAlphabet[int(b)%len(referenceAlphabet)]
	}
	return "DEV-" + string(buf), nil
}
