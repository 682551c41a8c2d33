package service

import (
	"context"
	"errors"
	"fmt"

	"storefront/internal/model"
	"storefront/internal/payment"

	"github.com/rs/zerolog"
)

// webhookService implements WebhookService.
type webhookService struct {
	gateway      payment.Gateway
	confirmation ConfirmationService
	logger       zerolog.Logger
}

// NewWebhookService creates a new webhook reconciler.
func NewWebhookService(gateway payment.Gateway, confirmation ConfirmationService, logger zerolog.Logger) WebhookService {
	return &webhookService{
		gateway:      gateway,
		confirmation: confirmation,
		logger:       logger.With().Str("service", "webhook").Logger(),
	}
}

// HandleEvent verifies and processes a raw webhook delivery.
// Returned errors other than payment.ErrInvalidSignature make the gateway redeliver.
func (s *webhookService) HandleEvent(ctx context.Context, payload []byte, signature string) error {
	ev, err := s.gateway.ParseWebhook(payload, signature)
	if err != nil {
		s.logger.Warn().Err(err).Msg("webhook rejected")
		return err
	}
	log := s.logger.With().Str("event_id", ev.ID).Str("event_type", ev.Type).Logger()

	switch ev.Type {
	case payment.EventCheckoutCompleted, payment.EventAsyncPaymentSucceeded:
		if ev.SessionID == "" {
			log.Warn().Msg("checkout event without session id")
			return nil
		}
		resp, err := s.confirmation.Confirm(ctx, ev.SessionID, SourceWebhook)
		if errors.Is(err, model.ErrPaymentIncomplete) {
			// Delayed payment methods complete the session before funds arrive.
			log.Info().Str("session_id", ev.SessionID).Msg("session completed without payment, awaiting async result")
			return nil
		}
		if err != nil {
			log.Error().Err(err).Str("session_id", ev.SessionID).Msg("failed to confirm order from webhook")
			return fmt.Errorf("failed to confirm session %s: %w", ev.SessionID, err)
		}
		log.Info().
			Str("session_id", ev.SessionID).
			Str("order_id", resp.Order.ID.String()).
			Bool("created", resp.Created).
			Msg("webhook reconciled")
	case payment.EventAsyncPaymentFailed:
		log.Warn().Str("session_id", ev.SessionID).Msg("async payment failed")
	default:
		log.Debug().Msg("webhook event ignored")
	}
	return nil
}
