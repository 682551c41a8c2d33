package service

import (
	"context"

	"storefront/internal/messaging/kafka"
	"storefront/internal/model"
	"storefront/internal/notify"

	"github.com/rs/zerolog"
)

// Notifier writes notification intents to the outbox after a state change.
// Failures are logged and never returned to the caller.
type Notifier struct {
	outbox   notify.Outbox
	composer *notify.Composer
	logger   zerolog.Logger
}

// NewNotifier creates a notifier backed by the outbox.
func NewNotifier(outbox notify.Outbox, composer *notify.Composer, logger zerolog.Logger) *Notifier {
	return &Notifier{
		outbox:   outbox,
		composer: composer,
		logger:   logger.With().Str("component", "notifier").Logger(),
	}
}

// Composer returns the message composer.
func (n *Notifier) Composer() *notify.Composer {
	return n.composer
}

// Enqueue stores notifications plus an optional domain event.
// The write outlives request cancellation so a disconnected client does not drop messages.
func (n *Notifier) Enqueue(ctx context.Context, notifications []model.Notification, events ...pendingEvent) {
	for _, ev := range events {
		rec, err := n.composer.Event(string(ev.eventType), ev.aggregateID, ev.payload)
		if err != nil {
			n.logger.Error().Err(err).Str("event_type", string(ev.eventType)).Msg("failed to encode event")
			continue
		}
		notifications = append(notifications, rec)
	}
	if len(notifications) == 0 {
		return
	}

	if err := n.outbox.Enqueue(context.WithoutCancel(ctx), notifications); err != nil {
		n.logger.Error().Err(err).Int("count", len(notifications)).Msg("failed to enqueue notifications")
		return
	}

	n.logger.Debug().Int("count", len(notifications)).Msg("notifications enqueued")
}

type pendingEvent struct {
	eventType   kafka.EventType
	aggregateID string
	payload     any
}

func orderEvent(eventType kafka.EventType, o *model.Order) pendingEvent {
	return pendingEvent{
		eventType:   eventType,
		aggregateID: o.ID.String(),
		payload: kafka.OrderEvent{
			OrderID:     o.ID.String(),
			OrderNumber: o.Number,
			Email:       o.Customer.Email,
			Status:      string(o.Status),
			Total:       o.Total,
		},
	}
}

func returnEvent(eventType kafka.EventType, r *model.Return) pendingEvent {
	return pendingEvent{
		eventType:   eventType,
		aggregateID: r.OrderID.String(),
		payload: kafka.ReturnEvent{
			ReturnID:     r.ID.String(),
			OrderID:      r.OrderID.String(),
			Reference:    r.Reference,
			Status:       string(r.Status),
			RefundAmount: r.RefundAmount,
		},
	}
}
