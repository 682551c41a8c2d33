package notify

import (
	"context"

	"storefront/internal/model"
)

// Email is a rendered message ready for the sender.
type Email struct {
	To          []string
	Subject     string
	HTML        string
	Attachments []Attachment
}

// Attachment is a file carried by an email.
type Attachment struct {
	Filename string
	Content  []byte
}

// Sender delivers emails through a provider.
type Sender interface {
	Send(ctx context.Context, email Email) error
}

// EventPublisher publishes domain events to the broker.
type EventPublisher interface {
	Publish(ctx context.Context, id, eventType, aggregateID string, payload []byte) error
}

// AttachmentStore resolves attachment keys to content.
type AttachmentStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// Outbox persists notification intents for later delivery.
type Outbox interface {
	Enqueue(ctx context.Context, notifications []model.Notification) error
}

// Repository is the outbox view the dispatcher works against.
type Repository interface {
	PullPending(ctx context.Context, limit int) ([]model.Notification, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, attempts int, lastErr string) error
	Stats(ctx context.Context) (model.OutboxStats, error)
}
