package model

import (
	"time"

	"github.com/google/uuid"
)

// Channel selects the transport of an outbox record.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelEvent Channel = "event"
)

// NotificationStatus tracks delivery of an outbox record.
type NotificationStatus string

const (
	NotificationPending NotificationStatus = "pending"
	NotificationSent    NotificationStatus = "sent"
	NotificationFailed  NotificationStatus = "failed"
)

// Notification is an outbox record written after a state change and delivered asynchronously.
// For the event channel Kind is the event type, Recipient the partition key and Body the JSON payload.
type Notification struct {
	ID             uuid.UUID          `json:"id" db:"id"`
	Channel        Channel            `json:"channel" db:"channel"`
	Kind           string             `json:"kind" db:"kind"`
	Recipient      string             `json:"recipient" db:"recipient"`
	Subject        string             `json:"subject" db:"subject"`
	Body           string             `json:"body" db:"body"`
	AttachmentKey  string             `json:"attachmentKey,omitempty" db:"attachment_key"`
	AttachmentName string             `json:"attachmentName,omitempty" db:"attachment_name"`
	Attempts       int                `json:"attempts" db:"attempts"`
	Status         NotificationStatus `json:"status" db:"status"`
	LastError      *string            `json:"lastError,omitempty" db:"last_error"`
	CreatedAt      time.Time          `json:"createdAt" db:"created_at"`
	SentAt         *time.Time         `json:"sentAt,omitempty" db:"sent_at"`
}

// OutboxStats summarises the outbox backlog.
type OutboxStats struct {
	Pending int64 `json:"pending"`
	Sent    int64 `json:"sent"`
	Failed  int64 `json:"failed"`
}
