package kafka

import (
	"encoding/json"
	"time"
)

// EventType names a domain event published to the events topic.
type EventType string

const (
	EventOrderPaid           EventType = "order.paid"
	EventOrderCancelled      EventType = "order.cancelled"
	EventOrderStatusChanged  EventType = "order.status_changed"
	EventReturnCreated       EventType = "return.created"
	EventReturnStatusChanged EventType = "return.status_changed"
)

// DefaultTopic is used when no topic is configured.
const DefaultTopic = "storefront.events"

// Envelope wraps every event payload on the wire.
type Envelope struct {
	ID          string          `json:"id"`
	EventType   string          `json:"event_type"`
	AggregateID string          `json:"aggregate_id"`
	Payload     json.RawMessage `json:"payload"`
	PublishedAt time.Time       `json:"published_at"`
}

// OrderEvent is the payload of order events.
type OrderEvent struct {
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
	Email       string `json:"email"`
	Status      string `json:"status"`
	Total       int64  `json:"total"`
}

// ReturnEvent is the payload of return events.
type ReturnEvent struct {
	ReturnID     string `json:"return_id"`
	OrderID      string `json:"order_id"`
	Reference    string `json:"reference"`
	Status       string `json:"status"`
	RefundAmount int64  `json:"refund_amount"`
}
