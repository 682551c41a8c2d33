package model

import (
	"time"

	"github.com/google/uuid"
)

// ReturnStatus is the lifecycle state of a return.
type ReturnStatus string

const (
	ReturnStatusPending  ReturnStatus = "pending"
	ReturnStatusReceived ReturnStatus = "received"
	ReturnStatusRefunded ReturnStatus = "refunded"
	ReturnStatusRejected ReturnStatus = "rejected"
)

var returnTransitions = map[ReturnStatus][]ReturnStatus{
	ReturnStatusPending:  {ReturnStatusReceived, ReturnStatusRejected},
	ReturnStatusReceived: {ReturnStatusRefunded, ReturnStatusRejected},
}

// Valid reports whether s is a known return status.
func (s ReturnStatus) Valid() bool {
	switch s {
	case ReturnStatusPending, ReturnStatusReceived, ReturnStatusRefunded, ReturnStatusRejected:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether the return table allows s -> next.
func (s ReturnStatus) CanTransitionTo(next ReturnStatus) bool {
	for _, allowed := range returnTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Active reports whether the return still blocks a new one for the same order.
func (s ReturnStatus) Active() bool {
	return s != ReturnStatusRejected
}

// ReturnWindow is the period after delivery during which a return may be opened.
const ReturnWindow = 30 * 24 * time.Hour

// Return represents a customer return request.
type Return struct {
	ID              uuid.UUID    `json:"id" db:"id"`
	OrderID         uuid.UUID    `json:"orderId" db:"order_id"`
	Reference       string       `json:"reference" db:"reference"`
	Status          ReturnStatus `json:"status" db:"status"`
	Reason          string       `json:"reason,omitempty" db:"reason"`
	Items           []ReturnItem `json:"items"`
	RefundAmount    int64        `json:"refundAmount" db:"refund_amount"`
	RefundReference *string      `json:"refundReference,omitempty" db:"refund_reference"`
	AdminNotes      *string      `json:"adminNotes,omitempty" db:"admin_notes"`
	LabelKey        string       `json:"-" db:"label_key"`
	ReceivedAt      *time.Time   `json:"receivedAt,omitempty" db:"received_at"`
	RefundedAt      *time.Time   `json:"refundedAt,omitempty" db:"refunded_at"`
	RejectedAt      *time.Time   `json:"rejectedAt,omitempty" db:"rejected_at"`
	CreatedAt       time.Time    `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time    `json:"updatedAt" db:"updated_at"`
}

// ReturnItem is a returned quantity of one order item.
type ReturnItem struct {
	OrderItemID uuid.UUID `json:"orderItemId" db:"order_item_id"`
	ProductID   int64     `json:"productId" db:"product_id"`
	ProductName string    `json:"productName" db:"product_name"`
	Size        string    `json:"size,omitempty" db:"size"`
	UnitPrice   int64     `json:"unitPrice" db:"unit_price"`
	Quantity    int       `json:"quantity" db:"quantity"`
}

// ReturnRequest is the customer payload for opening a return.
type ReturnRequest struct {
	OrderID uuid.UUID           `json:"orderId"`
	Email   string              `json:"email"`
	Reason  string              `json:"reason,omitempty"`
	Items   []ReturnItemRequest `json:"items"`
}

// ReturnItemRequest selects a quantity of an order item to send back.
type ReturnItemRequest struct {
	OrderItemID uuid.UUID `json:"orderItemId"`
	Quantity    int       `json:"quantity"`
}

// ReturnStatusRequest is the admin payload for advancing a return.
type ReturnStatusRequest struct {
	Status       ReturnStatus `json:"status"`
	RefundAmount *int64       `json:"refundAmount,omitempty"`
	Notes        string       `json:"notes,omitempty"`
}

// ReturnResponse wraps a return for the API.
type ReturnResponse struct {
	Success bool   `json:"success"`
	Return  Return `json:"return"`
}

// ReturnTransition describes a status change applied with a compare-and-set on the prior status.
type ReturnTransition struct {
	ID              uuid.UUID
	From            ReturnStatus
	To              ReturnStatus
	RefundAmount    int64
	RefundReference *string
	AdminNotes      *string
	At              time.Time
}
