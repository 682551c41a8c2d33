package model

import (
	"time"

	"github.com/google/uuid"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending        OrderStatus = "pending"
	OrderStatusPaid           OrderStatus = "paid"
	OrderStatusShipped        OrderStatus = "shipped"
	OrderStatusDelivered      OrderStatus = "delivered"
	OrderStatusCancelled      OrderStatus = "cancelled"
	OrderStatusReadyForPickup OrderStatus = "ready_for_pickup"
)

// orderTransitions is the single source of truth for order status changes.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:        {OrderStatusPaid, OrderStatusCancelled},
	OrderStatusPaid:           {OrderStatusShipped, OrderStatusReadyForPickup, OrderStatusCancelled},
	OrderStatusShipped:        {OrderStatusDelivered},
	OrderStatusReadyForPickup: {OrderStatusDelivered},
}

// Valid reports whether s is a known order status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusPaid, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled, OrderStatusReadyForPickup:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether the order table allows s -> next.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ShippingMethod selects how an order reaches the customer.
type ShippingMethod string

const (
	ShippingStandard ShippingMethod = "standard"
	ShippingExpress  ShippingMethod = "express"
	ShippingPickup   ShippingMethod = "pickup"
)

// Valid reports whether m is a supported shipping method.
func (m ShippingMethod) Valid() bool {
	switch m {
	case ShippingStandard, ShippingExpress, ShippingPickup:
		return true
	default:
		return false
	}
}

// Customer holds contact and shipping fields captured at checkout.
type Customer struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone,omitempty"`
	Address    string `json:"address,omitempty"`
	City       string `json:"city,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
	Country    string `json:"country,omitempty"`
}

// Order represents a paid customer order.
type Order struct {
	ID                uuid.UUID      `json:"id" db:"id"`
	Number            string         `json:"number" db:"number"`
	Customer          Customer       `json:"customer"`
	ShippingMethod    ShippingMethod `json:"shippingMethod" db:"shipping_method"`
	Status            OrderStatus    `json:"status" db:"status"`
	Subtotal          int64          `json:"subtotal" db:"subtotal"`
	ShippingCost      int64          `json:"shippingCost" db:"shipping_cost"`
	Discount          int64          `json:"discount" db:"discount"`
	Total             int64          `json:"total" db:"total"`
	CouponCode        *string        `json:"couponCode,omitempty" db:"coupon_code"`
	CheckoutSessionID string         `json:"-" db:"checkout_session_id"`
	PaymentReference  string         `json:"-" db:"payment_reference"`
	DeliveredAt       *time.Time     `json:"deliveredAt,omitempty" db:"delivered_at"`
	CreatedAt         time.Time      `json:"createdAt" db:"created_at"`
	UpdatedAt         time.Time      `json:"updatedAt" db:"updated_at"`
}

// OrderItem is an immutable snapshot of a purchased line.
type OrderItem struct {
	ID          uuid.UUID `json:"id" db:"id"`
	OrderID     uuid.UUID `json:"-" db:"order_id"`
	ProductID   int64     `json:"productId" db:"product_id"`
	ProductName string    `json:"productName" db:"product_name"`
	UnitPrice   int64     `json:"unitPrice" db:"unit_price"`
	Quantity    int       `json:"quantity" db:"quantity"`
	Size        string    `json:"size,omitempty" db:"size"`
}

// LineTotal returns unit price times quantity.
func (i OrderItem) LineTotal() int64 {
	return i.UnitPrice * int64(i.Quantity)
}

// LineItem is a (product, size, quantity) tuple with the unit price captured at checkout.
type LineItem struct {
	ProductID int64  `json:"productId"`
	Size      string `json:"size,omitempty"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unitPrice"`
}

// CheckoutRequest represents the payload for starting a checkout.
type CheckoutRequest struct {
	Customer       Customer       `json:"customer"`
	ShippingMethod ShippingMethod `json:"shippingMethod"`
	CouponCode     string         `json:"couponCode,omitempty"`
	Items          []LineItem     `json:"items"`
	Subtotal       int64          `json:"subtotal"`
	Shipping       int64          `json:"shipping"`
	Discount       int64          `json:"discount"`
	Total          int64          `json:"total"`
}

// CheckoutResponse carries the gateway redirect.
type CheckoutResponse struct {
	Success   bool   `json:"success"`
	URL       string `json:"url"`
	SessionID string `json:"sessionId"`
}

// OrderIntent is the purchase intent carried by the gateway session until confirmation.
type OrderIntent struct {
	Customer       Customer
	ShippingMethod ShippingMethod
	CouponCode     string
	Items          []LineItem
	Subtotal       int64
	Shipping       int64
	Discount       int64
	Total          int64
}

// ConfirmRequest references the gateway session to materialise.
type ConfirmRequest struct {
	SessionID string `json:"sessionId"`
}

// OrderResponse represents the response payload for an order.
type OrderResponse struct {
	Success bool        `json:"success"`
	Order   Order       `json:"order"`
	Items   []OrderItem `json:"items"`
	Invoice *Invoice    `json:"invoice,omitempty"`
	Created bool        `json:"created"`
}

// CancelRequest identifies the customer asking for a cancellation.
type CancelRequest struct {
	Email string `json:"email"`
}

// OrderStatusRequest is the admin payload for advancing an order.
type OrderStatusRequest struct {
	Status OrderStatus `json:"status"`
}
