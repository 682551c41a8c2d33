package model

import (
	"time"

	"github.com/google/uuid"
)

// CouponType selects how the coupon value is applied.
type CouponType string

const (
	CouponPercentage CouponType = "percentage"
	CouponFixed      CouponType = "fixed"
)

// Coupon is a discount code. MaxUses and MaxUsesPerCustomer of zero mean unlimited.
// Value is a percentage (0-100) for percentage coupons and minor units for fixed ones.
type Coupon struct {
	Code               string     `json:"code" db:"code"`
	Type               CouponType `json:"type" db:"type"`
	Value              int64      `json:"value" db:"value"`
	MinOrder           int64      `json:"minOrder" db:"min_order"`
	MaxUses            int        `json:"maxUses" db:"max_uses"`
	MaxUsesPerCustomer int        `json:"maxUsesPerCustomer" db:"max_uses_per_customer"`
	TimesUsed          int        `json:"timesUsed" db:"times_used"`
	ExpiresAt          *time.Time `json:"expiresAt,omitempty" db:"expires_at"`
	Active             bool       `json:"active" db:"active"`
}

// CouponRedemption records one use of a coupon by a customer.
type CouponRedemption struct {
	Code      string    `db:"code"`
	Email     string    `db:"email"`
	OrderID   uuid.UUID `db:"order_id"`
	CreatedAt time.Time `db:"created_at"`
}

// CouponResult is the outcome of a coupon validation.
type CouponResult struct {
	Valid          bool   `json:"valid"`
	DiscountAmount int64  `json:"discountAmount"`
	Error          string `json:"error,omitempty"`
}

// CouponValidateRequest is the payload for a coupon preview.
type CouponValidateRequest struct {
	Code  string `json:"code"`
	Total int64  `json:"total"`
	Email string `json:"email,omitempty"`
}
