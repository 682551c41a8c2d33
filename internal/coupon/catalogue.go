package coupon

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"storefront/internal/model"
)

// Catalogue is a deduplicated set of coupon definitions keyed by normalised code.
// A later definition of the same code replaces the earlier one.
type Catalogue struct {
	coupons map[string]model.Coupon
}

// NewCatalogue creates an empty catalogue with the given capacity hint.
func NewCatalogue(capacity int) *Catalogue {
	return &Catalogue{coupons: make(map[string]model.Coupon, capacity)}
}

// Add validates and stores a coupon.
func (c *Catalogue) Add(cp model.Coupon) error {
	cp.Code = NormaliseCode(cp.Code)
	if err := validateDefinition(cp); err != nil {
		return err
	}
	c.coupons[cp.Code] = cp
	return nil
}

// Get returns the coupon for code.
func (c *Catalogue) Get(code string) (model.Coupon, bool) {
	cp, ok := c.coupons[NormaliseCode(code)]
	return cp, ok
}

// Size returns the number of coupons in the catalogue.
func (c *Catalogue) Size() int {
	return len(c.coupons)
}

// Coupons returns the coupons sorted by code.
func (c *Catalogue) Coupons() []model.Coupon {
	out := make([]model.Coupon, 0, len(c.coupons))
	for _, cp := range c.coupons {
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// NormaliseCode trims and upper-cases a coupon code.
func NormaliseCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// catalogueRecord is one JSON line of a catalogue file.
type catalogueRecord struct {
	Code               string     `json:"code"`
	Type               string     `json:"type"`
	Value              int64      `json:"value"`
	MinOrder           int64      `json:"min_order"`
	MaxUses            int        `json:"max_uses"`
	MaxUsesPerCustomer int        `json:"max_uses_per_customer"`
	ExpiresAt          *time.Time `json:"expires_at"`
	Active             *bool      `json:"active"`
}

func (r catalogueRecord) toCoupon() model.Coupon {
	active := true
	if r.Active != nil {
		active = *r.Active
	}
	return model.Coupon{
		Code:               r.Code,
		Type:               model.CouponType(strings.ToLower(r.Type)),
		Value:              r.Value,
		MinOrder:           r.MinOrder,
		MaxUses:            r.MaxUses,
		MaxUsesPerCustomer: r.MaxUsesPerCustomer,
		ExpiresAt:          r.ExpiresAt,
		Active:             active,
	}
}

func validateDefinition(cp model.Coupon) error {
	if cp.Code == "" {
		return fmt.Errorf("coupon code is required")
	}
	switch cp.Type {
	case model.CouponPercentage:
		if cp.Value <= 0 || cp.Value > 100 {
			return fmt.Errorf("coupon %s: percentage must be in (0, 100]: %d", cp.Code, cp.Value)
		}
	case model.CouponFixed:
		if cp.Value <= 0 {
			return fmt.Errorf("coupon %s: fixed amount must be positive: %d", cp.Code, cp.Value)
		}
	default:
		return fmt.Errorf("coupon %s: unknown type %q", cp.Code, cp.Type)
	}
	if cp.MinOrder < 0 || cp.MaxUses < 0 || cp.MaxUsesPerCustomer < 0 {
		return fmt.Errorf("coupon %s: limits cannot be negative", cp.Code)
	}
	return nil
}
