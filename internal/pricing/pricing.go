package pricing

import (
	"strings"

	"storefront/internal/model"

	"github.com/shopspring/decimal"
)

// ShippingRates holds the flat fees per shipping method, in minor units.
// Standard shipping is free once the discounted subtotal reaches FreeThreshold; a zero threshold disables it.
type ShippingRates struct {
	Standard      int64
	Express       int64
	FreeThreshold int64
}

// DefaultShippingRates returns the storefront's default rates.
func DefaultShippingRates() ShippingRates {
	return ShippingRates{
		Standard:      495,
		Express:       995,
		FreeThreshold: 5000,
	}
}

// Cost returns the shipping fee for method given the merchandise amount after discount.
func (r ShippingRates) Cost(method model.ShippingMethod, merchandise int64) (int64, error) {
	switch method {
	case model.ShippingPickup:
		return 0, nil
	case model.ShippingExpress:
		return r.Express, nil
	case model.ShippingStandard:
		if r.FreeThreshold > 0 && merchandise >= r.FreeThreshold {
			return 0, nil
		}
		return r.Standard, nil
	default:
		return 0, model.ErrInvalidShipping
	}
}

// Quote is the full price breakdown of a cart.
type Quote struct {
	Subtotal int64 `json:"subtotal"`
	Shipping int64 `json:"shipping"`
	Discount int64 `json:"discount"`
	Total    int64 `json:"total"`
}

// NewQuote prices a subtotal with a discount and shipping method.
// The discount is clamped to [0, subtotal].
func (r ShippingRates) NewQuote(subtotal int64, method model.ShippingMethod, discount int64) (Quote, error) {
	discount = ClampDiscount(discount, subtotal)
	shipping, err := r.Cost(method, subtotal-discount)
	if err != nil {
		return Quote{}, err
	}
	return Quote{
		Subtotal: subtotal,
		Shipping: shipping,
		Discount: discount,
		Total:    subtotal - discount + shipping,
	}, nil
}

// ClampDiscount floors discount at zero and caps it at total.
func ClampDiscount(discount, total int64) int64 {
	if discount < 0 {
		return 0
	}
	if discount > total {
		return total
	}
	return discount
}

// PercentageOf returns pct percent of amount, rounded half away from zero.
func PercentageOf(amount, pct int64) int64 {
	return decimal.NewFromInt(amount).
		Mul(decimal.NewFromInt(pct)).
		Div(decimal.NewFromInt(100)).
		Round(0).
		IntPart()
}

// ExtractTax splits a tax-inclusive amount into base and tax.
// Only the base is rounded so base + tax always equals net.
func ExtractTax(net int64, rate decimal.Decimal) (base, tax int64) {
	if net == 0 {
		return 0, 0
	}
	divisor := decimal.NewFromInt(1).Add(rate)
	base = decimal.NewFromInt(net).Div(divisor).Round(0).IntPart()
	return base, net - base
}

// FormatAmount renders minor units for customer-facing text, e.g. "12,50 €".
func FormatAmount(amount int64, currency string) string {
	s := decimal.New(amount, -2).StringFixed(2)
	s = strings.Replace(s, ".", ",", 1)
	switch strings.ToLower(currency) {
	case "", "eur":
		return s + " €"
	default:
		return s + " " + strings.ToUpper(currency)
	}
}
