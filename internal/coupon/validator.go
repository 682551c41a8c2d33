package coupon

import (
	"context"
	"fmt"
	"time"

	"storefront/internal/model"
	"storefront/internal/pricing"

	"github.com/rs/zerolog"
)

// Rejection messages shown to the customer.
const (
	msgNotFound        = "Cupón no válido"
	msgInactive        = "Este cupón ya no está activo"
	msgExpired         = "Este cupón ha expirado"
	msgExhausted       = "Este cupón ha alcanzado su límite de usos"
	msgCustomerLimit   = "Ya has utilizado este cupón el máximo de veces permitido"
	msgMinOrderPattern = "El pedido mínimo para este cupón es de %s"
)

// validator implements Validator by applying coupon rules in a fixed order.
type validator struct {
	repo     Repository
	currency string
	now      func() time.Time
	logger   zerolog.Logger
}

// NewValidator creates a new rule-based coupon validator.
func NewValidator(repo Repository, currency string, logger zerolog.Logger) Validator {
	return &validator{
		repo:     repo,
		currency: currency,
		now:      time.Now,
		logger:   logger.With().Str("component", "coupon-validator").Logger(),
	}
}

// Validate checks, in order: existence, active flag, expiry, global limit,
// per-customer limit and minimum order. The discount never exceeds total.
func (v *validator) Validate(ctx context.Context, code string, total int64, email string) (model.CouponResult, error) {
	code = NormaliseCode(code)
	if code == "" {
		return reject(msgNotFound), nil
	}

	cp, err := v.repo.GetByCode(ctx, code)
	if err != nil {
		v.logger.Error().Err(err).Str("coupon_code", code).Msg("failed to load coupon")
		return model.CouponResult{}, fmt.Errorf("failed to load coupon: %w", err)
	}
	if cp == nil {
		v.logger.Debug().Str("coupon_code", code).Msg("coupon not found")
		return reject(msgNotFound), nil
	}

	if !cp.Active {
		return reject(msgInactive), nil
	}

	if cp.ExpiresAt != nil && !v.now().Before(*cp.ExpiresAt) {
		return reject(msgExpired), nil
	}

	if cp.MaxUses > 0 && cp.TimesUsed >= cp.MaxUses {
		return reject(msgExhausted), nil
	}

	if cp.MaxUsesPerCustomer > 0 && email != "" {
		used, err := v.repo.CountRedemptions(ctx, code, email)
		if err != nil {
			v.logger.Error().Err(err).Str("coupon_code", code).Msg("failed to count redemptions")
			return model.CouponResult{}, fmt.Errorf("failed to count coupon redemptions: %w", err)
		}
		if used >= cp.MaxUsesPerCustomer {
			return reject(msgCustomerLimit), nil
		}
	}

	if total < cp.MinOrder {
		return reject(fmt.Sprintf(msgMinOrderPattern, pricing.FormatAmount(cp.MinOrder, v.currency))), nil
	}

	return model.CouponResult{
		Valid:          true,
		DiscountAmount: Discount(*cp, total),
	}, nil
}

// Discount computes the amount a coupon takes off total, floored to [0, total].
func Discount(cp model.Coupon, total int64) int64 {
	var amount int64
	switch cp.Type {
	case model.CouponPercentage:
		amount = pricing.PercentageOf(total, cp.Value)
	case model.CouponFixed:
		amount = cp.Value
	}
	return pricing.ClampDiscount(amount, total)
}

func reject(msg string) model.CouponResult {
	return model.CouponResult{Valid: false, Error: msg}
}
