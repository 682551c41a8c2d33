package repository

import (
	"context"
	"fmt"
	"strings"

	"storefront/internal/coupon"
	"storefront/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// couponRepository implements the CouponRepository interface using PostgreSQL.
type couponRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewCouponRepository creates a new PostgreSQL-backed coupon repository.
func NewCouponRepository(pool *pgxpool.Pool, logger zerolog.Logger) CouponRepository {
	return &couponRepository{
		pool:   pool,
		logger: logger.With().Str("repository", "coupon").Logger(),
	}
}

// GetByCode returns nil without error when the code does not exist.
func (r *couponRepository) GetByCode(ctx context.Context, code string) (*model.Coupon, error) {
	code = coupon.NormaliseCode(code)
	var cp model.Coupon
	err := r.pool.QueryRow(ctx, `
		SELECT code, type, value, min_order, max_uses, max_uses_per_customer, times_used, expires_at, active
		FROM coupons
		WHERE code = $1
	`, code).Scan(&cp.Code, &cp.Type, &cp.Value, &cp.MinOrder, &cp.MaxUses, &cp.MaxUsesPerCustomer, &cp.TimesUsed, &cp.ExpiresAt, &cp.Active)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		r.logger.Error().Err(err).Str("coupon_code", code).Msg("failed to query coupon")
		return nil, fmt.Errorf("failed to query coupon: %w", err)
	}
	return &cp, nil
}

// CountRedemptions counts prior uses of code by email. Code and email are matched case-insensitively.
func (r *couponRepository) CountRedemptions(ctx context.Context, code, email string) (int, error) {
	code = coupon.NormaliseCode(code)
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM coupon_redemptions
		WHERE code = $1 AND LOWER(email) = LOWER($2)
	`, code, strings.TrimSpace(email)).Scan(&n)
	if err != nil {
		r.logger.Error().Err(err).Str("coupon_code", code).Msg("failed to count coupon redemptions")
		return 0, fmt.Errorf("failed to count coupon redemptions: %w", err)
	}
	return n, nil
}

// Upsert inserts or updates coupon definitions. Usage counters are not touched.
func (r *couponRepository) Upsert(ctx context.Context, coupons []model.Coupon) (int, error) {
	if len(coupons) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO coupons (code, type, value, min_order, max_uses, max_uses_per_customer, expires_at, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (code) DO UPDATE SET
			type = EXCLUDED.type,
			value = EXCLUDED.value,
			min_order = EXCLUDED.min_order,
			max_uses = EXCLUDED.max_uses,
			max_uses_per_customer = EXCLUDED.max_uses_per_customer,
			expires_at = EXCLUDED.expires_at,
			active = EXCLUDED.active
	`

	batch := &pgx.Batch{}
	for _, cp := range coupons {
		batch.Queue(query, coupon.NormaliseCode(cp.Code), cp.Type, cp.Value, cp.MinOrder, cp.MaxUses, cp.MaxUsesPerCustomer, cp.ExpiresAt, cp.Active)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := range coupons {
		if _, err := results.Exec(); err != nil {
			r.logger.Error().Err(err).Str("coupon_code", coupons[i].Code).Msg("failed to upsert coupon")
			return i, fmt.Errorf("failed to upsert coupon %s: %w", coupons[i].Code, err)
		}
	}

	r.logger.Info().Int("count", len(coupons)).Msg("coupons upserted")
	return len(coupons), nil
}

// Redeem increments the usage counter under the global limit and records the redemption.
func (r *couponRepository) Redeem(ctx context.Context, tx pgx.Tx, code, email string, orderID uuid.UUID) (bool, error) {
	code = coupon.NormaliseCode(code)
	var used int
	err := tx.QueryRow(ctx, `
		UPDATE coupons SET times_used = times_used + 1
		WHERE code = $1 AND (max_uses = 0 OR times_used < max_uses)
		RETURNING times_used
	`, code).Scan(&used)
	if isNoRows(err) {
		r.logger.Warn().Str("coupon_code", code).Str("order_id", orderID.String()).Msg("coupon limit reached at redemption")
		return false, nil
	}
	if err != nil {
		r.logger.Error().Err(err).Str("coupon_code", code).Msg("failed to increment coupon usage")
		return false, fmt.Errorf("failed to increment coupon usage: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO coupon_redemptions (code, email, order_id)
		VALUES ($1, $2, $3)
	`, code, strings.TrimSpace(email), orderID); err != nil {
		r.logger.Error().Err(err).Str("coupon_code", code).Msg("failed to record coupon redemption")
		return false, fmt.Errorf("failed to record coupon redemption: %w", err)
	}

	r.logger.Debug().
		Str("coupon_code", code).
		Int("times_used", used).
		Msg("coupon redeemed")
	return true, nil
}
