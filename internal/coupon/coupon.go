package coupon

import (
	"context"

	"storefront/internal/model"
)

// Validator defines the interface for coupon validation.
type Validator interface {
	// Validate checks code against the order total and the customer's history.
	// A rejected code is reported through the result; the error is reserved for lookup failures.
	// Validation has no side effect on usage counters.
	Validate(ctx context.Context, code string, total int64, email string) (model.CouponResult, error)
}

// Repository is the coupon data access the validator and importer need.
type Repository interface {
	// GetByCode returns nil without error when the code does not exist.
	GetByCode(ctx context.Context, code string) (*model.Coupon, error)

	// CountRedemptions counts prior uses of code by email.
	CountRedemptions(ctx context.Context, code, email string) (int, error)

	// Upsert inserts or updates coupon definitions, keeping usage counters.
	Upsert(ctx context.Context, coupons []model.Coupon) (int, error)
}

// Loader defines the interface for loading coupon catalogue files.
type Loader interface {
	// Load reads a gzipped JSON-lines catalogue and returns its coupons.
	Load(ctx context.Context, filePath string) (*Catalogue, error)
}
