package service

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"storefront/internal/cart"
	"storefront/internal/coupon"
	"storefront/internal/inventory"
	"storefront/internal/model"
	"storefront/internal/payment"
	"storefront/internal/repository"

	"github.com/rs/zerolog"
)

// checkoutService implements CheckoutService.
type checkoutService struct {
	productRepo repository.ProductRepository
	validator   coupon.Validator
	gateway     payment.Gateway
	settings    Settings
	logger      zerolog.Logger
}

// NewCheckoutService creates a new checkout service.
func NewCheckoutService(
	productRepo repository.ProductRepository,
	validator coupon.Validator,
	gateway payment.Gateway,
	settings Settings,
	logger zerolog.Logger,
) CheckoutService {
	return &checkoutService{
		productRepo: productRepo,
		validator:   validator,
		gateway:     gateway,
		settings:    settings,
		logger:      logger.With().Str("service", "checkout").Logger(),
	}
}

// Checkout validates the cart against the catalogue and opens a gateway session.
// Prices and totals are recomputed from the catalogue; client totals are only compared.
func (s *checkoutService) Checkout(ctx context.Context, req *model.CheckoutRequest) (*model.CheckoutResponse, error) {
	if err := validateCheckoutRequest(req); err != nil {
		return nil, err
	}

	customer := normaliseCustomer(req.Customer)

	products, err := s.loadProducts(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	priced, err := s.priceItems(req.Items, products)
	if err != nil {
		return nil, err
	}
	items, subtotal := priced.Items(), priced.Subtotal()

	var discount int64
	code := coupon.NormaliseCode(req.CouponCode)
	if code != "" {
		res, err := s.validator.Validate(ctx, code, subtotal, customer.Email)
		if err != nil {
			s.logger.Error().Err(err).Str("coupon_code", code).Msg("failed to validate coupon")
			return nil, fmt.Errorf("failed to validate coupon: %w", err)
		}
		if !res.Valid {
			s.logger.Debug().Str("coupon_code", code).Str("reason", res.Error).Msg("coupon rejected at checkout")
			return nil, model.ValidationError(model.ErrCodeInvalidCoupon, "%s", res.Error)
		}
		discount = res.DiscountAmount
	}

	quote, err := priced.Quote(s.settings.Rates, req.ShippingMethod, discount)
	if err != nil {
		return nil, err
	}

	if req.Total != 0 && req.Total != quote.Total {
		s.logger.Warn().
			Int64("client_total", req.Total).
			Int64("server_total", quote.Total).
			Int64("client_discount", req.Discount).
			Int64("server_discount", quote.Discount).
			Msg("client totals differ from catalogue pricing")
	}

	intent := model.OrderIntent{
		Customer:       customer,
		ShippingMethod: req.ShippingMethod,
		CouponCode:     code,
		Items:          items,
		Subtotal:       quote.Subtotal,
		Shipping:       quote.Shipping,
		Discount:       quote.Discount,
		Total:          quote.Total,
	}
	if quote.Discount == 0 {
		intent.CouponCode = ""
	}

	metadata, err := payment.EncodeIntent(intent)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to encode order intent")
		return nil, fmt.Errorf("failed to encode order intent: %w", err)
	}

	sreq := payment.SessionRequest{
		Lines:         sessionLines(items, products),
		Shipping:      quote.Shipping,
		ShippingLabel: shippingLabel(req.ShippingMethod),
		Discount:      quote.Discount,
		CouponCode:    intent.CouponCode,
		CustomerEmail: intent.Customer.Email,
		Currency:      s.settings.Currency,
		SuccessURL:    s.settings.BaseURL + "/checkout/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:     s.settings.BaseURL + "/carrito",
		Metadata:      metadata,
	}

	sess, err := s.gateway.CreateCheckoutSession(ctx, sreq)
	if err != nil {
		s.logger.Error().Err(err).Int64("total", quote.Total).Msg("failed to create checkout session")
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}

	s.logger.Info().
		Str("session_id", sess.ID).
		Int("item_count", len(items)).
		Int64("total", quote.Total).
		Msg("checkout session created")

	return &model.CheckoutResponse{
		Success:   true,
		URL:       sess.URL,
		SessionID: sess.ID,
	}, nil
}

func (s *checkoutService) loadProducts(ctx context.Context, lines []model.LineItem) (map[int64]*model.Product, error) {
	ids := make([]int64, 0, len(lines))
	seen := make(map[int64]bool, len(lines))
	for _, l := range lines {
		if !seen[l.ProductID] {
			seen[l.ProductID] = true
			ids = append(ids, l.ProductID)
		}
	}

	list, err := s.productRepo.GetByIDs(ctx, ids)
	if err != nil {
		s.logger.Error().Err(err).Int("product_count", len(ids)).Msg("failed to load products")
		return nil, fmt.Errorf("failed to load products: %w", err)
	}

	products := make(map[int64]*model.Product, len(list))
	for i := range list {
		products[list[i].ID] = &list[i]
	}
	for _, id := range ids {
		if products[id] == nil {
			s.logger.Warn().Int64("product_id", id).Msg("checkout references unknown product")
			return nil, model.ErrProductNotFound
		}
	}
	return products, nil
}

// priceItems rebuilds the cart server side from catalogue prices, merging lines
// by (product, size) and pre-checking stock against the merged quantities.
func (s *checkoutService) priceItems(lines []model.LineItem, products map[int64]*model.Product) (*cart.Cart, error) {
	merged := make([]model.LineItem, 0, len(lines))
	index := make(map[inventory.Key]int, len(lines))
	for _, l := range lines {
		p := products[l.ProductID]
		size := strings.TrimSpace(l.Size)
		if !p.HasSizes() {
			size = ""
		}
		key := inventory.Key{ProductID: l.ProductID, Size: size}
		if i, ok := index[key]; ok {
			merged[i].Quantity += l.Quantity
			continue
		}
		index[key] = len(merged)
		merged = append(merged, model.LineItem{
			ProductID: l.ProductID,
			Size:      size,
			Quantity:  l.Quantity,
			UnitPrice: p.Price,
		})
	}

	priced, err := cart.New(cart.NewMemoryStore())
	if err != nil {
		return nil, err
	}
	for _, item := range merged {
		p := products[item.ProductID]
		available, ok := p.AvailableStock(item.Size)
		if !ok {
			return nil, model.ValidationError(model.ErrCodeSizeNotFound,
				"La talla %s no está disponible para %q", item.Size, p.Name)
		}
		if available < item.Quantity {
			s.logger.Info().
				Int64("product_id", item.ProductID).
				Str("size", item.Size).
				Int("available", available).
				Int("requested", item.Quantity).
				Msg("checkout rejected for insufficient stock")
			return nil, model.InsufficientStockError(p.Name, item.Size, available, item.Quantity)
		}
		err := priced.Add(cart.Line{
			ProductID: item.ProductID,
			Size:      item.Size,
			Name:      p.Name,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
			MaxStock:  available,
		})
		if err != nil {
			return nil, err
		}
	}
	return priced, nil
}

func validateCheckoutRequest(req *model.CheckoutRequest) error {
	if req == nil || len(req.Items) == 0 {
		return model.ErrEmptyCart
	}
	if !req.ShippingMethod.Valid() {
		return model.ErrInvalidShipping
	}
	for _, item := range req.Items {
		if item.ProductID <= 0 {
			return model.ErrProductNotFound
		}
		if item.Quantity <= 0 {
			return model.ErrInvalidQuantity
		}
	}
	return validateCustomer(req.Customer, req.ShippingMethod)
}

func validateCustomer(c model.Customer, method model.ShippingMethod) error {
	required := []struct {
		field string
		value string
	}{
		{"name", c.Name},
		{"email", c.Email},
	}
	if method != model.ShippingPickup {
		required = append(required,
			struct{ field, value string }{"address", c.Address},
			struct{ field, value string }{"city", c.City},
			struct{ field, value string }{"postalCode", c.PostalCode},
			struct{ field, value string }{"country", c.Country},
		)
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return model.ValidationError(model.ErrCodeMissingField, "El campo %s es obligatorio", r.field)
		}
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(c.Email)); err != nil {
		return model.ValidationError(model.ErrCodeMissingField, "El email %q no es válido", c.Email)
	}
	return nil
}

func normaliseCustomer(c model.Customer) model.Customer {
	c.Name = strings.TrimSpace(c.Name)
	c.Email = strings.ToLower(strings.TrimSpace(c.Email))
	c.Phone = strings.TrimSpace(c.Phone)
	c.Address = strings.TrimSpace(c.Address)
	c.City = strings.TrimSpace(c.City)
	c.PostalCode = strings.TrimSpace(c.PostalCode)
	c.Country = strings.ToUpper(strings.TrimSpace(c.Country))
	return c
}

func sessionLines(items []model.LineItem, products map[int64]*model.Product) []payment.SessionLine {
	lines := make([]payment.SessionLine, len(items))
	for i, item := range items {
		name := products[item.ProductID].Name
		if item.Size != "" {
			name = fmt.Sprintf("%s (talla %s)", name, item.Size)
		}
		lines[i] = payment.SessionLine{
			Name:      name,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
		}
	}
	return lines
}

func shippingLabel(method model.ShippingMethod) string {
	switch method {
	case model.ShippingExpress:
		return "Envío exprés"
	case model.ShippingPickup:
		return "Recogida en tienda"
	default:
		return "Envío estándar"
	}
}
