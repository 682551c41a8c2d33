package handler

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"storefront/internal/coupon"
	"storefront/internal/model"
	"storefront/internal/payment"
	"storefront/internal/service"

	"github.com/rs/zerolog"
)

// maxWebhookBytes bounds webhook payloads; signatures cover the raw bytes.
const maxWebhookBytes = 64 << 10

// CheckoutHandler handles checkout, confirmation and coupon preview requests.
type CheckoutHandler struct {
	checkout     service.CheckoutService
	confirmation service.ConfirmationService
	coupons      coupon.Validator
	logger       zerolog.Logger
}

// NewCheckoutHandler creates a new checkout handler.
func NewCheckoutHandler(
	checkout service.CheckoutService,
	confirmation service.ConfirmationService,
	coupons coupon.Validator,
	logger zerolog.Logger,
) *CheckoutHandler {
	return &CheckoutHandler{
		checkout:     checkout,
		confirmation: confirmation,
		coupons:      coupons,
		logger:       logger.With().Str("handler", "checkout").Logger(),
	}
}

// Checkout handles POST /api/checkout requests.
func (h *CheckoutHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req model.CheckoutRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	resp, err := h.checkout.Checkout(r.Context(), &req)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Confirm handles POST /api/checkout/confirm requests from the success page.
func (h *CheckoutHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req model.ConfirmRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	resp, err := h.confirmation.Confirm(r.Context(), req.SessionID, service.SourceRedirect)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}

	status := http.StatusOK
	if resp.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, resp)
}

// ValidateCoupon handles POST /api/coupons/validate requests. It never records usage.
func (h *CheckoutHandler) ValidateCoupon(w http.ResponseWriter, r *http.Request) {
	var req model.CouponValidateRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}
	code := strings.TrimSpace(req.Code)
	if code == "" {
		writeError(w, http.StatusBadRequest, model.ErrCodeMissingField, "El campo code es obligatorio", h.logger)
		return
	}

	res, err := h.coupons.Validate(r.Context(), code, req.Total, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// WebhookHandler receives payment gateway events.
type WebhookHandler struct {
	service service.WebhookService
	logger  zerolog.Logger
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(service service.WebhookService, logger zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{
		service: service,
		logger:  logger.With().Str("handler", "webhook").Logger(),
	}
}

// Stripe handles POST /api/webhooks/stripe requests.
// A bad signature is a 400; any processing failure is a 500 so the gateway retries.
func (h *WebhookHandler) Stripe(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, model.ErrCodeInvalidJSON, "Cuerpo del webhook no válido", h.logger)
		return
	}

	err = h.service.HandleEvent(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]bool{"received": true})
	case errors.Is(err, payment.ErrInvalidSignature):
		writeError(w, http.StatusBadRequest, model.ErrCodeUnauthorised, "Firma del webhook no válida", h.logger)
	default:
		h.logger.Error().Err(err).Msg("webhook processing failed")
		writeJSON(w, http.StatusInternalServerError, model.ErrorResponse{
			Success: false,
			Error:   model.ErrCodeInternalError,
			Message: "Error procesando el webhook",
		})
	}
}
