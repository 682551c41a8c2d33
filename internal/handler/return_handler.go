package handler

import (
	"net/http"

	"storefront/internal/model"
	"storefront/internal/service"

	"github.com/rs/zerolog"
)

// ReturnHandler handles return requests from customers and the back office.
type ReturnHandler struct {
	service service.ReturnService
	logger  zerolog.Logger
}

// NewReturnHandler creates a new return handler.
func NewReturnHandler(service service.ReturnService, logger zerolog.Logger) *ReturnHandler {
	return &ReturnHandler{
		service: service,
		logger:  logger.With().Str("handler", "return").Logger(),
	}
}

// Create handles POST /api/returns requests.
func (h *ReturnHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.ReturnRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	ret, err := h.service.Create(r.Context(), &req)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusCreated, model.ReturnResponse{Success: true, Return: *ret})
}

// GetByID handles GET /api/admin/returns/{id} requests.
func (h *ReturnHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id", h.logger)
	if !ok {
		return
	}

	ret, err := h.service.GetByID(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, model.ReturnResponse{Success: true, Return: *ret})
}

// AdvanceStatus handles PATCH /api/admin/returns/{id}/status requests.
func (h *ReturnHandler) AdvanceStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id", h.logger)
	if !ok {
		return
	}
	var req model.ReturnStatusRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	ret, err := h.service.AdvanceStatus(r.Context(), id, &req)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, model.ReturnResponse{Success: true, Return: *ret})
}
