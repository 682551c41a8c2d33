package handler

import (
	"net/http"
	"strconv"
	"strings"

	"storefront/internal/model"
	"storefront/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// ProductHandler handles product-related HTTP requests.
type ProductHandler struct {
	service service.ProductService
	logger  zerolog.Logger
}

// NewProductHandler creates a new product handler.
func NewProductHandler(service service.ProductService, logger zerolog.Logger) *ProductHandler {
	return &ProductHandler{
		service: service,
		logger:  logger.With().Str("handler", "product").Logger(),
	}
}

// productList is the catalogue page payload.
type productList struct {
	Success  bool            `json:"success"`
	Products []model.Product `json:"products"`
	Limit    int             `json:"limit"`
	Offset   int             `json:"offset"`
	Size     string          `json:"size,omitempty"`
	InStock  bool            `json:"inStock,omitempty"`
}

type productResponse struct {
	Success bool          `json:"success"`
	Product model.Product `json:"product"`
}

// GetAll handles GET /api/products?limit=&offset=&size=&inStock= requests.
func (h *ProductHandler) GetAll(w http.ResponseWriter, r *http.Request) {
	limit, ok := h.intQuery(w, r, "limit", 0)
	if !ok {
		return
	}
	offset, ok := h.intQuery(w, r, "offset", 0)
	if !ok {
		return
	}

	q := model.ProductQuery{
		Limit:  limit,
		Offset: offset,
		Size:   strings.TrimSpace(r.URL.Query().Get("size")),
	}
	if raw := r.URL.Query().Get("inStock"); raw != "" {
		inStock, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, model.ErrCodeMissingField, "Parámetro inStock no válido", h.logger)
			return
		}
		q.InStock = inStock
	}

	products, err := h.service.GetAll(r.Context(), q)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	if products == nil {
		products = []model.Product{}
	}

	writeJSON(w, http.StatusOK, productList{
		Success:  true,
		Products: products,
		Limit:    limit,
		Offset:   offset,
		Size:     q.Size,
		InStock:  q.InStock,
	})
}

// GetByID handles GET /api/products/{id} requests.
func (h *ProductHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, model.ErrCodeMissingField, "Identificador de producto no válido", h.logger)
		return
	}

	product, err := h.service.GetByID(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, productResponse{Success: true, Product: *product})
}

func (h *ProductHandler) intQuery(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, model.ErrCodeMissingField, "Parámetro "+name+" no válido", h.logger)
		return 0, false
	}
	return v, true
}
