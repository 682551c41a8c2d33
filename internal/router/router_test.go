package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"storefront/internal/handler"
	"storefront/internal/metrics"
	"storefront/internal/model"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type stubProducts struct{}

func (stubProducts) GetAll(context.Context, model.ProductQuery) ([]model.Product, error) {
	return []model.Product{{ID: 1, Name: "Camiseta", Price: 2000}}, nil
}

func (stubProducts) GetByID(_ context.Context, id int64) (*model.Product, error) {
	return &model.Product{ID: id, Name: "Camiseta", Price: 2000}, nil
}

type stubCheckout struct{}

func (stubCheckout) Checkout(context.Context, *model.CheckoutRequest) (*model.CheckoutResponse, error) {
	return &model.CheckoutResponse{Success: true, URL: "https://checkout.test/cs_1", SessionID: "cs_1"}, nil
}

func (stubCheckout) Confirm(_ context.Context, sessionID, _ string) (*model.OrderResponse, error) {
	return &model.OrderResponse{Success: true}, nil
}

func (stubCheckout) Validate(context.Context, string, int64, string) (model.CouponResult, error) {
	return model.CouponResult{Valid: true, DiscountAmount: 100}, nil
}

func (stubCheckout) HandleEvent(context.Context, []byte, string) error { return nil }

type stubOrders struct{}

func (stubOrders) GetByID(_ context.Context, id uuid.UUID) (*model.OrderResponse, error) {
	return &model.OrderResponse{Success: true, Order: model.Order{ID: id}}, nil
}

func (stubOrders) Cancel(_ context.Context, id uuid.UUID, _ string) (*model.OrderResponse, error) {
	return &model.OrderResponse{Success: true, Order: model.Order{ID: id, Status: model.OrderStatusCancelled}}, nil
}

func (stubOrders) AdvanceStatus(_ context.Context, id uuid.UUID, status model.OrderStatus) (*model.OrderResponse, error) {
	return &model.OrderResponse{Success: true, Order: model.Order{ID: id, Status: status}}, nil
}

type stubReturns struct{}

func (stubReturns) Create(_ context.Context, req *model.ReturnRequest) (*model.Return, error) {
	return &model.Return{ID: uuid.New(), OrderID: req.OrderID}, nil
}

func (stubReturns) GetByID(_ context.Context, id uuid.UUID) (*model.Return, error) {
	return &model.Return{ID: id}, nil
}

func (stubReturns) AdvanceStatus(_ context.Context, id uuid.UUID, req *model.ReturnStatusRequest) (*model.Return, error) {
	return &model.Return{ID: id, Status: req.Status}, nil
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	logger := zerolog.Nop()
	registry := prometheus.NewRegistry()

	return New(Handlers{
		Product:  handler.NewProductHandler(stubProducts{}, logger),
		Checkout: handler.NewCheckoutHandler(stubCheckout{}, stubCheckout{}, stubCheckout{}, logger),
		Webhook:  handler.NewWebhookHandler(stubCheckout{}, logger),
		Order:    handler.NewOrderHandler(stubOrders{}, logger),
		Return:   handler.NewReturnHandler(stubReturns{}, logger),
	}, Options{
		APIKey:         "admin-key",
		AllowedOrigins: []string{"*"},
		Metrics:        metrics.New(registry),
		Gatherer:       registry,
	}, logger)
}

func TestRouter_Routes(t *testing.T) {
	id := uuid.New().String()

	tests := []struct {
		name           string
		method         string
		path           string
		body           string
		apiKey         string
		expectedStatus int
	}{
		{name: "health", method: http.MethodGet, path: "/health", expectedStatus: http.StatusOK},
		{name: "metrics", method: http.MethodGet, path: "/metrics", expectedStatus: http.StatusOK},
		{name: "product list", method: http.MethodGet, path: "/api/products", expectedStatus: http.StatusOK},
		{name: "product detail", method: http.MethodGet, path: "/api/products/1", expectedStatus: http.StatusOK},
		{name: "coupon preview", method: http.MethodPost, path: "/api/coupons/validate", body: `{"code":"X","total":1000}`, expectedStatus: http.StatusOK},
		{name: "checkout", method: http.MethodPost, path: "/api/checkout", body: `{}`, expectedStatus: http.StatusOK},
		{name: "confirm", method: http.MethodPost, path: "/api/checkout/confirm", body: `{"sessionId":"cs_1"}`, expectedStatus: http.StatusOK},
		{name: "webhook", method: http.MethodPost, path: "/api/webhooks/stripe", body: `{}`, expectedStatus: http.StatusOK},
		{name: "order", method: http.MethodGet, path: "/api/orders/" + id, expectedStatus: http.StatusOK},
		{name: "cancel", method: http.MethodPost, path: "/api/orders/" + id + "/cancel", body: `{"email":"a@b.c"}`, expectedStatus: http.StatusOK},
		{name: "return", method: http.MethodPost, path: "/api/returns", body: `{"orderId":"` + id + `"}`, expectedStatus: http.StatusCreated},
		{name: "admin without key", method: http.MethodGet, path: "/api/admin/returns/" + id, expectedStatus: http.StatusUnauthorized},
		{name: "admin return", method: http.MethodGet, path: "/api/admin/returns/" + id, apiKey: "admin-key", expectedStatus: http.StatusOK},
		{name: "admin order status", method: http.MethodPatch, path: "/api/admin/orders/" + id + "/status", body: `{"status":"shipped"}`, apiKey: "admin-key", expectedStatus: http.StatusOK},
		{name: "admin return status", method: http.MethodPatch, path: "/api/admin/returns/" + id + "/status", body: `{"status":"received"}`, apiKey: "admin-key", expectedStatus: http.StatusOK},
		{name: "public routes need no key", method: http.MethodGet, path: "/api/products", apiKey: "wrong", expectedStatus: http.StatusOK},
		{name: "wrong method", method: http.MethodDelete, path: "/api/products", expectedStatus: http.StatusMethodNotAllowed},
		{name: "unknown path", method: http.MethodGet, path: "/api/nowhere", expectedStatus: http.StatusNotFound},
	}

	router := newTestRouter(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			if tt.apiKey != "" {
				req.Header.Set("X-API-Key", tt.apiKey)
			}
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}

func TestRouter_MetricsExposesRequestHistogram(t *testing.T) {
	router := newTestRouter(t)
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/products", nil))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `storefront_http_request_duration_seconds_count{method="GET",route="/api/products",status="200"} 1`)
}
