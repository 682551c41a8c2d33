package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"storefront/internal/coupon"
	"storefront/internal/document"
	"storefront/internal/handler"
	"storefront/internal/label"
	"storefront/internal/metrics"
	"storefront/internal/model"
	"storefront/internal/notify"
	"storefront/internal/pricing"
	"storefront/internal/repository"
	"storefront/internal/router"
	"storefront/internal/service"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAPIKey = "test-api-key"

type testServer struct {
	handler    http.Handler
	gateway    *fakeGateway
	dispatcher *notify.Dispatcher
}

func setupTestServer(t *testing.T, testDB *TestDB) *testServer {
	t.Helper()

	logger := zerolog.Nop()
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	gateway := newFakeGateway()

	settings := service.Settings{
		BaseURL:           "https://tienda.test",
		Currency:          "eur",
		TaxRate:           decimal.RequireFromString("0.21"),
		LowStockThreshold: 2,
		Rates:             pricing.DefaultShippingRates(),
		ReturnAddress:     label.Address{Name: "Tienda", Street: "Calle Almacén 5", City: "Madrid", PostalCode: "28001", Country: "ES"},
	}

	// Initialize repositories
	productRepo := repository.NewProductRepository(testDB.Pool, logger)
	orderRepo := repository.NewOrderRepository(testDB.Pool, logger)
	returnRepo := repository.NewReturnRepository(testDB.Pool, logger)
	couponRepo := repository.NewCouponRepository(testDB.Pool, logger)
	outboxRepo := repository.NewOutboxRepository(testDB.Pool, logger)
	ledger := repository.NewInventoryRepository(logger)
	documents := document.NewFileStore(t.TempDir(), logger)

	composer := notify.NewComposer(settings.BaseURL, settings.Currency, []string{"admin@tienda.test"})
	notifier := service.NewNotifier(outboxRepo, composer, logger)

	// Initialize services
	validator := coupon.NewValidator(couponRepo, settings.Currency, logger)
	confirmation := service.NewConfirmationService(orderRepo, productRepo, couponRepo, ledger, gateway, notifier, m, settings, logger)

	h := router.New(router.Handlers{
		Product:  handler.NewProductHandler(service.NewProductService(productRepo, logger), logger),
		Checkout: handler.NewCheckoutHandler(service.NewCheckoutService(productRepo, validator, gateway, settings, logger), confirmation, validator, logger),
		Webhook:  handler.NewWebhookHandler(service.NewWebhookService(gateway, confirmation, logger), logger),
		Order:    handler.NewOrderHandler(service.NewOrderService(orderRepo, ledger, gateway, notifier, m, logger), logger),
		Return: handler.NewReturnHandler(service.NewReturnService(
			returnRepo, orderRepo, ledger, gateway, label.NewPDFGenerator(), documents, notifier, m, settings, logger,
		), logger),
	}, router.Options{
		APIKey:         testAPIKey,
		AllowedOrigins: []string{"*"},
		Metrics:        m,
		Gatherer:       registry,
	}, logger)

	dispatcher := notify.NewDispatcher(outboxRepo, notify.NewLogSender(logger),
		notify.WithAttachments(documents),
		notify.WithMetrics(m),
	)

	return &testServer{handler: h, gateway: gateway, dispatcher: dispatcher}
}

func (s *testServer) do(t *testing.T, method, path string, body any, apiKey string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func stockOf(t *testing.T, testDB *TestDB, productID int64, size string) int {
	t.Helper()

	var stock int
	var err error
	if size == "" {
		err = testDB.Pool.QueryRow(context.Background(), "SELECT stock FROM products WHERE id = $1", productID).Scan(&stock)
	} else {
		err = testDB.Pool.QueryRow(context.Background(),
			"SELECT stock FROM product_sizes WHERE product_id = $1 AND size = $2", productID, size).Scan(&stock)
	}
	require.NoError(t, err)
	return stock
}

func notificationKinds(t *testing.T, testDB *TestDB) []string {
	t.Helper()

	rows, err := testDB.Pool.Query(context.Background(), "SELECT kind FROM notifications ORDER BY created_at, kind")
	require.NoError(t, err)
	defer rows.Close()

	var kinds []string
	for rows.Next() {
		var k string
		require.NoError(t, rows.Scan(&k))
		kinds = append(kinds, k)
	}
	require.NoError(t, rows.Err())
	return kinds
}

func checkoutRequest(shirt, hat int64, couponCode string) model.CheckoutRequest {
	return model.CheckoutRequest{
		Customer: model.Customer{
			Name: "Lucía Pérez", Email: "Lucia@Example.com", Address: "Calle Mayor 1",
			City: "Madrid", PostalCode: "28013", Country: "es",
		},
		ShippingMethod: model.ShippingStandard,
		CouponCode:     couponCode,
		Items: []model.LineItem{
			{ProductID: shirt, Size: "M", Quantity: 1},
			{ProductID: hat, Quantity: 1},
			{ProductID: shirt, Size: "M", Quantity: 1},
		},
	}
}

// checkoutAndConfirm runs a checkout and the success-page confirmation, returning the session id.
func (s *testServer) checkoutAndConfirm(t *testing.T, req model.CheckoutRequest) (model.OrderResponse, string) {
	t.Helper()

	w := s.do(t, http.MethodPost, "/api/checkout", req, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	session := decode[model.CheckoutResponse](t, w)
	require.True(t, session.Success)
	require.NotEmpty(t, session.SessionID)

	w = s.do(t, http.MethodPost, "/api/checkout/confirm", model.ConfirmRequest{SessionID: session.SessionID}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[model.OrderResponse](t, w), session.SessionID
}

func TestProductAPI_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	testDB := SetupTestDB(t)
	server := setupTestServer(t, testDB)

	t.Run("GET /api/products lists the catalogue without an API key", func(t *testing.T) {
		CleanupDB(t, testDB.Pool)
		SeedProduct(t, testDB.Pool, "Camiseta", 2000, 0, map[string]int{"M": 3, "L": 1})
		SeedProduct(t, testDB.Pool, "Gorra", 1500, 10, nil)

		w := server.do(t, http.MethodGet, "/api/products", nil, "")
		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Products []model.Product `json:"products"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Len(t, resp.Products, 2)
	})

	t.Run("GET /api/products/{id} returns 404 for unknown product", func(t *testing.T) {
		w := server.do(t, http.MethodGet, "/api/products/999999", nil, "")
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, model.ErrCodeProductNotFound, decode[model.ErrorResponse](t, w).Error)
	})
}

func TestOrderLifecycle_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	testDB := SetupTestDB(t)
	server := setupTestServer(t, testDB)

	t.Run("checkout, confirm twice, cancel", func(t *testing.T) {
		CleanupDB(t, testDB.Pool)
		shirt := SeedProduct(t, testDB.Pool, "Camiseta", 2000, 0, map[string]int{"M": 3})
		hat := SeedProduct(t, testDB.Pool, "Gorra", 1500, 10, nil)
		SeedCoupon(t, testDB.Pool, "VERANO10", 10)

		w := server.do(t, http.MethodPost, "/api/coupons/validate",
			model.CouponValidateRequest{Code: "verano10", Total: 5500}, "")
		require.Equal(t, http.StatusOK, w.Code)
		preview := decode[model.CouponResult](t, w)
		assert.True(t, preview.Valid)
		assert.Equal(t, int64(550), preview.DiscountAmount)

		// 2 x 2000 + 1500 = 5500, minus 550 leaves 4950: under the free-shipping threshold.
		resp, sessionID := server.checkoutAndConfirm(t, checkoutRequest(shirt, hat, " verano10"))
		order := resp.Order
		require.NotNil(t, order.CouponCode)
		assert.Equal(t, "VERANO10", *order.CouponCode)

		var timesUsed, redemptions int
		require.NoError(t, testDB.Pool.QueryRow(context.Background(),
			"SELECT times_used FROM coupons WHERE code = 'VERANO10'").Scan(&timesUsed))
		require.NoError(t, testDB.Pool.QueryRow(context.Background(),
			"SELECT COUNT(*) FROM coupon_redemptions WHERE code = 'VERANO10'").Scan(&redemptions))
		assert.Equal(t, 1, timesUsed, "a lower-case code still counts against the coupon")
		assert.Equal(t, 1, redemptions)
		assert.True(t, resp.Created)
		assert.Equal(t, model.OrderStatusPaid, order.Status)
		assert.True(t, strings.HasPrefix(order.Number, "PED-"))
		assert.Equal(t, "lucia@example.com", order.Customer.Email)
		assert.Equal(t, int64(5500), order.Subtotal)
		assert.Equal(t, int64(550), order.Discount)
		assert.Equal(t, int64(495), order.ShippingCost)
		assert.Equal(t, int64(4945), order.Total)
		require.Len(t, resp.Items, 2)
		require.NotNil(t, resp.Invoice)
		assert.True(t, strings.HasPrefix(resp.Invoice.Number, "FAC-"))

		assert.Equal(t, 1, stockOf(t, testDB, shirt, "M"))
		assert.Equal(t, 9, stockOf(t, testDB, hat, ""))

		// The webhook for the same session is a no-op.
		req := httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe", strings.NewReader(sessionID))
		req.Header.Set("Stripe-Signature", "valid")
		ww := httptest.NewRecorder()
		server.handler.ServeHTTP(ww, req)
		require.Equal(t, http.StatusOK, ww.Code)
		assert.Equal(t, 1, stockOf(t, testDB, shirt, "M"))

		w = server.do(t, http.MethodPost, "/api/checkout/confirm", model.ConfirmRequest{SessionID: sessionID}, "")
		require.Equal(t, http.StatusOK, w.Code)
		again := decode[model.OrderResponse](t, w)
		assert.False(t, again.Created)
		assert.Equal(t, order.ID, again.Order.ID)

		// Wrong email is rejected; the right one cancels and refunds in full.
		path := fmt.Sprintf("/api/orders/%s/cancel", order.ID)
		w = server.do(t, http.MethodPost, path, model.CancelRequest{Email: "someone@example.com"}, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)

		w = server.do(t, http.MethodPost, path, model.CancelRequest{Email: "LUCIA@example.com"}, "")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, model.OrderStatusCancelled, decode[model.OrderResponse](t, w).Order.Status)
		assert.Equal(t, 1, server.gateway.refundCount())

		assert.Equal(t, 3, stockOf(t, testDB, shirt, "M"))
		assert.Equal(t, 10, stockOf(t, testDB, hat, ""))

		w = server.do(t, http.MethodPost, path, model.CancelRequest{Email: "lucia@example.com"}, "")
		assert.Equal(t, http.StatusConflict, w.Code)

		kinds := notificationKinds(t, testDB)
		assert.Contains(t, kinds, notify.KindOrderConfirmation)
		assert.Contains(t, kinds, notify.KindAdminNewOrder)
		assert.Contains(t, kinds, notify.KindStockAlert)
		assert.Contains(t, kinds, notify.KindCancellationProcessing)
		assert.Contains(t, kinds, notify.KindCancellationCompleted)

		delivered := server.dispatcher.ProcessOnce(context.Background())
		assert.Equal(t, len(kinds), delivered)
	})

	t.Run("checkout rejects more than the available stock", func(t *testing.T) {
		CleanupDB(t, testDB.Pool)
		shirt := SeedProduct(t, testDB.Pool, "Camiseta", 2000, 0, map[string]int{"M": 1})
		hat := SeedProduct(t, testDB.Pool, "Gorra", 1500, 10, nil)

		w := server.do(t, http.MethodPost, "/api/checkout", checkoutRequest(shirt, hat, ""), "")
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, model.ErrCodeInsufficientStock, decode[model.ErrorResponse](t, w).Error)
	})

	t.Run("deliver then return and refund", func(t *testing.T) {
		CleanupDB(t, testDB.Pool)
		shirt := SeedProduct(t, testDB.Pool, "Camiseta", 2000, 0, map[string]int{"M": 5})
		hat := SeedProduct(t, testDB.Pool, "Gorra", 1500, 10, nil)

		resp, _ := server.checkoutAndConfirm(t, checkoutRequest(shirt, hat, ""))
		order := resp.Order
		assert.Equal(t, int64(0), order.ShippingCost)

		// Returns need a delivered order.
		var shirtItem model.OrderItem
		for _, it := range resp.Items {
			if it.ProductID == shirt {
				shirtItem = it
			}
		}
		returnReq := model.ReturnRequest{
			OrderID: order.ID,
			Email:   "lucia@example.com",
			Reason:  "Talla pequeña",
			Items:   []model.ReturnItemRequest{{OrderItemID: shirtItem.ID, Quantity: 1}},
		}
		w := server.do(t, http.MethodPost, "/api/returns", returnReq, "")
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, model.ErrCodeOrderNotDelivered, decode[model.ErrorResponse](t, w).Error)

		statusPath := fmt.Sprintf("/api/admin/orders/%s/status", order.ID)
		w = server.do(t, http.MethodPatch, statusPath, model.OrderStatusRequest{Status: model.OrderStatusShipped}, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		w = server.do(t, http.MethodPatch, statusPath, model.OrderStatusRequest{Status: model.OrderStatusShipped}, testAPIKey)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		w = server.do(t, http.MethodPatch, statusPath, model.OrderStatusRequest{Status: model.OrderStatusDelivered}, testAPIKey)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		require.NotNil(t, decode[model.OrderResponse](t, w).Order.DeliveredAt)

		w = server.do(t, http.MethodPost, "/api/returns", returnReq, "")
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		ret := decode[model.ReturnResponse](t, w).Return
		assert.Equal(t, model.ReturnStatusPending, ret.Status)
		assert.True(t, strings.HasPrefix(ret.Reference, "DEV-"))
		assert.Equal(t, int64(2000), ret.RefundAmount)

		w = server.do(t, http.MethodPost, "/api/returns", returnReq, "")
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, model.ErrCodeReturnExists, decode[model.ErrorResponse](t, w).Error)

		returnPath := fmt.Sprintf("/api/admin/returns/%s/status", ret.ID)
		w = server.do(t, http.MethodPatch, returnPath, model.ReturnStatusRequest{Status: model.ReturnStatusRefunded}, testAPIKey)
		assert.Equal(t, http.StatusConflict, w.Code)

		stockBefore := stockOf(t, testDB, shirt, "M")
		w = server.do(t, http.MethodPatch, returnPath, model.ReturnStatusRequest{Status: model.ReturnStatusReceived}, testAPIKey)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, stockBefore+1, stockOf(t, testDB, shirt, "M"))

		w = server.do(t, http.MethodPatch, returnPath, model.ReturnStatusRequest{Status: model.ReturnStatusRefunded}, testAPIKey)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		refunded := decode[model.ReturnResponse](t, w).Return
		assert.Equal(t, model.ReturnStatusRefunded, refunded.Status)
		require.NotNil(t, refunded.RefundReference)
		assert.Equal(t, "re_return-"+ret.ID.String(), *refunded.RefundReference)

		w = server.do(t, http.MethodGet, fmt.Sprintf("/api/admin/returns/%s", ret.ID), nil, testAPIKey)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, model.ReturnStatusRefunded, decode[model.ReturnResponse](t, w).Return.Status)

		w = server.do(t, http.MethodGet, fmt.Sprintf("/api/admin/returns/%s", uuid.New()), nil, testAPIKey)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestCORS_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	testDB := SetupTestDB(t)
	server := setupTestServer(t, testDB)

	t.Run("OPTIONS request returns CORS headers", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/products", nil)
		w := httptest.NewRecorder()

		server.handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "PATCH")
	})
}
