package router

import (
	"net/http"

	"storefront/internal/handler"
	"storefront/internal/metrics"
	"storefront/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Handlers groups the HTTP handlers mounted by the router.
type Handlers struct {
	Product  *handler.ProductHandler
	Checkout *handler.CheckoutHandler
	Webhook  *handler.WebhookHandler
	Order    *handler.OrderHandler
	Return   *handler.ReturnHandler
}

// Options configures cross-cutting router behaviour.
type Options struct {
	APIKey         string
	AllowedOrigins []string
	Metrics        *metrics.Metrics
	Gatherer       prometheus.Gatherer
}

// New creates a new HTTP router with all routes and middleware configured.
func New(h Handlers, opts Options, logger zerolog.Logger) http.Handler {
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()

	// Recovery -> Logging -> Metrics -> CORS; APIKeyAuth guards /api/admin only.
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.Metrics(opts.Metrics))
	r.Use(middleware.CORS(opts.AllowedOrigins))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy"}`))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/products", h.Product.GetAll)
		r.Get("/products/{id}", h.Product.GetByID)

		r.Post("/coupons/validate", h.Checkout.ValidateCoupon)
		r.Post("/checkout", h.Checkout.Checkout)
		r.Post("/checkout/confirm", h.Checkout.Confirm)
		r.Post("/webhooks/stripe", h.Webhook.Stripe)

		r.Get("/orders/{id}", h.Order.GetByID)
		r.Post("/orders/{id}/cancel", h.Order.Cancel)
		r.Post("/returns", h.Return.Create)

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.APIKeyAuth(opts.APIKey, logger))
			r.Patch("/orders/{id}/status", h.Order.AdvanceStatus)
			r.Get("/returns/{id}", h.Return.GetByID)
			r.Patch("/returns/{id}/status", h.Return.AdvanceStatus)
		})
	})

	return r
}
