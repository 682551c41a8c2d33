package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the storefront collectors. A nil *Metrics records nothing.
type Metrics struct {
	ordersConfirmed       *prometheus.CounterVec
	duplicateConfirmation prometheus.Counter
	stockShortfalls       prometheus.Counter
	stockAlerts           *prometheus.CounterVec
	refunds               *prometheus.CounterVec
	unreconciledRefunds   *prometheus.CounterVec
	notifications         *prometheus.CounterVec
	outboxPending         prometheus.Gauge
	outboxFailed          prometheus.Gauge
	httpDuration          *prometheus.HistogramVec
}

// New registers the storefront collectors with registerer.
// Registering twice against the same registerer reuses the existing collectors.
func New(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &Metrics{
		ordersConfirmed: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_orders_confirmed_total",
			Help: "Orders created from a paid checkout session, by confirmation source.",
		}, []string{"source"})),
		duplicateConfirmation: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storefront_order_duplicate_confirmations_total",
			Help: "Confirmations that found an existing order for the session.",
		})),
		stockShortfalls: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storefront_stock_shortfall_units_total",
			Help: "Units sold beyond the available stock counter.",
		})),
		stockAlerts: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_stock_alerts_total",
			Help: "Stock alert entries raised after confirmation, by level.",
		}, []string{"level"})),
		refunds: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_refunds_total",
			Help: "Gateway refunds, by reason and result.",
		}, []string{"reason", "result"})),
		unreconciledRefunds: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_refunds_unreconciled_total",
			Help: "Refunds issued whose status change could not be persisted, by reason.",
		}, []string{"reason"})),
		notifications: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_notifications_total",
			Help: "Outbox deliveries, by channel and result.",
		}, []string{"channel", "result"})),
		outboxPending: register(registerer, prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "storefront_outbox_pending_records",
			Help: "Current number of pending outbox records.",
		})),
		outboxFailed: register(registerer, prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "storefront_outbox_failed_records",
			Help: "Current number of outbox records that exhausted their attempts.",
		})),
		httpDuration: register(registerer, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "storefront_http_request_duration_seconds",
			Help:    "HTTP request latency, by route pattern, method and status.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"route", "method", "status"})),
	}
}

func register[C prometheus.Collector](registerer prometheus.Registerer, collector C) C {
	if err := registerer.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			existing, ok := already.ExistingCollector.(C)
			if !ok {
				panic(fmt.Sprintf("collector already registered with unexpected type: %T", already.ExistingCollector))
			}
			return existing
		}
		panic(fmt.Sprintf("register collector: %v", err))
	}
	return collector
}

// OrderConfirmed counts a newly created order.
func (m *Metrics) OrderConfirmed(source string) {
	if m == nil {
		return
	}
	m.ordersConfirmed.WithLabelValues(source).Inc()
}

// DuplicateConfirmation counts an idempotent no-op confirmation.
func (m *Metrics) DuplicateConfirmation() {
	if m == nil {
		return
	}
	m.duplicateConfirmation.Inc()
}

// StockShortfall adds oversold units.
func (m *Metrics) StockShortfall(units int) {
	if m == nil || units <= 0 {
		return
	}
	m.stockShortfalls.Add(float64(units))
}

// StockAlert counts one alert entry.
func (m *Metrics) StockAlert(level string) {
	if m == nil {
		return
	}
	m.stockAlerts.WithLabelValues(level).Inc()
}

// Refund counts a refund attempt.
func (m *Metrics) Refund(reason string, err error) {
	if m == nil {
		return
	}
	m.refunds.WithLabelValues(reason, result(err)).Inc()
}

// UnreconciledRefund counts a refund that went out without its status change.
func (m *Metrics) UnreconciledRefund(reason string) {
	if m == nil {
		return
	}
	m.unreconciledRefunds.WithLabelValues(reason).Inc()
}

// Notification counts an outbox delivery attempt.
func (m *Metrics) Notification(channel, outcome string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(channel, outcome).Inc()
}

// OutboxBacklog sets the outbox gauges.
func (m *Metrics) OutboxBacklog(pending, failed int64) {
	if m == nil {
		return
	}
	m.outboxPending.Set(float64(pending))
	m.outboxFailed.Set(float64(failed))
}

// HTTPRequest observes a finished request.
func (m *Metrics) HTTPRequest(route, method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(route, method, fmt.Sprintf("%d", status)).Observe(d.Seconds())
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
