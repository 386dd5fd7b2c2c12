// Package metrics exposes the pricing service's Prometheus instruments.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Purchase outcomes.
const (
	OutcomeCompleted = "completed"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
)

// Metrics holds the service counters. A nil *Metrics is a valid no-op recorder.
type Metrics struct {
	couponValidations *prometheus.CounterVec
	purchases         *prometheus.CounterVec
	discountTotal     prometheus.Counter
	refunds           prometheus.Counter
	catalogEvents     *prometheus.CounterVec
	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
}

// New creates the instruments and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		couponValidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pricing_coupon_validations_total",
			Help: "Coupon evaluations by result code.",
		}, []string{"result"}),
		purchases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pricing_purchases_total",
			Help: "Purchase attempts by target kind and outcome.",
		}, []string{"kind", "outcome"}),
		discountTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pricing_discount_granted_total",
			Help: "Sum of discounts granted on recorded purchases.",
		}),
		refunds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pricing_refunds_total",
			Help: "Payments refunded by administrators.",
		}),
		catalogEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pricing_catalog_events_total",
			Help: "Catalog events consumed by type and status.",
		}, []string{"type", "status"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pricing_http_requests_total",
			Help: "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pricing_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
	reg.MustRegister(
		m.couponValidations, m.purchases, m.discountTotal, m.refunds,
		m.catalogEvents, m.httpRequests, m.httpDuration,
	)
	return m
}

// RecordValidation counts a coupon evaluation; result is "valid" or a rejection code.
func (m *Metrics) RecordValidation(result string) {
	if m == nil {
		return
	}
	m.couponValidations.WithLabelValues(result).Inc()
}

// RecordPurchase counts a purchase attempt. discount is added for completed purchases.
func (m *Metrics) RecordPurchase(kind, outcome string, discount float64) {
	if m == nil {
		return
	}
	m.purchases.WithLabelValues(kind, outcome).Inc()
	if outcome == OutcomeCompleted && discount > 0 {
		m.discountTotal.Add(discount)
	}
}

// RecordRefund counts an admin refund.
func (m *Metrics) RecordRefund() {
	if m == nil {
		return
	}
	m.refunds.Inc()
}

// RecordCatalogEvent counts a consumed catalog event.
func (m *Metrics) RecordCatalogEvent(eventType, status string) {
	if m == nil {
		return
	}
	m.catalogEvents.WithLabelValues(eventType, status).Inc()
}

// GinMiddleware records request counts and latency per matched route.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpRequests.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(route, c.Request.Method).Observe(time.Since(start).Seconds())
	}
}
