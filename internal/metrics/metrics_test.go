package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordValidation("valid")
		m.RecordPurchase("course", OutcomeCompleted, 10)
		m.RecordRefund()
		m.RecordCatalogEvent("catalog.course.upserted", "ok")
	})
}

func TestMetrics_Counters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordValidation("coupon_expired")
	m.RecordValidation("coupon_expired")
	m.RecordPurchase("course", OutcomeCompleted, 12.5)
	m.RecordPurchase("course", OutcomeRejected, 0)
	m.RecordRefund()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.couponValidations.WithLabelValues("coupon_expired")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.purchases.WithLabelValues("course", OutcomeCompleted)))
	assert.Equal(t, 12.5, testutil.ToFloat64(m.discountTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.refunds))
}

func TestMetrics_GinMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New(prometheus.NewRegistry())
	r := gin.New()
	r.Use(m.GinMiddleware())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("/ping", "GET", "204")))
}
