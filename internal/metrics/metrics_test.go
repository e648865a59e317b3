package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordOperation("transfer", "success", 0.1)
		m.RecordVersionConflict("transfer")
		m.RecordRollback("failed")
		m.RecordTransactionAmount("TRANSFER", "USD", 10)
		m.RecordIdempotencyLookup("fund", "hit")
		m.RecordHTTPRequest("/", "GET", 200, 0.01)
		m.RecordNATSPublish("wallet.events.funded", "success", 0.01)
	})
}

func TestRecordOperationCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordOperation("transfer", "success", 0.01)
	m.RecordOperation("transfer", "success", 0.02)
	m.RecordOperation("transfer", "INSUFFICIENT_BALANCE", 0.01)
	m.RecordRollback("succeeded")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.operationsTotal.WithLabelValues("transfer", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operationsTotal.WithLabelValues("transfer", "INSUFFICIENT_BALANCE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rollbacksTotal.WithLabelValues("succeeded")))
}

func TestHTTPMiddlewareUsesRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	app := fiber.New()
	app.Use(HTTPMiddleware(m))
	app.Get("/wallets/:walletId", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/wallets/abc", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("/wallets/:walletId", "GET", "2xx")))
}
