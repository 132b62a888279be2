package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibast-solutions/ms-go-identity/app/metrics"
)

func TestHTTPMiddleware_ObservesRoute(t *testing.T) {
	e := echo.New()
	e.Use(metrics.HTTPMiddleware)
	e.GET("/api/account/profile", func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	})

	before := testutil.CollectAndCount(metrics.HTTPRequestDuration)

	req := httptest.NewRequest(http.MethodGet, "/api/account/profile", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	assert.Equal(t, before+1, testutil.CollectAndCount(metrics.HTTPRequestDuration))
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(metrics.LoginsTotal.WithLabelValues("success"))
	metrics.LoginsTotal.WithLabelValues("success").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.LoginsTotal.WithLabelValues("success")))
}
