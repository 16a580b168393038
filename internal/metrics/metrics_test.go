package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPMiddleware_LabelsByRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTP("test", reg)

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Delete("/cart/remove/{productId}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, id := range []string{"a1", "b2", "c3"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/cart/remove/"+id, nil))
		require.Equal(t, http.StatusNotFound, rec.Code)
	}

	count := testutil.ToFloat64(m.requestsTotal.WithLabelValues(http.MethodDelete, "/cart/remove/{productId}", "404"))
	assert.Equal(t, 3.0, count)
	assert.Equal(t, 1, testutil.CollectAndCount(m.requestsTotal))
}

func TestHTTPHandler_ServesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTP("test", reg)
	carts := NewCart("test", reg)
	carts.Mutation("add", 42)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `test_cart_mutations_total{operation="add"} 1`))
}

func TestCartMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCart("test", reg)

	m.Mutation("add", 10)
	m.Mutation("add", 20)
	m.Rejected("add", "vendor_mismatch")
	m.WriteConflict()
	m.CacheLookup("hit")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.mutations.WithLabelValues("add")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rejections.WithLabelValues("add", "vendor_mismatch")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.writeConflicts))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("hit")))
}

func TestCartMetrics_NilIsSafe(t *testing.T) {
	var m *Cart
	assert.NotPanics(t, func() {
		m.Mutation("add", 1)
		m.Rejected("add", "stock")
		m.WriteConflict()
		m.CacheLookup("miss")
	})
}
