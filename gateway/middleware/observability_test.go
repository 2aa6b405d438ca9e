package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestObservabilityCountsRequests(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs := NewObservability(ObservabilityConfig{Enabled: true, LogRequests: true, Registerer: reg}, nil)
	handler := obs.Middleware("pools")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/pools", nil))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/pools", nil))

	count := testutil.ToFloat64(obs.requests.WithLabelValues("pools", http.MethodGet, http.StatusText(http.StatusTeapot)))
	require.Equal(t, float64(2), count)

	// A second instance on the same registry shares the collectors.
	again := NewObservability(ObservabilityConfig{Enabled: true, Registerer: reg}, nil)
	require.Same(t, obs.requests, again.requests)
}
