package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMiddlewareRecordsRequests(t *testing.T) {
	m := NewMetrics()
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/serials/dashboard", nil))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	require.Contains(t, body, "trackline_http_requests_total")
	require.Contains(t, body, `code="418"`)
}

func TestDomainCounters(t *testing.T) {
	m := NewMetrics()
	m.CountIssued("FINISHED_GOODS", 5)
	m.CountScan("valid")
	m.CountScan("invalid")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	require.Contains(t, body, `trackline_serials_issued_total{item_type="FINISHED_GOODS"} 5`)
	require.Contains(t, body, `trackline_scans_total{outcome="valid"} 1`)
	require.Contains(t, body, `trackline_scans_total{outcome="invalid"} 1`)
}

func TestNilMetricsAreInert(t *testing.T) {
	var m *Metrics
	m.CountIssued("FINISHED_GOODS", 1)
	m.CountScan("valid")
	require.NotNil(t, m.Handler())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.True(t, strings.HasPrefix(rec.Body.String(), http.StatusText(http.StatusServiceUnavailable)))
}
