package observability

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authflow/internal/contextutil"
	"authflow/internal/observability/logging"
	"authflow/internal/observability/metrics"
)

func newProvider(t *testing.T) (*Provider, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger, err := logging.NewLoggerWithWriter(&buf, "info", "json")
	require.NoError(t, err)
	return &Provider{Logger: logger, Metrics: metrics.NewCollector()}, &buf
}

func TestMiddleware_RequestID(t *testing.T) {
	p, buf := newProvider(t)

	var seen string
	handler := p.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = contextutil.GetRequestID(r.Context())
		assert.NotNil(t, logging.LoggerFromContext(r.Context()))
		w.WriteHeader(http.StatusAccepted)
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/widgets", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "req-123", seen)
	assert.Equal(t, "req-123", rec.Header().Get(RequestIDHeader))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, buf.String(), `"trace_id":"req-123"`)
	assert.Contains(t, buf.String(), `"status":202`)
}

func TestMiddleware_GeneratesRequestID(t *testing.T) {
	p, _ := newProvider(t)
	handler := p.Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Len(t, rec.Header().Get(RequestIDHeader), 36)
}

func namedRouter() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/widgets", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet).Name("widgets.list")
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if info := contextutil.GetRouteInfo(req.Context()); info != nil {
				info.Operation = mux.CurrentRoute(req).GetName()
			}
			next.ServeHTTP(w, req)
		})
	})
	return r
}

func TestMiddleware_LabelsByOperation(t *testing.T) {
	p, buf := newProvider(t)
	handler := p.Middleware(namedRouter())

	before := testutil.ToFloat64(metrics.RequestsTotal.WithLabelValues(http.MethodGet, "widgets.list", "OK"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/widgets", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.RequestsTotal.WithLabelValues(http.MethodGet, "widgets.list", "OK")))
	assert.Contains(t, buf.String(), `"operation":"widgets.list"`)
}

func TestMiddleware_UnmatchedPathsShareOneSeries(t *testing.T) {
	p, _ := newProvider(t)
	handler := p.Middleware(namedRouter())

	// Prime the unmatched series so the count below only measures growth
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/seed", nil))
	series := testutil.CollectAndCount(metrics.RequestsTotal)
	unmatched := testutil.ToFloat64(metrics.RequestsTotal.WithLabelValues(http.MethodGet, metrics.OperationUnmatched, "Not Found"))

	for i := 0; i < 500; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/random-%d", i), nil))
		require.Equal(t, http.StatusNotFound, rec.Code)
	}

	assert.Equal(t, series, testutil.CollectAndCount(metrics.RequestsTotal))
	assert.Equal(t, unmatched+500, testutil.ToFloat64(metrics.RequestsTotal.WithLabelValues(http.MethodGet, metrics.OperationUnmatched, "Not Found")))
}
