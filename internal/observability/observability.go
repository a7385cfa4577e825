// Package observability wires request logging and metrics around the router.
package observability

import (
	"net/http"
	"time"

	"authflow/internal/contextutil"
	"authflow/internal/httputils"
	"authflow/internal/observability/logging"
	"authflow/internal/observability/metrics"
)

// RequestIDHeader carries the request ID in both directions
const RequestIDHeader = "X-Request-ID"

// Provider provides observability capabilities
type Provider struct {
	Logger  *logging.Logger
	Metrics *metrics.Collector
}

// NewProvider creates a new observability provider
func NewProvider(logLevel, logFormat string) (*Provider, error) {
	logger, err := logging.NewLogger(logLevel, logFormat)
	if err != nil {
		return nil, err
	}

	return &Provider{
		Logger:  logger,
		Metrics: metrics.NewCollector(),
	}, nil
}

// Middleware attaches a request ID and a request logger to the context,
// then logs and measures the request
func (p *Provider) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()
		ctx := r.Context()

		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" || len(requestID) > 128 {
			requestID = logging.NewTraceID()
		}
		ctx = contextutil.WithRequestID(ctx, requestID)
		ctx = logging.ContextWithTraceID(ctx, requestID)

		spanID := logging.NewSpanID()
		ctx = logging.ContextWithSpanID(ctx, spanID)

		logger := p.Logger.WithTracing(requestID, spanID)
		ctx = logging.ContextWithLogger(ctx, logger)

		// Filled in by the router once an operation matches
		route := &contextutil.RouteInfo{}
		ctx = contextutil.WithRouteInfo(ctx, route)

		wrapper := httputils.NewResponseWriter(w)
		wrapper.Header().Set(RequestIDHeader, requestID)

		logger.Debug("Request started",
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
			"user_agent", r.UserAgent(),
		)

		r = r.WithContext(ctx)
		next.ServeHTTP(wrapper, r)

		duration := time.Since(startTime)
		p.Metrics.RecordRequest(r.Method, route.Operation, wrapper.StatusCode, duration)

		logger.Info("Request completed",
			"method", r.Method,
			"path", r.URL.Path,
			logging.OperationKey, route.Operation,
			"status", wrapper.StatusCode,
			"duration_ms", duration.Milliseconds(),
			"bytes_written", wrapper.BytesWritten,
		)
	})
}

// MetricsHandler returns an HTTP handler for exposing metrics
func (p *Provider) MetricsHandler() http.Handler {
	return metrics.Handler()
}
