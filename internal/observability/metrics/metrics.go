package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Common label names for consistent metrics
const (
	LabelOperation = "operation"
	LabelAction    = "action"
	LabelStatus    = "status"
	LabelMethod    = "method"
	LabelStrategy  = "strategy"
	LabelOutcome   = "outcome"
	LabelSuccess   = "success"
)

// Authentication outcomes that are not error codes
const (
	OutcomeAuthenticated = "authenticated"
	OutcomePublic        = "public"
	OutcomeError         = "error"
)

// OperationUnmatched labels requests that matched no operation
const OperationUnmatched = "unmatched"

// methodOther labels request methods outside the standard set
const methodOther = "OTHER"

var (
	// RequestsTotal counts all HTTP requests
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authflow_requests_total",
			Help: "Total number of HTTP requests by operation",
		},
		[]string{LabelMethod, LabelOperation, LabelStatus},
	)

	// RequestDuration tracks the duration of HTTP requests
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "authflow_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{LabelMethod, LabelOperation},
	)

	// AuthenticationTotal counts authentication decisions by operation, strategy and outcome
	AuthenticationTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authflow_authentication_total",
			Help: "Total number of authentication decisions",
		},
		[]string{LabelOperation, LabelStrategy, LabelOutcome},
	)

	// StrategyDuration tracks how long individual strategy invocations take
	StrategyDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "authflow_strategy_duration_seconds",
			Help:    "Duration of authentication strategy invocations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{LabelStrategy},
	)

	// AuthorizationTotal counts authorization checks by permission and outcome
	AuthorizationTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authflow_authorization_total",
			Help: "Total number of authorization checks",
		},
		[]string{"permission", LabelSuccess},
	)

	// OperationMatchTotal counts requests routed to each operation
	OperationMatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authflow_operation_match_total",
			Help: "Total number of requests matched to an operation",
		},
		[]string{LabelOperation, LabelAction},
	)

	// UpstreamRequestTotal counts requests to upstream services
	UpstreamRequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authflow_upstream_requests_total",
			Help: "Total number of requests to upstream services",
		},
		[]string{LabelMethod, "upstream", LabelStatus},
	)

	// UpstreamRequestDuration tracks the duration of upstream requests
	UpstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "authflow_upstream_request_duration_seconds",
			Help:    "Duration of requests to upstream services in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{LabelMethod, "upstream"},
	)
)

// Collector provides methods for recording metrics
type Collector struct{}

// NewCollector creates a new metrics collector
func NewCollector() *Collector {
	return &Collector{}
}

// RecordRequest records metrics for an HTTP request. Labels are bounded:
// an empty operation is recorded as unmatched and unknown methods as OTHER.
func (c *Collector) RecordRequest(method, operation string, status int, duration time.Duration) {
	method = normalizeMethod(method)
	if operation == "" {
		operation = OperationUnmatched
	}
	RequestsTotal.WithLabelValues(method, operation, http.StatusText(status)).Inc()
	RequestDuration.WithLabelValues(method, operation).Observe(duration.Seconds())
}

// RecordAuthentication records the outcome of the authentication action for an operation.
// Strategy is empty for public operations and for failures before any strategy ran.
func (c *Collector) RecordAuthentication(operation, strategy, outcome string) {
	AuthenticationTotal.WithLabelValues(operation, strategy, outcome).Inc()
}

// RecordStrategyDuration records the time spent inside a single strategy
func (c *Collector) RecordStrategyDuration(strategy string, duration time.Duration) {
	StrategyDuration.WithLabelValues(strategy).Observe(duration.Seconds())
}

// RecordAuthorization records an authorization check
func (c *Collector) RecordAuthorization(permission string, success bool) {
	AuthorizationTotal.WithLabelValues(permission, boolToString(success)).Inc()
}

// RecordOperationMatch records a request routed to an operation
func (c *Collector) RecordOperationMatch(operation, action string) {
	OperationMatchTotal.WithLabelValues(operation, action).Inc()
}

// RecordUpstreamRequest records a request to an upstream service
func (c *Collector) RecordUpstreamRequest(method, upstream string, status int, duration time.Duration) {
	UpstreamRequestTotal.WithLabelValues(method, upstream, http.StatusText(status)).Inc()
	UpstreamRequestDuration.WithLabelValues(method, upstream).Observe(duration.Seconds())
}

// Handler returns an HTTP handler for exposing metrics
func Handler() http.Handler {
	return promhttp.Handler()
}

// boolToString converts a boolean to a string representation
func boolToString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func normalizeMethod(method string) string {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut, http.MethodPatch,
		http.MethodDelete, http.MethodConnect, http.MethodOptions, http.MethodTrace:
		return method
	}
	return methodOther
}
