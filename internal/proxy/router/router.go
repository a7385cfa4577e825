// Package router maps requests to named operations and forwards them upstream.
package router

import (
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/gorilla/mux"

	"authflow/internal/authz"
	"authflow/internal/contextutil"
	"authflow/internal/httputils"
	"authflow/internal/observability/logging"
	"authflow/internal/observability/metrics"
)

// Operation actions
const (
	ActionProxy = "proxy"
	ActionDeny  = "deny"
)

// Headers set on upstream requests for authenticated identities.
// Client supplied values are always removed.
const (
	HeaderSubject  = "X-Authenticated-Subject"
	HeaderProvider = "X-Authenticated-Provider"
	HeaderEmail    = "X-Authenticated-Email"
)

// Operation is a named set of routes
type Operation struct {
	// Name is the operation ID and the mux route name
	Name string

	// Action is "proxy" or "deny"
	Action string

	// Paths is a list of URL paths this operation applies to
	Paths []string

	// MatchPrefix indicates whether to match the path prefix instead of exact match
	MatchPrefix bool

	// Methods is a list of HTTP methods this operation applies to (empty = all methods)
	Methods []string

	// Permission, if set, is checked with the authorizer before proxying
	Permission string

	// Resource is the resource identifier for authorization checks
	Resource string
}

// Builtin is an operation served by the proxy itself
type Builtin struct {
	Name    string
	Path    string
	Methods []string
	Handler http.Handler
}

// Config holds router configuration
type Config struct {
	// UpstreamURL is the URL of the upstream service
	UpstreamURL *url.URL

	// UpstreamTimeout is the timeout for upstream service requests
	UpstreamTimeout time.Duration

	// Builtins are registered before operations and take precedence over them
	Builtins []Builtin

	// Operations are registered in order; the first matching route wins
	Operations []Operation
}

// Router is a proxy router that applies authentication per matched operation
type Router struct {
	*mux.Router
	target      *httputil.ReverseProxy
	authorizer  authz.Authorizer
	logger      *logging.Logger
	metrics     *metrics.Collector
	upstreamURL *url.URL
}

// New creates a new router. authenticate runs after routing for every
// matched route; authorizer may be nil when no operation names a permission.
func New(config Config, authenticate mux.MiddlewareFunc, authorizer authz.Authorizer, logger *logging.Logger, metricsCollector *metrics.Collector) *Router {
	r := &Router{
		Router:      mux.NewRouter(),
		authorizer:  authorizer,
		logger:      logger.WithModule("proxy.router"),
		metrics:     metricsCollector,
		upstreamURL: config.UpstreamURL,
	}
	r.target = r.newReverseProxy(config)

	r.setupRoutes(config)
	r.Use(recordRoute)
	if authenticate != nil {
		r.Use(authenticate)
	}

	return r
}

func (r *Router) newReverseProxy(config Config) *httputil.ReverseProxy {
	upstream := config.UpstreamURL
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(upstream)
			pr.SetXForwarded()
			forwardIdentity(pr)
		},
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			ResponseHeaderTimeout: config.UpstreamTimeout,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
		ErrorHandler: func(w http.ResponseWriter, req *http.Request, err error) {
			logging.FromContextOr(req.Context(), r.logger).Error("Upstream request failed",
				logging.Err(err),
				"upstream", logging.RedactURL(upstream),
			)
			httputils.WriteError(w, http.StatusBadGateway, httputils.CodeUpstreamUnavailable, "Upstream service unavailable")
		},
	}
}

// forwardIdentity replaces identity headers with the published identity
func forwardIdentity(pr *httputil.ProxyRequest) {
	pr.Out.Header.Del(HeaderSubject)
	pr.Out.Header.Del(HeaderProvider)
	pr.Out.Header.Del(HeaderEmail)

	identity := contextutil.IdentityFromContext(pr.In.Context())
	if identity == nil {
		return
	}
	pr.Out.Header.Set(HeaderSubject, identity.Subject)
	pr.Out.Header.Set(HeaderProvider, identity.Provider)
	if identity.Email != "" {
		pr.Out.Header.Set(HeaderEmail, identity.Email)
	}
}

// recordRoute publishes the matched operation to outer middleware
func recordRoute(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if info := contextutil.GetRouteInfo(req.Context()); info != nil {
			info.Operation = mux.CurrentRoute(req).GetName()
		}
		next.ServeHTTP(w, req)
	})
}

// setupRoutes configures builtin routes then operation routes
func (r *Router) setupRoutes(config Config) {
	for _, b := range config.Builtins {
		route := r.Path(b.Path).Name(b.Name)
		if len(b.Methods) > 0 {
			route.Methods(b.Methods...)
		}
		route.Handler(b.Handler)
	}

	denyHandler := r.createDenyHandler()

	for _, op := range config.Operations {
		r.logger.Debug("Setting up route",
			logging.OperationKey, op.Name,
			"action", op.Action,
			"paths", op.Paths,
			"methods", op.Methods,
		)

		var handler http.Handler
		switch {
		case op.Action == ActionDeny:
			handler = denyHandler
		case op.Permission != "":
			handler = r.createAuthorizeHandler(op)
		default:
			handler = r.createProxyHandler()
		}

		for _, path := range op.Paths {
			var route *mux.Route
			if op.MatchPrefix {
				route = r.PathPrefix(path)
			} else {
				route = r.Path(path)
			}
			if len(op.Methods) > 0 {
				route = route.Methods(op.Methods...)
			}
			route.Name(op.Name).Handler(handler)
		}
	}

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		logging.FromContextOr(req.Context(), r.logger).Warn("Request received for undefined route", "path", req.URL.Path)
		httputils.WriteError(w, http.StatusNotFound, httputils.CodeNotFound, "No operation matches the request")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		httputils.WriteError(w, http.StatusMethodNotAllowed, httputils.CodeMethodNotAllowed, "Method not allowed for this path")
	})
}

// createProxyHandler forwards the request upstream
func (r *Router) createProxyHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		operation := mux.CurrentRoute(req).GetName()
		r.recordMatch(operation, ActionProxy)
		r.proxy(w, req)
	})
}

// createDenyHandler rejects every request for the operation
func (r *Router) createDenyHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		operation := mux.CurrentRoute(req).GetName()
		logging.FromContextOr(req.Context(), r.logger).Debug("Deny handler called",
			logging.OperationKey, operation,
			"path", req.URL.Path,
			"method", req.Method,
		)
		r.recordMatch(operation, ActionDeny)
		httputils.WriteError(w, http.StatusForbidden, httputils.CodeForbidden, "Operation is not allowed")
	})
}

// createAuthorizeHandler checks the operation's permission before proxying
func (r *Router) createAuthorizeHandler(op Operation) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ctx := req.Context()
		logger := logging.FromContextOr(ctx, r.logger).With(logging.OperationKey, op.Name)
		r.recordMatch(op.Name, ActionProxy)

		identity := contextutil.IdentityFromContext(ctx)
		if identity == nil {
			logger.Info("Authorization failed: no identity")
			r.recordAuthorization(op.Permission, false)
			httputils.WriteError(w, http.StatusUnauthorized, httputils.CodeAuthenticationRequired, "Authentication required")
			return
		}
		if r.authorizer == nil {
			logger.Error("Operation requires a permission but no authorizer is configured", "permission", op.Permission)
			r.recordAuthorization(op.Permission, false)
			httputils.WriteError(w, http.StatusInternalServerError, httputils.CodeAuthorizationError, "Authorization is not configured")
			return
		}

		resp := r.authorizer.Authorize(ctx, &authz.Request{
			Identity:   identity,
			Permission: op.Permission,
			Resource:   op.Resource,
		})

		switch resp.Decision {
		case authz.Allow:
			logger.Debug("Authorization successful", "subject", identity.Subject, "permission", op.Permission)
			r.recordAuthorization(op.Permission, true)
			r.proxy(w, req)
		case authz.Deny:
			logger.Info("Authorization failed: permission denied", "subject", identity.Subject, "permission", op.Permission)
			r.recordAuthorization(op.Permission, false)
			httputils.WriteError(w, http.StatusForbidden, httputils.CodeForbidden, "Permission denied")
		case authz.Unauthorized:
			logger.Info("Authorization failed: unauthorized", "permission", op.Permission)
			r.recordAuthorization(op.Permission, false)
			httputils.WriteError(w, http.StatusUnauthorized, httputils.CodeAuthenticationRequired, "Authentication required")
		default:
			logger.Error("Authorization failed: error", logging.Err(resp.Error), "permission", op.Permission)
			r.recordAuthorization(op.Permission, false)
			httputils.WriteError(w, http.StatusServiceUnavailable, httputils.CodeAuthorizationError, "Authorization service unavailable")
		}
	})
}

func (r *Router) proxy(w http.ResponseWriter, req *http.Request) {
	startTime := time.Now()
	wrapper := httputils.NewResponseWriter(w)

	r.target.ServeHTTP(wrapper, req)

	if r.metrics != nil {
		r.metrics.RecordUpstreamRequest(req.Method, r.upstreamURL.Host, wrapper.StatusCode, time.Since(startTime))
	}
}

func (r *Router) recordMatch(operation, action string) {
	if r.metrics != nil {
		r.metrics.RecordOperationMatch(operation, action)
	}
}

func (r *Router) recordAuthorization(permission string, allowed bool) {
	if r.metrics != nil {
		r.metrics.RecordAuthorization(permission, allowed)
	}
}

// Health reports that the proxy is serving
func Health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
