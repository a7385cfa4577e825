package contextutil

import (
	"context"
	"errors"

	"authflow/internal/auth"
)

// Key is a type-safe key for context values
type Key string

const (
	// ScopeKey is the key for the request scope
	ScopeKey Key = "context:scope"

	// RequestIDKey is the key for the request ID
	RequestIDKey Key = "context:request_id"

	// RouteInfoKey is the key for the matched route record
	RouteInfoKey Key = "context:route_info"
)

// ErrIdentityAlreadyPublished is returned when a scope receives a second identity
var ErrIdentityAlreadyPublished = errors.New("identity already published for this request")

// Scope carries per-request authentication state. It is created when the
// operation for a request is known and is owned by that request only.
type Scope struct {
	// OperationID is the name of the matched operation
	OperationID string

	// Requirement is the resolved authentication requirement, nil for public operations
	Requirement *auth.Requirement

	// Strategy is the name of the strategy that produced the identity
	Strategy string

	// Challenge is the WWW-Authenticate value advertised by the resolved strategies
	Challenge string

	identity *auth.Identity
}

// NewScope creates a scope for the given operation
func NewScope(operationID string) *Scope {
	return &Scope{OperationID: operationID}
}

// Publish stores the authenticated identity. It succeeds only once per scope.
func (s *Scope) Publish(identity *auth.Identity) error {
	if s.identity != nil {
		return ErrIdentityAlreadyPublished
	}
	s.identity = identity
	return nil
}

// Identity returns the published identity, or nil if the request is unauthenticated
func (s *Scope) Identity() *auth.Identity {
	if s == nil {
		return nil
	}
	return s.identity
}

// WithScope adds a scope to a context
func WithScope(ctx context.Context, scope *Scope) context.Context {
	return context.WithValue(ctx, ScopeKey, scope)
}

// GetScope retrieves the scope from a context
func GetScope(ctx context.Context) *Scope {
	if scope, ok := ctx.Value(ScopeKey).(*Scope); ok {
		return scope
	}
	return nil
}

// IdentityFromContext returns the identity published for the current request, if any
func IdentityFromContext(ctx context.Context) *auth.Identity {
	return GetScope(ctx).Identity()
}

// WithRequestID adds a request ID to a context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves a request ID from a context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// RouteInfo records the operation a request was routed to. It is placed in
// the context before routing and filled in by the router, so outer
// middleware can read it once the request has been served.
type RouteInfo struct {
	Operation string
}

// WithRouteInfo adds a route record to a context
func WithRouteInfo(ctx context.Context, info *RouteInfo) context.Context {
	return context.WithValue(ctx, RouteInfoKey, info)
}

// GetRouteInfo retrieves the route record from a context
func GetRouteInfo(ctx context.Context) *RouteInfo {
	if info, ok := ctx.Value(RouteInfoKey).(*RouteInfo); ok {
		return info
	}
	return nil
}
