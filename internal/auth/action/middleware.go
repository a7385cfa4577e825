package action

import (
	"net/http"

	"github.com/gorilla/mux"

	"authflow/internal/contextutil"
	"authflow/internal/httputils"
	"authflow/internal/observability/logging"
)

// OperationID returns the name of the route matched for r, or "" if none
func OperationID(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		return route.GetName()
	}
	return ""
}

// Middleware runs the action after routing. The matched route's name is the
// operation. The next handler is invoked only when the request is
// authenticated or the operation is public.
func (a *Action) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scope := contextutil.NewScope(OperationID(r))
		ctx := contextutil.WithScope(r.Context(), scope)

		if _, err := a.Authenticate(ctx, r, scope); err != nil {
			status := httputils.WriteAuthError(w, err, scope.Challenge)
			logging.FromContextOr(ctx, a.logger).Info("Request rejected",
				logging.OperationKey, scope.OperationID,
				"status", status,
				"path", r.URL.Path,
				"method", r.Method,
			)
			return
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

var _ mux.MiddlewareFunc = (&Action{}).Middleware
