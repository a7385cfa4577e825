package httputils

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"authflow/internal/auth"
)

// Error codes emitted for failures that carry no authentication code
const (
	CodeAuthenticationAborted = "AUTHENTICATION_ABORTED"
	CodeAuthenticationError   = "AUTHENTICATION_ERROR"
)

// ErrorBody is the JSON envelope written for rejected requests
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes a rejected request
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError writes a JSON error response
func WriteError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorBody{Error: ErrorDetail{Code: code, Message: message}})
}

// AuthErrorStatus maps an authentication failure to an HTTP status code.
// Classified failures are unauthorized except access denials, which are
// forbidden. Abandoned requests are unavailable and anything else is an
// internal error.
func AuthErrorStatus(err error) int {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	case auth.CodeOf(err) == auth.CodeAccessDenied:
		return http.StatusForbidden
	case auth.CodeOf(err) != "":
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// WriteAuthError writes the response for a failed authentication and returns
// the status code used. challenge, if set, is sent as WWW-Authenticate on 401.
func WriteAuthError(w http.ResponseWriter, err error, challenge string) int {
	status := AuthErrorStatus(err)

	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		var authErr *auth.Error
		errors.As(err, &authErr)
		// 403 carries no challenge
		if challenge != "" && status == http.StatusUnauthorized {
			w.Header().Set("WWW-Authenticate", challenge)
		}
		message := authErr.Message
		if message == "" {
			message = http.StatusText(status)
		}
		WriteError(w, status, string(authErr.Code), message)
	case http.StatusServiceUnavailable:
		WriteError(w, status, CodeAuthenticationAborted, "Authentication did not complete")
	default:
		WriteError(w, status, CodeAuthenticationError, "Internal authentication error")
	}

	return status
}

// Error codes written by the router
const (
	CodeForbidden              = "FORBIDDEN"
	CodeNotFound               = "NOT_FOUND"
	CodeMethodNotAllowed       = "METHOD_NOT_ALLOWED"
	CodeAuthorizationError     = "AUTHORIZATION_ERROR"
	CodeUpstreamUnavailable    = "UPSTREAM_UNAVAILABLE"
	CodeAuthenticationRequired = "AUTHENTICATION_REQUIRED"
)
