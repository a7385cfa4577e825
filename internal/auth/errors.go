package auth

import (
	"errors"
	"fmt"
)

// Code classifies authentication failures independently of the transport
type Code string

const (
	// CodeStrategyNotFound means a requirement names a strategy absent from the registry
	CodeStrategyNotFound Code = "AUTHENTICATION_STRATEGY_NOT_FOUND"

	// CodeUserProfileNotFound means the strategies ran but produced no identity
	CodeUserProfileNotFound Code = "USER_PROFILE_NOT_FOUND"

	// CodeDuplicateStrategy means a strategy name was registered twice
	CodeDuplicateStrategy Code = "DUPLICATE_STRATEGY"

	// CodeInvalidCredentials is used by strategies that reject presented credentials
	CodeInvalidCredentials Code = "INVALID_CREDENTIALS"

	// CodeAccessDenied means the credentials are valid but not allowed for the operation
	CodeAccessDenied Code = "ACCESS_DENIED"
)

// Sentinel errors, matched with errors.Is
var (
	ErrStrategyNotFound    = errors.New("authentication strategy not found")
	ErrUserProfileNotFound = errors.New("user profile not found")
	ErrDuplicateStrategy   = errors.New("authentication strategy already registered")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrAccessDenied        = errors.New("access denied")
)

// Error is a classified authentication error
type Error struct {
	// Code is the protocol-agnostic error code
	Code Code

	// Message is a human readable description safe to return to clients
	Message string

	// Err is the underlying cause
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StrategyNotFound builds the error returned when a named strategy is missing
func StrategyNotFound(name string) *Error {
	return &Error{
		Code:    CodeStrategyNotFound,
		Message: fmt.Sprintf("The strategy '%s' is not available.", name),
		Err:     ErrStrategyNotFound,
	}
}

// UserProfileNotFound builds the error returned when no strategy produced an identity
func UserProfileNotFound() *Error {
	return &Error{
		Code:    CodeUserProfileNotFound,
		Message: "User profile not returned from strategy's authenticate function",
		Err:     ErrUserProfileNotFound,
	}
}

// DuplicateStrategy builds the error returned on a conflicting registration
func DuplicateStrategy(name string) *Error {
	return &Error{
		Code:    CodeDuplicateStrategy,
		Message: fmt.Sprintf("The strategy '%s' is already registered.", name),
		Err:     ErrDuplicateStrategy,
	}
}

// InvalidCredentials builds a strategy rejection carrying the given client message
func InvalidCredentials(message string, cause error) *Error {
	if cause == nil {
		cause = ErrInvalidCredentials
	} else {
		cause = fmt.Errorf("%w: %w", ErrInvalidCredentials, cause)
	}
	return &Error{
		Code:    CodeInvalidCredentials,
		Message: message,
		Err:     cause,
	}
}

// AccessDenied builds a strategy rejection for a recognised principal that
// may not perform the operation
func AccessDenied(message string) *Error {
	return &Error{
		Code:    CodeAccessDenied,
		Message: message,
		Err:     ErrAccessDenied,
	}
}

// CodeOf returns the classification code carried by err, or "" if none
func CodeOf(err error) Code {
	var authErr *Error
	if errors.As(err, &authErr) {
		return authErr.Code
	}
	return ""
}
