package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error categories for the session broker
var (
	// Provider and credential errors
	ErrIdentityProvider = errors.New("identity provider error")
	ErrAuthentication   = errors.New("authentication failed")

	// Session errors
	ErrUnauthenticated   = errors.New("unauthenticated")
	ErrPrincipalNotFound = errors.New("principal not found")
	ErrForbidden         = errors.New("forbidden")

	// Request errors
	ErrInvalidRequest = errors.New("invalid request")
	ErrInvalidTarget  = errors.New("invalid redirect target")

	// General errors
	ErrNotFound = errors.New("not found")
	ErrInternal = errors.New("internal error")
)

// IdentityProviderError is a categorised rejection returned by the external IdP,
// e.g. a duplicate registration or a password that fails policy.
type IdentityProviderError struct {
	Code    string // Provider error code, e.g. UsernameExistsException
	Message string
	Status  int // HTTP status the rejection maps to
}

func (e *IdentityProviderError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("identity provider error: %s", e.Code)
	}
	return fmt.Sprintf("identity provider error: %s: %s", e.Code, e.Message)
}

func (e *IdentityProviderError) Is(target error) bool {
	return target == ErrIdentityProvider
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// HTTPStatus maps an error chain onto the status code returned to clients.
func HTTPStatus(err error) int {
	var idpErr *IdentityProviderError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &idpErr):
		if idpErr.Status == 0 {
			return http.StatusBadRequest
		}
		return idpErr.Status
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrAuthentication),
		errors.Is(err, ErrUnauthenticated),
		errors.Is(err, ErrPrincipalNotFound):
		return http.StatusUnauthorized
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrInvalidTarget):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Code returns the short machine-readable error code used in JSON error bodies.
func Code(err error) string {
	var idpErr *IdentityProviderError
	switch {
	case errors.As(err, &idpErr):
		return "identity_provider_error"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrPrincipalNotFound):
		return "principal_not_found"
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, ErrAuthentication):
		return "authentication_error"
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrInvalidTarget):
		return "invalid_request"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "server_error"
	}
}
