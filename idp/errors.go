package idp

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/aws/smithy-go"
	apperrors "github.com/jrsteele09/go-session-broker/internal/errors"
	"golang.org/x/oauth2"
)

// providerStatus maps provider error codes seen on registration and
// confirmation calls to the status returned to our clients.
var providerStatus = map[string]int{
	"UsernameExistsException":        http.StatusConflict,
	"AliasExistsException":           http.StatusConflict,
	"InvalidPasswordException":       http.StatusBadRequest,
	"InvalidParameterException":      http.StatusBadRequest,
	"CodeMismatchException":          http.StatusBadRequest,
	"ExpiredCodeException":           http.StatusBadRequest,
	"UserNotFoundException":          http.StatusBadRequest,
	"NotAuthorizedException":         http.StatusBadRequest,
	"TooManyRequestsException":       http.StatusTooManyRequests,
	"LimitExceededException":         http.StatusTooManyRequests,
	"TooManyFailedAttemptsException": http.StatusTooManyRequests,
}

// providerError categorises a failed registration-family call. Provider
// rejections keep their code; transport failures and timeouts become
// gateway errors.
func providerError(op string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		status, ok := providerStatus[apiErr.ErrorCode()]
		if !ok {
			status = http.StatusBadRequest
		}
		return fmt.Errorf("%s: %w", op, &apperrors.IdentityProviderError{
			Code:    apiErr.ErrorCode(),
			Message: apiErr.ErrorMessage(),
			Status:  status,
		})
	}

	status := http.StatusBadGateway
	code := "ProviderUnavailable"
	if errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusGatewayTimeout
		code = "ProviderTimeout"
	}
	return fmt.Errorf("%s: %w", op, &apperrors.IdentityProviderError{Code: code, Message: err.Error(), Status: status})
}

// authError categorises a failed login, refresh or code exchange. Every
// failure, whatever the cause, is an authentication failure.
func authError(op string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %w: %s: %s", op, apperrors.ErrAuthentication, apiErr.ErrorCode(), apiErr.ErrorMessage())
	}
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return fmt.Errorf("%s: %w: %s", op, apperrors.ErrAuthentication, retrieveErr.ErrorCode)
	}
	return fmt.Errorf("%s: %w: %w", op, apperrors.ErrAuthentication, err)
}
