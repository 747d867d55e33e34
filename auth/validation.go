package auth

import (
	"fmt"
	"net/url"
	"strings"

	apperrors "github.com/jrsteele09/go-session-broker/internal/errors"
)

// Validator checks request input before anything is sent to the identity provider.
type Validator struct{}

// NewValidator creates a new Validator instance
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateEmail performs a basic format check
func (v *Validator) ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return fmt.Errorf("%w: email is required", apperrors.ErrInvalidRequest)
	}
	if !strings.Contains(email, "@") || !strings.Contains(email, ".") {
		return fmt.Errorf("%w: invalid email format", apperrors.ErrInvalidRequest)
	}
	return nil
}

// ValidateUserCredentials validates login and registration credentials.
// Password policy is left to the provider.
func (v *Validator) ValidateUserCredentials(email, password string) error {
	if err := v.ValidateEmail(email); err != nil {
		return err
	}
	if password == "" {
		return fmt.Errorf("%w: password is required", apperrors.ErrInvalidRequest)
	}
	return nil
}

// ValidateConfirmation validates a confirm-registration request
func (v *Validator) ValidateConfirmation(email, code string) error {
	if err := v.ValidateEmail(email); err != nil {
		return err
	}
	if strings.TrimSpace(code) == "" {
		return fmt.Errorf("%w: confirmation code is required", apperrors.ErrInvalidRequest)
	}
	return nil
}

// ValidateRedirectOrigin validates the front-end origin a redirect target maps to
func ValidateRedirectOrigin(origin string) error {
	origin = strings.TrimSpace(origin)
	if origin == "" {
		return fmt.Errorf("redirect origin is required")
	}

	u, err := url.Parse(origin)
	if err != nil {
		return fmt.Errorf("invalid redirect origin: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("redirect origin must use http or https scheme")
	}
	if u.Host == "" {
		return fmt.Errorf("redirect origin must have a host")
	}
	if u.Fragment != "" || strings.Contains(origin, "#") {
		return fmt.Errorf("redirect origin must not contain fragments")
	}
	return nil
}
