package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	apperrors "github.com/jrsteele09/go-session-broker/internal/errors"
	"github.com/jrsteele09/go-session-broker/users"
	"github.com/rs/zerolog/log"
)

const (
	contentTypeJSON = "application/json; charset=utf-8"
	maxBodyBytes    = 1 << 20
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type confirmRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type statusResponse struct {
	Status string `json:"status"`
}

type loginResponse struct {
	Subject  string `json:"subject"`
	Email    string `json:"email,omitempty"`
	Username string `json:"username"`
}

type profileResponse struct {
	ID                string         `json:"id"`
	ExternalSubjectID string         `json:"externalSubjectId"`
	Email             string         `json:"email,omitempty"`
	Role              users.RoleType `json:"role"`
	CreatedAt         time.Time      `json:"createdAt"`
}

func newProfileResponse(u *users.User) profileResponse {
	return profileResponse{
		ID:                u.ID,
		ExternalSubjectID: u.ExternalSubjectID,
		Email:             u.Email,
		Role:              u.Role,
		CreatedAt:         u.CreatedAt,
	}
}

// RegisterHandler starts a password sign-up
func (s *Server) RegisterHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req credentialsRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, err)
			return
		}
		if err := s.auth.Register(r.Context(), req.Email, req.Password); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, statusResponse{Status: "confirmation_required"})
	}
}

func (s *Server) ResendConfirmCodeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req emailRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, err)
			return
		}
		if err := s.auth.ResendConfirmationCode(r.Context(), req.Email); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, statusResponse{Status: "code_sent"})
	}
}

// ConfirmRegisterHandler confirms a sign-up and returns the new local profile
func (s *Server) ConfirmRegisterHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req confirmRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, err)
			return
		}
		user, err := s.auth.ConfirmRegistration(r.Context(), req.Email, req.Code)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, newProfileResponse(user))
	}
}

// LoginHandler authenticates with email and password and sets the session cookies
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req credentialsRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, err)
			return
		}
		claims, err := s.auth.Login(r.Context(), w, req.Email, req.Password)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, loginResponse{Subject: claims.Subject, Email: claims.Email, Username: claims.Username})
	}
}

// LogoutHandler always succeeds locally, even when the provider sign-out fails
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.auth.Logout(r.Context(), w, r)
		writeJSON(w, http.StatusOK, statusResponse{Status: "logged_out"})
	}
}

// MeHandler returns the principal attached by RequireSession
func (s *Server) MeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := PrincipalFromContext(r.Context())
		if !ok {
			writeError(w, apperrors.ErrUnauthenticated)
			return
		}
		writeJSON(w, http.StatusOK, newProfileResponse(user))
	}
}

func (s *Server) PreflightHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: malformed JSON body: %v", apperrors.ErrInvalidRequest, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Err(err).Msg("Failed to encode response")
	}
}

// writeJSONError writes an OAuth2 style error response
func writeJSONError(w http.ResponseWriter, errorCode, description string, statusCode int) {
	writeJSON(w, statusCode, map[string]string{
		"error":             errorCode,
		"error_description": description,
	})
}

// writeError maps err onto its status and error code. Server errors are
// logged and their detail withheld.
func writeError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		log.Err(err).Msg("Request failed")
	}
	writeJSONError(w, apperrors.Code(err), errorDescription(err, status), status)
}

var describedErrors = []error{
	apperrors.ErrForbidden,
	apperrors.ErrPrincipalNotFound,
	apperrors.ErrUnauthenticated,
	apperrors.ErrAuthentication,
	apperrors.ErrInvalidTarget,
	apperrors.ErrNotFound,
}

func errorDescription(err error, status int) string {
	var idpErr *apperrors.IdentityProviderError
	switch {
	case errors.As(err, &idpErr):
		if idpErr.Message != "" {
			return idpErr.Message
		}
		return idpErr.Code
	case status >= http.StatusInternalServerError:
		return "internal server error"
	case errors.Is(err, apperrors.ErrInvalidRequest):
		return err.Error()
	}
	for _, sentinel := range describedErrors {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return http.StatusText(status)
}
