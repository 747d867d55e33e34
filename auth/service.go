// Package auth holds the credential and federated sign-in flows that create a
// cookie-carried session.
package auth

import (
	"context"
	"net/http"

	"github.com/jrsteele09/go-session-broker/idp"
	"github.com/jrsteele09/go-session-broker/session"
	"github.com/jrsteele09/go-session-broker/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// IdentityProvider is the subset of *idp.Client the flows depend on
type IdentityProvider interface {
	Register(ctx context.Context, email, password string) error
	ResendConfirmationCode(ctx context.Context, email string) error
	ConfirmRegistration(ctx context.Context, email, code string) (idp.ExternalIdentity, error)
	PasswordLogin(ctx context.Context, email, password string) (idp.TokenSet, idp.IDTokenClaims, error)
	ExchangeAuthorizationCode(ctx context.Context, code string) (idp.TokenSet, error)
	AuthCodeURL(state string) string
	GlobalSignOut(ctx context.Context, accessToken string) error
}

var _ IdentityProvider = (*idp.Client)(nil)

// Service runs the password flows and logout.
type Service struct {
	idp         IdentityProvider
	cookies     *session.CookieManager
	provisioner *Provisioner
	validator   *Validator
}

func NewService(provider IdentityProvider, cookies *session.CookieManager, provisioner *Provisioner) (*Service, error) {
	if provider == nil {
		return nil, errors.New("[NewService] identity provider is required")
	}
	if cookies == nil {
		return nil, errors.New("[NewService] cookie manager is required")
	}
	if provisioner == nil {
		return nil, errors.New("[NewService] provisioner is required")
	}
	return &Service{
		idp:         provider,
		cookies:     cookies,
		provisioner: provisioner,
		validator:   NewValidator(),
	}, nil
}

// Register starts sign-up; the provider emails a confirmation code.
func (s *Service) Register(ctx context.Context, email, password string) error {
	if err := s.validator.ValidateUserCredentials(email, password); err != nil {
		return errors.Wrap(err, "[Register]")
	}
	return errors.Wrap(s.idp.Register(ctx, email, password), "[Register]")
}

func (s *Service) ResendConfirmationCode(ctx context.Context, email string) error {
	if err := s.validator.ValidateEmail(email); err != nil {
		return errors.Wrap(err, "[ResendConfirmationCode]")
	}
	return errors.Wrap(s.idp.ResendConfirmationCode(ctx, email), "[ResendConfirmationCode]")
}

// ConfirmRegistration confirms the account and provisions its local profile.
func (s *Service) ConfirmRegistration(ctx context.Context, email, code string) (*users.User, error) {
	if err := s.validator.ValidateConfirmation(email, code); err != nil {
		return nil, errors.Wrap(err, "[ConfirmRegistration]")
	}

	identity, err := s.idp.ConfirmRegistration(ctx, email, code)
	if err != nil {
		return nil, errors.Wrap(err, "[ConfirmRegistration]")
	}

	user, err := s.provisioner.GetOrCreate(ctx, identity.Subject, identity.Email)
	if err != nil {
		return nil, errors.Wrap(err, "[ConfirmRegistration]")
	}
	return user, nil
}

// Login authenticates with email and password and issues the session cookies.
// It does not provision: a password account gets its profile on confirmation.
func (s *Service) Login(ctx context.Context, w http.ResponseWriter, email, password string) (idp.IDTokenClaims, error) {
	if err := s.validator.ValidateUserCredentials(email, password); err != nil {
		return idp.IDTokenClaims{}, errors.Wrap(err, "[Login]")
	}

	tokens, claims, err := s.idp.PasswordLogin(ctx, email, password)
	if err != nil {
		return idp.IDTokenClaims{}, errors.Wrap(err, "[Login]")
	}

	s.cookies.Issue(w, tokens, claims.Username)
	return claims, nil
}

// Logout revokes the user's tokens at the provider when possible and always
// clears the session cookies. A failed remote sign-out is logged, not returned.
func (s *Service) Logout(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	if snap := session.ReadSnapshot(r); snap.AccessToken != "" {
		if err := s.idp.GlobalSignOut(ctx, snap.AccessToken); err != nil {
			log.Warn().Err(err).Msg("Failed to revoke tokens at identity provider")
		}
	}
	s.cookies.Clear(w, r)
}
