package auth

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jrsteele09/go-session-broker/idp"
	apperrors "github.com/jrsteele09/go-session-broker/internal/errors"
	"github.com/jrsteele09/go-session-broker/session"
	"github.com/jrsteele09/go-session-broker/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Coordinator runs the federated authorization-code flow. The state parameter
// carries the redirect target (e.g. "admin" or "client") that started it.
type Coordinator struct {
	idp         IdentityProvider
	cookies     *session.CookieManager
	provisioner *Provisioner
	targets     map[string]string // target name to front-end origin
}

func NewCoordinator(provider IdentityProvider, cookies *session.CookieManager, provisioner *Provisioner, targets map[string]string) (*Coordinator, error) {
	if provider == nil || cookies == nil || provisioner == nil {
		return nil, errors.New("[NewCoordinator] identity provider, cookie manager and provisioner are required")
	}
	if len(targets) == 0 {
		return nil, errors.New("[NewCoordinator] at least one redirect target is required")
	}
	for name, origin := range targets {
		if err := ValidateRedirectOrigin(origin); err != nil {
			return nil, errors.Wrapf(err, "[NewCoordinator] redirect target %q", name)
		}
	}
	return &Coordinator{
		idp:         provider,
		cookies:     cookies,
		provisioner: provisioner,
		targets:     targets,
	}, nil
}

// TargetOrigin returns the front-end origin for a redirect target
func (c *Coordinator) TargetOrigin(target string) (string, bool) {
	origin, ok := c.targets[target]
	return origin, ok
}

// BuildAuthorizationURL returns the hosted authorize URL for target.
func (c *Coordinator) BuildAuthorizationURL(target string) (string, error) {
	if _, ok := c.targets[target]; !ok {
		return "", fmt.Errorf("%w: %q", apperrors.ErrInvalidTarget, target)
	}
	return c.idp.AuthCodeURL(target), nil
}

// HandleCallback completes the flow: exchange the code, provision the
// profile, issue the session cookies and return the target from state.
func (c *Coordinator) HandleCallback(ctx context.Context, w http.ResponseWriter, code, state, providerErr string) (string, *users.User, error) {
	if providerErr != "" {
		return "", nil, fmt.Errorf("[HandleCallback] %w: provider returned %s", apperrors.ErrAuthentication, providerErr)
	}
	if code == "" {
		return "", nil, fmt.Errorf("[HandleCallback] %w: missing authorization code", apperrors.ErrAuthentication)
	}
	if _, ok := c.targets[state]; !ok {
		return "", nil, fmt.Errorf("[HandleCallback] %w: %q", apperrors.ErrInvalidTarget, state)
	}

	tokens, err := c.idp.ExchangeAuthorizationCode(ctx, code)
	if err != nil {
		return "", nil, errors.Wrap(err, "[HandleCallback]")
	}

	claims, err := idp.DecodeIDToken(tokens.IDToken)
	if err != nil {
		return "", nil, errors.Wrap(err, "[HandleCallback]")
	}

	user, err := c.provisioner.GetOrCreate(ctx, claims.Subject, claims.Email)
	if err != nil {
		return "", nil, errors.Wrap(err, "[HandleCallback]")
	}

	c.cookies.Issue(w, tokens, claims.Username)
	log.Debug().Str("user_id", user.ID).Str("target", state).Msg("Federated sign-in complete")
	return state, user, nil
}
