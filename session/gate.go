package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jrsteele09/go-session-broker/idp"
	apperrors "github.com/jrsteele09/go-session-broker/internal/errors"
	"github.com/jrsteele09/go-session-broker/internal/metrics"
	"github.com/jrsteele09/go-session-broker/users"
	"github.com/rs/zerolog/log"
)

// Refresher trades a refresh token for a new token set
type Refresher interface {
	Refresh(ctx context.Context, username, refreshToken string) (idp.TokenSet, error)
}

// Gate resolves the principal of a request from its session cookies,
// refreshing the tokens silently when the access token is missing or stale.
//
// A refresh is attempted at most once per request and never retried. When
// two requests race on the same single-use refresh token the loser fails
// closed with ErrUnauthenticated.
type Gate struct {
	verifier      TokenVerifier
	refresher     Refresher
	cookies       *CookieManager
	users         users.UserRepo
	metrics       *metrics.Recorder
	verifyTimeout time.Duration
}

// DefaultVerifyTimeout bounds one access-token verification, including any
// key-set fetch it triggers.
const DefaultVerifyTimeout = 10 * time.Second

type GateOption func(*Gate)

// WithVerifyTimeout sets the limit on a single access-token verification
func WithVerifyTimeout(d time.Duration) GateOption {
	return func(g *Gate) {
		if d > 0 {
			g.verifyTimeout = d
		}
	}
}

func NewGate(verifier TokenVerifier, refresher Refresher, cookies *CookieManager, repo users.UserRepo, m *metrics.Recorder, opts ...GateOption) *Gate {
	g := &Gate{
		verifier:      verifier,
		refresher:     refresher,
		cookies:       cookies,
		users:         repo,
		metrics:       m,
		verifyTimeout: DefaultVerifyTimeout,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Authenticate returns the local user behind the request's session. New
// session cookies are written to w only after a successful refresh whose
// access token verifies.
func (g *Gate) Authenticate(ctx context.Context, w http.ResponseWriter, r *http.Request) (*users.User, error) {
	snap := ReadSnapshot(r)
	state := Classify(snap)

	switch state {
	case ActiveAccess:
		claims, err := g.verify(ctx, snap.AccessToken)
		if err == nil {
			return g.principal(ctx, claims, metrics.OutcomeActive)
		}
		if !snap.CanRefresh() {
			return nil, g.unauthenticated("access token rejected: %v", err)
		}
		log.Debug().Err(err).Msg("Access token rejected, attempting refresh")
		return g.refresh(ctx, w, snap)

	case RefreshableOnly:
		return g.refresh(ctx, w, snap)

	default:
		return nil, g.unauthenticated("session state %s", state)
	}
}

func (g *Gate) refresh(ctx context.Context, w http.ResponseWriter, snap Snapshot) (*users.User, error) {
	tokens, err := g.refresher.Refresh(ctx, snap.Username, snap.RefreshToken)
	if err != nil {
		return nil, g.unauthenticated("refresh failed: %v", err)
	}

	claims, err := g.verify(ctx, tokens.AccessToken)
	if err != nil {
		log.Error().Err(err).Str("username", snap.Username).Msg("Refreshed access token failed verification")
		return nil, g.unauthenticated("refreshed access token rejected: %v", err)
	}

	g.cookies.Issue(w, tokens, snap.Username)
	return g.principal(ctx, claims, metrics.OutcomeRefreshed)
}

func (g *Gate) verify(ctx context.Context, raw string) (AccessClaims, error) {
	ctx, cancel := context.WithTimeout(ctx, g.verifyTimeout)
	defer cancel()
	return g.verifier.VerifyAccessToken(ctx, raw)
}

func (g *Gate) principal(ctx context.Context, claims AccessClaims, outcome string) (*users.User, error) {
	user, err := g.users.FindByExternalID(ctx, claims.Subject)
	if errors.Is(err, users.ErrNotFound) {
		g.metrics.Verification(metrics.OutcomePrincipalNotFound)
		return nil, fmt.Errorf("%w: subject %s", apperrors.ErrPrincipalNotFound, claims.Subject)
	}
	if err != nil {
		g.metrics.Verification(metrics.OutcomeError)
		return nil, apperrors.Wrapf(err, "looking up principal")
	}

	g.metrics.Verification(outcome)
	return user, nil
}

func (g *Gate) unauthenticated(format string, args ...any) error {
	g.metrics.Verification(metrics.OutcomeUnauthenticated)
	return fmt.Errorf("%w: %s", apperrors.ErrUnauthenticated, fmt.Sprintf(format, args...))
}
