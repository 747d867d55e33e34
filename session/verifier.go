package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
)

// AccessClaims are the verified claims of an access token
type AccessClaims struct {
	Subject  string
	ClientID string
	Username string
	Scope    string
	Expiry   time.Time
}

// TokenVerifier checks an access token against the provider's keys
type TokenVerifier interface {
	VerifyAccessToken(ctx context.Context, raw string) (AccessClaims, error)
}

// OIDCVerifier verifies provider access tokens with a JWKS key set.
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
	clientID string
}

// NewOIDCVerifier builds a verifier that fetches and caches keys from jwksURL.
// Key fetches use an HTTP client bounded by timeout.
func NewOIDCVerifier(ctx context.Context, issuer, jwksURL, clientID string, timeout time.Duration) *OIDCVerifier {
	if timeout <= 0 {
		timeout = DefaultVerifyTimeout
	}
	ctx = oidc.ClientContext(ctx, &http.Client{Timeout: timeout})
	return NewOIDCVerifierWithKeySet(oidc.NewRemoteKeySet(ctx, jwksURL), issuer, clientID)
}

// NewOIDCVerifierWithKeySet verifies against an existing key set.
func NewOIDCVerifierWithKeySet(keySet oidc.KeySet, issuer, clientID string) *OIDCVerifier {
	// Access tokens carry client_id instead of aud.
	v := oidc.NewVerifier(issuer, keySet, &oidc.Config{SkipClientIDCheck: true})
	return &OIDCVerifier{verifier: v, clientID: clientID}
}

func (v *OIDCVerifier) VerifyAccessToken(ctx context.Context, raw string) (AccessClaims, error) {
	token, err := v.verifier.Verify(ctx, raw)
	if err != nil {
		return AccessClaims{}, fmt.Errorf("verifying access token: %w", err)
	}

	var claims struct {
		TokenUse string `json:"token_use"`
		ClientID string `json:"client_id"`
		Username string `json:"username"`
		Scope    string `json:"scope"`
	}
	if err := token.Claims(&claims); err != nil {
		return AccessClaims{}, fmt.Errorf("reading access token claims: %w", err)
	}
	if claims.TokenUse != "access" {
		return AccessClaims{}, fmt.Errorf("unexpected token_use %q", claims.TokenUse)
	}
	if claims.ClientID != v.clientID {
		return AccessClaims{}, fmt.Errorf("access token issued to client %q", claims.ClientID)
	}
	if token.Subject == "" {
		return AccessClaims{}, errors.New("access token has no subject")
	}

	return AccessClaims{
		Subject:  token.Subject,
		ClientID: claims.ClientID,
		Username: claims.Username,
		Scope:    claims.Scope,
		Expiry:   token.Expiry,
	}, nil
}
