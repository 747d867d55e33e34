// Package tokentest mints RS256-signed provider tokens for tests.
package tokentest

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	jose "github.com/go-jose/go-jose/v4"
	josejwt "github.com/go-jose/go-jose/v4/jwt"
	"github.com/stretchr/testify/require"
)

const (
	Issuer   = "https://cognito-idp.eu-west-1.amazonaws.com/eu-west-1_test"
	ClientID = "test-client"
	KeyID    = "test-key"
)

// TokenIssuer signs tokens the way the user pool does
type TokenIssuer struct {
	t      testing.TB
	key    *rsa.PrivateKey
	signer jose.Signer
	Now    func() time.Time
}

func NewIssuer(t testing.TB) *TokenIssuer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.RS256, Key: key},
		(&jose.SignerOptions{}).WithType("JWT").WithHeader("kid", KeyID),
	)
	require.NoError(t, err)

	return &TokenIssuer{t: t, key: key, signer: signer, Now: time.Now}
}

// KeySet verifies tokens minted by this issuer
func (i *TokenIssuer) KeySet() oidc.KeySet {
	return &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&i.key.PublicKey}}
}

// Sign serialises arbitrary claims
func (i *TokenIssuer) Sign(claims map[string]any) string {
	i.t.Helper()
	raw, err := josejwt.Signed(i.signer).Claims(claims).Serialize()
	require.NoError(i.t, err)
	return raw
}

// AccessToken mints a valid access token for subject, expiring after ttl.
func (i *TokenIssuer) AccessToken(subject string, ttl time.Duration) string {
	now := i.Now()
	return i.Sign(map[string]any{
		"iss":       Issuer,
		"sub":       subject,
		"client_id": ClientID,
		"token_use": "access",
		"scope":     "openid email",
		"iat":       now.Unix(),
		"exp":       now.Add(ttl).Unix(),
		"username":  subject,
	})
}

// IDToken mints an id token carrying the identity claims.
func (i *TokenIssuer) IDToken(subject, email, username string) string {
	now := i.Now()
	claims := map[string]any{
		"iss":       Issuer,
		"sub":       subject,
		"aud":       ClientID,
		"token_use": "id",
		"email":     email,
		"iat":       now.Unix(),
		"exp":       now.Add(time.Hour).Unix(),
	}
	if username != "" {
		claims["cognito:username"] = username
	}
	return i.Sign(claims)
}
