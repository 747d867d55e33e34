package idp

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	apperrors "github.com/jrsteele09/go-session-broker/internal/errors"
	"github.com/jrsteele09/go-session-broker/internal/utils"
)

// TokenSet is the id/access/refresh triple issued by the provider.
type TokenSet struct {
	IDToken      string
	AccessToken  string
	RefreshToken string
}

// Complete reports whether all three tokens are present
func (t TokenSet) Complete() bool {
	return t.IDToken != "" && t.AccessToken != "" && t.RefreshToken != ""
}

// ExternalIdentity describes a user as the provider knows them
type ExternalIdentity struct {
	Subject  string // Stable subject (sub)
	Email    string
	Username string // Provider username, needed to compute the secret hash on refresh
}

// IDTokenClaims are the identity claims read from an id token
type IDTokenClaims struct {
	Subject  string
	Email    string
	Username string
}

// DecodeIDToken reads the claims of an id token without verifying its
// signature. It is only used on tokens received directly from the provider's
// token endpoint over TLS.
func DecodeIDToken(raw string) (IDTokenClaims, error) {
	token, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return IDTokenClaims{}, fmt.Errorf("%w: decoding id token: %w", apperrors.ErrAuthentication, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return IDTokenClaims{}, fmt.Errorf("%w: error extracting id token claims", apperrors.ErrAuthentication)
	}

	sub, _ := claims["sub"].(string)
	email, _ := claims["email"].(string)
	username, _ := claims["cognito:username"].(string)
	if sub == "" {
		return IDTokenClaims{}, fmt.Errorf("%w: %w", apperrors.ErrAuthentication, errors.New("id token has no subject"))
	}
	return IDTokenClaims{Subject: sub, Email: email, Username: utils.FirstNonEmpty(username, sub)}, nil
}
