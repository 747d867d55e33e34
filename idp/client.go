// Package idp is the client for the hosted identity provider: a Cognito user
// pool plus its hosted OAuth domain.
package idp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
	apperrors "github.com/jrsteele09/go-session-broker/internal/errors"
	"github.com/jrsteele09/go-session-broker/internal/metrics"
	"github.com/jrsteele09/go-session-broker/internal/utils"
	"golang.org/x/oauth2"
)

const defaultTimeout = 10 * time.Second

// CognitoAPI is the subset of the user pool API used by Client
type CognitoAPI interface {
	SignUp(ctx context.Context, params *cip.SignUpInput, optFns ...func(*cip.Options)) (*cip.SignUpOutput, error)
	ResendConfirmationCode(ctx context.Context, params *cip.ResendConfirmationCodeInput, optFns ...func(*cip.Options)) (*cip.ResendConfirmationCodeOutput, error)
	ConfirmSignUp(ctx context.Context, params *cip.ConfirmSignUpInput, optFns ...func(*cip.Options)) (*cip.ConfirmSignUpOutput, error)
	InitiateAuth(ctx context.Context, params *cip.InitiateAuthInput, optFns ...func(*cip.Options)) (*cip.InitiateAuthOutput, error)
	GlobalSignOut(ctx context.Context, params *cip.GlobalSignOutInput, optFns ...func(*cip.Options)) (*cip.GlobalSignOutOutput, error)
	AdminGetUser(ctx context.Context, params *cip.AdminGetUserInput, optFns ...func(*cip.Options)) (*cip.AdminGetUserOutput, error)
}

// Config describes the user pool and app client
type Config struct {
	Region           string
	UserPoolID       string
	ClientID         string
	ClientSecret     string
	Domain           string // Hosted OAuth domain, with or without scheme
	RedirectURI      string
	IdentityProvider string // Federated provider alias, e.g. Google
	Scopes           []string
	Timeout          time.Duration
	HTTPClient       *http.Client // Used for the token endpoint; nil means http.DefaultClient
}

// Client performs every call the broker makes to the identity provider
type Client struct {
	api     CognitoAPI
	cfg     Config
	signer  *Signer
	oauth   *oauth2.Config
	metrics *metrics.Recorder
}

type Option func(*Client)

// WithMetrics counts provider calls on the given recorder
func WithMetrics(m *metrics.Recorder) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// New loads AWS configuration for cfg.Region and builds a client for the pool.
func New(ctx context.Context, cfg Config, opts ...Option) (*Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	return NewWithAPI(cip.NewFromConfig(awsCfg), cfg, opts...)
}

// NewWithAPI builds a client over an existing API implementation.
func NewWithAPI(api CognitoAPI, cfg Config, opts ...Option) (*Client, error) {
	if api == nil {
		return nil, errors.New("idp client requires a user pool api")
	}
	signer, err := NewSigner(cfg.ClientID, cfg.ClientSecret)
	if err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	base := hostedBaseURL(cfg.Domain)
	c := &Client{
		api:    api,
		cfg:    cfg,
		signer: signer,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   base + "/oauth2/authorize",
				TokenURL:  base + "/oauth2/token",
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func hostedBaseURL(domain string) string {
	domain = strings.TrimRight(domain, "/")
	if strings.HasPrefix(domain, "http://") || strings.HasPrefix(domain, "https://") {
		return domain
	}
	return "https://" + domain
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.cfg.Timeout)
}

// Register creates an unconfirmed account; the provider emails a confirmation code.
func (c *Client) Register(ctx context.Context, email, password string) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	_, err := c.api.SignUp(ctx, &cip.SignUpInput{
		ClientId:   aws.String(c.cfg.ClientID),
		Username:   aws.String(email),
		Password:   aws.String(password),
		SecretHash: aws.String(c.signer.Hash(email)),
		UserAttributes: []types.AttributeType{
			{Name: aws.String("email"), Value: aws.String(email)},
		},
	})
	c.metrics.IdPCall("sign_up", err)
	if err != nil {
		return providerError("sign up", err)
	}
	return nil
}

func (c *Client) ResendConfirmationCode(ctx context.Context, email string) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	_, err := c.api.ResendConfirmationCode(ctx, &cip.ResendConfirmationCodeInput{
		ClientId:   aws.String(c.cfg.ClientID),
		Username:   aws.String(email),
		SecretHash: aws.String(c.signer.Hash(email)),
	})
	c.metrics.IdPCall("resend_confirmation_code", err)
	if err != nil {
		return providerError("resend confirmation code", err)
	}
	return nil
}

// ConfirmRegistration confirms the account with the emailed code and returns
// the identity the provider now holds for it.
func (c *Client) ConfirmRegistration(ctx context.Context, email, code string) (ExternalIdentity, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	_, err := c.api.ConfirmSignUp(ctx, &cip.ConfirmSignUpInput{
		ClientId:         aws.String(c.cfg.ClientID),
		Username:         aws.String(email),
		ConfirmationCode: aws.String(code),
		SecretHash:       aws.String(c.signer.Hash(email)),
	})
	c.metrics.IdPCall("confirm_sign_up", err)
	if err != nil {
		return ExternalIdentity{}, providerError("confirm sign up", err)
	}

	return c.getUser(ctx, email)
}

// GetUser looks up a user in the pool by username.
func (c *Client) GetUser(ctx context.Context, username string) (ExternalIdentity, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	return c.getUser(ctx, username)
}

func (c *Client) getUser(ctx context.Context, username string) (ExternalIdentity, error) {
	out, err := c.api.AdminGetUser(ctx, &cip.AdminGetUserInput{
		UserPoolId: aws.String(c.cfg.UserPoolID),
		Username:   aws.String(username),
	})
	c.metrics.IdPCall("admin_get_user", err)
	if err != nil {
		return ExternalIdentity{}, providerError("get user", err)
	}

	identity := ExternalIdentity{Username: utils.FirstNonEmpty(utils.Value(out.Username), username)}
	for _, attr := range out.UserAttributes {
		switch utils.Value(attr.Name) {
		case "sub":
			identity.Subject = utils.Value(attr.Value)
		case "email":
			identity.Email = utils.Value(attr.Value)
		}
	}
	if identity.Subject == "" {
		return ExternalIdentity{}, providerError("get user", errors.New("user has no sub attribute"))
	}
	return identity, nil
}

// PasswordLogin authenticates with email and password and returns the tokens
// with the id-token claims. Claims.Username is the provider username used for
// later refreshes.
func (c *Client) PasswordLogin(ctx context.Context, email, password string) (TokenSet, IDTokenClaims, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	out, err := c.api.InitiateAuth(ctx, &cip.InitiateAuthInput{
		AuthFlow: types.AuthFlowTypeUserPasswordAuth,
		ClientId: aws.String(c.cfg.ClientID),
		AuthParameters: map[string]string{
			"USERNAME":    email,
			"PASSWORD":    password,
			"SECRET_HASH": c.signer.Hash(email),
		},
	})
	c.metrics.IdPCall("password_login", err)
	if err != nil {
		return TokenSet{}, IDTokenClaims{}, authError("password login", err)
	}
	if out.ChallengeName != "" {
		return TokenSet{}, IDTokenClaims{}, fmt.Errorf("password login: %w: challenge %s required", apperrors.ErrAuthentication, out.ChallengeName)
	}

	tokens := tokenSetFrom(out.AuthenticationResult)
	if !tokens.Complete() {
		return TokenSet{}, IDTokenClaims{}, fmt.Errorf("password login: %w: incomplete token set", apperrors.ErrAuthentication)
	}

	claims, err := DecodeIDToken(tokens.IDToken)
	if err != nil {
		return TokenSet{}, IDTokenClaims{}, fmt.Errorf("password login: %w", err)
	}
	return tokens, claims, nil
}

// Refresh trades a refresh token for new id and access tokens. The provider
// may not rotate the refresh token; the old one is kept in that case.
func (c *Client) Refresh(ctx context.Context, username, refreshToken string) (TokenSet, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	out, err := c.api.InitiateAuth(ctx, &cip.InitiateAuthInput{
		AuthFlow: types.AuthFlowTypeRefreshTokenAuth,
		ClientId: aws.String(c.cfg.ClientID),
		AuthParameters: map[string]string{
			"REFRESH_TOKEN": refreshToken,
			"SECRET_HASH":   c.signer.Hash(username),
		},
	})
	c.metrics.IdPCall("refresh", err)
	if err != nil {
		return TokenSet{}, authError("refresh", err)
	}

	tokens := tokenSetFrom(out.AuthenticationResult)
	if tokens.IDToken == "" || tokens.AccessToken == "" {
		return TokenSet{}, fmt.Errorf("refresh: %w: incomplete token set", apperrors.ErrAuthentication)
	}
	if tokens.RefreshToken == "" {
		tokens.RefreshToken = refreshToken
	}
	return tokens, nil
}

// AuthCodeURL builds the hosted authorize URL for the federated provider.
func (c *Client) AuthCodeURL(state string) string {
	var opts []oauth2.AuthCodeOption
	if c.cfg.IdentityProvider != "" {
		opts = append(opts, oauth2.SetAuthURLParam("identity_provider", c.cfg.IdentityProvider))
	}
	return c.oauth.AuthCodeURL(state, opts...)
}

// ExchangeAuthorizationCode redeems an authorization code at the hosted token
// endpoint using HTTP Basic client authentication.
func (c *Client) ExchangeAuthorizationCode(ctx context.Context, code string) (TokenSet, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	if c.cfg.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, c.cfg.HTTPClient)
	}

	token, err := c.oauth.Exchange(ctx, code)
	c.metrics.IdPCall("exchange_code", err)
	if err != nil {
		return TokenSet{}, authError("exchange code", err)
	}

	idToken, _ := token.Extra("id_token").(string)
	tokens := TokenSet{
		IDToken:      idToken,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
	}
	if !tokens.Complete() {
		return TokenSet{}, fmt.Errorf("exchange code: %w: incomplete token set", apperrors.ErrAuthentication)
	}
	return tokens, nil
}

// GlobalSignOut revokes every token issued to the user owning accessToken.
func (c *Client) GlobalSignOut(ctx context.Context, accessToken string) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	_, err := c.api.GlobalSignOut(ctx, &cip.GlobalSignOutInput{AccessToken: aws.String(accessToken)})
	c.metrics.IdPCall("global_sign_out", err)
	if err != nil {
		return providerError("global sign out", err)
	}
	return nil
}

func tokenSetFrom(result *types.AuthenticationResultType) TokenSet {
	if result == nil {
		return TokenSet{}
	}
	return TokenSet{
		IDToken:      utils.Value(result.IdToken),
		AccessToken:  utils.Value(result.AccessToken),
		RefreshToken: utils.Value(result.RefreshToken),
	}
}
