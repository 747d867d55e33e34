// Package idpfake is an in-memory user pool and hosted token endpoint for tests.
package idpfake

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
	"github.com/aws/smithy-go"
	"github.com/jrsteele09/go-session-broker/idp"
	"github.com/jrsteele09/go-session-broker/internal/tokentest"
	"github.com/jrsteele09/go-session-broker/internal/utils"
)

const (
	ClientSecret     = "test-secret"
	ConfirmationCode = "123456"
	UserPoolID       = "eu-west-1_test"
)

type fakeUser struct {
	subject   string
	email     string
	password  string
	confirmed bool
}

// FakeCognito implements idp.CognitoAPI against in-memory state. Refresh
// tokens are single use when RotateRefresh is set.
type FakeCognito struct {
	mu sync.Mutex

	Issuer        *tokentest.TokenIssuer
	TokenTTL      time.Duration
	RotateRefresh bool

	users     map[string]*fakeUser // keyed by username (email)
	refresh   map[string]string    // refresh token -> username
	codes     map[string]string    // authorization code -> username
	signedOut []string
	calls     map[string]int
	errs      map[string]error
	nextID    int
}

func New(t testing.TB) *FakeCognito {
	return &FakeCognito{
		Issuer:   tokentest.NewIssuer(t),
		TokenTTL: time.Hour,
		users:    make(map[string]*fakeUser),
		refresh:  make(map[string]string),
		codes:    make(map[string]string),
		calls:    make(map[string]int),
		errs:     make(map[string]error),
	}
}

// Config returns an idp.Config pointing at this fake
func (f *FakeCognito) Config(domain string) idp.Config {
	return idp.Config{
		Region:           "eu-west-1",
		UserPoolID:       UserPoolID,
		ClientID:         tokentest.ClientID,
		ClientSecret:     ClientSecret,
		Domain:           domain,
		RedirectURI:      "http://localhost:8080/oauth/callback",
		IdentityProvider: "Google",
		Scopes:           []string{"openid", "email", "profile"},
		Timeout:          time.Second,
	}
}

// APIError builds the error shape the AWS SDK returns for provider rejections
func APIError(code, message string) error {
	return &smithy.GenericAPIError{Code: code, Message: message, Fault: smithy.FaultClient}
}

// FailNext makes the next call of operation return err
func (f *FakeCognito) FailNext(operation string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[operation] = err
}

// Calls reports how many times operation was invoked
func (f *FakeCognito) Calls(operation string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[operation]
}

// SignedOut lists the access tokens passed to GlobalSignOut
func (f *FakeCognito) SignedOut() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.signedOut...)
}

// Seed adds a confirmed user and returns its subject
func (f *FakeCognito) Seed(email, password string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.addUser(email, password)
	u.confirmed = true
	return u.subject
}

// IssueRefreshToken mints a refresh token for an existing user
func (f *FakeCognito) IssueRefreshToken(username string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.newRefreshToken(username)
}

// RevokeRefreshTokens invalidates every refresh token held by username
func (f *FakeCognito) RevokeRefreshTokens(username string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for token, owner := range f.refresh {
		if owner == username {
			delete(f.refresh, token)
		}
	}
}

// IssueAuthorizationCode registers a federated user, if needed, and returns a
// code the token endpoint will redeem once.
func (f *FakeCognito) IssueAuthorizationCode(username, email string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[username]; !ok {
		u := f.addUser(username, "")
		u.email = email
		u.confirmed = true
	}
	f.nextID++
	code := fmt.Sprintf("code-%d", f.nextID)
	f.codes[code] = username
	return code
}

// Subject returns the subject of username, or "" when unknown
func (f *FakeCognito) Subject(username string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[username]; ok {
		return u.subject
	}
	return ""
}

func (f *FakeCognito) addUser(username, password string) *fakeUser {
	f.nextID++
	u := &fakeUser{subject: fmt.Sprintf("sub-%04d", f.nextID), email: username, password: password}
	f.users[username] = u
	return u
}

func (f *FakeCognito) newRefreshToken(username string) string {
	f.nextID++
	token := fmt.Sprintf("refresh-%d", f.nextID)
	f.refresh[token] = username
	return token
}

// begin records the call and returns an injected error, if any
func (f *FakeCognito) begin(ctx context.Context, operation string) error {
	f.calls[operation]++
	if err, ok := f.errs[operation]; ok {
		delete(f.errs, operation)
		return err
	}
	return ctx.Err()
}

func (f *FakeCognito) checkSecretHash(username string, hash *string) error {
	if utils.Value(hash) != idp.SecretHash(username, tokentest.ClientID, ClientSecret) {
		return APIError("NotAuthorizedException", "Unable to verify secret hash for client")
	}
	return nil
}

func (f *FakeCognito) tokens(u *fakeUser, username string) *types.AuthenticationResultType {
	return &types.AuthenticationResultType{
		IdToken:      utils.Ptr(f.Issuer.IDToken(u.subject, u.email, username)),
		AccessToken:  utils.Ptr(f.Issuer.AccessToken(u.subject, f.TokenTTL)),
		RefreshToken: utils.Ptr(f.newRefreshToken(username)),
		ExpiresIn:    int32(f.TokenTTL.Seconds()),
		TokenType:    utils.Ptr("Bearer"),
	}
}

func (f *FakeCognito) SignUp(ctx context.Context, params *cip.SignUpInput, _ ...func(*cip.Options)) (*cip.SignUpOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, "SignUp"); err != nil {
		return nil, err
	}
	username := utils.Value(params.Username)
	if err := f.checkSecretHash(username, params.SecretHash); err != nil {
		return nil, err
	}
	if _, ok := f.users[username]; ok {
		return nil, APIError("UsernameExistsException", "An account with the given email already exists.")
	}
	if len(utils.Value(params.Password)) < 8 {
		return nil, APIError("InvalidPasswordException", "Password did not conform with policy: Password not long enough")
	}
	u := f.addUser(username, utils.Value(params.Password))
	return &cip.SignUpOutput{UserConfirmed: false, UserSub: utils.Ptr(u.subject)}, nil
}

func (f *FakeCognito) ResendConfirmationCode(ctx context.Context, params *cip.ResendConfirmationCodeInput, _ ...func(*cip.Options)) (*cip.ResendConfirmationCodeOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, "ResendConfirmationCode"); err != nil {
		return nil, err
	}
	username := utils.Value(params.Username)
	if err := f.checkSecretHash(username, params.SecretHash); err != nil {
		return nil, err
	}
	if _, ok := f.users[username]; !ok {
		return nil, APIError("UserNotFoundException", "Username/client id combination not found.")
	}
	return &cip.ResendConfirmationCodeOutput{}, nil
}

func (f *FakeCognito) ConfirmSignUp(ctx context.Context, params *cip.ConfirmSignUpInput, _ ...func(*cip.Options)) (*cip.ConfirmSignUpOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, "ConfirmSignUp"); err != nil {
		return nil, err
	}
	username := utils.Value(params.Username)
	if err := f.checkSecretHash(username, params.SecretHash); err != nil {
		return nil, err
	}
	u, ok := f.users[username]
	if !ok {
		return nil, APIError("UserNotFoundException", "Username/client id combination not found.")
	}
	if utils.Value(params.ConfirmationCode) != ConfirmationCode {
		return nil, APIError("CodeMismatchException", "Invalid verification code provided, please try again.")
	}
	u.confirmed = true
	return &cip.ConfirmSignUpOutput{}, nil
}

func (f *FakeCognito) AdminGetUser(ctx context.Context, params *cip.AdminGetUserInput, _ ...func(*cip.Options)) (*cip.AdminGetUserOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, "AdminGetUser"); err != nil {
		return nil, err
	}
	username := utils.Value(params.Username)
	u, ok := f.users[username]
	if !ok {
		return nil, APIError("UserNotFoundException", "User does not exist.")
	}
	return &cip.AdminGetUserOutput{
		Username: utils.Ptr(username),
		UserAttributes: []types.AttributeType{
			{Name: utils.Ptr("sub"), Value: utils.Ptr(u.subject)},
			{Name: utils.Ptr("email"), Value: utils.Ptr(u.email)},
		},
		Enabled: true,
	}, nil
}

func (f *FakeCognito) InitiateAuth(ctx context.Context, params *cip.InitiateAuthInput, _ ...func(*cip.Options)) (*cip.InitiateAuthOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, "InitiateAuth"); err != nil {
		return nil, err
	}

	switch params.AuthFlow {
	case types.AuthFlowTypeUserPasswordAuth:
		username := params.AuthParameters["USERNAME"]
		if err := f.checkSecretHash(username, utils.Ptr(params.AuthParameters["SECRET_HASH"])); err != nil {
			return nil, err
		}
		u, ok := f.users[username]
		if !ok || u.password == "" || u.password != params.AuthParameters["PASSWORD"] {
			return nil, APIError("NotAuthorizedException", "Incorrect username or password.")
		}
		if !u.confirmed {
			return nil, APIError("UserNotConfirmedException", "User is not confirmed.")
		}
		return &cip.InitiateAuthOutput{AuthenticationResult: f.tokens(u, username)}, nil

	case types.AuthFlowTypeRefreshTokenAuth:
		token := params.AuthParameters["REFRESH_TOKEN"]
		username, ok := f.refresh[token]
		if !ok {
			return nil, APIError("NotAuthorizedException", "Invalid Refresh Token")
		}
		if err := f.checkSecretHash(username, utils.Ptr(params.AuthParameters["SECRET_HASH"])); err != nil {
			return nil, err
		}
		result := f.tokens(f.users[username], username)
		if f.RotateRefresh {
			delete(f.refresh, token)
		} else {
			delete(f.refresh, utils.Value(result.RefreshToken))
			result.RefreshToken = nil
		}
		return &cip.InitiateAuthOutput{AuthenticationResult: result}, nil
	}
	return nil, APIError("InvalidParameterException", "Unsupported auth flow")
}

func (f *FakeCognito) GlobalSignOut(ctx context.Context, params *cip.GlobalSignOutInput, _ ...func(*cip.Options)) (*cip.GlobalSignOutOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, "GlobalSignOut"); err != nil {
		return nil, err
	}
	f.signedOut = append(f.signedOut, utils.Value(params.AccessToken))
	return &cip.GlobalSignOutOutput{}, nil
}

// TokenHandler serves the hosted /oauth2/token endpoint for the
// authorization_code grant.
func (f *FakeCognito) TokenHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		clientID, secret, ok := r.BasicAuth()
		if !ok || clientID != tokentest.ClientID || secret != ClientSecret {
			writeTokenError(w, http.StatusUnauthorized, "invalid_client")
			return
		}
		if err := r.ParseForm(); err != nil || r.PostForm.Get("grant_type") != "authorization_code" {
			writeTokenError(w, http.StatusBadRequest, "unsupported_grant_type")
			return
		}

		f.mu.Lock()
		defer f.mu.Unlock()
		f.calls["Token"]++
		code := r.PostForm.Get("code")
		username, ok := f.codes[code]
		if !ok {
			writeTokenError(w, http.StatusBadRequest, "invalid_grant")
			return
		}
		delete(f.codes, code)

		result := f.tokens(f.users[username], username)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id_token":      utils.Value(result.IdToken),
			"access_token":  utils.Value(result.AccessToken),
			"refresh_token": utils.Value(result.RefreshToken),
			"token_type":    "Bearer",
			"expires_in":    result.ExpiresIn,
		})
	})
	return mux
}

func writeTokenError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code})
}
