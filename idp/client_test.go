package idp_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/jrsteele09/go-session-broker/idp"
	"github.com/jrsteele09/go-session-broker/idp/idpfake"
	apperrors "github.com/jrsteele09/go-session-broker/internal/errors"
	"github.com/jrsteele09/go-session-broker/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T) (*idp.Client, *idpfake.FakeCognito) {
	t.Helper()
	fake := idpfake.New(t)
	srv := httptest.NewServer(fake.TokenHandler())
	t.Cleanup(srv.Close)

	cfg := fake.Config(srv.URL)
	cfg.HTTPClient = srv.Client()
	client, err := idp.NewWithAPI(fake, cfg)
	require.NoError(t, err)
	return client, fake
}

func TestNewWithAPIValidation(t *testing.T) {
	fake := idpfake.New(t)
	cfg := fake.Config("auth.example.com")

	_, err := idp.NewWithAPI(nil, cfg)
	require.Error(t, err)

	cfg.ClientSecret = ""
	_, err = idp.NewWithAPI(fake, cfg)
	require.Error(t, err)
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	client, _ := newClient(t)

	require.NoError(t, client.Register(ctx, "new@example.com", "Password1!"))

	tests := []struct {
		name     string
		email    string
		password string
		status   int
		code     string
	}{
		{"duplicate", "new@example.com", "Password1!", http.StatusConflict, "UsernameExistsException"},
		{"weak password", "other@example.com", "short", http.StatusBadRequest, "InvalidPasswordException"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := client.Register(ctx, tc.email, tc.password)
			require.ErrorIs(t, err, apperrors.ErrIdentityProvider)

			var idpErr *apperrors.IdentityProviderError
			require.ErrorAs(t, err, &idpErr)
			assert.Equal(t, tc.code, idpErr.Code)
			assert.Equal(t, tc.status, apperrors.HTTPStatus(err))
		})
	}
}

func TestRegisterProviderErrorMapping(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"alias exists", idpfake.APIError("AliasExistsException", "exists"), http.StatusConflict},
		{"throttled", idpfake.APIError("TooManyRequestsException", "slow down"), http.StatusTooManyRequests},
		{"limit", idpfake.APIError("LimitExceededException", "limit"), http.StatusTooManyRequests},
		{"unknown code", idpfake.APIError("InternalErrorException", "oops"), http.StatusBadRequest},
		{"transport", errors.New("connection reset"), http.StatusBadGateway},
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client, fake := newClient(t)
			fake.FailNext("SignUp", tc.err)
			err := client.Register(ctx, "a@example.com", "Password1!")
			require.ErrorIs(t, err, apperrors.ErrIdentityProvider)
			assert.Equal(t, tc.status, apperrors.HTTPStatus(err))
		})
	}
}

type slowSignUp struct {
	*idpfake.FakeCognito
}

func (s slowSignUp) SignUp(ctx context.Context, _ *cip.SignUpInput, _ ...func(*cip.Options)) (*cip.SignUpOutput, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestCallsAreBoundedByTimeout(t *testing.T) {
	fake := idpfake.New(t)
	cfg := fake.Config("auth.example.com")
	cfg.Timeout = 20 * time.Millisecond
	client, err := idp.NewWithAPI(slowSignUp{fake}, cfg)
	require.NoError(t, err)

	start := time.Now()
	err = client.Register(context.Background(), "a@example.com", "Password1!")
	require.ErrorIs(t, err, apperrors.ErrIdentityProvider)
	assert.Equal(t, http.StatusGatewayTimeout, apperrors.HTTPStatus(err))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestConfirmRegistration(t *testing.T) {
	ctx := context.Background()
	client, fake := newClient(t)
	require.NoError(t, client.Register(ctx, "new@example.com", "Password1!"))
	require.NoError(t, client.ResendConfirmationCode(ctx, "new@example.com"))

	_, err := client.ConfirmRegistration(ctx, "new@example.com", "000000")
	require.ErrorIs(t, err, apperrors.ErrIdentityProvider)
	assert.Equal(t, http.StatusBadRequest, apperrors.HTTPStatus(err))

	identity, err := client.ConfirmRegistration(ctx, "new@example.com", idpfake.ConfirmationCode)
	require.NoError(t, err)
	assert.Equal(t, fake.Subject("new@example.com"), identity.Subject)
	assert.Equal(t, "new@example.com", identity.Email)
	assert.Equal(t, "new@example.com", identity.Username)

	err = client.ResendConfirmationCode(ctx, "missing@example.com")
	require.ErrorIs(t, err, apperrors.ErrIdentityProvider)
}

func TestPasswordLogin(t *testing.T) {
	ctx := context.Background()
	client, fake := newClient(t)
	subject := fake.Seed("user@example.com", "Password1!")

	tokens, claims, err := client.PasswordLogin(ctx, "user@example.com", "Password1!")
	require.NoError(t, err)
	assert.True(t, tokens.Complete())
	assert.Equal(t, subject, claims.Subject)
	assert.Equal(t, "user@example.com", claims.Email)
	assert.Equal(t, "user@example.com", claims.Username)

	_, _, err = client.PasswordLogin(ctx, "user@example.com", "wrong")
	require.ErrorIs(t, err, apperrors.ErrAuthentication)
	assert.Equal(t, http.StatusUnauthorized, apperrors.HTTPStatus(err))

	_, _, err = client.PasswordLogin(ctx, "nobody@example.com", "Password1!")
	require.ErrorIs(t, err, apperrors.ErrAuthentication)

	fake.FailNext("InitiateAuth", errors.New("network down"))
	_, _, err = client.PasswordLogin(ctx, "user@example.com", "Password1!")
	require.ErrorIs(t, err, apperrors.ErrAuthentication)
}

func TestPasswordLoginUnconfirmed(t *testing.T) {
	ctx := context.Background()
	client, _ := newClient(t)
	require.NoError(t, client.Register(ctx, "pending@example.com", "Password1!"))

	_, _, err := client.PasswordLogin(ctx, "pending@example.com", "Password1!")
	require.ErrorIs(t, err, apperrors.ErrAuthentication)
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()

	t.Run("reuses refresh token when not rotated", func(t *testing.T) {
		client, fake := newClient(t)
		fake.Seed("user@example.com", "Password1!")
		refresh := fake.IssueRefreshToken("user@example.com")

		tokens, err := client.Refresh(ctx, "user@example.com", refresh)
		require.NoError(t, err)
		assert.NotEmpty(t, tokens.AccessToken)
		assert.NotEmpty(t, tokens.IDToken)
		assert.Equal(t, refresh, tokens.RefreshToken)
	})

	t.Run("rotated refresh token is returned", func(t *testing.T) {
		client, fake := newClient(t)
		fake.RotateRefresh = true
		fake.Seed("user@example.com", "Password1!")
		refresh := fake.IssueRefreshToken("user@example.com")

		tokens, err := client.Refresh(ctx, "user@example.com", refresh)
		require.NoError(t, err)
		assert.NotEqual(t, refresh, tokens.RefreshToken)

		_, err = client.Refresh(ctx, "user@example.com", refresh)
		require.ErrorIs(t, err, apperrors.ErrAuthentication)
	})

	t.Run("wrong username fails secret hash", func(t *testing.T) {
		client, fake := newClient(t)
		fake.Seed("user@example.com", "Password1!")
		refresh := fake.IssueRefreshToken("user@example.com")

		_, err := client.Refresh(ctx, "someone-else", refresh)
		require.ErrorIs(t, err, apperrors.ErrAuthentication)
	})

	t.Run("revoked", func(t *testing.T) {
		client, fake := newClient(t)
		fake.Seed("user@example.com", "Password1!")
		refresh := fake.IssueRefreshToken("user@example.com")
		fake.RevokeRefreshTokens("user@example.com")

		_, err := client.Refresh(ctx, "user@example.com", refresh)
		require.ErrorIs(t, err, apperrors.ErrAuthentication)
	})
}

func TestAuthCodeURL(t *testing.T) {
	client, _ := newClient(t)

	u, err := url.Parse(client.AuthCodeURL("admin"))
	require.NoError(t, err)
	assert.Equal(t, "/oauth2/authorize", u.Path)

	q := u.Query()
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "test-client", q.Get("client_id"))
	assert.Equal(t, "http://localhost:8080/oauth/callback", q.Get("redirect_uri"))
	assert.Equal(t, "openid email profile", q.Get("scope"))
	assert.Equal(t, "Google", q.Get("identity_provider"))
	assert.Equal(t, "admin", q.Get("state"))
}

func TestAuthCodeURLBareDomain(t *testing.T) {
	fake := idpfake.New(t)
	client, err := idp.NewWithAPI(fake, fake.Config("auth.example.com/"))
	require.NoError(t, err)

	u, err := url.Parse(client.AuthCodeURL("client"))
	require.NoError(t, err)
	assert.Equal(t, "https", u.Scheme)
	assert.Equal(t, "auth.example.com", u.Host)
}

func TestExchangeAuthorizationCode(t *testing.T) {
	ctx := context.Background()
	client, fake := newClient(t)

	code := fake.IssueAuthorizationCode("google_123", "g@example.com")
	tokens, err := client.ExchangeAuthorizationCode(ctx, code)
	require.NoError(t, err)
	require.True(t, tokens.Complete())

	claims, err := idp.DecodeIDToken(tokens.IDToken)
	require.NoError(t, err)
	assert.Equal(t, fake.Subject("google_123"), claims.Subject)
	assert.Equal(t, "g@example.com", claims.Email)
	assert.Equal(t, "google_123", claims.Username)

	// Codes are single use
	_, err = client.ExchangeAuthorizationCode(ctx, code)
	require.ErrorIs(t, err, apperrors.ErrAuthentication)
}

func TestExchangeAuthorizationCodeIncomplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"a","token_type":"Bearer","expires_in":3600}`))
	}))
	defer srv.Close()

	fake := idpfake.New(t)
	cfg := fake.Config(srv.URL)
	cfg.HTTPClient = srv.Client()
	client, err := idp.NewWithAPI(fake, cfg)
	require.NoError(t, err)

	_, err = client.ExchangeAuthorizationCode(context.Background(), "code")
	require.ErrorIs(t, err, apperrors.ErrAuthentication)
}

func TestGlobalSignOut(t *testing.T) {
	ctx := context.Background()
	client, fake := newClient(t)

	require.NoError(t, client.GlobalSignOut(ctx, "access-1"))
	assert.Equal(t, []string{"access-1"}, fake.SignedOut())

	fake.FailNext("GlobalSignOut", idpfake.APIError("NotAuthorizedException", "Access Token has been revoked"))
	require.ErrorIs(t, client.GlobalSignOut(ctx, "access-2"), apperrors.ErrIdentityProvider)
}

func TestMetricsCountCalls(t *testing.T) {
	fake := idpfake.New(t)
	rec := metrics.New()
	client, err := idp.NewWithAPI(fake, fake.Config("auth.example.com"), idp.WithMetrics(rec))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, client.Register(ctx, "m@example.com", "Password1!"))
	require.Error(t, client.Register(ctx, "m@example.com", "Password1!"))

	count, err := testutil.GatherAndCount(rec.Registry(), "session_broker_idp_calls_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
