package session_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-session-broker/idp"
	"github.com/jrsteele09/go-session-broker/idp/idpfake"
	apperrors "github.com/jrsteele09/go-session-broker/internal/errors"
	"github.com/jrsteele09/go-session-broker/internal/metrics"
	"github.com/jrsteele09/go-session-broker/internal/tokentest"
	"github.com/jrsteele09/go-session-broker/session"
	"github.com/jrsteele09/go-session-broker/users"
	fakeuserrepo "github.com/jrsteele09/go-session-broker/users/repofake"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testEmail    = "user@example.com"
	testPassword = "Password1!"
)

type gateFixture struct {
	gate    *session.Gate
	fake    *idpfake.FakeCognito
	repo    *fakeuserrepo.FakeUserRepo
	metrics *metrics.Recorder
	subject string
	user    *users.User
}

func newGateFixture(t *testing.T) *gateFixture {
	t.Helper()
	fake := idpfake.New(t)
	client, err := idp.NewWithAPI(fake, fake.Config("auth.example.com"))
	require.NoError(t, err)

	repo := fakeuserrepo.NewFakeUserRepo()
	subject := fake.Seed(testEmail, testPassword)
	user := users.NewUser("user-1", subject, testEmail, time.Now())
	require.NoError(t, repo.Insert(context.Background(), user))

	rec := metrics.New()
	verifier := session.NewOIDCVerifierWithKeySet(fake.Issuer.KeySet(), tokentest.Issuer, tokentest.ClientID)
	gate := session.NewGate(verifier, client, session.NewCookieManager(false, 0, 0, ""), repo, rec)

	return &gateFixture{gate: gate, fake: fake, repo: repo, metrics: rec, subject: subject, user: user}
}

func request(cookies map[string]string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	for name, value := range cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}
	return req
}

func (f *gateFixture) authenticate(cookies map[string]string) (*users.User, *httptest.ResponseRecorder, error) {
	rec := httptest.NewRecorder()
	req := request(cookies)
	user, err := f.gate.Authenticate(req.Context(), rec, req)
	return user, rec, err
}

func TestGateNoSession(t *testing.T) {
	f := newGateFixture(t)

	for name, cookies := range map[string]map[string]string{
		"no cookies":               nil,
		"refresh without username": {session.RefreshTokenCookie: "refresh-1"},
		"username without refresh": {session.UsernameCookie: testEmail},
	} {
		t.Run(name, func(t *testing.T) {
			user, rec, err := f.authenticate(cookies)
			require.ErrorIs(t, err, apperrors.ErrUnauthenticated)
			assert.Nil(t, user)
			assert.Empty(t, rec.Header().Values("Set-Cookie"))
		})
	}
	assert.Zero(t, f.fake.Calls("InitiateAuth"))
}

func TestGateValidAccessToken(t *testing.T) {
	f := newGateFixture(t)

	user, rec, err := f.authenticate(map[string]string{
		session.AccessTokenCookie:  f.fake.Issuer.AccessToken(f.subject, time.Hour),
		session.RefreshTokenCookie: f.fake.IssueRefreshToken(testEmail),
		session.UsernameCookie:     testEmail,
	})
	require.NoError(t, err)
	assert.Equal(t, f.user.ID, user.ID)
	assert.Zero(t, f.fake.Calls("InitiateAuth"))
	assert.Empty(t, rec.Header().Values("Set-Cookie"))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.VerificationCounter(metrics.OutcomeActive)))
}

func TestGateExpiredAccessRefreshes(t *testing.T) {
	f := newGateFixture(t)
	refresh := f.fake.IssueRefreshToken(testEmail)

	user, rec, err := f.authenticate(map[string]string{
		session.IDTokenCookie:      "stale-id",
		session.AccessTokenCookie:  f.fake.Issuer.AccessToken(f.subject, -time.Minute),
		session.RefreshTokenCookie: refresh,
		session.UsernameCookie:     testEmail,
	})
	require.NoError(t, err)
	assert.Equal(t, f.subject, user.ExternalSubjectID)
	assert.Equal(t, 1, f.fake.Calls("InitiateAuth"))

	cookies := responseCookies(rec)
	require.Len(t, cookies, 4)
	assert.NotEqual(t, "stale-id", cookies[session.IDTokenCookie].Value)
	assert.Equal(t, refresh, cookies[session.RefreshTokenCookie].Value, "unrotated refresh token is reused")
	assert.Equal(t, testEmail, cookies[session.UsernameCookie].Value)

	// The reissued access token resolves the same principal without a refresh.
	again, _, err := f.authenticate(map[string]string{session.AccessTokenCookie: cookies[session.AccessTokenCookie].Value})
	require.NoError(t, err)
	assert.Equal(t, user.ID, again.ID)
	assert.Equal(t, 1, f.fake.Calls("InitiateAuth"))
}

func TestGateRefreshOnlySession(t *testing.T) {
	f := newGateFixture(t)
	f.fake.RotateRefresh = true
	refresh := f.fake.IssueRefreshToken(testEmail)

	user, rec, err := f.authenticate(map[string]string{
		session.RefreshTokenCookie: refresh,
		session.UsernameCookie:     testEmail,
	})
	require.NoError(t, err)
	assert.Equal(t, f.user.ID, user.ID)

	cookies := responseCookies(rec)
	require.Len(t, cookies, 4)
	assert.NotEqual(t, refresh, cookies[session.RefreshTokenCookie].Value)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.VerificationCounter(metrics.OutcomeRefreshed)))
}

func TestGateConsumedRefreshTokenLeavesCookiesUnchanged(t *testing.T) {
	f := newGateFixture(t)
	refresh := f.fake.IssueRefreshToken(testEmail)
	f.fake.RevokeRefreshTokens(testEmail)

	user, rec, err := f.authenticate(map[string]string{
		session.AccessTokenCookie:  f.fake.Issuer.AccessToken(f.subject, -time.Minute),
		session.RefreshTokenCookie: refresh,
		session.UsernameCookie:     testEmail,
	})
	require.ErrorIs(t, err, apperrors.ErrUnauthenticated)
	assert.Nil(t, user)
	assert.Equal(t, 1, f.fake.Calls("InitiateAuth"))
	assert.Empty(t, rec.Header().Values("Set-Cookie"))
}

func TestGateInvalidAccessWithoutRefresh(t *testing.T) {
	f := newGateFixture(t)

	_, rec, err := f.authenticate(map[string]string{
		session.AccessTokenCookie: f.fake.Issuer.AccessToken(f.subject, -time.Minute),
		session.UsernameCookie:    testEmail,
	})
	require.ErrorIs(t, err, apperrors.ErrUnauthenticated)
	assert.Zero(t, f.fake.Calls("InitiateAuth"))
	assert.Empty(t, rec.Header().Values("Set-Cookie"))
}

func TestGatePrincipalNotFound(t *testing.T) {
	f := newGateFixture(t)
	f.repo.Delete(f.user.ID)

	_, _, err := f.authenticate(map[string]string{
		session.AccessTokenCookie: f.fake.Issuer.AccessToken(f.subject, time.Hour),
	})
	require.ErrorIs(t, err, apperrors.ErrPrincipalNotFound)
	assert.Equal(t, http.StatusUnauthorized, apperrors.HTTPStatus(err))
}

type staticRefresher struct {
	tokens idp.TokenSet
	calls  int
}

func (s *staticRefresher) Refresh(context.Context, string, string) (idp.TokenSet, error) {
	s.calls++
	return s.tokens, nil
}

func TestGateRefreshedTokenMustVerify(t *testing.T) {
	f := newGateFixture(t)
	foreign := tokentest.NewIssuer(t)
	refresher := &staticRefresher{tokens: idp.TokenSet{
		IDToken:      "id",
		AccessToken:  foreign.AccessToken(f.subject, time.Hour),
		RefreshToken: "refresh-2",
	}}
	verifier := session.NewOIDCVerifierWithKeySet(f.fake.Issuer.KeySet(), tokentest.Issuer, tokentest.ClientID)
	gate := session.NewGate(verifier, refresher, session.NewCookieManager(false, 0, 0, ""), f.repo, nil)

	rec := httptest.NewRecorder()
	req := request(map[string]string{session.RefreshTokenCookie: "refresh-1", session.UsernameCookie: testEmail})
	_, err := gate.Authenticate(req.Context(), rec, req)
	require.ErrorIs(t, err, apperrors.ErrUnauthenticated)
	assert.Equal(t, 1, refresher.calls)
	assert.Empty(t, rec.Header().Values("Set-Cookie"))
}

func TestGateConcurrentRefreshLoserFailsClosed(t *testing.T) {
	f := newGateFixture(t)
	f.fake.RotateRefresh = true
	cookies := map[string]string{
		session.AccessTokenCookie:  f.fake.Issuer.AccessToken(f.subject, -time.Minute),
		session.RefreshTokenCookie: f.fake.IssueRefreshToken(testEmail),
		session.UsernameCookie:     testEmail,
	}

	const workers = 4
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		failed    int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, rec, err := f.authenticate(cookies)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
				assert.Len(t, rec.Result().Cookies(), 4)
				return
			}
			failed++
			assert.ErrorIs(t, err, apperrors.ErrUnauthenticated)
			assert.Empty(t, rec.Header().Values("Set-Cookie"))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, workers-1, failed)
	assert.Equal(t, workers, f.fake.Calls("InitiateAuth"))
}

func TestGateVerificationTimesOutOnStalledKeySet(t *testing.T) {
	f := newGateFixture(t)

	verifier := session.NewOIDCVerifier(context.Background(), tokentest.Issuer, stalledKeySetURL(t), tokentest.ClientID, 5*time.Second)
	gate := session.NewGate(verifier, &staticRefresher{}, session.NewCookieManager(false, 0, 0, ""), f.repo, f.metrics,
		session.WithVerifyTimeout(100*time.Millisecond))

	rec := httptest.NewRecorder()
	req := request(map[string]string{session.AccessTokenCookie: f.fake.Issuer.AccessToken(f.subject, time.Hour)})

	start := time.Now()
	user, err := gate.Authenticate(req.Context(), rec, req)
	require.ErrorIs(t, err, apperrors.ErrUnauthenticated)
	assert.Nil(t, user)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Empty(t, rec.Header().Values("Set-Cookie"))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.VerificationCounter(metrics.OutcomeUnauthenticated)))
}
