package session_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jrsteele09/go-session-broker/idp"
	"github.com/jrsteele09/go-session-broker/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func responseCookies(rec *httptest.ResponseRecorder) map[string]*http.Cookie {
	out := make(map[string]*http.Cookie)
	for _, c := range rec.Result().Cookies() {
		out[c.Name] = c
	}
	return out
}

var testTokens = idp.TokenSet{IDToken: "id", AccessToken: "access", RefreshToken: "refresh"}

func TestIssue(t *testing.T) {
	tests := []struct {
		name       string
		production bool
		secure     bool
		sameSite   http.SameSite
	}{
		{"development", false, false, http.SameSiteLaxMode},
		{"production", true, true, http.SameSiteNoneMode},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := session.NewCookieManager(tc.production, 0, 0, "")
			rec := httptest.NewRecorder()
			m.Issue(rec, testTokens, "user@example.com")

			cookies := responseCookies(rec)
			require.Len(t, cookies, 4)

			expected := map[string]struct {
				value  string
				maxAge int
			}{
				session.IDTokenCookie:      {"id", 3600},
				session.AccessTokenCookie:  {"access", 3600},
				session.RefreshTokenCookie: {"refresh", 30 * 24 * 3600},
				session.UsernameCookie:     {"user@example.com", 30 * 24 * 3600},
			}
			for name, want := range expected {
				c, ok := cookies[name]
				require.True(t, ok, name)
				assert.Equal(t, want.value, c.Value, name)
				assert.Equal(t, want.maxAge, c.MaxAge, name)
				assert.Equal(t, "/", c.Path, name)
				assert.True(t, c.HttpOnly, name)
				assert.Equal(t, tc.secure, c.Secure, name)
				assert.Equal(t, tc.sameSite, c.SameSite, name)
			}
		})
	}
}

func TestIssueConfiguredMaxAge(t *testing.T) {
	m := session.NewCookieManager(false, 10*time.Minute, 24*time.Hour, "example.com")
	rec := httptest.NewRecorder()
	m.Issue(rec, testTokens, "u")

	cookies := responseCookies(rec)
	assert.Equal(t, 600, cookies[session.AccessTokenCookie].MaxAge)
	assert.Equal(t, 86400, cookies[session.RefreshTokenCookie].MaxAge)
	assert.Equal(t, "example.com", cookies[session.UsernameCookie].Domain)
}

func TestClearOnlyPresentCookies(t *testing.T) {
	m := session.NewCookieManager(false, 0, 0, "")
	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.AddCookie(&http.Cookie{Name: session.AccessTokenCookie, Value: "access"})
	req.AddCookie(&http.Cookie{Name: session.UsernameCookie, Value: "u"})
	req.AddCookie(&http.Cookie{Name: "theme", Value: "dark"})

	rec := httptest.NewRecorder()
	m.Clear(rec, req)

	cookies := responseCookies(rec)
	require.Len(t, cookies, 2)
	for _, name := range []string{session.AccessTokenCookie, session.UsernameCookie} {
		c := cookies[name]
		require.NotNil(t, c, name)
		assert.Empty(t, c.Value)
		assert.Equal(t, -1, c.MaxAge)
	}
}

func TestClearWithoutSession(t *testing.T) {
	m := session.NewCookieManager(true, 0, 0, "")
	rec := httptest.NewRecorder()
	m.Clear(rec, httptest.NewRequest(http.MethodPost, "/logout", nil))
	assert.Empty(t, rec.Header().Values("Set-Cookie"))
}

func TestIssueThenClearLeavesNoLiveCookies(t *testing.T) {
	m := session.NewCookieManager(true, 0, 0, "")
	issued := httptest.NewRecorder()
	m.Issue(issued, testTokens, "u")

	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	for _, c := range issued.Result().Cookies() {
		req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}
	cleared := httptest.NewRecorder()
	m.Clear(cleared, req)

	cookies := responseCookies(cleared)
	require.Len(t, cookies, len(session.CookieNames))
	for _, name := range session.CookieNames {
		c := cookies[name]
		require.NotNil(t, c, name)
		assert.LessOrEqual(t, c.MaxAge, 0, name)
		assert.Empty(t, c.Value, name)
		assert.True(t, c.Expires.Before(time.Now()), name)
	}
}

func TestReadSnapshotAndClassify(t *testing.T) {
	tests := []struct {
		name    string
		cookies map[string]string
		state   session.State
	}{
		{"empty", nil, session.NoSession},
		{"id token only", map[string]string{session.IDTokenCookie: "id"}, session.NoSession},
		{"access only", map[string]string{session.AccessTokenCookie: "a"}, session.ActiveAccess},
		{"everything", map[string]string{
			session.IDTokenCookie: "i", session.AccessTokenCookie: "a",
			session.RefreshTokenCookie: "r", session.UsernameCookie: "u",
		}, session.ActiveAccess},
		{"refresh and username", map[string]string{session.RefreshTokenCookie: "r", session.UsernameCookie: "u"}, session.RefreshableOnly},
		{"refresh without username", map[string]string{session.RefreshTokenCookie: "r"}, session.Invalid},
		{"username without refresh", map[string]string{session.UsernameCookie: "u"}, session.Invalid},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			for name, value := range tc.cookies {
				req.AddCookie(&http.Cookie{Name: name, Value: value})
			}
			snap := session.ReadSnapshot(req)
			assert.Equal(t, tc.cookies[session.AccessTokenCookie], snap.AccessToken)
			assert.Equal(t, tc.state, session.Classify(snap), tc.state.String())
		})
	}
}
