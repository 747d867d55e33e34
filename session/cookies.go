// Package session carries the broker's stateless session: provider tokens
// held in cookies, verified and silently refreshed on every request.
package session

import (
	"net/http"
	"time"

	"github.com/jrsteele09/go-session-broker/idp"
)

// Canonical cookie names
const (
	IDTokenCookie      = "id_token"
	AccessTokenCookie  = "access_token"
	RefreshTokenCookie = "refresh_token"
	UsernameCookie     = "username"
)

// CookieNames lists the session cookies in the order they are written
var CookieNames = []string{IDTokenCookie, AccessTokenCookie, RefreshTokenCookie, UsernameCookie}

const (
	DefaultAccessMaxAge  = time.Hour
	DefaultRefreshMaxAge = 30 * 24 * time.Hour
)

// CookieManager writes and clears the session cookies
type CookieManager struct {
	Production    bool // Secure and SameSite=None when true
	AccessMaxAge  time.Duration
	RefreshMaxAge time.Duration
	Domain        string
}

func NewCookieManager(production bool, accessMaxAge, refreshMaxAge time.Duration, domain string) *CookieManager {
	if accessMaxAge <= 0 {
		accessMaxAge = DefaultAccessMaxAge
	}
	if refreshMaxAge <= 0 {
		refreshMaxAge = DefaultRefreshMaxAge
	}
	return &CookieManager{
		Production:    production,
		AccessMaxAge:  accessMaxAge,
		RefreshMaxAge: refreshMaxAge,
		Domain:        domain,
	}
}

// Issue sets all four session cookies.
func (m *CookieManager) Issue(w http.ResponseWriter, tokens idp.TokenSet, username string) {
	m.set(w, IDTokenCookie, tokens.IDToken, m.AccessMaxAge)
	m.set(w, AccessTokenCookie, tokens.AccessToken, m.AccessMaxAge)
	m.set(w, RefreshTokenCookie, tokens.RefreshToken, m.RefreshMaxAge)
	m.set(w, UsernameCookie, username, m.RefreshMaxAge)
}

// Clear expires the session cookies present on r. Cookies the client never
// sent are not written.
func (m *CookieManager) Clear(w http.ResponseWriter, r *http.Request) {
	for _, name := range CookieNames {
		if _, err := r.Cookie(name); err != nil {
			continue
		}
		c := m.cookie(name, "")
		c.MaxAge = -1
		c.Expires = time.Unix(0, 0)
		http.SetCookie(w, c)
	}
}

func (m *CookieManager) set(w http.ResponseWriter, name, value string, maxAge time.Duration) {
	c := m.cookie(name, value)
	c.MaxAge = int(maxAge.Seconds())
	http.SetCookie(w, c)
}

func (m *CookieManager) cookie(name, value string) *http.Cookie {
	sameSite := http.SameSiteLaxMode
	if m.Production {
		sameSite = http.SameSiteNoneMode
	}
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   m.Domain,
		HttpOnly: true,
		Secure:   m.Production,
		SameSite: sameSite,
	}
}

// Snapshot is the session cookies as read once at the start of a request
type Snapshot struct {
	IDToken      string
	AccessToken  string
	RefreshToken string
	Username     string
}

// ReadSnapshot reads the session cookies from r
func ReadSnapshot(r *http.Request) Snapshot {
	value := func(name string) string {
		if c, err := r.Cookie(name); err == nil {
			return c.Value
		}
		return ""
	}
	return Snapshot{
		IDToken:      value(IDTokenCookie),
		AccessToken:  value(AccessTokenCookie),
		RefreshToken: value(RefreshTokenCookie),
		Username:     value(UsernameCookie),
	}
}
