package config

import "time"

type CookieConfig interface {
	GetAccessCookieMaxAge() time.Duration
	GetRefreshCookieMaxAge() time.Duration
	GetCookieDomain() string
}

type Cookies struct{}

var _ CookieConfig = Cookies{}

// GetAccessCookieMaxAge applies to the id_token and access_token cookies
func (Cookies) GetAccessCookieMaxAge() time.Duration {
	return GetEnvDuration("ACCESS_COOKIE_MAX_AGE", 1*time.Hour)
}

// GetRefreshCookieMaxAge applies to the refresh_token and username cookies
func (Cookies) GetRefreshCookieMaxAge() time.Duration {
	return GetEnvDuration("REFRESH_COOKIE_MAX_AGE", 30*24*time.Hour) // 30 days
}

func (Cookies) GetCookieDomain() string {
	return GetEnv("COOKIE_DOMAIN", "")
}
