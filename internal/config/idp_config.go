package config

import (
	"fmt"
	"strings"
	"time"
)

type IdPConfig interface {
	GetRegion() string
	GetUserPoolID() string
	GetClientID() string
	GetClientSecret() string
	GetDomain() string
	GetIssuer() string
	GetJWKSURL() string
	GetRedirectURI() string
	GetIdentityProvider() string
	GetScopes() []string
	GetIdPTimeout() time.Duration
	GetRedirectTargets() map[string]string
	ValidateIdP() error
}

type IdP struct{}

var _ IdPConfig = IdP{}

func (IdP) GetRegion() string {
	return GetEnv("AWS_REGION", "eu-west-1")
}

func (IdP) GetUserPoolID() string {
	return GetEnv("COGNITO_USER_POOL_ID", "")
}

func (IdP) GetClientID() string {
	return GetEnv("COGNITO_CLIENT_ID", "")
}

func (IdP) GetClientSecret() string {
	return GetEnv("COGNITO_CLIENT_SECRET", "")
}

// GetDomain returns the hosted OAuth domain, e.g. "https://shop.auth.eu-west-1.amazoncognito.com"
func (IdP) GetDomain() string {
	return strings.TrimRight(GetEnv("COGNITO_DOMAIN", ""), "/")
}

// GetIssuer returns the token issuer. It is derived from the region and pool unless overridden.
func (i IdP) GetIssuer() string {
	if issuer := GetEnv("COGNITO_ISSUER", ""); issuer != "" {
		return strings.TrimRight(issuer, "/")
	}
	return fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/%s", i.GetRegion(), i.GetUserPoolID())
}

func (i IdP) GetJWKSURL() string {
	return GetEnv("COGNITO_JWKS_URL", i.GetIssuer()+"/.well-known/jwks.json")
}

func (IdP) GetRedirectURI() string {
	return GetEnv("OAUTH_REDIRECT_URI", "http://localhost:8080/oauth/callback")
}

// GetIdentityProvider is the federation alias passed as identity_provider, e.g. "Google"
func (IdP) GetIdentityProvider() string {
	return GetEnv("OAUTH_IDENTITY_PROVIDER", "Google")
}

func (IdP) GetScopes() []string {
	return GetEnvList("OAUTH_SCOPES", []string{"openid", "email", "profile"})
}

func (IdP) GetIdPTimeout() time.Duration {
	return GetEnvDuration("IDP_TIMEOUT", 10*time.Second)
}

// GetRedirectTargets maps a caller context ("admin", "client") to the front-end
// origin the OAuth callback sends the browser back to. Malformed entries are
// left out here and reported by ValidateIdP.
// Format: REDIRECT_TARGETS=admin=https://admin.example.com,client=https://shop.example.com
func (IdP) GetRedirectTargets() map[string]string {
	targets, _ := parseRedirectTargets(redirectTargetEntries())
	return targets
}

func redirectTargetEntries() []string {
	return GetEnvList("REDIRECT_TARGETS", []string{"admin=http://localhost:3001", "client=http://localhost:3000"})
}

// parseRedirectTargets splits name=origin entries, returning the entries that
// do not have that shape.
func parseRedirectTargets(entries []string) (map[string]string, []string) {
	targets := map[string]string{}
	var invalid []string
	for _, entry := range entries {
		name, origin, ok := strings.Cut(entry, "=")
		name, origin = strings.TrimSpace(name), strings.TrimSpace(origin)
		if !ok || name == "" || origin == "" {
			invalid = append(invalid, entry)
			continue
		}
		targets[name] = origin
	}
	return targets, invalid
}

// ValidateIdP fails when any setting needed to talk to the provider is missing.
// It is called once at startup.
func (i IdP) ValidateIdP() error {
	var missing []string
	for name, value := range map[string]string{
		"AWS_REGION":            i.GetRegion(),
		"COGNITO_USER_POOL_ID":  i.GetUserPoolID(),
		"COGNITO_CLIENT_ID":     i.GetClientID(),
		"COGNITO_CLIENT_SECRET": i.GetClientSecret(),
		"COGNITO_DOMAIN":        i.GetDomain(),
	} {
		if value == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing identity provider configuration: %s", strings.Join(missing, ", "))
	}
	targets, invalid := parseRedirectTargets(redirectTargetEntries())
	if len(invalid) > 0 {
		return fmt.Errorf("malformed REDIRECT_TARGETS entries (want name=origin): %s", strings.Join(invalid, ", "))
	}
	if len(targets) == 0 {
		return fmt.Errorf("REDIRECT_TARGETS must name at least one target")
	}
	return nil
}
