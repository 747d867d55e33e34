package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jrsteele09/go-session-broker/auth"
	"github.com/jrsteele09/go-session-broker/idp"
	"github.com/jrsteele09/go-session-broker/internal/config"
	"github.com/jrsteele09/go-session-broker/internal/metrics"
	"github.com/jrsteele09/go-session-broker/server"
	"github.com/jrsteele09/go-session-broker/session"
	"github.com/jrsteele09/go-session-broker/users"
	"github.com/jrsteele09/go-session-broker/users/redisstore"
	fakeuserrepo "github.com/jrsteele09/go-session-broker/users/repofake"
	"github.com/jrsteele09/go-session-broker/users/sqlstore"
	"github.com/rs/zerolog/log"
)

// buildServer wires the provider client, profile store, session gate and
// flows into the HTTP server. cleanup releases the profile store.
func buildServer(ctx context.Context, c config.Config) (http.Handler, func(), error) {
	if err := c.ValidateIdP(); err != nil {
		return nil, nil, err
	}

	recorder := metrics.New()
	client, err := idp.New(ctx, idp.Config{
		Region:           c.GetRegion(),
		UserPoolID:       c.GetUserPoolID(),
		ClientID:         c.GetClientID(),
		ClientSecret:     c.GetClientSecret(),
		Domain:           c.GetDomain(),
		RedirectURI:      c.GetRedirectURI(),
		IdentityProvider: c.GetIdentityProvider(),
		Scopes:           c.GetScopes(),
		Timeout:          c.GetIdPTimeout(),
	}, idp.WithMetrics(recorder))
	if err != nil {
		return nil, nil, fmt.Errorf("creating identity provider client: %w", err)
	}

	repo, cleanup, err := openUserRepo(ctx, c)
	if err != nil {
		return nil, nil, err
	}

	handler, err := newHandler(ctx, c, client, repo, recorder)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return handler, cleanup, nil
}

func newHandler(ctx context.Context, c config.Config, client *idp.Client, repo users.UserRepo, recorder *metrics.Recorder) (http.Handler, error) {
	provisioner, err := auth.NewProvisioner(repo)
	if err != nil {
		return nil, err
	}

	cookies := session.NewCookieManager(c.IsProduction(), c.GetAccessCookieMaxAge(), c.GetRefreshCookieMaxAge(), c.GetCookieDomain())
	service, err := auth.NewService(client, cookies, provisioner)
	if err != nil {
		return nil, err
	}
	coordinator, err := auth.NewCoordinator(client, cookies, provisioner, c.GetRedirectTargets())
	if err != nil {
		return nil, err
	}

	verifier := session.NewOIDCVerifier(ctx, c.GetIssuer(), c.GetJWKSURL(), c.GetClientID(), c.GetIdPTimeout())
	gate := session.NewGate(verifier, client, cookies, repo, recorder, session.WithVerifyTimeout(c.GetIdPTimeout()))

	return server.New(c, server.Services{Auth: service, OAuth: coordinator, Gate: gate, Metrics: recorder})
}

func openUserRepo(ctx context.Context, c config.Config) (users.UserRepo, func(), error) {
	switch backend := c.GetStoreBackend(); backend {
	case config.StoreMemory:
		log.Warn().Msg("Using in-memory profile store; profiles are lost on restart")
		return fakeuserrepo.NewFakeUserRepo(), func() {}, nil

	case config.StoreSQLite:
		store, err := sqlstore.Open(ctx, c.GetSQLitePath())
		if err != nil {
			return nil, nil, err
		}
		log.Info().Str("path", c.GetSQLitePath()).Msg("Using sqlite profile store")
		return store, closer(store.Close), nil

	case config.StoreRedis:
		store, err := redisstore.New(ctx, redisstore.Config{
			Addr:      c.GetRedisAddr(),
			Password:  c.GetRedisPassword(),
			KeyPrefix: c.GetRedisKeyPrefix(),
		})
		if err != nil {
			return nil, nil, err
		}
		log.Info().Str("addr", c.GetRedisAddr()).Msg("Using redis profile store")
		return store, closer(store.Close), nil

	default:
		return nil, nil, fmt.Errorf("unknown STORE %q", backend)
	}
}

func closer(closeFn func() error) func() {
	return func() {
		if err := closeFn(); err != nil {
			log.Err(err).Msg("Failed to close profile store")
		}
	}
}
