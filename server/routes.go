package server

import "github.com/jrsteele09/go-session-broker/users"

func (s *Server) initRoutes() {
	// Credential flows
	s.RegisterRouteHandler("POST "+RouteRegister, ChainMiddleware(s.RegisterHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteResendConfirmCode, ChainMiddleware(s.ResendConfirmCodeHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteConfirmRegister, ChainMiddleware(s.ConfirmRegisterHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteLogin, ChainMiddleware(s.LoginHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteLogout, ChainMiddleware(s.LogoutHandler(), s.APIMiddleware()...))

	// Federated sign-in (browser redirects, no CORS)
	s.RegisterRouteHandler("GET "+RouteOAuthStart, ChainMiddleware(s.OAuthStartHandler(), s.BaseMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteOAuthCallback, ChainMiddleware(s.OAuthCallbackHandler(), s.BaseMiddleware()...))

	// Protected routes: session verification first, then role checks
	s.RegisterRouteHandler("GET "+RouteMe, ChainMiddleware(s.MeHandler(), s.APIMiddleware(s.RequireSession)...))
	s.RegisterRouteHandler("GET "+RouteAdminMe, ChainMiddleware(s.MeHandler(), s.APIMiddleware(s.RequireSession, RestrictTo(users.RoleAdmin))...))

	// CORS preflight for the API routes
	s.RegisterRouteHandler("OPTIONS /", ChainMiddleware(s.PreflightHandler(), s.APIMiddleware()...))

	s.RegisterRouteFunc("GET "+RouteHealth, s.HealthHandler())
	s.RegisterRouteHandler("GET "+RouteMetrics, s.metrics.Handler())
}
