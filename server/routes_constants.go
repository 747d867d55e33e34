package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// Credential flows
	RouteRegister          = "/register"
	RouteResendConfirmCode = "/resend-confirm-code"
	RouteConfirmRegister   = "/confirm-register"
	RouteLogin             = "/login"
	RouteLogout            = "/logout"

	// Federated sign-in
	RouteOAuthStart    = "/oauth/start"
	RouteOAuthCallback = "/oauth/callback"

	// Session-protected routes
	RouteMe      = "/me"
	RouteAdminMe = "/admin/me"

	// Operations
	RouteHealth  = "/healthz"
	RouteMetrics = "/metrics"
)
