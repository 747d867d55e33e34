// Package server is the broker's HTTP surface: credential and federated
// sign-in endpoints plus the session middleware protecting every other route.
package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-session-broker/auth"
	"github.com/jrsteele09/go-session-broker/internal/config"
	"github.com/jrsteele09/go-session-broker/internal/metrics"
	"github.com/jrsteele09/go-session-broker/session"
	"github.com/rs/zerolog/log"
)

// Services are the flows the HTTP handlers delegate to
type Services struct {
	Auth    *auth.Service
	OAuth   *auth.Coordinator
	Gate    *session.Gate
	Metrics *metrics.Recorder
}

type Server struct {
	env     string // Environment (e.g. "DEV", "PRODUCTION")
	mux     *http.ServeMux
	routes  []string
	config  config.Config
	auth    *auth.Service
	oauth   *auth.Coordinator
	gate    *session.Gate
	metrics *metrics.Recorder
}

func New(cfg config.Config, services Services) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("[Server New] config is required")
	}
	if services.Auth == nil || services.OAuth == nil || services.Gate == nil {
		return nil, fmt.Errorf("[Server New] auth service, oauth coordinator and session gate are required")
	}

	s := &Server{
		env:     cfg.GetEnv(),
		mux:     http.NewServeMux(),
		config:  cfg,
		auth:    services.Auth,
		oauth:   services.OAuth,
		gate:    services.Gate,
		metrics: services.Metrics,
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

// Routes lists the registered patterns in registration order
func (s *Server) Routes() []string {
	return append([]string(nil), s.routes...)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	log.Info().Msgf("[%-19s] %s", colouredMethod(method), path)
}

func colouredMethod(method string) string {
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		return color + paddedMethod + ResetColor
	}
	return Gray + paddedMethod + ResetColor
}
