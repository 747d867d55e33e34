package server

import (
	"fmt"
	"net/http"

	apperrors "github.com/jrsteele09/go-session-broker/internal/errors"
	"github.com/rs/zerolog/log"
)

// OAuthStartHandler redirects the browser to the hosted sign-in page. The
// target query parameter names the front end to return to.
func (s *Server) OAuthStartHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authURL, err := s.oauth.BuildAuthorizationURL(r.URL.Query().Get("target"))
		if err != nil {
			writeError(w, err)
			return
		}
		http.Redirect(w, r, authURL, http.StatusFound)
	}
}

// OAuthCallbackHandler completes the authorization-code flow and redirects to
// the front end named by state.
func (s *Server) OAuthCallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		providerErr := q.Get("error")
		if desc := q.Get("error_description"); providerErr != "" && desc != "" {
			providerErr = providerErr + ": " + desc
		}

		target, user, err := s.oauth.HandleCallback(r.Context(), w, q.Get("code"), q.Get("state"), providerErr)
		if err != nil {
			log.Warn().Err(err).Msg("OAuth callback failed")
			writeError(w, err)
			return
		}

		origin, ok := s.oauth.TargetOrigin(target)
		if !ok {
			writeError(w, fmt.Errorf("%w: %q", apperrors.ErrInvalidTarget, target))
			return
		}
		log.Info().Str("user_id", user.ID).Str("target", target).Msg("User signed in")
		http.Redirect(w, r, origin, http.StatusFound)
	}
}
