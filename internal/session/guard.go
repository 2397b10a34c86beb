package session

import (
	"net/http"
	"net/url"

	"github.com/rs/zerolog"
)

// LandingPath is the only page reachable without a session. Keeping it
// public is what prevents the guard from redirecting in a loop.
const LandingPath = "/"

// Guard redirects unauthenticated browser navigations to the landing page,
// carrying the original target so the client can return after login:
//
//	/?showAuth=true&redirect=<original path>
//
// This is a UX convenience for page loads, not enforcement - every API call
// is independently checked by RequireSession.
func (g *Gate) Guard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == LandingPath || g.IsAuthenticated(r) {
			next.ServeHTTP(w, r)
			return
		}

		zerolog.Ctx(r.Context()).Debug().Str("path", r.URL.Path).Msg("redirecting unauthenticated navigation")

		target := LandingPath + "?showAuth=true&redirect=" + url.QueryEscape(r.URL.Path)
		http.Redirect(w, r, target, http.StatusFound)
	})
}
