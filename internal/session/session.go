// Package session implements the shared access-code gate: credential
// verification, cookie issuance and the per-request session check.
package session

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/questdeck/questdeck/internal/security"
)

const (
	// AuthCookie carries the session token. The token is the configured
	// access-code hash itself: the verifier doubles as the credential, so a
	// stolen cookie is a full session forgery. That trade-off is inherited
	// from the original contract and kept on purpose; see DESIGN.md.
	AuthCookie = "auth_session"

	// UserIDCookie binds the fixed single-user identity that scopes the
	// persisted profile file. Server-configured, never user-chosen.
	UserIDCookie = "userId"

	sessionMaxAge = 24 * time.Hour
	userIDMaxAge  = 365 * 24 * time.Hour
)

var ErrNoAccessCodeHash = errors.New("session: access code hash is not configured")

// Gate verifies access codes against the configured hash and manages the
// session cookies.
type Gate struct {
	configuredHash string
	userID         string
	secureCookies  bool
}

// NewGate creates a session gate. configuredHash is the hex SHA-256 of the
// canonicalized access code; it must be set at startup or the constructor
// fails, so no endpoint can ever run with an unset secret.
func NewGate(configuredHash, userID string, secureCookies bool) (*Gate, error) {
	if configuredHash == "" {
		return nil, ErrNoAccessCodeHash
	}
	return &Gate{
		configuredHash: configuredHash,
		userID:         userID,
		secureCookies:  secureCookies,
	}, nil
}

// Canonicalize normalizes a provided access code so case and surrounding
// whitespace variations of the same code compare equal. The stored hash is
// computed over the same canonical form.
func Canonicalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Authenticate reports whether the provided access code matches the
// configured hash.
func (g *Gate) Authenticate(providedCode string) bool {
	return security.Verify(Canonicalize(providedCode), g.configuredHash)
}

// IssueCookies sets the session cookie and, when a fixed user identity is
// configured, the long-lived userId cookie.
func (g *Gate) IssueCookies(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     AuthCookie,
		Value:    g.configuredHash,
		Path:     "/",
		HttpOnly: true,
		Secure:   g.secureCookies,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(sessionMaxAge.Seconds()),
	})

	if g.userID != "" {
		http.SetCookie(w, &http.Cookie{
			Name:     UserIDCookie,
			Value:    g.userID,
			Path:     "/",
			HttpOnly: true,
			Secure:   g.secureCookies,
			SameSite: http.SameSiteStrictMode,
			MaxAge:   int(userIDMaxAge.Seconds()),
		})
	}
}

// IssueUserID sets the userId cookie alone. Used when a save request
// arrives with a valid session but no identity cookie.
func (g *Gate) IssueUserID(w http.ResponseWriter, userID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     UserIDCookie,
		Value:    userID,
		Path:     "/",
		HttpOnly: true,
		Secure:   g.secureCookies,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(userIDMaxAge.Seconds()),
	})
}

// UserID returns the configured fixed identity.
func (g *Gate) UserID() string {
	return g.userID
}

// IsAuthenticated reports whether the request carries a valid session
// cookie. Comparison is constant time.
func (g *Gate) IsAuthenticated(r *http.Request) bool {
	cookie, err := r.Cookie(AuthCookie)
	if err != nil {
		return false
	}
	return security.TokenEquals(cookie.Value, g.configuredHash)
}

// RequireSession protects an API route: requests without a valid session
// cookie get a 401 JSON response. This server-side check is the actual
// security boundary; the browser-facing Guard is convenience only.
func (g *Gate) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.IsAuthenticated(r) {
			zerolog.Ctx(r.Context()).Debug().Str("path", r.URL.Path).Msg("rejecting unauthenticated API request")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"Authentication required"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}
