package ratelimit

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/questdeck/questdeck/internal/httpx"
)

const (
	headerLimit     = "X-RateLimit-Limit"
	headerRemaining = "X-RateLimit-Remaining"
)

// Limit wraps a handler with a per-client fixed-window limit. Keys are
// "<operation>:<client IP>" so each endpoint has its own budget per caller.
// Every response carries the quota headers; denied requests get a 429 JSON
// body. Store failures fail open with a logged warning - for a single-user
// dashboard, availability beats strictness.
func Limit(store Store, operation string, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := httpx.ClientIPFromContext(r.Context())
			if ip == "" {
				ip = httpx.ExtractClientIP(r)
			}

			result, err := store.Check(r.Context(), operation+":"+ip, limit, window)
			if err != nil {
				zerolog.Ctx(r.Context()).Warn().Err(err).
					Str("operation", operation).
					Msg("rate limit check failed, allowing request")
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set(headerLimit, strconv.Itoa(limit))
			w.Header().Set(headerRemaining, strconv.Itoa(result.Remaining))

			if !result.Allowed {
				zerolog.Ctx(r.Context()).Warn().
					Str("operation", operation).
					Str("client_ip", ip).
					Time("reset_at", result.ResetAt).
					Msg("rate limit exceeded")

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"error":     "Too many requests. Please try again later.",
					"remaining": 0,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
