package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestLimit_setsQuotaHeaders(t *testing.T) {
	store := NewMemoryStore()
	handler := Limit(store, "news", 30, time.Minute)(okHandler())

	r := httptest.NewRequest(http.MethodGet, "/api/news", nil)
	r.Header.Set("X-Real-IP", "203.0.113.9")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "30", w.Header().Get("X-RateLimit-Limit"))
	require.Equal(t, "29", w.Header().Get("X-RateLimit-Remaining"))
}

func TestLimit_returns429WhenExhausted(t *testing.T) {
	store := NewMemoryStore()
	handler := Limit(store, "auth", 2, time.Minute)(okHandler())

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/api/auth", nil)
		r.Header.Set("X-Real-IP", "203.0.113.9")
		handler.ServeHTTP(w, r)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/auth", nil)
	r.Header.Set("X-Real-IP", "203.0.113.9")
	handler.ServeHTTP(w, r)

	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	require.JSONEq(t, `{"error":"Too many requests. Please try again later.","remaining":0}`, w.Body.String())
}

func TestLimit_clientsAreIndependent(t *testing.T) {
	store := NewMemoryStore()
	handler := Limit(store, "auth", 1, time.Minute)(okHandler())

	first := httptest.NewRequest(http.MethodPost, "/api/auth", nil)
	first.Header.Set("X-Real-IP", "10.0.0.1")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, first)
	require.Equal(t, http.StatusOK, w.Code)

	blocked := httptest.NewRequest(http.MethodPost, "/api/auth", nil)
	blocked.Header.Set("X-Real-IP", "10.0.0.1")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, blocked)
	require.Equal(t, http.StatusTooManyRequests, w.Code)

	other := httptest.NewRequest(http.MethodPost, "/api/auth", nil)
	other.Header.Set("X-Real-IP", "10.0.0.2")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, other)
	require.Equal(t, http.StatusOK, w.Code)
}

// errorStore always fails, to exercise the fail-open path.
type errorStore struct{}

func (errorStore) Check(context.Context, string, int, time.Duration) (Result, error) {
	return Result{}, errors.New("store unavailable")
}
func (errorStore) Start() error { return nil }
func (errorStore) Stop() error  { return nil }

func TestLimit_failsOpenOnStoreError(t *testing.T) {
	handler := Limit(errorStore{}, "news", 5, time.Minute)(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/news", nil))

	require.Equal(t, http.StatusOK, w.Code)
	require.Empty(t, w.Header().Get("X-RateLimit-Limit"))
}
