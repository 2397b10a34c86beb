// Package upstream holds the third-party API clients. All calls carry a
// finite timeout and map provider failures onto this package's errors;
// raw provider error bodies never reach a caller.
package upstream

import (
	"errors"
	"net/http"
	"time"

	"github.com/gregjones/httpcache"
)

// Sentinel errors for common error conditions
var (
	ErrNotFound    = errors.New("resource not found upstream")
	ErrUnavailable = errors.New("upstream service unavailable")
)

const defaultTimeout = 10 * time.Second

// NewCachingHTTPClient creates an HTTP client with in-memory response
// caching, honoring upstream Cache-Control headers. Used for the news and
// stock GET endpoints, which both tolerate slightly stale data.
func NewCachingHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &http.Client{
		Transport: httpcache.NewTransport(httpcache.NewMemoryCache()),
		Timeout:   timeout,
	}
}
