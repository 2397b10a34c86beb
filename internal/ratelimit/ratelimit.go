// Package ratelimit provides fixed-window request rate limiting keyed by
// (operation, client) pairs.
//
// Fixed windows are deliberately simple: counts reset fully at the window
// boundary, so a client can burst up to twice the limit across a boundary.
// That approximation is accepted and relied upon by the tests - do not
// replace it with a sliding window without revisiting them.
package ratelimit

import (
	"context"
	"time"
)

// Result is the outcome of a rate limit check.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Store decides whether a keyed request is allowed within the current
// window. Implementations must treat the check-then-increment sequence as
// atomic per key: two concurrent first requests must not both reset the
// window, and Allowed counts never exceed limit within a window.
type Store interface {
	Check(ctx context.Context, key string, limit int, window time.Duration) (Result, error)

	// Start begins any background eviction the store needs; Stop halts it.
	Start() error
	Stop() error
}
