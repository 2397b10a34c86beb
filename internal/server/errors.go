package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/questdeck/questdeck/internal/store"
	"github.com/questdeck/questdeck/internal/upstream"
)

// Error is a request failure mapped onto the service's taxonomy. Message is
// what the caller sees; Err carries the internal cause for the logs and is
// never serialized, so upstream details and keys cannot leak.
type Error struct {
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func validationError(message string) *Error {
	return &Error{Status: http.StatusBadRequest, Message: message}
}

func notFoundError(message string) *Error {
	return &Error{Status: http.StatusNotFound, Message: message}
}

func upstreamError(message string, err error) *Error {
	return &Error{Status: http.StatusInternalServerError, Message: message, Err: err}
}

// mapError converts known sentinel errors into taxonomy errors; anything
// unrecognized becomes a generic 500.
func mapError(err error, notFoundMessage string) *Error {
	var apiErr *Error
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, upstream.ErrNotFound):
		return notFoundError(notFoundMessage)
	case errors.Is(err, upstream.ErrUnavailable):
		return upstreamError("Service temporarily unavailable", err)
	case errors.Is(err, store.ErrInvalidUserID):
		return validationError("Invalid user ID")
	case errors.Is(err, store.ErrUnsafePath):
		return &Error{Status: http.StatusForbidden, Message: "Forbidden", Err: err}
	default:
		return &Error{Status: http.StatusInternalServerError, Message: "Internal server error", Err: err}
	}
}

func writeError(ctx context.Context, w http.ResponseWriter, err *Error) {
	if err.Err != nil {
		zerolog.Ctx(ctx).Error().Err(err.Err).Int("status", err.Status).Msg(err.Message)
	} else {
		zerolog.Ctx(ctx).Debug().Int("status", err.Status).Msg(err.Message)
	}

	writeJSON(w, err.Status, map[string]string{"error": err.Message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
