// Package store persists user profiles.
package store

import (
	"context"
	"errors"

	"github.com/questdeck/questdeck/internal/models"
)

// Sentinel errors for common error conditions
var (
	ErrInvalidUserID = errors.New("invalid user id")
	ErrUnsafePath    = errors.New("resolved path escapes data directory")
)

// ProfileStore loads and saves quest/XP profiles keyed by user ID.
type ProfileStore interface {
	// Load returns the profile for userID, or a zero-value profile when
	// none has been saved yet.
	Load(ctx context.Context, userID string) (*models.UserProfile, error)

	// Save persists the profile for userID, replacing any previous state.
	Save(ctx context.Context, userID string, profile *models.UserProfile) error
}
