package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/questdeck/questdeck/internal/models"
	"github.com/questdeck/questdeck/internal/security"
)

// FileProfileStore keeps one JSON file per user under a fixed data
// directory. Every user ID goes through validation, sanitization and a
// final prefix check on the joined path before any I/O - the sanitizer
// alone is not trusted to be gap-free.
type FileProfileStore struct {
	dir string
	now func() time.Time
}

// NewFileProfileStore creates the store, creating dir if needed.
func NewFileProfileStore(dir string) (*FileProfileStore, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve data directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0o700); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	return &FileProfileStore{dir: abs, now: time.Now}, nil
}

// path builds and verifies the on-disk path for userID.
func (s *FileProfileStore) path(userID string) (string, error) {
	if !security.ValidateUserID(userID) {
		return "", ErrInvalidUserID
	}

	name := security.SanitizeFilePath(userID)
	p := filepath.Join(s.dir, "user-"+name+".json")

	// Confirm after construct: the cleaned path must still live under the
	// data directory even if the sanitizer missed something.
	if !strings.HasPrefix(filepath.Clean(p), s.dir+string(filepath.Separator)) {
		return "", ErrUnsafePath
	}
	return p, nil
}

// Load reads the profile for userID. A missing file is not an error: a
// fresh zero-value profile is returned instead.
func (s *FileProfileStore) Load(_ context.Context, userID string) (*models.UserProfile, error) {
	p, err := s.path(userID)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			profile := &models.UserProfile{}
			profile.Normalize()
			return profile, nil
		}
		return nil, fmt.Errorf("read profile %s: %w", userID, err)
	}

	var profile models.UserProfile
	if err := json.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("decode profile %s: %w", userID, err)
	}
	profile.Normalize()
	return &profile, nil
}

// Save writes the profile atomically: marshal to a temp file in the same
// directory, then rename over the target.
func (s *FileProfileStore) Save(_ context.Context, userID string, profile *models.UserProfile) error {
	p, err := s.path(userID)
	if err != nil {
		return err
	}

	profile.Normalize()
	profile.UpdatedAt = s.now().UTC().Format(time.RFC3339)

	data, err := json.MarshalIndent(profile, "", "  ")
	if err != nil {
		return fmt.Errorf("encode profile %s: %w", userID, err)
	}

	tmp, err := os.CreateTemp(s.dir, "profile-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp profile file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write profile %s: %w", userID, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp profile file: %w", err)
	}

	if err := os.Rename(tmp.Name(), p); err != nil {
		return fmt.Errorf("replace profile %s: %w", userID, err)
	}
	return nil
}
