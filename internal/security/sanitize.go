// Package security holds the pure gatekeeping primitives: input
// sanitization, path safety checks, and secret hashing.
package security

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	userIDPattern    = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	jsProtocol       = regexp.MustCompile(`(?i)javascript:`)
	eventHandlerAttr = regexp.MustCompile(`(?i)on\w+\s*=`)
	unsafePathChars  = regexp.MustCompile(`[^A-Za-z0-9_-]`)
)

const maxUserIDLength = 100

// SanitizeInput trims, truncates and strips common XSS vectors from
// free-form text: angle brackets, javascript: protocol prefixes and inline
// event-handler attributes. It is a defense-in-depth textual filter, not a
// full HTML sanitizer - output is NOT guaranteed safe for HTML interpolation.
//
// The strip passes run to a fixed point so a second application is a no-op.
func SanitizeInput(raw string, maxLength int) string {
	s := strings.TrimSpace(raw)
	if maxLength > 0 {
		runes := []rune(s)
		if len(runes) > maxLength {
			s = string(runes[:maxLength])
		}
	}

	for {
		next := strings.ReplaceAll(s, "<", "")
		next = strings.ReplaceAll(next, ">", "")
		next = jsProtocol.ReplaceAllString(next, "")
		next = eventHandlerAttr.ReplaceAllString(next, "")
		next = strings.TrimSpace(next)
		if next == s {
			return s
		}
		s = next
	}
}

// ValidateUserID reports whether id is safe to interpolate into a file path:
// only alphanumerics, hyphens and underscores, at most 100 characters.
func ValidateUserID(id string) bool {
	if id == "" || len(id) > maxUserIDLength {
		return false
	}
	return userIDPattern.MatchString(id)
}

// SanitizeFilePath reduces name to a string with no path traversal or
// separator characters: ".." sequences and separators are removed, every
// other character outside [A-Za-z0-9_-] becomes "_". Inputs that reduce to
// nothing yield "default".
func SanitizeFilePath(name string) string {
	if name == "" {
		return "default"
	}

	s := strings.ReplaceAll(name, "..", "")
	s = strings.ReplaceAll(s, "/", "")
	s = strings.ReplaceAll(s, `\`, "")
	s = unsafePathChars.ReplaceAllString(s, "_")

	if s == "" {
		return "default"
	}
	return s
}

// GenerateSecureUserID returns a globally unique identifier of the form
// user_<unix millis>_<hex>, with 128 bits of crypto randomness in the
// suffix. The result always passes ValidateUserID.
func GenerateSecureUserID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms
		panic(fmt.Sprintf("security: read random bytes: %v", err))
	}
	return fmt.Sprintf("user_%d_%s", time.Now().UnixMilli(), hex.EncodeToString(buf))
}

// ValidateAPIKey reports whether key looks like a real provider API key
// rather than an unset or placeholder value.
func ValidateAPIKey(key string) bool {
	return len(key) >= 20 && key != "your_api_key_here"
}
