// Package slugs generates and validates the short identifiers used as the
// path segment of public redirect URLs.
package slugs

import (
	"crypto/rand"
	"math/big"
	"regexp"
	"strings"
)

const (
	// DefaultLength is the length of auto-generated slugs. With a 62-symbol
	// alphabet the space is 62^8; collisions are handled by the caller's
	// bounded retry, not here.
	DefaultLength = 8

	MinLength = 3
	MaxLength = 64

	alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
)

var slugRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// reserved lists slug values that collide with application routes.
// Membership is checked case-insensitively.
var reserved = []string{
	"dashboard",
	"api",
	"login",
	"logout",
	"auth",
	"health",
	"metrics",
	"qr",
	"favicon.ico",
	"robots.txt",
	"sitemap.xml",
}

// ValidationError represents a slug validation failure
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Generate produces a random slug of DefaultLength characters
func Generate() (string, error) {
	return GenerateWithLength(DefaultLength)
}

// GenerateWithLength produces a random slug of the given length
func GenerateWithLength(length int) (string, error) {
	slug := make([]byte, length)
	alphabetLen := big.NewInt(int64(len(alphabet)))

	for i := range slug {
		idx, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			return "", err
		}
		slug[i] = alphabet[idx.Int64()]
	}

	return string(slug), nil
}

// IsReserved reports whether the candidate collides with an application
// route. The check trims whitespace and ignores case.
func IsReserved(candidate string) bool {
	normalized := strings.ToLower(strings.TrimSpace(candidate))
	for _, r := range reserved {
		if normalized == r {
			return true
		}
	}
	return false
}

// Validate checks length bounds and charset. It does not check reservation
// or uniqueness; callers apply those separately.
func Validate(candidate string) error {
	if len(candidate) < MinLength {
		return &ValidationError{"Slug must be at least 3 characters"}
	}
	if len(candidate) > MaxLength {
		return &ValidationError{"Slug must be at most 64 characters"}
	}
	if !slugRegex.MatchString(candidate) {
		return &ValidationError{"Slug may contain only letters, numbers, hyphens, and underscores"}
	}
	return nil
}
