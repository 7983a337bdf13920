package links

import (
	"net/url"
	"time"
)

const maxURLLength = 2048

// ValidationError represents a field-level validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ValidateURL checks that a destination is a well-formed absolute
// http/https URL within the length bound.
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return &ValidationError{"url", "Destination URL is required"}
	}

	if len(rawURL) > maxURLLength {
		return &ValidationError{"url", "URL must be at most 2048 characters"}
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return &ValidationError{"url", "Must be a valid URL"}
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return &ValidationError{"url", "Only HTTP and HTTPS URLs are allowed"}
	}

	if parsed.Host == "" {
		return &ValidationError{"url", "URL must contain a valid host"}
	}

	return nil
}

// ParseExpiry parses an RFC 3339 expiry and requires it to lie in the future.
func ParseExpiry(value string, now time.Time) (time.Time, error) {
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, &ValidationError{"expires_at", "Expiration must be a valid datetime"}
	}

	if !parsed.After(now) {
		return time.Time{}, &ValidationError{"expires_at", "Expiration must be in the future"}
	}

	return parsed, nil
}
