package models

import (
	"regexp"
	"strings"
	"time"
)

// Profile is a user's public profile row. Created server-side on signup and
// mutated only by the owning user.
type Profile struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	FullName      string    `json:"full_name,omitempty"`
	Email         string    `json:"email,omitempty"`
	BackgroundKey string    `json:"background_key,omitempty"`
	CreatedAt     time.Time `json:"created_at,omitempty"`
}

// DisplayName returns the best available human-readable name.
func (p Profile) DisplayName() string {
	if p.FullName != "" {
		return p.FullName
	}
	if p.Username != "" {
		return p.Username
	}
	if at := strings.IndexByte(p.Email, '@'); at > 0 {
		return p.Email[:at]
	}
	return "user"
}

var (
	emailPattern    = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.]{3,}$`)
)

// ValidEmail reports whether s looks like an email address.
func ValidEmail(s string) bool {
	return emailPattern.MatchString(s)
}

// ValidUsername reports whether s is an acceptable username: at least three
// characters out of letters, digits, underscore and dot.
func ValidUsername(s string) bool {
	return usernamePattern.MatchString(s)
}
