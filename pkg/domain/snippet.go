package domain

import (
	"time"
)

const (
	MinExpiryMinutes     = 1
	MaxExpiryMinutes     = 360
	DefaultExpiryMinutes = 60
)

type Snippet struct {
	ID               string    `json:"id"`
	Title            string    `json:"title,omitempty"`
	Language         string    `json:"language,omitempty"`
	Content          string    `json:"content,omitempty"`
	EncryptedContent []byte    `json:"-"`
	OwnerID          string    `json:"-"`
	CreatedAt        time.Time `json:"created_at"`
	ExpiresAt        time.Time `json:"expires_at"`
}

// Expired reports whether the snippet is logically dead at t. A record with
// ExpiresAt <= t must never be served, even if it still exists on disk.
func (s *Snippet) Expired(t time.Time) bool {
	return !t.Before(s.ExpiresAt)
}

type CreateParams struct {
	Content       string
	Title         string
	Language      string
	ExpiryMinutes int
	OwnerID       string
}

// ClampExpiry normalizes a requested TTL in minutes to the allowed window.
// Out-of-range values are silently normalized, never rejected: anything above
// the cap becomes the cap, anything below the minimum (including absent, i.e.
// zero) falls back to the default.
func ClampExpiry(minutes int) time.Duration {
	if minutes > MaxExpiryMinutes {
		minutes = MaxExpiryMinutes
	}
	if minutes < MinExpiryMinutes {
		minutes = DefaultExpiryMinutes
	}
	return time.Duration(minutes) * time.Minute
}
