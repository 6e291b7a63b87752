package domain

import "time"

// Credential is a bearer token issued by the remote identity endpoint.
type Credential struct {
	Value     string
	ExpiresAt time.Time
}

// ValidAt reports whether the credential may authorize a call made at now.
func (c *Credential) ValidAt(now time.Time) bool {
	if c == nil || c.Value == "" {
		return false
	}
	return now.Before(c.ExpiresAt)
}
