package session

import "time"

// Envelope is the credential triple persisted in the session cookies.
type Envelope struct {
	AccessToken  string
	RefreshToken string
	// ExpiresAt is the absolute expiry of AccessToken in unix seconds.
	ExpiresAt int64
}

// Complete reports whether every field is populated.
func (e Envelope) Complete() bool {
	return e.AccessToken != "" && e.RefreshToken != "" && e.ExpiresAt > 0
}

// Expiry returns ExpiresAt as a time.Time.
func (e Envelope) Expiry() time.Time {
	return time.Unix(e.ExpiresAt, 0)
}
