// Package models holds the persisted data structures of the ThreadCraft
// server. Credential and thread-reference fields are opaque encrypted blobs;
// plaintext never reaches this layer.
package models

import "time"

// Record is one user's encrypted state, keyed by the identifier hash derived
// from the session handle. CurrentDay is the highest day already posted;
// 0 means nothing has been posted yet and the next day is always
// CurrentDay + 1, derived, never stored.
type Record struct {
	IdentifierHash       string
	EncryptedCredentials []byte
	EncryptedThreadRef   []byte // nil when no thread is active
	CurrentDay           int64
	CreatedAt            time.Time
	ExpiresAt            *time.Time // nil means the session never expires
	UpdatedAt            time.Time
}

// Expired reports whether the record's session lifetime has passed at the
// given instant. Records without an expiry never expire.
func (r *Record) Expired(now time.Time) bool {
	return r.ExpiresAt != nil && !now.Before(*r.ExpiresAt)
}

// Profile describes the authenticated platform account, as reported by the
// remote platform when credentials are verified.
type Profile struct {
	ID       string
	Username string
	Name     string
	ImageURL string
}
