package models

import (
	"fmt"
	"strings"
)

// CredentialBundle is the set of platform API credentials a user submits.
// All five fields are required; a bundle is either fully present or treated
// as absent. Bundles exist in plaintext only between the caller and the
// cipher boundary and must never be logged or persisted as-is.
type CredentialBundle struct {
	APIKey            string `json:"api_key"`
	APISecret         string `json:"api_secret"`
	AccessToken       string `json:"access_token"`
	AccessTokenSecret string `json:"access_token_secret"`
	BearerToken       string `json:"bearer_token"`
}

// Validate reports the names of missing fields, in submission order.
func (b *CredentialBundle) Validate() error {
	var missing []string
	for _, f := range []struct {
		name  string
		value string
	}{
		{"api_key", b.APIKey},
		{"api_secret", b.APISecret},
		{"access_token", b.AccessToken},
		{"access_token_secret", b.AccessTokenSecret},
		{"bearer_token", b.BearerToken},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing credentials: %s", strings.Join(missing, ", "))
	}
	return nil
}

// String keeps credential material out of logs and %v formatting.
func (b CredentialBundle) String() string {
	return "CredentialBundle[redacted]"
}
