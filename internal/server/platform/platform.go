// Package platform adapts the remote social platform behind a small
// credential-parameterized capability interface. The tracker and the
// orchestrator consume this interface; the Twitter implementation is the
// only code that knows about wire formats.
package platform

import (
	"context"

	"github.com/threadcraft/threadcraft/internal/server/models"
)

// Post is a single post on the remote platform.
type Post struct {
	ID       string
	Text     string
	AuthorID string
}

// Client is the remote platform capability. Every call authenticates with
// the supplied bundle; the adapter keeps no per-user state. Implementations
// report failures through the common error taxonomy (ErrAuthInvalid,
// ErrRateLimited, ErrRemoteUnavailable, ...) and perform no retries.
type Client interface {
	// CreatePost publishes text as a new root post and returns its ID.
	CreatePost(ctx context.Context, creds *models.CredentialBundle, text string) (string, error)

	// Reply publishes text as a reply to the given post and returns its ID.
	Reply(ctx context.Context, creds *models.CredentialBundle, text, inReplyToID string) (string, error)

	// GetPost fetches a single post, including its author.
	GetPost(ctx context.Context, creds *models.CredentialBundle, id string) (*Post, error)

	// ListReplies returns the authenticated account's own replies within
	// the conversation rooted at conversationID, most recent first.
	ListReplies(ctx context.Context, creds *models.CredentialBundle, conversationID, username string) ([]Post, error)

	// GetProfile fetches the authenticated account's profile, which also
	// serves as the credential verification probe.
	GetProfile(ctx context.Context, creds *models.CredentialBundle) (*models.Profile, error)
}
