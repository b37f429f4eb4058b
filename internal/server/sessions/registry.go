// Package sessions manages the lifecycle of session handles: minting,
// validation against stored expiry metadata, and destruction. A handle is an
// opaque bearer token; the only server-side trace of it is the identifier
// hash used as the storage key.
package sessions

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/threadcraft/threadcraft/internal/common"
	"github.com/threadcraft/threadcraft/internal/logging"
	"github.com/threadcraft/threadcraft/internal/server/models"
	"github.com/threadcraft/threadcraft/internal/server/records"
)

// Cleaner disposes ancillary per-hash state, such as a local progress
// mirror, when the session's record is removed.
type Cleaner interface {
	Forget(hash string)
}

type Registry struct {
	repo     records.Repository
	logger   logging.Logger
	salt     string
	ttl      time.Duration
	cleaners []Cleaner
}

// NewRegistry builds a registry. salt is mixed into the identifier hash so
// raw handles never appear in persisted storage. ttl is the session
// lifetime from creation; 0 means sessions never expire.
func NewRegistry(repo records.Repository, logger logging.Logger, salt string, ttl time.Duration) *Registry {
	return &Registry{
		repo:   repo,
		logger: logger.With("module", "sessions"),
		salt:   salt,
		ttl:    ttl,
	}
}

// AddCleaner registers a Cleaner to be notified whenever a session's record
// is deleted, whether by explicit destruction or expiry purge. Must be
// called during wiring, before the registry serves requests.
func (r *Registry) AddCleaner(c Cleaner) {
	r.cleaners = append(r.cleaners, c)
}

func (r *Registry) clean(hash string) {
	for _, c := range r.cleaners {
		c.Forget(hash)
	}
}

// Create validates the credential bundle and mints a fresh handle with 256
// bits of entropy. It performs no remote calls and persists nothing; the
// vault stores the credentials and the orchestrator verifies them.
func (r *Registry) Create(ctx context.Context, bundle *models.CredentialBundle) (string, error) {
	if err := bundle.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrValidation, err)
	}

	handle, err := common.MakeRandHexString(common.SessionHandleBytes)
	if err != nil {
		return "", fmt.Errorf("handle generation: %w", err)
	}
	return handle, nil
}

// IdentifierHash derives the fixed 64-hex storage key for a handle:
// SHA-256 over the handle concatenated with the server salt.
func (r *Registry) IdentifierHash(handle string) string {
	sum := sha256.Sum256([]byte(handle + r.salt))
	return hex.EncodeToString(sum[:])
}

// TTL returns the configured session lifetime; 0 means sessions never
// expire.
func (r *Registry) TTL() time.Duration {
	return r.ttl
}

// ExpiresAt computes the expiry for a session created at the given instant,
// or nil when sessions never expire.
func (r *Registry) ExpiresAt(createdAt time.Time) *time.Time {
	if r.ttl <= 0 {
		return nil
	}
	t := createdAt.Add(r.ttl)
	return &t
}

// Validate checks that the handle resolves to a live session. Expired and
// missing sessions both come back as ErrSessionInvalid so callers cannot
// probe for historical handles; the two cases are only told apart in logs.
// An expired record is purged on sight.
func (r *Registry) Validate(ctx context.Context, handle string) error {
	if handle == "" {
		return common.ErrSessionInvalid
	}

	hash := r.IdentifierHash(handle)
	rec, err := r.repo.Get(ctx, hash)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.ErrSessionInvalid
		}
		return err
	}

	if rec.Expired(time.Now()) {
		r.logger.Info(ctx, "session expired, purging record", "hash", hash[:8])
		if err := r.repo.Delete(ctx, hash); err != nil {
			r.logger.Error(ctx, "failed to purge expired record", "hash", hash[:8], "error", err.Error())
		}
		r.clean(hash)
		return common.ErrSessionInvalid
	}

	return nil
}

// Destroy removes all stored data for the handle. Destroying a session that
// never existed, or one already destroyed, succeeds.
func (r *Registry) Destroy(ctx context.Context, handle string) error {
	if handle == "" {
		return nil
	}

	hash := r.IdentifierHash(handle)
	if err := r.repo.Delete(ctx, hash); err != nil {
		return err
	}
	r.clean(hash)
	r.logger.Info(ctx, "session destroyed", "hash", hash[:8])
	return nil
}
