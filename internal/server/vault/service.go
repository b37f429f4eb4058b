// Package vault persists credential bundles as encrypted blobs keyed by
// identifier hash. Plaintext exists only inside Store and Load; everything
// at rest went through the cipher.
package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/threadcraft/threadcraft/internal/common"
	"github.com/threadcraft/threadcraft/internal/cryptox"
	"github.com/threadcraft/threadcraft/internal/logging"
	"github.com/threadcraft/threadcraft/internal/server/models"
	"github.com/threadcraft/threadcraft/internal/server/records"
	"github.com/threadcraft/threadcraft/internal/server/sessions"
)

type Service struct {
	repo     records.Repository
	cipher   *cryptox.Cipher
	registry *sessions.Registry
	logger   logging.Logger
}

func NewService(repo records.Repository, cipher *cryptox.Cipher, registry *sessions.Registry, logger logging.Logger) *Service {
	return &Service{
		repo:     repo,
		cipher:   cipher,
		registry: registry,
		logger:   logger.With("module", "vault"),
	}
}

// Store encrypts the bundle under the handle-derived key and upserts it.
// Storing again for an existing session overwrites credentials but leaves
// the day counter and thread reference untouched.
func (s *Service) Store(ctx context.Context, handle string, bundle *models.CredentialBundle) error {
	if err := bundle.Validate(); err != nil {
		return fmt.Errorf("%w: %v", common.ErrValidation, err)
	}

	key, err := s.cipher.DeriveKey(handle)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(key)

	plaintext, err := json.Marshal(bundle)
	if err != nil {
		return fmt.Errorf("credential serialization: %w", err)
	}
	defer common.WipeByteArray(plaintext)

	blob, err := s.cipher.Encrypt(key, plaintext)
	if err != nil {
		return err
	}

	hash := s.registry.IdentifierHash(handle)
	if err := s.repo.UpsertCredentials(ctx, hash, blob, s.registry.ExpiresAt(time.Now())); err != nil {
		return err
	}

	s.logger.Info(ctx, "credentials stored", "hash", hash[:8])
	return nil
}

// Load decrypts the stored bundle for the handle. A missing record reports
// ErrNoCredentials and a cipher mismatch reports ErrDecryptionFailed, so the
// orchestrator can tell "re-enter credentials" apart from "reconnect".
func (s *Service) Load(ctx context.Context, handle string) (*models.CredentialBundle, error) {
	hash := s.registry.IdentifierHash(handle)

	rec, err := s.repo.Get(ctx, hash)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrNoCredentials
		}
		return nil, err
	}

	if rec.Expired(time.Now()) {
		return nil, common.ErrSessionInvalid
	}

	key, err := s.cipher.DeriveKey(handle)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(key)

	plaintext, err := s.cipher.Decrypt(key, rec.EncryptedCredentials)
	if err != nil {
		// Key mismatch usually means the master secret rotated under a
		// live session. Logged for operators, surfaced as an auth failure.
		s.logger.Error(ctx, "credential decryption failed", "hash", hash[:8], "error", err.Error())
		return nil, err
	}
	defer common.WipeByteArray(plaintext)

	var bundle models.CredentialBundle
	if err := json.Unmarshal(plaintext, &bundle); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDecryptionFailed, err)
	}

	return &bundle, nil
}

// Remove deletes the stored record. Removing absent credentials succeeds.
func (s *Service) Remove(ctx context.Context, handle string) error {
	return s.repo.Delete(ctx, s.registry.IdentifierHash(handle))
}
