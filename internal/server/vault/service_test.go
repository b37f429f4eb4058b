package vault

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/threadcraft/threadcraft/internal/common"
	"github.com/threadcraft/threadcraft/internal/cryptox"
	"github.com/threadcraft/threadcraft/internal/logging"
	"github.com/threadcraft/threadcraft/internal/server/models"
	"github.com/threadcraft/threadcraft/internal/server/records"
	"github.com/threadcraft/threadcraft/internal/server/sessions"
)

type fixture struct {
	repo     *records.InMemoryRepository
	registry *sessions.Registry
	vault    *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	repo := records.NewInMemoryRepository()
	registry := sessions.NewRegistry(repo, logger, "test-salt", 24*time.Hour)
	cipher, err := cryptox.NewCipher([]byte("test-master-secret"))
	require.NoError(t, err)
	return &fixture{
		repo:     repo,
		registry: registry,
		vault:    NewService(repo, cipher, registry, logger),
	}
}

func validBundle() *models.CredentialBundle {
	return &models.CredentialBundle{
		APIKey:            "key",
		APISecret:         "secret",
		AccessToken:       "token",
		AccessTokenSecret: "token-secret",
		BearerToken:       "bearer",
	}
}

func TestStoreLoad_RoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	handle, err := f.registry.Create(ctx, validBundle())
	require.NoError(t, err)

	require.NoError(t, f.vault.Store(ctx, handle, validBundle()))

	got, err := f.vault.Load(ctx, handle)
	require.NoError(t, err)
	require.Equal(t, validBundle(), got)
}

func TestStore_InvalidBundle(t *testing.T) {
	f := newFixture(t)

	b := validBundle()
	b.APISecret = ""
	err := f.vault.Store(context.Background(), "handle", b)
	require.ErrorIs(t, err, common.ErrValidation)
}

func TestStore_PreservesProgress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	handle, err := f.registry.Create(ctx, validBundle())
	require.NoError(t, err)
	require.NoError(t, f.vault.Store(ctx, handle, validBundle()))

	hash := f.registry.IdentifierHash(handle)
	require.NoError(t, f.repo.UpdateProgress(ctx, hash, 7, []byte("enc-ref")))

	// Reconnecting overwrites credentials but not thread progress.
	updated := validBundle()
	updated.APIKey = "rotated-key"
	require.NoError(t, f.vault.Store(ctx, handle, updated))

	rec, err := f.repo.Get(ctx, hash)
	require.NoError(t, err)
	require.EqualValues(t, 7, rec.CurrentDay)
	require.Equal(t, []byte("enc-ref"), rec.EncryptedThreadRef)

	got, err := f.vault.Load(ctx, handle)
	require.NoError(t, err)
	require.Equal(t, "rotated-key", got.APIKey)
}

func TestLoad_NoRecord(t *testing.T) {
	f := newFixture(t)

	_, err := f.vault.Load(context.Background(), "unknown-handle")
	require.ErrorIs(t, err, common.ErrNoCredentials)
}

func TestLoad_TamperedCiphertext(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	handle, err := f.registry.Create(ctx, validBundle())
	require.NoError(t, err)
	require.NoError(t, f.vault.Store(ctx, handle, validBundle()))

	hash := f.registry.IdentifierHash(handle)
	rec, err := f.repo.Get(ctx, hash)
	require.NoError(t, err)

	tampered := append([]byte(nil), rec.EncryptedCredentials...)
	tampered[len(tampered)/2] ^= 0x01
	require.NoError(t, f.repo.UpsertCredentials(ctx, hash, tampered, rec.ExpiresAt))

	_, err = f.vault.Load(ctx, handle)
	require.ErrorIs(t, err, common.ErrDecryptionFailed)
}

func TestLoad_WrongHandleCannotDecrypt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	handle, err := f.registry.Create(ctx, validBundle())
	require.NoError(t, err)
	require.NoError(t, f.vault.Store(ctx, handle, validBundle()))

	// Copy the blob under the hash of a different handle; the derived key
	// no longer matches and decryption must fail closed.
	other, err := f.registry.Create(ctx, validBundle())
	require.NoError(t, err)

	rec, err := f.repo.Get(ctx, f.registry.IdentifierHash(handle))
	require.NoError(t, err)
	require.NoError(t, f.repo.UpsertCredentials(ctx, f.registry.IdentifierHash(other), rec.EncryptedCredentials, nil))

	_, err = f.vault.Load(ctx, other)
	require.ErrorIs(t, err, common.ErrDecryptionFailed)
}

func TestLoad_ExpiredSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	handle, err := f.registry.Create(ctx, validBundle())
	require.NoError(t, err)
	require.NoError(t, f.vault.Store(ctx, handle, validBundle()))

	hash := f.registry.IdentifierHash(handle)
	rec, err := f.repo.Get(ctx, hash)
	require.NoError(t, err)

	past := time.Now().Add(-time.Minute)
	rec.ExpiresAt = &past
	require.NoError(t, f.repo.Delete(ctx, hash))
	require.NoError(t, f.repo.UpsertCredentials(ctx, hash, rec.EncryptedCredentials, &past))

	_, err = f.vault.Load(ctx, handle)
	require.ErrorIs(t, err, common.ErrSessionInvalid)
}

func TestRemove_ThenLoadFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	handle, err := f.registry.Create(ctx, validBundle())
	require.NoError(t, err)
	require.NoError(t, f.vault.Store(ctx, handle, validBundle()))

	require.NoError(t, f.vault.Remove(ctx, handle))
	_, err = f.vault.Load(ctx, handle)
	require.ErrorIs(t, err, common.ErrNoCredentials)

	// Removing again is fine.
	require.NoError(t, f.vault.Remove(ctx, handle))
}

func TestStore_StoreUnavailable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	handle, err := f.registry.Create(ctx, validBundle())
	require.NoError(t, err)

	f.repo.SetAvailable(false)
	err = f.vault.Store(ctx, handle, validBundle())
	require.ErrorIs(t, err, common.ErrStoreUnavailable)
}
