package sessions

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/threadcraft/threadcraft/internal/common"
	"github.com/threadcraft/threadcraft/internal/logging"
	"github.com/threadcraft/threadcraft/internal/server/models"
	"github.com/threadcraft/threadcraft/internal/server/records"
)

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
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

func TestCreate_MintsDistinctHandles(t *testing.T) {
	r := NewRegistry(records.NewInMemoryRepository(), testLogger(), "salt", time.Hour)

	h1, err := r.Create(context.Background(), validBundle())
	require.NoError(t, err)
	h2, err := r.Create(context.Background(), validBundle())
	require.NoError(t, err)

	require.Len(t, h1, common.SessionHandleBytes*2)
	require.NotEqual(t, h1, h2)
}

func TestCreate_MissingField(t *testing.T) {
	r := NewRegistry(records.NewInMemoryRepository(), testLogger(), "salt", time.Hour)

	b := validBundle()
	b.BearerToken = "  "
	_, err := r.Create(context.Background(), b)
	require.ErrorIs(t, err, common.ErrValidation)
	require.Contains(t, err.Error(), "bearer_token")
}

func TestIdentifierHash_FixedLengthAndSalted(t *testing.T) {
	repo := records.NewInMemoryRepository()
	r1 := NewRegistry(repo, testLogger(), "salt-1", time.Hour)
	r2 := NewRegistry(repo, testLogger(), "salt-2", time.Hour)

	h1 := r1.IdentifierHash("handle")
	require.Len(t, h1, 64)
	require.Equal(t, h1, r1.IdentifierHash("handle"))
	require.NotEqual(t, h1, r2.IdentifierHash("handle"))
}

func TestValidate_UnknownHandle(t *testing.T) {
	r := NewRegistry(records.NewInMemoryRepository(), testLogger(), "salt", time.Hour)

	err := r.Validate(context.Background(), "no-such-handle")
	require.ErrorIs(t, err, common.ErrSessionInvalid)
}

func TestValidate_EmptyHandle(t *testing.T) {
	r := NewRegistry(records.NewInMemoryRepository(), testLogger(), "salt", time.Hour)

	err := r.Validate(context.Background(), "")
	require.ErrorIs(t, err, common.ErrSessionInvalid)
}

func TestValidate_ActiveSession(t *testing.T) {
	repo := records.NewInMemoryRepository()
	r := NewRegistry(repo, testLogger(), "salt", time.Hour)

	handle, err := r.Create(context.Background(), validBundle())
	require.NoError(t, err)

	expires := r.ExpiresAt(time.Now())
	require.NoError(t, repo.UpsertCredentials(context.Background(), r.IdentifierHash(handle), []byte("blob"), expires))

	require.NoError(t, r.Validate(context.Background(), handle))
}

func TestValidate_ExpiredBehavesLikeNotFound(t *testing.T) {
	repo := records.NewInMemoryRepository()
	r := NewRegistry(repo, testLogger(), "salt", time.Hour)

	handle, err := r.Create(context.Background(), validBundle())
	require.NoError(t, err)

	past := time.Now().Add(-time.Minute)
	require.NoError(t, repo.UpsertCredentials(context.Background(), r.IdentifierHash(handle), []byte("blob"), &past))

	err = r.Validate(context.Background(), handle)
	require.ErrorIs(t, err, common.ErrSessionInvalid)

	// The expired record is purged, so the handle now resolves to nothing.
	_, err = repo.Get(context.Background(), r.IdentifierHash(handle))
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestValidate_NeverExpires(t *testing.T) {
	repo := records.NewInMemoryRepository()
	r := NewRegistry(repo, testLogger(), "salt", 0)

	handle, err := r.Create(context.Background(), validBundle())
	require.NoError(t, err)

	require.Nil(t, r.ExpiresAt(time.Now()))
	require.NoError(t, repo.UpsertCredentials(context.Background(), r.IdentifierHash(handle), []byte("blob"), nil))
	require.NoError(t, r.Validate(context.Background(), handle))
}

func TestDestroy_Idempotent(t *testing.T) {
	repo := records.NewInMemoryRepository()
	r := NewRegistry(repo, testLogger(), "salt", time.Hour)

	handle, err := r.Create(context.Background(), validBundle())
	require.NoError(t, err)
	require.NoError(t, repo.UpsertCredentials(context.Background(), r.IdentifierHash(handle), []byte("blob"), nil))

	require.NoError(t, r.Destroy(context.Background(), handle))
	require.ErrorIs(t, r.Validate(context.Background(), handle), common.ErrSessionInvalid)

	// Destroying again still succeeds.
	require.NoError(t, r.Destroy(context.Background(), handle))
}

type recordingCleaner struct {
	forgotten []string
}

func (c *recordingCleaner) Forget(hash string) {
	c.forgotten = append(c.forgotten, hash)
}

func TestDestroy_NotifiesCleaners(t *testing.T) {
	repo := records.NewInMemoryRepository()
	r := NewRegistry(repo, testLogger(), "salt", time.Hour)
	cleaner := &recordingCleaner{}
	r.AddCleaner(cleaner)

	handle, err := r.Create(context.Background(), validBundle())
	require.NoError(t, err)
	require.NoError(t, repo.UpsertCredentials(context.Background(), r.IdentifierHash(handle), []byte("blob"), nil))

	require.NoError(t, r.Destroy(context.Background(), handle))
	require.Equal(t, []string{r.IdentifierHash(handle)}, cleaner.forgotten)
}

func TestValidate_ExpiryPurgeNotifiesCleaners(t *testing.T) {
	repo := records.NewInMemoryRepository()
	r := NewRegistry(repo, testLogger(), "salt", time.Hour)
	cleaner := &recordingCleaner{}
	r.AddCleaner(cleaner)

	handle, err := r.Create(context.Background(), validBundle())
	require.NoError(t, err)

	past := time.Now().Add(-time.Minute)
	require.NoError(t, repo.UpsertCredentials(context.Background(), r.IdentifierHash(handle), []byte("blob"), &past))

	require.ErrorIs(t, r.Validate(context.Background(), handle), common.ErrSessionInvalid)
	require.Equal(t, []string{r.IdentifierHash(handle)}, cleaner.forgotten)
}

func TestValidate_StoreUnavailable(t *testing.T) {
	repo := records.NewInMemoryRepository()
	r := NewRegistry(repo, testLogger(), "salt", time.Hour)

	repo.SetAvailable(false)
	err := r.Validate(context.Background(), "some-handle")
	require.ErrorIs(t, err, common.ErrStoreUnavailable)
}
