package orchestrator

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/threadcraft/threadcraft/internal/common"
	"github.com/threadcraft/threadcraft/internal/cryptox"
	"github.com/threadcraft/threadcraft/internal/logging"
	"github.com/threadcraft/threadcraft/internal/server/models"
	"github.com/threadcraft/threadcraft/internal/server/platform"
	"github.com/threadcraft/threadcraft/internal/server/progress"
	"github.com/threadcraft/threadcraft/internal/server/records"
	"github.com/threadcraft/threadcraft/internal/server/sessions"
	"github.com/threadcraft/threadcraft/internal/server/vault"
)

type fakePlatform struct {
	mu         sync.Mutex
	nextID     int
	profileErr error
}

func (f *fakePlatform) nextPostID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	return fmt.Sprintf("%d", f.nextID)
}

func (f *fakePlatform) CreatePost(ctx context.Context, creds *models.CredentialBundle, text string) (string, error) {
	return f.nextPostID(), nil
}

func (f *fakePlatform) Reply(ctx context.Context, creds *models.CredentialBundle, text, inReplyToID string) (string, error) {
	return f.nextPostID(), nil
}

func (f *fakePlatform) GetPost(ctx context.Context, creds *models.CredentialBundle, id string) (*platform.Post, error) {
	return &platform.Post{ID: id, AuthorID: "42"}, nil
}

func (f *fakePlatform) ListReplies(ctx context.Context, creds *models.CredentialBundle, conversationID, username string) ([]platform.Post, error) {
	return nil, nil
}

func (f *fakePlatform) GetProfile(ctx context.Context, creds *models.CredentialBundle) (*models.Profile, error) {
	if f.profileErr != nil {
		return nil, f.profileErr
	}
	return &models.Profile{ID: "42", Username: "alice", Name: "Alice"}, nil
}

type fixture struct {
	repo     *records.InMemoryRepository
	registry *sessions.Registry
	vault    *vault.Service
	client   *fakePlatform
	service  *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))

	repo := records.NewInMemoryRepository()
	registry := sessions.NewRegistry(repo, logger, "test-salt", 24*time.Hour)
	cipher, err := cryptox.NewCipher([]byte("test-master-secret"))
	require.NoError(t, err)
	vlt := vault.NewService(repo, cipher, registry, logger)
	client := &fakePlatform{}
	tracker := progress.NewTracker(repo, cipher, registry, vlt, client, nil, logger)

	return &fixture{
		repo:     repo,
		registry: registry,
		vault:    vlt,
		client:   client,
		service:  NewService(registry, vlt, tracker, client, logger),
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

func TestConnect_Success(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conn, err := f.service.Connect(ctx, validBundle())
	require.NoError(t, err)
	require.NotEmpty(t, conn.Handle)
	require.Equal(t, "alice", conn.Profile.Username)
	require.Equal(t, 24*time.Hour, conn.TTL)

	require.NoError(t, f.service.Validate(ctx, conn.Handle))
}

func TestConnect_MissingField(t *testing.T) {
	f := newFixture(t)

	b := validBundle()
	b.AccessToken = ""
	_, err := f.service.Connect(context.Background(), b)
	require.ErrorIs(t, err, common.ErrValidation)
}

func TestConnect_BadCredentialsDestroysSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.client.profileErr = common.ErrAuthInvalid
	_, err := f.service.Connect(ctx, validBundle())
	require.ErrorIs(t, err, common.ErrAuthInvalid)

	// No record survives a failed verification.
	all, err := f.repo.All(ctx)
	require.NoError(t, err)
	require.Empty(t, all)
}

func TestDisconnect_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conn, err := f.service.Connect(ctx, validBundle())
	require.NoError(t, err)

	require.NoError(t, f.service.Disconnect(ctx, conn.Handle))
	require.ErrorIs(t, f.service.Validate(ctx, conn.Handle), common.ErrSessionInvalid)
	require.NoError(t, f.service.Disconnect(ctx, conn.Handle))
}

func TestScenario_ConnectStartPostTamper(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conn, err := f.service.Connect(ctx, validBundle())
	require.NoError(t, err)

	_, err = f.service.StartThread(ctx, conn.Handle, "intro")
	require.NoError(t, err)

	status, err := f.service.Status(ctx, conn.Handle)
	require.NoError(t, err)
	require.EqualValues(t, 0, status.CurrentDay)
	require.EqualValues(t, 1, status.NextDay)

	out, err := f.service.PostNext(ctx, conn.Handle, "body", "https://gist.example/x")
	require.NoError(t, err)
	require.EqualValues(t, 1, out.Day)

	status, err = f.service.Status(ctx, conn.Handle)
	require.NoError(t, err)
	require.EqualValues(t, 1, status.CurrentDay)

	// Tamper with the ciphertext at rest: Load must fail closed with a
	// decryption error, never hand back garbage credentials.
	hash := f.registry.IdentifierHash(conn.Handle)
	rec, err := f.repo.Get(ctx, hash)
	require.NoError(t, err)
	tampered := append([]byte(nil), rec.EncryptedCredentials...)
	tampered[len(tampered)/2] ^= 0x01
	require.NoError(t, f.repo.UpsertCredentials(ctx, hash, tampered, rec.ExpiresAt))

	_, err = f.vault.Load(ctx, conn.Handle)
	require.ErrorIs(t, err, common.ErrDecryptionFailed)
}

func TestProfile_RequiresLiveSession(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Profile(context.Background(), "unknown")
	require.ErrorIs(t, err, common.ErrSessionInvalid)
}
