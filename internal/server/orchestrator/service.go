// Package orchestrator is the thin coordination layer binding sessions,
// vault, and thread progress to the remote platform. It owns the
// connect/disconnect flow; everything else is delegation.
package orchestrator

import (
	"context"
	"time"

	"github.com/threadcraft/threadcraft/internal/logging"
	"github.com/threadcraft/threadcraft/internal/server/models"
	"github.com/threadcraft/threadcraft/internal/server/platform"
	"github.com/threadcraft/threadcraft/internal/server/progress"
	"github.com/threadcraft/threadcraft/internal/server/sessions"
	"github.com/threadcraft/threadcraft/internal/server/vault"
)

type Service struct {
	registry *sessions.Registry
	vault    *vault.Service
	tracker  *progress.Tracker
	client   platform.Client
	logger   logging.Logger
}

// Connection is the result of a successful connect: the bearer handle the
// caller must present from now on, the verified platform profile, and the
// session lifetime (0 = no expiry).
type Connection struct {
	Handle  string
	Profile *models.Profile
	TTL     time.Duration
}

func NewService(
	registry *sessions.Registry,
	vlt *vault.Service,
	tracker *progress.Tracker,
	client platform.Client,
	logger logging.Logger,
) *Service {
	return &Service{
		registry: registry,
		vault:    vlt,
		tracker:  tracker,
		client:   client,
		logger:   logger.With("module", "orchestrator"),
	}
}

// Connect creates a session for the submitted credentials, stores them
// encrypted, and verifies them against the platform. Verification failure
// destroys the just-created session so an unusable one is never left
// active.
func (s *Service) Connect(ctx context.Context, bundle *models.CredentialBundle) (*Connection, error) {
	handle, err := s.registry.Create(ctx, bundle)
	if err != nil {
		return nil, err
	}

	if err := s.vault.Store(ctx, handle, bundle); err != nil {
		return nil, err
	}

	profile, err := s.client.GetProfile(ctx, bundle)
	if err != nil {
		if derr := s.registry.Destroy(ctx, handle); derr != nil {
			s.logger.Error(ctx, "failed to destroy unverified session", "error", derr.Error())
		}
		return nil, err
	}

	s.logger.Info(ctx, "session connected", "username", profile.Username)
	return &Connection{Handle: handle, Profile: profile, TTL: s.registry.TTL()}, nil
}

// Disconnect destroys the session and all stored data. Idempotent.
func (s *Service) Disconnect(ctx context.Context, handle string) error {
	return s.registry.Destroy(ctx, handle)
}

// Validate reports whether the handle still resolves to a live session.
func (s *Service) Validate(ctx context.Context, handle string) error {
	return s.registry.Validate(ctx, handle)
}

// Profile fetches the authenticated account's profile with the stored
// credentials.
func (s *Service) Profile(ctx context.Context, handle string) (*models.Profile, error) {
	if err := s.registry.Validate(ctx, handle); err != nil {
		return nil, err
	}
	creds, err := s.vault.Load(ctx, handle)
	if err != nil {
		return nil, err
	}
	return s.client.GetProfile(ctx, creds)
}

func (s *Service) Status(ctx context.Context, handle string) (*progress.Status, error) {
	return s.tracker.GetStatus(ctx, handle)
}

func (s *Service) StartThread(ctx context.Context, handle, introText string) (string, error) {
	return s.tracker.StartThread(ctx, handle, introText)
}

func (s *Service) ContinueThread(ctx context.Context, handle, rawRef string) (*progress.Resolution, error) {
	return s.tracker.ContinueThread(ctx, handle, rawRef)
}

func (s *Service) PostNext(ctx context.Context, handle, body, link string) (*progress.Outcome, error) {
	return s.tracker.PostNext(ctx, handle, body, link)
}

func (s *Service) PreviewNext(ctx context.Context, handle, body, link string) (*progress.Preview, error) {
	return s.tracker.PreviewNext(ctx, handle, body, link)
}

func (s *Service) SetDay(ctx context.Context, handle string, day int64) error {
	return s.tracker.SetDay(ctx, handle, day)
}

func (s *Service) Reset(ctx context.Context, handle string) error {
	return s.tracker.Reset(ctx, handle)
}
