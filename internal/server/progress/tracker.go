// Package progress tracks, per session, which day of a thread has been
// posted, and resolves thread continuation by inspecting remote state.
package progress

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/threadcraft/threadcraft/internal/common"
	"github.com/threadcraft/threadcraft/internal/cryptox"
	"github.com/threadcraft/threadcraft/internal/logging"
	"github.com/threadcraft/threadcraft/internal/server/platform"
	"github.com/threadcraft/threadcraft/internal/server/records"
	"github.com/threadcraft/threadcraft/internal/server/sessions"
	"github.com/threadcraft/threadcraft/internal/server/vault"
)

// Resolution is the outcome of resuming an existing thread.
type Resolution struct {
	ThreadRef  string
	CurrentDay int64
	NextDay    int64
}

// Outcome reports a successfully posted day.
type Outcome struct {
	PostID string
	Day    int64
	Text   string
}

// Preview is the rendered next post, without any remote call.
type Preview struct {
	Text       string
	Characters int
	Valid      bool
	Day        int64
}

// Status reports the stored progress for a session. Degraded is set when
// the answer came from the local journal because the store was unreachable.
type Status struct {
	CurrentDay      int64
	NextDay         int64
	HasActiveThread bool
	ThreadRef       string
	Degraded        bool
}

// Tracker owns thread progress. Each session's state is one logical
// resource: mutating calls for the same identifier hash are serialized by an
// in-process lock, and the store's conditional day update guards against
// lost updates beyond that.
type Tracker struct {
	repo     records.Repository
	cipher   *cryptox.Cipher
	registry *sessions.Registry
	vault    *vault.Service
	client   platform.Client
	journal  *Journal // optional
	logger   logging.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewTracker(
	repo records.Repository,
	cipher *cryptox.Cipher,
	registry *sessions.Registry,
	vlt *vault.Service,
	client platform.Client,
	journal *Journal,
	logger logging.Logger,
) *Tracker {
	return &Tracker{
		repo:     repo,
		cipher:   cipher,
		registry: registry,
		vault:    vlt,
		client:   client,
		journal:  journal,
		logger:   logger.With("module", "progress"),
		locks:    make(map[string]*sync.Mutex),
	}
}

// lockHash serializes callers touching the same identifier hash.
func (t *Tracker) lockHash(hash string) func() {
	t.mu.Lock()
	l, ok := t.locks[hash]
	if !ok {
		l = &sync.Mutex{}
		t.locks[hash] = l
	}
	t.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// ComposePost renders the fixed posting template for a given day.
func ComposePost(day int64, body, link string) string {
	if link == "" {
		return fmt.Sprintf("Day %d\n\n%s", day, body)
	}
	return fmt.Sprintf("Day %d\n\n%s\n\n%s", day, body, link)
}

func validateLength(text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: text is empty", common.ErrValidation)
	}
	if n := utf8.RuneCountInString(text); n > common.MaxPostLength {
		return fmt.Errorf("%w: text is %d characters, maximum is %d", common.ErrPostTooLong, n, common.MaxPostLength)
	}
	return nil
}

func (t *Tracker) encryptRef(handle, threadRef string) ([]byte, error) {
	key, err := t.cipher.DeriveKey(handle)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(key)
	return t.cipher.Encrypt(key, []byte(threadRef))
}

func (t *Tracker) decryptRef(handle string, blob []byte) (string, error) {
	key, err := t.cipher.DeriveKey(handle)
	if err != nil {
		return "", err
	}
	defer common.WipeByteArray(key)
	ref, err := t.cipher.Decrypt(key, blob)
	if err != nil {
		return "", err
	}
	return string(ref), nil
}

func (t *Tracker) mirror(hash string, day int64, hasThread bool) {
	if t.journal == nil {
		return
	}
	if err := t.journal.Record(hash, day, hasThread); err != nil {
		t.logger.Warn(context.Background(), "progress journal write failed", "hash", hash[:8], "error", err.Error())
	}
}

// StartThread posts introText as a new root post and rebinds the session to
// the new thread with the day counter at zero. Any previously tracked
// thread reference is overwritten, not retained.
func (t *Tracker) StartThread(ctx context.Context, handle, introText string) (string, error) {
	introText = strings.TrimSpace(introText)
	if err := validateLength(introText); err != nil {
		return "", err
	}

	if err := t.registry.Validate(ctx, handle); err != nil {
		return "", err
	}

	creds, err := t.vault.Load(ctx, handle)
	if err != nil {
		return "", err
	}

	threadRef, err := t.client.CreatePost(ctx, creds, introText)
	if err != nil {
		return "", err
	}

	hash := t.registry.IdentifierHash(handle)
	unlock := t.lockHash(hash)
	defer unlock()

	encRef, err := t.encryptRef(handle, threadRef)
	if err != nil {
		return "", err
	}
	if err := t.repo.UpdateProgress(ctx, hash, 0, encRef); err != nil {
		// The root post exists remotely; the caller can recover with a
		// continue-thread call once the store is back.
		t.logger.Error(ctx, "thread started but progress not stored", "hash", hash[:8], "error", err.Error())
		return "", err
	}

	t.mirror(hash, 0, true)
	t.logger.Info(ctx, "thread started", "hash", hash[:8])
	return threadRef, nil
}

// ContinueThread rebinds the session to an existing thread and derives the
// current day from remote state. The rule is deterministic: the highest
// "Day N" marker among the account's own replies wins; if none carry a
// marker, the raw count of own replies is used; an unreplied thread is day
// zero. Repeated calls on an unchanged thread yield the same answer.
func (t *Tracker) ContinueThread(ctx context.Context, handle, rawRef string) (*Resolution, error) {
	threadRef, err := NormalizeThreadRef(rawRef)
	if err != nil {
		return nil, err
	}

	if err := t.registry.Validate(ctx, handle); err != nil {
		return nil, err
	}

	creds, err := t.vault.Load(ctx, handle)
	if err != nil {
		return nil, err
	}

	profile, err := t.client.GetProfile(ctx, creds)
	if err != nil {
		return nil, err
	}

	root, err := t.client.GetPost(ctx, creds, threadRef)
	if err != nil {
		return nil, err
	}
	if root.AuthorID != profile.ID {
		return nil, fmt.Errorf("%w: thread does not belong to the authenticated account", common.ErrPermissionDenied)
	}

	replies, err := t.client.ListReplies(ctx, creds, threadRef, profile.Username)
	if err != nil {
		return nil, err
	}
	day := resolveDay(replies)

	hash := t.registry.IdentifierHash(handle)
	unlock := t.lockHash(hash)
	defer unlock()

	encRef, err := t.encryptRef(handle, threadRef)
	if err != nil {
		return nil, err
	}
	if err := t.repo.UpdateProgress(ctx, hash, day, encRef); err != nil {
		return nil, err
	}

	t.mirror(hash, day, true)
	t.logger.Info(ctx, "thread resumed", "hash", hash[:8], "day", day)
	return &Resolution{ThreadRef: threadRef, CurrentDay: day, NextDay: day + 1}, nil
}

// resolveDay maps the account's own replies to a day counter.
func resolveDay(replies []platform.Post) int64 {
	var highest int64
	found := false
	for _, p := range replies {
		if n, ok := dayFromText(p.Text); ok {
			found = true
			if n > highest {
				highest = n
			}
		}
	}
	if found {
		return highest
	}
	return int64(len(replies))
}

// PostNext publishes the next day as a reply to the tracked thread. The day
// counter advances only after the platform confirms the post; a failed or
// ambiguous remote call leaves it untouched, so the operation is safely
// retryable. Lost confirmations are reconciled manually via SetDay.
func (t *Tracker) PostNext(ctx context.Context, handle, body, link string) (*Outcome, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, fmt.Errorf("%w: body is empty", common.ErrValidation)
	}

	if err := t.registry.Validate(ctx, handle); err != nil {
		return nil, err
	}

	hash := t.registry.IdentifierHash(handle)
	unlock := t.lockHash(hash)
	defer unlock()

	rec, err := t.repo.Get(ctx, hash)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrSessionInvalid
		}
		return nil, err
	}
	if rec.EncryptedThreadRef == nil {
		return nil, common.ErrNoActiveThread
	}

	threadRef, err := t.decryptRef(handle, rec.EncryptedThreadRef)
	if err != nil {
		return nil, err
	}

	day := rec.CurrentDay + 1
	text := ComposePost(day, body, link)
	if err := validateLength(text); err != nil {
		return nil, err
	}

	creds, err := t.vault.Load(ctx, handle)
	if err != nil {
		return nil, err
	}

	postID, err := t.client.Reply(ctx, creds, text, threadRef)
	if err != nil {
		return nil, err
	}

	if err := t.repo.AdvanceDay(ctx, hash, rec.CurrentDay, day); err != nil {
		// The reply is live but the counter did not move. Surface it
		// loudly; the user reconciles with a manual day override.
		t.logger.Error(ctx, "posted but day not advanced, manual reconciliation needed",
			"hash", hash[:8], "day", day, "post_id", postID, "error", err.Error())
		return nil, fmt.Errorf("posted day %d but progress was not recorded: %w", day, err)
	}

	t.mirror(hash, day, true)
	t.logger.Info(ctx, "day posted", "hash", hash[:8], "day", day)
	return &Outcome{PostID: postID, Day: day, Text: text}, nil
}

// PreviewNext renders the next post without contacting the platform.
func (t *Tracker) PreviewNext(ctx context.Context, handle, body, link string) (*Preview, error) {
	if err := t.registry.Validate(ctx, handle); err != nil {
		return nil, err
	}

	hash := t.registry.IdentifierHash(handle)
	rec, err := t.repo.Get(ctx, hash)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrSessionInvalid
		}
		return nil, err
	}

	day := rec.CurrentDay + 1
	text := ComposePost(day, strings.TrimSpace(body), link)
	n := utf8.RuneCountInString(text)
	return &Preview{
		Text:       text,
		Characters: n,
		Valid:      n <= common.MaxPostLength && strings.TrimSpace(body) != "",
		Day:        day,
	}, nil
}

// SetDay overrides the day counter for out-of-band postings. The thread
// reference is preserved.
func (t *Tracker) SetDay(ctx context.Context, handle string, day int64) error {
	if day < 0 {
		return fmt.Errorf("%w: day must not be negative", common.ErrValidation)
	}

	if err := t.registry.Validate(ctx, handle); err != nil {
		return err
	}

	hash := t.registry.IdentifierHash(handle)
	unlock := t.lockHash(hash)
	defer unlock()

	rec, err := t.repo.Get(ctx, hash)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.ErrSessionInvalid
		}
		return err
	}

	if err := t.repo.UpdateProgress(ctx, hash, day, rec.EncryptedThreadRef); err != nil {
		return err
	}

	t.mirror(hash, day, rec.EncryptedThreadRef != nil)
	t.logger.Info(ctx, "day overridden", "hash", hash[:8], "day", day)
	return nil
}

// Reset clears the day counter and the thread reference. Credentials are
// untouched.
func (t *Tracker) Reset(ctx context.Context, handle string) error {
	if err := t.registry.Validate(ctx, handle); err != nil {
		return err
	}

	hash := t.registry.IdentifierHash(handle)
	unlock := t.lockHash(hash)
	defer unlock()

	if err := t.repo.UpdateProgress(ctx, hash, 0, nil); err != nil {
		return err
	}

	t.mirror(hash, 0, false)
	t.logger.Info(ctx, "progress reset", "hash", hash[:8])
	return nil
}

// GetStatus reports the tracked progress. When the store is unreachable and
// a journal is configured, the last mirrored day is returned with Degraded
// set; writes never take that path.
func (t *Tracker) GetStatus(ctx context.Context, handle string) (*Status, error) {
	hash := t.registry.IdentifierHash(handle)

	if err := t.registry.Validate(ctx, handle); err != nil {
		if errors.Is(err, common.ErrStoreUnavailable) && t.journal != nil {
			if day, hasThread, ok := t.journal.Lookup(hash); ok {
				t.logger.Warn(ctx, "store unavailable, serving journaled progress", "hash", hash[:8])
				return &Status{
					CurrentDay:      day,
					NextDay:         day + 1,
					HasActiveThread: hasThread,
					Degraded:        true,
				}, nil
			}
		}
		return nil, err
	}

	rec, err := t.repo.Get(ctx, hash)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrSessionInvalid
		}
		return nil, err
	}

	status := &Status{
		CurrentDay:      rec.CurrentDay,
		NextDay:         rec.CurrentDay + 1,
		HasActiveThread: rec.EncryptedThreadRef != nil,
	}
	if rec.EncryptedThreadRef != nil {
		ref, err := t.decryptRef(handle, rec.EncryptedThreadRef)
		if err != nil {
			return nil, err
		}
		status.ThreadRef = ref
	}
	return status, nil
}
