// Package records provides persistence for encrypted user records, keyed by
// identifier hash. The PostgreSQL implementation is the production store;
// the in-memory one backs tests.
package records

import (
	"context"
	"time"

	"github.com/threadcraft/threadcraft/internal/server/models"
)

type Repository interface {
	// Get returns the record for the given identifier hash, or ErrNotFound.
	Get(ctx context.Context, hash string) (*models.Record, error)

	// UpsertCredentials inserts a new record or overwrites the encrypted
	// credentials of an existing one. CurrentDay, the thread reference and
	// the original expiry are preserved on conflict, so reconnecting with
	// the same session never erases thread progress.
	UpsertCredentials(ctx context.Context, hash string, encryptedCredentials []byte, expiresAt *time.Time) error

	// UpdateProgress sets the day counter and encrypted thread reference.
	// A nil ref clears the stored reference.
	UpdateProgress(ctx context.Context, hash string, day int64, encryptedThreadRef []byte) error

	// AdvanceDay moves the day counter from fromDay to toDay only if the
	// stored value still equals fromDay. Returns ErrDayConflict otherwise.
	AdvanceDay(ctx context.Context, hash string, fromDay, toDay int64) error

	// Delete removes the record. Deleting a missing record is not an error.
	Delete(ctx context.Context, hash string) error

	// All returns every stored record, for housekeeping and backups.
	All(ctx context.Context) ([]*models.Record, error)
}
