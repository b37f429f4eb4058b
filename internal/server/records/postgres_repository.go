package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/threadcraft/threadcraft/internal/common"
	"github.com/threadcraft/threadcraft/internal/dbx"
	"github.com/threadcraft/threadcraft/internal/server/models"
)

// PostgresRepository implements record storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Get(ctx context.Context, hash string) (*models.Record, error) {
	query := `
		SELECT identifier_hash, encrypted_credentials, encrypted_thread_ref, current_day, created_at, expires_at, updated_at
		FROM records
		WHERE identifier_hash = $1
	`
	var rec models.Record
	err := r.db.QueryRowContext(ctx, query, hash).Scan(
		&rec.IdentifierHash, &rec.EncryptedCredentials, &rec.EncryptedThreadRef,
		&rec.CurrentDay, &rec.CreatedAt, &rec.ExpiresAt, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", common.ErrStoreUnavailable, err)
	}
	return &rec, nil
}

func (r *PostgresRepository) UpsertCredentials(ctx context.Context, hash string, encryptedCredentials []byte, expiresAt *time.Time) error {
	query := `
		INSERT INTO records (identifier_hash, encrypted_credentials, current_day, created_at, expires_at, updated_at)
		VALUES ($1, $2, 0, now(), $3, now())
		ON CONFLICT (identifier_hash)
		DO UPDATE SET
			encrypted_credentials = EXCLUDED.encrypted_credentials,
			updated_at = now();
	`
	res, err := r.db.ExecContext(ctx, query, hash, encryptedCredentials, expiresAt)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrStoreUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
	return nil
}

func (r *PostgresRepository) UpdateProgress(ctx context.Context, hash string, day int64, encryptedThreadRef []byte) error {
	query := `
		UPDATE records
		SET current_day = $2, encrypted_thread_ref = $3, updated_at = now()
		WHERE identifier_hash = $1;
	`
	res, err := r.db.ExecContext(ctx, query, hash, day, encryptedThreadRef)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrStoreUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

// AdvanceDay is a conditional update: it succeeds only if the stored day
// still equals fromDay, which guards against two requests both advancing
// from the same base value.
func (r *PostgresRepository) AdvanceDay(ctx context.Context, hash string, fromDay, toDay int64) error {
	query := `
		UPDATE records
		SET current_day = $3, updated_at = now()
		WHERE identifier_hash = $1 AND current_day = $2;
	`
	res, err := r.db.ExecContext(ctx, query, hash, fromDay, toDay)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrStoreUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrDayConflict
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, hash string) error {
	query := `DELETE FROM records WHERE identifier_hash = $1;`
	if _, err := r.db.ExecContext(ctx, query, hash); err != nil {
		return fmt.Errorf("%w: %v", common.ErrStoreUnavailable, err)
	}
	return nil
}

func (r *PostgresRepository) All(ctx context.Context) ([]*models.Record, error) {
	query := `
		SELECT identifier_hash, encrypted_credentials, encrypted_thread_ref, current_day, created_at, expires_at, updated_at
		FROM records
		ORDER BY identifier_hash;
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var result []*models.Record
	for rows.Next() {
		var rec models.Record
		if err := rows.Scan(
			&rec.IdentifierHash, &rec.EncryptedCredentials, &rec.EncryptedThreadRef,
			&rec.CurrentDay, &rec.CreatedAt, &rec.ExpiresAt, &rec.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
