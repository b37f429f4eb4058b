package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/threadcraft/threadcraft/internal/dbx"
	"github.com/threadcraft/threadcraft/internal/server/migrations"
	"github.com/threadcraft/threadcraft/internal/server/models"
	"github.com/threadcraft/threadcraft/internal/server/records"
)

type PostgresRepositoryManager struct {
	db      *sql.DB
	records records.Repository
}

func (m *PostgresRepositoryManager) Conn() *sql.DB {
	return m.db
}

func (m *PostgresRepositoryManager) Records() records.Repository {
	return m.records
}

func (m *PostgresRepositoryManager) ConsistentRecords() RecordReader {
	return &consistentRecordReader{db: m.db}
}

// consistentRecordReader reads the whole records table in one read-only
// transaction, so backups see a single point-in-time view.
type consistentRecordReader struct {
	db *sql.DB
}

func (r *consistentRecordReader) All(ctx context.Context) ([]*models.Record, error) {
	var recs []*models.Record
	err := dbx.WithTx(ctx, r.db, &sql.TxOptions{ReadOnly: true}, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		recs, err = records.NewPostgresRepository(tx).All(ctx)
		return err
	})
	return recs, err
}

func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.UpContext(ctx, m.db, "."); err != nil {
		return err
	}

	return nil
}

func NewPostgresRepositoryManager(dsn string) (RepositoryManager, error) {

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	m := &PostgresRepositoryManager{
		db:      db,
		records: records.NewPostgresRepository(db),
	}

	err = m.RunMigrations(context.Background())
	if err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	return m, nil
}
