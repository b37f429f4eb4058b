package db

import (
	"context"
	"database/sql"

	"github.com/threadcraft/threadcraft/internal/server/models"
	"github.com/threadcraft/threadcraft/internal/server/records"
)

// RecordReader serves whole-table reads; the PostgreSQL implementation does
// so inside one read-only transaction per call.
type RecordReader interface {
	All(ctx context.Context) ([]*models.Record, error)
}

type RepositoryManager interface {
	RunMigrations(context.Context) error
	Conn() *sql.DB
	Records() records.Repository
	ConsistentRecords() RecordReader
}
