package db

import (
	"context"
	"database/sql"

	"github.com/threadcraft/threadcraft/internal/server/records"
)

// InMemoryRepositoryManager backs tests and local runs without PostgreSQL.
type InMemoryRepositoryManager struct {
	records records.Repository
}

func NewInMemoryRepositoryManager() RepositoryManager {
	return &InMemoryRepositoryManager{records: records.NewInMemoryRepository()}
}

func (m *InMemoryRepositoryManager) Conn() *sql.DB {
	return nil
}

func (m *InMemoryRepositoryManager) Records() records.Repository {
	return m.records
}

func (m *InMemoryRepositoryManager) ConsistentRecords() RecordReader {
	return m.records
}

func (m *InMemoryRepositoryManager) RunMigrations(ctx context.Context) error {
	return nil
}
