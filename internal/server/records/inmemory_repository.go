package records

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/threadcraft/threadcraft/internal/common"
	"github.com/threadcraft/threadcraft/internal/server/models"
)

// InMemoryRepository is a map-backed Repository used in tests. SetAvailable
// can simulate a store outage: every operation then fails with
// ErrStoreUnavailable.
type InMemoryRepository struct {
	mu        sync.Mutex
	items     map[string]*models.Record
	available bool
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{items: make(map[string]*models.Record), available: true}
}

// SetAvailable toggles the simulated store outage.
func (r *InMemoryRepository) SetAvailable(available bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.available = available
}

func cloneRecord(rec *models.Record) *models.Record {
	c := *rec
	c.EncryptedCredentials = append([]byte(nil), rec.EncryptedCredentials...)
	if rec.EncryptedThreadRef != nil {
		c.EncryptedThreadRef = append([]byte(nil), rec.EncryptedThreadRef...)
	}
	if rec.ExpiresAt != nil {
		t := *rec.ExpiresAt
		c.ExpiresAt = &t
	}
	return &c
}

func (r *InMemoryRepository) Get(ctx context.Context, hash string) (*models.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.available {
		return nil, common.ErrStoreUnavailable
	}
	rec, ok := r.items[hash]
	if !ok {
		return nil, common.ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (r *InMemoryRepository) UpsertCredentials(ctx context.Context, hash string, encryptedCredentials []byte, expiresAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.available {
		return common.ErrStoreUnavailable
	}
	now := time.Now().UTC()
	if rec, ok := r.items[hash]; ok {
		rec.EncryptedCredentials = append([]byte(nil), encryptedCredentials...)
		rec.UpdatedAt = now
		return nil
	}
	r.items[hash] = &models.Record{
		IdentifierHash:       hash,
		EncryptedCredentials: append([]byte(nil), encryptedCredentials...),
		CurrentDay:           0,
		CreatedAt:            now,
		ExpiresAt:            expiresAt,
		UpdatedAt:            now,
	}
	return nil
}

func (r *InMemoryRepository) UpdateProgress(ctx context.Context, hash string, day int64, encryptedThreadRef []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.available {
		return common.ErrStoreUnavailable
	}
	rec, ok := r.items[hash]
	if !ok {
		return common.ErrNotFound
	}
	rec.CurrentDay = day
	if encryptedThreadRef == nil {
		rec.EncryptedThreadRef = nil
	} else {
		rec.EncryptedThreadRef = append([]byte(nil), encryptedThreadRef...)
	}
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *InMemoryRepository) AdvanceDay(ctx context.Context, hash string, fromDay, toDay int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.available {
		return common.ErrStoreUnavailable
	}
	rec, ok := r.items[hash]
	if !ok || rec.CurrentDay != fromDay {
		return common.ErrDayConflict
	}
	rec.CurrentDay = toDay
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *InMemoryRepository) Delete(ctx context.Context, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.available {
		return common.ErrStoreUnavailable
	}
	delete(r.items, hash)
	return nil
}

func (r *InMemoryRepository) All(ctx context.Context) ([]*models.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.available {
		return nil, common.ErrStoreUnavailable
	}
	hashes := make([]string, 0, len(r.items))
	for h := range r.items {
		hashes = append(hashes, h)
	}
	sort.Strings(hashes)

	result := make([]*models.Record, 0, len(hashes))
	for _, h := range hashes {
		result = append(result, cloneRecord(r.items[h]))
	}
	return result, nil
}
