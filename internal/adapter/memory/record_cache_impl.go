package memory

import (
	"context"
	"sync"
	"time"

	"github.com/user/isbn-service/internal/entity"
)

// RecordCacheRepoImpl keeps records in process memory. It is meant for local
// development and tests; contents are lost on restart.
type RecordCacheRepoImpl struct {
	mu      sync.RWMutex
	records map[string]entity.BookRecord
}

func NewRecordCacheRepo() *RecordCacheRepoImpl {
	return &RecordCacheRepoImpl{records: make(map[string]entity.BookRecord)}
}

// Get returns a copy of the stored record.
func (r *RecordCacheRepoImpl) Get(_ context.Context, isbn string) (*entity.BookRecord, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.records[isbn]
	if !ok {
		return nil, false, nil
	}
	return &record, true, nil
}

// Put stores a copy of record so later mutation by the caller has no effect.
func (r *RecordCacheRepoImpl) Put(_ context.Context, isbn string, record *entity.BookRecord) error {
	stored := *record
	if stored.CachedAt.IsZero() {
		stored.CachedAt = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[isbn] = stored
	return nil
}

func (r *RecordCacheRepoImpl) Ping(context.Context) error { return nil }

// Len returns the number of cached records.
func (r *RecordCacheRepoImpl) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}
