package repository

import (
	"context"

	"github.com/user/isbn-service/internal/entity"
)

// RecordCacheRepository is the permanent ISBN -> BookRecord memoization table.
// Entries never expire and are never evicted.
type RecordCacheRepository interface {
	// Get returns the record stored under isbn. A key that was never written
	// yields found == false and a nil error; err is reserved for backend failures.
	Get(ctx context.Context, isbn string) (record *entity.BookRecord, found bool, err error)
	// Put stores record under isbn unconditionally. Last write wins.
	Put(ctx context.Context, isbn string, record *entity.BookRecord) error
	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error
}
