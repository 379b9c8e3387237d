package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/user/isbn-service/internal/entity"
)

const isbnKeyPrefix = "isbn:"

// RecordCacheRepoImpl provides a concrete implementation for the RecordCacheRepository interface using Redis strings.
// Each record is one JSON document stored without expiry.
type RecordCacheRepoImpl struct {
	client *redis.Client
}

// NewRecordCacheRepo creates a new instance of RecordCacheRepoImpl.
func NewRecordCacheRepo(client *redis.Client) *RecordCacheRepoImpl {
	return &RecordCacheRepoImpl{client: client}
}

// generateKey prefixes the raw query. The query is not hashed or normalized so
// the key stays identical to what the caller asked for.
func (r *RecordCacheRepoImpl) generateKey(isbn string) string {
	return fmt.Sprintf("%s%s", isbnKeyPrefix, isbn)
}

// Get retrieves and decodes the cached record for an ISBN query.
func (r *RecordCacheRepoImpl) Get(ctx context.Context, isbn string) (*entity.BookRecord, bool, error) {
	data, err := r.client.Get(ctx, r.generateKey(isbn)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var record entity.BookRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, false, fmt.Errorf("decode cached record %q: %w", isbn, err)
	}
	return &record, true, nil
}

// Put encodes the record and stores it with no expiry.
func (r *RecordCacheRepoImpl) Put(ctx context.Context, isbn string, record *entity.BookRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	// A zero expiration keeps the key until it is explicitly deleted.
	return r.client.Set(ctx, r.generateKey(isbn), data, 0).Err()
}

// Ping checks the Redis connection.
func (r *RecordCacheRepoImpl) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
