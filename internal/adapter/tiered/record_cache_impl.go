package tiered

import (
	"context"

	"github.com/user/isbn-service/internal/entity"
	"github.com/user/isbn-service/internal/repository"
	"go.uber.org/zap"
)

// RecordCacheRepoImpl layers a fast front cache (redis) over a durable
// primary store (postgres). The primary is the source of truth; front
// failures are logged and never fail a request.
type RecordCacheRepoImpl struct {
	front   repository.RecordCacheRepository
	primary repository.RecordCacheRepository
	logger  *zap.Logger
}

func NewRecordCacheRepo(front, primary repository.RecordCacheRepository, logger *zap.Logger) *RecordCacheRepoImpl {
	return &RecordCacheRepoImpl{front: front, primary: primary, logger: logger}
}

// Get reads the front cache first and back-fills it on a primary hit.
func (r *RecordCacheRepoImpl) Get(ctx context.Context, isbn string) (*entity.BookRecord, bool, error) {
	record, found, err := r.front.Get(ctx, isbn)
	if err != nil {
		r.logger.Warn("front cache read failed, falling back to primary", zap.String("isbn", isbn), zap.Error(err))
	} else if found {
		return record, true, nil
	}

	record, found, err = r.primary.Get(ctx, isbn)
	if err != nil || !found {
		return nil, false, err
	}

	if err := r.front.Put(ctx, isbn, record); err != nil {
		r.logger.Warn("front cache back-fill failed", zap.String("isbn", isbn), zap.Error(err))
	}
	return record, true, nil
}

// Put writes the primary first; the front is only written once the record is durable.
func (r *RecordCacheRepoImpl) Put(ctx context.Context, isbn string, record *entity.BookRecord) error {
	if err := r.primary.Put(ctx, isbn, record); err != nil {
		return err
	}
	if err := r.front.Put(ctx, isbn, record); err != nil {
		r.logger.Warn("front cache write failed", zap.String("isbn", isbn), zap.Error(err))
	}
	return nil
}

// Ping reports the primary's health; a degraded front cache does not make the service unhealthy.
func (r *RecordCacheRepoImpl) Ping(ctx context.Context) error {
	if err := r.front.Ping(ctx); err != nil {
		r.logger.Warn("front cache unreachable", zap.Error(err))
	}
	return r.primary.Ping(ctx)
}
