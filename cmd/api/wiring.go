package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/user/isbn-service/internal/adapter/chromedp_fetcher"
	"github.com/user/isbn-service/internal/adapter/httpfetch"
	"github.com/user/isbn-service/internal/adapter/memory"
	"github.com/user/isbn-service/internal/adapter/postgres"
	redis_adapter "github.com/user/isbn-service/internal/adapter/redis"
	"github.com/user/isbn-service/internal/adapter/sqlite"
	"github.com/user/isbn-service/internal/adapter/tiered"
	"github.com/user/isbn-service/internal/repository"
	"github.com/user/isbn-service/pkg/config"
	"go.uber.org/zap"
)

// closers are run in reverse order on shutdown.
type closers []func()

func (c closers) close() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

func newPostgresStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*postgres.RecordCacheRepoImpl, func(), error) {
	dbpool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	store := postgres.NewRecordCacheRepo(dbpool)
	if err := store.EnsureSchema(ctx); err != nil {
		dbpool.Close()
		return nil, nil, fmt.Errorf("ensure postgres schema: %w", err)
	}
	logger.Info("PostgreSQL connection pool established")
	return store, dbpool.Close, nil
}

func newRedisStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*redis_adapter.RecordCacheRepoImpl, func(), error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info("Redis connection established", zap.String("addr", cfg.RedisAddr))
	return redis_adapter.NewRecordCacheRepo(rdb), func() { _ = rdb.Close() }, nil
}

// newStore builds the record cache selected by CACHE_BACKEND.
func newStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repository.RecordCacheRepository, closers, error) {
	var cleanup closers

	switch cfg.CacheBackend {
	case config.BackendPostgres:
		store, closeFn, err := newPostgresStore(ctx, cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, append(cleanup, closeFn), nil

	case config.BackendRedis:
		store, closeFn, err := newRedisStore(ctx, cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, append(cleanup, closeFn), nil

	case config.BackendSQLite:
		db, err := sqlite.Open(cfg.SQLitePath, sqlite.WithMkdirAll())
		if err != nil {
			return nil, nil, err
		}
		logger.Info("SQLite database opened", zap.String("path", cfg.SQLitePath))
		return sqlite.NewRecordCacheRepo(db), append(cleanup, func() { _ = db.Close() }), nil

	case config.BackendTiered:
		primary, closePrimary, err := newPostgresStore(ctx, cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		cleanup = append(cleanup, closePrimary)
		front, closeFront, err := newRedisStore(ctx, cfg, logger)
		if err != nil {
			cleanup.close()
			return nil, nil, err
		}
		return tiered.NewRecordCacheRepo(front, primary, logger), append(cleanup, closeFront), nil

	case config.BackendMemory:
		logger.Warn("using in-memory cache; records are lost on restart")
		return memory.NewRecordCacheRepo(), cleanup, nil
	}
	return nil, nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
}

// newFetcher builds the upstream page fetcher selected by FETCH_MODE.
func newFetcher(cfg *config.Config, logger *zap.Logger) (repository.PageFetcherRepository, func()) {
	if cfg.FetchMode == config.FetchModeBrowser {
		f := chromedp_fetcher.NewFetcher(cfg.UpstreamBaseURL, cfg.UpstreamTimeout(), logger)
		return f, f.Close
	}
	return httpfetch.NewFetcher(cfg.UpstreamBaseURL, cfg.UpstreamTimeout(), logger), func() {}
}
