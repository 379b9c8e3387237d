package usecase

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/user/isbn-service/internal/entity"
	"github.com/user/isbn-service/internal/extractor"
	"github.com/user/isbn-service/internal/repository"
	"github.com/user/isbn-service/pkg/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const defaultUpstreamTimeout = 15 * time.Second

// LookupResult is a resolved record and whether it came from the cache.
type LookupResult struct {
	Cached bool
	Record *entity.BookRecord
}

// BookLookup resolves ISBN queries to book records.
type BookLookup interface {
	Lookup(ctx context.Context, isbn string) (*LookupResult, error)
}

// LookupConfig tunes the lookup use case. Zero values are usable.
type LookupConfig struct {
	// UpstreamTimeout bounds a single search page fetch.
	UpstreamTimeout time.Duration
	// DeduplicateInflight makes concurrent misses for the same ISBN share one
	// upstream fetch and one cache write.
	DeduplicateInflight bool
}

type lookupUseCase struct {
	cacheRepo   repository.RecordCacheRepository
	fetcherRepo repository.PageFetcherRepository
	metrics     *metrics.Metrics
	logger      *zap.Logger
	cfg         LookupConfig
	inflight    singleflight.Group
}

// NewBookLookup creates the cache-aside lookup use case. m may be nil.
func NewBookLookup(
	cacheRepo repository.RecordCacheRepository,
	fetcherRepo repository.PageFetcherRepository,
	m *metrics.Metrics,
	logger *zap.Logger,
	cfg LookupConfig,
) BookLookup {
	if cfg.UpstreamTimeout <= 0 {
		cfg.UpstreamTimeout = defaultUpstreamTimeout
	}
	return &lookupUseCase{
		cacheRepo:   cacheRepo,
		fetcherRepo: fetcherRepo,
		metrics:     m,
		logger:      logger,
		cfg:         cfg,
	}
}

// Lookup returns the cached record for isbn, or scrapes, caches and returns it.
// The query is used verbatim as the cache key.
func (uc *lookupUseCase) Lookup(ctx context.Context, isbn string) (*LookupResult, error) {
	result, err := uc.lookup(ctx, isbn)
	if err != nil {
		var lookupErr *LookupError
		if !errors.As(err, &lookupErr) {
			lookupErr = newLookupError(KindStore, StageFailed, isbn, err)
		}
		uc.metrics.ObserveLookup(metrics.OutcomeFailed, string(lookupErr.Kind))
		uc.logger.Warn("ISBN lookup failed",
			zap.String("isbn", isbn),
			zap.String("stage", string(lookupErr.Stage)),
			zap.String("kind", string(lookupErr.Kind)),
			zap.Error(lookupErr.Err),
		)
		return nil, err
	}

	if result.Cached {
		uc.metrics.ObserveLookup(metrics.OutcomeHit, "")
	} else {
		uc.metrics.ObserveLookup(metrics.OutcomeMiss, "")
	}
	uc.logger.Info("ISBN lookup resolved", zap.String("isbn", isbn), zap.Bool("cached", result.Cached))
	return result, nil
}

func (uc *lookupUseCase) lookup(ctx context.Context, isbn string) (*LookupResult, error) {
	if isbn == "" {
		return nil, newLookupError(KindInvalidInput, StageChecking, isbn, errors.New("empty query"))
	}

	record, found, err := uc.cacheRepo.Get(ctx, isbn)
	if err != nil {
		return nil, newLookupError(KindStore, StageChecking, isbn, err)
	}
	if found {
		return &LookupResult{Cached: true, Record: record}, nil
	}

	if !uc.cfg.DeduplicateInflight {
		record, err := uc.resolve(ctx, isbn)
		if err != nil {
			return nil, err
		}
		return &LookupResult{Cached: false, Record: record}, nil
	}

	// The shared flight must not die with whichever caller started it.
	flightCtx := context.WithoutCancel(ctx)
	ch := uc.inflight.DoChan(isbn, func() (interface{}, error) {
		// A flight that finished between our cache check and now has already stored the record.
		getCtx, cancel := context.WithTimeout(flightCtx, uc.cfg.UpstreamTimeout)
		record, found, err := uc.cacheRepo.Get(getCtx, isbn)
		cancel()
		if err != nil {
			return nil, newLookupError(KindStore, StageChecking, isbn, err)
		}
		if found {
			return &LookupResult{Cached: true, Record: record}, nil
		}
		record, err = uc.resolve(flightCtx, isbn)
		if err != nil {
			return nil, err
		}
		return &LookupResult{Cached: false, Record: record}, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		// The flight keeps running for the callers still waiting on it.
		return nil, newLookupError(KindUpstreamFetch, StageFetching, isbn, ctx.Err())
	}
	if res.Err != nil {
		return nil, res.Err
	}

	// Callers sharing a flight each get their own copy.
	shared := res.Val.(*LookupResult)
	record = new(entity.BookRecord)
	*record = *shared.Record
	return &LookupResult{Cached: shared.Cached, Record: record}, nil
}

// resolve runs the miss path: fetch, extract, store.
func (uc *lookupUseCase) resolve(ctx context.Context, isbn string) (*entity.BookRecord, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, uc.cfg.UpstreamTimeout)
	defer cancel()

	start := time.Now()
	page, err := uc.fetcherRepo.FetchSearchPage(fetchCtx, isbn)
	uc.metrics.ObserveUpstream(time.Since(start).Seconds())
	if err != nil {
		return nil, newLookupError(KindUpstreamFetch, StageFetching, isbn, err)
	}

	var opts []extractor.Option
	if pageURL, err := url.Parse(page.URL); err == nil && page.URL != "" {
		opts = append(opts, extractor.WithPageURL(pageURL))
	}
	record, err := extractor.ExtractBookRecord(isbn, page.Markup, opts...)
	if err != nil {
		kind := KindExtraction
		if errors.Is(err, &extractor.ExtractionError{Cause: extractor.CauseUnparsableMarkup}) {
			kind = KindUpstreamFetch
		}
		return nil, newLookupError(kind, StageExtracting, isbn, err)
	}

	record.CachedAt = time.Now().UTC()
	putCtx, cancelPut := context.WithTimeout(ctx, uc.cfg.UpstreamTimeout)
	defer cancelPut()
	if err := uc.cacheRepo.Put(putCtx, isbn, record); err != nil {
		return nil, newLookupError(KindStore, StageStoring, isbn, err)
	}
	return record, nil
}
