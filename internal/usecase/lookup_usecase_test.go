package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/user/isbn-service/internal/adapter/memory"
	"github.com/user/isbn-service/internal/entity"
	"github.com/user/isbn-service/internal/extractor"
	"github.com/user/isbn-service/internal/repository"
	"github.com/user/isbn-service/pkg/metrics"
	"go.uber.org/zap"
)

const testISBN = "9780140449136"

const wellFormedPage = `<html><body>
<div class="nimg"><img src="https://m.media-amazon.com/images/I/abc160def.jpg"></div>
<div class="ntitle">Crime and Punishment</div>
<div class="nauthor">A Novel by Fyodor Dostoevsky</div>
<div class="ndesc">
Publisher: Penguin Classics
Pages: 720
Published: 2003-01-01
Format: Paperback
</div>
</body></html>`

type mockCacheRepo struct {
	mock.Mock
}

func (m *mockCacheRepo) Get(ctx context.Context, isbn string) (*entity.BookRecord, bool, error) {
	args := m.Called(ctx, isbn)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*entity.BookRecord), args.Bool(1), args.Error(2)
}

func (m *mockCacheRepo) Put(ctx context.Context, isbn string, record *entity.BookRecord) error {
	args := m.Called(ctx, isbn, record)
	return args.Error(0)
}

func (m *mockCacheRepo) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type mockFetcherRepo struct {
	mock.Mock
}

func (m *mockFetcherRepo) FetchSearchPage(ctx context.Context, isbn string) (*entity.SearchPage, error) {
	args := m.Called(ctx, isbn)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.SearchPage), args.Error(1)
}

// funcFetcher counts calls and delegates to fn.
type funcFetcher struct {
	calls atomic.Int32
	fn    func(ctx context.Context, isbn string) (*entity.SearchPage, error)
}

func (f *funcFetcher) FetchSearchPage(ctx context.Context, isbn string) (*entity.SearchPage, error) {
	f.calls.Add(1)
	return f.fn(ctx, isbn)
}

func page(markup string) *entity.SearchPage {
	return &entity.SearchPage{
		URL:        "https://www.addall.com/New/NewSearch.cgi?query=" + testISBN + "&type=ISBN",
		StatusCode: 200,
		Markup:     []byte(markup),
	}
}

func newLookup(cache repository.RecordCacheRepository, fetcher repository.PageFetcherRepository, cfg LookupConfig) BookLookup {
	return NewBookLookup(cache, fetcher, nil, zap.NewNop(), cfg)
}

func TestLookup_CacheHitSkipsUpstream(t *testing.T) {
	ctx := context.Background()
	cache := memory.NewRecordCacheRepo()
	stored := &entity.BookRecord{ISBN: testISBN, Title: "Stored", Author: "Someone", PubDate: "1999", Binding: "Hardcover"}
	require.NoError(t, cache.Put(ctx, testISBN, stored))

	fetcher := new(mockFetcherRepo)
	uc := newLookup(cache, fetcher, LookupConfig{})

	result, err := uc.Lookup(ctx, testISBN)
	require.NoError(t, err)
	assert.True(t, result.Cached)
	assert.Equal(t, "Stored", result.Record.Title)
	assert.Equal(t, "Hardcover", result.Record.Binding)
	assert.Empty(t, result.Record.CoverURL)
	fetcher.AssertNotCalled(t, "FetchSearchPage", mock.Anything, mock.Anything)
}

func TestLookup_MissThenMemoized(t *testing.T) {
	for _, dedupe := range []bool{false, true} {
		t.Run(fmt.Sprintf("dedupe=%v", dedupe), func(t *testing.T) {
			ctx := context.Background()
			cache := memory.NewRecordCacheRepo()
			fetcher := new(mockFetcherRepo)
			fetcher.On("FetchSearchPage", mock.Anything, testISBN).Return(page(wellFormedPage), nil).Once()

			uc := newLookup(cache, fetcher, LookupConfig{DeduplicateInflight: dedupe})

			first, err := uc.Lookup(ctx, testISBN)
			require.NoError(t, err)
			assert.False(t, first.Cached)
			assert.Equal(t, testISBN, first.Record.ISBN)
			assert.Equal(t, "Crime and Punishment", first.Record.Title)
			assert.Equal(t, "Fyodor Dostoevsky", first.Record.Author)
			assert.Equal(t, "2003-01-01", first.Record.PubDate)
			assert.Equal(t, "Paperback", first.Record.Binding)
			assert.Equal(t, "https://m.media-amazon.com/images/I/abc512def.jpg", first.Record.CoverURL)

			second, err := uc.Lookup(ctx, testISBN)
			require.NoError(t, err)
			assert.True(t, second.Cached)
			assert.Equal(t, first.Record, second.Record)

			fetcher.AssertNumberOfCalls(t, "FetchSearchPage", 1)
		})
	}
}

func TestLookup_NoImageRegionIsNotAnError(t *testing.T) {
	ctx := context.Background()
	cache := memory.NewRecordCacheRepo()
	fetcher := new(mockFetcherRepo)
	fetcher.On("FetchSearchPage", mock.Anything, testISBN).Return(page(`<div class="ntitle">T</div>
<div class="nauthor">by A. Writer</div>
<div class="ndesc">
a: 1
b: 2
Published: May 2001
Format: Hardcover
</div>`), nil)

	result, err := newLookup(cache, fetcher, LookupConfig{}).Lookup(ctx, testISBN)
	require.NoError(t, err)
	assert.False(t, result.Cached)
	assert.Empty(t, result.Record.CoverURL)
	assert.Equal(t, "May 2001", result.Record.PubDate)
	assert.Equal(t, 1, cache.Len())
}

func TestLookup_ExtractionFailureIsNotCached(t *testing.T) {
	ctx := context.Background()
	cache := new(mockCacheRepo)
	cache.On("Get", mock.Anything, testISBN).Return(nil, false, nil)

	fetcher := new(mockFetcherRepo)
	fetcher.On("FetchSearchPage", mock.Anything, testISBN).Return(page(`<div class="ntitle">T</div>
<div class="nauthor">Anonymous</div>
<div class="ndesc">x</div>`), nil)

	for _, dedupe := range []bool{false, true} {
		_, err := newLookup(cache, fetcher, LookupConfig{DeduplicateInflight: dedupe}).Lookup(ctx, testISBN)
		require.Error(t, err)

		var lookupErr *LookupError
		require.ErrorAs(t, err, &lookupErr)
		assert.Equal(t, KindExtraction, lookupErr.Kind)
		assert.Equal(t, StageExtracting, lookupErr.Stage)
		assert.ErrorIs(t, err, ErrExtraction)
		assert.ErrorIs(t, err, &extractor.ExtractionError{Cause: extractor.CauseAuthorSeparator})
	}
	cache.AssertNotCalled(t, "Put", mock.Anything, mock.Anything, mock.Anything)
}

func TestLookup_UpstreamFailure(t *testing.T) {
	ctx := context.Background()
	cache := new(mockCacheRepo)
	cache.On("Get", mock.Anything, testISBN).Return(nil, false, nil)

	fetcher := new(mockFetcherRepo)
	fetcher.On("FetchSearchPage", mock.Anything, testISBN).
		Return(nil, fmt.Errorf("%w: connection reset", repository.ErrUpstreamUnavailable))

	_, err := newLookup(cache, fetcher, LookupConfig{}).Lookup(ctx, testISBN)

	var lookupErr *LookupError
	require.ErrorAs(t, err, &lookupErr)
	assert.Equal(t, KindUpstreamFetch, lookupErr.Kind)
	assert.Equal(t, StageFetching, lookupErr.Stage)
	assert.ErrorIs(t, err, ErrUpstreamFetch)
	assert.ErrorIs(t, err, repository.ErrUpstreamUnavailable)
	cache.AssertNotCalled(t, "Put", mock.Anything, mock.Anything, mock.Anything)
}

func TestLookup_UpstreamTimeout(t *testing.T) {
	fetcher := &funcFetcher{fn: func(ctx context.Context, _ string) (*entity.SearchPage, error) {
		<-ctx.Done()
		return nil, fmt.Errorf("%w: %w", repository.ErrUpstreamUnavailable, ctx.Err())
	}}

	uc := newLookup(memory.NewRecordCacheRepo(), fetcher, LookupConfig{UpstreamTimeout: 20 * time.Millisecond})

	start := time.Now()
	_, err := uc.Lookup(context.Background(), testISBN)
	assert.ErrorIs(t, err, ErrUpstreamFetch)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestLookup_StoreFailures(t *testing.T) {
	ctx := context.Background()
	dbErr := errors.New("connection refused")

	t.Run("read", func(t *testing.T) {
		cache := new(mockCacheRepo)
		cache.On("Get", mock.Anything, testISBN).Return(nil, false, dbErr)
		fetcher := new(mockFetcherRepo)

		_, err := newLookup(cache, fetcher, LookupConfig{}).Lookup(ctx, testISBN)

		var lookupErr *LookupError
		require.ErrorAs(t, err, &lookupErr)
		assert.Equal(t, KindStore, lookupErr.Kind)
		assert.Equal(t, StageChecking, lookupErr.Stage)
		assert.ErrorIs(t, err, ErrStore)
		assert.ErrorIs(t, err, dbErr)
		fetcher.AssertNotCalled(t, "FetchSearchPage", mock.Anything, mock.Anything)
	})

	t.Run("write", func(t *testing.T) {
		cache := new(mockCacheRepo)
		cache.On("Get", mock.Anything, testISBN).Return(nil, false, nil)
		cache.On("Put", mock.Anything, testISBN, mock.AnythingOfType("*entity.BookRecord")).Return(dbErr)
		fetcher := new(mockFetcherRepo)
		fetcher.On("FetchSearchPage", mock.Anything, testISBN).Return(page(wellFormedPage), nil)

		_, err := newLookup(cache, fetcher, LookupConfig{}).Lookup(ctx, testISBN)

		var lookupErr *LookupError
		require.ErrorAs(t, err, &lookupErr)
		assert.Equal(t, KindStore, lookupErr.Kind)
		assert.Equal(t, StageStoring, lookupErr.Stage)
		cache.AssertNumberOfCalls(t, "Put", 1)
	})
}

func TestLookup_EmptyQuery(t *testing.T) {
	cache := new(mockCacheRepo)
	fetcher := new(mockFetcherRepo)

	_, err := newLookup(cache, fetcher, LookupConfig{}).Lookup(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidISBN)
	cache.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
}

func TestLookup_KeyIsUsedVerbatim(t *testing.T) {
	ctx := context.Background()
	cache := memory.NewRecordCacheRepo()
	fetcher := new(mockFetcherRepo)
	fetcher.On("FetchSearchPage", mock.Anything, mock.Anything).Return(page(wellFormedPage), nil)
	uc := newLookup(cache, fetcher, LookupConfig{})

	_, err := uc.Lookup(ctx, testISBN)
	require.NoError(t, err)

	result, err := uc.Lookup(ctx, " "+testISBN)
	require.NoError(t, err)
	assert.False(t, result.Cached)
	assert.Equal(t, " "+testISBN, result.Record.ISBN)
	fetcher.AssertNumberOfCalls(t, "FetchSearchPage", 2)
	fetcher.AssertCalled(t, "FetchSearchPage", mock.Anything, " "+testISBN)
}

func TestLookup_ConcurrentMissesWithoutDedupe(t *testing.T) {
	var barrier sync.WaitGroup
	barrier.Add(2)
	fetcher := &funcFetcher{fn: func(ctx context.Context, _ string) (*entity.SearchPage, error) {
		// Both lookups must be past the cache check before either stores.
		barrier.Done()
		barrier.Wait()
		return page(wellFormedPage), nil
	}}
	cache := memory.NewRecordCacheRepo()
	uc := newLookup(cache, fetcher, LookupConfig{DeduplicateInflight: false})

	var wg sync.WaitGroup
	results := make([]*LookupResult, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := uc.Lookup(context.Background(), testISBN)
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(2), fetcher.calls.Load())
	assert.Equal(t, 1, cache.Len())
	for _, res := range results {
		require.NotNil(t, res)
		assert.False(t, res.Cached)
	}
}

func TestLookup_ConcurrentMissesDeduplicated(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	fetcher := &funcFetcher{fn: func(ctx context.Context, _ string) (*entity.SearchPage, error) {
		once.Do(func() { close(started) })
		<-release
		return page(wellFormedPage), nil
	}}
	cache := memory.NewRecordCacheRepo()
	uc := newLookup(cache, fetcher, LookupConfig{DeduplicateInflight: true})

	const callers = 5
	var wg sync.WaitGroup
	results := make([]*LookupResult, callers)
	lookup := func(i int) {
		defer wg.Done()
		res, err := uc.Lookup(context.Background(), testISBN)
		assert.NoError(t, err)
		results[i] = res
	}

	wg.Add(1)
	go lookup(0)
	<-started
	for i := 1; i < callers; i++ {
		wg.Add(1)
		go lookup(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), fetcher.calls.Load())
	for _, res := range results {
		require.NotNil(t, res)
		assert.Equal(t, "Crime and Punishment", res.Record.Title)
	}
	// Each caller owns its record.
	results[0].Record.Title = "changed"
	assert.Equal(t, "Crime and Punishment", results[1].Record.Title)
}

func TestLookup_DedupeSurvivesFirstCallerCancel(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	fetcher := &funcFetcher{fn: func(ctx context.Context, _ string) (*entity.SearchPage, error) {
		close(started)
		select {
		case <-release:
			return page(wellFormedPage), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}}
	cache := memory.NewRecordCacheRepo()
	uc := newLookup(cache, fetcher, LookupConfig{DeduplicateInflight: true, UpstreamTimeout: 5 * time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := uc.Lookup(ctx, testISBN)
		done <- err
	}()
	<-started
	cancel()

	err := <-done
	assert.ErrorIs(t, err, ErrUpstreamFetch)
	assert.ErrorIs(t, err, context.Canceled)

	// The abandoned flight still finishes and stores the record.
	close(release)
	assert.Eventually(t, func() bool { return cache.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	result, err := uc.Lookup(context.Background(), testISBN)
	require.NoError(t, err)
	assert.True(t, result.Cached)
	assert.Equal(t, int32(1), fetcher.calls.Load())
}

func TestLookup_JoiningCallerHonoursOwnDeadline(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	fetcher := &funcFetcher{fn: func(ctx context.Context, _ string) (*entity.SearchPage, error) {
		close(started)
		<-release
		return page(wellFormedPage), nil
	}}
	uc := newLookup(memory.NewRecordCacheRepo(), fetcher, LookupConfig{DeduplicateInflight: true, UpstreamTimeout: 10 * time.Second})

	leader := make(chan error, 1)
	go func() {
		_, err := uc.Lookup(context.Background(), testISBN)
		leader <- err
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := uc.Lookup(ctx, testISBN)
	assert.Less(t, time.Since(start), time.Second)

	var lookupErr *LookupError
	require.ErrorAs(t, err, &lookupErr)
	assert.Equal(t, KindUpstreamFetch, lookupErr.Kind)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	require.NoError(t, <-leader)
	assert.Equal(t, int32(1), fetcher.calls.Load())
}

// hungStore answers reads from memory and blocks writes until the context ends.
type hungStore struct {
	*memory.RecordCacheRepoImpl
}

func (hungStore) Put(ctx context.Context, _ string, _ *entity.BookRecord) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestLookup_HungStoreIsBounded(t *testing.T) {
	for _, dedupe := range []bool{false, true} {
		t.Run(fmt.Sprintf("dedupe=%v", dedupe), func(t *testing.T) {
			fetcher := &funcFetcher{fn: func(context.Context, string) (*entity.SearchPage, error) {
				return page(wellFormedPage), nil
			}}
			store := hungStore{memory.NewRecordCacheRepo()}
			uc := newLookup(store, fetcher, LookupConfig{DeduplicateInflight: dedupe, UpstreamTimeout: 50 * time.Millisecond})

			start := time.Now()
			_, err := uc.Lookup(context.Background(), testISBN)
			assert.Less(t, time.Since(start), 2*time.Second)

			var lookupErr *LookupError
			require.ErrorAs(t, err, &lookupErr)
			assert.Equal(t, KindStore, lookupErr.Kind)
			assert.Equal(t, StageStoring, lookupErr.Stage)
			assert.ErrorIs(t, err, context.DeadlineExceeded)
		})
	}
}

func TestLookup_Metrics(t *testing.T) {
	ctx := context.Background()
	m := metrics.New(prometheus.NewRegistry())
	fetcher := new(mockFetcherRepo)
	fetcher.On("FetchSearchPage", mock.Anything, testISBN).Return(page(wellFormedPage), nil)
	fetcher.On("FetchSearchPage", mock.Anything, "bad").Return(page(`<p>no results</p>`), nil)

	uc := NewBookLookup(memory.NewRecordCacheRepo(), fetcher, m, zap.NewNop(), LookupConfig{})

	_, err := uc.Lookup(ctx, testISBN)
	require.NoError(t, err)
	_, err = uc.Lookup(ctx, testISBN)
	require.NoError(t, err)
	_, err = uc.Lookup(ctx, "bad")
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.LookupsTotal.WithLabelValues(metrics.OutcomeMiss, "")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LookupsTotal.WithLabelValues(metrics.OutcomeHit, "")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LookupsTotal.WithLabelValues(metrics.OutcomeFailed, string(KindExtraction))))
}
