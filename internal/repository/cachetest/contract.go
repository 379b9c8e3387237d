// Package cachetest holds the behavioural checks every RecordCacheRepository
// backend must pass. It is imported from backend tests only.
package cachetest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/user/isbn-service/internal/entity"
	"github.com/user/isbn-service/internal/repository"
)

// SampleRecord returns a fully populated record for isbn.
func SampleRecord(isbn string) *entity.BookRecord {
	return &entity.BookRecord{
		ISBN:     isbn,
		Title:    "Crime and Punishment",
		Author:   "Fyodor Dostoevsky",
		PubDate:  "2003-01-01",
		Binding:  "Paperback",
		CoverURL: "https://m.media-amazon.com/images/I/abc512def.jpg",
	}
}

// Run exercises repo against the RecordCacheRepository contract. Keys are
// prefixed with t.Name() so a shared backend can be reused between runs.
func Run(t *testing.T, repo repository.RecordCacheRepository) {
	ctx := context.Background()
	key := func(s string) string { return fmt.Sprintf("%s/%s", t.Name(), s) }

	t.Run("absent key is not an error", func(t *testing.T) {
		record, found, err := repo.Get(ctx, key("never-written"))
		require.NoError(t, err)
		assert.False(t, found)
		assert.Nil(t, record)
	})

	t.Run("put then get", func(t *testing.T) {
		isbn := key("9780140449136")
		want := SampleRecord(isbn)
		require.NoError(t, repo.Put(ctx, isbn, want))

		got, found, err := repo.Get(ctx, isbn)
		require.NoError(t, err)
		require.True(t, found)
		assertSameRecord(t, want, got)
	})

	t.Run("record without cover", func(t *testing.T) {
		isbn := key("9780441478125")
		want := SampleRecord(isbn)
		want.CoverURL = ""
		require.NoError(t, repo.Put(ctx, isbn, want))

		got, found, err := repo.Get(ctx, isbn)
		require.NoError(t, err)
		require.True(t, found)
		assert.Empty(t, got.CoverURL)
		assert.False(t, got.HasCover())
	})

	t.Run("keys are not normalized", func(t *testing.T) {
		isbn := key(" 978-0-14-044913-6 ")
		require.NoError(t, repo.Put(ctx, isbn, SampleRecord(isbn)))

		_, found, err := repo.Get(ctx, key("978-0-14-044913-6"))
		require.NoError(t, err)
		assert.False(t, found)

		_, found, err = repo.Get(ctx, isbn)
		require.NoError(t, err)
		assert.True(t, found)
	})

	t.Run("last write wins", func(t *testing.T) {
		isbn := key("0000000001")
		first := SampleRecord(isbn)
		second := SampleRecord(isbn)
		second.Title = "Second Edition"
		second.CoverURL = ""

		require.NoError(t, repo.Put(ctx, isbn, first))
		require.NoError(t, repo.Put(ctx, isbn, second))

		got, found, err := repo.Get(ctx, isbn)
		require.NoError(t, err)
		require.True(t, found)
		assertSameRecord(t, second, got)
	})

	t.Run("concurrent puts of distinct keys", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				isbn := key(fmt.Sprintf("concurrent-%d", i))
				assert.NoError(t, repo.Put(ctx, isbn, SampleRecord(isbn)))
			}(i)
		}
		wg.Wait()

		for i := 0; i < 8; i++ {
			_, found, err := repo.Get(ctx, key(fmt.Sprintf("concurrent-%d", i)))
			require.NoError(t, err)
			assert.True(t, found)
		}
	})

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, repo.Ping(ctx))
	})
}

func assertSameRecord(t *testing.T, want, got *entity.BookRecord) {
	t.Helper()
	require.NotNil(t, got)
	assert.Equal(t, want.ISBN, got.ISBN)
	assert.Equal(t, want.Title, got.Title)
	assert.Equal(t, want.Author, got.Author)
	assert.Equal(t, want.PubDate, got.PubDate)
	assert.Equal(t, want.Binding, got.Binding)
	assert.Equal(t, want.CoverURL, got.CoverURL)
}
