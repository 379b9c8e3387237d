package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/user/isbn-service/internal/entity"
)

const schema = `CREATE TABLE IF NOT EXISTS isbn_queries (
	isbn_query TEXT PRIMARY KEY,
	title      TEXT NOT NULL,
	author     TEXT NOT NULL,
	pub_date   TEXT NOT NULL,
	binding    TEXT NOT NULL,
	img        TEXT,
	created_at INTEGER NOT NULL
)`

// RecordCacheRepoImpl provides a concrete implementation for the RecordCacheRepository interface using SQLite.
type RecordCacheRepoImpl struct {
	db *sql.DB
}

// NewRecordCacheRepo creates a new instance of RecordCacheRepoImpl. db must come from Open.
func NewRecordCacheRepo(db *sql.DB) *RecordCacheRepoImpl {
	return &RecordCacheRepoImpl{db: db}
}

// Get retrieves the cached record for an ISBN query.
func (r *RecordCacheRepoImpl) Get(ctx context.Context, isbn string) (*entity.BookRecord, bool, error) {
	var (
		record   entity.BookRecord
		img      sql.NullString
		cachedAt int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT isbn_query, title, author, pub_date, binding, img, created_at
		 FROM isbn_queries WHERE isbn_query = ?`,
		isbn,
	).Scan(&record.ISBN, &record.Title, &record.Author, &record.PubDate, &record.Binding, &img, &cachedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	record.CoverURL = img.String
	record.CachedAt = time.UnixMilli(cachedAt).UTC()
	return &record, true, nil
}

// Put stores the record for an ISBN query, replacing any previous row.
func (r *RecordCacheRepoImpl) Put(ctx context.Context, isbn string, record *entity.BookRecord) error {
	cachedAt := record.CachedAt
	if cachedAt.IsZero() {
		cachedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO isbn_queries (isbn_query, title, author, pub_date, binding, img, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		isbn,
		record.Title,
		record.Author,
		record.PubDate,
		record.Binding,
		sql.NullString{String: record.CoverURL, Valid: record.HasCover()},
		cachedAt.UnixMilli(),
	)
	return err
}

// Ping checks the database handle.
func (r *RecordCacheRepoImpl) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
