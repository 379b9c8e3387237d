package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/user/isbn-service/internal/entity"
)

const schema = `
	CREATE TABLE IF NOT EXISTS isbn_queries (
		isbn_query TEXT PRIMARY KEY,
		title      TEXT NOT NULL,
		author     TEXT NOT NULL,
		pub_date   TEXT NOT NULL,
		binding    TEXT NOT NULL,
		img        TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
`

// RecordCacheRepoImpl provides a concrete implementation for the RecordCacheRepository interface using PostgreSQL.
type RecordCacheRepoImpl struct {
	db *pgxpool.Pool
}

// NewRecordCacheRepo creates a new instance of RecordCacheRepoImpl.
func NewRecordCacheRepo(db *pgxpool.Pool) *RecordCacheRepoImpl {
	return &RecordCacheRepoImpl{db: db}
}

// EnsureSchema creates the isbn_queries table if it does not exist yet.
func (r *RecordCacheRepoImpl) EnsureSchema(ctx context.Context) error {
	_, err := r.db.Exec(ctx, schema)
	return err
}

// Get retrieves the cached record for an ISBN query.
func (r *RecordCacheRepoImpl) Get(ctx context.Context, isbn string) (*entity.BookRecord, bool, error) {
	query := `
		SELECT isbn_query, title, author, pub_date, binding, img, created_at
		FROM isbn_queries
		WHERE isbn_query = $1;
	`
	var (
		record entity.BookRecord
		img    *string
	)
	err := r.db.QueryRow(ctx, query, isbn).Scan(
		&record.ISBN,
		&record.Title,
		&record.Author,
		&record.PubDate,
		&record.Binding,
		&img,
		&record.CachedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if img != nil {
		record.CoverURL = *img
	}
	return &record, true, nil
}

// Put stores the record for an ISBN query, replacing any previous row.
func (r *RecordCacheRepoImpl) Put(ctx context.Context, isbn string, record *entity.BookRecord) error {
	query := `
		INSERT INTO isbn_queries (isbn_query, title, author, pub_date, binding, img, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (isbn_query) DO UPDATE SET
			title = EXCLUDED.title,
			author = EXCLUDED.author,
			pub_date = EXCLUDED.pub_date,
			binding = EXCLUDED.binding,
			img = EXCLUDED.img,
			created_at = EXCLUDED.created_at;
	`
	var img *string
	if record.HasCover() {
		img = &record.CoverURL
	}
	cachedAt := record.CachedAt
	if cachedAt.IsZero() {
		cachedAt = time.Now().UTC()
	}

	_, err := r.db.Exec(ctx, query,
		isbn,
		record.Title,
		record.Author,
		record.PubDate,
		record.Binding,
		img,
		cachedAt,
	)
	return err
}

// Ping checks the connection pool.
func (r *RecordCacheRepoImpl) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}
