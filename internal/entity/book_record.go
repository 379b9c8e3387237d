package entity

import "time"

// BookRecord mirrors the `isbn_queries` table schema.
// ISBN is the raw query string and doubles as the cache key.
type BookRecord struct {
	ISBN     string    `json:"isbn"`
	Title    string    `json:"title"`
	Author   string    `json:"author"`
	PubDate  string    `json:"pub_date"` // free text, format varies by listing
	Binding  string    `json:"binding"`
	CoverURL string    `json:"img,omitempty"` // empty when the listing has no image
	CachedAt time.Time `json:"cached_at,omitempty"`
}

// HasCover reports whether the listing carried a cover image.
func (b *BookRecord) HasCover() bool {
	return b.CoverURL != ""
}
