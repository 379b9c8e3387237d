package entity

import "time"

// SearchPage is the raw upstream response for one ISBN search.
type SearchPage struct {
	URL        string
	StatusCode int
	Markup     []byte
	FetchedAt  time.Time
}
