package repository

import (
	"context"
	"errors"

	"github.com/user/isbn-service/internal/entity"
)

// ErrUpstreamUnavailable is wrapped by fetchers for network and status failures.
var ErrUpstreamUnavailable = errors.New("upstream search page unavailable")

// PageFetcherRepository retrieves the raw search result markup for an ISBN.
type PageFetcherRepository interface {
	// FetchSearchPage downloads the upstream ISBN search page for isbn.
	FetchSearchPage(ctx context.Context, isbn string) (*entity.SearchPage, error)
}
