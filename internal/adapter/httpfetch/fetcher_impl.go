package httpfetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/user/isbn-service/internal/entity"
	"github.com/user/isbn-service/internal/repository"
	"github.com/user/isbn-service/pkg/utils"
	"go.uber.org/zap"
)

// maxBodyBytes bounds the size of a search page; larger pages are rejected.
const maxBodyBytes = 5 << 20

// StatusError is returned when the upstream answers with a non-2xx status.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d for %s", e.StatusCode, e.URL)
}

func (e *StatusError) Unwrap() error { return repository.ErrUpstreamUnavailable }

// FetcherImpl downloads search pages over plain HTTP.
type FetcherImpl struct {
	httpClient *http.Client
	baseURL    string
	userAgents *UserAgentPool
	logger     *zap.Logger
}

// NewFetcher creates a fetcher for the search endpoint at baseURL.
func NewFetcher(baseURL string, timeout time.Duration, logger *zap.Logger) *FetcherImpl {
	return &FetcherImpl{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		userAgents: NewUserAgentPool(),
		logger:     logger,
	}
}

// FetchSearchPage issues GET <baseURL>?query=<isbn>&type=ISBN.
func (f *FetcherImpl) FetchSearchPage(ctx context.Context, isbn string) (*entity.SearchPage, error) {
	searchURL, err := utils.ISBNSearchURL(f.baseURL, isbn)
	if err != nil {
		return nil, fmt.Errorf("build search url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgents.Next())
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	start := time.Now()
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", repository.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	f.logger.Debug("fetched search page",
		zap.String("url", searchURL),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: searchURL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", repository.ErrUpstreamUnavailable, err)
	}
	// A truncated page could yield a clipped record, and records are never refreshed.
	if len(body) > maxBodyBytes {
		return nil, fmt.Errorf("%w: body of %s exceeds %d bytes", repository.ErrUpstreamUnavailable, searchURL, maxBodyBytes)
	}

	return &entity.SearchPage{
		URL:        searchURL,
		StatusCode: resp.StatusCode,
		Markup:     body,
		FetchedAt:  time.Now(),
	}, nil
}
