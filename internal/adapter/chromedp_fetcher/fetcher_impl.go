package chromedp_fetcher

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/user/isbn-service/internal/entity"
	"github.com/user/isbn-service/internal/repository"
	"github.com/user/isbn-service/pkg/utils"
	"go.uber.org/zap"
)

const userAgent = `Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36`

// FetcherImpl renders search pages in headless Chrome. Each fetch gets its own
// tab on a shared browser allocator.
type FetcherImpl struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	baseURL     string
	timeout     time.Duration
	logger      *zap.Logger
}

// NewFetcher starts a headless browser allocator. Close must be called to release it.
func NewFetcher(baseURL string, pageLoadTimeout time.Duration, logger *zap.Logger, extraOpts ...chromedp.ExecAllocatorOption) *FetcherImpl {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(userAgent),
	)
	opts = append(opts, extraOpts...)
	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &FetcherImpl{
		allocCtx:    allocCtx,
		allocCancel: cancel,
		baseURL:     baseURL,
		timeout:     pageLoadTimeout,
		logger:      logger,
	}
}

// FetchSearchPage navigates to the search URL and returns the rendered document.
// A non-2xx status on the main document is an upstream failure.
func (f *FetcherImpl) FetchSearchPage(ctx context.Context, isbn string) (*entity.SearchPage, error) {
	searchURL, err := utils.ISBNSearchURL(f.baseURL, isbn)
	if err != nil {
		return nil, fmt.Errorf("build search url: %w", err)
	}

	// Create a new browser tab from the allocator
	taskCtx, cancel := chromedp.NewContext(f.allocCtx, chromedp.WithLogf(f.logger.Sugar().Debugf))
	defer cancel()

	taskCtx, cancel = context.WithTimeout(taskCtx, f.timeout)
	defer cancel()

	// Propagate caller cancellation into the browser task.
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	// Open the tab first so the main frame ID is known before navigating.
	if err := chromedp.Run(taskCtx, network.Enable()); err != nil {
		f.logger.Warn("browser fetch failed", zap.String("url", searchURL), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", repository.ErrUpstreamUnavailable, err)
	}
	mainFrame := cdp.FrameID(chromedp.FromContext(taskCtx).Target.TargetID)

	var status atomic.Int64
	chromedp.ListenTarget(taskCtx, func(ev interface{}) {
		if resp, ok := ev.(*network.EventResponseReceived); ok && isMainDocument(resp, mainFrame) {
			// The latest main frame document is the page being rendered.
			status.Store(resp.Response.Status)
		}
	})

	start := time.Now()
	var html string
	err = chromedp.Run(taskCtx,
		chromedp.Navigate(searchURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		f.logger.Warn("browser fetch failed", zap.String("url", searchURL), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", repository.ErrUpstreamUnavailable, err)
	}

	code := int(status.Load())
	if code != 0 && (code < 200 || code > 299) {
		f.logger.Warn("upstream returned non-success status", zap.String("url", searchURL), zap.Int("status", code))
		return nil, fmt.Errorf("%w: status %d from %s", repository.ErrUpstreamUnavailable, code, searchURL)
	}

	f.logger.Debug("rendered search page", zap.String("url", searchURL), zap.Duration("elapsed", time.Since(start)))

	return &entity.SearchPage{
		URL:        searchURL,
		StatusCode: code,
		Markup:     []byte(html),
		FetchedAt:  time.Now(),
	}, nil
}

// isMainDocument reports whether resp is the top-level document of the tab,
// as opposed to an iframe or subresource.
func isMainDocument(resp *network.EventResponseReceived, mainFrame cdp.FrameID) bool {
	return resp.Type == network.ResourceTypeDocument && resp.FrameID == mainFrame && resp.Response != nil
}

// Close shuts down the browser allocator.
func (f *FetcherImpl) Close() {
	f.allocCancel()
}
