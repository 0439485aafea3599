package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"inventory_watch/config"
	"inventory_watch/httputil"
	"inventory_watch/logging"
)

var ErrFetchStatus = errors.New("unexpected status")

// Fetcher retrieves and parses one page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*goquery.Document, error)
}

// HTTPFetcher issues plain GETs, spaced at least delay apart.
type HTTPFetcher struct {
	client  *resty.Client
	limiter *rate.Limiter
}

func NewHTTPFetcher(client *resty.Client, delay time.Duration) *HTTPFetcher {
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	return &HTTPFetcher{
		client:  client,
		limiter: rate.NewLimiter(limit, 1),
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (*goquery.Document, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	logging.Debugf("GET %s", url)
	resp, err := f.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	if code := resp.StatusCode(); code < 200 || code > 299 {
		return nil, fmt.Errorf("fetch %s: %w %d", url, ErrFetchStatus, resp.StatusCode())
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body()))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", url, err)
	}
	return doc, nil
}

// NewFetcher picks the fetch mode from config. Browser fetchers must be closed
// by the caller.
func NewFetcher(cfg config.FetchConfig, clients *httputil.Clients) Fetcher {
	delay := time.Duration(cfg.DelayMS) * time.Millisecond
	if cfg.Mode == "browser" {
		return NewBrowserFetcher(cfg, delay)
	}
	return NewHTTPFetcher(clients.Scraping, delay)
}
