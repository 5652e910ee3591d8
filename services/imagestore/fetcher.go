package imagestore

import (
	"context"
	"fmt"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/gocolly/colly/v2/extensions"
)

// CollyFetcher downloads images with a colly collector that rotates user agents.
// Clone drops callbacks, so the extensions are registered per fetch.
type CollyFetcher struct {
	base *colly.Collector
}

// NewCollyFetcher returns a fetcher with the given per-request timeout. proxyURL
// may be empty.
func NewCollyFetcher(timeout time.Duration, proxyURL string) (*CollyFetcher, error) {
	c := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.MaxBodySize(20<<20),
		colly.IgnoreRobotsTxt(),
	)
	c.SetRequestTimeout(timeout)
	if proxyURL != "" {
		if err := c.SetProxy(proxyURL); err != nil {
			return nil, fmt.Errorf("imagestore: set proxy: %w", err)
		}
	}
	return &CollyFetcher{base: c}, nil
}

func (f *CollyFetcher) Fetch(ctx context.Context, sourceURL string) ([]byte, string, error) {
	c := f.base.Clone()
	c.Context = ctx
	extensions.RandomUserAgent(c)
	extensions.Referer(c)

	var (
		body        []byte
		contentType string
		fetchErr    error
	)
	c.OnResponse(func(r *colly.Response) {
		body = r.Body
		contentType = r.Headers.Get("Content-Type")
	})
	c.OnError(func(r *colly.Response, err error) {
		fetchErr = fmt.Errorf("status %d: %w", r.StatusCode, err)
	})

	if err := c.Visit(sourceURL); err != nil {
		return nil, "", err
	}
	c.Wait()
	if fetchErr != nil {
		return nil, "", fetchErr
	}
	if len(body) == 0 {
		return nil, "", fmt.Errorf("empty body")
	}
	return body, contentType, nil
}
