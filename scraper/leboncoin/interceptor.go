package leboncoin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"leboncoin-scraper/utils"
)

// ErrPayloadTimeout is returned when no qualifying search response arrived in time.
var ErrPayloadTimeout = errors.New("leboncoin: timed out waiting for search payload")

// ResponseMatcher decides from URL and status whether a response may carry a payload.
type ResponseMatcher func(url string, status int64) bool

// SearchAPIMatcher accepts 2xx responses of the listings search endpoint.
func SearchAPIMatcher(url string, status int64) bool {
	return strings.Contains(url, searchAPIPath) && status >= 200 && status < 300
}

// PayloadWatch is an armed observer of browser responses. Wait returns the
// first payload-bearing response; Stop deregisters the observer and is safe
// to call more than once.
type PayloadWatch interface {
	Wait(ctx context.Context, timeout time.Duration) (*SearchPayload, error)
	Stop()
}

// payloadCollector holds the matching logic of a watch independently of the
// browser plumbing. The first non-empty payload wins; later ones are dropped.
type payloadCollector struct {
	match ResponseMatcher

	mu      sync.Mutex
	pending map[network.RequestID]string
	done    bool
	found   chan *SearchPayload
}

func newPayloadCollector(match ResponseMatcher) *payloadCollector {
	return &payloadCollector{
		match:   match,
		pending: make(map[network.RequestID]string),
		found:   make(chan *SearchPayload, 1),
	}
}

// onResponse records a response whose body should be inspected once loaded.
func (c *payloadCollector) onResponse(id network.RequestID, url string, status int64) {
	if !c.match(url, status) {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.done {
		c.pending[id] = url
	}
}

// take removes and reports a pending request.
func (c *payloadCollector) take(id network.RequestID) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	url, ok := c.pending[id]
	delete(c.pending, id)
	return url, ok && !c.done
}

// offer decodes a body and publishes it if it is the first qualifying one.
func (c *payloadCollector) offer(body []byte) bool {
	payload, ok := decodeSearchPayload(body)
	if !ok {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return false
	}
	c.done = true
	c.found <- payload
	return true
}

func (c *payloadCollector) wait(ctx context.Context, timeout time.Duration) (*SearchPayload, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case p := <-c.found:
		return p, nil
	case <-timer.C:
		return nil, ErrPayloadTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// cdpWatch listens on the chromedp target bound to its context.
type cdpWatch struct {
	col    *payloadCollector
	cancel context.CancelFunc
}

// WatchResponses arms an observer on the browser tab of ctx. chromedp drops
// the listener once the watch context is cancelled, which Stop does.
func WatchResponses(ctx context.Context, match ResponseMatcher, logger *utils.Logger) PayloadWatch {
	lctx, cancel := context.WithCancel(ctx)
	col := newPayloadCollector(match)

	chromedp.ListenTarget(lctx, func(ev interface{}) {
		switch e := ev.(type) {
		case *network.EventResponseReceived:
			col.onResponse(e.RequestID, e.Response.URL, e.Response.Status)
		case *network.EventLoadingFinished:
			url, ok := col.take(e.RequestID)
			if !ok {
				return
			}
			// Listener callbacks run on chromedp's event loop; CDP calls must not block it.
			go func(id network.RequestID) {
				c := chromedp.FromContext(lctx)
				if c == nil || c.Target == nil {
					return
				}
				body, err := network.GetResponseBody(id).Do(cdp.WithExecutor(lctx, c.Target))
				if err != nil {
					if lctx.Err() == nil {
						logger.Debug("[interceptor] body of %s unavailable: %v", url, err)
					}
					return
				}
				if col.offer(body) {
					logger.Debug("[interceptor] captured payload from %s", url)
				}
			}(e.RequestID)
		}
	})
	return &cdpWatch{col: col, cancel: cancel}
}

func (w *cdpWatch) Wait(ctx context.Context, timeout time.Duration) (*SearchPayload, error) {
	defer w.Stop()
	return w.col.wait(ctx, timeout)
}

func (w *cdpWatch) Stop() { w.cancel() }

// CapturePayload arms a watch, runs trigger and waits for the first
// qualifying payload. The watch is removed on every path.
func CapturePayload(ctx context.Context, watch func(context.Context) PayloadWatch, trigger func(context.Context) error, timeout time.Duration) (*SearchPayload, error) {
	w := watch(ctx)
	defer w.Stop()
	if trigger != nil {
		if err := trigger(ctx); err != nil {
			return nil, err
		}
	}
	return w.Wait(ctx, timeout)
}

type nextData struct {
	Props struct {
		PageProps struct {
			SearchData *SearchPayload `json:"searchData"`
		} `json:"pageProps"`
	} `json:"props"`
}

// ExtractInlinePayload reads the search results embedded in the page markup.
// It returns nil without error when the block is absent or holds no ads.
func ExtractInlinePayload(html string) (*SearchPayload, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse page html: %w", err)
	}
	raw := strings.TrimSpace(doc.Find("script#" + inlineDataID).First().Text())
	if raw == "" {
		return nil, nil
	}
	var nd nextData
	if err := json.Unmarshal([]byte(raw), &nd); err != nil {
		return nil, fmt.Errorf("decode %s: %w", inlineDataID, err)
	}
	sd := nd.Props.PageProps.SearchData
	if sd == nil || len(sd.Ads) == 0 {
		return nil, nil
	}
	return sd, nil
}
