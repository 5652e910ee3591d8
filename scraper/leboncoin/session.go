package leboncoin

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/go-rod/stealth"

	"leboncoin-scraper/config"
	"leboncoin-scraper/scraper/humanize"
	"leboncoin-scraper/services/captcha"
	"leboncoin-scraper/services/proxy"
	"leboncoin-scraper/utils"
)

var (
	// ErrAnchorMissing is returned when the home page never shows its load anchor.
	ErrAnchorMissing = errors.New("leboncoin: home page anchor never appeared")
	// ErrChallengeUnsolved is returned when a bot challenge could not be cleared.
	ErrChallengeUnsolved = errors.New("leboncoin: challenge could not be solved")
)

// Session is the browser surface the Driver steps through. All calls run
// against one tab, strictly one at a time.
type Session interface {
	// ApplyFilters opens the site, enters the rentals section and ticks the
	// house, apartment and professional filters.
	ApplyFilters(ctx context.Context) error
	// SubmitSearch triggers the search with the current filters.
	SubmitSearch(ctx context.Context) error
	// Watch arms a response observer for the search API.
	Watch(ctx context.Context) PayloadWatch
	// InlinePayload returns the results embedded in the current search page,
	// or nil when the page carries none.
	InlinePayload(ctx context.Context) (*SearchPayload, error)
	// ResetFilters toggles the professional filter off and on and searches again.
	ResetFilters(ctx context.Context) error
	// HasPageControl reports whether a control leading to page is visible.
	HasPageControl(ctx context.Context, page int) (bool, error)
	// GoToPage clicks the control leading to page.
	GoToPage(ctx context.Context, page int) error
	// EnsureNoChallenge solves a visible bot challenge, if any.
	EnsureNoChallenge(ctx context.Context) error
}

// ChallengeSolver obtains a bypass cookie for a detected challenge.
type ChallengeSolver interface {
	Solve(ctx context.Context, ch captcha.Challenge) (*captcha.Cookie, error)
}

// webdriverMask runs before any page script, after the stealth patches.
const webdriverMask = `Object.defineProperty(navigator, 'webdriver', {get: () => undefined});`

// BrowserSession drives a real Chrome tab.
type BrowserSession struct {
	human     *humanize.Humanizer
	solver    ChallengeSolver
	proxy     *proxy.Proxy
	userAgent string
	logger    *utils.Logger

	anchorTimeout     time.Duration
	visibilityTimeout time.Duration
}

// LaunchOptions configures the browser process.
type LaunchOptions struct {
	Headless       bool
	ChromeBin      string
	UserAgent      string
	Viewport       config.Viewport
	Locale         string
	Timezone       string
	AcceptLanguage string
	Proxy          *proxy.Proxy
}

// LaunchBrowser starts Chrome and opens one prepared tab. The returned
// context is bound to that tab; release closes the browser.
func LaunchBrowser(ctx context.Context, opts LaunchOptions, logger *utils.Logger) (tabCtx context.Context, release func(), err error) {
	chromeBin := opts.ChromeBin
	if chromeBin == "" {
		chromeBin = findChromeBinary()
	}
	logger.Info("[leboncoin] Using browser binary: %s", chromeBin)

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(opts.UserAgent),
		chromedp.WindowSize(opts.Viewport.Width, opts.Viewport.Height),
	)
	if chromeBin != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(chromeBin))
	}
	if opts.Proxy != nil {
		allocOpts = append(allocOpts, chromedp.ProxyServer(opts.Proxy.Server()))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	// chromedp logs every unknown CDP event otherwise.
	tabCtx, cancelTab := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))
	release = func() {
		cancelTab()
		cancelAlloc()
	}

	if opts.Proxy != nil {
		answerProxyAuth(tabCtx, *opts.Proxy)
	}

	setup := chromedp.Tasks{
		network.Enable(),
		network.SetExtraHTTPHeaders(network.Headers{"Accept-Language": opts.AcceptLanguage}),
		emulation.SetLocaleOverride().WithLocale(opts.Locale),
		emulation.SetTimezoneOverride(opts.Timezone),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(stealth.JS + "\n" + webdriverMask).Do(ctx)
			return err
		}),
	}
	if opts.Proxy != nil {
		setup = append(setup, fetch.Enable().WithHandleAuthRequests(true))
	}

	// The first Run starts the browser; it must not carry a deadline.
	if err := chromedp.Run(tabCtx, setup); err != nil {
		release()
		return nil, nil, fmt.Errorf("launch browser: %w", err)
	}
	return tabCtx, release, nil
}

// answerProxyAuth answers proxy credential prompts and resumes the requests
// the Fetch domain pauses.
func answerProxyAuth(ctx context.Context, p proxy.Proxy) {
	chromedp.ListenTarget(ctx, func(ev interface{}) {
		switch e := ev.(type) {
		case *fetch.EventRequestPaused:
			go func() {
				_ = chromedp.Run(ctx, fetch.ContinueRequest(e.RequestID))
			}()
		case *fetch.EventAuthRequired:
			go func() {
				_ = chromedp.Run(ctx, fetch.ContinueWithAuth(e.RequestID, &fetch.AuthChallengeResponse{
					Response: fetch.AuthChallengeResponseResponseProvideCredentials,
					Username: p.Username,
					Password: p.Password,
				}))
			}()
		}
	})
}

// NewBrowserSession wraps a tab prepared by LaunchBrowser.
func NewBrowserSession(cfg *config.Config, human *humanize.Humanizer, solver ChallengeSolver, p *proxy.Proxy, userAgent string, logger *utils.Logger) *BrowserSession {
	return &BrowserSession{
		human:             human,
		solver:            solver,
		proxy:             p,
		userAgent:         userAgent,
		logger:            logger,
		anchorTimeout:     cfg.AnchorTimeout,
		visibilityTimeout: cfg.VisibilityTimeout,
	}
}

func (s *BrowserSession) ApplyFilters(ctx context.Context) error {
	s.logger.Info("[leboncoin] Opening %s", homeURL)
	if err := chromedp.Run(ctx, chromedp.Navigate(homeURL)); err != nil {
		return fmt.Errorf("open home page: %w", err)
	}
	if err := s.reloadIfUnavailable(ctx); err != nil {
		return err
	}

	anchor := humanize.CSS(locationsAnchor)
	actx, cancel := context.WithTimeout(ctx, s.anchorTimeout)
	err := anchor.Locate(actx)
	cancel()
	if err != nil {
		if cerr := s.EnsureNoChallenge(ctx); cerr != nil {
			return cerr
		}
		return fmt.Errorf("%w: %v", ErrAnchorMissing, err)
	}

	s.acceptCookies(ctx)

	if err := s.click(ctx, anchor); err != nil {
		return fmt.Errorf("open rentals: %w", err)
	}
	if err := s.human.Pause(ctx, 2*time.Second, 4*time.Second); err != nil {
		return err
	}
	if err := s.EnsureNoChallenge(ctx); err != nil {
		return err
	}

	if err := s.click(ctx, humanize.CSS(filtersButton)); err != nil {
		return fmt.Errorf("open filter panel: %w", err)
	}
	for _, box := range []string{houseCheckbox, flatCheckbox, proCheckbox} {
		if err := s.human.Pause(ctx, 400*time.Millisecond, 1200*time.Millisecond); err != nil {
			return err
		}
		if err := s.click(ctx, humanize.CSS(box)); err != nil {
			return fmt.Errorf("tick filter: %w", err)
		}
	}
	s.logger.Info("[leboncoin] Filters applied")
	return nil
}

func (s *BrowserSession) SubmitSearch(ctx context.Context) error {
	if err := s.click(ctx, humanize.CSS(searchButton)); err != nil {
		return fmt.Errorf("submit search: %w", err)
	}
	return s.human.Pause(ctx, 2*time.Second, 4*time.Second)
}

func (s *BrowserSession) Watch(ctx context.Context) PayloadWatch {
	return WatchResponses(ctx, SearchAPIMatcher, s.logger)
}

// InlinePayload only trusts the embedded block when the document itself was
// loaded from the search path; a client-side route change leaves the
// previous document's block in place.
func (s *BrowserSession) InlinePayload(ctx context.Context) (*SearchPayload, error) {
	var docURL, html string
	err := chromedp.Run(ctx,
		chromedp.Evaluate(`(() => {
			const nav = performance.getEntriesByType('navigation')[0];
			return nav ? nav.name : location.href;
		})()`, &docURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return nil, fmt.Errorf("read page: %w", err)
	}
	u, err := url.Parse(docURL)
	if err != nil || u.Path != searchPath {
		return nil, nil
	}
	return ExtractInlinePayload(html)
}

func (s *BrowserSession) ResetFilters(ctx context.Context) error {
	s.logger.Info("[leboncoin] Resetting filters")
	if err := s.click(ctx, humanize.CSS(filtersButton)); err != nil {
		return fmt.Errorf("reopen filter panel: %w", err)
	}
	pro := humanize.CSS(proCheckbox)
	for i := 0; i < 2; i++ {
		if err := s.human.Pause(ctx, 500*time.Millisecond, 1500*time.Millisecond); err != nil {
			return err
		}
		if err := s.click(ctx, pro); err != nil {
			return fmt.Errorf("toggle professional filter: %w", err)
		}
	}
	return s.SubmitSearch(ctx)
}

// HasPageControl polls for the numbered control or the next control until
// the visibility timeout.
func (s *BrowserSession) HasPageControl(ctx context.Context, page int) (bool, error) {
	targets := []humanize.Target{humanize.CSS(pageControl(page)), humanize.CSS(nextPageControl)}
	deadline := time.Now().Add(s.visibilityTimeout)
	for {
		for _, t := range targets {
			ok, err := t.IsVisible(ctx)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		if time.Now().After(deadline) {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func (s *BrowserSession) GoToPage(ctx context.Context, page int) error {
	var target humanize.Target = humanize.CSS(pageControl(page))
	if ok, _ := target.IsVisible(ctx); !ok {
		target = humanize.CSS(nextPageControl)
	}
	s.logger.Debug("[leboncoin] Clicking %s for page %d", target, page)
	if err := s.click(ctx, target); err != nil {
		return fmt.Errorf("go to page %d: %w", page, err)
	}
	return nil
}

// EnsureNoChallenge solves a visible challenge, injects the bypass cookie,
// reloads and checks the challenge is gone.
func (s *BrowserSession) EnsureNoChallenge(ctx context.Context) error {
	if err := s.reloadIfUnavailable(ctx); err != nil {
		return err
	}
	frame := humanize.CSS(challengeIframe)
	visible, err := frame.IsVisible(ctx)
	if err != nil || !visible {
		return nil
	}

	s.logger.Warn("[leboncoin] Bot challenge detected")
	var pageURL, captchaURL string
	if err := chromedp.Run(ctx,
		chromedp.Location(&pageURL),
		chromedp.Evaluate(`(document.querySelector(`+strconv.Quote(challengeIframe)+`) || {}).src || ''`, &captchaURL),
	); err != nil {
		return fmt.Errorf("%w: read challenge: %v", ErrChallengeUnsolved, err)
	}

	ch := captcha.Challenge{PageURL: pageURL, CaptchaURL: captchaURL, UserAgent: s.userAgent}
	if s.proxy != nil {
		ch.Proxy = s.proxy.Auth()
	}
	cookie, err := s.solver.Solve(ctx, ch)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrChallengeUnsolved, err)
	}
	if err := chromedp.Run(ctx, setCookie(cookie), chromedp.Reload()); err != nil {
		return fmt.Errorf("%w: inject cookie: %v", ErrChallengeUnsolved, err)
	}
	if err := s.human.Pause(ctx, 2*time.Second, 4*time.Second); err != nil {
		return err
	}
	if visible, _ := frame.IsVisible(ctx); visible {
		return fmt.Errorf("%w: challenge still shown after reload", ErrChallengeUnsolved)
	}
	s.logger.Info("[leboncoin] Challenge cleared")
	return nil
}

func setCookie(c *captcha.Cookie) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		params := network.SetCookie(c.Name, c.Value).
			WithDomain(c.Domain).
			WithPath(c.Path).
			WithSecure(c.Secure).
			WithHTTPOnly(c.HTTPOnly)
		switch c.SameSite {
		case "Strict":
			params = params.WithSameSite(network.CookieSameSiteStrict)
		case "Lax":
			params = params.WithSameSite(network.CookieSameSiteLax)
		case "None":
			params = params.WithSameSite(network.CookieSameSiteNone)
		}
		if !c.Expires.IsZero() {
			exp := cdp.TimeSinceEpoch(c.Expires)
			params = params.WithExpires(&exp)
		}
		return params.Do(ctx)
	})
}

// reloadIfUnavailable reloads once when Chrome shows its own error page.
func (s *BrowserSession) reloadIfUnavailable(ctx context.Context) error {
	ok, err := humanize.CSS(unavailablePage).IsVisible(ctx)
	if err != nil || !ok {
		return nil
	}
	s.logger.Warn("[leboncoin] Page unavailable, reloading")
	if err := s.human.Pause(ctx, 3*time.Second, 5*time.Second); err != nil {
		return err
	}
	if err := chromedp.Run(ctx, chromedp.Reload()); err != nil {
		return fmt.Errorf("reload unavailable page: %w", err)
	}
	return nil
}

// acceptCookies dismisses the consent banner when it shows up.
func (s *BrowserSession) acceptCookies(ctx context.Context) {
	for _, t := range []humanize.Target{humanize.CSS(cookieAcceptCSS), humanize.XPath(cookieAcceptXP)} {
		if ok, _ := t.IsVisible(ctx); !ok {
			continue
		}
		if err := s.click(ctx, t); err != nil {
			s.logger.Debug("[leboncoin] Cookie banner: %v", err)
			continue
		}
		s.logger.Info("[leboncoin] Cookie banner accepted")
		return
	}
}

// click bounds the wait for the target by the visibility timeout; the
// humanized gesture itself is not bounded.
func (s *BrowserSession) click(ctx context.Context, t humanize.Target) error {
	lctx, cancel := context.WithTimeout(ctx, s.visibilityTimeout)
	err := t.Locate(lctx)
	cancel()
	if err != nil {
		return err
	}
	return s.human.Click(ctx, t)
}
