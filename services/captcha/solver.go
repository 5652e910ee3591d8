// Package captcha obtains bypass cookies for bot challenges from third-party
// solving services.
package captcha

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"leboncoin-scraper/utils"
)

var (
	// ErrAllProvidersFailed is returned when no provider produced a cookie.
	ErrAllProvidersFailed = errors.New("captcha: all providers failed")
	// ErrPollExhausted is returned by a provider whose result never became ready.
	ErrPollExhausted = errors.New("captcha: polling attempts exhausted")
	// ErrNoAPIKey is returned by a provider configured without credentials.
	ErrNoAPIKey = errors.New("captcha: api key not configured")
)

// Challenge describes a detected challenge as seen by the browser.
type Challenge struct {
	PageURL    string
	CaptchaURL string
	UserAgent  string
	// Proxy is "user:pass@host:port"; the solving service must use the
	// same exit IP as the browser.
	Proxy string
}

// Provider is one solving service.
type Provider interface {
	Name() string
	// Solve returns the raw Set-Cookie string of the bypass cookie.
	Solve(ctx context.Context, ch Challenge) (string, error)
}

// Solver tries its providers in order and returns the first cookie obtained.
type Solver struct {
	providers []Provider
	logger    *utils.Logger
	now       func() time.Time
}

// NewSolver builds a Solver over providers, highest priority first.
func NewSolver(logger *utils.Logger, providers ...Provider) *Solver {
	return &Solver{providers: providers, logger: logger, now: time.Now}
}

// Solve runs the fallback chain.
func (s *Solver) Solve(ctx context.Context, ch Challenge) (*Cookie, error) {
	var errs []string
	for _, p := range s.providers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s.logger.Info("[captcha] solving challenge with %s", p.Name())
		raw, err := p.Solve(ctx, ch)
		if err == nil {
			cookie, perr := ParseCookie(raw, s.now())
			if perr == nil {
				s.logger.Info("[captcha] %s returned cookie %s for %s", p.Name(), cookie.Name, cookie.Domain)
				return cookie, nil
			}
			err = perr
		}
		s.logger.Warn("[captcha] %s failed: %v", p.Name(), err)
		errs = append(errs, fmt.Sprintf("%s: %v", p.Name(), err))
	}
	if len(errs) == 0 {
		return nil, fmt.Errorf("%w: no provider configured", ErrAllProvidersFailed)
	}
	return nil, fmt.Errorf("%w: %s", ErrAllProvidersFailed, strings.Join(errs, "; "))
}

// poll calls check every interval until it reports done, fails, or attempts
// run out. check returns done=false to keep polling.
func poll(ctx context.Context, interval time.Duration, attempts int, check func() (done bool, err error)) error {
	for i := 0; i < attempts; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
		done, err := check()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
	return ErrPollExhausted
}
