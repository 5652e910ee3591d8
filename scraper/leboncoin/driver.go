package leboncoin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"leboncoin-scraper/models"
	"leboncoin-scraper/utils"
)

// ErrNoFirstPage is returned when page one never produced a payload, even
// after the filter reset escape.
var ErrNoFirstPage = errors.New("leboncoin: no payload for the first results page")

// Stop reasons reported in Progress.
const (
	StopMaxPages         = "max_pages"
	StopExtractionCap    = "extraction_cap"
	StopNoNextPage       = "no_next_page"
	StopRetriesExhausted = "retries_exhausted"
	StopCancelled        = "cancelled"
)

// PageHandler consumes one page of results in order. It returns true once
// no further pages are wanted.
type PageHandler func(ctx context.Context, page int, payload *SearchPayload) (stop bool)

// DriverConfig holds the pagination policy.
type DriverConfig struct {
	MaxPages       int
	MaxRetries     int
	PayloadTimeout time.Duration
}

// Progress is the run-scoped state of the pagination state machine.
type Progress struct {
	State        models.RunState
	Page         int
	PagesVisited int
	Partial      bool
	StopReason   string
}

// Driver walks the search results page by page through a Session.
type Driver struct {
	session Session
	cfg     DriverConfig
	logger  *utils.Logger
}

// NewDriver creates a Driver. Non-positive limits fall back to one page and
// one attempt.
func NewDriver(session Session, cfg DriverConfig, logger *utils.Logger) *Driver {
	if cfg.MaxPages < 1 {
		cfg.MaxPages = 1
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	return &Driver{session: session, cfg: cfg, logger: logger}
}

// Run executes FILTERING, PAGE_1 and PAGE_N until a terminal condition. An
// error means the run failed; exhausted page retries only mark it partial.
func (d *Driver) Run(ctx context.Context, handle PageHandler) (*Progress, error) {
	prog := &Progress{State: models.StateFiltering}
	fail := func(err error) (*Progress, error) {
		prog.State = models.StateFailed
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			prog.StopReason = StopCancelled
		}
		return prog, err
	}

	d.logger.Info("[driver] FILTERING")
	if err := d.session.ApplyFilters(ctx); err != nil {
		return fail(fmt.Errorf("apply filters: %w", err))
	}

	watch := d.session.Watch(ctx)
	if err := d.session.SubmitSearch(ctx); err != nil {
		watch.Stop()
		return fail(err)
	}

	prog.State = models.StatePage
	prog.Page = 1
	payload, err := d.firstPage(ctx, watch)
	if err != nil {
		return fail(err)
	}

	for {
		prog.PagesVisited++
		d.logger.Info("[driver] PAGE %d: %d ads", prog.Page, len(payload.Ads))
		if handle(ctx, prog.Page, payload) {
			return d.done(prog, StopExtractionCap), nil
		}

		next := prog.Page + 1
		if next > d.cfg.MaxPages {
			return d.done(prog, StopMaxPages), nil
		}
		if err := ctx.Err(); err != nil {
			prog.Partial = true
			return fail(err)
		}
		if err := d.session.EnsureNoChallenge(ctx); err != nil {
			return fail(err)
		}

		ok, err := d.session.HasPageControl(ctx, next)
		if err != nil {
			if ctx.Err() != nil {
				prog.Partial = true
				return fail(ctx.Err())
			}
			d.logger.Warn("[driver] page %d control check: %v", next, err)
		}
		if !ok {
			return d.done(prog, StopNoNextPage), nil
		}

		payload, err = d.nextPage(ctx, next)
		switch {
		case err == nil:
			prog.Page = next
		case errors.Is(err, ErrChallengeUnsolved), ctx.Err() != nil:
			return fail(err)
		default:
			d.logger.Warn("[driver] page %d abandoned: %v", next, err)
			prog.Partial = true
			return d.done(prog, StopRetriesExhausted), nil
		}
	}
}

func (d *Driver) done(prog *Progress, reason string) *Progress {
	prog.State = models.StateDone
	prog.StopReason = reason
	d.logger.Info("[driver] DONE after page %d (%s)", prog.Page, reason)
	return prog
}

// firstPage prefers the inline block, then the watch armed before the
// search was submitted, then the filter reset escape.
func (d *Driver) firstPage(ctx context.Context, watch PayloadWatch) (*SearchPayload, error) {
	defer watch.Stop()

	payload, err := d.session.InlinePayload(ctx)
	if err != nil {
		d.logger.Debug("[driver] inline payload: %v", err)
	}
	if payload != nil {
		d.logger.Info("[driver] page 1 read from inline data")
		return payload, nil
	}

	payload, err = watch.Wait(ctx, d.cfg.PayloadTimeout)
	if err == nil {
		d.logger.Info("[driver] page 1 read from search response")
		return payload, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	for attempt := 1; attempt <= d.cfg.MaxRetries; attempt++ {
		d.logger.Warn("[driver] page 1 missing, reset escape %d/%d", attempt, d.cfg.MaxRetries)
		if err := d.session.EnsureNoChallenge(ctx); err != nil {
			return nil, err
		}
		payload, err = CapturePayload(ctx, d.session.Watch, d.session.ResetFilters, d.cfg.PayloadTimeout)
		if err == nil {
			return payload, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		d.logger.Warn("[driver] reset escape %d failed: %v", attempt, err)
	}
	return nil, ErrNoFirstPage
}

// nextPage clicks towards page and waits for its payload. After a miss the
// filters are reset and the reset's own response is drained before retrying.
func (d *Driver) nextPage(ctx context.Context, page int) (*SearchPayload, error) {
	goTo := func(ctx context.Context) error { return d.session.GoToPage(ctx, page) }

	var lastErr error
	for attempt := 1; attempt <= d.cfg.MaxRetries; attempt++ {
		payload, err := CapturePayload(ctx, d.session.Watch, goTo, d.cfg.PayloadTimeout)
		if err == nil {
			return payload, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		d.logger.Warn("[driver] page %d attempt %d/%d: %v", page, attempt, d.cfg.MaxRetries, err)

		if err := d.session.EnsureNoChallenge(ctx); err != nil {
			return nil, err
		}
		if attempt < d.cfg.MaxRetries {
			if _, err := CapturePayload(ctx, d.session.Watch, d.session.ResetFilters, d.cfg.PayloadTimeout); err != nil {
				d.logger.Warn("[driver] reset escape before page %d retry: %v", page, err)
			}
		}
	}
	return nil, fmt.Errorf("page %d after %d attempts: %w", page, d.cfg.MaxRetries, lastErr)
}
