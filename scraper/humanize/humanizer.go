// Package humanize emits pointer, click, scroll and pause sequences with
// randomized timing and spatial jitter.
package humanize

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"

	"leboncoin-scraper/utils"
)

// Config bounds every random draw the Humanizer makes.
type Config struct {
	// Inter-step delay for pointer moves.
	MoveStepMin, MoveStepMax time.Duration
	MoveStepsMin, MoveStepsMax int
	// Perpendicular deviation of a move path, in pixels.
	PathVariance float64

	ClickDelayMin, ClickDelayMax time.Duration
	MicroMoveChance              float64

	ScrollStepMin, ScrollStepMax float64
	ScrollJitter                 float64
	ScrollDelayMin               time.Duration
	ScrollDelayMax               time.Duration
	BackScrollChance             float64

	// A pause is occasionally stretched by up to HesitationFactor, never past MaxPause.
	HesitationChance float64
	HesitationFactor float64
	MaxPause         time.Duration
}

// DefaultConfig mirrors the pacing of a person browsing on a desktop.
func DefaultConfig() Config {
	return Config{
		MoveStepMin:      5 * time.Millisecond,
		MoveStepMax:      20 * time.Millisecond,
		MoveStepsMin:     15,
		MoveStepsMax:     30,
		PathVariance:     20,
		ClickDelayMin:    30 * time.Millisecond,
		ClickDelayMax:    150 * time.Millisecond,
		MicroMoveChance:  0.6,
		ScrollStepMin:    80,
		ScrollStepMax:    150,
		ScrollJitter:     20,
		ScrollDelayMin:   300 * time.Millisecond,
		ScrollDelayMax:   600 * time.Millisecond,
		BackScrollChance: 0.3,
		HesitationChance: 0.1,
		HesitationFactor: 4,
		MaxPause:         5 * time.Second,
	}
}

// Dispatcher sends raw input events to the page.
type Dispatcher interface {
	Mouse(ctx context.Context, typ input.MouseType, p Point) error
	Wheel(ctx context.Context, p Point, deltaY float64) error
	ViewportHeight(ctx context.Context) (float64, error)
}

// Humanizer drives a Dispatcher with randomized, jitter-bearing sequences.
// It is used by a single browser session at a time.
type Humanizer struct {
	cfg    Config
	dsp    Dispatcher
	logger *utils.Logger
	cursor Point
}

// New returns a Humanizer that dispatches through chromedp.
func New(cfg Config, logger *utils.Logger) *Humanizer {
	return NewWithDispatcher(cfg, CDPDispatcher{}, logger)
}

// NewWithDispatcher returns a Humanizer bound to an arbitrary Dispatcher.
func NewWithDispatcher(cfg Config, dsp Dispatcher, logger *utils.Logger) *Humanizer {
	return &Humanizer{
		cfg:    cfg,
		dsp:    dsp,
		logger: logger,
		cursor: Point{X: 100 + rand.Float64()*200, Y: 100 + rand.Float64()*200},
	}
}

// Delay draws a duration uniformly from [lo, hi], occasionally stretched into
// a hesitation. The result never exceeds max(hi, MaxPause).
func (h *Humanizer) Delay(lo, hi time.Duration) time.Duration {
	if hi < lo {
		lo, hi = hi, lo
	}
	d := lo
	if hi > lo {
		d += time.Duration(rand.Int64N(int64(hi-lo) + 1))
	}
	if h.cfg.HesitationChance > 0 && rand.Float64() < h.cfg.HesitationChance {
		factor := 1 + rand.Float64()*(h.cfg.HesitationFactor-1)
		d = time.Duration(float64(d) * factor)
	}
	ceiling := max(hi, h.cfg.MaxPause)
	return min(d, ceiling)
}

// Pause sleeps for Delay(lo, hi) or until ctx is done.
func (h *Humanizer) Pause(ctx context.Context, lo, hi time.Duration) error {
	t := time.NewTimer(h.Delay(lo, hi))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Path returns an eased curve from `from` to `to` with perpendicular jitter.
// The last point is exactly `to`.
func (h *Humanizer) Path(from, to Point, steps int) []Point {
	if steps < 1 {
		steps = 1
	}
	dx, dy := to.X-from.X, to.Y-from.Y
	dist := math.Hypot(dx, dy)

	// One control point off the straight line gives the curve its bow.
	var nx, ny float64
	if dist > 0 {
		nx, ny = -dy/dist, dx/dist
	}
	bow := (rand.Float64()*2 - 1) * h.cfg.PathVariance
	ctrl := Point{X: from.X + dx/2 + nx*bow, Y: from.Y + dy/2 + ny*bow}

	points := make([]Point, 0, steps)
	for i := 1; i <= steps; i++ {
		t := easeInOut(float64(i) / float64(steps))
		p := quadBezier(from, ctrl, to, t)
		if i < steps {
			jitter := h.cfg.PathVariance * 0.05
			p.X += (rand.Float64()*2 - 1) * jitter
			p.Y += (rand.Float64()*2 - 1) * jitter
		}
		points = append(points, p)
	}
	points[len(points)-1] = to
	return points
}

// ClickPoint picks a point inside the central 80% of the box.
func (h *Humanizer) ClickPoint(b Box) Point {
	return Point{
		X: b.X + b.Width*(0.1+rand.Float64()*0.8),
		Y: b.Y + b.Height*(0.1+rand.Float64()*0.8),
	}
}

// ScrollPlan splits a vertical distance into wheel steps. The steps sum to
// distance exactly and carry its sign.
func (h *Humanizer) ScrollPlan(distance float64) []float64 {
	sign := 1.0
	if distance < 0 {
		sign = -1
	}
	remaining := math.Abs(distance)
	var steps []float64
	for remaining > 0 {
		step := h.cfg.ScrollStepMin + rand.Float64()*(h.cfg.ScrollStepMax-h.cfg.ScrollStepMin)
		step += (rand.Float64()*2 - 1) * h.cfg.ScrollJitter
		step = max(step, 1)
		if step > remaining {
			step = remaining
		}
		steps = append(steps, sign*step)
		remaining -= step
	}
	return steps
}

// MoveTo glides the pointer to p. Failures are logged; they only cost realism.
func (h *Humanizer) MoveTo(ctx context.Context, p Point) {
	steps := h.cfg.MoveStepsMin
	if h.cfg.MoveStepsMax > h.cfg.MoveStepsMin {
		steps += rand.IntN(h.cfg.MoveStepsMax - h.cfg.MoveStepsMin + 1)
	}
	for _, pt := range h.Path(h.cursor, p, steps) {
		if err := h.dsp.Mouse(ctx, input.MouseMoved, pt); err != nil {
			h.logger.Debug("[humanize] pointer move interrupted: %v", err)
			return
		}
		h.cursor = pt
		if err := h.Pause(ctx, h.cfg.MoveStepMin, h.cfg.MoveStepMax); err != nil {
			return
		}
	}
}

// Click scrolls the target into view, moves to a random point inside it and
// presses the primary button. Only a failed press or release is returned.
func (h *Humanizer) Click(ctx context.Context, target Target) error {
	if err := target.Locate(ctx); err != nil {
		return err
	}
	if err := h.ScrollIntoView(ctx, target); err != nil {
		h.logger.Debug("[humanize] scroll to %s: %v", target, err)
	}
	box, err := target.BoundingBox(ctx)
	if err != nil {
		return fmt.Errorf("click %s: %w", target, err)
	}

	p := h.ClickPoint(box)
	h.MoveTo(ctx, p)
	h.cursor = p
	if err := h.Pause(ctx, h.cfg.ClickDelayMin, h.cfg.ClickDelayMax); err != nil {
		return err
	}
	if err := h.dsp.Mouse(ctx, input.MousePressed, p); err != nil {
		return fmt.Errorf("click %s: press: %w", target, err)
	}
	if err := h.Pause(ctx, h.cfg.ClickDelayMin, h.cfg.ClickDelayMax); err != nil {
		return err
	}
	if err := h.dsp.Mouse(ctx, input.MouseReleased, p); err != nil {
		return fmt.Errorf("click %s: release: %w", target, err)
	}

	if rand.Float64() < h.cfg.MicroMoveChance {
		drift := Point{X: p.X + (rand.Float64()*2-1)*8, Y: p.Y + (rand.Float64()*2-1)*8}
		if err := h.dsp.Mouse(ctx, input.MouseMoved, drift); err == nil {
			h.cursor = drift
		}
	}
	return nil
}

// ScrollIntoView wheels the page until the target's box sits inside the viewport.
func (h *Humanizer) ScrollIntoView(ctx context.Context, target Target) error {
	box, err := target.BoundingBox(ctx)
	if err != nil {
		return err
	}
	vh, err := h.dsp.ViewportHeight(ctx)
	if err != nil {
		return err
	}
	margin := vh * 0.2
	var distance float64
	switch {
	case box.Y < margin:
		distance = box.Y - margin
	case box.Y+box.Height > vh-margin:
		distance = box.Y + box.Height - (vh - margin)
	default:
		return nil
	}
	return h.Scroll(ctx, distance)
}

// Scroll wheels the page by distance pixels in small jittered steps, with an
// occasional short back-scroll.
func (h *Humanizer) Scroll(ctx context.Context, distance float64) error {
	for _, step := range h.ScrollPlan(distance) {
		if err := h.dsp.Wheel(ctx, h.cursor, step); err != nil {
			return fmt.Errorf("scroll: %w", err)
		}
		if err := h.Pause(ctx, h.cfg.ScrollDelayMin, h.cfg.ScrollDelayMax); err != nil {
			return err
		}
	}
	if distance != 0 && rand.Float64() < h.cfg.BackScrollChance {
		back := -math.Copysign(20+rand.Float64()*40, distance)
		if err := h.dsp.Wheel(ctx, h.cursor, back); err != nil {
			h.logger.Debug("[humanize] back-scroll: %v", err)
			return nil
		}
		if err := h.Pause(ctx, h.cfg.ScrollDelayMin, h.cfg.ScrollDelayMax); err != nil {
			return err
		}
		if err := h.dsp.Wheel(ctx, h.cursor, -back); err != nil {
			h.logger.Debug("[humanize] back-scroll return: %v", err)
		}
	}
	return nil
}

func easeInOut(t float64) float64 {
	if t < 0.5 {
		return 2 * t * t
	}
	return 1 - math.Pow(-2*t+2, 2)/2
}

func quadBezier(p0, p1, p2 Point, t float64) Point {
	u := 1 - t
	return Point{
		X: u*u*p0.X + 2*u*t*p1.X + t*t*p2.X,
		Y: u*u*p0.Y + 2*u*t*p1.Y + t*t*p2.Y,
	}
}

// CDPDispatcher sends input through the Chrome DevTools Protocol of the
// chromedp target bound to ctx.
type CDPDispatcher struct{}

func (CDPDispatcher) Mouse(ctx context.Context, typ input.MouseType, p Point) error {
	ev := input.DispatchMouseEvent(typ, p.X, p.Y)
	if typ == input.MousePressed || typ == input.MouseReleased {
		ev = ev.WithButton(input.Left).WithClickCount(1)
	}
	return chromedp.Run(ctx, ev)
}

func (CDPDispatcher) Wheel(ctx context.Context, p Point, deltaY float64) error {
	return chromedp.Run(ctx, input.DispatchMouseEvent(input.MouseWheel, p.X, p.Y).
		WithDeltaX(0).WithDeltaY(deltaY))
}

func (CDPDispatcher) ViewportHeight(ctx context.Context) (float64, error) {
	var h float64
	if err := chromedp.Run(ctx, chromedp.Evaluate(`window.innerHeight`, &h)); err != nil {
		return 0, err
	}
	return h, nil
}
