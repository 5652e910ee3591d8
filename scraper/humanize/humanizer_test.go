package humanize

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/chromedp/cdproto/input"

	"leboncoin-scraper/utils"
)

type event struct {
	typ   input.MouseType
	p     Point
	delta float64
}

type fakeDispatcher struct {
	events   []event
	viewport float64
}

func (f *fakeDispatcher) Mouse(_ context.Context, typ input.MouseType, p Point) error {
	f.events = append(f.events, event{typ: typ, p: p})
	return nil
}

func (f *fakeDispatcher) Wheel(_ context.Context, p Point, dy float64) error {
	f.events = append(f.events, event{typ: input.MouseWheel, p: p, delta: dy})
	return nil
}

func (f *fakeDispatcher) ViewportHeight(context.Context) (float64, error) {
	return f.viewport, nil
}

type fakeTarget struct {
	box Box
}

func (f *fakeTarget) Locate(context.Context) error             { return nil }
func (f *fakeTarget) IsVisible(context.Context) (bool, error)  { return true, nil }
func (f *fakeTarget) BoundingBox(context.Context) (Box, error) { return f.box, nil }
func (f *fakeTarget) String() string                            { return "fake" }

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.MoveStepMin, cfg.MoveStepMax = 0, time.Millisecond
	cfg.ClickDelayMin, cfg.ClickDelayMax = 0, time.Millisecond
	cfg.ScrollDelayMin, cfg.ScrollDelayMax = 0, time.Millisecond
	cfg.MaxPause = 5 * time.Millisecond
	return cfg
}

func TestDelayBounds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HesitationChance = 0.5
	cfg.MaxPause = 400 * time.Millisecond
	h := NewWithDispatcher(cfg, &fakeDispatcher{}, utils.NewLogger())

	lo, hi := 100*time.Millisecond, 200*time.Millisecond
	for i := 0; i < 1000; i++ {
		d := h.Delay(lo, hi)
		if d < lo || d > cfg.MaxPause {
			t.Fatalf("Delay(%v, %v) = %v, want within [%v, %v]", lo, hi, d, lo, cfg.MaxPause)
		}
	}
}

func TestPathEndsOnTarget(t *testing.T) {
	h := NewWithDispatcher(DefaultConfig(), &fakeDispatcher{}, utils.NewLogger())
	from, to := Point{X: 10, Y: 10}, Point{X: 500, Y: 300}

	for _, steps := range []int{0, 1, 15, 30} {
		path := h.Path(from, to, steps)
		if len(path) == 0 {
			t.Fatalf("steps=%d: empty path", steps)
		}
		if last := path[len(path)-1]; last != to {
			t.Errorf("steps=%d: last point %v, want %v", steps, last, to)
		}
	}
}

func TestClickPointInsideBox(t *testing.T) {
	h := NewWithDispatcher(DefaultConfig(), &fakeDispatcher{}, utils.NewLogger())
	b := Box{X: 50, Y: 80, Width: 120, Height: 40}
	for i := 0; i < 500; i++ {
		if p := h.ClickPoint(b); !b.Contains(p) {
			t.Fatalf("ClickPoint %v outside %v", p, b)
		}
	}
}

func TestScrollPlanSumsToDistance(t *testing.T) {
	h := NewWithDispatcher(DefaultConfig(), &fakeDispatcher{}, utils.NewLogger())
	for _, dist := range []float64{0, 37, 640, -900} {
		var sum float64
		for _, s := range h.ScrollPlan(dist) {
			if math.Signbit(s) != math.Signbit(dist) && dist != 0 {
				t.Errorf("dist=%v: step %v has the wrong sign", dist, s)
			}
			if math.Abs(s) > DefaultConfig().ScrollStepMax+DefaultConfig().ScrollJitter {
				t.Errorf("dist=%v: step %v exceeds the max step", dist, s)
			}
			sum += s
		}
		if math.Abs(sum-dist) > 1e-6 {
			t.Errorf("dist=%v: steps sum to %v", dist, sum)
		}
	}
}

func TestClickPressesInsideTarget(t *testing.T) {
	dsp := &fakeDispatcher{viewport: 800}
	h := NewWithDispatcher(fastConfig(), dsp, utils.NewLogger())
	target := &fakeTarget{box: Box{X: 300, Y: 300, Width: 80, Height: 30}}

	if err := h.Click(context.Background(), target); err != nil {
		t.Fatalf("Click: %v", err)
	}

	var pressed, released *event
	moves := 0
	for i := range dsp.events {
		switch dsp.events[i].typ {
		case input.MousePressed:
			pressed = &dsp.events[i]
		case input.MouseReleased:
			released = &dsp.events[i]
		case input.MouseMoved:
			if pressed == nil {
				moves++
			}
		}
	}
	if pressed == nil || released == nil {
		t.Fatal("expected a press and a release")
	}
	if !target.box.Contains(pressed.p) || pressed.p != released.p {
		t.Errorf("press %v / release %v not at the same point inside %v", pressed.p, released.p, target.box)
	}
	if moves < DefaultConfig().MoveStepsMin {
		t.Errorf("pointer moves before press: got %d, want >= %d", moves, DefaultConfig().MoveStepsMin)
	}
}

func TestClickScrollsOffscreenTarget(t *testing.T) {
	dsp := &fakeDispatcher{viewport: 800}
	h := NewWithDispatcher(fastConfig(), dsp, utils.NewLogger())
	target := &fakeTarget{box: Box{X: 300, Y: 1500, Width: 80, Height: 30}}

	if err := h.Click(context.Background(), target); err != nil {
		t.Fatalf("Click: %v", err)
	}
	var wheeled float64
	for _, e := range dsp.events {
		if e.typ == input.MouseWheel {
			wheeled += e.delta
		}
	}
	// Bottom edge 1530 must land above 800 - 20% margin = 640.
	if want := 1530.0 - 640.0; math.Abs(wheeled-want) > 1e-6 {
		t.Errorf("net scroll: got %v, want %v", wheeled, want)
	}
}

func TestPauseHonoursContext(t *testing.T) {
	h := NewWithDispatcher(DefaultConfig(), &fakeDispatcher{}, utils.NewLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := h.Pause(ctx, time.Second, 2*time.Second); err == nil {
		t.Error("expected context error from cancelled pause")
	}
}
