package humanize

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/chromedp"
)

// ErrNotFound is returned when a target cannot be resolved in the page.
var ErrNotFound = errors.New("humanize: target not found")

// Point is a viewport coordinate in CSS pixels.
type Point struct {
	X, Y float64
}

// Box is an element's bounding box in viewport coordinates.
type Box struct {
	X, Y, Width, Height float64
}

// Center returns the middle of the box.
func (b Box) Center() Point {
	return Point{X: b.X + b.Width/2, Y: b.Y + b.Height/2}
}

// Contains reports whether p lies inside the box.
func (b Box) Contains(p Point) bool {
	return p.X >= b.X && p.X <= b.X+b.Width && p.Y >= b.Y && p.Y <= b.Y+b.Height
}

// Target is a UI element that can be resolved on the current page, either
// from a selector or from a node handle obtained earlier.
type Target interface {
	Locate(ctx context.Context) error
	IsVisible(ctx context.Context) (bool, error)
	BoundingBox(ctx context.Context) (Box, error)
	String() string
}

// SelectorTarget resolves an element by CSS selector or XPath expression.
type SelectorTarget struct {
	Query string
	XPath bool
}

// CSS returns a target for a CSS selector.
func CSS(query string) *SelectorTarget {
	return &SelectorTarget{Query: query}
}

// XPath returns a target for an XPath expression.
func XPath(query string) *SelectorTarget {
	return &SelectorTarget{Query: query, XPath: true}
}

func (s *SelectorTarget) String() string {
	return s.Query
}

func (s *SelectorTarget) queryOption() chromedp.QueryOption {
	if s.XPath {
		return chromedp.BySearch
	}
	return chromedp.ByQuery
}

// Locate waits until the element is present in the DOM. The caller bounds
// the wait through ctx.
func (s *SelectorTarget) Locate(ctx context.Context) error {
	if err := chromedp.Run(ctx, chromedp.WaitReady(s.Query, s.queryOption())); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrNotFound, s.Query, err)
	}
	return nil
}

// elementJS resolves the selector to a DOM element inside page scripts.
func (s *SelectorTarget) elementJS() string {
	q := strconv.Quote(s.Query)
	if s.XPath {
		return `document.evaluate(` + q + `, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue`
	}
	return `document.querySelector(` + q + `)`
}

// IsVisible reports whether the element exists, has a non-empty box and is
// not hidden by CSS. A missing element is not an error.
func (s *SelectorTarget) IsVisible(ctx context.Context) (bool, error) {
	var visible bool
	script := `(() => {
		const el = ` + s.elementJS() + `;
		if (!el) return false;
		const r = el.getBoundingClientRect();
		const st = window.getComputedStyle(el);
		return r.width > 0 && r.height > 0 && st.visibility !== 'hidden' && st.display !== 'none';
	})()`
	if err := chromedp.Run(ctx, chromedp.Evaluate(script, &visible)); err != nil {
		return false, fmt.Errorf("visibility of %s: %w", s.Query, err)
	}
	return visible, nil
}

func (s *SelectorTarget) BoundingBox(ctx context.Context) (Box, error) {
	var res struct {
		Found bool
		Box
	}
	script := `(() => {
		const el = ` + s.elementJS() + `;
		if (!el) return {Found: false};
		const r = el.getBoundingClientRect();
		return {Found: true, X: r.x, Y: r.y, Width: r.width, Height: r.height};
	})()`
	if err := chromedp.Run(ctx, chromedp.Evaluate(script, &res)); err != nil {
		return Box{}, fmt.Errorf("bounding box of %s: %w", s.Query, err)
	}
	if !res.Found {
		return Box{}, fmt.Errorf("%w: %s", ErrNotFound, s.Query)
	}
	return res.Box, nil
}

// NodeTarget wraps a node handle already resolved with chromedp.Nodes.
type NodeTarget struct {
	Node *cdp.Node
}

func (n *NodeTarget) String() string {
	if n.Node == nil {
		return "<nil node>"
	}
	return n.Node.FullXPath()
}

func (n *NodeTarget) Locate(ctx context.Context) error {
	if n.Node == nil {
		return ErrNotFound
	}
	return nil
}

func (n *NodeTarget) IsVisible(ctx context.Context) (bool, error) {
	box, err := n.BoundingBox(ctx)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return box.Width > 0 && box.Height > 0, nil
}

func (n *NodeTarget) BoundingBox(ctx context.Context) (Box, error) {
	if n.Node == nil {
		return Box{}, ErrNotFound
	}
	var model *dom.BoxModel
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		model, err = dom.GetBoxModel().WithBackendNodeID(n.Node.BackendNodeID).Do(ctx)
		return err
	}))
	if err != nil {
		return Box{}, fmt.Errorf("%w: box model: %v", ErrNotFound, err)
	}
	return quadToBox(model.Border), nil
}

func quadToBox(q dom.Quad) Box {
	if len(q) < 8 {
		return Box{}
	}
	minX, maxX := q[0], q[0]
	minY, maxY := q[1], q[1]
	for i := 0; i < 8; i += 2 {
		minX = min(minX, q[i])
		maxX = max(maxX, q[i])
		minY = min(minY, q[i+1])
		maxY = max(maxY, q[i+1])
	}
	return Box{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}
