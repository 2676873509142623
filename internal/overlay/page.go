// Package overlay renders previews on the tab a link was activated from.
package overlay

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dgnsrekt/quickpeek/internal/peek"
)

// ErrPanelGone is returned when the panel was removed from the origin page,
// usually because the user navigated away.
var ErrPanelGone = errors.New("overlay panel is gone")

// Evaluator runs scripts in a tab. peek.TabController satisfies it.
type Evaluator interface {
	Evaluate(ctx context.Context, tab peek.TabID, body string, out any) error
}

// Page draws the preview panel inside the origin tab by script injection.
// Calls are serialized so the panel sees them in issue order.
type Page struct {
	tabs    Evaluator
	origin  peek.TabID
	binding string

	mu     sync.Mutex
	hidden peek.TabID
	closed bool
}

// PageFactory builds Page overlays. binding is the page function that
// carries control messages back to the daemon.
func PageFactory(tabs Evaluator, binding string) peek.OverlayFactory {
	return func(origin peek.TabID) peek.Overlay {
		return NewPage(tabs, origin, binding)
	}
}

func NewPage(tabs Evaluator, origin peek.TabID, binding string) *Page {
	return &Page{tabs: tabs, origin: origin, binding: binding}
}

func (p *Page) Origin() peek.TabID { return p.origin }

func (p *Page) Open(ctx context.Context, hidden peek.TabID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hidden = hidden
	p.closed = false
	return p.run(ctx, "open", openScript(p.binding, hidden.String()))
}

func (p *Page) Clear(ctx context.Context) error {
	return p.apply(ctx, "clear", clearScript())
}

func (p *Page) SetTitle(ctx context.Context, title string) error {
	return p.apply(ctx, "title", titleScript(title))
}

func (p *Page) AppendImage(ctx context.Context, shot peek.Screenshot) error {
	return p.apply(ctx, "append", appendScript(shot.DataURL(), shot.Generation, shot.Index))
}

// Close removes the panel. Closing twice is a no-op.
func (p *Page) Close(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.run(ctx, "close", closeScript())
}

func (p *Page) apply(ctx context.Context, op, script string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	var present bool
	if err := p.tabs.Evaluate(ctx, p.origin, script, &present); err != nil {
		return fmt.Errorf("overlay %s on %s: %w", op, p.origin, err)
	}
	if !present {
		return fmt.Errorf("overlay %s on %s: %w", op, p.origin, ErrPanelGone)
	}
	return nil
}

func (p *Page) run(ctx context.Context, op, script string) error {
	if err := p.tabs.Evaluate(ctx, p.origin, script, nil); err != nil {
		return fmt.Errorf("overlay %s on %s: %w", op, p.origin, err)
	}
	return nil
}
