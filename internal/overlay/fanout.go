package overlay

import (
	"context"
	"log/slog"

	"github.com/dgnsrekt/quickpeek/internal/peek"
)

// Fanout mirrors every call to a primary overlay and any number of
// secondary ones. Only the primary's errors are returned; secondaries are
// logged and otherwise ignored.
type Fanout struct {
	primary     peek.Overlay
	secondaries []peek.Overlay
}

func NewFanout(primary peek.Overlay, secondaries ...peek.Overlay) *Fanout {
	return &Fanout{primary: primary, secondaries: secondaries}
}

// Compose builds a factory whose overlays fan out to every factory given.
func Compose(primary peek.OverlayFactory, secondaries ...peek.OverlayFactory) peek.OverlayFactory {
	if len(secondaries) == 0 {
		return primary
	}
	return func(origin peek.TabID) peek.Overlay {
		extra := make([]peek.Overlay, 0, len(secondaries))
		for _, f := range secondaries {
			extra = append(extra, f(origin))
		}
		return NewFanout(primary(origin), extra...)
	}
}

func (f *Fanout) Open(ctx context.Context, hidden peek.TabID) error {
	if err := f.primary.Open(ctx, hidden); err != nil {
		return err
	}
	f.each("open", func(o peek.Overlay) error { return o.Open(ctx, hidden) })
	return nil
}

func (f *Fanout) Clear(ctx context.Context) error {
	err := f.primary.Clear(ctx)
	f.each("clear", func(o peek.Overlay) error { return o.Clear(ctx) })
	return err
}

func (f *Fanout) SetTitle(ctx context.Context, title string) error {
	err := f.primary.SetTitle(ctx, title)
	f.each("title", func(o peek.Overlay) error { return o.SetTitle(ctx, title) })
	return err
}

func (f *Fanout) AppendImage(ctx context.Context, shot peek.Screenshot) error {
	err := f.primary.AppendImage(ctx, shot)
	f.each("append", func(o peek.Overlay) error { return o.AppendImage(ctx, shot) })
	return err
}

// Close closes every overlay even when the primary fails.
func (f *Fanout) Close(ctx context.Context) error {
	err := f.primary.Close(ctx)
	f.each("close", func(o peek.Overlay) error { return o.Close(ctx) })
	return err
}

func (f *Fanout) each(op string, fn func(peek.Overlay) error) {
	for _, o := range f.secondaries {
		if err := fn(o); err != nil {
			slog.Warn("secondary overlay failed", "op", op, "error", err)
		}
	}
}
