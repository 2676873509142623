package peek

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// fakeTabs models one page per tab: a document of docHeight pixels seen
// through a viewport of viewport pixels, scrolled to offset.
type fakeTabs struct {
	mu sync.Mutex

	docHeight int
	viewport  int
	offset    int

	nextID    int
	created   []string
	navigated []string
	activated []TabID
	removed   []TabID
	styles    []string
	captures  []int
	resets    int

	createErr  error
	captureErr error
	// failCaptureAt fails the nth capture (1-based) with captureErr.
	failCaptureAt int
	// beforeCapture runs outside the lock with the 1-based capture number.
	beforeCapture func(n int)
	// beforeNavigate runs outside the lock before a navigation is recorded.
	beforeNavigate func(tab TabID)
}

func newFakeTabs(docHeight, viewport int) *fakeTabs {
	return &fakeTabs{docHeight: docHeight, viewport: viewport}
}

func (f *fakeTabs) CreateTab(_ context.Context, url string, background bool) (TabID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return TabID{}, f.createErr
	}
	if !background {
		return TabID{}, errors.New("expected background tab")
	}
	f.nextID++
	f.created = append(f.created, url)
	return TabID{WindowID: 1, TargetID: fmt.Sprintf("hidden-%d", f.nextID)}, nil
}

func (f *fakeTabs) Navigate(_ context.Context, tab TabID, url string) error {
	if f.beforeNavigate != nil {
		f.beforeNavigate(tab)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.navigated = append(f.navigated, url)
	return nil
}

func (f *fakeTabs) ActivateTab(_ context.Context, tab TabID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activated = append(f.activated, tab)
	return nil
}

func (f *fakeTabs) RemoveTab(_ context.Context, tab TabID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, tab)
	return nil
}

func (f *fakeTabs) Evaluate(_ context.Context, _ TabID, body string, out any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch body {
	case zoomOnScript:
	case measureScript:
	case scrollScript:
		f.offset += f.viewport
		if limit := f.docHeight - f.viewport; f.offset > limit {
			f.offset = max(limit, 0)
		}
	case resetScript:
		f.offset = 0
		f.resets++
	default:
		return fmt.Errorf("unexpected script %q", body)
	}
	if m, ok := out.(*foldMetrics); ok {
		m.Remaining = f.docHeight - f.offset - f.viewport
	}
	return nil
}

func (f *fakeTabs) InjectStyle(_ context.Context, _ TabID, css string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.styles = append(f.styles, css)
	return nil
}

func (f *fakeTabs) CaptureViewport(_ context.Context, _ TabID) (Screenshot, error) {
	f.mu.Lock()
	n := len(f.captures) + 1
	f.captures = append(f.captures, f.offset)
	hook := f.beforeCapture
	fail := f.failCaptureAt == n
	f.mu.Unlock()

	if hook != nil {
		hook(n)
	}
	if fail {
		return Screenshot{}, f.captureErr
	}
	return Screenshot{Data: []byte(fmt.Sprintf("shot-%d", n)), Format: "png"}, nil
}

func (f *fakeTabs) resetCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resets
}

func (f *fakeTabs) captureCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.captures)
}

type fakeOverlay struct {
	mu      sync.Mutex
	ops     []string
	images  []Screenshot
	title   string
	opened  TabID
	closed  bool
	openErr error
}

func (o *fakeOverlay) Open(_ context.Context, hidden TabID) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.openErr != nil {
		return o.openErr
	}
	o.opened = hidden
	o.ops = append(o.ops, "open")
	return nil
}

func (o *fakeOverlay) Clear(context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.images = nil
	o.ops = append(o.ops, "clear")
	return nil
}

func (o *fakeOverlay) SetTitle(_ context.Context, title string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.title = title
	o.ops = append(o.ops, "title:"+title)
	return nil
}

func (o *fakeOverlay) AppendImage(_ context.Context, shot Screenshot) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.images = append(o.images, shot)
	o.ops = append(o.ops, fmt.Sprintf("image:%d", shot.Generation))
	return nil
}

func (o *fakeOverlay) Close(context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	o.ops = append(o.ops, "close")
	return nil
}

func (o *fakeOverlay) snapshot() (images []Screenshot, title string, closed bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Screenshot(nil), o.images...), o.title, o.closed
}

type resultLog struct {
	mu      sync.Mutex
	results []PassResult
}

func (r *resultLog) PassFinished(_ context.Context, res PassResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
}

func (r *resultLog) all() []PassResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]PassResult(nil), r.results...)
}
