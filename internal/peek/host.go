package peek

import (
	"context"
	"encoding/base64"
)

// Screenshot is one captured viewport. Generation and Index are stamped by
// the session that captured it.
type Screenshot struct {
	Data       []byte
	Format     string
	Generation uint64
	Index      int
}

// DataURL encodes the image as a data: URL suitable for an <img> src.
func (s Screenshot) DataURL() string {
	format := s.Format
	if format == "" {
		format = "png"
	}
	return "data:image/" + format + ";base64," + base64.StdEncoding.EncodeToString(s.Data)
}

// TabController is the browser surface a capture session drives. Every call
// is a suspension point; implementations do not retry.
type TabController interface {
	CreateTab(ctx context.Context, url string, background bool) (TabID, error)
	Navigate(ctx context.Context, tab TabID, url string) error
	ActivateTab(ctx context.Context, tab TabID) error
	RemoveTab(ctx context.Context, tab TabID) error
	// Evaluate runs a function body in the tab and decodes its return value
	// into out (which may be nil).
	Evaluate(ctx context.Context, tab TabID, body string, out any) error
	InjectStyle(ctx context.Context, tab TabID, css string) error
	CaptureViewport(ctx context.Context, tab TabID) (Screenshot, error)
}

// Overlay is the rendering surface for one preview. Calls must be applied in
// the order they are issued.
type Overlay interface {
	Open(ctx context.Context, hidden TabID) error
	Clear(ctx context.Context) error
	SetTitle(ctx context.Context, title string) error
	AppendImage(ctx context.Context, shot Screenshot) error
	Close(ctx context.Context) error
}

// OverlayFactory builds the overlay shown on the originating tab.
type OverlayFactory func(origin TabID) Overlay
