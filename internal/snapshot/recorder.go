package snapshot

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dgnsrekt/quickpeek/internal/peek"
)

// Recorder archives every frame appended to a preview. It is used as a
// secondary overlay, so its Open, Clear and Close only track state.
type Recorder struct {
	store *Store
	keep  int
	now   func() time.Time
}

// NewRecorder keeps at most keep frames on disk; zero keeps everything.
func NewRecorder(store *Store, keep int) *Recorder {
	return &Recorder{store: store, keep: keep, now: time.Now}
}

func (r *Recorder) Factory() peek.OverlayFactory {
	return func(origin peek.TabID) peek.Overlay {
		return &recording{rec: r, origin: origin.String()}
	}
}

type recording struct {
	rec    *Recorder
	origin string

	mu  sync.Mutex
	tab string
	url string
}

func (o *recording) Open(_ context.Context, hidden peek.TabID) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.tab = hidden.String()
	o.url = ""
	return nil
}

func (o *recording) Clear(context.Context) error { return nil }

// SetTitle remembers the page URL; sessions title each pass with it.
func (o *recording) SetTitle(_ context.Context, title string) error {
	if !strings.Contains(title, "://") {
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.url = title
	return nil
}

func (o *recording) AppendImage(_ context.Context, shot peek.Screenshot) error {
	o.mu.Lock()
	meta := FrameMeta{
		ID:         uuid.NewString(),
		Tab:        o.tab,
		Origin:     o.origin,
		URL:        o.url,
		Generation: shot.Generation,
		Index:      shot.Index,
		Format:     shot.Format,
		CreatedAt:  o.rec.now().UTC(),
	}
	o.mu.Unlock()
	if meta.Format == "" {
		meta.Format = "png"
	}
	if err := o.rec.store.Save(meta, shot.Data); err != nil {
		return err
	}
	if o.rec.keep > 0 {
		if n, err := o.rec.store.Prune(o.rec.keep); err != nil {
			slog.Warn("snapshot prune failed", "error", err)
		} else if n > 0 {
			slog.Debug("snapshot pruned old frames", "removed", n)
		}
	}
	return nil
}

func (o *recording) Close(context.Context) error { return nil }
