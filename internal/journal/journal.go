package journal

import (
	"context"
	"log/slog"
	"time"

	"github.com/dgnsrekt/quickpeek/internal/peek"
)

// Record is one finished capture pass.
type Record struct {
	At         time.Time       `json:"at"`
	Tab        string          `json:"tab"`
	Generation uint64          `json:"generation"`
	URL        string          `json:"url"`
	Frames     int             `json:"frames"`
	Reason     peek.StopReason `json:"reason"`
	Error      string          `json:"error,omitempty"`
	DurationMS int64           `json:"duration_ms"`
}

// Journal keeps a history of capture passes on disk.
type Journal struct {
	w *Writer
}

func New(dir string, maxSizeMB int) *Journal {
	return &Journal{w: NewWriter(dir, "passes", 256, maxSizeMB)}
}

func (j *Journal) PassFinished(_ context.Context, res peek.PassResult) {
	rec := Record{
		At:         j.w.now().UTC(),
		Tab:        res.Tab.String(),
		Generation: res.Generation,
		URL:        res.URL,
		Frames:     res.Frames,
		Reason:     res.Reason,
		DurationMS: res.Duration.Milliseconds(),
	}
	if res.Err != nil {
		rec.Error = res.Err.Error()
	}
	if err := j.w.Write(rec); err != nil {
		slog.Debug("journal record dropped", "tab", rec.Tab, "error", err)
	}
}

func (j *Journal) Close() error { return j.w.Close() }
