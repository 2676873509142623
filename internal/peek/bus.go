package peek

import (
	"context"
	"log/slog"
	"sync"
	"unicode/utf8"
)

// Bus routes load notifications to the handler registered for their tab.
// Handlers run on their own goroutine; Publish never waits for them.
type Bus struct {
	registry *Registry
	ctx      context.Context
	wg       sync.WaitGroup
}

func NewBus(ctx context.Context, registry *Registry) *Bus {
	return &Bus{registry: registry, ctx: ctx}
}

// Publish dispatches ev and reports whether a handler received it.
// Sub-frame loads and loads for tabs without a session are dropped.
func (b *Bus) Publish(ev LoadEvent) bool {
	if !ev.TopLevel {
		slog.Debug("peek bus ignored sub-frame load", "tab", ev.Tab.String(), "frame_id", ev.FrameID, "url", truncateURL(ev.URL))
		return false
	}
	h, gen, ok := b.registry.Advance(ev.Tab)
	if !ok {
		slog.Debug("peek bus dropped load for unknown tab", "tab", ev.Tab.String(), "url", truncateURL(ev.URL))
		return false
	}
	ev.Generation = gen
	slog.Debug("peek bus dispatch", "tab", ev.Tab.String(), "generation", gen, "url", truncateURL(ev.URL))

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("peek load handler panicked", "tab", ev.Tab.String(), "generation", gen, "panic", r)
			}
		}()
		h.OnLoaded(b.ctx, ev)
	}()
	return true
}

// Wait blocks until every dispatched handler has returned.
func (b *Bus) Wait() {
	b.wg.Wait()
}

const maxLoggedURL = 120

// truncateURL shortens url for log lines without splitting a rune.
func truncateURL(url string) string {
	if len(url) <= maxLoggedURL {
		return url
	}
	cut := maxLoggedURL
	for cut > 0 && !utf8.RuneStart(url[cut]) {
		cut--
	}
	return url[:cut] + "..."
}
