package peek

import (
	"context"
	"sort"
	"sync"
)

// LoadEvent reports that a document finished parsing inside a tab.
type LoadEvent struct {
	Tab      TabID
	URL      string
	FrameID  string
	TopLevel bool
	// Generation is stamped by the Bus when the event is dispatched.
	Generation uint64
}

// Handler receives the top-level loads of one tab.
type Handler interface {
	OnLoaded(ctx context.Context, ev LoadEvent)
}

type HandlerFunc func(ctx context.Context, ev LoadEvent)

func (f HandlerFunc) OnLoaded(ctx context.Context, ev LoadEvent) { f(ctx, ev) }

type registryEntry struct {
	handler    Handler
	generation uint64
}

// Registry maps a tab to at most one active handler and tracks the
// generation of the most recent load dispatched for it.
type Registry struct {
	mu      sync.Mutex
	entries map[TabID]*registryEntry
	seq     uint64
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[TabID]*registryEntry)}
}

// Register installs h for tab, replacing any previous handler. In-flight
// passes of the replaced handler stop at their next generation check.
func (r *Registry) Register(tab TabID, h Handler) (replaced bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, replaced = r.entries[tab]
	r.entries[tab] = &registryEntry{handler: h}
	return replaced
}

// Remove drops the entry for tab and returns the handler it held.
func (r *Registry) Remove(tab TabID) (Handler, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[tab]
	if !ok {
		return nil, false
	}
	delete(r.entries, tab)
	return e.handler, true
}

func (r *Registry) Lookup(tab TabID) (Handler, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[tab]
	if !ok {
		return nil, false
	}
	return e.handler, true
}

// Advance stamps the entry for tab with a fresh generation and returns the
// handler together with that generation.
func (r *Registry) Advance(tab TabID) (Handler, uint64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[tab]
	if !ok {
		return nil, 0, false
	}
	r.seq++
	e.generation = r.seq
	return e.handler, e.generation, true
}

// Current reports whether gen is still the latest generation for tab.
// It is false once the entry was replaced or removed.
func (r *Registry) Current(tab TabID, gen uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[tab]
	return ok && gen != 0 && e.generation == gen
}

// Holds reports whether h is the handler currently registered for tab.
func (r *Registry) Holds(tab TabID, h Handler) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[tab]
	return ok && e.handler == h
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Handlers returns the registered handlers ordered by tab id.
func (r *Registry) Handlers() []Handler {
	r.mu.Lock()
	tabs := make([]TabID, 0, len(r.entries))
	for tab := range r.entries {
		tabs = append(tabs, tab)
	}
	sort.Slice(tabs, func(i, j int) bool { return tabs[i].String() < tabs[j].String() })
	out := make([]Handler, 0, len(tabs))
	for _, tab := range tabs {
		out = append(out, r.entries[tab].handler)
	}
	r.mu.Unlock()
	return out
}
