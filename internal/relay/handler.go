package relay

import (
	"fmt"
	"net/http"
	"strings"
)

// filter selects events by ?types=a,b and ?tab=<tab id>.
type filter struct {
	types map[string]bool
	tab   string
}

func parseFilter(r *http.Request) filter {
	var f filter
	if q := r.URL.Query().Get("types"); q != "" {
		f.types = make(map[string]bool)
		for _, t := range strings.Split(q, ",") {
			if t = strings.TrimSpace(t); t != "" {
				f.types[t] = true
			}
		}
	}
	f.tab = strings.TrimSpace(r.URL.Query().Get("tab"))
	return f
}

func (f filter) match(evt Event) bool {
	if f.types != nil && !f.types[evt.Type] {
		return false
	}
	return f.tab == "" || f.tab == evt.Tab
}

// SSEHandler returns an http.HandlerFunc that streams overlay events as SSE.
func SSEHandler(broker *Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming not supported", http.StatusInternalServerError)
			return
		}
		f := parseFilter(r)

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		flusher.Flush()

		id, ch := broker.Subscribe()
		defer broker.Unsubscribe(id)

		for {
			select {
			case <-r.Context().Done():
				return
			case evt, ok := <-ch:
				if !ok {
					return
				}
				if !f.match(evt) {
					continue
				}
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, evt.Payload)
				flusher.Flush()
			}
		}
	}
}
