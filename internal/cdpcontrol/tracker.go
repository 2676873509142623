package cdpcontrol

import (
	"encoding/json"
	"sync"

	"github.com/dgnsrekt/quickpeek/internal/peek"
)

const domContentLoaded = "DOMContentLoaded"

// navTracker turns Page events of hidden tabs into load events. It remembers
// the main frame of every target and the last URL each frame navigated to.
type navTracker struct {
	mu      sync.Mutex
	targets map[string]*frameState
}

type frameState struct {
	mainFrame string
	urls      map[string]string
}

func newNavTracker() *navTracker {
	return &navTracker{targets: make(map[string]*frameState)}
}

func (t *navTracker) frameNavigated(targetID string, params json.RawMessage) {
	var ev struct {
		Frame struct {
			ID       string `json:"id"`
			ParentID string `json:"parentId"`
			URL      string `json:"url"`
		} `json:"frame"`
	}
	if json.Unmarshal(params, &ev) != nil || ev.Frame.ID == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.targets[targetID]
	if st == nil {
		st = &frameState{urls: make(map[string]string)}
		t.targets[targetID] = st
	}
	if ev.Frame.ParentID == "" {
		st.mainFrame = ev.Frame.ID
	}
	st.urls[ev.Frame.ID] = ev.Frame.URL
}

// lifecycle reports a load event for a DOMContentLoaded lifecycle event of a
// frame that has navigated somewhere other than about:blank.
func (t *navTracker) lifecycle(targetID string, params json.RawMessage) (peek.LoadEvent, bool) {
	var ev struct {
		FrameID string `json:"frameId"`
		Name    string `json:"name"`
	}
	if json.Unmarshal(params, &ev) != nil || ev.Name != domContentLoaded {
		return peek.LoadEvent{}, false
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.targets[targetID]
	if st == nil {
		return peek.LoadEvent{}, false
	}
	url, ok := st.urls[ev.FrameID]
	if !ok || url == "" || url == "about:blank" {
		return peek.LoadEvent{}, false
	}
	return peek.LoadEvent{
		URL:      url,
		FrameID:  ev.FrameID,
		TopLevel: ev.FrameID == st.mainFrame,
	}, true
}

func (t *navTracker) forget(targetID string) {
	t.mu.Lock()
	delete(t.targets, targetID)
	t.mu.Unlock()
}
