package cdpcontrol

import (
	"encoding/json"
	"testing"
)

func navigated(id, parent, url string) json.RawMessage {
	b, _ := json.Marshal(map[string]any{
		"frame": map[string]any{"id": id, "parentId": parent, "url": url},
		"type":  "Navigation",
	})
	return b
}

func lifecycleEvent(frame, name string) json.RawMessage {
	b, _ := json.Marshal(map[string]any{"frameId": frame, "loaderId": "L", "name": name, "timestamp": 12.5})
	return b
}

func TestNavTrackerTopLevelLoad(t *testing.T) {
	tr := newNavTracker()
	tr.frameNavigated("T1", navigated("F1", "", "https://example.com/a"))

	if _, ok := tr.lifecycle("T1", lifecycleEvent("F1", "init")); ok {
		t.Fatal("init lifecycle event reported as load")
	}
	ev, ok := tr.lifecycle("T1", lifecycleEvent("F1", domContentLoaded))
	if !ok {
		t.Fatal("DOMContentLoaded not reported")
	}
	if !ev.TopLevel || ev.URL != "https://example.com/a" || ev.FrameID != "F1" {
		t.Fatalf("event = %+v", ev)
	}
}

func TestNavTrackerSubFrameLoad(t *testing.T) {
	tr := newNavTracker()
	tr.frameNavigated("T1", navigated("F1", "", "https://example.com/"))
	tr.frameNavigated("T1", navigated("F2", "F1", "https://ads.example/frame"))

	ev, ok := tr.lifecycle("T1", lifecycleEvent("F2", domContentLoaded))
	if !ok {
		t.Fatal("sub-frame load not reported")
	}
	if ev.TopLevel {
		t.Fatal("sub-frame load marked top-level")
	}
}

func TestNavTrackerIgnoresBlankAndUnknown(t *testing.T) {
	tr := newNavTracker()
	if _, ok := tr.lifecycle("T1", lifecycleEvent("F1", domContentLoaded)); ok {
		t.Fatal("load reported for target without navigation")
	}
	tr.frameNavigated("T1", navigated("F1", "", "about:blank"))
	if _, ok := tr.lifecycle("T1", lifecycleEvent("F1", domContentLoaded)); ok {
		t.Fatal("about:blank load reported")
	}
	tr.frameNavigated("T1", navigated("F1", "", "https://example.com/"))
	tr.forget("T1")
	if _, ok := tr.lifecycle("T1", lifecycleEvent("F1", domContentLoaded)); ok {
		t.Fatal("load reported after forget")
	}
}
