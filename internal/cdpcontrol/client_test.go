package cdpcontrol

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/dgnsrekt/quickpeek/internal/peek"
)

type cdpCall struct {
	Method    string
	SessionID string
	Params    json.RawMessage
}

// fakeBrowser answers CDP commands over a real WebSocket.
type fakeBrowser struct {
	t   *testing.T
	srv *httptest.Server

	mu      sync.Mutex
	calls   []cdpCall
	conn    net.Conn
	results map[string]string
	errs    map[string]string
	targets string

	writeMu sync.Mutex
}

func newFakeBrowser(t *testing.T) *fakeBrowser {
	t.Helper()
	fb := &fakeBrowser{t: t, results: make(map[string]string), errs: make(map[string]string), targets: "[]"}
	mux := http.NewServeMux()
	mux.HandleFunc("/json/version", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"webSocketDebuggerUrl":"ws://%s/devtools/browser/fake"}`, r.Host)
	})
	mux.HandleFunc("/json/list", func(w http.ResponseWriter, r *http.Request) {
		fb.mu.Lock()
		defer fb.mu.Unlock()
		fmt.Fprint(w, fb.targets)
	})
	mux.HandleFunc("/devtools/browser/fake", fb.serveWS)
	fb.srv = httptest.NewServer(mux)
	t.Cleanup(fb.srv.Close)
	return fb
}

func (fb *fakeBrowser) respond(method, result string) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.results[method] = result
}

// fail makes method answer with a CDP error carrying msg.
func (fb *fakeBrowser) fail(method, msg string) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.errs[method] = msg
}

func (fb *fakeBrowser) count(method string) int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	n := 0
	for _, c := range fb.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

func (fb *fakeBrowser) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		fb.t.Errorf("upgrade: %v", err)
		return
	}
	fb.mu.Lock()
	fb.conn = conn
	fb.mu.Unlock()
	defer conn.Close()

	for {
		data, err := wsutil.ReadClientText(conn)
		if err != nil {
			return
		}
		var req struct {
			ID        int64           `json:"id"`
			Method    string          `json:"method"`
			SessionID string          `json:"sessionId"`
			Params    json.RawMessage `json:"params"`
		}
		if err := json.Unmarshal(data, &req); err != nil {
			fb.t.Errorf("bad request: %v", err)
			return
		}
		fb.mu.Lock()
		fb.calls = append(fb.calls, cdpCall{Method: req.Method, SessionID: req.SessionID, Params: req.Params})
		result, ok := fb.results[req.Method]
		errMsg, failing := fb.errs[req.Method]
		fb.mu.Unlock()
		if failing {
			b, _ := json.Marshal(errMsg)
			fb.write(conn, fmt.Sprintf(`{"id":%d,"error":{"code":-32000,"message":%s}}`, req.ID, b))
			continue
		}
		if !ok {
			result = "{}"
		}
		fb.write(conn, fmt.Sprintf(`{"id":%d,"result":%s}`, req.ID, result))
	}
}

func (fb *fakeBrowser) write(conn net.Conn, msg string) {
	fb.writeMu.Lock()
	defer fb.writeMu.Unlock()
	if err := wsutil.WriteServerText(conn, []byte(msg)); err != nil {
		fb.t.Logf("write: %v", err)
	}
}

func (fb *fakeBrowser) emit(method, sessionID string, params any) {
	fb.mu.Lock()
	conn := fb.conn
	fb.mu.Unlock()
	b, err := json.Marshal(map[string]any{"method": method, "sessionId": sessionID, "params": params})
	if err != nil {
		fb.t.Fatalf("marshal event: %v", err)
	}
	fb.write(conn, string(b))
}

func (fb *fakeBrowser) methods() []string {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	out := make([]string, 0, len(fb.calls))
	for _, c := range fb.calls {
		out = append(out, c.Method)
	}
	return out
}

func (fb *fakeBrowser) lastCall(method string) (cdpCall, bool) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	for i := len(fb.calls) - 1; i >= 0; i-- {
		if fb.calls[i].Method == method {
			return fb.calls[i], true
		}
	}
	return cdpCall{}, false
}

func connectClient(t *testing.T, fb *fakeBrowser, events Events) *Client {
	t.Helper()
	c := NewClient(fb.srv.URL, "", 2*time.Second, CaptureOptions{Format: "png"})
	c.SetEvents(events)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestClientHiddenTabLifecycle(t *testing.T) {
	fb := newFakeBrowser(t)
	fb.respond("Target.createTarget", `{"targetId":"T1"}`)
	fb.respond("Browser.getWindowForTarget", `{"windowId":7,"bounds":{}}`)
	fb.respond("Target.attachToTarget", `{"sessionId":"S1"}`)

	loads := make(chan peek.LoadEvent, 4)
	c := connectClient(t, fb, Events{OnLoad: func(ev peek.LoadEvent) { loads <- ev }})
	ctx := context.Background()

	tab, err := c.CreateTab(ctx, "about:blank", true)
	if err != nil {
		t.Fatalf("CreateTab() error = %v", err)
	}
	if tab != (peek.TabID{WindowID: 7, TargetID: "T1"}) {
		t.Fatalf("CreateTab() = %+v", tab)
	}
	want := []string{"Target.createTarget", "Browser.getWindowForTarget", "Target.attachToTarget", "Page.enable", "Page.setLifecycleEventsEnabled"}
	if got := fb.methods(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("methods = %v; want %v", got, want)
	}
	call, _ := fb.lastCall("Target.createTarget")
	if !strings.Contains(string(call.Params), `"background":true`) {
		t.Fatalf("createTarget params = %s", call.Params)
	}

	if err := c.Navigate(ctx, tab, "https://example.com/a"); err != nil {
		t.Fatalf("Navigate() error = %v", err)
	}
	if call, _ := fb.lastCall("Page.navigate"); call.SessionID != "S1" {
		t.Fatalf("navigate went to session %q", call.SessionID)
	}

	fb.emit("Page.frameNavigated", "S1", map[string]any{"frame": map[string]any{"id": "T1", "url": "https://example.com/a"}})
	fb.emit("Page.lifecycleEvent", "S1", map[string]any{"frameId": "T1", "name": "DOMContentLoaded"})

	select {
	case ev := <-loads:
		if ev.Tab != tab || !ev.TopLevel || ev.URL != "https://example.com/a" {
			t.Fatalf("load event = %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no load event")
	}

	fb.respond("Runtime.evaluate", `{"result":{"type":"string","value":"{\"ok\":true,\"data\":{\"remaining\":250}}"}}`)
	var fold struct {
		Remaining int `json:"remaining"`
	}
	if err := c.Evaluate(ctx, tab, "return {remaining: 250};", &fold); err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if fold.Remaining != 250 {
		t.Fatalf("Remaining = %d; want 250", fold.Remaining)
	}

	fb.respond("Page.captureScreenshot", `{"data":"`+base64.StdEncoding.EncodeToString([]byte("png-bytes"))+`"}`)
	shot, err := c.CaptureViewport(ctx, tab)
	if err != nil {
		t.Fatalf("CaptureViewport() error = %v", err)
	}
	if string(shot.Data) != "png-bytes" || shot.Format != "png" {
		t.Fatalf("screenshot = %+v", shot)
	}

	if err := c.RemoveTab(ctx, tab); err != nil {
		t.Fatalf("RemoveTab() error = %v", err)
	}
	if _, hidden := c.hiddenTab("T1"); hidden {
		t.Fatal("removed tab still tracked as hidden")
	}
}

func TestClientOriginBindingDeliversControl(t *testing.T) {
	fb := newFakeBrowser(t)
	fb.respond("Target.attachToTarget", `{"sessionId":"S9"}`)
	fb.respond("Runtime.evaluate", `{"result":{"type":"string","value":"{\"ok\":true,\"data\":true}"}}`)

	payloads := make(chan string, 1)
	c := connectClient(t, fb, Events{OnControl: func(_ context.Context, payload []byte) error {
		payloads <- string(payload)
		return nil
	}})

	origin := peek.TabID{WindowID: 1, TargetID: "O1"}
	if err := c.Evaluate(context.Background(), origin, "return true;", nil); err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	call, ok := fb.lastCall("Runtime.addBinding")
	if !ok || call.SessionID != "S9" || !strings.Contains(string(call.Params), BindingName) {
		t.Fatalf("addBinding call = %+v, %v", call, ok)
	}
	if _, ok := fb.lastCall("Page.enable"); ok {
		t.Fatal("origin tab got navigation events enabled")
	}

	msg := `{"message":"close-newly-opened-tab","tabId":"1-T1"}`
	fb.emit("Runtime.bindingCalled", "S9", map[string]any{"name": BindingName, "payload": msg, "executionContextId": 1})
	fb.emit("Runtime.bindingCalled", "S9", map[string]any{"name": "other", "payload": "ignored", "executionContextId": 1})

	select {
	case got := <-payloads:
		if got != msg {
			t.Fatalf("payload = %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no control payload")
	}
}

func TestClientReportsClosedHiddenTab(t *testing.T) {
	fb := newFakeBrowser(t)
	fb.respond("Target.createTarget", `{"targetId":"T2"}`)
	fb.respond("Target.attachToTarget", `{"sessionId":"S2"}`)

	gone := make(chan peek.TabID, 1)
	c := connectClient(t, fb, Events{OnTabGone: func(_ context.Context, tab peek.TabID) { gone <- tab }})

	tab, err := c.CreateTab(context.Background(), "about:blank", true)
	if err != nil {
		t.Fatalf("CreateTab() error = %v", err)
	}

	fb.emit("Target.detachedFromTarget", "", map[string]any{"sessionId": "S2", "targetId": "T2"})
	select {
	case got := <-gone:
		if got != tab {
			t.Fatalf("gone tab = %+v; want %+v", got, tab)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("closed tab not reported")
	}
}

func TestClientEvaluateDoesNotRetry(t *testing.T) {
	fb := newFakeBrowser(t)
	fb.respond("Target.attachToTarget", `{"sessionId":"S1"}`)
	fb.fail("Runtime.evaluate", "No session with given id")

	c := connectClient(t, fb, Events{})
	tab := peek.TabID{WindowID: 1, TargetID: "T1"}
	ctx := context.Background()

	err := c.Evaluate(ctx, tab, "window.scrollBy(0, innerHeight);", nil)
	var coded *CodedError
	if !errors.As(err, &coded) || coded.Code != CodeEvalFailure {
		t.Fatalf("Evaluate() error = %v; want %s", err, CodeEvalFailure)
	}
	if got := fb.count("Runtime.evaluate"); got != 1 {
		t.Fatalf("Runtime.evaluate sent %d times; want 1", got)
	}

	// The next call attaches a fresh session and succeeds.
	fb.mu.Lock()
	delete(fb.errs, "Runtime.evaluate")
	fb.mu.Unlock()
	fb.respond("Runtime.evaluate", `{"result":{"type":"string","value":"{\"ok\":true}"}}`)
	if err := c.Evaluate(ctx, tab, "return true;", nil); err != nil {
		t.Fatalf("Evaluate() after failure error = %v", err)
	}
	if got := fb.count("Runtime.evaluate"); got != 2 {
		t.Fatalf("Runtime.evaluate sent %d times; want 2", got)
	}
	if got := fb.count("Target.attachToTarget"); got != 2 {
		t.Fatalf("attachToTarget sent %d times; want 2", got)
	}
}
