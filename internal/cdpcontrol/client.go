package cdpcontrol

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/target"

	"github.com/dgnsrekt/quickpeek/internal/peek"
)

// BindingName is the page function overlays call to send control messages.
const BindingName = "__quickpeekControl"

const asyncTimeout = 30 * time.Second

type tabSession struct {
	targetID  target.ID
	mu        sync.Mutex
	sessionID string
}

// Events receives browser notifications. OnLoad is called from the CDP read
// loop and must not block; the other callbacks run on their own goroutine.
type Events struct {
	OnLoad    func(ev peek.LoadEvent)
	OnControl func(ctx context.Context, payload []byte) error
	OnTabGone func(ctx context.Context, tab peek.TabID)
}

// Client drives tabs of one Chromium instance over CDP. Tabs it creates in
// the background are tracked as hidden tabs and report their loads; any other
// page it attaches to gets the control binding installed.
type Client struct {
	cdpURL       string
	originFilter string
	evalTimeout  time.Duration
	capture      CaptureOptions

	mu          sync.Mutex
	closed      bool
	cdp         *rawCDP
	tabs        map[target.ID]*tabSession
	pages       map[target.ID]PageInfo
	unsubscribe []func()

	// Read from the CDP read loop; never held across a command.
	sessMu   sync.RWMutex
	sessions map[string]target.ID
	hiddenMu sync.Mutex
	hidden   map[target.ID]peek.TabID
	tracker  *navTracker

	events Events
	wg     sync.WaitGroup
}

var _ peek.TabController = (*Client)(nil)

func NewClient(cdpURL, originFilter string, evalTimeout time.Duration, capture CaptureOptions) *Client {
	if capture.Format == "" {
		capture.Format = "png"
	}
	return &Client{
		cdpURL:       cdpURL,
		originFilter: strings.ToLower(strings.TrimSpace(originFilter)),
		evalTimeout:  evalTimeout,
		capture:      capture,
		tabs:         make(map[target.ID]*tabSession),
		pages:        make(map[target.ID]PageInfo),
		sessions:     make(map[string]target.ID),
		hidden:       make(map[target.ID]peek.TabID),
		tracker:      newNavTracker(),
	}
}

// SetEvents installs the notification callbacks. Call it before Connect.
func (c *Client) SetEvents(ev Events) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = ev
}

func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = false
	return c.connectLocked(ctx)
}

func (c *Client) connectLocked(ctx context.Context) error {
	if c.cdpURL == "" {
		return newError(CodeCDPUnavailable, "missing CDP URL", nil)
	}

	slog.Info("cdpcontrol connect start", "cdp_url", c.cdpURL)
	c.cleanupLocked()

	cdp := newRawCDP(c.cdpURL)
	c.subscribeLocked(cdp)
	if err := cdp.connect(ctx); err != nil {
		c.unsubscribeLocked()
		return newError(CodeCDPUnavailable, "connect to CDP failed", err)
	}
	c.cdp = cdp

	if err := c.syncPagesLocked(ctx); err != nil {
		slog.Error("cdpcontrol initial page sync failed", "error", err)
		c.cleanupLocked()
		return newError(CodeCDPUnavailable, "connect to CDP failed", err)
	}

	slog.Info("cdpcontrol connect ok", "cdp_url", c.cdpURL, "pages", len(c.pages))
	return nil
}

// Close detaches from every session without closing any tab and waits for
// in-flight event callbacks.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	c.cleanupLocked()
	c.mu.Unlock()
	c.wg.Wait()
	return nil
}

func (c *Client) cleanupLocked() {
	c.unsubscribeLocked()
	if c.cdp != nil {
		for _, ts := range c.tabs {
			if ts == nil {
				continue
			}
			ts.mu.Lock()
			if ts.sessionID != "" {
				ctx, cancel := context.WithTimeout(context.Background(), time.Second)
				if err := c.cdp.detachFromTarget(ctx, ts.sessionID); err != nil {
					slog.Debug("cdpcontrol detach cleanup failed", "target_id", ts.targetID, "error", err)
				}
				cancel()
				ts.sessionID = ""
			}
			ts.mu.Unlock()
		}
		c.cdp.close()
		c.cdp = nil
	}
	c.tabs = make(map[target.ID]*tabSession)
	c.pages = make(map[target.ID]PageInfo)
	c.sessMu.Lock()
	c.sessions = make(map[string]target.ID)
	c.sessMu.Unlock()
}

func (c *Client) subscribeLocked(cdp *rawCDP) {
	c.unsubscribe = []func(){
		cdp.on("Page.frameNavigated", c.onFrameNavigated),
		cdp.on("Page.lifecycleEvent", c.onLifecycleEvent),
		cdp.on("Runtime.bindingCalled", c.onBindingCalled),
		cdp.on("Target.detachedFromTarget", c.onDetached),
	}
}

func (c *Client) unsubscribeLocked() {
	for _, fn := range c.unsubscribe {
		fn()
	}
	c.unsubscribe = nil
}

// ListPages returns the open pages sorted by target id.
func (c *Client) ListPages(ctx context.Context) ([]PageInfo, error) {
	if err := c.refreshPages(ctx); err != nil {
		slog.Warn("cdpcontrol list pages failed", "error", err)
		return nil, err
	}

	c.mu.Lock()
	pages := make([]PageInfo, 0, len(c.pages))
	for id, p := range c.pages {
		if tab, ok := c.hiddenTab(id); ok {
			p.Hidden = true
			p.TabID = tab.String()
		}
		pages = append(pages, p)
	}
	c.mu.Unlock()

	sort.Slice(pages, func(i, j int) bool {
		return pages[i].TargetID < pages[j].TargetID
	})
	slog.Debug("cdpcontrol list pages", "count", len(pages))
	return pages, nil
}

// ResolveOrigin picks the tab that hosts a preview overlay. An empty target
// id selects the first visible page matching the origin filter.
func (c *Client) ResolveOrigin(ctx context.Context, targetID string) (peek.TabID, error) {
	pages, err := c.ListPages(ctx)
	if err != nil {
		return peek.TabID{}, err
	}
	targetID = strings.TrimSpace(targetID)

	var chosen *PageInfo
	for i := range pages {
		p := pages[i]
		if p.Hidden {
			continue
		}
		if targetID != "" {
			if p.TargetID == targetID {
				chosen = &p
				break
			}
			continue
		}
		if c.originFilter != "" && !strings.Contains(strings.ToLower(p.URL), c.originFilter) {
			continue
		}
		chosen = &p
		break
	}
	if chosen == nil {
		if targetID != "" {
			return peek.TabID{}, newError(CodeTabNotFound, "origin tab not found: "+targetID, nil)
		}
		return peek.TabID{}, newError(CodeTabNotFound, "no origin tab available", nil)
	}

	cdp, err := c.browser(ctx)
	if err != nil {
		return peek.TabID{}, err
	}
	return c.tabIDFor(ctx, cdp, target.ID(chosen.TargetID)), nil
}

func (c *Client) CreateTab(ctx context.Context, url string, background bool) (peek.TabID, error) {
	cdp, err := c.browser(ctx)
	if err != nil {
		return peek.TabID{}, err
	}
	targetID, err := cdp.createTarget(ctx, url, background)
	if err != nil {
		return peek.TabID{}, newError(CodeCDPUnavailable, "create target failed", err)
	}
	tab := c.tabIDFor(ctx, cdp, targetID)
	if background {
		c.hiddenMu.Lock()
		c.hidden[targetID] = tab
		c.hiddenMu.Unlock()
	}

	if _, err := c.ensureSession(ctx, cdp, c.session(targetID)); err != nil {
		c.forgetHidden(targetID)
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		if closeErr := cdp.closeTarget(closeCtx, targetID); closeErr != nil {
			slog.Debug("cdpcontrol close after failed attach", "target_id", targetID, "error", closeErr)
		}
		return peek.TabID{}, err
	}
	slog.Debug("cdpcontrol tab created", "tab", tab.String(), "background", background)
	return tab, nil
}

func (c *Client) Navigate(ctx context.Context, tab peek.TabID, url string) error {
	cdp, sid, err := c.attached(ctx, tab)
	if err != nil {
		return err
	}
	errorText, err := cdp.navigate(ctx, sid, url)
	if err != nil {
		return targetError(err, "navigate failed")
	}
	if errorText != "" {
		// Chromium still commits an error page, which loads like any other.
		slog.Warn("cdpcontrol navigation error page", "tab", tab.String(), "error_text", errorText)
	}
	return nil
}

// ActivateTab brings the tab to the foreground. It stops being tracked as a
// hidden tab.
func (c *Client) ActivateTab(ctx context.Context, tab peek.TabID) error {
	cdp, err := c.browser(ctx)
	if err != nil {
		return err
	}
	targetID := target.ID(tab.TargetID)
	if err := cdp.activateTarget(ctx, targetID); err != nil {
		return targetError(err, "activate target failed")
	}
	c.forgetHidden(targetID)
	c.release(ctx, cdp, targetID)
	return nil
}

func (c *Client) RemoveTab(ctx context.Context, tab peek.TabID) error {
	cdp, err := c.browser(ctx)
	if err != nil {
		return err
	}
	targetID := target.ID(tab.TargetID)
	c.forgetHidden(targetID)
	c.mu.Lock()
	delete(c.tabs, targetID)
	delete(c.pages, targetID)
	c.mu.Unlock()
	if err := cdp.closeTarget(ctx, targetID); err != nil {
		return targetError(err, "close target failed")
	}
	return nil
}

func (c *Client) Evaluate(ctx context.Context, tab peek.TabID, body string, out any) error {
	// Scroll and append scripts are not idempotent, so a failed evaluation is
	// reported as is. A dropped session is re-attached on the next call.
	return c.evalOnce(ctx, target.ID(tab.TargetID), wrapValue(body), out)
}

func (c *Client) InjectStyle(ctx context.Context, tab peek.TabID, css string) error {
	return c.Evaluate(ctx, tab, styleScript(css), nil)
}

func (c *Client) CaptureViewport(ctx context.Context, tab peek.TabID) (peek.Screenshot, error) {
	cdp, sid, err := c.attached(ctx, tab)
	if err != nil {
		return peek.Screenshot{}, err
	}
	capCtx, cancel := context.WithTimeout(ctx, c.evalTimeout)
	defer cancel()

	data, err := cdp.captureScreenshot(capCtx, sid, c.capture.Format, c.capture.Quality)
	if err != nil {
		if errors.Is(capCtx.Err(), context.DeadlineExceeded) {
			return peek.Screenshot{}, newError(CodeEvalTimeout, "screenshot timed out", err)
		}
		return peek.Screenshot{}, targetError(err, "screenshot failed")
	}
	img, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return peek.Screenshot{}, newError(CodeEvalFailure, "invalid screenshot data", err)
	}
	return peek.Screenshot{Data: img, Format: c.capture.Format}, nil
}

func (c *Client) evalOnce(ctx context.Context, targetID target.ID, js string, out any) error {
	cdp, err := c.browser(ctx)
	if err != nil {
		return err
	}
	ts := c.session(targetID)
	sessionID, err := c.ensureSession(ctx, cdp, ts)
	if err != nil {
		return err
	}

	evalCtx, evalCancel := context.WithTimeout(ctx, c.evalTimeout)
	defer evalCancel()

	raw, err := cdp.evaluate(evalCtx, sessionID, js)
	if err != nil {
		slog.Warn("cdpcontrol eval failed", "target_id", targetID, "error", err)
		c.resetSession(ts, sessionID)
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(evalCtx.Err(), context.DeadlineExceeded) {
			return newError(CodeEvalTimeout, "evaluation timed out", err)
		}
		return newError(CodeEvalFailure, "evaluation failed", err)
	}
	return decodeEnvelope(raw, out)
}

type evalEnvelope struct {
	OK           bool            `json:"ok"`
	Data         json.RawMessage `json:"data,omitempty"`
	ErrorCode    string          `json:"error_code,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

func decodeEnvelope(raw string, out any) error {
	var env evalEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return newError(CodeEvalFailure, "invalid evaluation envelope", err)
	}
	if !env.OK {
		code := env.ErrorCode
		if code == "" {
			code = CodeEvalFailure
		}
		return newError(code, env.ErrorMessage, nil)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return newError(CodeEvalFailure, "invalid evaluation data", err)
	}
	return nil
}

// ensureSession returns a CDP session ID for the target, attaching and
// enabling the domains its role needs if required.
func (c *Client) ensureSession(ctx context.Context, cdp *rawCDP, ts *tabSession) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.sessionID != "" {
		return ts.sessionID, nil
	}

	sid, err := cdp.attachToTarget(ctx, ts.targetID)
	if err != nil {
		return "", targetError(err, "attach to target failed")
	}
	c.sessMu.Lock()
	c.sessions[sid] = ts.targetID
	c.sessMu.Unlock()

	_, hidden := c.hiddenTab(ts.targetID)
	if hidden {
		err = cdp.enableNavigationEvents(ctx, sid)
	} else {
		err = cdp.addBinding(ctx, sid, BindingName)
	}
	if err != nil {
		c.dropSession(sid)
		detachCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		_ = cdp.detachFromTarget(detachCtx, sid)
		return "", newError(CodeCDPUnavailable, "session setup failed", err)
	}

	ts.sessionID = sid
	slog.Debug("cdpcontrol session attached", "target_id", ts.targetID, "session_id", sid, "hidden", hidden)
	return sid, nil
}

func (c *Client) attached(ctx context.Context, tab peek.TabID) (*rawCDP, string, error) {
	if tab.IsZero() {
		return nil, "", newError(CodeValidation, "tab id is required", nil)
	}
	cdp, err := c.browser(ctx)
	if err != nil {
		return nil, "", err
	}
	sid, err := c.ensureSession(ctx, cdp, c.session(target.ID(tab.TargetID)))
	if err != nil {
		return nil, "", err
	}
	return cdp, sid, nil
}

// session returns the session record for a target, creating it if needed.
func (c *Client) session(targetID target.ID) *tabSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	ts := c.tabs[targetID]
	if ts == nil {
		ts = &tabSession{targetID: targetID}
		c.tabs[targetID] = ts
	}
	return ts
}

func (c *Client) resetSession(ts *tabSession, sessionID string) {
	ts.mu.Lock()
	if ts.sessionID == sessionID {
		ts.sessionID = ""
	}
	ts.mu.Unlock()
	c.dropSession(sessionID)
}

// release detaches from a target without closing it.
func (c *Client) release(ctx context.Context, cdp *rawCDP, targetID target.ID) {
	c.mu.Lock()
	ts := c.tabs[targetID]
	delete(c.tabs, targetID)
	c.mu.Unlock()
	if ts == nil {
		return
	}
	ts.mu.Lock()
	sid := ts.sessionID
	ts.sessionID = ""
	ts.mu.Unlock()
	if sid == "" {
		return
	}
	c.dropSession(sid)
	if err := cdp.detachFromTarget(ctx, sid); err != nil {
		slog.Debug("cdpcontrol detach failed", "target_id", targetID, "error", err)
	}
}

func (c *Client) tabIDFor(ctx context.Context, cdp *rawCDP, targetID target.ID) peek.TabID {
	windowID, err := cdp.windowForTarget(ctx, targetID)
	if err != nil {
		slog.Debug("cdpcontrol window lookup failed", "target_id", targetID, "error", err)
	}
	return peek.TabID{WindowID: windowID, TargetID: string(targetID)}
}

func (c *Client) hiddenTab(targetID target.ID) (peek.TabID, bool) {
	c.hiddenMu.Lock()
	defer c.hiddenMu.Unlock()
	tab, ok := c.hidden[targetID]
	return tab, ok
}

func (c *Client) forgetHidden(targetID target.ID) {
	c.hiddenMu.Lock()
	delete(c.hidden, targetID)
	c.hiddenMu.Unlock()
	c.tracker.forget(string(targetID))
}

func (c *Client) sessionTarget(sessionID string) (target.ID, bool) {
	c.sessMu.RLock()
	defer c.sessMu.RUnlock()
	id, ok := c.sessions[sessionID]
	return id, ok
}

func (c *Client) dropSession(sessionID string) {
	c.sessMu.Lock()
	delete(c.sessions, sessionID)
	c.sessMu.Unlock()
}

func (c *Client) onFrameNavigated(sessionID string, params json.RawMessage) {
	targetID, ok := c.sessionTarget(sessionID)
	if !ok {
		return
	}
	if _, hidden := c.hiddenTab(targetID); !hidden {
		return
	}
	c.tracker.frameNavigated(string(targetID), params)
}

func (c *Client) onLifecycleEvent(sessionID string, params json.RawMessage) {
	targetID, ok := c.sessionTarget(sessionID)
	if !ok {
		return
	}
	tab, hidden := c.hiddenTab(targetID)
	if !hidden {
		return
	}
	ev, ok := c.tracker.lifecycle(string(targetID), params)
	if !ok {
		return
	}
	ev.Tab = tab
	slog.Debug("cdpcontrol load observed", "tab", tab.String(), "top_level", ev.TopLevel, "url", ev.URL)
	if c.events.OnLoad != nil {
		c.events.OnLoad(ev)
	}
}

func (c *Client) onBindingCalled(sessionID string, params json.RawMessage) {
	var ev struct {
		Name    string `json:"name"`
		Payload string `json:"payload"`
	}
	if json.Unmarshal(params, &ev) != nil || ev.Name != BindingName {
		return
	}
	if c.events.OnControl == nil {
		return
	}
	c.async(func(ctx context.Context) {
		if err := c.events.OnControl(ctx, []byte(ev.Payload)); err != nil {
			slog.Warn("cdpcontrol control message rejected", "session_id", sessionID, "error", err)
		}
	})
}

func (c *Client) onDetached(_ string, params json.RawMessage) {
	var ev struct {
		SessionID string    `json:"sessionId"`
		TargetID  target.ID `json:"targetId"`
	}
	if json.Unmarshal(params, &ev) != nil {
		return
	}
	c.dropSession(ev.SessionID)
	c.async(func(ctx context.Context) {
		c.mu.Lock()
		ts := c.tabs[ev.TargetID]
		cdp := c.cdp
		c.mu.Unlock()
		if ts != nil {
			ts.mu.Lock()
			if ts.sessionID == ev.SessionID {
				ts.sessionID = ""
			}
			ts.mu.Unlock()
		}

		tab, hidden := c.hiddenTab(ev.TargetID)
		if !hidden || cdp == nil || c.targetExists(ctx, cdp, ev.TargetID) {
			return
		}
		c.forgetHidden(ev.TargetID)
		slog.Info("cdpcontrol hidden tab gone", "tab", tab.String())
		if c.events.OnTabGone != nil {
			c.events.OnTabGone(ctx, tab)
		}
	})
}

// targetExists reports false only when the browser confirms the target is
// no longer listed.
func (c *Client) targetExists(ctx context.Context, cdp *rawCDP, targetID target.ID) bool {
	targets, err := cdp.listTargets(ctx)
	if err != nil {
		return true
	}
	for _, t := range targets {
		if t.TargetID == targetID {
			return true
		}
	}
	return false
}

func (c *Client) async(fn func(ctx context.Context)) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), asyncTimeout)
		defer cancel()
		fn(ctx)
	}()
}

func (c *Client) refreshPages(ctx context.Context) error {
	if err := c.ensureConnected(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	err := c.syncPagesLocked(ctx)
	c.mu.Unlock()
	if err == nil {
		return nil
	}
	return newError(CodeCDPUnavailable, "failed to list targets", err)
}

func (c *Client) syncPagesLocked(ctx context.Context) error {
	if c.cdp == nil {
		return newError(CodeCDPUnavailable, "CDP client not connected", nil)
	}
	targets, err := c.cdp.listTargets(ctx)
	if err != nil {
		return err
	}

	pages := make(map[target.ID]PageInfo)
	for _, t := range targets {
		if t.Type != "page" {
			continue
		}
		pages[t.TargetID] = PageInfo{
			TargetID: string(t.TargetID),
			URL:      t.URL,
			Title:    t.Title,
		}
	}
	for targetID := range c.tabs {
		if _, ok := pages[targetID]; !ok {
			delete(c.tabs, targetID)
		}
	}
	c.pages = pages
	slog.Debug("cdpcontrol page sync", "targets", len(targets), "pages", len(pages))
	return nil
}

// browser returns the live transport, connecting first if needed.
func (c *Client) browser(ctx context.Context) (*rawCDP, error) {
	if err := c.ensureConnected(ctx); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cdp == nil {
		return nil, newError(CodeCDPUnavailable, "CDP client not connected", nil)
	}
	return c.cdp, nil
}

func (c *Client) reconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return newError(CodeCDPUnavailable, "client closed", nil)
	}
	return c.connectLocked(ctx)
}

func (c *Client) ensureConnected(ctx context.Context) error {
	c.mu.Lock()
	connected, closed := c.cdp != nil, c.closed
	c.mu.Unlock()
	if connected {
		return nil
	}
	if closed {
		return newError(CodeCDPUnavailable, "client closed", nil)
	}
	return c.reconnect(ctx)
}

// targetError classifies a CDP command failure against a target.
func targetError(err error, msg string) error {
	lower := strings.ToLower(err.Error())
	if strings.Contains(lower, "no target with given id") || strings.Contains(lower, "target not found") {
		return newError(CodeTabNotFound, msg, err)
	}
	return newError(CodeCDPUnavailable, msg, err)
}
