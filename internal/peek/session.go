package peek

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// CaptureConfig tunes the capture passes of a session.
type CaptureConfig struct {
	MaxScreenshots int
	FoldSlack      int
	Zoom           float64
	// ResetTimeout bounds the end-of-pass cleanup, which runs detached from
	// the pass context.
	ResetTimeout time.Duration
}

// DefaultCaptureConfig returns seven frames, 100px of fold slack, a 1.5
// zoom and a five second reset budget.
func DefaultCaptureConfig() CaptureConfig {
	return CaptureConfig{
		MaxScreenshots: DefaultMaxScreenshots,
		FoldSlack:      DefaultFoldSlack,
		Zoom:           1.5,
		ResetTimeout:   5 * time.Second,
	}
}

func (c CaptureConfig) normalized() CaptureConfig {
	d := DefaultCaptureConfig()
	if c.MaxScreenshots < 1 {
		c.MaxScreenshots = d.MaxScreenshots
	}
	if c.FoldSlack < 0 {
		c.FoldSlack = d.FoldSlack
	}
	if c.Zoom <= 0 {
		c.Zoom = d.Zoom
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = d.ResetTimeout
	}
	return c
}

// Status is the lifecycle state reported for a session.
type Status string

const (
	StatusLoading   Status = "loading"
	StatusCapturing Status = "capturing"
	StatusIdle      Status = "idle"
	StatusTimedOut  Status = "timed_out"
	StatusClosed    Status = "closed"
)

// PassResult summarizes one capture pass.
type PassResult struct {
	Tab        TabID
	Generation uint64
	URL        string
	Frames     int
	Reason     StopReason
	Err        error
	Duration   time.Duration
}

// PassObserver is told about every finished pass that was not superseded.
type PassObserver interface {
	PassFinished(ctx context.Context, res PassResult)
}

type PassObserverFunc func(ctx context.Context, res PassResult)

func (f PassObserverFunc) PassFinished(ctx context.Context, res PassResult) { f(ctx, res) }

// SessionInfo is a point-in-time view of a session.
type SessionInfo struct {
	TabID      string     `json:"tab_id"`
	Tab        TabID      `json:"tab"`
	Origin     TabID      `json:"origin"`
	TargetURL  string     `json:"target_url"`
	LastURL    string     `json:"last_url,omitempty"`
	Status     Status     `json:"status"`
	Frames     int        `json:"frames"`
	Loads      int        `json:"loads"`
	Generation uint64     `json:"generation"`
	StopReason StopReason `json:"stop_reason,omitempty"`
	LastError  string     `json:"last_error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Session owns one preview: the hidden tab, its overlay and the capture
// passes run for every top-level load in that tab.
type Session struct {
	tab       TabID
	origin    TabID
	tabs      TabController
	overlay   Overlay
	registry  *Registry
	cfg       CaptureConfig
	observers []PassObserver
	clock     clockwork.Clock

	// writeMu serializes overlay writes with the generation check that
	// guards them.
	writeMu sync.Mutex

	mu          sync.Mutex
	targetURL   string
	lastURL     string
	status      Status
	frames      int
	loads       int
	generation  uint64
	reason      StopReason
	lastErr     string
	startedAt   time.Time
	updatedAt   time.Time
	loadTimer   clockwork.Timer
	closeCalled bool
	tabClosing  bool
}

// NewSession builds a session for a hidden tab. It must be registered
// before its first load is published.
func NewSession(tab, origin TabID, targetURL string, tabs TabController, overlay Overlay, registry *Registry, cfg CaptureConfig, observers ...PassObserver) *Session {
	clock := clockwork.NewRealClock()
	now := clock.Now()
	return &Session{
		tab:       tab,
		origin:    origin,
		tabs:      tabs,
		overlay:   overlay,
		registry:  registry,
		cfg:       cfg.normalized(),
		observers: observers,
		clock:     clock,
		targetURL: targetURL,
		status:    StatusLoading,
		startedAt: now,
		updatedAt: now,
	}
}

func (s *Session) Tab() TabID { return s.tab }

func (s *Session) Info() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionInfo{
		TabID:      s.tab.String(),
		Tab:        s.tab,
		Origin:     s.origin,
		TargetURL:  s.targetURL,
		LastURL:    s.lastURL,
		Status:     s.status,
		Frames:     s.frames,
		Loads:      s.loads,
		Generation: s.generation,
		StopReason: s.reason,
		LastError:  s.lastErr,
		StartedAt:  s.startedAt,
		UpdatedAt:  s.updatedAt,
	}
}

// Loads returns how many top-level loads reached this session.
func (s *Session) Loads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loads
}

// Close ends the session and removes its overlay. The registry entry is
// owned by the caller.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closeCalled {
		s.mu.Unlock()
		return nil
	}
	s.closeCalled = true
	s.status = StatusClosed
	s.updatedAt = s.clock.Now()
	if s.loadTimer != nil {
		s.loadTimer.Stop()
		s.loadTimer = nil
	}
	s.mu.Unlock()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.overlay.Close(ctx); err != nil {
		return fmt.Errorf("close overlay for %s: %w", s.tab, err)
	}
	return nil
}

// OnLoaded runs one capture pass for a top-level load.
func (s *Session) OnLoaded(ctx context.Context, ev LoadEvent) {
	res := s.runPass(ctx, ev)
	if res.Reason == StopSuperseded {
		return
	}
	for _, obs := range s.observers {
		obs.PassFinished(ctx, res)
	}
}

func (s *Session) runPass(ctx context.Context, ev LoadEvent) PassResult {
	start := s.clock.Now()
	s.beginPass(ev)
	log := slog.With("tab", s.tab.String(), "generation", ev.Generation, "url", truncateURL(ev.URL))
	log.Info("peek capture pass started")

	plan := NewPlan(s.cfg.MaxScreenshots, s.cfg.FoldSlack)
	err := s.capture(ctx, ev, plan, log)
	if err != nil {
		plan.Abort(StopFailed)
	}

	res := PassResult{
		Tab:        s.tab,
		Generation: ev.Generation,
		URL:        ev.URL,
		Frames:     plan.Frames(),
		Reason:     plan.Reason(),
		Err:        err,
	}

	switch {
	case res.Reason == StopSuperseded:
		log.Info("peek capture pass superseded", "frames", res.Frames)
	case s.registry.Holds(s.tab, s) && !s.registry.Current(s.tab, ev.Generation):
		log.Info("peek capture pass ended after newer load", "frames", res.Frames, "reason", res.Reason, "error", err)
	default:
		if err != nil {
			log.Warn("peek capture pass failed", "frames", res.Frames, "error", err)
		}
		// Detached tabs that stay open are reset too.
		if s.closingTab() {
			log.Debug("peek view reset skipped for closing tab")
		} else {
			s.resetView(ctx, log)
		}
	}

	res.Duration = s.clock.Since(start)
	s.endPass(res)
	if res.Reason != StopSuperseded {
		log.Info("peek capture pass finished", "frames", res.Frames, "reason", res.Reason, "duration_ms", res.Duration.Milliseconds())
	}
	return res
}

func (s *Session) capture(ctx context.Context, ev LoadEvent, plan *Plan, log *slog.Logger) error {
	gen := ev.Generation

	ok, err := s.write(gen, func() error {
		if err := s.overlay.Clear(ctx); err != nil {
			return err
		}
		return s.overlay.SetTitle(ctx, ev.URL)
	})
	if err != nil {
		return fmt.Errorf("reset overlay: %w", err)
	}
	if !ok {
		plan.Abort(s.staleReason())
		return nil
	}

	if err := s.tabs.InjectStyle(ctx, s.tab, zoomStyle(s.cfg.Zoom)); err != nil {
		return fmt.Errorf("inject zoom style: %w", err)
	}
	if err := s.tabs.Evaluate(ctx, s.tab, zoomOnScript, nil); err != nil {
		return fmt.Errorf("apply zoom: %w", err)
	}

	// Above the fold.
	shot, err := s.tabs.CaptureViewport(ctx, s.tab)
	if err != nil {
		return fmt.Errorf("capture viewport: %w", err)
	}
	var fold foldMetrics
	if err := s.tabs.Evaluate(ctx, s.tab, measureScript, &fold); err != nil {
		return fmt.Errorf("measure page: %w", err)
	}
	if ok, err := s.appendFrame(ctx, gen, shot, 0); err != nil {
		return err
	} else if !ok {
		plan.Abort(s.staleReason())
		return nil
	}
	s.recordFrame(plan, fold.Remaining, log)

	for idx := range plan.Steps() {
		if !s.registry.Current(s.tab, gen) {
			plan.Abort(s.staleReason())
			return nil
		}

		if err := s.tabs.Evaluate(ctx, s.tab, scrollScript, &fold); err != nil {
			return fmt.Errorf("scroll step %d: %w", idx, err)
		}
		shot, err := s.tabs.CaptureViewport(ctx, s.tab)
		if err != nil {
			return fmt.Errorf("capture step %d: %w", idx, err)
		}
		ok, err := s.appendFrame(ctx, gen, shot, idx)
		if err != nil {
			return err
		}
		if !ok {
			plan.Abort(s.staleReason())
			return nil
		}
		s.recordFrame(plan, fold.Remaining, log)
	}
	return nil
}

// staleReason classifies a failed generation check. While the session is
// still registered only a newer load can have moved the generation on.
func (s *Session) staleReason() StopReason {
	if s.registry.Holds(s.tab, s) {
		return StopSuperseded
	}
	return StopDetached
}

// markTabClosing records that the hidden tab is about to be removed, so a
// pass cut short by it skips the view reset.
func (s *Session) markTabClosing() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tabClosing = true
}

func (s *Session) closingTab() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tabClosing
}

func (s *Session) recordFrame(plan *Plan, remaining int, log *slog.Logger) {
	reason := plan.Record(remaining)
	s.mu.Lock()
	s.frames = plan.Frames()
	s.updatedAt = s.clock.Now()
	s.mu.Unlock()
	if reason == StopCapped {
		log.Info("peek page truncated", "frames", plan.Frames(), "remaining_px", remaining)
	}
}

// write runs fn while holding the overlay lock, provided gen is still the
// latest generation of this tab.
func (s *Session) write(gen uint64, fn func() error) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if !s.registry.Current(s.tab, gen) {
		return false, nil
	}
	return true, fn()
}

func (s *Session) appendFrame(ctx context.Context, gen uint64, shot Screenshot, idx int) (bool, error) {
	shot.Generation = gen
	shot.Index = idx
	ok, err := s.write(gen, func() error {
		return s.overlay.AppendImage(ctx, shot)
	})
	if err != nil {
		return false, fmt.Errorf("append frame %d: %w", idx, err)
	}
	return ok, nil
}

func (s *Session) resetView(ctx context.Context, log *slog.Logger) {
	resetCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ResetTimeout)
	defer cancel()
	if err := s.tabs.Evaluate(resetCtx, s.tab, resetScript, nil); err != nil {
		log.Warn("peek view reset failed", "error", err)
	}
}

func (s *Session) beginPass(ev LoadEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	s.generation = ev.Generation
	s.lastURL = ev.URL
	s.targetURL = ev.URL
	s.frames = 0
	s.reason = StopNone
	s.lastErr = ""
	if s.status != StatusClosed {
		s.status = StatusCapturing
	}
	if s.loadTimer != nil {
		s.loadTimer.Stop()
		s.loadTimer = nil
	}
	s.updatedAt = s.clock.Now()
}

func (s *Session) endPass(res PassResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != res.Generation {
		return
	}
	s.reason = res.Reason
	if res.Err != nil {
		s.lastErr = res.Err.Error()
	}
	if s.status == StatusCapturing {
		s.status = StatusIdle
	}
	s.updatedAt = s.clock.Now()
}

func (s *Session) useClock(clock clockwork.Clock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clock
	s.startedAt = clock.Now()
	s.updatedAt = s.startedAt
}

// armLoadTimeout replaces the overlay title when no load arrives in time.
func (s *Session) armLoadTimeout(d time.Duration, title string) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadTimer = s.clock.AfterFunc(d, func() {
		s.expireIfIdle(title, d)
	})
}

func (s *Session) expireIfIdle(title string, d time.Duration) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	idle := s.loads == 0 && s.status == StatusLoading
	if idle {
		s.status = StatusTimedOut
		s.updatedAt = s.clock.Now()
	}
	s.mu.Unlock()
	if !idle || !s.registry.Holds(s.tab, s) {
		return
	}

	slog.Warn("peek load timed out", "tab", s.tab.String(), "timeout_ms", d.Milliseconds())
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ResetTimeout)
	defer cancel()
	if err := s.overlay.SetTitle(ctx, title); err != nil {
		slog.Warn("peek timeout title failed", "tab", s.tab.String(), "error", err)
	}
}

// Describe lists the sessions held by a registry.
func Describe(r *Registry) []SessionInfo {
	handlers := r.Handlers()
	out := make([]SessionInfo, 0, len(handlers))
	for _, h := range handlers {
		if s, ok := h.(*Session); ok {
			out = append(out, s.Info())
		}
	}
	return out
}

// Find returns the session registered for tab.
func Find(r *Registry, tab TabID) (*Session, bool) {
	h, ok := r.Lookup(tab)
	if !ok {
		return nil, false
	}
	s, ok := h.(*Session)
	return s, ok
}
