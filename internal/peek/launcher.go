package peek

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
)

// Launcher opens previews: a hidden tab plus an overlay on the tab the link
// was activated from.
type Launcher struct {
	registry    *Registry
	tabs        TabController
	overlays    OverlayFactory
	cfg         CaptureConfig
	loadTimeout time.Duration
	observers   []PassObserver
	clock       clockwork.Clock
}

// LauncherOption configures a Launcher.
type LauncherOption func(*Launcher)

func WithCaptureConfig(cfg CaptureConfig) LauncherOption {
	return func(l *Launcher) { l.cfg = cfg.normalized() }
}

// WithLoadTimeout sets how long a preview may wait for its first load before
// the overlay reports a timeout. Zero disables the timeout.
func WithLoadTimeout(d time.Duration) LauncherOption {
	return func(l *Launcher) { l.loadTimeout = d }
}

// WithClock sets the clock that drives load timeouts and session timestamps.
func WithClock(clock clockwork.Clock) LauncherOption {
	return func(l *Launcher) { l.clock = clock }
}

// WithObservers adds observers that every launched session reports its
// finished passes to.
func WithObservers(obs ...PassObserver) LauncherOption {
	return func(l *Launcher) { l.observers = append(l.observers, obs...) }
}

func NewLauncher(registry *Registry, tabs TabController, overlays OverlayFactory, opts ...LauncherOption) *Launcher {
	l := &Launcher{
		registry:    registry,
		tabs:        tabs,
		overlays:    overlays,
		cfg:         DefaultCaptureConfig(),
		loadTimeout: 30 * time.Second,
		clock:       clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Launch previews rawURL from the origin tab and returns the hidden tab.
func (l *Launcher) Launch(ctx context.Context, rawURL string, origin TabID) (TabID, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return TabID{}, ErrEmptyURL
	}
	target := ResolveTarget(rawURL)
	log := slog.With("origin", origin.String(), "url", truncateURL(target))

	// The tab starts blank; navigation waits until the session is registered.
	tab, err := l.tabs.CreateTab(ctx, "about:blank", true)
	if err != nil {
		return TabID{}, fmt.Errorf("create hidden tab: %w", err)
	}
	log = log.With("tab", tab.String())

	ov := l.overlays(origin)
	if err := ov.Open(ctx, tab); err != nil {
		l.abandon(ctx, tab, nil, log)
		return TabID{}, fmt.Errorf("open overlay: %w", err)
	}

	sess := NewSession(tab, origin, target, l.tabs, ov, l.registry, l.cfg, l.observers...)
	sess.useClock(l.clock)
	if l.registry.Register(tab, sess) {
		log.Warn("peek session replaced existing entry")
	}

	if err := ov.Clear(ctx); err != nil {
		l.abandon(ctx, tab, sess, log)
		return TabID{}, fmt.Errorf("clear overlay: %w", err)
	}
	if err := ov.SetTitle(ctx, target); err != nil {
		l.abandon(ctx, tab, sess, log)
		return TabID{}, fmt.Errorf("set overlay title: %w", err)
	}

	sess.armLoadTimeout(l.loadTimeout, "Timed out loading "+target)
	if err := l.tabs.Navigate(ctx, tab, target); err != nil {
		l.abandon(ctx, tab, sess, log)
		return TabID{}, fmt.Errorf("navigate hidden tab: %w", err)
	}

	log.Info("peek launched")
	return tab, nil
}

func (l *Launcher) abandon(ctx context.Context, tab TabID, sess *Session, log *slog.Logger) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.cfg.ResetTimeout)
	defer cancel()
	if sess != nil {
		sess.markTabClosing()
		if l.registry.Holds(tab, sess) {
			l.registry.Remove(tab)
		}
		if err := sess.Close(cleanupCtx); err != nil {
			log.Warn("peek overlay cleanup failed", "error", err)
		}
	}
	if err := l.tabs.RemoveTab(cleanupCtx, tab); err != nil {
		log.Warn("peek hidden tab cleanup failed", "error", err)
	}
}
