package controller

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dgnsrekt/quickpeek/internal/cdpcontrol"
	"github.com/dgnsrekt/quickpeek/internal/metrics"
	"github.com/dgnsrekt/quickpeek/internal/peek"
	"github.com/dgnsrekt/quickpeek/internal/snapshot"
)

// ErrArchiveDisabled is returned by frame lookups when no archive directory
// is configured.
var ErrArchiveDisabled = errors.New("frame archive is disabled")

// Browser is the part of the CDP client the service needs beyond
// peek.TabController.
type Browser interface {
	ListPages(ctx context.Context) ([]cdpcontrol.PageInfo, error)
	ResolveOrigin(ctx context.Context, targetID string) (peek.TabID, error)
}

// LaunchResult describes a started preview.
type LaunchResult struct {
	TabID     string     `json:"tab_id"`
	Tab       peek.TabID `json:"tab"`
	Origin    peek.TabID `json:"origin"`
	TargetURL string     `json:"target_url"`
}

// Service wraps preview operations for the HTTP API and the CLI.
type Service struct {
	browser  Browser
	registry *peek.Registry
	launcher *peek.Launcher
	control  *peek.Control
	frames   *snapshot.Store
	metrics  *metrics.PeekMetrics
}

// NewService wires the service. frames and m may be nil.
func NewService(browser Browser, registry *peek.Registry, launcher *peek.Launcher, control *peek.Control, frames *snapshot.Store, m *metrics.PeekMetrics) *Service {
	return &Service{
		browser:  browser,
		registry: registry,
		launcher: launcher,
		control:  control,
		frames:   frames,
		metrics:  m,
	}
}

func (s *Service) requireNonEmpty(value, fieldName string) error {
	if strings.TrimSpace(value) == "" {
		return &cdpcontrol.CodedError{Code: cdpcontrol.CodeValidation, Message: fieldName + " is required"}
	}
	return nil
}

func (s *Service) parseTab(raw string) (peek.TabID, error) {
	if err := s.requireNonEmpty(raw, "tab_id"); err != nil {
		return peek.TabID{}, err
	}
	return peek.ParseTabID(strings.TrimSpace(raw))
}

// Launch previews rawURL over the origin tab. An empty originTargetID picks
// the first page that matches the origin filter.
func (s *Service) Launch(ctx context.Context, rawURL, originTargetID string) (LaunchResult, error) {
	if err := s.requireNonEmpty(rawURL, "url"); err != nil {
		return LaunchResult{}, err
	}
	origin, err := s.browser.ResolveOrigin(ctx, originTargetID)
	if err != nil {
		s.metrics.ObserveLaunch(err)
		return LaunchResult{}, err
	}
	tab, err := s.launcher.Launch(ctx, rawURL, origin)
	s.metrics.ObserveLaunch(err)
	if err != nil {
		return LaunchResult{}, err
	}
	return LaunchResult{
		TabID:     tab.String(),
		Tab:       tab,
		Origin:    origin,
		TargetURL: peek.ResolveTarget(strings.TrimSpace(rawURL)),
	}, nil
}

func (s *Service) ListPeeks(_ context.Context) []peek.SessionInfo {
	return peek.Describe(s.registry)
}

func (s *Service) GetPeek(_ context.Context, tabID string) (peek.SessionInfo, error) {
	tab, err := s.parseTab(tabID)
	if err != nil {
		return peek.SessionInfo{}, err
	}
	sess, ok := peek.Find(s.registry, tab)
	if !ok {
		return peek.SessionInfo{}, fmt.Errorf("%w: %s", peek.ErrSessionNotFound, tab)
	}
	return sess.Info(), nil
}

func (s *Service) Promote(ctx context.Context, tabID string) error {
	return s.intent(ctx, "promote", tabID, s.control.Promote)
}

func (s *Service) Discard(ctx context.Context, tabID string) error {
	return s.intent(ctx, "discard", tabID, s.control.Discard)
}

func (s *Service) Dismiss(ctx context.Context, tabID string) error {
	return s.intent(ctx, "dismiss", tabID, s.control.Dismiss)
}

func (s *Service) intent(ctx context.Context, name, tabID string, apply func(context.Context, peek.TabID) error) error {
	tab, err := s.parseTab(tabID)
	if err != nil {
		return err
	}
	err = apply(ctx, tab)
	s.metrics.ObserveIntent(name, err)
	return err
}

// HandleMessage applies a raw control message, as sent by the overlay
// panel or a stream client.
func (s *Service) HandleMessage(ctx context.Context, raw []byte) error {
	err := s.control.HandleMessage(ctx, raw)
	s.metrics.ObserveIntent("message", err)
	return err
}

func (s *Service) ListPages(ctx context.Context) ([]cdpcontrol.PageInfo, error) {
	return s.browser.ListPages(ctx)
}

// --- Frame archive ---

func (s *Service) ListFrames(_ context.Context, tab string) ([]snapshot.FrameMeta, error) {
	if s.frames == nil {
		return nil, ErrArchiveDisabled
	}
	return s.frames.List(strings.TrimSpace(tab))
}

func (s *Service) GetFrame(_ context.Context, id string) (snapshot.FrameMeta, error) {
	if s.frames == nil {
		return snapshot.FrameMeta{}, ErrArchiveDisabled
	}
	return s.frames.Get(strings.TrimSpace(id))
}

func (s *Service) ReadFrameImage(_ context.Context, id string) ([]byte, string, error) {
	if s.frames == nil {
		return nil, "", ErrArchiveDisabled
	}
	return s.frames.ReadImage(strings.TrimSpace(id))
}

func (s *Service) DeleteFrame(_ context.Context, id string) error {
	if s.frames == nil {
		return ErrArchiveDisabled
	}
	return s.frames.Delete(strings.TrimSpace(id))
}
