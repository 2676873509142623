package peek

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

// Control message kinds understood by HandleMessage.
const (
	MessagePromote = "switch-to-newly-opened-tab"
	MessageDiscard = "close-newly-opened-tab"
	MessageDismiss = "dismiss-peek-overlay"
)

// ControlMessage is the payload sent by an overlay when the user acts on it.
type ControlMessage struct {
	Message string `json:"message"`
	TabID   string `json:"tabId"`
}

// Control applies user intents to previews.
type Control struct {
	registry *Registry
	tabs     TabController
}

func NewControl(registry *Registry, tabs TabController) *Control {
	return &Control{registry: registry, tabs: tabs}
}

type closer interface {
	Close(ctx context.Context) error
}

// detach drops the registry entry for tab and closes the overlay of the
// handler it held. It reports whether a session existed. closingTab is set
// when the hidden tab itself is going away.
func (c *Control) detach(ctx context.Context, tab TabID, closingTab bool) bool {
	if closingTab {
		if h, ok := c.registry.Lookup(tab); ok {
			if s, ok := h.(*Session); ok {
				s.markTabClosing()
			}
		}
	}
	h, ok := c.registry.Remove(tab)
	if !ok {
		return false
	}
	if cl, ok := h.(closer); ok {
		if err := cl.Close(ctx); err != nil {
			slog.Warn("peek overlay close failed", "tab", tab.String(), "error", err)
		}
	}
	return true
}

// Promote brings the hidden tab to the foreground. The tab is activated even
// when no session is registered for it.
func (c *Control) Promote(ctx context.Context, tab TabID) error {
	had := c.detach(ctx, tab, false)
	if err := c.tabs.ActivateTab(ctx, tab); err != nil {
		return fmt.Errorf("activate %s: %w", tab, err)
	}
	slog.Info("peek promoted", "tab", tab.String(), "had_session", had)
	return nil
}

// Discard closes the hidden tab.
func (c *Control) Discard(ctx context.Context, tab TabID) error {
	had := c.detach(ctx, tab, true)
	if err := c.tabs.RemoveTab(ctx, tab); err != nil {
		return fmt.Errorf("remove %s: %w", tab, err)
	}
	slog.Info("peek discarded", "tab", tab.String(), "had_session", had)
	return nil
}

// Dismiss closes the overlay and stops capturing, leaving the hidden tab open.
func (c *Control) Dismiss(ctx context.Context, tab TabID) error {
	if !c.detach(ctx, tab, false) {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, tab)
	}
	slog.Info("peek dismissed", "tab", tab.String())
	return nil
}

// Forget drops the session of a tab that no longer exists.
func (c *Control) Forget(ctx context.Context, tab TabID) {
	if c.detach(ctx, tab, true) {
		slog.Info("peek tab gone", "tab", tab.String())
	}
}

// HandleMessage decodes a ControlMessage and applies it.
func (c *Control) HandleMessage(ctx context.Context, raw []byte) error {
	var msg ControlMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("%w: %v", ErrUnknownMessage, err)
	}
	return c.Apply(ctx, msg)
}

func (c *Control) Apply(ctx context.Context, msg ControlMessage) error {
	tab, err := ParseTabID(msg.TabID)
	if err != nil {
		return err
	}
	switch strings.TrimSpace(msg.Message) {
	case MessagePromote:
		return c.Promote(ctx, tab)
	case MessageDiscard:
		return c.Discard(ctx, tab)
	case MessageDismiss:
		return c.Dismiss(ctx, tab)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMessage, msg.Message)
	}
}
