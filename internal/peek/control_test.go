package peek

import (
	"context"
	"errors"
	"testing"
)

func newControlHarness(t *testing.T) (*Control, *Registry, *fakeTabs, *fakeOverlay, TabID) {
	t.Helper()
	reg := NewRegistry()
	tabs := newFakeTabs(1000, 1000)
	ov := &fakeOverlay{}
	tab := TabID{WindowID: 4, TargetID: "hidden"}
	reg.Register(tab, NewSession(tab, originTab, "https://example.com", tabs, ov, reg, DefaultCaptureConfig()))
	return NewControl(reg, tabs), reg, tabs, ov, tab
}

func TestControlPromote(t *testing.T) {
	control, reg, tabs, ov, tab := newControlHarness(t)
	if err := control.Promote(context.Background(), tab); err != nil {
		t.Fatalf("Promote() error = %v", err)
	}
	if reg.Len() != 0 {
		t.Fatal("session still registered")
	}
	if len(tabs.activated) != 1 || tabs.activated[0] != tab {
		t.Fatalf("activated = %v", tabs.activated)
	}
	if len(tabs.removed) != 0 {
		t.Fatalf("removed = %v", tabs.removed)
	}
	if _, _, closed := ov.snapshot(); !closed {
		t.Fatal("overlay not closed")
	}

	bus := NewBus(context.Background(), reg)
	if bus.Publish(LoadEvent{Tab: tab, URL: "https://example.com", TopLevel: true}) {
		t.Fatal("load dispatched to promoted tab")
	}
}

func TestControlDiscard(t *testing.T) {
	control, reg, tabs, _, tab := newControlHarness(t)
	if err := control.Discard(context.Background(), tab); err != nil {
		t.Fatalf("Discard() error = %v", err)
	}
	if reg.Len() != 0 {
		t.Fatal("session still registered")
	}
	if len(tabs.removed) != 1 || tabs.removed[0] != tab {
		t.Fatalf("removed = %v", tabs.removed)
	}
}

func TestControlIntentsWithoutSession(t *testing.T) {
	control, _, tabs, _, _ := newControlHarness(t)
	unknown := TabID{WindowID: 4, TargetID: "gone"}

	if err := control.Promote(context.Background(), unknown); err != nil {
		t.Fatalf("Promote() error = %v", err)
	}
	if err := control.Discard(context.Background(), unknown); err != nil {
		t.Fatalf("Discard() error = %v", err)
	}
	if len(tabs.activated) != 1 || len(tabs.removed) != 1 {
		t.Fatalf("host calls: activated=%v removed=%v", tabs.activated, tabs.removed)
	}
	if err := control.Dismiss(context.Background(), unknown); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("Dismiss() error = %v; want ErrSessionNotFound", err)
	}
}

func TestControlDismissKeepsTab(t *testing.T) {
	control, reg, tabs, ov, tab := newControlHarness(t)
	if err := control.Dismiss(context.Background(), tab); err != nil {
		t.Fatalf("Dismiss() error = %v", err)
	}
	if reg.Len() != 0 {
		t.Fatal("session still registered")
	}
	if len(tabs.removed) != 0 || len(tabs.activated) != 0 {
		t.Fatalf("host calls: activated=%v removed=%v", tabs.activated, tabs.removed)
	}
	if _, _, closed := ov.snapshot(); !closed {
		t.Fatal("overlay not closed")
	}
}

func TestControlHandleMessage(t *testing.T) {
	control, reg, tabs, _, tab := newControlHarness(t)

	raw := []byte(`{"message":"switch-to-newly-opened-tab","tabId":"` + tab.String() + `"}`)
	if err := control.HandleMessage(context.Background(), raw); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if reg.Len() != 0 || len(tabs.activated) != 1 {
		t.Fatalf("promote not applied: len=%d activated=%v", reg.Len(), tabs.activated)
	}

	tests := []struct {
		name string
		raw  string
		want error
	}{
		{name: "unknown kind", raw: `{"message":"reload","tabId":"4-hidden"}`, want: ErrUnknownMessage},
		{name: "bad json", raw: `{`, want: ErrUnknownMessage},
		{name: "bad tab id", raw: `{"message":"close-newly-opened-tab","tabId":"nope"}`, want: ErrInvalidTabID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := control.HandleMessage(context.Background(), []byte(tt.raw)); !errors.Is(err, tt.want) {
				t.Fatalf("HandleMessage() error = %v; want %v", err, tt.want)
			}
		})
	}
}

func TestControlForget(t *testing.T) {
	control, reg, tabs, ov, tab := newControlHarness(t)
	control.Forget(context.Background(), tab)
	control.Forget(context.Background(), tab)
	if reg.Len() != 0 {
		t.Fatal("session still registered")
	}
	if len(tabs.removed) != 0 {
		t.Fatalf("removed = %v", tabs.removed)
	}
	if _, _, closed := ov.snapshot(); !closed {
		t.Fatal("overlay not closed")
	}
}
