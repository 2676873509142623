package peek

import (
	"errors"
	"testing"
)

func TestTabIDRoundTrip(t *testing.T) {
	tab := TabID{WindowID: 12, TargetID: "5F1C2A"}
	if got, want := tab.String(), "12-5F1C2A"; got != want {
		t.Fatalf("String() = %q; want %q", got, want)
	}
	parsed, err := ParseTabID(tab.String())
	if err != nil {
		t.Fatalf("ParseTabID() error = %v", err)
	}
	if parsed != tab {
		t.Fatalf("ParseTabID() = %+v; want %+v", parsed, tab)
	}
}

func TestParseTabIDKeepsDashesInTarget(t *testing.T) {
	got, err := ParseTabID(" 3-abc-def ")
	if err != nil {
		t.Fatalf("ParseTabID() error = %v", err)
	}
	if got.WindowID != 3 || got.TargetID != "abc-def" {
		t.Fatalf("ParseTabID() = %+v", got)
	}
}

func TestParseTabIDRejectsMalformed(t *testing.T) {
	for _, in := range []string{"", "abc", "x-1", "-target", "5-"} {
		if _, err := ParseTabID(in); !errors.Is(err, ErrInvalidTabID) {
			t.Errorf("ParseTabID(%q) error = %v; want ErrInvalidTabID", in, err)
		}
	}
}
