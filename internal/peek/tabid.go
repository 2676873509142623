package peek

import (
	"fmt"
	"strconv"
	"strings"
)

// TabID identifies a browser tab by the window that holds it and its CDP
// target. It is the registry key for capture sessions.
type TabID struct {
	WindowID int64  `json:"window_id"`
	TargetID string `json:"target_id"`
}

// String renders the id as "<window>-<target>", the form used by control
// messages and API paths.
func (t TabID) String() string {
	return strconv.FormatInt(t.WindowID, 10) + "-" + t.TargetID
}

func (t TabID) IsZero() bool {
	return t.TargetID == ""
}

// ParseTabID parses the String form back into a TabID.
func ParseTabID(s string) (TabID, error) {
	s = strings.TrimSpace(s)
	win, target, ok := strings.Cut(s, "-")
	if !ok || win == "" || target == "" {
		return TabID{}, fmt.Errorf("%w: %q", ErrInvalidTabID, s)
	}
	windowID, err := strconv.ParseInt(win, 10, 64)
	if err != nil {
		return TabID{}, fmt.Errorf("%w: window %q: %v", ErrInvalidTabID, win, err)
	}
	return TabID{WindowID: windowID, TargetID: target}, nil
}
