package cdpcontrol

import (
	"errors"
	"strings"
	"testing"
)

func TestJSString(t *testing.T) {
	if got := jsString("hello\nworld"); got != "\"hello\\nworld\"" {
		t.Fatalf("jsString = %q, want %q", got, "\"hello\\nworld\"")
	}
}

func TestWrapValue(t *testing.T) {
	expr := wrapValue("return {remaining: 1};")
	if !strings.HasPrefix(expr, "(function(){\ntry {") {
		t.Fatalf("unexpected wrapper: %s", expr)
	}
	if !strings.Contains(expr, "return {remaining: 1};") {
		t.Fatalf("wrapper lost body: %s", expr)
	}
	if !strings.Contains(expr, "JSON.stringify({ok:true,data:") {
		t.Fatalf("wrapper does not report through the envelope: %s", expr)
	}
}

func TestStyleScriptQuotesCSS(t *testing.T) {
	css := `body.x { content: "a\"b"; }`
	script := styleScript(css)
	if !strings.Contains(script, jsString(css)) {
		t.Fatalf("style script does not embed quoted css: %s", script)
	}
	if !strings.Contains(script, `"`+styleElementID+`"`) {
		t.Fatalf("style script does not reuse %s: %s", styleElementID, script)
	}
}

func TestDecodeEnvelope(t *testing.T) {
	var out struct {
		Remaining int `json:"remaining"`
	}
	if err := decodeEnvelope(`{"ok":true,"data":{"remaining":42}}`, &out); err != nil {
		t.Fatalf("decodeEnvelope() error = %v", err)
	}
	if out.Remaining != 42 {
		t.Fatalf("Remaining = %d; want 42", out.Remaining)
	}
	if err := decodeEnvelope(`{"ok":true,"data":null}`, nil); err != nil {
		t.Fatalf("decodeEnvelope(nil out) error = %v", err)
	}

	err := decodeEnvelope(`{"ok":false,"error_message":"boom"}`, nil)
	var codedErr *CodedError
	if !errors.As(err, &codedErr) || codedErr.Code != CodeEvalFailure || codedErr.Message != "boom" {
		t.Fatalf("decodeEnvelope(failure) = %v", err)
	}

	err = decodeEnvelope(`not json`, nil)
	if !errors.As(err, &codedErr) || codedErr.Message != "invalid evaluation envelope" {
		t.Fatalf("decodeEnvelope(garbage) = %v", err)
	}
}
