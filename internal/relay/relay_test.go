package relay

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dgnsrekt/quickpeek/internal/peek"
)

var (
	origin = peek.TabID{WindowID: 2, TargetID: "origin"}
	hidden = peek.TabID{WindowID: 2, TargetID: "hidden"}
)

func TestBrokerDropsForSlowSubscribers(t *testing.T) {
	b := NewBroker(1)
	id, ch := b.Subscribe()
	defer b.Unsubscribe(id)

	if dropped := b.Publish(Event{Type: TypeOpen}); dropped != 0 {
		t.Fatalf("first publish dropped = %d", dropped)
	}
	if dropped := b.Publish(Event{Type: TypeClear}); dropped != 1 {
		t.Fatalf("second publish dropped = %d; want 1", dropped)
	}
	if evt := <-ch; evt.Type != TypeOpen {
		t.Fatalf("received %q; want open", evt.Type)
	}
}

func TestBrokerCloseEndsSubscriptions(t *testing.T) {
	b := NewBroker(0)
	_, ch := b.Subscribe()
	b.Close()
	if _, ok := <-ch; ok {
		t.Fatal("channel still open after Close")
	}
	if b.ClientCount() != 0 {
		t.Fatalf("ClientCount() = %d", b.ClientCount())
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "default", cfg: DefaultConfig()},
		{name: "known types", cfg: Config{Types: []string{"frame", "title"}}},
		{name: "unknown type", cfg: Config{Types: []string{"frames"}}, wantErr: true},
		{name: "negative buffer", cfg: Config{BufferSize: -1}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func collect(t *testing.T, ch <-chan Event, n int) []Message {
	t.Helper()
	var out []Message
	for len(out) < n {
		select {
		case evt := <-ch:
			var msg Message
			if err := json.Unmarshal(evt.Payload, &msg); err != nil {
				t.Fatalf("payload %s: %v", evt.Payload, err)
			}
			if msg.Type != evt.Type || msg.Tab != evt.Tab {
				t.Fatalf("event header %q/%q does not match payload %+v", evt.Type, evt.Tab, msg)
			}
			out = append(out, msg)
		case <-time.After(time.Second):
			t.Fatalf("got %d events; want %d", len(out), n)
		}
	}
	return out
}

func TestPublisherMirrorsOverlayCalls(t *testing.T) {
	b := NewBroker(0)
	_, ch := b.Subscribe()
	ov := NewPublisher(b, DefaultConfig()).Factory()(origin)
	ctx := context.Background()

	_ = ov.Open(ctx, hidden)
	_ = ov.Clear(ctx)
	_ = ov.SetTitle(ctx, "https://a.example/")
	_ = ov.AppendImage(ctx, peek.Screenshot{Data: []byte("png"), Format: "png", Generation: 4, Index: 1})
	_ = ov.Close(ctx)

	msgs := collect(t, ch, 5)
	var types []string
	for _, m := range msgs {
		types = append(types, m.Type)
		if m.Origin != "2-origin" || m.Tab != "2-hidden" {
			t.Errorf("%s event origin/tab = %q/%q", m.Type, m.Origin, m.Tab)
		}
	}
	if got := strings.Join(types, ","); got != "open,clear,title,frame,close" {
		t.Fatalf("types = %s", got)
	}
	frame := msgs[3]
	if frame.Generation != 4 || frame.Index != 1 || frame.Bytes != 3 {
		t.Fatalf("frame = %+v", frame)
	}
	if !strings.HasPrefix(frame.Image, "data:image/png;base64,") {
		t.Fatalf("frame image = %q", frame.Image)
	}
	if msgs[2].Title != "https://a.example/" {
		t.Fatalf("title = %q", msgs[2].Title)
	}
}

func TestPublisherHonorsConfig(t *testing.T) {
	b := NewBroker(0)
	_, ch := b.Subscribe()
	ov := NewPublisher(b, Config{Types: []string{TypeFrame}}).Factory()(origin)
	ctx := context.Background()

	_ = ov.Open(ctx, hidden)
	_ = ov.SetTitle(ctx, "ignored")
	_ = ov.AppendImage(ctx, peek.Screenshot{Data: []byte("x")})

	msgs := collect(t, ch, 1)
	if msgs[0].Type != TypeFrame || msgs[0].Image != "" {
		t.Fatalf("msg = %+v; want frame without image", msgs[0])
	}
	select {
	case evt := <-ch:
		t.Fatalf("unexpected extra event %q", evt.Type)
	default:
	}
}

func TestSSEHandlerFilters(t *testing.T) {
	b := NewBroker(0)
	srv := httptest.NewServer(SSEHandler(b))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"?types=title&tab=2-hidden", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	deadline := time.Now().Add(time.Second)
	for b.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	b.Publish(Event{Type: TypeTitle, Tab: "2-other", Payload: []byte(`{"n":1}`)})
	b.Publish(Event{Type: TypeFrame, Tab: "2-hidden", Payload: []byte(`{"n":2}`)})
	b.Publish(Event{Type: TypeTitle, Tab: "2-hidden", Payload: []byte(`{"n":3}`)})

	sc := bufio.NewScanner(resp.Body)
	var lines []string
	for sc.Scan() {
		if line := sc.Text(); line != "" {
			lines = append(lines, line)
		}
		if len(lines) == 2 {
			break
		}
	}
	if got := strings.Join(lines, "|"); got != `event: title|data: {"n":3}` {
		t.Fatalf("stream = %q", got)
	}
}
