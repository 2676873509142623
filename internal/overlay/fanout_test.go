package overlay

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/dgnsrekt/quickpeek/internal/peek"
)

type recorder struct {
	name string
	log  *[]string
	err  error
}

func (r recorder) record(op string) error {
	*r.log = append(*r.log, r.name+":"+op)
	return r.err
}

func (r recorder) Open(context.Context, peek.TabID) error           { return r.record("open") }
func (r recorder) Clear(context.Context) error                      { return r.record("clear") }
func (r recorder) SetTitle(context.Context, string) error           { return r.record("title") }
func (r recorder) AppendImage(context.Context, peek.Screenshot) error { return r.record("append") }
func (r recorder) Close(context.Context) error                      { return r.record("close") }

func TestFanoutOrderAndErrors(t *testing.T) {
	var log []string
	boom := errors.New("boom")
	f := NewFanout(recorder{name: "page", log: &log}, recorder{name: "relay", log: &log, err: boom}, recorder{name: "archive", log: &log})
	ctx := context.Background()

	if err := f.Open(ctx, hidden); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := f.AppendImage(ctx, peek.Screenshot{}); err != nil {
		t.Fatalf("AppendImage() error = %v; secondary errors must be swallowed", err)
	}
	want := []string{"page:open", "relay:open", "archive:open", "page:append", "relay:append", "archive:append"}
	if !reflect.DeepEqual(log, want) {
		t.Fatalf("calls = %v; want %v", log, want)
	}
}

func TestFanoutPrimaryOpenFailureSkipsSecondaries(t *testing.T) {
	var log []string
	boom := errors.New("boom")
	f := NewFanout(recorder{name: "page", log: &log, err: boom}, recorder{name: "relay", log: &log})
	if err := f.Open(context.Background(), hidden); !errors.Is(err, boom) {
		t.Fatalf("Open() error = %v; want %v", err, boom)
	}
	if len(log) != 1 {
		t.Fatalf("calls = %v; secondaries must not open", log)
	}
}

func TestFanoutCloseReachesEveryOverlay(t *testing.T) {
	var log []string
	boom := errors.New("boom")
	f := NewFanout(recorder{name: "page", log: &log, err: boom}, recorder{name: "relay", log: &log})
	if err := f.Close(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("Close() error = %v", err)
	}
	if !reflect.DeepEqual(log, []string{"page:close", "relay:close"}) {
		t.Fatalf("calls = %v", log)
	}
}

func TestComposeWithoutSecondaries(t *testing.T) {
	var log []string
	primary := func(peek.TabID) peek.Overlay { return recorder{name: "page", log: &log} }
	if _, ok := Compose(primary)(origin).(recorder); !ok {
		t.Fatal("Compose with no secondaries should return the primary overlay")
	}
	if _, ok := Compose(primary, primary)(origin).(*Fanout); !ok {
		t.Fatal("Compose with secondaries should return a Fanout")
	}
}
