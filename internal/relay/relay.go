package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgnsrekt/quickpeek/internal/peek"
)

// Message is the JSON document published for each overlay call.
type Message struct {
	Type       string    `json:"type"`
	Tab        string    `json:"tab,omitempty"`
	Origin     string    `json:"origin"`
	Title      string    `json:"title,omitempty"`
	Generation uint64    `json:"generation,omitempty"`
	Index      int       `json:"index,omitempty"`
	Format     string    `json:"format,omitempty"`
	Image      string    `json:"image,omitempty"`
	Bytes      int       `json:"bytes,omitempty"`
	At         time.Time `json:"at"`
}

// Publisher turns overlay calls into broker events so remote viewers can
// follow a preview as it renders.
type Publisher struct {
	broker *Broker
	cfg    Config
	now    func() time.Time
}

func NewPublisher(broker *Broker, cfg Config) *Publisher {
	return &Publisher{broker: broker, cfg: cfg, now: time.Now}
}

// Factory builds one relay overlay per origin tab.
func (p *Publisher) Factory() peek.OverlayFactory {
	return func(origin peek.TabID) peek.Overlay {
		return &overlay{pub: p, origin: origin.String()}
	}
}

func (p *Publisher) publish(msg Message) error {
	if !p.cfg.allows(msg.Type) {
		return nil
	}
	msg.At = p.now().UTC()
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("relay %s: %w", msg.Type, err)
	}
	if dropped := p.broker.Publish(Event{Type: msg.Type, Tab: msg.Tab, Payload: payload}); dropped > 0 {
		slog.Debug("relay: slow subscribers dropped event", "type", msg.Type, "tab", msg.Tab, "dropped", dropped)
	}
	return nil
}

type overlay struct {
	pub    *Publisher
	origin string

	mu  sync.Mutex
	tab string
}

func (o *overlay) message(typ string) Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return Message{Type: typ, Tab: o.tab, Origin: o.origin}
}

func (o *overlay) Open(_ context.Context, hidden peek.TabID) error {
	o.mu.Lock()
	o.tab = hidden.String()
	o.mu.Unlock()
	msg := o.message(TypeOpen)
	msg.Title = "Loading.."
	return o.pub.publish(msg)
}

func (o *overlay) Clear(context.Context) error {
	return o.pub.publish(o.message(TypeClear))
}

func (o *overlay) SetTitle(_ context.Context, title string) error {
	msg := o.message(TypeTitle)
	msg.Title = title
	return o.pub.publish(msg)
}

func (o *overlay) AppendImage(_ context.Context, shot peek.Screenshot) error {
	msg := o.message(TypeFrame)
	msg.Generation = shot.Generation
	msg.Index = shot.Index
	msg.Format = shot.Format
	msg.Bytes = len(shot.Data)
	if o.pub.cfg.IncludeImages {
		msg.Image = shot.DataURL()
	}
	return o.pub.publish(msg)
}

func (o *overlay) Close(context.Context) error {
	return o.pub.publish(o.message(TypeClose))
}
