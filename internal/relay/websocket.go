package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

const (
	pingInterval    = 30 * time.Second
	maxControlBytes = 4 << 10
)

// ControlSink accepts control messages sent by stream clients.
// peek.Control satisfies it.
type ControlSink interface {
	HandleMessage(ctx context.Context, raw []byte) error
}

type reply struct {
	Type       string `json:"type"`
	Subscriber string `json:"subscriber,omitempty"`
	Error      string `json:"error,omitempty"`
}

// WebSocketHandler streams overlay events over a WebSocket and applies
// control messages the client sends back. sink may be nil for read-only
// streams.
func WebSocketHandler(broker *Broker, sink ControlSink) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f := parseFilter(r)
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			slog.Debug("relay: websocket upgrade failed", "error", err)
			return
		}
		s := &wsStream{conn: conn, sink: sink}
		s.serve(r.Context(), broker, f)
	}
}

type wsStream struct {
	conn net.Conn
	sink ControlSink

	wmu sync.Mutex
}

func (s *wsStream) serve(parent context.Context, broker *Broker, f filter) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	id, ch := broker.Subscribe()
	defer broker.Unsubscribe(id)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		s.readLoop(ctx)
	}()
	defer wg.Wait()
	// Closing the conn is what unblocks the reader.
	defer s.conn.Close()

	if err := s.sendJSON(reply{Type: "hello", Subscriber: id}); err != nil {
		return
	}

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				s.writeFrame(ws.OpClose, ws.NewCloseFrameBody(ws.StatusGoingAway, "relay closed"))
				return
			}
			if !f.match(evt) {
				continue
			}
			if err := s.writeFrame(ws.OpText, evt.Payload); err != nil {
				return
			}
		case <-ticker.C:
			if err := s.writeFrame(ws.OpPing, nil); err != nil {
				return
			}
		}
	}
}

func (s *wsStream) readLoop(ctx context.Context) {
	control := wsutil.ControlFrameHandler(s.conn, ws.StateServerSide)
	locked := func(h ws.Header, r io.Reader) error {
		s.wmu.Lock()
		defer s.wmu.Unlock()
		return control(h, r)
	}
	rd := &wsutil.Reader{
		Source:         s.conn,
		State:          ws.StateServerSide,
		CheckUTF8:      true,
		OnIntermediate: locked,
	}
	for {
		hdr, err := rd.NextFrame()
		if err != nil {
			return
		}
		if hdr.OpCode.IsControl() {
			if err := locked(hdr, rd); err != nil {
				return
			}
			continue
		}
		if hdr.OpCode&ws.OpText == 0 {
			if err := rd.Discard(); err != nil {
				return
			}
			continue
		}
		data, err := io.ReadAll(io.LimitReader(rd, maxControlBytes+1))
		if err != nil {
			return
		}
		if len(data) > maxControlBytes {
			_ = s.sendJSON(reply{Type: "error", Error: "control message too large"})
			if err := rd.Discard(); err != nil {
				return
			}
			continue
		}
		s.handle(ctx, data)
	}
}

func (s *wsStream) handle(ctx context.Context, data []byte) {
	if s.sink == nil {
		_ = s.sendJSON(reply{Type: "error", Error: "stream is read-only"})
		return
	}
	if err := s.sink.HandleMessage(ctx, data); err != nil {
		slog.Debug("relay: control message rejected", "error", err)
		_ = s.sendJSON(reply{Type: "error", Error: err.Error()})
		return
	}
	_ = s.sendJSON(reply{Type: "ack"})
}

func (s *wsStream) sendJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.writeFrame(ws.OpText, b)
}

func (s *wsStream) writeFrame(op ws.OpCode, payload []byte) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	err := wsutil.WriteServerMessage(s.conn, op, payload)
	if err != nil && !errors.Is(err, net.ErrClosed) {
		slog.Debug("relay: websocket write failed", "error", err)
	}
	return err
}
