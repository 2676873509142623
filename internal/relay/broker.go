package relay

import (
	"sync"

	"github.com/google/uuid"
)

const defaultBufferSize = 256

// Event is one overlay update as seen by stream clients. Payload is the JSON
// document sent on the wire.
type Event struct {
	Type    string
	Tab     string
	Payload []byte
}

// Broker fans out events to all subscribed stream clients.
type Broker struct {
	bufSize int

	mu          sync.RWMutex
	subscribers map[string]chan Event
}

// NewBroker creates a broker whose subscriber channels hold bufSize events.
func NewBroker(bufSize int) *Broker {
	if bufSize <= 0 {
		bufSize = defaultBufferSize
	}
	return &Broker{
		bufSize:     bufSize,
		subscribers: make(map[string]chan Event),
	}
}

// Subscribe registers a new client. Returns the subscriber ID and a channel
// to receive events on. The channel is buffered; slow consumers will have
// events dropped.
func (b *Broker) Subscribe() (string, <-chan Event) {
	id := uuid.NewString()
	ch := make(chan Event, b.bufSize)
	b.mu.Lock()
	b.subscribers[id] = ch
	b.mu.Unlock()
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broker) Unsubscribe(id string) {
	b.mu.Lock()
	ch, ok := b.subscribers[id]
	if ok {
		delete(b.subscribers, id)
		close(ch)
	}
	b.mu.Unlock()
}

// Publish sends an event to all subscribers and reports how many were
// skipped because their buffer was full.
func (b *Broker) Publish(evt Event) (dropped int) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- evt:
		default:
			dropped++
		}
	}
	return dropped
}

// Close unsubscribes every client, which ends their streams.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subscribers {
		delete(b.subscribers, id)
		close(ch)
	}
}

// ClientCount returns the number of active subscribers.
func (b *Broker) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
