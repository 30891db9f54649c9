// Package progress implements the Progress Bus (§4.H): a process-local
// publish-subscribe primitive generalized from the teacher's
// single-active-client websocket Hub (internal/websocket/hub.go) into a
// true multi-subscriber bus. Delivery is best-effort, not durable.
package progress

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/freedomfinance/ticketfire/internal/logx"
)

var log = logx.Tag("progress")

const subscriberBuffer = 256

// Bus owns the subscriber map; all access goes through its methods, per
// spec.md §5's shared-resource note. Where the teacher's Hub guarded a
// single *Client field with a mutex, Bus guards a map of them the same
// way.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[uuid.UUID]chan []byte
}

func NewBus() *Bus {
	return &Bus{subscribers: make(map[uuid.UUID]chan []byte)}
}

// Subscribe registers a new subscriber and returns its stream id.
func (b *Bus) Subscribe() uuid.UUID {
	id := uuid.New()
	b.mu.Lock()
	b.subscribers[id] = make(chan []byte, subscriberBuffer)
	b.mu.Unlock()
	log.Printf("subscriber %s connected", id)
	return id
}

// Unsubscribe closes and drops a subscriber's buffer.
func (b *Bus) Unsubscribe(id uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subscribers[id]; ok {
		close(ch)
		delete(b.subscribers, id)
		log.Printf("subscriber %s disconnected", id)
	}
}

// Stream returns the raw channel of serialized event bytes for id. It
// yields until Unsubscribe(id) is called, at which point the channel is
// closed. Returns (nil, false) for an unknown id.
func (b *Bus) Stream(id uuid.UUID) (<-chan []byte, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ch, ok := b.subscribers[id]
	return ch, ok
}

// Broadcast enqueues event to every live subscriber. An enqueue failure
// (a full buffer — a slow subscriber) marks that subscriber dead and
// removes it; Broadcast itself never blocks or errors.
func (b *Bus) Broadcast(event Event) {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().Unix()
	}
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("failed to marshal event: %v", err)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subscribers {
		select {
		case ch <- data:
		default:
			log.Printf("subscriber %s is slow, dropping it", id)
			close(ch)
			delete(b.subscribers, id)
		}
	}
}

// Close shuts every subscriber channel down.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, id)
	}
}
