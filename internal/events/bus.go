// Package events fans out pipeline notifications to live subscribers.
// Delivery is best-effort per subscriber: nothing here is persisted, and a
// slow or disconnected subscriber never blocks publishers. Clients that miss
// events fall back to the status and query endpoints.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type classifies an event on the bus.
type Type string

const (
	TypeSegmentReady     Type = "segment_ready"
	TypeSpeakerDetected  Type = "speaker_detected"
	TypeSessionStopped   Type = "session_stopped"
	TypeSummaryReady     Type = "summary_ready"
	TypeError            Type = "error"
	TypeBackpressureDrop Type = "backpressure_drop"
)

// Event is one notification delivered to subscribers.
type Event struct {
	Seq       int64          `json:"seq"`
	Type      Type           `json:"type"`
	SessionID string         `json:"session_id"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Subscriber is one live event consumer. Events arrive on C in publish
// order; when the subscriber falls behind its buffer, the oldest buffered
// events are dropped.
type Subscriber struct {
	ID string
	C  chan Event
}

// Bus is a single-writer, multi-reader fan-out with bounded per-subscriber
// buffers. Publish never blocks.
type Bus struct {
	mu         sync.Mutex
	nextSeq    int64
	bufferSize int
	subs       map[string]*Subscriber
}

// NewBus creates a bus whose subscribers each buffer up to bufferSize events.
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Bus{
		bufferSize: bufferSize,
		subs:       make(map[string]*Subscriber),
	}
}

// Subscribe registers a new subscriber. The caller must Unsubscribe when done.
func (b *Bus) Subscribe() *Subscriber {
	sub := &Subscriber{
		ID: uuid.NewString(),
		C:  make(chan Event, b.bufferSize),
	}

	b.mu.Lock()
	b.subs[sub.ID] = sub
	b.mu.Unlock()

	return sub
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(sub *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[sub.ID]; !ok {
		return
	}
	delete(b.subs, sub.ID)
	close(sub.C)
}

// Publish delivers an event to every subscriber, assigning sequence and
// timestamp. A full subscriber buffer sheds its oldest event first.
func (b *Bus) Publish(event Event) Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSeq++
	event.Seq = b.nextSeq
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	for _, sub := range b.subs {
		for {
			select {
			case sub.C <- event:
			default:
				// Buffer full: drop the oldest buffered event and retry.
				select {
				case <-sub.C:
				default:
				}
				continue
			}
			break
		}
	}

	return event
}

// SubscriberCount reports the number of live subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
