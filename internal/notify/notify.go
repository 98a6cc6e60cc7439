// Package notify is the engine's notification surface: an explicit bus
// with bounded per-subscriber channels, plus publishers that forward
// notifications to external consumers.
package notify

import (
	"sync"
	"time"

	"github.com/sweeney/callwatch/internal/call"
)

// Kind identifies a notification.
type Kind string

const (
	CallReceived Kind = "call_received"
	CallAnswered Kind = "call_answered"
	CallEnded    Kind = "call_ended"
	Connection   Kind = "connection"
)

// Notification carries one engine event to subscribers. Call is a value
// copy and is zero for connection notifications; Message is set for
// connection notifications.
type Notification struct {
	Kind      Kind
	Call      call.Record
	Message   string
	Timestamp time.Time
}

// Bus fans notifications out to subscribers. Publishing never blocks:
// a subscriber that falls behind loses notifications, counted in
// Dropped.
type Bus struct {
	mu      sync.Mutex
	subs    []chan Notification
	buffer  int
	dropped uint64
	closed  bool
}

// NewBus creates a Bus whose subscriber channels hold up to buffer
// notifications.
func NewBus(buffer int) *Bus {
	if buffer < 1 {
		buffer = 1
	}
	return &Bus{buffer: buffer}
}

// Subscribe registers a new subscriber. The channel is closed when the
// bus is closed.
func (b *Bus) Subscribe() <-chan Notification {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Notification, b.buffer)
	if b.closed {
		close(ch)
		return ch
	}
	b.subs = append(b.subs, ch)
	return ch
}

// Publish delivers n to every subscriber without blocking.
func (b *Bus) Publish(n Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- n:
		default:
			b.dropped++
		}
	}
}

// Dropped returns how many notifications were discarded because a
// subscriber's buffer was full.
func (b *Bus) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Close closes every subscriber channel. Publish becomes a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}
