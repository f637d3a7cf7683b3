// Package history holds the hub's bounded log of recent events, replayed
// to every new subscriber as part of its snapshot.
package history

import (
	"github.com/h1v3-io/pulse/internal/ring"
	"github.com/h1v3-io/pulse/pkg/protocol"
)

// DefaultCapacity is the number of events kept for replay.
const DefaultCapacity = 500

// Buffer is a strict FIFO of non-heartbeat events. It is owned by the hub
// loop and is not safe for concurrent use.
type Buffer struct {
	ring *ring.Ring[protocol.Event]
}

// New creates a buffer with the given capacity (DefaultCapacity if <= 0).
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{ring: ring.New[protocol.Event](capacity)}
}

// Append stores ev and reports whether it was kept. Heartbeats are never
// stored. Appending to a full buffer evicts the oldest event.
func (b *Buffer) Append(ev protocol.Event) bool {
	if ev.IsHeartbeat() {
		return false
	}
	b.ring.Push(ev)
	return true
}

// Len returns the number of buffered events.
func (b *Buffer) Len() int { return b.ring.Len() }

// Cap returns the buffer capacity.
func (b *Buffer) Cap() int { return b.ring.Cap() }

// All returns a copy of every buffered event in arrival order.
func (b *Buffer) All() []protocol.Event { return b.ring.Slice() }

// Recent returns a copy of the newest n events in arrival order.
func (b *Buffer) Recent(n int) []protocol.Event { return b.ring.Tail(n) }
