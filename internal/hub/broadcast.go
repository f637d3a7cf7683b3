package hub

import (
	"context"

	"github.com/h1v3-io/pulse/pkg/protocol"
)

// Conn is the write side of a subscriber transport. WriteJSON is expected
// to apply its own write deadline.
type Conn interface {
	WriteJSON(v any) error
	Close() error
}

// subscriber pairs a connection with the outbox its writer goroutine drains.
// The outbox is the only queue between the loop and the transport.
type subscriber struct {
	id      uint64
	conn    Conn
	outbox  chan protocol.ServerMessage
	dropped int
}

// Subscribe registers conn and queues its snapshot in the same loop step,
// so every event is either in the snapshot or in a later delta. The
// returned id is passed to Unsubscribe when the connection goes away.
func (h *Hub) Subscribe(ctx context.Context, conn Conn) (uint64, error) {
	var id uint64
	err := h.do(ctx, func() {
		h.nextSub++
		id = h.nextSub
		sub := &subscriber{
			id:     id,
			conn:   conn,
			outbox: make(chan protocol.ServerMessage, h.cfg.OutboxSize),
		}
		sub.outbox <- h.snapshot()
		h.subs[id] = sub
		go h.writeLoop(sub)
		h.logger.Info("subscriber connected", "subscriber", id, "subscribers", len(h.subs))
	})
	return id, err
}

// Unsubscribe removes a subscriber and closes its connection. Unknown ids
// are ignored.
func (h *Hub) Unsubscribe(ctx context.Context, id uint64) error {
	return h.do(ctx, func() {
		h.removeSubscriber(id)
	})
}

func (h *Hub) removeSubscriber(id uint64) {
	sub, ok := h.subs[id]
	if !ok {
		return
	}
	delete(h.subs, id)
	close(sub.outbox)
	h.logger.Info("subscriber disconnected", "subscriber", id, "dropped", sub.dropped, "subscribers", len(h.subs))
}

// broadcast offers msg to every subscriber without blocking. A full outbox
// loses the message for that subscriber only. Low-priority messages are
// also skipped once an outbox is more than half full so they never crowd out
// events.
func (h *Hub) broadcast(msg protocol.ServerMessage, lowPriority bool) {
	for _, sub := range h.subs {
		if lowPriority && len(sub.outbox) > cap(sub.outbox)/2 {
			continue
		}
		select {
		case sub.outbox <- msg:
		default:
			sub.dropped++
			h.logger.Debug("subscriber outbox full, message dropped", "subscriber", sub.id, "type", msg.Type)
		}
	}
}

// writeLoop drains a subscriber's outbox onto its connection. The first
// write error prunes the subscriber; nothing is retried.
func (h *Hub) writeLoop(sub *subscriber) {
	defer sub.conn.Close()
	for msg := range sub.outbox {
		if err := sub.conn.WriteJSON(msg); err != nil {
			h.logger.Warn("subscriber write failed, pruning", "subscriber", sub.id, "error", err)
			h.submit(func() { h.removeSubscriber(sub.id) })
			return
		}
	}
}

// Subscribers returns the number of open subscriber connections.
func (h *Hub) Subscribers(ctx context.Context) (int, error) {
	var n int
	err := h.do(ctx, func() { n = len(h.subs) })
	return n, err
}
