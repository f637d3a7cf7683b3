// Package projector turns the hub's snapshot and delta stream into the
// derived views a dashboard shows. It is the client-side counterpart of the
// hub: it owns a bounded copy of the event log and recomputes every view
// from scratch after each update.
package projector

import (
	"github.com/h1v3-io/pulse/pkg/protocol"
)

// DefaultLogCapacity bounds the client-side log. It matches the hub's
// history capacity so a fresh snapshot and a long-lived client agree.
const DefaultLogCapacity = 500

// Projector is not safe for concurrent use; a single session goroutine
// feeds it.
type Projector struct {
	capacity int
	base     map[string]protocol.Producer
	log      []protocol.Event
	views    Views
	synced   bool
}

func New(capacity int) *Projector {
	if capacity <= 0 {
		capacity = DefaultLogCapacity
	}
	p := &Projector{capacity: capacity}
	p.Clear()
	return p
}

// Clear discards all local state. Called when a session drops so stale data
// is never merged with the next snapshot.
func (p *Projector) Clear() {
	p.base = make(map[string]protocol.Producer)
	p.log = nil
	p.synced = false
	p.recompute()
}

// Synced reports whether a snapshot has been applied since the last Clear.
func (p *Projector) Synced() bool { return p.synced }

// Reset replaces local state with a snapshot.
func (p *Projector) Reset(snap protocol.ServerMessage) {
	p.base = make(map[string]protocol.Producer, len(snap.Agents)+len(snap.Services))
	for _, a := range snap.Agents {
		p.base[a.ID] = a
	}
	for _, s := range snap.Services {
		p.base[s.ID] = s
	}
	p.log = append([]protocol.Event(nil), snap.RecentEvents...)
	p.trim()
	p.synced = true
	p.recompute()
}

// Apply folds one server frame into local state and reports whether the
// views were recomputed. Deltas that arrive before any snapshot are ignored.
func (p *Projector) Apply(msg protocol.ServerMessage) bool {
	if msg.Type == protocol.MessageInitialState {
		p.Reset(msg)
		return true
	}
	if !p.synced {
		return false
	}

	switch msg.Type {
	case protocol.MessageAgentEvent, protocol.MessageServiceEvent:
		if msg.Event == nil {
			return false
		}
		if msg.Event.IsHeartbeat() {
			if msg.Producer == nil {
				return false
			}
			p.base[msg.Producer.ID] = *msg.Producer
		} else {
			p.append(*msg.Event)
		}
	case protocol.MessageStatusChange:
		if msg.Event != nil {
			p.append(*msg.Event)
			break
		}
		// Frame without the synthetic event: apply the status to the base.
		cur, ok := p.base[msg.ProducerID]
		if !ok {
			return false
		}
		cur.Status = msg.Status
		cur.CurrentActivity = nil
		p.base[msg.ProducerID] = cur
	default:
		return false
	}
	p.recompute()
	return true
}

// Views returns the most recently computed views.
func (p *Projector) Views() Views { return p.views }

// Log returns a copy of the local event log, oldest first.
func (p *Projector) Log() []protocol.Event {
	return append([]protocol.Event(nil), p.log...)
}

func (p *Projector) append(ev protocol.Event) {
	p.log = append(p.log, ev)
	p.trim()
}

func (p *Projector) trim() {
	if over := len(p.log) - p.capacity; over > 0 {
		p.log = append(p.log[:0:0], p.log[over:]...)
	}
}

func (p *Projector) recompute() {
	base := make([]protocol.Producer, 0, len(p.base))
	for _, b := range p.base {
		base = append(base, b)
	}
	p.views = Project(base, p.log)
}
