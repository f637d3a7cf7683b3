// Package registry tracks every producer the hub has seen and when it was
// last heard from.
package registry

import (
	"sort"
	"time"

	"github.com/h1v3-io/pulse/pkg/protocol"
)

// Default icons for producers that never sent one.
const (
	DefaultAgentIcon   = "🤖"
	DefaultServiceIcon = "⚙️"
)

// Counts summarizes producers of one class by status.
type Counts struct {
	Total   int `json:"total"`
	Active  int `json:"active,omitempty"`
	Idle    int `json:"idle,omitempty"`
	Online  int `json:"online,omitempty"`
	Offline int `json:"offline"`
}

// Registry maps producer id to its latest known state. It is owned by the
// hub loop and is not safe for concurrent use.
type Registry struct {
	producers map[string]*protocol.Producer
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{producers: make(map[string]*protocol.Producer)}
}

// Observe applies ev to its producer, creating the record on first sight.
// The producer becomes live, its last-seen time moves to ev.Timestamp and
// its activity is replaced when ev carries one. Name and icon are only
// overwritten when ev provides them.
func (r *Registry) Observe(ev protocol.Event) (p protocol.Producer, created bool) {
	cur, ok := r.producers[ev.ProducerID]
	if !ok {
		cur = &protocol.Producer{
			ID:     ev.ProducerID,
			Name:   ev.ProducerID,
			Icon:   defaultIcon(ev.Source),
			Source: ev.Source,
		}
		r.producers[ev.ProducerID] = cur
		created = true
	}
	if ev.ProducerName != "" {
		cur.Name = ev.ProducerName
	}
	if ev.Icon != "" {
		cur.Icon = ev.Icon
	}
	cur.Status = protocol.LiveStatus(cur.Source, ev.Status)
	cur.LastSeenAt = ev.Timestamp
	if ev.Activity != "" {
		activity := ev.Activity
		cur.CurrentActivity = &activity
	}
	return *cur, created
}

// MarkOffline demotes id. It reports false when the producer is unknown
// or already offline, so callers emit at most one status change per demotion.
func (r *Registry) MarkOffline(id string) (protocol.Producer, bool) {
	cur, ok := r.producers[id]
	if !ok || cur.Status == protocol.StatusOffline {
		return protocol.Producer{}, false
	}
	cur.Status = protocol.StatusOffline
	cur.CurrentActivity = nil
	return *cur, true
}

// Stale returns the ids of live producers not seen within threshold of now,
// sorted for deterministic demotion order.
func (r *Registry) Stale(now time.Time, threshold time.Duration) []string {
	var ids []string
	for id, p := range r.producers {
		if p.Live() && now.Sub(p.LastSeenAt) > threshold {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Get returns a copy of the producer with the given id.
func (r *Registry) Get(id string) (protocol.Producer, bool) {
	p, ok := r.producers[id]
	if !ok {
		return protocol.Producer{}, false
	}
	return *p, true
}

// List returns copies of all producers of the given source, sorted by id.
func (r *Registry) List(src protocol.Source) []protocol.Producer {
	out := []protocol.Producer{}
	for _, p := range r.producers {
		if p.Source == src {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Count tallies producers of the given source by status.
func (r *Registry) Count(src protocol.Source) Counts {
	var c Counts
	for _, p := range r.producers {
		if p.Source != src {
			continue
		}
		c.Total++
		switch p.Status {
		case protocol.StatusActive:
			c.Active++
		case protocol.StatusIdle:
			c.Idle++
		case protocol.StatusOnline:
			c.Online++
		case protocol.StatusOffline:
			c.Offline++
		}
	}
	return c
}

// Len returns the number of known producers.
func (r *Registry) Len() int { return len(r.producers) }

func defaultIcon(src protocol.Source) string {
	if src == protocol.SourceService {
		return DefaultServiceIcon
	}
	return DefaultAgentIcon
}
