// Package hub owns the live producer registry, the replay history and the
// subscriber set. All of that state lives on a single goroutine (Run); the
// exported methods submit closures to it and wait for them to finish, so a
// multi-step transition such as upsert → append → broadcast never
// interleaves with another one.
//
// Ordering between concurrent Ingest calls for the same producer is
// whatever order the loop receives them in. There is no logical clock:
// the last applied event wins.
package hub

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/h1v3-io/pulse/internal/history"
	"github.com/h1v3-io/pulse/internal/registry"
	"github.com/h1v3-io/pulse/pkg/protocol"
)

// ErrStopped is returned by calls made after Run has exited.
var ErrStopped = errors.New("hub: stopped")

// Defaults for zero Config fields.
const (
	DefaultStaleThreshold = 90 * time.Second
	DefaultOutboxSize     = 64
	DefaultSinkQueue      = 256
)

// Config tunes the hub. Zero values fall back to the package defaults.
type Config struct {
	HistoryCapacity int
	StaleThreshold  time.Duration
	OutboxSize      int
	SinkQueue       int
	Now             func() time.Time
}

// Health is the GET /health payload.
type Health struct {
	Status               string                     `json:"status"`
	ConnectedSubscribers int                        `json:"connectedSubscribers"`
	ProducerCounts       map[string]registry.Counts `json:"producerCounts"`
	HistoryLength        int                        `json:"historyLength"`
	Uptime               float64                    `json:"uptime"`
}

// Hub is the event distribution core.
type Hub struct {
	cfg    Config
	logger *slog.Logger

	ops  chan func()
	done chan struct{}

	// Loop-owned state.
	registry *registry.Registry
	history  *history.Buffer
	subs     map[uint64]*subscriber
	nextSub  uint64
	sinks    *dispatcher
	started  time.Time
}

// New creates a hub. Call Run to start processing.
func New(cfg Config, logger *slog.Logger, sinks ...Sink) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.StaleThreshold <= 0 {
		cfg.StaleThreshold = DefaultStaleThreshold
	}
	if cfg.OutboxSize <= 0 {
		cfg.OutboxSize = DefaultOutboxSize
	}
	if cfg.SinkQueue <= 0 {
		cfg.SinkQueue = DefaultSinkQueue
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Hub{
		cfg:      cfg,
		logger:   logger,
		ops:      make(chan func()),
		done:     make(chan struct{}),
		registry: registry.New(),
		history:  history.New(cfg.HistoryCapacity),
		subs:     make(map[uint64]*subscriber),
		sinks:    newDispatcher(sinks, cfg.SinkQueue, logger.With("component", "sinks")),
		started:  cfg.Now(),
	}
}

// Run processes operations until ctx is cancelled, then closes every
// subscriber connection.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	go h.sinks.run(ctx)

	h.logger.Info("hub started", "history_cap", h.history.Cap(), "stale_threshold", h.cfg.StaleThreshold)
	for {
		select {
		case op := <-h.ops:
			op()
		case <-ctx.Done():
			for id := range h.subs {
				h.removeSubscriber(id)
			}
			h.logger.Info("hub stopped")
			return ctx.Err()
		}
	}
}

// do runs fn on the hub loop and waits for it to finish.
func (h *Hub) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	op := func() {
		defer close(finished)
		fn()
	}
	select {
	case h.ops <- op:
	case <-h.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	<-finished
	return nil
}

// submit queues fn without waiting for it. Used from subscriber writer
// goroutines, which must not block on the loop after it has stopped.
func (h *Hub) submit(fn func()) {
	select {
	case h.ops <- fn:
	case <-h.done:
	}
}

// Ingest validates ev and applies it. ev.Source must be agent or service;
// the hub assigns the event id and timestamp. A ValidationError leaves all
// state untouched.
func (h *Hub) Ingest(ctx context.Context, ev protocol.Event) error {
	ev.ProducerID = strings.TrimSpace(ev.ProducerID)
	ev.Type = strings.TrimSpace(ev.Type)
	if ev.ProducerID == "" {
		return &ValidationError{Field: "producerId"}
	}
	if ev.Type == "" {
		return &ValidationError{Field: "type"}
	}
	if ev.Source != protocol.SourceAgent && ev.Source != protocol.SourceService {
		return &ValidationError{Field: "source"}
	}
	ev.ID = uuid.NewString()

	return h.do(ctx, func() {
		ev.Timestamp = h.cfg.Now()
		p, created := h.registry.Observe(ev)
		if created {
			h.logger.Info("producer registered", "producer", p.ID, "source", p.Source)
		}
		ev.ProducerName, ev.Icon, ev.Status = p.Name, p.Icon, p.Status

		if ev.IsHeartbeat() {
			h.broadcast(protocol.NewDelta(p, ev), true)
			return
		}
		h.publish(p, ev)
		h.logger.Debug("event ingested", "producer", p.ID, "type", ev.Type)
	})
}

// Sweep demotes every live producer not heard from within the stale
// threshold, emitting one status_change event per demotion. It returns the
// demoted ids.
func (h *Hub) Sweep(ctx context.Context) ([]string, error) {
	var demoted []string
	err := h.do(ctx, func() {
		now := h.cfg.Now()
		for _, id := range h.registry.Stale(now, h.cfg.StaleThreshold) {
			if h.demote(id, protocol.TypeStatusChange, "no events for "+h.cfg.StaleThreshold.String(), false) {
				demoted = append(demoted, id)
			}
		}
	})
	if len(demoted) > 0 {
		h.logger.Info("stale producers demoted", "producers", demoted)
	}
	return demoted, err
}

// Shutdown marks a producer offline right away and emits a shutdown event.
// Unknown producers are ignored.
func (h *Hub) Shutdown(ctx context.Context, producerID, name string) error {
	producerID = strings.TrimSpace(producerID)
	if producerID == "" {
		return &ValidationError{Field: "producerId"}
	}
	return h.do(ctx, func() {
		if _, ok := h.registry.Get(producerID); !ok {
			h.logger.Warn("shutdown for unknown producer", "producer", producerID)
			return
		}
		if name == "" {
			name = producerID
		}
		h.demote(producerID, protocol.TypeShutdown, name+" shut down", true)
		h.logger.Info("producer shut down", "producer", producerID)
	})
}

// demote moves id offline and publishes a synthetic event of type typ.
// Unless force is set, nothing is emitted when the producer was already offline.
func (h *Hub) demote(id, typ, msg string, force bool) bool {
	p, changed := h.registry.MarkOffline(id)
	if !changed {
		if !force {
			return false
		}
		p, _ = h.registry.Get(id)
	}
	ev := protocol.Event{
		ID:           uuid.NewString(),
		Source:       protocol.SourceSystem,
		Type:         typ,
		Timestamp:    h.cfg.Now(),
		ProducerID:   id,
		ProducerName: p.Name,
		Icon:         p.Icon,
		Status:       protocol.StatusOffline,
		Message:      msg,
	}
	h.publish(p, ev)
	return true
}

// publish appends ev to history, fans it out and hands it to the sinks.
func (h *Hub) publish(p protocol.Producer, ev protocol.Event) {
	h.history.Append(ev)
	h.broadcast(protocol.NewDelta(p, ev), false)
	h.sinks.enqueue(ev)
}

// Producers returns the current registry split by class.
func (h *Hub) Producers(ctx context.Context) (agents, services []protocol.Producer, err error) {
	err = h.do(ctx, func() {
		agents = h.registry.List(protocol.SourceAgent)
		services = h.registry.List(protocol.SourceService)
	})
	return agents, services, err
}

// Events returns the newest limit buffered events, oldest first.
func (h *Hub) Events(ctx context.Context, limit int) ([]protocol.Event, error) {
	var out []protocol.Event
	err := h.do(ctx, func() {
		out = h.history.Recent(limit)
	})
	return out, err
}

// Snapshot returns the initial_state frame a new subscriber would receive.
func (h *Hub) Snapshot(ctx context.Context) (protocol.ServerMessage, error) {
	var msg protocol.ServerMessage
	err := h.do(ctx, func() {
		msg = h.snapshot()
	})
	return msg, err
}

func (h *Hub) snapshot() protocol.ServerMessage {
	return protocol.NewSnapshot(
		h.registry.List(protocol.SourceAgent),
		h.registry.List(protocol.SourceService),
		h.history.All(),
		h.cfg.Now(),
	)
}

// Health reports hub counters.
func (h *Hub) Health(ctx context.Context) (Health, error) {
	var out Health
	err := h.do(ctx, func() {
		out = Health{
			Status:               "ok",
			ConnectedSubscribers: len(h.subs),
			ProducerCounts: map[string]registry.Counts{
				"agents":   h.registry.Count(protocol.SourceAgent),
				"services": h.registry.Count(protocol.SourceService),
			},
			HistoryLength: h.history.Len(),
			Uptime:        h.cfg.Now().Sub(h.started).Seconds(),
		}
	})
	return out, err
}
